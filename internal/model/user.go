package model

import "time"

type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleTutor     Role = "TUTOR"
	RoleAdmin     Role = "ADMIN"
	RoleCoord     Role = "COORD"
	RoleDeptChair Role = "DEPT_CHAIR"
)

type User struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Roles      []Role    `json:"roles"`
	CreatedAt  time.Time `json:"created_at"`
}

// FullName возвращает имя для отображения
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Actor возвращает аутентифицированного участника для проверок прав
func (u *User) Actor() Actor {
	return Actor{UserID: u.ID, Roles: append([]Role(nil), u.Roles...)}
}

// Actor пользователь, выполняющий действие
type Actor struct {
	UserID int64
	Roles  []Role
}

// HasRole проверяет наличие роли
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type TutorProfile struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
}

type StudentProfile struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Major       string `json:"major"`
}

type Course struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
