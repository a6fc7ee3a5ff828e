package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_bot/internal/model"
	"github.com/Freeeeeet/tutor_bot/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository профили туторов и студентов, справочник курсов
type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// TutorProfileByUser получает профиль тутора, nil если пользователь не тутор
func (r *ProfileRepository) TutorProfileByUser(ctx context.Context, userID int64) (*model.TutorProfile, error) {
	query := `
		SELECT user_id, display_name, bio
		FROM tutor_profiles
		WHERE user_id = $1
	`

	var p model.TutorProfile
	err := r.pool.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.DisplayName, &p.Bio)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tutor profile: %w", err)
	}

	return &p, nil
}

// StudentProfileByUser получает профиль студента, nil если профиля нет
func (r *ProfileRepository) StudentProfileByUser(ctx context.Context, userID int64) (*model.StudentProfile, error) {
	query := `
		SELECT user_id, display_name, major
		FROM student_profiles
		WHERE user_id = $1
	`

	var p model.StudentProfile
	err := r.pool.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.DisplayName, &p.Major)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get student profile: %w", err)
	}

	return &p, nil
}

// CreateStudentProfile создаёт профиль студента, если его ещё нет
func (r *ProfileRepository) CreateStudentProfile(ctx context.Context, p *model.StudentProfile) error {
	query := `
		INSERT INTO student_profiles (user_id, display_name, major)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, p.UserID, p.DisplayName, p.Major); err != nil {
		return fmt.Errorf("create student profile: %w", err)
	}

	return nil
}

// CreateTutorProfile создаёт профиль тутора или обновляет имя и описание
func (r *ProfileRepository) CreateTutorProfile(ctx context.Context, p *model.TutorProfile) error {
	query := `
		INSERT INTO tutor_profiles (user_id, display_name, bio)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name, bio = EXCLUDED.bio
	`

	if _, err := r.pool.Exec(ctx, query, p.UserID, p.DisplayName, p.Bio); err != nil {
		return fmt.Errorf("create tutor profile: %w", err)
	}

	return nil
}

// CourseByCode получает курс по коду
func (r *ProfileRepository) CourseByCode(ctx context.Context, code string) (*model.Course, error) {
	var c model.Course
	err := r.pool.QueryRow(ctx, `SELECT code, name FROM courses WHERE code = $1`, code).Scan(&c.Code, &c.Name)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get course by code: %w", err)
	}

	return &c, nil
}
