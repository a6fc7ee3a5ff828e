package handlers

import (
	"time"

	"github.com/Freeeeeet/tutor_bot/internal/controller/state"
	"github.com/Freeeeeet/tutor_bot/internal/service"
	"go.uber.org/zap"
)

// Handlers содержит все зависимости для обработки команд и кнопок
type Handlers struct {
	userService          *service.UserService
	availabilityService  *service.AvailabilityService
	bookingService       *service.BookingService
	participationService *service.ParticipationService
	queryService         *service.QueryService
	inboxService         *service.InboxService
	profiles             service.ProfileLookup
	dialogs              *state.Manager
	// loc в нём разбирается введённое время
	loc    *time.Location
	logger *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	userService *service.UserService,
	availabilityService *service.AvailabilityService,
	bookingService *service.BookingService,
	participationService *service.ParticipationService,
	queryService *service.QueryService,
	inboxService *service.InboxService,
	profiles service.ProfileLookup,
	dialogs *state.Manager,
	loc *time.Location,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		userService:          userService,
		availabilityService:  availabilityService,
		bookingService:       bookingService,
		participationService: participationService,
		queryService:         queryService,
		inboxService:         inboxService,
		profiles:             profiles,
		dialogs:              dialogs,
		loc:                  loc,
		logger:               logger,
	}
}
