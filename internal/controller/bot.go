package controller

import (
	"context"

	"github.com/Freeeeeet/tutor_bot/internal/controller/handlers"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

type BotController struct {
	bot      *bot.Bot
	handlers *handlers.Handlers
	logger   *zap.Logger
}

func NewBotController(botInstance *bot.Bot, cmdHandlers *handlers.Handlers, logger *zap.Logger) *BotController {
	return &BotController{
		bot:      botInstance,
		handlers: cmdHandlers,
		logger:   logger,
	}
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, c.handlers.HandleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.handlers.HandleHelp)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/mysessions", bot.MatchTypeExact, c.handlers.HandleMySessions)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/notifications", bot.MatchTypeExact, c.handlers.HandleNotifications)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/feedback", bot.MatchTypeExact, c.handlers.HandleFeedback)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypeExact, c.handlers.HandleCancel)

	// Команды туторов
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/becometutor", bot.MatchTypeExact, c.handlers.HandleBecomeTutor)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/newslot", bot.MatchTypeExact, c.handlers.HandleNewSlot)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/attendance", bot.MatchTypePrefix, c.handlers.HandleAttendance)

	// Команды с аргументами
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/slots", bot.MatchTypePrefix, c.handlers.HandleSlots)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/public", bot.MatchTypePrefix, c.handlers.HandlePublic)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/session ", bot.MatchTypePrefix, c.handlers.HandleSession)

	// Ответы на шаги диалогов: любой текст без команды
	c.bot.RegisterHandlerMatchFunc(handlers.IsDialogInput, c.handlers.HandleTextMessage)

	// Обработчик нажатий на inline кнопки
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, c.handlers.HandleCallbackQuery)

	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Начать работу с ботом"},
		{Command: "help", Description: "❓ Справка по командам"},
		{Command: "public", Description: "👥 Открытые групповые занятия"},
		{Command: "mysessions", Description: "📅 Мои занятия"},
		{Command: "slots", Description: "🗓 Свободные окна тутора"},
		{Command: "notifications", Description: "🔔 Уведомления"},
		{Command: "feedback", Description: "⭐ Ожидающие отзывы"},
		{Command: "becometutor", Description: "🎓 Стать тутором"},
		{Command: "newslot", Description: "➕ Новое окно (для туторов)"},
		{Command: "cancel", Description: "✖️ Прервать диалог"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("Bot commands menu set")
	return nil
}

// Start запускает бота и блокируется до отмены контекста
func (c *BotController) Start(ctx context.Context) {
	c.logger.Info("Starting bot")
	c.bot.Start(ctx)
}
