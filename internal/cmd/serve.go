package cmd

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_bot/internal/app"
	"github.com/Freeeeeet/tutor_bot/internal/controller"
	"github.com/Freeeeeet/tutor_bot/internal/controller/handlers"
	"github.com/Freeeeeet/tutor_bot/internal/controller/state"
	"github.com/Freeeeeet/tutor_bot/internal/notify"
	"github.com/Freeeeeet/tutor_bot/internal/repository"
	"github.com/Freeeeeet/tutor_bot/internal/service"
	"github.com/go-telegram/bot"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and background jobs",
	Long: `Applies pending migrations, then runs the Telegram bot and the
auto-complete scheduler until interrupted. Without TELEGRAM_TOKEN only the
scheduler runs and notifications are kept in the database.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var skipMigrations bool

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger := rt.logger
	logger.Info("Starting tutor bot",
		zap.String("environment", rt.cfg.Environment),
		zap.Bool("telegram", rt.cfg.TelegramToken != ""))

	if !skipMigrations {
		if err := migrate(ctx, rt); err != nil {
			return err
		}
	}

	// Репозитории
	store := repository.NewPgStore(rt.pool)
	userRepo := repository.NewUserRepository(rt.pool)
	profileRepo := repository.NewProfileRepository(rt.pool)
	notificationRepo := repository.NewNotificationRepository(rt.pool)
	feedbackRepo := repository.NewFeedbackRepository(rt.pool, rt.cfg.Policy.FeedbackDeadline)

	// Уведомления: история всегда, Telegram если есть токен
	sinks := []notify.Sink{notify.NewStoreSink(notificationRepo)}

	var tgBot *bot.Bot
	if rt.cfg.TelegramToken != "" {
		tgBot, err = bot.New(rt.cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		sinks = append(sinks, notify.NewTelegramSink(tgBot, userRepo, logger.Named("telegram")))
	}

	// Сервисы
	core := service.NewCore(store, profileRepo, profileRepo, notify.NewFanout(sinks...), feedbackRepo, rt.cfg.Policy, logger)
	availabilityService := service.NewAvailabilityService(core)
	bookingService := service.NewBookingService(core, availabilityService)
	participationService := service.NewParticipationService(core)
	queryService := service.NewQueryService(core)
	userService := service.NewUserService(userRepo, profileRepo, logger)
	inboxService := service.NewInboxService(notificationRepo, feedbackRepo, logger)

	scheduler := app.NewScheduler(bookingService, rt.cfg.AutoCompleteInterval, logger.Named("scheduler"))
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if tgBot == nil {
		logger.Warn("TELEGRAM_TOKEN is empty, running scheduler only")
		<-ctx.Done()
		logger.Info("Shutting down")
		return nil
	}

	cmdHandlers := handlers.NewHandlers(
		userService,
		availabilityService,
		bookingService,
		participationService,
		queryService,
		inboxService,
		profileRepo,
		state.NewManager(),
		rt.cfg.Timezone,
		logger.Named("bot"),
	)
	botController := controller.NewBotController(tgBot, cmdHandlers, logger)
	if err := botController.RegisterHandlers(ctx); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	// Блокируется до отмены контекста
	botController.Start(ctx)

	logger.Info("Shutting down")
	return nil
}

func migrate(ctx context.Context, rt *runtime) error {
	migrator, err := app.NewMigrator(rt.pool, rt.cfg.MigrationsDir, rt.logger)
	if err != nil {
		return err
	}
	defer migrator.Close()

	return migrator.Run(ctx)
}
