package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Freeeeeet/tutor_bot/internal/app"
	"github.com/Freeeeeet/tutor_bot/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "tutorbot",
	Short: "Tutoring sessions scheduling bot",
	Long: `tutorbot lets tutors publish availability and students book, negotiate
and join tutoring sessions through a Telegram bot backed by PostgreSQL.`,
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

// runtime общие зависимости подкоманд
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := app.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, pool: pool}, nil
}

func (r *runtime) Close() {
	r.pool.Close()
	_ = r.logger.Sync()
}
