// Command relay-bot runs the Telegram relay bot.
//
// Usage:
//
//	relay-bot run --env-file .env
//	relay-bot init-db
//	relay-bot version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/glebk/relay-bot/internal/bot"
	"github.com/glebk/relay-bot/internal/config"
	"github.com/glebk/relay-bot/internal/dispatch"
	"github.com/glebk/relay-bot/internal/llm"
	"github.com/glebk/relay-bot/internal/logger"
	"github.com/glebk/relay-bot/internal/metrics"
	"github.com/glebk/relay-bot/internal/ratelimit"
	"github.com/glebk/relay-bot/internal/repository/sqlite"
	"github.com/glebk/relay-bot/internal/scheduler"
	"github.com/glebk/relay-bot/internal/service"
)

// CLI defines the command-line interface.
type CLI struct {
	Run     RunCmd     `cmd:"" default:"1" help:"Start the bot."`
	InitDB  InitDBCmd  `cmd:"" name:"init-db" help:"Create the database schema and verify it."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	EnvFile   []string `name:"env-file" help:"Dotenv files to load (missing files are ignored)." type:"path"`
	LogLevel  string   `help:"Log level (debug, info, warn, error). Overrides LOG_LEVEL."`
	LogFormat string   `help:"Log format (text, json). Overrides LOG_FORMAT."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("relay-bot version %s\n", version)
	return nil
}

// InitDBCmd creates the schema without starting the bot.
type InitDBCmd struct{}

func (c *InitDBCmd) Run(cli *CLI) error {
	log := logger.Init(orDefault(cli.LogLevel, "info"), orDefault(cli.LogFormat, "text"))

	path, err := config.LoadDatabasePath(cli.EnvFile...)
	if err != nil {
		return err
	}
	cfg := &config.Config{DatabasePath: path}
	if err := cfg.EnsureDatabaseDir(); err != nil {
		return err
	}

	db, err := sqlite.New(path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.Verify(context.Background()); err != nil {
		return fmt.Errorf("database verification failed: %w", err)
	}

	log.Info("Database initialized", "path", path)
	return nil
}

// RunCmd starts the bot and its housekeeping.
type RunCmd struct{}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.EnvFile...)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.LogFormat = cli.LogFormat
	}
	log := logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsureDatabaseDir(); err != nil {
		return err
	}
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.Verify(ctx); err != nil {
		return fmt.Errorf("database verification failed: %w", err)
	}
	log.Info("Database initialized", "path", cfg.DatabasePath)

	userRepo := sqlite.NewUserRepository(db)
	achievementRepo := sqlite.NewAchievementRepository(db)
	messageLogRepo := sqlite.NewMessageLogRepository(db)

	m := metrics.New()

	limiter, err := ratelimit.New(cfg.RateLimit.Cooldown)
	if err != nil {
		return err
	}
	m.RegisterRateLimitEntries(limiter.Len)

	dispatcher, err := dispatch.New(cfg.MaxMessageLength)
	if err != nil {
		return err
	}

	gemini, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return err
	}

	telegramBot, err := bot.New(cfg.TelegramToken, bot.Deps{
		Config:     cfg,
		Limiter:    limiter,
		Recorder:   service.NewActivityRecorder(userRepo, messageLogRepo, m, log),
		Rewards:    service.NewRewardService(userRepo, achievementRepo, messageLogRepo, int64(cfg.DailyRewardPoints), cfg.LeaderboardSize),
		Admin:      service.NewAdminService(userRepo),
		Responder:  llm.NewResponder(gemini, cfg.LLMTimeout, m, log),
		Dispatcher: dispatcher,
		Metrics:    m,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	sched := scheduler.New(log)
	_, err = sched.ScheduleInterval("rate-limit-sweep", cfg.RateLimit.SweepInterval, func() {
		if removed := limiter.Sweep(cfg.RateLimit.IdleTTL); removed > 0 {
			log.Debug("Swept idle rate limit entries", "removed", removed, "remaining", limiter.Len())
		}
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return telegramBot.Start(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return m.Serve(gctx, cfg.MetricsAddr, log) })
	}

	log.Info("Bot started. Press Ctrl+C to stop.", "model", gemini.Model())
	err = g.Wait()
	log.Info("Bot process exited")
	return err
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("relay-bot"),
		kong.Description("Telegram bot that relays messages to a language model."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&cli); err != nil {
		slog.Error("relay-bot failed", "error", err)
		os.Exit(1)
	}
}
