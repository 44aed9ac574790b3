package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"focusguard/config"
	"focusguard/internal/agent"
	"focusguard/internal/api"
	"focusguard/internal/core"
	"focusguard/internal/intervention"
	"focusguard/internal/logging"
	"focusguard/internal/monitor"
	"focusguard/internal/scheduler"
	"focusguard/internal/sinks"
	"focusguard/internal/sinks/logsink"
	"focusguard/internal/sinks/telegram"
	"focusguard/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon (monitor, reconcile scheduler and HTTP API)",
	Long: `Runs the foreground monitor, the usage reconcile scheduler and the HTTP API
until interrupted. On shutdown the break state and the usage milestones are
flushed to the database.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.Logging.Format,
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	clock := core.RealClock{}

	logger.Info("Initializing SQLite database", "path", cfg.Database.Path, "timezone", loc.String())
	db, err := sqlite.New(cfg.Database.Path, loc, sqlite.WithClock(clock))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Core services
	ledger := core.NewUsageLedger(db, clock, loc)
	profiles := core.NewProfileService(db, clock, loc)
	breaks := core.NewBreakController(db, profiles, clock, cfg.Monitor.SelfPackage, cfg.Monitor.SystemWhitelist)
	if err := breaks.Load(ctx); err != nil {
		return fmt.Errorf("failed to load break state: %w", err)
	}
	breakManager := logging.NewBreakManagerLogger(breaks, logger)
	resolver := core.NewResolver(core.DefaultRules(breaks, profiles, db), ledger, clock, logger)
	strict := core.NewStrictModeGuard(db, clock)

	// Agent bridge and intervention
	bridge := agent.NewBridge(clock, cfg.Monitor.StaleAfter(), logger)
	presenter := intervention.NewPresenter(bridge, db, clock, logger)
	bridge.OnDismissed(presenter.Dismissed)

	registry, bot, err := buildSinks(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("Notification sinks registered", "sinks", registry.List())

	notifier := intervention.NewNotifier(registry, db, cfg.Monitor.NotificationInterval(), loc, logger)
	if err := notifier.Load(ctx, clock.Now()); err != nil {
		logger.Warn("Failed to load usage milestones", "error", err)
	}

	mon := monitor.New(monitor.Dependencies{
		Source:    bridge,
		Ledger:    ledger,
		Resolver:  resolver,
		Breaks:    breakManager,
		Presenter: presenter,
		Notifier:  notifier,
		Limits:    db,
	}, monitor.Config{
		PollInterval: cfg.Monitor.PollInterval(),
		MaxTickGap:   cfg.Monitor.MaxTickGap(),
	}, clock, logger)
	presenter.OnRelease(mon.Release)

	sched := scheduler.NewScheduler(bridge, ledger, clock, cfg.Monitor.ReconcileInterval(), logger, breaks, notifier)

	go mon.Start(ctx)
	go sched.Start(ctx)

	if bot != nil {
		commands := telegram.NewCommands(bot, cfg.Telegram.ChatIDs, ledger, breakManager, clock, logger)
		go commands.Run(ctx, bot.GetUpdatesChan(tgbotapi.NewUpdate(0)))
		defer bot.StopReceivingUpdates()
	}

	router := api.NewRouter(api.RouterConfig{
		Limits:     db,
		Overrides:  db,
		Profiles:   profiles,
		Breaks:     breakManager,
		Ledger:     ledger,
		Resolver:   resolver,
		Monitor:    mon,
		Presenter:  presenter,
		Strict:     strict,
		Bridge:     bridge,
		Clock:      clock,
		APIKey:     cfg.Security.APIKey,
		AgentToken: cfg.Security.AgentToken,
		Logger:     logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		runErr = fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received, starting graceful shutdown")
	}

	mon.Stop()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// No tick may write to the store while state is flushed
	for name, done := range map[string]<-chan struct{}{"monitor": mon.Done(), "scheduler": sched.Done()} {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Error("Loop did not stop in time", "loop", name)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if err := breaks.Flush(shutdownCtx); err != nil {
		logger.Error("Failed to flush break state", "error", err)
	}
	if err := notifier.Flush(shutdownCtx); err != nil {
		logger.Error("Failed to flush usage milestones", "error", err)
	}
	registry.Wait()

	logger.Info("Graceful shutdown complete")
	return runErr
}

// buildSinks registers the log sink and, when configured, the Telegram sink.
// The bot is returned so the same connection can answer commands.
func buildSinks(cfg *config.Config, logger *slog.Logger) (*sinks.Registry, *tgbotapi.BotAPI, error) {
	registry := sinks.NewRegistry(cfg.Monitor.SinkTimeout(), logger)

	if err := registry.Register(logsink.New(logger)); err != nil {
		return nil, nil, err
	}

	if cfg.Telegram.BotToken == "" {
		return registry, nil, nil
	}

	bot, err := telegram.Connect(cfg.Telegram.BotToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize telegram sink: %w", err)
	}
	tg, err := telegram.NewWithSender(bot, cfg.Telegram.ChatIDs, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := registry.Register(tg); err != nil {
		return nil, nil, err
	}

	return registry, bot, nil
}
