package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appointment_reminder/internal/app"
	"appointment_reminder/internal/domain/datetime"
	"appointment_reminder/internal/infra/config"
	"appointment_reminder/internal/infra/httpapi"
	"appointment_reminder/internal/infra/logger"
	"appointment_reminder/internal/infra/metrics"
	"appointment_reminder/internal/infra/scheduler"
	"appointment_reminder/internal/infra/telegram"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"store":       cfg.StoreBackend,
		"notifier":    cfg.NotifierProvider,
	}).Info("Configuration loaded.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := newRepository(ctx, cfg)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not initialize appointment store")
	}
	defer closeStore()

	bot, err := newBot(cfg)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not initialize Telegram bot")
	}

	n, closeNotifier, err := newNotifier(ctx, cfg, bot)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not initialize notifier")
	}
	defer closeNotifier()

	dispatcher := app.NewReminderDispatcher(n, cfg.DispatchRatePerSecond, logger.Component("dispatcher"))
	reminderService := app.NewReminderService(
		repo,
		datetime.NewResolver(),
		dispatcher,
		logger.Component("reminders"),
		app.WithMetrics(metrics.NewRecorder(prometheus.DefaultRegisterer)),
		app.WithDefaultType(cfg.DefaultAppointmentType),
	)
	adminService := app.NewAdminService(repo, cfg.AdminTelegramID, cfg.StaleClaimAfter)
	mainLogger.Info("Services initialized.")

	reminderScheduler := scheduler.NewReminderScheduler(reminderService, logger.Component("scheduler"), cfg.PollInterval, cfg.CycleTimeout)
	reminderScheduler.Start()

	route := httpapi.NewReminderRoute(reminderService, reminderScheduler, logger.Component("http"))
	server := httpapi.NewServer(route, promhttp.Handler())
	go func() {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := server.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Error("HTTP server stopped unexpectedly")
			stop()
		}
	}()

	if bot != nil {
		telegram.NewHandlers(ctx, reminderService, adminService, logger.Component("telegram")).Register(bot)
		// Start bot in a goroutine so it doesn't block graceful shutdown handling
		go bot.Start()
		mainLogger.Info("Telegram bot started.")
	}

	<-ctx.Done() // Block until a signal is received
	mainLogger.Info("Shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	if bot != nil {
		bot.Stop()
	}
	reminderScheduler.Stop()

	mainLogger.Info("Application shut down gracefully.")
	os.Exit(0)
}
