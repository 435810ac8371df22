package main

import (
	"context"
	"fmt"
	"time"

	"appointment_reminder/internal/domain/appointment"
	"appointment_reminder/internal/domain/notifier"
	"appointment_reminder/internal/infra/config"
	idb "appointment_reminder/internal/infra/database"
	"appointment_reminder/internal/infra/dynamo"
	"appointment_reminder/internal/infra/kafka"
	"appointment_reminder/internal/infra/logger"
	"appointment_reminder/internal/infra/memory"
	"appointment_reminder/internal/infra/notify"
	"appointment_reminder/internal/infra/sns"
	"appointment_reminder/internal/infra/sqlite"
	"appointment_reminder/internal/infra/telegram"

	"gopkg.in/telebot.v3"
)

type closer func() error

func noopCloser() error { return nil }

// newRepository opens the store selected by STORE_BACKEND.
func newRepository(ctx context.Context, cfg *config.AppConfig) (appointment.Repository, closer, error) {
	log := logger.Component("store").WithField("backend", cfg.StoreBackend)

	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := idb.OpenAppointmentStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open postgres store: %w", err)
		}
		log.Info("Database connection established successfully.")
		return idb.NewPostgresAppointmentRepository(db), db.Close, nil

	case config.StoreSQLite:
		db, err := sqlite.Init(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		log.WithField("path", cfg.SQLitePath).Info("SQLite database opened.")
		return sqlite.NewAppointmentRepository(db), sqlDB.Close, nil

	case config.StoreDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, nil, err
		}
		if err := dynamo.EnsureTable(ctx, client, cfg.DynamoTable); err != nil {
			return nil, nil, err
		}
		log.WithField("table", cfg.DynamoTable).Info("DynamoDB table ready.")
		return dynamo.NewAppointmentRepository(client, cfg.DynamoTable), noopCloser, nil

	default:
		log.Warn("Using in-memory store; appointments are lost on restart.")
		return memory.NewAppointmentRepository(), noopCloser, nil
	}
}

// newBot creates the Telegram bot when a token is configured; it returns nil otherwise.
func newBot(cfg *config.AppConfig) (*telebot.Bot, error) {
	if cfg.TelegramToken == "" {
		return nil, nil
	}
	botLogger := logger.Component("telebot")
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID).WithField("chat_id", c.Chat().ID)
			}
			entry.Error("Telegram handler failed")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("could not create Telegram bot: %w", err)
	}
	return bot, nil
}

// newNotifier builds the provider selected by NOTIFIER_PROVIDER.
func newNotifier(ctx context.Context, cfg *config.AppConfig, bot *telebot.Bot) (notifier.Notifier, closer, error) {
	switch cfg.NotifierProvider {
	case config.NotifierTelegram:
		if bot == nil {
			return nil, nil, fmt.Errorf("telegram notifier needs TELEGRAM_TOKEN")
		}
		return telegram.NewNotifier(telegram.NewTelebotAdapter(bot), cfg.NotifierTimeout), noopCloser, nil

	case config.NotifierSNS:
		n, err := sns.NewNotifier(ctx, cfg.AWSRegion, cfg.NotifierTimeout)
		if err != nil {
			return nil, nil, err
		}
		return n, noopCloser, nil

	case config.NotifierKafka:
		n, err := kafka.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.NotifierTimeout)
		if err != nil {
			return nil, nil, err
		}
		return n, n.Close, nil

	default:
		return notify.NewLogNotifier(logger.Component("notifier")), noopCloser, nil
	}
}
