package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/handyhub/internal/alerts"
	"github.com/sudo-init-do/handyhub/internal/config"
	"github.com/sudo-init-do/handyhub/internal/db"
	"github.com/sudo-init-do/handyhub/internal/events"
	"github.com/sudo-init-do/handyhub/internal/marketplace"
	"github.com/sudo-init-do/handyhub/internal/presence"
	"github.com/sudo-init-do/handyhub/internal/store"
	"github.com/sudo-init-do/handyhub/internal/store/pgstore"
	"github.com/sudo-init-do/handyhub/internal/store/sqlitestore"
)

func setupLogger(c config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// openStore connects to the configured backend. Postgres is migrated to
// the latest schema first; SQLite creates its directory and migrates
// itself on open.
func openStore(ctx context.Context, c config.Config) (store.Store, error) {
	if c.DBDriver == "sqlite" {
		st, err := sqlitestore.Open(c.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", c.SQLitePath).Msg("using SQLite store")
		return st, nil
	}
	dsn := c.PostgresDSN()
	if err := db.MigrateUp(dsn); err != nil {
		return nil, err
	}
	pool, err := db.Init(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return pgstore.New(pool), nil
}

func openPublisher(c config.Config) events.Publisher {
	if c.AMQPURL == "" {
		return events.Noop{}
	}
	pub, err := events.NewRabbitMQ(c.AMQPURL, c.AMQPExchange, log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, domain events disabled")
		return events.Noop{}
	}
	return pub
}

func mailConfig(c config.Config) alerts.MailConfig {
	return alerts.MailConfig{
		Provider:     c.MailProvider,
		SMTPHost:     c.SMTPHost,
		SMTPPort:     c.SMTPPort,
		SMTPUsername: c.SMTPUsername,
		SMTPPassword: c.SMTPPassword,
		SMTPFrom:     c.SMTPFrom,
		ReplyTo:      c.MailReplyTo,
		PlunkAPIKey:  c.PlunkAPIKey,
		PlunkFrom:    c.PlunkFrom,
		PlunkAPIURL:  c.PlunkAPIURL,
	}
}

// app holds the wired services shared by the commands.
type app struct {
	store     store.Store
	registry  *presence.Registry
	rooms     *presence.Rooms
	notifier  *alerts.Dispatcher
	market    *marketplace.Service
	publisher events.Publisher
	queue     *asynq.Client
}

func newApp(ctx context.Context, c config.Config) (*app, error) {
	st, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}
	a := &app{store: st, publisher: openPublisher(c)}

	var email alerts.EmailEnqueuer
	if c.RedisAddr != "" {
		a.queue = asynq.NewClient(asynq.RedisClientOpt{Addr: c.RedisAddr})
		email = alerts.NewQueue(a.queue, c.AppURL)
	}

	a.registry = presence.NewRegistry(st, log.Logger)
	a.rooms = presence.NewRooms(log.Logger)
	a.notifier = alerts.NewDispatcher(st, a.registry, email, log.Logger)
	a.market = marketplace.NewService(st, a.rooms, a.notifier, a.publisher, log.Logger)
	a.market.Matcher.Tolerance = c.MatchBudgetTolerance
	a.market.Horizon = c.RequestDefaultHorizon
	return a, nil
}

func (a *app) Close() {
	if a.queue != nil {
		_ = a.queue.Close()
	}
	_ = a.publisher.Close()
	a.store.Close()
}
