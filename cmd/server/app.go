package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/adapter/notify"
	"github.com/rl1809/bloodbank/internal/adapter/storage"
	"github.com/rl1809/bloodbank/internal/config"
	"github.com/rl1809/bloodbank/internal/database"
	"github.com/rl1809/bloodbank/internal/migrations"
	"github.com/rl1809/bloodbank/internal/observability"
	"github.com/rl1809/bloodbank/internal/port"
)

// app holds the process-wide resources shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
	store  *storage.SQLAdapter
	rdb    *redis.Client
	amqp   *notify.AMQPSink
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Production(), cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(ctx, database.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database", zap.String("driver", cfg.Database.Driver))

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		store:  storage.NewSQLAdapter(db),
	}, nil
}

func (a *app) migrate(ctx context.Context) error {
	if err := migrations.Run(ctx, a.db); err != nil {
		return err
	}
	a.logger.Info("schema up to date")
	return nil
}

// idempotencyCache is Redis when configured, otherwise process memory.
func (a *app) idempotencyCache(ctx context.Context) (port.IdempotencyStore, error) {
	if !a.cfg.Redis.Enabled() {
		return storage.NewMemoryCache(a.cfg.Redis.IdempotencyTTL), nil
	}
	if err := a.connectRedis(ctx); err != nil {
		return nil, err
	}
	return storage.NewRedisAdapter(a.rdb, a.cfg.Redis.IdempotencyTTL), nil
}

// notificationSink always logs, and also publishes to every configured broker.
func (a *app) notificationSink(ctx context.Context) (port.NotificationSink, error) {
	sinks := notify.MultiSink{notify.NewLogSink(a.logger)}

	if a.cfg.Redis.Enabled() {
		if err := a.connectRedis(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, notify.NewRedisSink(a.rdb, a.cfg.Redis.AlertChannel))
	}

	if a.cfg.RabbitMQ.Enabled() {
		sink, err := notify.DialAMQP(a.cfg.RabbitMQ.URL, a.cfg.RabbitMQ.Exchange, a.cfg.RabbitMQ.RoutingKey)
		if err != nil {
			return nil, err
		}
		a.amqp = sink
		sinks = append(sinks, sink)
		a.logger.Info("connected to rabbitmq", zap.String("exchange", a.cfg.RabbitMQ.Exchange))
	}

	return sinks, nil
}

func (a *app) connectRedis(ctx context.Context) error {
	if a.rdb != nil {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	a.rdb = rdb
	a.logger.Info("connected to redis", zap.String("addr", a.cfg.Redis.Addr))
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.amqp != nil {
		errs = append(errs, a.amqp.Close())
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	errs = append(errs, a.db.Close())
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
