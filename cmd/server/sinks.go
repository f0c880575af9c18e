package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/garrettladley/sesgate/internal/config"
	"github.com/garrettladley/sesgate/internal/migrations"
	"github.com/garrettladley/sesgate/internal/migrations/postgres"
	"github.com/garrettladley/sesgate/internal/server/handler"
	"github.com/garrettladley/sesgate/internal/storage"
	"github.com/garrettladley/sesgate/internal/xslog"
)

const keyApplied = "applied"

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type sink struct {
	store  storage.InboundEmailStore
	pinger handler.Pinger
	close  func()
}

func initSink(ctx context.Context, cfg config.Config, redisClient *redis.Client, logger *slog.Logger) (sink, error) {
	logger.InfoContext(ctx, "initializing sink", xslog.Sink(cfg.Sink))

	switch cfg.Sink {
	case config.SinkPostgres, config.SinkHybrid:
		pool, err := initPostgres(ctx, cfg, logger)
		if err != nil {
			return sink{}, err
		}
		s := sink{store: storage.NewPostgresInboundEmailStore(pool), pinger: pool, close: pool.Close}
		if cfg.Sink == config.SinkHybrid {
			if redisClient == nil {
				pool.Close()
				return sink{}, errors.New("hybrid sink requires redis")
			}
			s.store = storage.NewHybridInboundEmailStore(pool, redisClient)
		}
		return s, nil

	case config.SinkSQLite:
		db, err := initSQLite(ctx, cfg, logger)
		if err != nil {
			return sink{}, err
		}
		return sink{
			store:  storage.NewSQLiteInboundEmailStore(db),
			pinger: pingFunc(db.PingContext),
			close:  func() { _ = db.Close() },
		}, nil

	case config.SinkKafka:
		store, err := storage.NewKafkaInboundEmailStore(storage.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		if err != nil {
			return sink{}, err
		}
		return sink{
			store: store,
			close: func() {
				if err := store.Close(); err != nil {
					logger.ErrorContext(ctx, "failed to close kafka writer", xslog.Error(err))
				}
			},
		}, nil

	default:
		logger.WarnContext(ctx, "using in-memory sink, inbound emails are lost on restart")
		return sink{store: storage.NewMemoryInboundEmailStore(), close: func() {}}, nil
	}
}

func initPostgres(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.InfoContext(ctx, "initializing PostgreSQL")

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	applied, err := postgres.Apply(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	logger.InfoContext(ctx, "postgres migrations complete", slog.Int(keyApplied, applied))

	return pool, nil
}

func initSQLite(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sql.DB, error) {
	logger.InfoContext(ctx, "initializing SQLite", slog.String("path", cfg.SQLite.Path))

	db, err := storage.OpenSQLite(cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	logger.InfoContext(ctx, "sqlite migrations complete", slog.Int(keyApplied, applied))

	return db, nil
}
