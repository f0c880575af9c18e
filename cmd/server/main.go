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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/garrettladley/sesgate/internal/config"
	"github.com/garrettladley/sesgate/internal/objectstore"
	xredis "github.com/garrettladley/sesgate/internal/redis"
	"github.com/garrettladley/sesgate/internal/server"
	"github.com/garrettladley/sesgate/internal/server/handler"
	"github.com/garrettladley/sesgate/internal/service/ingress"
	"github.com/garrettladley/sesgate/internal/sns"
	"github.com/garrettladley/sesgate/internal/storage"
	"github.com/garrettladley/sesgate/internal/xhttp"
	"github.com/garrettladley/sesgate/internal/xslog"
)

const (
	keyPort        = "port"
	keyTopics      = "topics"
	keyGracePeriod = "grace_period"
	keyObjectStore = "object_store"

	shutdownTimeout = 30 * time.Second
)

func main() {
	_ = godotenv.Load()

	logger := xslog.NewLoggerFromEnv(os.Stdout)
	slog.SetDefault(logger)

	ctx := context.Background()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", xslog.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Read()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	ctx = xslog.WithLogger(ctx, logger)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = xredis.New(ctx, xredis.Config{URL: cfg.Redis.URL})
		if err != nil {
			return fmt.Errorf("failed to initialize redis client: %w", err)
		}
	}

	// the backend owns redisClient from here on
	backend, err := initBackend(ctx, cfg, redisClient, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close backend", xslog.Error(err))
		}
	}()

	health := map[string]handler.Pinger{"backend": backend}

	var ingressService ingress.Service
	if cfg.IngressEnabled() {
		sk, err := initSink(ctx, cfg, redisClient, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize sink: %w", err)
		}
		defer sk.close()
		if sk.pinger != nil {
			health[cfg.Sink] = sk.pinger
		}

		processor, err := initIngress(ctx, cfg, backend, sk.store, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize ingress: %w", err)
		}
		ingressService = processor
	} else {
		logger.WarnContext(ctx, "no SNS topics configured, inbound email ingress disabled")
	}

	coordinator := server.NewShutdownCoordinator(cfg.GracePeriod)

	httpServer := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: server.NewHandler(server.Deps{
			Logger:           logger,
			Ingress:          ingressService,
			Limiter:          backend,
			Drainer:          coordinator,
			Health:           health,
			MaxBodyBytes:     cfg.MaxBodyBytes,
			TrustedProxyHops: cfg.RateLimit.TrustedProxyHops,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.S3.Timeout + cfg.OutboundTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting server",
			xslog.Version(),
			slog.String(keyPort, cfg.Port),
			slog.Int(keyTopics, len(cfg.SNS.Topics)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-done:
	}
	logger.InfoContext(ctx, "shutdown signal received, draining",
		slog.Duration(keyGracePeriod, cfg.GracePeriod))

	coordinator.InitiateShutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.InfoContext(ctx, "server stopped")
	return nil
}

func initBackend(ctx context.Context, cfg config.Config, redisClient *redis.Client, logger *slog.Logger) (storage.Backend, error) {
	if redisClient != nil {
		logger.InfoContext(ctx, "initializing Redis backend")
		return storage.NewRedisBackend(storage.RedisConfig{Client: redisClient}, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}
	logger.InfoContext(ctx, "initializing in-memory backend")
	perSecond := float64(cfg.RateLimit.Limit) / cfg.RateLimit.Window.Seconds()
	return storage.NewMemoryBackend(perSecond, cfg.RateLimit.Limit), nil
}

func initIngress(ctx context.Context, cfg config.Config, certCache storage.CertificateCache, sink storage.InboundEmailStore, logger *slog.Logger) (*ingress.Processor, error) {
	policy, err := sns.NewHostPolicy(cfg.SNS.SigningHostPatterns)
	if err != nil {
		return nil, err
	}

	outbound := xhttp.NewHTTPClient(
		xhttp.WithTimeout(cfg.OutboundTimeout),
		xhttp.WithoutRedirects(),
	)

	certs := sns.NewCertificateFetcher(outbound, certCache, policy, cfg.SNS.CertificateTTL)
	auth := sns.NewAuthenticator(cfg.SNS.Topics, certs)
	confirmer := ingress.NewConfirmer(outbound, policy, cfg.SNS.ConfirmTimeout)

	fetcher, err := initObjectStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	resolver := ingress.NewResolver(fetcher,
		ingress.WithMaxObjectBytes(cfg.S3.MaxObjectBytes),
		ingress.WithStorageTimeout(cfg.S3.Timeout),
	)

	logger.InfoContext(ctx, "ingress enabled",
		slog.Int(keyTopics, auth.Topics()),
		xslog.Sink(cfg.Sink))

	return ingress.NewProcessor(auth, confirmer, resolver, sink), nil
}

func initObjectStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (objectstore.Fetcher, error) {
	logger.InfoContext(ctx, "initializing object store", slog.String(keyObjectStore, cfg.ObjectStore))

	switch cfg.ObjectStore {
	case config.ObjectStoreMinIO:
		return objectstore.NewMinIOFetcher(objectstore.MinIOConfig{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			UseTLS:          cfg.MinIO.UseTLS,
			Region:          cfg.MinIO.Region,
		})
	case config.ObjectStoreNone:
		return nil, nil
	default:
		return objectstore.NewS3Fetcher(ctx, objectstore.S3Config{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
	}
}
