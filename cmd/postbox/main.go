// Command postbox runs the content backend: the HTTP API, the identity
// webhook receiver, and the background tuple reconciler.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/postbox-io/postbox/pkg/api"
	"github.com/postbox-io/postbox/pkg/authz"
	"github.com/postbox-io/postbox/pkg/config"
	"github.com/postbox-io/postbox/pkg/httputil"
	"github.com/postbox-io/postbox/pkg/identity"
	"github.com/postbox-io/postbox/pkg/observability"
	"github.com/postbox-io/postbox/pkg/service"
	"github.com/postbox-io/postbox/pkg/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "postbox: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting postbox")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// File-backed secrets override the environment when configured.
	var secretsWatcher *config.SecretsWatcher
	if cfg.SecretsFile != "" {
		secretsWatcher, err = config.NewSecretsWatcher(cfg.SecretsFile, logger)
		if err != nil {
			return fmt.Errorf("secrets: %w", err)
		}
		defer secretsWatcher.Close()

		secrets := secretsWatcher.Current()
		if secrets.ClientSecret != "" {
			cfg.Identity.ClientSecret = secrets.ClientSecret
		}
		cfg.Identity.WebhookSecret = secrets.WebhookSecret
	}

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	engine, err := authz.NewClient(cfg.Authz)
	if err != nil {
		return fmt.Errorf("authorization engine: %w", err)
	}

	idClient, err := identity.NewClient(ctx, cfg.Identity)
	if err != nil {
		return fmt.Errorf("identity provider: %w", err)
	}

	var (
		dedup   *service.EventDeduplicator
		limiter *httputil.RateLimiter
	)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		opts.PoolSize = cfg.Redis.PoolSize
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		dedup = service.NewEventDeduplicator(redisClient, cfg.Redis.DedupTTL)
		limiter = httputil.NewRateLimiter(redisClient, httputil.DefaultRateLimitConfig(), "postbox:ratelimit")
	} else {
		logger.Warn("redis not configured; webhook redeliveries will be re-applied and rate limiting is off")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	gateway := authz.Instrument(engine, metrics)

	posts := service.NewPostService(db, gateway, logger, metrics)
	comments := service.NewCommentService(db, gateway, logger, metrics)
	syncService := service.NewSyncService(db, gateway, idClient.WebhookSecret(), dedup, logger, metrics)
	if secretsWatcher != nil {
		syncService.UseSecretSource(func() []byte {
			return []byte(secretsWatcher.Current().WebhookSecret)
		})
	}

	server := api.NewServer(
		api.Config{
			ListenAddr:      cfg.Server.ListenAddr(),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			IdleTimeout:     cfg.Server.IdleTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		},
		posts, comments, syncService,
		idClient, idClient, db, limiter, logger, metrics,
	)

	if cfg.ReconcileSchedule != "" {
		reconciler := authz.NewReconciler(engine, db, logger)
		if err := reconciler.Start(cfg.ReconcileSchedule); err != nil {
			return fmt.Errorf("reconciler: %w", err)
		}
		defer reconciler.Stop()
	}

	opsMux := http.NewServeMux()
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:        cfg.Server.HealthAddr(),
		Handler:     opsMux,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(server.Start)
	group.Go(func() error {
		logger.WithField("addr", cfg.Server.HealthAddr()).Info("ops server listening")
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx := context.Background()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("api server shutdown")
		}
		return opsServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
