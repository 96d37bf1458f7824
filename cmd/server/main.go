package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/orderdesk/api/internal/auth"
	"github.com/orderdesk/api/internal/config"
	"github.com/orderdesk/api/internal/database"
	"github.com/orderdesk/api/internal/logger"
	"github.com/orderdesk/api/internal/metrics"
	"github.com/orderdesk/api/internal/router"
	"github.com/orderdesk/api/internal/service"
	"github.com/orderdesk/api/internal/ws"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "orderdesk"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "orderdesk",
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		logg.Info(ctx, "migrations applied")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	sessions, err := auth.NewSessions(redisClient, cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	hub := ws.NewHub()

	staging := service.NewStagingService(pool, func(db database.DBTX) service.StagingStore {
		return database.New(db)
	}, logg, reg)
	archive := service.NewArchiveService(pool, func(db database.DBTX) service.ArchiveStore {
		return database.New(db)
	}, logg, reg)

	server := &http.Server{
		Addr: cfg.Addr(),
		Handler: router.New(router.Deps{
			Config:   cfg,
			Log:      logg,
			Metrics:  reg,
			Hub:      hub,
			Users:    database.New(pool),
			Sessions: sessions,
			Staging:  staging,
			Archive:  archive,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logg.InfoFields(gctx, "starting api server", map[string]any{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logg.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
