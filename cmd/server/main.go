package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"habitsync/internal/config"
	"habitsync/internal/engine"
	"habitsync/internal/handler"
	"habitsync/internal/httpserver"
	"habitsync/internal/remote"
	"habitsync/internal/store"
	"habitsync/pkg/db"
	"habitsync/pkg/logger"
	"habitsync/pkg/mq"
	"habitsync/pkg/redisclient"
	"habitsync/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting habitsync...",
		zap.String("remote_backend", cfg.Remote.Backend),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.String("port", cfg.Server.Port),
	)

	// Remote document store
	var remoteSvc remote.Service
	switch cfg.Remote.Backend {
	case "http":
		log.Info("Using HTTP remote data service", zap.String("url", cfg.Remote.URL))
		remoteSvc = remote.NewHTTPService(cfg.Remote.URL, log)
	default:
		log.Info("Using Postgres remote data service")
		dbConn, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			log.Fatal("Failed to init DB", zap.Error(err))
		}
		defer dbConn.Close()

		pg := remote.NewPostgresService(dbConn, log)
		schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := pg.EnsureSchema(schemaCtx); err != nil {
			cancel()
			log.Fatal("Failed to ensure schema", zap.Error(err))
		}
		cancel()
		remoteSvc = pg
	}

	// Redis: snapshot cache + badge-chain dedup locks
	rdb := redisclient.New(cfg.Redis)
	defer rdb.Close()

	habitStore := store.New(log).
		WithCache(store.NewRedisCache(rdb, 24*time.Hour, log))
	habitStore.LoadCached(context.Background())

	coordinator := engine.NewCoordinator(habitStore, remoteSvc, log).
		WithIdempotency(util.NewDeduper(rdb, 10*time.Minute, log))

	// Settlement event publisher (optional: the engine runs without MQ)
	var publisher *mq.Publisher
	if cfg.MQ.URL != "" {
		p, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Warn("MQ unavailable, settlement events disabled", zap.Error(err))
		} else {
			publisher = p
			defer publisher.Close()
			coordinator.WithEvents(publisher)
			log.Info("Settlement event publisher connected")
		}
	}

	// Initial authoritative fetch
	refreshCtx, cancelRefresh := context.WithTimeout(context.Background(), 15*time.Second)
	coordinator.Refresh(refreshCtx, "startup")
	cancelRefresh()

	// HTTP server
	habitHandler := handler.NewHabitHandler(coordinator, log)
	router := httpserver.NewRouter(habitHandler, log, rdb)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("habitsync is fully initialized and running",
		zap.String("http_port", cfg.Server.Port),
		zap.String("remote_backend", cfg.Remote.Backend),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down habitsync gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("habitsync shutdown complete")
}
