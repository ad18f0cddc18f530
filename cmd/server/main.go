package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lazynerd-007/lpv1-sub000/internal/api"
	"github.com/lazynerd-007/lpv1-sub000/internal/app"
	"github.com/lazynerd-007/lpv1-sub000/internal/app/maintenance"
	"github.com/lazynerd-007/lpv1-sub000/internal/auth"
	"github.com/lazynerd-007/lpv1-sub000/internal/database"
	"github.com/lazynerd-007/lpv1-sub000/internal/realtime"
	"github.com/lazynerd-007/lpv1-sub000/internal/services"
	"github.com/lazynerd-007/lpv1-sub000/internal/workqueue"
	"github.com/lazynerd-007/lpv1-sub000/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Logger().Error("server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(configPath string) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Logging); err != nil {
		return err
	}
	log := logger.WithModule("bootstrap")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.AutoMigrateAndSeed(db); err != nil {
		return err
	}

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.Auth.JWTSecret,
		Issuer:         cfg.Auth.JWTIssuer,
		AccessTokenTTL: cfg.Auth.AccessTokenTTL,
	})
	if err != nil {
		return err
	}

	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry,
		realtime.WithFanoutConcurrency(cfg.Notifications.BroadcastConcurrency))
	pool := workqueue.NewPool(cfg.Notifications.QueueWorkers, cfg.Notifications.QueueBuffer)

	service, err := services.NewNotificationService(db, broadcaster, pool)
	if err != nil {
		return err
	}

	hub := realtime.NewHub(registry, service,
		realtime.WithSendBuffer(cfg.Notifications.SessionBuffer))

	cleaner := maintenance.NewCleaner(
		maintenance.WithSchedule(cfg.Notifications.CleanupSchedule))
	cleaner.Register(maintenance.Job{
		Name: "notification-retention",
		Run: func(ctx context.Context) (int64, error) {
			return service.CleanupOlderThan(ctx, cfg.Notifications.RetentionDays)
		},
	})
	if err := cleaner.Start(); err != nil {
		return err
	}

	router := api.NewRouter(api.Options{
		DB:            db,
		Service:       service,
		Broadcaster:   broadcaster,
		Hub:           hub,
		JWTService:    jwtService,
		EnableMetrics: cfg.Monitoring.EnableMetrics,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}

	hub.Shutdown()
	pool.Stop()

	cleaner.Stop()
	if err := cleaner.RunOnce(shutdownCtx); err != nil {
		log.Warn("final retention sweep failed", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info("shutdown complete")
	return nil
}
