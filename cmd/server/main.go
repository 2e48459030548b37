package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/api"
	"github.com/quckapp/syncgateway/internal/config"
	"github.com/quckapp/syncgateway/internal/db"
	"github.com/quckapp/syncgateway/internal/repository"
	"github.com/quckapp/syncgateway/internal/service"
	"github.com/quckapp/syncgateway/internal/syncgw"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	logger.Info("Starting sync gateway...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if cfg.Environment == "development" {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"environment": cfg.Environment,
	}).Info("Configuration loaded")

	sqlDB, err := db.NewSQLite(cfg.DBPath, db.PragmaConfig{
		JournalMode: cfg.PragmaJournalMode,
		Synchronous: cfg.PragmaSynchronous,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to open storage")
	}
	defer sqlDB.Close()
	logger.Info("Storage opened")

	if err := db.RunMigrations(context.Background(), sqlDB); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}
	logger.Info("Migrations applied")

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = db.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to Redis, continuing without cache")
			redisClient = nil
		} else {
			defer redisClient.Close()
			logger.Info("Connected to Redis")
		}
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(sqlDB)
	accountRepo := repository.NewAuthAccountRepository(sqlDB)
	workspaceRepo := repository.NewWorkspaceRepository(sqlDB)
	memberRepo := repository.NewMemberRepository(sqlDB)
	inviteRepo := repository.NewInviteRepository(sqlDB)
	adminRepo := repository.NewAdminRepository(sqlDB)
	logger.Info("Repositories initialized")

	identityService := service.NewIdentityService(sqlDB, userRepo, accountRepo, workspaceRepo, memberRepo, inviteRepo, logger)
	adminService := service.NewAdminService(sqlDB, adminRepo, memberRepo, workspaceRepo, userRepo, redisClient, logger)
	gateway := syncgw.NewGateway(sqlDB, logger)
	logger.Info("Service layer initialized")

	identityHandler := api.NewIdentityHandler(identityService, logger)
	syncHandler := api.NewSyncHandler(gateway, logger)
	adminHandler := api.NewAdminHandler(adminService, gateway, logger)

	router := api.NewRouter(cfg, identityHandler, syncHandler, adminHandler, identityService, adminService, logger)
	logger.Info("HTTP router initialized")

	var gcScheduler *cron.Cron
	if cfg.GCEnabled {
		gcScheduler = cron.New()
		retention := time.Duration(cfg.GCRetentionSeconds) * time.Second
		_, err := gcScheduler.AddFunc(cfg.GCCron, func() {
			runGCSweep(context.Background(), sqlDB, gateway, retention, logger)
		})
		if err != nil {
			logger.WithError(err).Error("Failed to schedule GC sweep, continuing without it")
		} else {
			gcScheduler.Start()
			defer gcScheduler.Stop()
			logger.WithField("cron", cfg.GCCron).Info("GC scheduler started")
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Sync gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down sync gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Sync gateway stopped")
}

// runGCSweep sweeps every workspace with a version counter, since the cron
// job has no per-workspace trigger to key off.
func runGCSweep(ctx context.Context, sqlDB *sqlx.DB, gateway *syncgw.Gateway, retention time.Duration, logger *logrus.Logger) {
	var workspaceIDs []string
	if err := sqlDB.SelectContext(ctx, &workspaceIDs, `SELECT workspace_id FROM server_version_counters`); err != nil {
		logger.WithError(err).Error("gc sweep: failed to list workspaces")
		return
	}
	for _, wsID := range workspaceIDs {
		if n, err := gateway.GCChangeLog(ctx, wsID, retention); err != nil {
			logger.WithError(err).WithField("workspace_id", wsID).Error("gc sweep: change log gc failed")
		} else if n > 0 {
			logger.WithFields(logrus.Fields{"workspace_id": wsID, "deleted": n}).Info("gc sweep: change log rows reclaimed")
		}
		if n, err := gateway.GCTombstones(ctx, wsID, retention); err != nil {
			logger.WithError(err).WithField("workspace_id", wsID).Error("gc sweep: tombstone gc failed")
		} else if n > 0 {
			logger.WithFields(logrus.Fields{"workspace_id": wsID, "deleted": n}).Info("gc sweep: tombstones reclaimed")
		}
	}
}
