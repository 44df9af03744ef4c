package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/config"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/logger"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/metrics"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/migrate"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/repo"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName+"-sweeper")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.StoreBackend != config.BackendPostgres {
		log.Fatal("sweeper requires STORE_BACKEND=postgres", zap.String("backend", cfg.StoreBackend))
	}
	if _, err := migrate.Ensure(cfg.DatabaseURL); err != nil {
		log.Fatal("migrations", zap.Error(err))
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("db.DB", zap.Error(err))
	}
	defer func() { _ = sqlDB.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := sqlDB.PingContext(ctx); err != nil {
		log.Fatal("ping", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	s := sweeper.New(repo.NewStore(nil, db, nil, 0), log, metrics.NewCollector(reg))
	log.Info("sweeper starting", zap.Duration("interval", cfg.SweepInterval))
	runErr := s.Run(ctx, cfg.SweepInterval)
	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metrics.Push(pushCtx, cfg.PushgatewayURL, cfg.ServiceName+"-sweeper", reg); err != nil {
			log.Warn("push metrics", zap.Error(err))
		}
		cancel()
	}
	if runErr != nil {
		log.Error("sweep failed", zap.Error(runErr))
		os.Exit(1)
	}
}
