package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	api "github.com/fieldserve/booking-core/internal/api/http"
	"github.com/fieldserve/booking-core/internal/api/http/router"
	"github.com/fieldserve/booking-core/internal/cache"
	"github.com/fieldserve/booking-core/internal/config"
	"github.com/fieldserve/booking-core/internal/db"
	"github.com/fieldserve/booking-core/internal/repository"
	"github.com/fieldserve/booking-core/internal/service"
	"github.com/fieldserve/booking-core/pkg/logs"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP-сервер ядра",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logs.New(logs.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		FileEnabled: cfg.Logging.FileEnabled,
		FilePath:    cfg.Logging.FilePath,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
		Compress:    cfg.Logging.Compress,
		ServiceName: "booking-core",
		Environment: cfg.Server.Environment,
	})

	gdb, err := db.NewGormDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	// Репозитории.
	technicians := repository.NewGormTechnicianRepository(gdb)
	services := repository.NewGormServiceRepository(gdb)
	bookings := repository.NewGormBookingRepository(gdb)
	timeOff := repository.NewGormTimeOffRepository(gdb)
	hours := repository.NewGormBusinessHoursRepository(gdb)
	events := repository.NewGormEventRepository(gdb)

	// Бэкенд кэша: Redis при заданном адресе, иначе таблица БД.
	var store repository.AvailabilityCacheStore = repository.NewGormCacheRepository(gdb)
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		store = cache.NewRedisStore(rdb)
		log.Info("availability cache backend: redis", "addr", cfg.Redis.Addr)
	} else {
		log.Info("availability cache backend: database table")
	}

	// Сервисы.
	engine := service.NewAvailabilityService(technicians, services, bookings, timeOff, hours)
	cacheSvc := service.NewAvailabilityCacheService(
		store, engine, time.Duration(cfg.Cache.TTLMinutes)*time.Minute, log)
	locks := repository.NewTechnicianLocks()
	bookingSvc := service.NewBookingService(gdb, bookings, events, services, engine, cacheSvc, locks, log)
	timeOffSvc := service.NewTimeOffService(gdb, timeOff, technicians, cacheSvc, log)
	technicianSvc := service.NewTechnicianService(technicians, hours, cacheSvc, log)

	r := router.NewRouter(bookingSvc, engine, cacheSvc, timeOffSvc, technicianSvc)
	srv := api.NewServer(cfg.Server, r, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Фоновая чистка протухших записей кэша.
	go cacheSvc.Run(ctx, time.Duration(cfg.Cache.EvictionIntervalMin)*time.Minute)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	return nil
}
