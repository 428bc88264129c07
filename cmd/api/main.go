package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/doctoc/scheduling-api/internal/cache"
	"github.com/doctoc/scheduling-api/internal/config"
	"github.com/doctoc/scheduling-api/internal/handler"
	availabilityHandler "github.com/doctoc/scheduling-api/internal/handler/availability"
	"github.com/doctoc/scheduling-api/internal/middleware"
	"github.com/doctoc/scheduling-api/internal/repository/postgres"
	"github.com/doctoc/scheduling-api/internal/router"
	"github.com/doctoc/scheduling-api/internal/schedule"
	availabilityService "github.com/doctoc/scheduling-api/internal/service/availability"
	"github.com/doctoc/scheduling-api/pkg/logger"
	"github.com/doctoc/scheduling-api/pkg/metrics"
)

func main() {
	rootLogger := logger.New(nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m := metrics.NewMetrics("scheduling", "api")

	calendarRepo := postgres.NewCalendarConfigRepository(db, m)
	busyRangeRepo := postgres.NewBusyRangeRepository(db, m)

	normalizer := schedule.NewNormalizer(
		cfg.Scheduling.DefaultTimezone,
		cfg.Scheduling.DefaultMaxConcurrent,
		rootLogger,
	)
	availabilitySvc := availabilityService.NewService(
		calendarRepo,
		busyRangeRepo,
		normalizer,
		m,
		rootLogger,
		availabilityService.Config{
			IntervalMinutes:  cfg.Scheduling.SlotIntervalMinutes,
			FetchConcurrency: cfg.Scheduling.FetchConcurrency,
			ScheduleCacheTTL: cfg.Scheduling.ScheduleCacheTTL,
		},
	)

	// Snapshots are optional: without Redis the API just computes live.
	var snapshots availabilityHandler.SnapshotReader
	if cfg.Redis.URL != "" {
		store, err := cache.NewSnapshotStore(cache.Config{
			URL:          cfg.Redis.URL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			TTL:          cfg.Worker.SnapshotTTL,
		}, rootLogger)
		if err != nil {
			log.Warn().Err(err).Msg("snapshot store unavailable, serving live availability only")
		} else {
			defer store.Close()
			snapshots = store
		}
	}

	h := handler.NewHandler(db)
	availabilityH := availabilityHandler.NewHandler(availabilitySvc, snapshots, rootLogger)

	r := router.NewRouter(availabilityH, h, router.RouterConfig{
		RateLimit:      rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:      cfg.RateLimit.Burst,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSConfig:     middleware.DefaultCORSConfig(),
		MetricsPrefix:  "scheduling_api",
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
