package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/doctoc/scheduling-api/internal/cache"
	"github.com/doctoc/scheduling-api/internal/config"
	"github.com/doctoc/scheduling-api/internal/repository/postgres"
	"github.com/doctoc/scheduling-api/internal/schedule"
	availabilityService "github.com/doctoc/scheduling-api/internal/service/availability"
	"github.com/doctoc/scheduling-api/internal/worker"
	"github.com/doctoc/scheduling-api/pkg/logger"
	"github.com/doctoc/scheduling-api/pkg/metrics"
)

func setupHealthCheck(rootLogger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			rootLogger.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}

func main() {
	rootLogger := logger.New(nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	orgIDs := make([]uuid.UUID, 0, len(cfg.Worker.OrganizationIDs))
	for _, raw := range cfg.Worker.OrganizationIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Fatal().Str("organization_id", raw).Msg("invalid organization ID in worker config")
		}
		orgIDs = append(orgIDs, id)
	}
	if len(orgIDs) == 0 {
		log.Fatal().Msg("worker requires at least one organization ID")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	store, err := cache.NewSnapshotStore(cache.Config{
		URL:          cfg.Redis.URL,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		TTL:          cfg.Worker.SnapshotTTL,
	}, rootLogger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer store.Close()

	m := metrics.NewMetrics("scheduling", "worker")

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

	snapshotWorker := worker.NewSnapshotWorker(
		availabilitySvc,
		calendarRepo,
		store,
		worker.SnapshotWorkerConfig{
			OrganizationIDs: orgIDs,
			Interval:        cfg.Worker.Interval,
			LookaheadDays:   cfg.Worker.LookaheadDays,
		},
		m,
		rootLogger,
	)

	setupHealthCheck(rootLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down...")
		cancel()
	}()

	snapshotWorker.Start(ctx)
}
