package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/doctoc/scheduling-api/internal/cache"
	"github.com/doctoc/scheduling-api/internal/model"
	"github.com/doctoc/scheduling-api/internal/repository"
	"github.com/doctoc/scheduling-api/internal/service/availability"
	"github.com/doctoc/scheduling-api/pkg/metrics"
)

type SnapshotWorkerConfig struct {
	OrganizationIDs []uuid.UUID
	Interval        time.Duration
	LookaheadDays   int
}

// SnapshotWorker periodically precomputes each doctor's day-availability
// window and stores it in Redis, so calendar views can be served from a
// snapshot instead of fanning out to the booking store per request.
type SnapshotWorker struct {
	svc       *availability.Service
	calendars repository.CalendarConfigRepository
	store     *cache.SnapshotStore
	config    SnapshotWorkerConfig
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewSnapshotWorker(
	svc *availability.Service,
	calendars repository.CalendarConfigRepository,
	store *cache.SnapshotStore,
	config SnapshotWorkerConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *SnapshotWorker {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.LookaheadDays <= 0 {
		config.LookaheadDays = 30
	}
	return &SnapshotWorker{
		svc:       svc,
		calendars: calendars,
		store:     store,
		config:    config,
		metrics:   m,
		logger:    logger,
	}
}

func (w *SnapshotWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info().
		Int("organizations", len(w.config.OrganizationIDs)).
		Int("lookahead_days", w.config.LookaheadDays).
		Msg("starting availability snapshot worker")

	w.runAll(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("shutting down availability snapshot worker")
			return
		case <-ticker.C:
			w.runAll(ctx)
		}
	}
}

func (w *SnapshotWorker) runAll(ctx context.Context) {
	for _, orgID := range w.config.OrganizationIDs {
		if ctx.Err() != nil {
			return
		}
		if err := w.snapshotOrganization(ctx, orgID); err != nil {
			w.metrics.SnapshotRuns.WithLabelValues("error").Inc()
			w.logger.Error().
				Err(err).
				Str("organization_id", orgID.String()).
				Msg("failed to snapshot organization availability")
			continue
		}
		w.metrics.SnapshotRuns.WithLabelValues("success").Inc()
	}
}

func (w *SnapshotWorker) snapshotOrganization(ctx context.Context, orgID uuid.UUID) error {
	timer := prometheus.NewTimer(w.metrics.SnapshotLatency)
	defer timer.ObserveDuration()

	doctorIDs, err := w.calendars.ListDoctorIDs(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to list doctors: %w", err)
	}

	from := model.DayKeyFor(time.Now())
	to := model.DayKeyFor(time.Now().AddDate(0, 0, w.config.LookaheadDays-1))

	for _, doctorID := range doctorIDs {
		summaries, err := w.svc.DaysAvailability(ctx, orgID, doctorID, from, to)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			w.logger.Warn().
				Err(err).
				Str("doctor_id", doctorID.String()).
				Msg("skipping doctor snapshot")
			continue
		}
		if err := w.store.PutDaySummaries(ctx, orgID, doctorID, summaries); err != nil {
			w.logger.Warn().
				Err(err).
				Str("doctor_id", doctorID.String()).
				Msg("failed to store doctor snapshot")
		}
	}
	return nil
}
