package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/doctoc/scheduling-api/internal/model"
	"github.com/doctoc/scheduling-api/internal/repository"
	"github.com/doctoc/scheduling-api/internal/schedule"
	"github.com/doctoc/scheduling-api/pkg/circuitbreaker"
	"github.com/doctoc/scheduling-api/pkg/metrics"
)

// Config tunes the availability service.
type Config struct {
	// IntervalMinutes is the slot length. Defaults to 30.
	IntervalMinutes int
	// FetchConcurrency bounds how many busy-range fetches run at once when
	// evaluating a date range. Defaults to 5.
	FetchConcurrency int
	// ScheduleCacheTTL bounds how long a normalized schedule may be reused
	// before re-deriving it from the raw config. Defaults to 1 minute.
	ScheduleCacheTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.IntervalMinutes <= 0 {
		c.IntervalMinutes = schedule.DefaultIntervalMinutes
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 5
	}
	if c.ScheduleCacheTTL <= 0 {
		c.ScheduleCacheTTL = time.Minute
	}
}

// Service answers slot- and day-level bookability questions by composing
// the pure scheduling engine with the calendar and booking stores. All
// intermediate state is scoped to the individual call, so an abandoned
// evaluation can never corrupt a later one.
type Service struct {
	calendars  repository.CalendarConfigRepository
	bookings   repository.BusyRangeRepository
	normalizer *schedule.Normalizer

	cache   *gocache.Cache
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  zerolog.Logger
	cfg     Config

	// now is swappable for tests of the today post-filter.
	now func() time.Time
}

func NewService(
	calendars repository.CalendarConfigRepository,
	bookings repository.BusyRangeRepository,
	normalizer *schedule.Normalizer,
	m *metrics.Metrics,
	logger zerolog.Logger,
	cfg Config,
) *Service {
	cfg.applyDefaults()
	return &Service{
		calendars:  calendars,
		bookings:   bookings,
		normalizer: normalizer,
		cache:      gocache.New(cfg.ScheduleCacheTTL, 2*cfg.ScheduleCacheTTL),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "busy-ranges",
			MaxRequests: 10,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
		}),
		metrics: m,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Schedule returns the canonical schedule for a doctor, normalizing the raw
// calendar config on a cache miss. The cached value is treated as an
// immutable snapshot.
func (s *Service) Schedule(ctx context.Context, orgID, doctorID uuid.UUID) (*model.ScheduleConfig, error) {
	key := orgID.String() + ":" + doctorID.String()
	if cached, ok := s.cache.Get(key); ok {
		s.countCacheLookup("hit")
		return cached.(*model.ScheduleConfig), nil
	}
	s.countCacheLookup("miss")

	raw, err := s.calendars.GetCalendarConfig(ctx, orgID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load calendar config: %w", err)
	}

	cfg, stats := s.normalizer.Normalize(raw)
	if skipped := stats.Skipped(); skipped > 0 && s.metrics != nil {
		s.metrics.NormalizerSkips.Add(float64(skipped))
	}

	s.cache.SetDefault(key, cfg)
	return cfg, nil
}

// SlotsForDay returns every candidate slot of the day with its evaluation.
// A busy-range fetch failure degrades to schedule-only availability instead
// of hiding the day; the result is flagged so callers can tell assumed
// availability from confirmed.
func (s *Service) SlotsForDay(ctx context.Context, orgID, doctorID uuid.UUID, day model.DayKey) (*model.DayAvailability, error) {
	cfg, err := s.Schedule(ctx, orgID, doctorID)
	if err != nil {
		return nil, err
	}
	return s.slotsForDay(ctx, orgID, doctorID, day, cfg)
}

// HasBookableSlot reports whether the day has at least one available slot.
func (s *Service) HasBookableSlot(ctx context.Context, orgID, doctorID uuid.UUID, day model.DayKey) (bool, error) {
	dayAvail, err := s.SlotsForDay(ctx, orgID, doctorID, day)
	if err != nil {
		return false, err
	}
	return dayAvail.Bookable(), nil
}

// DaysAvailability evaluates an inclusive day range with a bounded fan-out:
// at most FetchConcurrency busy-range fetches are in flight at once. Each
// day is computed independently from its own fetch; a failed fetch degrades
// that day only. Cancelling the context abandons the evaluation.
func (s *Service) DaysAvailability(ctx context.Context, orgID, doctorID uuid.UUID, from, to model.DayKey) ([]model.DaySummary, error) {
	cfg, err := s.Schedule(ctx, orgID, doctorID)
	if err != nil {
		return nil, err
	}
	days, err := model.DayKeysBetween(from, to)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.DaySummary, len(days))
	sem := make(chan struct{}, s.cfg.FetchConcurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for i, day := range days {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, day model.DayKey) {
			defer wg.Done()
			defer func() { <-sem }()

			dayAvail, err := s.slotsForDay(ctx, orgID, doctorID, day, cfg)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			summaries[i] = model.DaySummary{
				Day:      day,
				Bookable: dayAvail.Bookable(),
				Degraded: dayAvail.Degraded,
			}
		}(i, day)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return summaries, nil
}

func (s *Service) slotsForDay(ctx context.Context, orgID, doctorID uuid.UUID, day model.DayKey, cfg *model.ScheduleConfig) (*model.DayAvailability, error) {
	if s.metrics != nil {
		timer := prometheus.NewTimer(s.metrics.SlotGenerationLatency)
		defer timer.ObserveDuration()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", cfg.Timezone, err)
	}

	slots, err := schedule.GenerateSlots(day, cfg, s.cfg.IntervalMinutes)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return &model.DayAvailability{Day: day}, nil
	}

	// The generator is day-granular only: for today it still emits the
	// already-elapsed slots, so they are dropped here before evaluation.
	now := s.now()
	if day == model.DayKeyFor(now.In(loc)) {
		upcoming := slots[:0]
		for _, slot := range slots {
			if !slot.StartUTC.Before(now) {
				upcoming = append(upcoming, slot)
			}
		}
		slots = upcoming
		if len(slots) == 0 {
			return &model.DayAvailability{Day: day}, nil
		}
	}

	busy, degraded, err := s.fetchBusyRanges(ctx, orgID, doctorID, day, loc)
	if err != nil {
		return nil, err
	}

	return &model.DayAvailability{
		Day:      day,
		Slots:    schedule.EvaluateAll(slots, busy, cfg.Policy()),
		Degraded: degraded,
	}, nil
}

// fetchBusyRanges pulls the day's live bookings through the circuit
// breaker. Failures degrade to an empty busy list (assume unbooked) rather
// than failing closed; cancellation is the only error propagated.
func (s *Service) fetchBusyRanges(ctx context.Context, orgID, doctorID uuid.UUID, day model.DayKey, loc *time.Location) ([]model.BusyRange, bool, error) {
	var busy []model.BusyRange
	err := s.breaker.Execute(func() error {
		var err error
		busy, err = s.bookings.ListBusyRanges(ctx, orgID, doctorID, day, loc)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		s.countFetch("error")
		if s.metrics != nil {
			s.metrics.DegradedEvaluations.Inc()
		}
		s.logger.Warn().
			Err(err).
			Str("doctor_id", doctorID.String()).
			Str("day", day.String()).
			Msg("busy-range fetch failed, falling back to schedule-only availability")
		return nil, true, nil
	}
	s.countFetch("ok")
	return busy, false, nil
}

func (s *Service) countFetch(status string) {
	if s.metrics != nil {
		s.metrics.BusyRangeFetches.WithLabelValues(status).Inc()
	}
}

func (s *Service) countCacheLookup(result string) {
	if s.metrics != nil {
		s.metrics.ScheduleCacheLookups.WithLabelValues(result).Inc()
	}
}
