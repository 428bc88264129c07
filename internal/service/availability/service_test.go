package availability

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doctoc/scheduling-api/internal/model"
	"github.com/doctoc/scheduling-api/internal/schedule"
)

type stubCalendars struct {
	raw   *model.RawCalendarConfig
	err   error
	calls int32
}

func (s *stubCalendars) GetCalendarConfig(_ context.Context, _, _ uuid.UUID) (*model.RawCalendarConfig, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.raw, s.err
}

func (s *stubCalendars) ListDoctorIDs(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

type stubBookings struct {
	busy  map[model.DayKey][]model.BusyRange
	err   error
	delay time.Duration

	inFlight    int32
	maxInFlight int32
	calls       int32
}

func (s *stubBookings) ListBusyRanges(ctx context.Context, _, _ uuid.UUID, day model.DayKey, _ *time.Location) ([]model.BusyRange, error) {
	atomic.AddInt32(&s.calls, 1)
	current := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		max := atomic.LoadInt32(&s.maxInFlight)
		if current <= max || atomic.CompareAndSwapInt32(&s.maxInFlight, max, current) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.busy[day], nil
}

func weeklyMondayConfig(t *testing.T) *model.RawCalendarConfig {
	t.Helper()
	payload := `{
		"timezone": "America/Lima",
		"horarios": {
			"g": {
				"t": {
					"horariesFijo": {
						"Monday": [{"id": 1, "start": "10:00", "end": "11:00"}]
					}
				}
			}
		}
	}`
	var raw model.RawCalendarConfig
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	return &raw
}

func newTestService(calendars *stubCalendars, bookings *stubBookings, cfg Config) *Service {
	normalizer := schedule.NewNormalizer("America/Lima", schedule.DefaultMaxConcurrent, zerolog.Nop())
	svc := NewService(calendars, bookings, normalizer, nil, zerolog.Nop(), cfg)
	// A fixed clock well before the test dates keeps the today filter out
	// of the way unless a test opts in.
	svc.now = func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestSlotsForDayEvaluatesAgainstBookings(t *testing.T) {
	day := model.DayKey("17-03-2025") // a Monday
	bookings := &stubBookings{
		busy: map[model.DayKey][]model.BusyRange{
			day: {{
				Start: time.Date(2025, 3, 17, 15, 0, 0, 0, time.UTC), // 10:00 Lima
				End:   time.Date(2025, 3, 17, 15, 30, 0, 0, time.UTC),
			}},
		},
	}
	svc := newTestService(&stubCalendars{raw: weeklyMondayConfig(t)}, bookings, Config{})

	dayAvail, err := svc.SlotsForDay(context.Background(), uuid.New(), uuid.New(), day)
	require.NoError(t, err)

	require.Len(t, dayAvail.Slots, 2)
	assert.False(t, dayAvail.Slots[0].Available)
	assert.True(t, dayAvail.Slots[1].Available)
	assert.False(t, dayAvail.Degraded)
	assert.True(t, dayAvail.Bookable())
}

func TestSlotsForDayDegradesOnFetchFailure(t *testing.T) {
	bookings := &stubBookings{err: errors.New("booking store down")}
	svc := newTestService(&stubCalendars{raw: weeklyMondayConfig(t)}, bookings, Config{})

	dayAvail, err := svc.SlotsForDay(context.Background(), uuid.New(), uuid.New(), model.DayKey("17-03-2025"))
	require.NoError(t, err, "fetch failure must degrade, not fail")

	assert.True(t, dayAvail.Degraded)
	require.Len(t, dayAvail.Slots, 2)
	assert.True(t, dayAvail.Slots[0].Available, "degraded evaluation assumes no bookings")
	assert.True(t, dayAvail.Slots[1].Available)
}

func TestSlotsForDayFiltersElapsedSlotsToday(t *testing.T) {
	day := model.DayKey("17-03-2025")
	svc := newTestService(&stubCalendars{raw: weeklyMondayConfig(t)}, &stubBookings{}, Config{})
	// 10:20 Lima on the target Monday: the 10:00 slot has elapsed.
	svc.now = func() time.Time {
		return time.Date(2025, 3, 17, 15, 20, 0, 0, time.UTC)
	}

	dayAvail, err := svc.SlotsForDay(context.Background(), uuid.New(), uuid.New(), day)
	require.NoError(t, err)

	require.Len(t, dayAvail.Slots, 1)
	assert.Equal(t, "10:30", dayAvail.Slots[0].StartLocal)
}

func TestSlotsForDayNoScheduleConfigured(t *testing.T) {
	bookings := &stubBookings{}
	svc := newTestService(&stubCalendars{raw: &model.RawCalendarConfig{}}, bookings, Config{})

	dayAvail, err := svc.SlotsForDay(context.Background(), uuid.New(), uuid.New(), model.DayKey("17-03-2025"))
	require.NoError(t, err)

	assert.Empty(t, dayAvail.Slots)
	assert.False(t, dayAvail.Bookable())
	assert.Zero(t, atomic.LoadInt32(&bookings.calls), "no candidate slots means no fetch")
}

func TestHasBookableSlotAllSlotsTaken(t *testing.T) {
	day := model.DayKey("17-03-2025")
	bookings := &stubBookings{
		busy: map[model.DayKey][]model.BusyRange{
			day: {
				{Start: time.Date(2025, 3, 17, 15, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 17, 15, 30, 0, 0, time.UTC)},
				{Start: time.Date(2025, 3, 17, 15, 30, 0, 0, time.UTC), End: time.Date(2025, 3, 17, 16, 0, 0, 0, time.UTC)},
			},
		},
	}
	svc := newTestService(&stubCalendars{raw: weeklyMondayConfig(t)}, bookings, Config{})

	bookable, err := svc.HasBookableSlot(context.Background(), uuid.New(), uuid.New(), day)
	require.NoError(t, err)
	assert.False(t, bookable)
}

func everyDayConfig(t *testing.T) *model.RawCalendarConfig {
	t.Helper()
	payload := `{
		"timezone": "America/Lima",
		"horarios": {
			"g": {
				"t": {
					"horariesFijo": {
						"Monday":    [{"id": 1, "start": "09:00", "end": "10:00"}],
						"Tuesday":   [{"id": 1, "start": "09:00", "end": "10:00"}],
						"Wednesday": [{"id": 1, "start": "09:00", "end": "10:00"}],
						"Thursday":  [{"id": 1, "start": "09:00", "end": "10:00"}],
						"Friday":    [{"id": 1, "start": "09:00", "end": "10:00"}],
						"Saturday":  [{"id": 1, "start": "09:00", "end": "10:00"}],
						"Sunday":    [{"id": 1, "start": "09:00", "end": "10:00"}]
					}
				}
			}
		}
	}`
	var raw model.RawCalendarConfig
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	return &raw
}

func TestDaysAvailabilityBoundedFanOut(t *testing.T) {
	bookings := &stubBookings{delay: 5 * time.Millisecond}
	svc := newTestService(&stubCalendars{raw: everyDayConfig(t)}, bookings, Config{FetchConcurrency: 5})

	summaries, err := svc.DaysAvailability(context.Background(), uuid.New(), uuid.New(),
		model.DayKey("17-03-2025"), model.DayKey("13-04-2025"))
	require.NoError(t, err)
	require.Len(t, summaries, 28)

	for _, summary := range summaries {
		assert.True(t, summary.Bookable, "day %s", summary.Day)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&bookings.maxInFlight), int32(5), "fan-out must stay bounded")
	assert.Equal(t, int32(28), atomic.LoadInt32(&bookings.calls), "one fetch per day")
}

func TestDaysAvailabilitySkipsUnscheduledDays(t *testing.T) {
	bookings := &stubBookings{}
	svc := newTestService(&stubCalendars{raw: weeklyMondayConfig(t)}, bookings, Config{})

	// One week starting on a Monday: only the Monday carries slots.
	summaries, err := svc.DaysAvailability(context.Background(), uuid.New(), uuid.New(),
		model.DayKey("17-03-2025"), model.DayKey("23-03-2025"))
	require.NoError(t, err)
	require.Len(t, summaries, 7)

	assert.True(t, summaries[0].Bookable)
	for _, summary := range summaries[1:] {
		assert.False(t, summary.Bookable, "day %s", summary.Day)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&bookings.calls), "unscheduled days need no fetch")
}

func TestDaysAvailabilityCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestService(&stubCalendars{raw: weeklyMondayConfig(t)}, &stubBookings{}, Config{})

	_, err := svc.DaysAvailability(ctx, uuid.New(), uuid.New(),
		model.DayKey("17-03-2025"), model.DayKey("23-03-2025"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScheduleCachesNormalizedConfig(t *testing.T) {
	calendars := &stubCalendars{raw: weeklyMondayConfig(t)}
	svc := newTestService(calendars, &stubBookings{}, Config{})
	orgID, doctorID := uuid.New(), uuid.New()

	first, err := svc.Schedule(context.Background(), orgID, doctorID)
	require.NoError(t, err)
	second, err := svc.Schedule(context.Background(), orgID, doctorID)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calendars.calls))
}

func TestSchedulePropagatesStoreError(t *testing.T) {
	calendars := &stubCalendars{err: errors.New("doctor not found")}
	svc := newTestService(calendars, &stubBookings{}, Config{})

	_, err := svc.Schedule(context.Background(), uuid.New(), uuid.New())
	assert.Error(t, err)
}
