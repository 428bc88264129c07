package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doctoc/scheduling-api/internal/model"
	"github.com/doctoc/scheduling-api/internal/schedule"
	availabilityService "github.com/doctoc/scheduling-api/internal/service/availability"
)

type stubCalendars struct {
	raw *model.RawCalendarConfig
	err error
}

func (s *stubCalendars) GetCalendarConfig(_ context.Context, _, _ uuid.UUID) (*model.RawCalendarConfig, error) {
	return s.raw, s.err
}

func (s *stubCalendars) ListDoctorIDs(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

type stubBookings struct {
	busy  map[model.DayKey][]model.BusyRange
	err   error
	calls int32
}

func (s *stubBookings) ListBusyRanges(_ context.Context, _, _ uuid.UUID, day model.DayKey, _ *time.Location) ([]model.BusyRange, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.busy[day], nil
}

type stubSnapshots struct {
	summaries []model.DaySummary
	ok        bool
}

func (s *stubSnapshots) GetDaySummaries(_ context.Context, _, _ uuid.UUID) ([]model.DaySummary, bool) {
	return s.summaries, s.ok
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

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T, calendars *stubCalendars, bookings *stubBookings, snapshots SnapshotReader) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	normalizer := schedule.NewNormalizer("America/Lima", schedule.DefaultMaxConcurrent, zerolog.Nop())
	svc := availabilityService.NewService(calendars, bookings, normalizer, nil, zerolog.Nop(), availabilityService.Config{})
	h := NewHandler(svc, snapshots, zerolog.Nop())

	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doRequest(r *gin.Engine, url string) (*httptest.ResponseRecorder, apiResponse) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	r.ServeHTTP(w, req)

	var resp apiResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestGetSlots(t *testing.T) {
	r := setupRouter(t, &stubCalendars{raw: weeklyMondayConfig(t)}, &stubBookings{}, nil)

	url := fmt.Sprintf("/api/v1/organizations/%s/doctors/%s/slots?date=17-03-2025", uuid.New(), uuid.New())
	w, resp := doRequest(r, url)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", resp.Status)

	var dayAvail model.DayAvailability
	require.NoError(t, json.Unmarshal(resp.Data, &dayAvail))
	assert.Equal(t, model.DayKey("17-03-2025"), dayAvail.Day)
	require.Len(t, dayAvail.Slots, 2)
	assert.Equal(t, "10:00", dayAvail.Slots[0].StartLocal)
	assert.True(t, dayAvail.Slots[0].Available)
}

func TestGetSlotsRejectsMalformedDate(t *testing.T) {
	r := setupRouter(t, &stubCalendars{raw: weeklyMondayConfig(t)}, &stubBookings{}, nil)

	url := fmt.Sprintf("/api/v1/organizations/%s/doctors/%s/slots?date=2025-03-17", uuid.New(), uuid.New())
	w, resp := doRequest(r, url)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", resp.Status)
}

func TestGetSlotsRejectsInvalidDoctorID(t *testing.T) {
	r := setupRouter(t, &stubCalendars{raw: weeklyMondayConfig(t)}, &stubBookings{}, nil)

	url := fmt.Sprintf("/api/v1/organizations/%s/doctors/not-a-uuid/slots?date=17-03-2025", uuid.New())
	w, _ := doRequest(r, url)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDays(t *testing.T) {
	r := setupRouter(t, &stubCalendars{raw: weeklyMondayConfig(t)}, &stubBookings{}, nil)

	url := fmt.Sprintf("/api/v1/organizations/%s/doctors/%s/days?from=17-03-2025&to=23-03-2025", uuid.New(), uuid.New())
	w, resp := doRequest(r, url)

	require.Equal(t, http.StatusOK, w.Code)

	var summaries []model.DaySummary
	require.NoError(t, json.Unmarshal(resp.Data, &summaries))
	require.Len(t, summaries, 7)
	assert.True(t, summaries[0].Bookable, "the Monday carries slots")
	assert.False(t, summaries[1].Bookable)
}

func TestGetDaysRejectsInvertedRange(t *testing.T) {
	r := setupRouter(t, &stubCalendars{raw: weeklyMondayConfig(t)}, &stubBookings{}, nil)

	url := fmt.Sprintf("/api/v1/organizations/%s/doctors/%s/days?from=23-03-2025&to=17-03-2025", uuid.New(), uuid.New())
	w, _ := doRequest(r, url)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDaysServedFromSnapshot(t *testing.T) {
	bookings := &stubBookings{}
	snapshots := &stubSnapshots{
		ok: true,
		summaries: []model.DaySummary{
			{Day: "17-03-2025", Bookable: true},
			{Day: "18-03-2025", Bookable: false},
		},
	}
	r := setupRouter(t, &stubCalendars{raw: weeklyMondayConfig(t)}, bookings, snapshots)

	url := fmt.Sprintf("/api/v1/organizations/%s/doctors/%s/days?from=17-03-2025&to=18-03-2025", uuid.New(), uuid.New())
	w, resp := doRequest(r, url)

	require.Equal(t, http.StatusOK, w.Code)

	var summaries []model.DaySummary
	require.NoError(t, json.Unmarshal(resp.Data, &summaries))
	require.Len(t, summaries, 2)
	assert.True(t, summaries[0].Bookable)
	assert.Zero(t, atomic.LoadInt32(&bookings.calls), "snapshot hit must not touch the booking store")
}

// mismatchedZone picks a timezone whose current calendar date differs from
// the server's, with enough of its day left that a full-day schedule still
// has upcoming slots. Exercises the case where a doctor's "today" is not the
// server's "today".
func mismatchedZone(t *testing.T) (string, *time.Location) {
	t.Helper()
	serverToday := model.DayKeyFor(time.Now())
	for offset := -12; offset <= 14; offset++ {
		// Etc/GMT names carry the inverted POSIX sign: Etc/GMT+5 is UTC-5.
		name := fmt.Sprintf("Etc/GMT%+d", -offset)
		loc, err := time.LoadLocation(name)
		if err != nil {
			continue
		}
		now := time.Now().In(loc)
		if model.DayKeyFor(now) != serverToday && now.Hour() <= 20 {
			return name, loc
		}
	}
	t.Fatal("no timezone with a different calendar date available")
	return "", nil
}

func TestGetDaysSnapshotReevaluatesDoctorsCurrentDate(t *testing.T) {
	tz, loc := mismatchedZone(t)
	doctorToday := model.DayKeyFor(time.Now().In(loc))

	// No schedule at all: live evaluation of any day yields not bookable.
	raw := &model.RawCalendarConfig{Timezone: tz}
	snapshots := &stubSnapshots{
		ok:        true,
		summaries: []model.DaySummary{{Day: doctorToday, Bookable: true}},
	}
	r := setupRouter(t, &stubCalendars{raw: raw}, &stubBookings{}, snapshots)

	url := fmt.Sprintf("/api/v1/organizations/%s/doctors/%s/days?from=%s&to=%s",
		uuid.New(), uuid.New(), doctorToday, doctorToday)
	w, resp := doRequest(r, url)

	require.Equal(t, http.StatusOK, w.Code)

	var summaries []model.DaySummary
	require.NoError(t, json.Unmarshal(resp.Data, &summaries))
	require.Len(t, summaries, 1)
	assert.False(t, summaries[0].Bookable,
		"the doctor's current date must be re-evaluated live, not served from the snapshot")
}

func fullDayConfig(t *testing.T, tz string) *model.RawCalendarConfig {
	t.Helper()
	payload := fmt.Sprintf(`{
		"timezone": %q,
		"horarios": {
			"g": {
				"t": {
					"horariesFijo": {
						"Monday":    [{"id": 1, "start": "00:00", "end": "22:00"}],
						"Tuesday":   [{"id": 1, "start": "00:00", "end": "22:00"}],
						"Wednesday": [{"id": 1, "start": "00:00", "end": "22:00"}],
						"Thursday":  [{"id": 1, "start": "00:00", "end": "22:00"}],
						"Friday":    [{"id": 1, "start": "00:00", "end": "22:00"}],
						"Saturday":  [{"id": 1, "start": "00:00", "end": "22:00"}],
						"Sunday":    [{"id": 1, "start": "00:00", "end": "22:00"}]
					}
				}
			}
		}
	}`, tz)
	var raw model.RawCalendarConfig
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	return &raw
}

func TestGetDaysSnapshotKeepsDegradedFlagForToday(t *testing.T) {
	tz, loc := mismatchedZone(t)
	doctorToday := model.DayKeyFor(time.Now().In(loc))

	bookings := &stubBookings{err: errors.New("booking store down")}
	snapshots := &stubSnapshots{
		ok:        true,
		summaries: []model.DaySummary{{Day: doctorToday, Bookable: false}},
	}
	r := setupRouter(t, &stubCalendars{raw: fullDayConfig(t, tz)}, bookings, snapshots)

	url := fmt.Sprintf("/api/v1/organizations/%s/doctors/%s/days?from=%s&to=%s",
		uuid.New(), uuid.New(), doctorToday, doctorToday)
	w, resp := doRequest(r, url)

	require.Equal(t, http.StatusOK, w.Code)

	var summaries []model.DaySummary
	require.NoError(t, json.Unmarshal(resp.Data, &summaries))
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].Degraded, "a degraded live re-evaluation must stay observable")
	assert.True(t, summaries[0].Bookable, "degraded evaluation assumes no bookings")
}

func TestGetDaysPartialSnapshotFallsBackToLive(t *testing.T) {
	bookings := &stubBookings{}
	snapshots := &stubSnapshots{
		ok:        true,
		summaries: []model.DaySummary{{Day: "17-03-2025", Bookable: true}},
	}
	r := setupRouter(t, &stubCalendars{raw: weeklyMondayConfig(t)}, bookings, snapshots)

	url := fmt.Sprintf("/api/v1/organizations/%s/doctors/%s/days?from=17-03-2025&to=18-03-2025", uuid.New(), uuid.New())
	w, resp := doRequest(r, url)

	require.Equal(t, http.StatusOK, w.Code)

	var summaries []model.DaySummary
	require.NoError(t, json.Unmarshal(resp.Data, &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&bookings.calls), "only the scheduled Monday needs a fetch")
}

func TestGetSchedule(t *testing.T) {
	r := setupRouter(t, &stubCalendars{raw: weeklyMondayConfig(t)}, &stubBookings{}, nil)

	url := fmt.Sprintf("/api/v1/organizations/%s/doctors/%s/schedule", uuid.New(), uuid.New())
	w, resp := doRequest(r, url)

	require.Equal(t, http.StatusOK, w.Code)

	var cfg model.ScheduleConfig
	require.NoError(t, json.Unmarshal(resp.Data, &cfg))
	assert.Equal(t, "America/Lima", cfg.Timezone)
	assert.Len(t, cfg.Weekly[model.Monday], 1)
}
