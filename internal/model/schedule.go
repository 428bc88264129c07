package model

import (
	"fmt"
	"time"
)

// Weekday is a fixed seven-value enum keyed by English day name. The raw
// calendar data keys weekly schedules by name, so parsing goes through
// ParseWeekday instead of trusting arbitrary strings.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
	"Sunday",
}

func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

// MarshalText lets Weekday serve as a JSON map key.
func (d Weekday) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Weekday) UnmarshalText(b []byte) error {
	day, ok := ParseWeekday(string(b))
	if !ok {
		return fmt.Errorf("invalid weekday: %q", string(b))
	}
	*d = day
	return nil
}

// ParseWeekday resolves an English day name. Unknown names report ok=false
// rather than erroring, matching the lenient normalizer contract.
func ParseWeekday(name string) (Weekday, bool) {
	for i, n := range weekdayNames {
		if n == name {
			return Weekday(i), true
		}
	}
	return 0, false
}

// WeekdayOf converts from the standard library's Sunday-based weekday.
func WeekdayOf(t time.Time) Weekday {
	switch t.Weekday() {
	case time.Sunday:
		return Sunday
	default:
		return Weekday(int(t.Weekday()) - 1)
	}
}

// TimeBlock is a half-open local-time interval [Start, End) in HH:MM
// wall-clock form, scoped to a weekday or a specific date.
type TimeBlock struct {
	ID    int64  `json:"id,omitempty"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeeklySchedule maps each weekday to its ordered time blocks. Multiple
// blocks per day are allowed (e.g. morning + afternoon shifts).
type WeeklySchedule map[Weekday][]TimeBlock

// DateOverride is a dated exception window: an inclusive [StartDate, EndDate]
// range plus per-date block lists. An override entry for a date replaces the
// weekly schedule for that date entirely, including the empty-list case
// (doctor does not attend at all).
type DateOverride struct {
	ID           int64                  `json:"id"`
	StartDate    string                 `json:"startDate"` // YYYY-MM-DD
	EndDate      string                 `json:"endDate"`   // YYYY-MM-DD
	DaySchedules map[string][]TimeBlock `json:"daySchedules"`
}

// Key identifies an override for first-occurrence-wins merging.
func (o DateOverride) Key() string {
	return fmt.Sprintf("%d-%s-%s", o.ID, o.StartDate, o.EndDate)
}

// Contains reports whether the override's date range covers the given
// ISO date (YYYY-MM-DD). Lexicographic comparison is exact for this format.
func (o DateOverride) Contains(isoDate string) bool {
	return o.StartDate <= isoDate && isoDate <= o.EndDate
}

// ScheduleConfig is the canonical per-doctor schedule produced by the
// normalizer. It is derived fresh per evaluation pass and never persisted.
type ScheduleConfig struct {
	Weekly           WeeklySchedule `json:"weekly,omitempty"`
	Overrides        []DateOverride `json:"overrides,omitempty"`
	AllowOverbooking bool           `json:"allow_overbooking"`
	MaxConcurrent    int            `json:"max_concurrent"`
	Timezone         string         `json:"timezone"`
}

// HasSchedule reports whether any weekly or override data exists. False
// means the doctor has no schedule configured at all.
func (c *ScheduleConfig) HasSchedule() bool {
	return len(c.Weekly) > 0 || len(c.Overrides) > 0
}

// Policy extracts the overbooking policy used by slot evaluation.
func (c *ScheduleConfig) Policy() OverbookingPolicy {
	return OverbookingPolicy{
		AllowOverbooking: c.AllowOverbooking,
		MaxConcurrent:    c.MaxConcurrent,
	}
}

// OverbookingPolicy controls slot capacity: mutual exclusion by default,
// bounded concurrency when overbooking is allowed.
type OverbookingPolicy struct {
	AllowOverbooking bool `json:"allow_overbooking"`
	MaxConcurrent    int  `json:"max_concurrent"`
}

// BusyRange is one existing, non-cancelled appointment as a UTC instant
// interval. Each range is a single unit of occupied concurrency; overlapping
// ranges are never merged because counting is per appointment.
type BusyRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Slot is one candidate unit of bookable time, carried in both UTC and
// doctor-local wall-clock form.
type Slot struct {
	StartUTC   time.Time `json:"start_utc"`
	EndUTC     time.Time `json:"end_utc"`
	StartLocal string    `json:"start_local"` // HH:MM in the schedule timezone
	EndLocal   string    `json:"end_local"`
}

// Availability is the evaluation result for a single slot.
type Availability struct {
	Available bool `json:"available"`
	Occupied  int  `json:"occupied"`
	Capacity  int  `json:"capacity"`
}

// SlotAvailability pairs a candidate slot with its evaluation.
type SlotAvailability struct {
	Slot
	Availability
}

// DayAvailability is the full per-slot picture for one day. Degraded is set
// when the busy-range fetch failed and availability was computed against an
// empty busy list, so callers can distinguish confirmed from assumed.
type DayAvailability struct {
	Day      DayKey             `json:"day"`
	Slots    []SlotAvailability `json:"slots"`
	Degraded bool               `json:"degraded"`
}

// Bookable reports whether at least one slot is still available.
func (d *DayAvailability) Bookable() bool {
	for _, s := range d.Slots {
		if s.Available {
			return true
		}
	}
	return false
}

// DaySummary is the calendar-highlighting view of a day.
type DaySummary struct {
	Day      DayKey `json:"day"`
	Bookable bool   `json:"bookable"`
	Degraded bool   `json:"degraded"`
}
