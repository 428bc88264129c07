package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/doctoc/scheduling-api/internal/model"
)

// DefaultIntervalMinutes is the slot length used when the caller does not
// configure one.
const DefaultIntervalMinutes = 30

const clockLayout = "15:04"

// GenerateSlots produces the ordered candidate slots for one calendar day.
// It is a pure function of its inputs: no I/O, no clock reads, restartable.
//
// Block resolution: the first date override whose range covers the day and
// whose per-date map defines an entry for it wins, even when that entry is
// an empty list (the doctor does not attend, regardless of the weekly
// schedule). Otherwise the weekly blocks for the weekday apply. Neither
// yielding blocks is a normal outcome, not an error.
//
// Each block is tiled from its start minute in steps of intervalMinutes.
// The loop emits a slot whenever the step starts strictly before the block
// end, so a trailing slot may extend past the nominal block boundary; block
// ends act as last-slot-start limits, and downstream consumers rely on that
// tiling.
func GenerateSlots(day model.DayKey, cfg *model.ScheduleConfig, intervalMinutes int) ([]model.Slot, error) {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultIntervalMinutes
	}

	isoDate, err := day.ISODate()
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", cfg.Timezone, err)
	}
	date, err := day.Date(loc)
	if err != nil {
		return nil, err
	}

	blocks := resolveBlocks(cfg, isoDate, model.WeekdayOf(date))
	if len(blocks) == 0 {
		return nil, nil
	}

	year, month, dayOfMonth := date.Date()
	var slots []model.Slot
	for _, block := range blocks {
		startMin, err := parseClock(block.Start)
		if err != nil {
			continue // unparseable block, skip rather than fail the day
		}
		endMin, err := parseClock(block.End)
		if err != nil {
			continue
		}
		for minutes := startMin; minutes < endMin; minutes += intervalMinutes {
			// time.Date normalizes the minute offset in the schedule
			// timezone, which keeps DST transitions correct and rolls a
			// midnight-crossing trailing slot into the next day.
			start := time.Date(year, month, dayOfMonth, 0, minutes, 0, 0, loc)
			end := time.Date(year, month, dayOfMonth, 0, minutes+intervalMinutes, 0, 0, loc)
			slots = append(slots, model.Slot{
				StartUTC:   start.UTC(),
				EndUTC:     end.UTC(),
				StartLocal: start.Format(clockLayout),
				EndLocal:   end.Format(clockLayout),
			})
		}
	}
	return slots, nil
}

func resolveBlocks(cfg *model.ScheduleConfig, isoDate string, day model.Weekday) []model.TimeBlock {
	for _, o := range cfg.Overrides {
		if !o.Contains(isoDate) {
			continue
		}
		if blocks, ok := o.DaySchedules[isoDate]; ok {
			return blocks
		}
	}
	return cfg.Weekly[day]
}

// parseClock converts an HH:MM wall-clock string to its minute of day.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	hours, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return hours*60 + minutes, nil
}
