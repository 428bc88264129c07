package schedule

import (
	"time"

	"github.com/doctoc/scheduling-api/internal/model"
)

// Overlaps reports whether two half-open UTC intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Touching endpoints do not count.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Evaluate decides whether a slot can still accept a booking under the
// given overbooking policy. Capacity is 1 without overbooking, otherwise
// the configured concurrency limit. Every overlapping busy range counts as
// one occupied unit; ranges are never merged because each represents one
// real appointment. A slot at exactly capacity is not available.
func Evaluate(slot model.Slot, busy []model.BusyRange, policy model.OverbookingPolicy) model.Availability {
	capacity := 1
	if policy.AllowOverbooking {
		capacity = policy.MaxConcurrent
		if capacity <= 0 {
			capacity = DefaultMaxConcurrent
		}
	}

	occupied := 0
	for _, b := range busy {
		if Overlaps(slot.StartUTC, slot.EndUTC, b.Start, b.End) {
			occupied++
		}
	}

	return model.Availability{
		Available: occupied < capacity,
		Occupied:  occupied,
		Capacity:  capacity,
	}
}

// EvaluateAll pairs every candidate slot with its evaluation, preserving
// generation order.
func EvaluateAll(slots []model.Slot, busy []model.BusyRange, policy model.OverbookingPolicy) []model.SlotAvailability {
	out := make([]model.SlotAvailability, 0, len(slots))
	for _, slot := range slots {
		out = append(out, model.SlotAvailability{
			Slot:         slot,
			Availability: Evaluate(slot, busy, policy),
		})
	}
	return out
}

// BookableSlots filters the day's candidates down to those still bookable.
func BookableSlots(day model.DayKey, cfg *model.ScheduleConfig, busy []model.BusyRange, intervalMinutes int) ([]model.Slot, error) {
	slots, err := GenerateSlots(day, cfg, intervalMinutes)
	if err != nil {
		return nil, err
	}
	policy := cfg.Policy()
	var bookable []model.Slot
	for _, slot := range slots {
		if Evaluate(slot, busy, policy).Available {
			bookable = append(bookable, slot)
		}
	}
	return bookable, nil
}
