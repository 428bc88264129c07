package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/doctoc/scheduling-api/internal/model"
)

// CalendarConfigRepository supplies raw doctor calendar configuration from
// the organization store.
type CalendarConfigRepository interface {
	GetCalendarConfig(ctx context.Context, orgID, doctorID uuid.UUID) (*model.RawCalendarConfig, error)
	ListDoctorIDs(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error)
}

// BusyRangeRepository supplies one day's existing, non-cancelled bookings as
// UTC instant ranges. Implementations filter out cancelled appointments; the
// engine treats every returned range as live occupancy. The location is the
// doctor's schedule timezone and defines the day's boundaries.
type BusyRangeRepository interface {
	ListBusyRanges(ctx context.Context, orgID, doctorID uuid.UUID, day model.DayKey, loc *time.Location) ([]model.BusyRange, error)
}
