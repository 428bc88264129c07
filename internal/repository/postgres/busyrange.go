package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/doctoc/scheduling-api/internal/model"
	"github.com/doctoc/scheduling-api/internal/repository"
	"github.com/doctoc/scheduling-api/pkg/metrics"
)

type busyRangeRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

func NewBusyRangeRepository(db *sqlx.DB, m *metrics.Metrics) repository.BusyRangeRepository {
	return &busyRangeRepository{db: db, metrics: m}
}

// ListBusyRanges returns the UTC occupancy intervals of every live
// appointment overlapping the doctor's local day. Cancelled appointments
// are excluded here so the availability engine never counts dead bookings.
func (r *busyRangeRepository) ListBusyRanges(ctx context.Context, orgID, doctorID uuid.UUID, day model.DayKey, loc *time.Location) ([]model.BusyRange, error) {
	dayStart, err := day.Date(loc)
	if err != nil {
		return nil, err
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	query := `
		SELECT id, organization_id, doctor_id, patient_id,
		       start_time, end_time, status, created_at, updated_at
		FROM appointments
		WHERE organization_id = $1
		  AND doctor_id = $2
		  AND status != $3
		  AND start_time < $4
		  AND end_time > $5
		ORDER BY start_time
	`
	var appointments []model.Appointment
	start := time.Now()
	err = r.db.SelectContext(ctx, &appointments, query,
		orgID,
		doctorID,
		model.AppointmentStatusCancelled,
		dayEnd,
		dayStart,
	)
	if r.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		r.metrics.DatabaseOperations.WithLabelValues("list_busy_ranges", status).Inc()
		r.metrics.DatabaseLatency.WithLabelValues("list_busy_ranges").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list busy ranges: %w", err)
	}

	ranges := make([]model.BusyRange, 0, len(appointments))
	for i := range appointments {
		ranges = append(ranges, appointments[i].BusyRange())
	}
	return ranges, nil
}
