package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/doctoc/scheduling-api/pkg/errors"
	"github.com/doctoc/scheduling-api/pkg/metrics"

	"github.com/doctoc/scheduling-api/internal/model"
	"github.com/doctoc/scheduling-api/internal/repository"
)

type calendarConfigRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

func NewCalendarConfigRepository(db *sqlx.DB, m *metrics.Metrics) repository.CalendarConfigRepository {
	return &calendarConfigRepository{db: db, metrics: m}
}

func (r *calendarConfigRepository) GetCalendarConfig(ctx context.Context, orgID, doctorID uuid.UUID) (*model.RawCalendarConfig, error) {
	query := `
		SELECT calendar_info
		FROM doctors
		WHERE organization_id = $1 AND id = $2
	`
	var payload []byte
	start := time.Now()
	err := r.db.GetContext(ctx, &payload, query, orgID, doctorID)
	r.observe("get_calendar_config", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("doctor", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar config: %w", err)
	}

	// An absent or malformed calendar_info column means "no schedule
	// configured", never an error: upstream config data is heterogeneous
	// and the normalizer is the place that copes with partial shapes.
	raw := &model.RawCalendarConfig{}
	if len(payload) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(payload, raw); err != nil {
		return &model.RawCalendarConfig{}, nil
	}
	return raw, nil
}

func (r *calendarConfigRepository) ListDoctorIDs(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM doctors
		WHERE organization_id = $1 AND status = 'active'
		ORDER BY id
	`
	var ids []uuid.UUID
	start := time.Now()
	err := r.db.SelectContext(ctx, &ids, query, orgID)
	r.observe("list_doctor_ids", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	return ids, nil
}

func (r *calendarConfigRepository) observe(operation string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	r.metrics.DatabaseOperations.WithLabelValues(operation, status).Inc()
	r.metrics.DatabaseLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
