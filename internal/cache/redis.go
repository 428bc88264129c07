package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/doctoc/scheduling-api/internal/model"
	"github.com/doctoc/scheduling-api/pkg/circuitbreaker"
)

// SnapshotStore keeps precomputed day-availability windows in Redis so
// calendar views can render without recomputing a month of availability
// per request. Snapshots are advisory: a missing or expired snapshot just
// means the caller computes live.
type SnapshotStore struct {
	client *redis.Client
	cb     *circuitbreaker.CircuitBreaker
	logger zerolog.Logger
	ttl    time.Duration
}

type Config struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	TTL          time.Duration
}

func NewSnapshotStore(config Config, logger zerolog.Logger) (*SnapshotStore, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := config.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &SnapshotStore{
		client: client,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "availability-snapshots",
			MaxRequests: 100,
			Interval:    10 * time.Second,
			Timeout:     5 * time.Second,
		}),
		logger: logger,
		ttl:    ttl,
	}, nil
}

func snapshotKey(orgID, doctorID uuid.UUID) string {
	return fmt.Sprintf("availability:%s:%s", orgID, doctorID)
}

// PutDaySummaries stores one doctor's availability window, replacing any
// previous snapshot.
func (s *SnapshotStore) PutDaySummaries(ctx context.Context, orgID, doctorID uuid.UUID, summaries []model.DaySummary) error {
	payload, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.cb.Execute(func() error {
		return s.client.Set(ctx, snapshotKey(orgID, doctorID), payload, s.ttl).Err()
	})
}

// GetDaySummaries loads a doctor's snapshot. ok=false means no snapshot is
// present (or Redis is unavailable); callers fall back to live evaluation.
func (s *SnapshotStore) GetDaySummaries(ctx context.Context, orgID, doctorID uuid.UUID) ([]model.DaySummary, bool) {
	var payload []byte
	err := s.cb.Execute(func() error {
		var err error
		payload, err = s.client.Get(ctx, snapshotKey(orgID, doctorID)).Bytes()
		return err
	})
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("snapshot lookup failed")
		}
		return nil, false
	}

	var summaries []model.DaySummary
	if err := json.Unmarshal(payload, &summaries); err != nil {
		s.logger.Warn().Err(err).Msg("discarding undecodable snapshot")
		return nil, false
	}
	return summaries, true
}

func (s *SnapshotStore) Close() error {
	return s.client.Close()
}
