package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"solarcharge/internal/models"
)

// TelemetryStore keeps the most recent reading per inverter so status
// queries never touch the field bus.
type TelemetryStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTelemetryStore returns redis-backed store.
func NewTelemetryStore(client *redis.Client, ttl time.Duration) *TelemetryStore {
	return &TelemetryStore{client: client, ttl: ttl}
}

func (s *TelemetryStore) key(inverterCode string) string {
	return fmt.Sprintf("inverters:telemetry:%s", inverterCode)
}

// Set overwrites the cached snapshot.
func (s *TelemetryStore) Set(ctx context.Context, inverterCode string, snap models.TelemetrySnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(inverterCode), data, s.ttl).Err()
}

// Get returns the cached snapshot, or redis.Nil when nothing is cached.
func (s *TelemetryStore) Get(ctx context.Context, inverterCode string) (*models.TelemetrySnapshot, error) {
	result, err := s.client.Get(ctx, s.key(inverterCode)).Result()
	if err != nil {
		return nil, err
	}
	var snap models.TelemetrySnapshot
	if err := json.Unmarshal([]byte(result), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
