package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveSession is the hot lookup record for a running charge, keyed both by
// transaction id and by station so the engines avoid a DB round trip on
// every meter report.
type ActiveSession struct {
	SessionID     int64  `json:"session_id"`
	TransactionID string `json:"transaction_id"`
	StationCode   string `json:"station_code"`
	UserID        int64  `json:"user_id"`
	MeterStart    int64  `json:"meter_start"`
}

// ActiveSessionStore manages the active session cache.
type ActiveSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewActiveSessionStore returns redis-backed store.
func NewActiveSessionStore(client *redis.Client, ttl time.Duration) *ActiveSessionStore {
	return &ActiveSessionStore{client: client, ttl: ttl}
}

func (s *ActiveSessionStore) txKey(transactionID string) string {
	return fmt.Sprintf("sessions:active:tx:%s", transactionID)
}

func (s *ActiveSessionStore) stationKey(stationCode string) string {
	return fmt.Sprintf("sessions:active:station:%s", stationCode)
}

// Save caches the session under both keys.
func (s *ActiveSessionStore) Save(ctx context.Context, session ActiveSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.txKey(session.TransactionID), data, s.ttl).Err(); err != nil {
		return err
	}
	return s.client.Set(ctx, s.stationKey(session.StationCode), data, s.ttl).Err()
}

// ByTransaction returns the cached session for a transaction id.
func (s *ActiveSessionStore) ByTransaction(ctx context.Context, transactionID string) (*ActiveSession, error) {
	return s.get(ctx, s.txKey(transactionID))
}

// ByStation returns the cached session occupying a station.
func (s *ActiveSessionStore) ByStation(ctx context.Context, stationCode string) (*ActiveSession, error) {
	return s.get(ctx, s.stationKey(stationCode))
}

func (s *ActiveSessionStore) get(ctx context.Context, key string) (*ActiveSession, error) {
	result, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	var session ActiveSession
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes both cache keys.
func (s *ActiveSessionStore) Delete(ctx context.Context, session ActiveSession) error {
	if err := s.client.Del(ctx, s.txKey(session.TransactionID)).Err(); err != nil && err != redis.Nil {
		return err
	}
	return s.client.Del(ctx, s.stationKey(session.StationCode)).Err()
}
