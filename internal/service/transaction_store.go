package service

import "sync"

// TransactionContext keeps runtime info for a live transaction.
type TransactionContext struct {
	SessionID  int64
	UserID     int64
	MeterStart int64
}

// StartIntent records an accepted remote-start command until the station
// reports the matching StartTransaction. At most one intent per station, so
// duplicate remote starts collapse into a single session.
type StartIntent struct {
	SessionID int64
	UserID    int64
	VehicleID int64
}

// TransactionStore stores contexts by transaction id and pending start
// intents by station code.
type TransactionStore struct {
	mu      sync.RWMutex
	data    map[string]TransactionContext
	intents map[string]StartIntent
}

// NewTransactionStore returns initialized store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		data:    make(map[string]TransactionContext),
		intents: make(map[string]StartIntent),
	}
}

// Set stores context for transaction.
func (s *TransactionStore) Set(txID string, ctx TransactionContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[txID] = ctx
}

// Get returns context and bool.
func (s *TransactionStore) Get(txID string) (TransactionContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, ok := s.data[txID]
	return ctx, ok
}

// Delete removes transaction context.
func (s *TransactionStore) Delete(txID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, txID)
}

// SetIntent records a pending remote-start for a station.
func (s *TransactionStore) SetIntent(stationCode string, intent StartIntent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[stationCode] = intent
}

// TakeIntent removes and returns the pending intent for a station.
func (s *TransactionStore) TakeIntent(stationCode string) (StartIntent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[stationCode]
	if ok {
		delete(s.intents, stationCode)
	}
	return intent, ok
}
