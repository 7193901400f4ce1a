package service

import (
	"sync"
	"time"

	"solarcharge/internal/models"
)

// ConnectorState holds minimal connector info.
type ConnectorState struct {
	Status string
}

// StationRuntimeState keeps runtime info per station.
type StationRuntimeState struct {
	Status        string
	LastHeartbeat time.Time
	Connectors    map[int]ConnectorState
}

// StationState keeps track of in-memory station data for quick lookups.
// It is shared by the protocol engines and the status queries, so every
// access goes through the lock; critical sections are status-sized.
type StationState struct {
	mu       sync.RWMutex
	stations map[string]*StationRuntimeState
}

// NewStationState returns state store.
func NewStationState() *StationState {
	return &StationState{
		stations: make(map[string]*StationRuntimeState),
	}
}

func (s *StationState) stateLocked(stationCode string) *StationRuntimeState {
	state, ok := s.stations[stationCode]
	if !ok {
		state = &StationRuntimeState{Connectors: make(map[int]ConnectorState)}
		s.stations[stationCode] = state
	}
	return state
}

// UpdateStatus updates station status.
func (s *StationState) UpdateStatus(stationCode, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateLocked(stationCode).Status = status
}

// UpdateConnector updates connector-level status.
func (s *StationState) UpdateConnector(stationCode string, connectorID int, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateLocked(stationCode).Connectors[connectorID] = ConnectorState{Status: status}
}

// Heartbeat records the time a station was last heard from.
func (s *StationState) Heartbeat(stationCode string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateLocked(stationCode).LastHeartbeat = at
}

// IsOnline reports whether the station's last heartbeat is younger than the
// online window. The check is independent of the status field; a heartbeat
// aged exactly the window counts as offline.
func (s *StationState) IsOnline(stationCode string, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.stations[stationCode]
	if !ok || state.LastHeartbeat.IsZero() {
		return false
	}
	return now.Sub(state.LastHeartbeat) < models.HeartbeatOnlineWindow
}

// Snapshot returns a copy of current state map.
func (s *StationState) Snapshot() map[string]StationRuntimeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]StationRuntimeState, len(s.stations))
	for code, st := range s.stations {
		copyState := StationRuntimeState{
			Status:        st.Status,
			LastHeartbeat: st.LastHeartbeat,
			Connectors:    make(map[int]ConnectorState, len(st.Connectors)),
		}
		for cid, conn := range st.Connectors {
			copyState.Connectors[cid] = conn
		}
		result[code] = copyState
	}
	return result
}
