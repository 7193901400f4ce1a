package ws

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStationNotConnected is returned when a control command targets a station
// with no live connection. Callers report it, they do not retry.
var ErrStationNotConnected = errors.New("ws: station not connected")

// StationConn is the connection handle the registry tracks.
type StationConn interface {
	StationCode() string
	Ping() error
	Close() error
	WriteJSON(v any) error
}

// Manager tracks at most one live connection per station. Registering a new
// connection for a station displaces (closes) the previous one.
type Manager struct {
	mu           sync.RWMutex
	connections  map[string]StationConn
	pingInterval time.Duration
}

// NewManager builds connection manager.
func NewManager(pingInterval time.Duration) *Manager {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Manager{
		connections:  make(map[string]StationConn),
		pingInterval: pingInterval,
	}
}

// Add registers a connection, closing any previous one for the same station.
func (m *Manager) Add(conn StationConn) {
	m.mu.Lock()
	old, hadOld := m.connections[conn.StationCode()]
	m.connections[conn.StationCode()] = conn
	m.mu.Unlock()

	if hadOld && old != conn {
		_ = old.Close()
	}
}

// Remove unregisters the connection, but only if it is still the registered
// one. A displaced connection must not evict its replacement.
func (m *Manager) Remove(stationCode string, conn StationConn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.connections[stationCode]; ok && current == conn {
		delete(m.connections, stationCode)
	}
}

// Get returns the live connection for a station.
func (m *Manager) Get(stationCode string) (StationConn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[stationCode]
	if !ok {
		return nil, ErrStationNotConnected
	}
	return conn, nil
}

// IsConnected reports whether the station has a live connection.
func (m *Manager) IsConnected(stationCode string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.connections[stationCode]
	return ok
}

// ConnectedStations lists stations with a live connection.
func (m *Manager) ConnectedStations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	codes := make([]string, 0, len(m.connections))
	for code := range m.connections {
		codes = append(codes, code)
	}
	return codes
}

// CloseAll closes every registered connection. Used during shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := make([]StationConn, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.connections = make(map[string]StationConn)
	m.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// Start begins the ping loop keeping connections alive.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			for _, conn := range m.connections {
				_ = conn.Ping()
			}
			m.mu.RUnlock()
		}
	}
}
