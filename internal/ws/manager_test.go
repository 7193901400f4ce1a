package ws

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type stubConn struct {
	code string

	mu     sync.Mutex
	closed bool
	pings  int
}

func (s *stubConn) StationCode() string { return s.code }

func (s *stubConn) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	return nil
}

func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubConn) WriteJSON(v any) error { return nil }

func (s *stubConn) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestManagerDisplacesPreviousConnection(t *testing.T) {
	manager := NewManager(time.Minute)

	first := &stubConn{code: "ST001"}
	second := &stubConn{code: "ST001"}

	manager.Add(first)
	manager.Add(second)

	if !first.isClosed() {
		t.Fatalf("expected displaced connection to be closed")
	}
	if second.isClosed() {
		t.Fatalf("replacement connection must stay open")
	}

	current, err := manager.Get("ST001")
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if current != second {
		t.Fatalf("registry must hold the newest connection")
	}
}

func TestManagerRemoveIgnoresDisplacedConnection(t *testing.T) {
	manager := NewManager(time.Minute)

	first := &stubConn{code: "ST002"}
	second := &stubConn{code: "ST002"}

	manager.Add(first)
	manager.Add(second)

	// The displaced connection's cleanup fires late; it must not evict the
	// replacement.
	manager.Remove("ST002", first)
	if !manager.IsConnected("ST002") {
		t.Fatalf("replacement connection was evicted by stale cleanup")
	}

	manager.Remove("ST002", second)
	if manager.IsConnected("ST002") {
		t.Fatalf("expected station to be disconnected")
	}
}

func TestManagerGetUnknownStation(t *testing.T) {
	manager := NewManager(time.Minute)
	if _, err := manager.Get("nope"); !errors.Is(err, ErrStationNotConnected) {
		t.Fatalf("expected ErrStationNotConnected, got %v", err)
	}
}

func TestManagerConnectedStations(t *testing.T) {
	manager := NewManager(time.Minute)
	manager.Add(&stubConn{code: "ST001"})
	manager.Add(&stubConn{code: "ST002"})

	codes := manager.ConnectedStations()
	if len(codes) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(codes))
	}
}

func TestManagerCloseAll(t *testing.T) {
	manager := NewManager(time.Minute)
	a := &stubConn{code: "ST001"}
	b := &stubConn{code: "ST002"}
	manager.Add(a)
	manager.Add(b)

	manager.CloseAll()

	if !a.isClosed() || !b.isClosed() {
		t.Fatalf("expected all connections closed")
	}
	if manager.IsConnected("ST001") || manager.IsConnected("ST002") {
		t.Fatalf("expected registry to be empty")
	}
}
