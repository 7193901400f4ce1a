package modbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solarcharge/internal/models"
)

type scriptedClient struct {
	mu           sync.Mutex
	opens        int
	closes       int
	openErr      error
	readErr      error
	failuresLeft int
	block        RegisterBlock
	writes       []writtenParam
}

type writtenParam struct {
	register uint16
	value    uint16
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{block: fullBlock()}
}

func (c *scriptedClient) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	return c.openErr
}

func (c *scriptedClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *scriptedClient) ReadTelemetryBlock() (RegisterBlock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failuresLeft > 0 {
		c.failuresLeft--
		return RegisterBlock{}, errors.New("read failed")
	}
	if c.readErr != nil {
		return RegisterBlock{}, c.readErr
	}
	return c.block, nil
}

func (c *scriptedClient) WriteParameter(register uint16, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, writtenParam{register: register, value: value})
	return nil
}

func (c *scriptedClient) setReadErr(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

func (c *scriptedClient) setFailures(n int) {
	c.mu.Lock()
	c.failuresLeft = n
	c.mu.Unlock()
}

func (c *scriptedClient) counts() (opens, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens, c.closes
}

type recordingStore struct {
	mu        sync.Mutex
	statuses  map[string][]string
	snapshots map[string]int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		statuses:  make(map[string][]string),
		snapshots: make(map[string]int),
	}
}

func (r *recordingStore) UpdateStatus(ctx context.Context, code, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[code] = append(r.statuses[code], status)
	return nil
}

func (r *recordingStore) UpdateSnapshot(ctx context.Context, code string, snap models.TelemetrySnapshot, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[code]++
	return nil
}

func (r *recordingStore) snapshotCount(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[code]
}

func (r *recordingStore) sawStatus(code, status string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses[code] {
		if s == status {
			return true
		}
	}
	return false
}

func testConfig() PollerConfig {
	return PollerConfig{
		Interval:       10 * time.Millisecond,
		ReadTimeout:    50 * time.Millisecond,
		ReconnectPause: time.Millisecond,
	}
}

func startPoller(t *testing.T, clients map[string]*scriptedClient, store *recordingStore) (*Poller, context.CancelFunc) {
	t.Helper()
	factory := func(inv models.Inverter) (DeviceClient, error) {
		client, ok := clients[inv.Code]
		if !ok {
			return nil, errors.New("no scripted client for " + inv.Code)
		}
		return client, nil
	}
	poller := NewPoller(testConfig(), factory, store, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	for code := range clients {
		require.NoError(t, poller.Watch(ctx, models.Inverter{Code: code, Host: "127.0.0.1", Port: 502}))
	}
	t.Cleanup(func() {
		cancel()
		poller.Wait()
	})
	return poller, cancel
}

func TestPollerStoresSnapshots(t *testing.T) {
	client := newScriptedClient()
	store := newRecordingStore()
	startPoller(t, map[string]*scriptedClient{"INV001": client}, store)

	assert.Eventually(t, func() bool {
		return store.snapshotCount("INV001") >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestPollerMarksErrorAndReconnects(t *testing.T) {
	client := newScriptedClient()
	client.setReadErr(errors.New("connection reset"))
	store := newRecordingStore()
	startPoller(t, map[string]*scriptedClient{"INV002": client}, store)

	assert.Eventually(t, func() bool {
		return store.sawStatus("INV002", models.InverterError)
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		opens, closes := client.counts()
		return opens >= 2 && closes >= 1
	}, time.Second, 5*time.Millisecond)

	// Device recovers: polling resumes without intervention.
	client.setReadErr(nil)
	assert.Eventually(t, func() bool {
		return store.snapshotCount("INV002") >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestPollerReconnectsAfterSingleFailure(t *testing.T) {
	client := newScriptedClient()
	client.setFailures(1)
	store := newRecordingStore()
	startPoller(t, map[string]*scriptedClient{"INV005": client}, store)

	// One failed read is enough: status goes to error and the connection is
	// dropped and re-dialed before the next cycle.
	assert.Eventually(t, func() bool {
		return store.sawStatus("INV005", models.InverterError)
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		opens, closes := client.counts()
		return opens >= 2 && closes >= 1
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return store.snapshotCount("INV005") >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestPollerIsolatesFailingDevice(t *testing.T) {
	healthy := newScriptedClient()
	broken := newScriptedClient()
	broken.setReadErr(errors.New("timeout"))
	store := newRecordingStore()
	startPoller(t, map[string]*scriptedClient{"GOOD": healthy, "BAD": broken}, store)

	assert.Eventually(t, func() bool {
		return store.snapshotCount("GOOD") >= 3
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, store.snapshotCount("BAD"))
}

func TestPollerRestart(t *testing.T) {
	client := newScriptedClient()
	store := newRecordingStore()
	poller, _ := startPoller(t, map[string]*scriptedClient{"INV003": client}, store)

	assert.Eventually(t, func() bool {
		opens, _ := client.counts()
		return opens == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, poller.Restart("INV003"))

	assert.Eventually(t, func() bool {
		opens, closes := client.counts()
		return opens >= 2 && closes >= 1
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, poller.Restart("UNKNOWN"), ErrInverterNotPolled)
}

func TestPollerSetParameter(t *testing.T) {
	client := newScriptedClient()
	store := newRecordingStore()
	poller, _ := startPoller(t, map[string]*scriptedClient{"INV004": client}, store)

	assert.Eventually(t, func() bool {
		opens, _ := client.counts()
		return opens >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, poller.SetParameter("INV004", "active_power_limit_pct", 80))

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.writes, 1)
	assert.Equal(t, uint16(40125), client.writes[0].register)
	assert.Equal(t, uint16(800), client.writes[0].value)

	assert.ErrorIs(t, poller.SetParameter("INV004", "nope", 1), ErrParameterNotSupported)
}
