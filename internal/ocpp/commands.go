package ocpp

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CommandStatus tracks an outbound request through its lifecycle.
type CommandStatus string

var idGenerator = uuid.NewString

const (
	CommandStatusQueued   CommandStatus = "queued"
	CommandStatusPending  CommandStatus = "pending"
	CommandStatusAccepted CommandStatus = "accepted"
	CommandStatusRejected CommandStatus = "rejected"
	CommandStatusFailed   CommandStatus = "failed"
	CommandStatusTimeout  CommandStatus = "timeout"
)

// CommandResult is delivered to the enqueuer's callback once the station
// replies (or the request times out). Compliance is always asynchronous:
// the enqueue call itself only reports whether the send could be attempted.
type CommandResult struct {
	CommandID   string
	MessageID   string
	StationCode string
	Action      string
	Status      CommandStatus
	Attempts    int
	Payload     map[string]any
	Err         error
	OccurredAt  time.Time
}

// CommandSnapshot is a copy of a command's current state.
type CommandSnapshot struct {
	ID            string         `json:"id"`
	StationCode   string         `json:"stationCode"`
	Action        string         `json:"action"`
	Status        CommandStatus  `json:"status"`
	Attempts      int            `json:"attempts"`
	MaxAttempts   int            `json:"maxAttempts"`
	LastMessageID string         `json:"lastMessageId"`
	LastError     string         `json:"lastError,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	Payload       map[string]any `json:"payload"`
	LastResponse  map[string]any `json:"lastResponse,omitempty"`
}

// CommandCallback observes the terminal result of a command.
type CommandCallback func(CommandResult)

// CommandManagerConfig tunes pending-request tracking.
type CommandManagerConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	Logger      *zap.Logger
}

type command struct {
	mu            sync.Mutex
	id            string
	stationCode   string
	action        string
	payload       map[string]any
	status        CommandStatus
	attempts      int
	maxAttempts   int
	timeout       time.Duration
	createdAt     time.Time
	updatedAt     time.Time
	lastError     string
	lastMessageID string
	lastResponse  map[string]any
	timer         *time.Timer
	callback      CommandCallback
}

func newCommand(stationCode, action string, payload map[string]any, timeout time.Duration, maxAttempts int) *command {
	now := time.Now().UTC()
	return &command{
		id:          idGenerator(),
		stationCode: stationCode,
		action:      action,
		payload:     payload,
		status:      CommandStatusQueued,
		maxAttempts: maxAttempts,
		timeout:     timeout,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (c *command) snapshot() CommandSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CommandSnapshot{
		ID:            c.id,
		StationCode:   c.stationCode,
		Action:        c.action,
		Status:        c.status,
		Attempts:      c.attempts,
		MaxAttempts:   c.maxAttempts,
		LastMessageID: c.lastMessageID,
		LastError:     c.lastError,
		CreatedAt:     c.createdAt,
		UpdatedAt:     c.updatedAt,
		Payload:       cloneMap(c.payload),
		LastResponse:  cloneMap(c.lastResponse),
	}
}

func (c *command) updateStatus(status CommandStatus, messageID string, response map[string]any, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
	if messageID != "" {
		c.lastMessageID = messageID
	}
	if response != nil {
		c.lastResponse = response
	}
	c.lastError = errMsg
	c.updatedAt = time.Now().UTC()
}

func (c *command) markSent(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = CommandStatusPending
	c.lastMessageID = messageID
	c.attempts++
	c.updatedAt = time.Now().UTC()
}

func (c *command) resetForRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = CommandStatusQueued
	c.lastMessageID = ""
	c.lastResponse = nil
	c.updatedAt = time.Now().UTC()
}

func (c *command) setTimer(timer *time.Timer) {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = timer
	c.mu.Unlock()
}

func (c *command) stopTimer() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
}

func (c *command) getCallback() CommandCallback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback
}

func (c *command) attemptsInfo() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts, c.maxAttempts
}

func (c *command) actionAndPayload() (string, map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payloadCopy := make(map[string]any, len(c.payload))
	for k, v := range c.payload {
		payloadCopy[k] = v
	}
	return c.action, payloadCopy
}

// SendConn is the write half of a station connection as the command
// manager sees it.
type SendConn interface {
	WriteJSON(v any) error
	Close() error
}

type stationQueue struct {
	stationCode string
	manager     *CommandManager

	mu      sync.Mutex
	conn    SendConn
	queue   []*command
	pending map[string]*command
}

// CommandManager tracks every outbound CALL awaiting a correlated reply.
// One command per station is in flight at a time; the rest wait in a queue
// that survives reconnects.
type CommandManager struct {
	mu       sync.Mutex
	queues   map[string]*stationQueue
	commands map[string]*command
	timeout  time.Duration
	attempts int
	logger   *zap.Logger
}

// NewCommandManager builds a manager with the given timeout/retry policy.
func NewCommandManager(cfg CommandManagerConfig) *CommandManager {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandManager{
		queues:   make(map[string]*stationQueue),
		commands: make(map[string]*command),
		timeout:  timeout,
		attempts: attempts,
		logger:   logger,
	}
}

func (m *CommandManager) getOrCreateQueueLocked(stationCode string) *stationQueue {
	q, ok := m.queues[stationCode]
	if !ok {
		q = &stationQueue{
			stationCode: stationCode,
			manager:     m,
			pending:     make(map[string]*command),
		}
		m.queues[stationCode] = q
	}
	return q
}

// AttachConnection binds a live connection to the station's queue and flushes
// anything waiting. A previous connection for the same station is closed.
func (m *CommandManager) AttachConnection(stationCode string, conn SendConn) {
	m.mu.Lock()
	q := m.getOrCreateQueueLocked(stationCode)
	q.mu.Lock()
	oldConn := q.conn
	q.conn = conn
	q.mu.Unlock()
	m.mu.Unlock()

	if oldConn != nil && oldConn != conn {
		_ = oldConn.Close()
	}

	q.flush()
}

// DetachConnection drops the binding and requeues any in-flight commands so a
// reconnect picks them up.
func (m *CommandManager) DetachConnection(stationCode string, conn SendConn) {
	m.mu.Lock()
	q, ok := m.queues[stationCode]
	if !ok {
		m.mu.Unlock()
		return
	}
	q.mu.Lock()
	if q.conn == conn {
		q.conn = nil
	}
	pending := make([]*command, 0, len(q.pending))
	for _, cmd := range q.pending {
		pending = append(pending, cmd)
	}
	q.pending = make(map[string]*command)
	q.mu.Unlock()
	m.mu.Unlock()

	for _, cmd := range pending {
		cmd.stopTimer()
		cmd.resetForRetry()
		cmd.updateStatus(CommandStatusQueued, "", nil, "connection lost")
		q.requeueFront(cmd)
	}
}

// Enqueue queues an outbound CALL for the station and returns immediately.
func (m *CommandManager) Enqueue(stationCode, action string, payload map[string]any, cb CommandCallback) (CommandSnapshot, error) {
	stationCode = strings.TrimSpace(stationCode)
	action = strings.TrimSpace(action)
	if stationCode == "" {
		return CommandSnapshot{}, errors.New("station code is required")
	}
	if action == "" {
		return CommandSnapshot{}, errors.New("action is required")
	}
	if payload == nil {
		payload = make(map[string]any)
	}

	cmd := newCommand(stationCode, action, payload, m.timeout, m.attempts)
	cmd.callback = cb

	m.mu.Lock()
	m.commands[cmd.id] = cmd
	q := m.getOrCreateQueueLocked(stationCode)
	m.mu.Unlock()

	q.enqueue(cmd)
	m.logger.Debug("command queued",
		zap.String("station_code", stationCode),
		zap.String("action", action),
		zap.String("command_id", cmd.id))

	return cmd.snapshot(), nil
}

// Snapshot returns the current state of a command by id.
func (m *CommandManager) Snapshot(commandID string) (CommandSnapshot, bool) {
	m.mu.Lock()
	cmd, ok := m.commands[commandID]
	m.mu.Unlock()
	if !ok {
		return CommandSnapshot{}, false
	}
	return cmd.snapshot(), true
}

// HandleCallResult correlates an inbound CALLRESULT with its pending command.
// Unmatched message ids are a protocol violation: logged and discarded.
func (m *CommandManager) HandleCallResult(stationCode, messageID string, payload map[string]any) {
	q := m.getQueue(stationCode)
	if q == nil {
		m.logger.Warn("call result for unknown station",
			zap.String("station_code", stationCode),
			zap.String("message_id", messageID))
		return
	}
	cmd := q.takePending(messageID)
	if cmd == nil {
		m.logger.Warn("call result with unmatched correlation id",
			zap.String("station_code", stationCode),
			zap.String("message_id", messageID))
		return
	}
	cmd.stopTimer()

	status := strings.TrimSpace(responseStatus(payload))
	var finalStatus CommandStatus
	var errMsg string
	var cbErr error
	switch strings.ToLower(status) {
	case "accepted", "":
		finalStatus = CommandStatusAccepted
	case "rejected":
		finalStatus = CommandStatusRejected
	default:
		finalStatus = CommandStatusFailed
		errMsg = fmt.Sprintf("unexpected status: %s", status)
		cbErr = errors.New(errMsg)
	}

	cmd.updateStatus(finalStatus, messageID, payload, errMsg)
	snap := cmd.snapshot()
	m.logger.Info("command completed",
		zap.String("station_code", stationCode),
		zap.String("action", snap.Action),
		zap.String("command_id", snap.ID),
		zap.String("status", string(finalStatus)),
		zap.Int("attempts", snap.Attempts))

	m.notify(cmd, CommandResult{
		CommandID:   snap.ID,
		MessageID:   messageID,
		StationCode: stationCode,
		Action:      snap.Action,
		Status:      finalStatus,
		Attempts:    snap.Attempts,
		Payload:     payload,
		Err:         cbErr,
		OccurredAt:  time.Now().UTC(),
	})

	q.flush()
}

// HandleCallError correlates an inbound CALLERROR with its pending command.
func (m *CommandManager) HandleCallError(stationCode, messageID, errorCode, description string, details map[string]any) {
	q := m.getQueue(stationCode)
	if q == nil {
		m.logger.Warn("call error for unknown station",
			zap.String("station_code", stationCode),
			zap.String("message_id", messageID))
		return
	}
	cmd := q.takePending(messageID)
	if cmd == nil {
		m.logger.Warn("call error with unmatched correlation id",
			zap.String("station_code", stationCode),
			zap.String("message_id", messageID))
		return
	}
	cmd.stopTimer()

	errMsg := fmt.Sprintf("%s: %s", errorCode, description)
	cmd.updateStatus(CommandStatusFailed, messageID, details, errMsg)
	snap := cmd.snapshot()
	m.logger.Warn("command failed",
		zap.String("station_code", stationCode),
		zap.String("action", snap.Action),
		zap.String("command_id", snap.ID),
		zap.String("error", errMsg))

	m.notify(cmd, CommandResult{
		CommandID:   snap.ID,
		MessageID:   messageID,
		StationCode: stationCode,
		Action:      snap.Action,
		Status:      CommandStatusFailed,
		Attempts:    snap.Attempts,
		Payload:     details,
		Err:         errors.New(errMsg),
		OccurredAt:  time.Now().UTC(),
	})

	q.flush()
}

func (m *CommandManager) handleTimeout(stationCode, messageID string) {
	q := m.getQueue(stationCode)
	if q == nil {
		return
	}

	cmd := q.takePending(messageID)
	if cmd == nil {
		return
	}

	cmd.stopTimer()
	attempts, maxAttempts := cmd.attemptsInfo()

	if attempts >= maxAttempts {
		cmd.updateStatus(CommandStatusTimeout, messageID, nil, "maximum attempts reached")
		snap := cmd.snapshot()
		m.logger.Error("command abandoned after timeout",
			zap.String("station_code", stationCode),
			zap.String("action", snap.Action),
			zap.String("command_id", snap.ID),
			zap.Int("attempts", snap.Attempts))
		m.notify(cmd, CommandResult{
			CommandID:   snap.ID,
			MessageID:   messageID,
			StationCode: stationCode,
			Action:      snap.Action,
			Status:      CommandStatusTimeout,
			Attempts:    snap.Attempts,
			Err:         fmt.Errorf("command timeout after %d attempts", snap.Attempts),
			OccurredAt:  time.Now().UTC(),
		})
		return
	}

	cmd.resetForRetry()
	q.requeueFront(cmd)
	snap := cmd.snapshot()
	m.logger.Warn("command timeout, retrying",
		zap.String("station_code", stationCode),
		zap.String("action", snap.Action),
		zap.String("command_id", snap.ID),
		zap.Int("attempt", attempts+1),
		zap.Int("max_attempts", maxAttempts))
}

func (m *CommandManager) notify(cmd *command, result CommandResult) {
	if cb := cmd.getCallback(); cb != nil {
		go cb(result)
	}
}

func (m *CommandManager) getQueue(stationCode string) *stationQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queues[stationCode]
}

func (q *stationQueue) enqueue(cmd *command) {
	q.mu.Lock()
	q.queue = append(q.queue, cmd)
	q.mu.Unlock()
	q.flush()
}

func (q *stationQueue) flush() {
	for {
		cmd, conn := q.next()
		if cmd == nil || conn == nil {
			return
		}
		if err := q.send(conn, cmd); err != nil {
			q.handleSendError(conn, cmd, err)
			return
		}
	}
}

func (q *stationQueue) next() (*command, SendConn) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.conn == nil || len(q.pending) > 0 || len(q.queue) == 0 {
		return nil, nil
	}
	cmd := q.queue[0]
	q.queue = q.queue[1:]
	return cmd, q.conn
}

func (q *stationQueue) send(conn SendConn, cmd *command) error {
	messageID := idGenerator()
	action, payloadData := cmd.actionAndPayload()
	frame := []any{float64(TypeCall), messageID, action, payloadData}
	if err := conn.WriteJSON(frame); err != nil {
		return err
	}

	cmd.markSent(messageID)
	timer := time.AfterFunc(cmd.timeout, func() {
		q.manager.handleTimeout(q.stationCode, messageID)
	})
	cmd.setTimer(timer)

	q.mu.Lock()
	q.pending[messageID] = cmd
	q.mu.Unlock()

	snap := cmd.snapshot()
	q.manager.logger.Debug("command sent",
		zap.String("station_code", q.stationCode),
		zap.String("action", snap.Action),
		zap.String("message_id", messageID),
		zap.Int("attempt", snap.Attempts))
	return nil
}

func (q *stationQueue) takePending(messageID string) *command {
	q.mu.Lock()
	defer q.mu.Unlock()
	cmd, ok := q.pending[messageID]
	if ok {
		delete(q.pending, messageID)
	}
	return cmd
}

func (q *stationQueue) requeueFront(cmd *command) {
	q.mu.Lock()
	q.queue = append([]*command{cmd}, q.queue...)
	q.mu.Unlock()
	q.flush()
}

func (q *stationQueue) handleSendError(conn SendConn, cmd *command, err error) {
	q.manager.logger.Warn("send command failed",
		zap.String("station_code", q.stationCode),
		zap.String("action", cmd.snapshot().Action),
		zap.Error(err))
	cmd.stopTimer()
	cmd.updateStatus(CommandStatusQueued, "", nil, fmt.Sprintf("send command failed: %v", err))
	cmd.resetForRetry()

	q.mu.Lock()
	if q.conn == conn {
		q.conn = nil
	}
	q.queue = append([]*command{cmd}, q.queue...)
	q.mu.Unlock()

	_ = conn.Close()
}

func responseStatus(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload["status"].(string); ok {
		return v
	}
	return ""
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
