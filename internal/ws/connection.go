package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solarcharge/internal/ocpp"
)

// FrameHandler receives parsed frames from a station connection.
// CALLs are answered synchronously within the read loop so per-station
// ordering is preserved; CALLRESULT/CALLERROR feed the pending-request
// correlator.
type FrameHandler interface {
	HandleCall(ctx context.Context, stationCode string, frame *ocpp.Frame) []byte
	HandleCallResult(stationCode, messageID string, payload map[string]any)
	HandleCallError(stationCode, messageID, errorCode, description string, details map[string]any)
}

// Connection wraps one station's websocket with read/write pumps.
type Connection struct {
	stationCode  string
	ws           *websocket.Conn
	send         chan []byte
	handler      FrameHandler
	writeTimeout time.Duration
	logger       *zap.Logger
	onClose      func(stationCode string, conn *Connection)
}

// NewConnection builds connection wrapper.
func NewConnection(stationCode string, wsConn *websocket.Conn, handler FrameHandler, writeTimeout time.Duration, logger *zap.Logger, onClose func(string, *Connection)) *Connection {
	return &Connection{
		stationCode:  stationCode,
		ws:           wsConn,
		send:         make(chan []byte, 16),
		handler:      handler,
		writeTimeout: writeTimeout,
		logger:       logger,
		onClose:      onClose,
	}
}

// StationCode returns the station identifier this connection serves.
func (c *Connection) StationCode() string {
	return c.stationCode
}

// Start launches the write pump and blocks in the read pump until the
// connection dies.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.cleanup()
	c.ws.SetReadLimit(1024 * 1024)
	c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("connection read closed", zap.String("station_code", c.stationCode), zap.Error(err))
			return
		}

		c.dispatch(ctx, message)
	}
}

func (c *Connection) dispatch(ctx context.Context, message []byte) {
	frame, err := ocpp.Parse(message)
	if err != nil {
		// Malformed input is dropped, never fatal for the connection.
		c.logger.Warn("dropping malformed frame",
			zap.String("station_code", c.stationCode),
			zap.Error(err))
		return
	}

	switch frame.Type {
	case ocpp.TypeCall:
		if response := c.handler.HandleCall(ctx, c.stationCode, frame); response != nil {
			c.Send(response)
		}
	case ocpp.TypeCallResult:
		c.handler.HandleCallResult(c.stationCode, frame.UniqueID, decodeObject(frame.Payload))
	case ocpp.TypeCallError:
		c.handler.HandleCallError(c.stationCode, frame.UniqueID, frame.ErrorCode, frame.ErrorDescription, decodeObject(frame.ErrorDetails))
	}
}

func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

// Send enqueues a message for writing.
func (c *Connection) Send(msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("attempted to send on closed connection", zap.String("station_code", c.stationCode))
		}
	}()
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping outgoing message, buffer full", zap.String("station_code", c.stationCode))
	}
}

// WriteJSON marshals v and enqueues it. Used by the command manager, which
// treats a successful enqueue as "sent".
func (c *Connection) WriteJSON(v any) (err error) {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("ws: connection closed")
		}
	}()
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("ws: send buffer full")
	}
}

// Ping sends a ping control frame.
func (c *Connection) Ping() error {
	return c.write(websocket.PingMessage, []byte("ping"))
}

// Close tears down the underlying socket. The read pump notices and runs the
// usual cleanup.
func (c *Connection) Close() error {
	return c.ws.Close()
}

func (c *Connection) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Connection) cleanup() {
	close(c.send)
	_ = c.ws.Close()
	if c.onClose != nil {
		c.onClose(c.stationCode, c)
	}
}

func decodeObject(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
