package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP connections to WebSockets for stations.
type Server struct {
	manager      *Manager
	handler      FrameHandler
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader

	// OnConnect runs after the connection is registered; used to issue the
	// boot handshake toward the station.
	OnConnect func(stationCode string, conn *Connection)
	// OnDisconnect runs after the connection is unregistered.
	OnDisconnect func(stationCode string, conn *Connection)
}

// NewServer builds ws server.
func NewServer(manager *Manager, handler FrameHandler, writeTimeout time.Duration, logger *zap.Logger) *Server {
	return &Server{
		manager:      manager,
		handler:      handler,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is the HTTP handler for /ocpp/{stationCode}. The station code is
// the last path segment, matching how stations dial in.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	stationCode := stationCodeFromPath(r.URL.Path)
	if stationCode == "" {
		http.Error(w, "station code is required", http.StatusBadRequest)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := NewConnection(stationCode, wsConn, s.handler, s.writeTimeout, s.logger, func(code string, conn *Connection) {
		s.manager.Remove(code, conn)
		if s.OnDisconnect != nil {
			s.OnDisconnect(code, conn)
		}
		cancel()
		s.logger.Info("station disconnected", zap.String("station_code", code))
	})
	s.manager.Add(connection)

	go connection.Start(ctx)
	s.logger.Info("station connected",
		zap.String("station_code", stationCode),
		zap.String("remote_addr", r.RemoteAddr))

	if s.OnConnect != nil {
		s.OnConnect(stationCode, connection)
	}
}

func stationCodeFromPath(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}
