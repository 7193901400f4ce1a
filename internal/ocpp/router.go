package ocpp

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"solarcharge/internal/ocpp/protocol"
)

// HandlerFunc processes a CALL payload and returns the response body.
type HandlerFunc func(ctx context.Context, stationCode string, payload json.RawMessage) (interface{}, error)

// Router dispatches OCPP actions to handlers.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter returns router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register attaches handler to action.
func (r *Router) Register(action string, handler HandlerFunc) {
	r.handlers[action] = handler
}

// FrameLogRepository persists raw wire frames for audit.
type FrameLogRepository interface {
	Save(ctx context.Context, stationCode, direction, action string, payload []byte) error
}

// Processor ties together routing and response encoding for inbound CALLs.
// Handler failures never propagate: they become CALLERROR replies.
type Processor struct {
	router  *Router
	logRepo FrameLogRepository
	logger  *zap.Logger
}

// NewProcessor builds Processor.
func NewProcessor(router *Router, logRepo FrameLogRepository, logger *zap.Logger) *Processor {
	return &Processor{
		router:  router,
		logRepo: logRepo,
		logger:  logger,
	}
}

// HandleCall routes one inbound CALL frame and returns the reply frame bytes.
// Unknown actions yield a NotSupported CALLERROR, handler errors an
// InternalError CALLERROR.
func (p *Processor) HandleCall(ctx context.Context, stationCode string, frame *Frame) []byte {
	if p.logRepo != nil {
		_ = p.logRepo.Save(ctx, stationCode, "incoming", frame.Action, frame.Payload)
	}

	handler, ok := p.router.handlers[frame.Action]
	if !ok {
		p.logger.Warn("unsupported ocpp action",
			zap.String("station_code", stationCode),
			zap.String("action", frame.Action))
		return p.encodeError(ctx, stationCode, frame, protocol.ErrorNotSupported, "action "+frame.Action+" not supported")
	}

	responsePayload, err := handler(ctx, stationCode, frame.Payload)
	if err != nil {
		p.logger.Warn("ocpp handler failed",
			zap.String("station_code", stationCode),
			zap.String("action", frame.Action),
			zap.Error(err))
		return p.encodeError(ctx, stationCode, frame, protocol.ErrorInternalError, err.Error())
	}

	respBytes, err := BuildCallResult(frame.UniqueID, responsePayload)
	if err != nil {
		p.logger.Error("encode ocpp response failed",
			zap.String("station_code", stationCode),
			zap.String("action", frame.Action),
			zap.Error(err))
		return nil
	}

	if p.logRepo != nil {
		_ = p.logRepo.Save(ctx, stationCode, "outgoing", frame.Action, respBytes)
	}

	return respBytes
}

func (p *Processor) encodeError(ctx context.Context, stationCode string, frame *Frame, code, description string) []byte {
	respBytes, err := BuildCallError(frame.UniqueID, code, description)
	if err != nil {
		p.logger.Error("encode ocpp error failed", zap.Error(err))
		return nil
	}
	if p.logRepo != nil {
		_ = p.logRepo.Save(ctx, stationCode, "outgoing", frame.Action, respBytes)
	}
	return respBytes
}
