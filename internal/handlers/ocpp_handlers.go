package handlers

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"solarcharge/internal/ocpp"
	"solarcharge/internal/ocpp/protocol"
	"solarcharge/internal/service"
)

// OCPPHandlers translates inbound protocol actions into charging service
// calls. Every handler answers; fire-and-forget notifications still return
// their empty ack payload.
type OCPPHandlers struct {
	charging          *service.ChargingService
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

// NewOCPPHandlers builds handlers.
func NewOCPPHandlers(charging *service.ChargingService, heartbeatInterval time.Duration, logger *zap.Logger) *OCPPHandlers {
	return &OCPPHandlers{
		charging:          charging,
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
	}
}

// Register attaches all station-initiated actions to the router.
func (h *OCPPHandlers) Register(router *ocpp.Router) {
	router.Register(protocol.ActionBootNotification, h.BootNotification)
	router.Register(protocol.ActionHeartbeat, h.Heartbeat)
	router.Register(protocol.ActionStatusNotification, h.StatusNotification)
	router.Register(protocol.ActionAuthorize, h.Authorize)
	router.Register(protocol.ActionStartTransaction, h.StartTransaction)
	router.Register(protocol.ActionStopTransaction, h.StopTransaction)
	router.Register(protocol.ActionMeterValues, h.MeterValues)
}

// BootNotification registers or refreshes the station record and hands back
// the heartbeat cadence.
func (h *OCPPHandlers) BootNotification(ctx context.Context, stationCode string, payload json.RawMessage) (interface{}, error) {
	req, err := ocpp.Decode[protocol.BootNotificationRequest](payload)
	if err != nil {
		return nil, err
	}

	status := protocol.StatusAccepted
	if err := h.charging.OnBootNotification(ctx, stationCode, req); err != nil {
		h.logger.Error("boot notification rejected",
			zap.String("station_code", stationCode),
			zap.Error(err))
		status = protocol.StatusRejected
	}

	return protocol.BootNotificationResponse{
		Status:      status,
		CurrentTime: time.Now().UTC(),
		Interval:    int(h.heartbeatInterval.Seconds()),
	}, nil
}

// Heartbeat refreshes liveness and returns server time.
func (h *OCPPHandlers) Heartbeat(ctx context.Context, stationCode string, _ json.RawMessage) (interface{}, error) {
	now := time.Now().UTC()
	h.charging.OnHeartbeat(ctx, stationCode, now)
	return protocol.HeartbeatResponse{CurrentTime: now}, nil
}

// StatusNotification records station and connector status.
func (h *OCPPHandlers) StatusNotification(ctx context.Context, stationCode string, payload json.RawMessage) (interface{}, error) {
	req, err := ocpp.Decode[protocol.StatusNotificationRequest](payload)
	if err != nil {
		return nil, err
	}
	h.charging.OnStatusNotification(ctx, stationCode, req)
	return protocol.StatusNotificationResponse{}, nil
}

// Authorize accepts every tag: access control happens before the remote
// start command ever reaches the station.
func (h *OCPPHandlers) Authorize(ctx context.Context, stationCode string, payload json.RawMessage) (interface{}, error) {
	req, err := ocpp.Decode[protocol.AuthorizeRequest](payload)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("authorize",
		zap.String("station_code", stationCode),
		zap.String("id_tag", req.IdTag))
	return protocol.AuthorizeResponse{
		IdTagInfo: IdTagAccepted(),
	}, nil
}

// StartTransaction admits the station's start event and returns the assigned
// transaction id.
func (h *OCPPHandlers) StartTransaction(ctx context.Context, stationCode string, payload json.RawMessage) (interface{}, error) {
	req, err := ocpp.Decode[protocol.StartTransactionRequest](payload)
	if err != nil {
		return nil, err
	}

	txID, accepted, err := h.charging.OnStartTransaction(ctx, stationCode, req)
	if err != nil {
		return nil, err
	}
	info := IdTagAccepted()
	if !accepted {
		info = protocol.IdTagInfo{Status: protocol.StatusRejected}
	}
	return protocol.StartTransactionResponse{
		TransactionID: txID,
		IdTagInfo:     info,
	}, nil
}

// StopTransaction settles the referenced session.
func (h *OCPPHandlers) StopTransaction(ctx context.Context, stationCode string, payload json.RawMessage) (interface{}, error) {
	req, err := ocpp.Decode[protocol.StopTransactionRequest](payload)
	if err != nil {
		return nil, err
	}
	if err := h.charging.OnStopTransaction(ctx, stationCode, req); err != nil {
		return nil, err
	}
	return protocol.StopTransactionResponse{IdTagInfo: IdTagAccepted()}, nil
}

// MeterValues updates running energy for the session.
func (h *OCPPHandlers) MeterValues(ctx context.Context, stationCode string, payload json.RawMessage) (interface{}, error) {
	req, err := ocpp.Decode[protocol.MeterValuesRequest](payload)
	if err != nil {
		return nil, err
	}
	h.charging.OnMeterValues(ctx, stationCode, req)
	return struct{}{}, nil
}

// IdTagAccepted is the affirmative authorization verdict.
func IdTagAccepted() protocol.IdTagInfo {
	return protocol.IdTagInfo{Status: protocol.StatusAccepted}
}
