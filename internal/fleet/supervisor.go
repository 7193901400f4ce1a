package fleet

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"solarcharge/internal/cache"
	"solarcharge/internal/modbus"
	"solarcharge/internal/models"
	"solarcharge/internal/ocpp"
	"solarcharge/internal/ocpp/protocol"
	"solarcharge/internal/service"
	"solarcharge/internal/ws"
)

// StationDirectory lists the configured stations.
type StationDirectory interface {
	List(ctx context.Context) ([]models.Station, error)
}

// InverterDirectory lists and fetches configured inverters.
type InverterDirectory interface {
	List(ctx context.Context) ([]models.Inverter, error)
	ByCode(ctx context.Context, code string) (*models.Inverter, error)
}

// AuditLog records control actions durably, beyond the process log stream.
type AuditLog interface {
	Insert(ctx context.Context, level, category, message string, details map[string]any) error
}

// StationOverview is one row of the fleet status report.
type StationOverview struct {
	Station   models.Station `json:"station"`
	Connected bool           `json:"connected"`
	Online    bool           `json:"online"`
}

// Supervisor is the single owner of the device fleet: station connections
// and their command queues on one side, inverter pollers on the other. All
// remote control flows through it.
type Supervisor struct {
	connections *ws.Manager
	commands    *ocpp.CommandManager
	charging    *service.ChargingService
	stations    StationDirectory
	inverters   InverterDirectory
	poller      *modbus.Poller
	telemetry   *cache.TelemetryStore
	audit       AuditLog
	logger      *zap.Logger
}

// NewSupervisor builds supervisor.
func NewSupervisor(
	connections *ws.Manager,
	commands *ocpp.CommandManager,
	charging *service.ChargingService,
	stations StationDirectory,
	inverters InverterDirectory,
	poller *modbus.Poller,
	telemetry *cache.TelemetryStore,
	audit AuditLog,
	logger *zap.Logger,
) *Supervisor {
	return &Supervisor{
		connections: connections,
		commands:    commands,
		charging:    charging,
		stations:    stations,
		inverters:   inverters,
		poller:      poller,
		telemetry:   telemetry,
		audit:       audit,
		logger:      logger,
	}
}

// HandleStationConnect binds the command queue to the fresh connection and
// opens the boot handshake. The station counts as available only once it
// answers the boot request affirmatively.
func (s *Supervisor) HandleStationConnect(stationCode string, conn ocpp.SendConn) {
	s.commands.AttachConnection(stationCode, conn)

	_, err := s.commands.Enqueue(stationCode, protocol.ActionBootNotification, map[string]any{},
		func(result ocpp.CommandResult) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.charging.OnBootReply(ctx, stationCode, result.Status == ocpp.CommandStatusAccepted)
		})
	if err != nil {
		s.logger.Warn("failed to queue boot request",
			zap.String("station_code", stationCode),
			zap.Error(err))
	}
}

// HandleStationDisconnect releases the command queue binding.
func (s *Supervisor) HandleStationDisconnect(stationCode string, conn ocpp.SendConn) {
	s.commands.DetachConnection(stationCode, conn)
}

// RemoteStart validates and creates the session, then pushes the start
// command to the station. A station rejection cancels the session again.
func (s *Supervisor) RemoteStart(ctx context.Context, cmd service.StartCommand) (*models.Session, error) {
	if !s.connections.IsConnected(cmd.StationCode) {
		return nil, ws.ErrStationNotConnected
	}

	session, err := s.charging.Start(ctx, cmd)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"idTag":       strconv.FormatInt(cmd.UserID, 10),
		"connectorId": 1,
	}
	_, err = s.commands.Enqueue(cmd.StationCode, protocol.ActionRemoteStartTransaction, payload,
		func(result ocpp.CommandResult) {
			if result.Status == ocpp.CommandStatusAccepted {
				return
			}
			s.logger.Warn("remote start not accepted, cancelling session",
				zap.String("station_code", cmd.StationCode),
				zap.String("session_code", session.Code),
				zap.String("status", string(result.Status)))
			cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.charging.CancelPreparing(cancelCtx, cmd.StationCode, models.StopReasonFault); err != nil {
				s.logger.Error("failed to cancel rejected session",
					zap.String("session_code", session.Code),
					zap.Error(err))
			}
		})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// RemoteStop ends the user's active session. A session that was already
// charging additionally gets the stop command pushed to its station.
func (s *Supervisor) RemoteStop(ctx context.Context, cmd service.StopCommand) (*models.Session, error) {
	session, err := s.charging.Stop(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionFinishing || session.TransactionID == "" {
		return session, nil
	}

	payload := map[string]any{"transactionId": session.TransactionID}
	if _, err := s.commands.Enqueue(session.StationCode, protocol.ActionRemoteStopTransaction, payload, nil); err != nil {
		return nil, err
	}
	return session, nil
}

// ResetStation pushes a reset command and returns the queued command for
// status polling.
func (s *Supervisor) ResetStation(ctx context.Context, stationCode, resetType string) (ocpp.CommandSnapshot, error) {
	if !s.connections.IsConnected(stationCode) {
		return ocpp.CommandSnapshot{}, ws.ErrStationNotConnected
	}
	if resetType != protocol.ResetHard {
		resetType = protocol.ResetSoft
	}
	snap, err := s.commands.Enqueue(stationCode, protocol.ActionReset, map[string]any{"type": resetType}, nil)
	if err != nil {
		return ocpp.CommandSnapshot{}, err
	}
	s.auditEvent(ctx, "station", "station reset requested", map[string]any{
		"station_code": stationCode,
		"type":         resetType,
		"command_id":   snap.ID,
	})
	return snap, nil
}

// Command returns the state of a previously issued command.
func (s *Supervisor) Command(commandID string) (ocpp.CommandSnapshot, bool) {
	return s.commands.Snapshot(commandID)
}

// Stations reports the whole charging fleet with liveness attached.
func (s *Supervisor) Stations(ctx context.Context) ([]StationOverview, error) {
	stations, err := s.stations.List(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	overview := make([]StationOverview, 0, len(stations))
	for _, st := range stations {
		overview = append(overview, StationOverview{
			Station:   st,
			Connected: s.connections.IsConnected(st.Code),
			Online:    s.charging.IsStationOnline(st.Code, now) || st.IsOnline(now),
		})
	}
	return overview, nil
}

// StartInverters begins polling every configured inverter.
func (s *Supervisor) StartInverters(ctx context.Context) error {
	inverters, err := s.inverters.List(ctx)
	if err != nil {
		return err
	}
	for _, inv := range inverters {
		if err := s.poller.Watch(ctx, inv); err != nil {
			s.logger.Error("failed to start inverter polling",
				zap.String("inverter_code", inv.Code),
				zap.Error(err))
			continue
		}
	}
	s.logger.Info("inverter polling started", zap.Int("count", len(inverters)))
	return nil
}

// RestartInverter forces a reconnect of one inverter's connection.
func (s *Supervisor) RestartInverter(ctx context.Context, inverterCode string) error {
	if err := s.poller.Restart(inverterCode); err != nil {
		return err
	}
	s.auditEvent(ctx, "inverter", "inverter connection restarted", map[string]any{
		"inverter_code": inverterCode,
	})
	return nil
}

// SetInverterParameter writes one configuration value to the device.
func (s *Supervisor) SetInverterParameter(ctx context.Context, inverterCode, name string, value float64) error {
	if err := s.poller.SetParameter(inverterCode, name, value); err != nil {
		return err
	}
	s.auditEvent(ctx, "inverter", "inverter parameter set", map[string]any{
		"inverter_code": inverterCode,
		"parameter":     name,
		"value":         value,
	})
	return nil
}

func (s *Supervisor) auditEvent(ctx context.Context, category, message string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Insert(ctx, "info", category, message, details); err != nil {
		s.logger.Warn("failed to write audit event",
			zap.String("message", message),
			zap.Error(err))
	}
}

// Telemetry returns the latest reading for an inverter: the cache when hot,
// the last persisted snapshot otherwise.
func (s *Supervisor) Telemetry(ctx context.Context, inverterCode string) (*models.TelemetrySnapshot, error) {
	if s.telemetry != nil {
		snap, err := s.telemetry.Get(ctx, inverterCode)
		if err == nil {
			return snap, nil
		}
	}
	inv, err := s.inverters.ByCode(ctx, inverterCode)
	if err != nil {
		return nil, err
	}
	snap := inv.TelemetrySnapshot
	return &snap, nil
}

// Shutdown closes every station connection and waits for the inverter
// workers to drain. The caller cancels the shared context first.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.connections.CloseAll()

	done := make(chan struct{})
	go func() {
		s.poller.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return errors.New("fleet shutdown timed out waiting for inverter workers")
	case <-done:
		return nil
	}
}
