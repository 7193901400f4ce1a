package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"solarcharge/internal/cache"
	"solarcharge/internal/models"
	"solarcharge/internal/ocpp/protocol"
	"solarcharge/internal/repository"
)

// Business-rule rejections returned to the REST collaborator. Never retried.
var (
	ErrStationUnavailable   = errors.New("charging station is not available")
	ErrVehicleIncompatible  = errors.New("vehicle connector type is not compatible with this station")
	ErrInsufficientBalance  = errors.New("insufficient balance for estimated charging cost")
	ErrSessionAlreadyActive = errors.New("an active charging session already exists")
	ErrNoActiveSession      = errors.New("no active charging session")
	ErrInvalidAdjustment    = errors.New("wallet adjustment must be a non-zero top-up or refund")
)

// SolarShareRatio fixes how delivered energy is split between the solar and
// grid tariffs. It is a billing policy constant, not a metering result:
// nothing in the hardware distinguishes solar electrons from grid electrons.
const SolarShareRatio = 0.70

// DefaultEstimateKWh is assumed when a start command carries no energy
// estimate for the balance check.
const DefaultEstimateKWh = 10

// Store interfaces the session state machine depends on; the repository
// types satisfy them, tests substitute fakes.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	UpdateEnergy(ctx context.Context, sessionID int64, energyKWh float64) error
	ActiveByStation(ctx context.Context, stationCode string) (*models.Session, error)
	ActiveByUser(ctx context.Context, userID int64) (*models.Session, error)
	ByTransaction(ctx context.Context, transactionID string) (*models.Session, error)
}

type StationStore interface {
	ByCode(ctx context.Context, code string) (*models.Station, error)
	UpsertBoot(ctx context.Context, station *models.Station) error
	UpdateStatus(ctx context.Context, code, status string) error
	Heartbeat(ctx context.Context, code string, at time.Time) error
}

type VehicleStore interface {
	ByIDForUser(ctx context.Context, vehicleID, userID int64) (*models.Vehicle, error)
}

type WalletStore interface {
	Balance(ctx context.Context, userID int64) (float64, error)
	Adjust(ctx context.Context, entry *models.LedgerEntry) error
	Settle(ctx context.Context, session *models.Session, entry *models.LedgerEntry) error
}

// ChargingService owns the charging session state machine. Protocol events
// from the per-station engines and commands from the REST collaborator both
// funnel through here; the transition lock keeps the one-active-session
// invariant airtight under concurrent starts.
type ChargingService struct {
	sessions SessionStore
	stations StationStore
	vehicles VehicleStore
	wallet   WalletStore
	active   *cache.ActiveSessionStore
	state    *StationState
	txStore  *TransactionStore
	logger   *zap.Logger

	transitionMu sync.Mutex
}

// NewChargingService builds service.
func NewChargingService(
	sessions SessionStore,
	stations StationStore,
	vehicles VehicleStore,
	wallet WalletStore,
	active *cache.ActiveSessionStore,
	state *StationState,
	txStore *TransactionStore,
	logger *zap.Logger,
) *ChargingService {
	return &ChargingService{
		sessions: sessions,
		stations: stations,
		vehicles: vehicles,
		wallet:   wallet,
		active:   active,
		state:    state,
		txStore:  txStore,
		logger:   logger,
	}
}

// StartCommand is a user-initiated start arriving through the REST collaborator.
type StartCommand struct {
	UserID       int64
	StationCode  string
	VehicleID    int64
	EstimatedKWh float64
}

// StopCommand is a user-initiated stop.
type StopCommand struct {
	UserID int64
	Reason string
}

// Estimate is a cost preview for a planned charge.
type Estimate struct {
	EnergyKWh        float64 `json:"energy_kwh"`
	SolarKWh         float64 `json:"energy_from_solar"`
	GridKWh          float64 `json:"energy_from_grid"`
	EnergyCost       float64 `json:"cost_energy"`
	ServiceCost      float64 `json:"cost_service"`
	TotalCost        float64 `json:"cost_total"`
	EstimatedMinutes int     `json:"estimated_time_minutes"`
}

// AdjustWallet credits or debits a wallet outside of settlement (top-up,
// refund) and returns the recorded ledger entry.
func (s *ChargingService) AdjustWallet(ctx context.Context, userID int64, amount float64, entryType, method string) (*models.LedgerEntry, error) {
	if amount == 0 {
		return nil, ErrInvalidAdjustment
	}
	if entryType != models.LedgerTypeTopUp && entryType != models.LedgerTypeRefund {
		return nil, ErrInvalidAdjustment
	}

	entry := &models.LedgerEntry{
		Code:   newLedgerCode(),
		UserID: userID,
		Type:   entryType,
		Amount: amount,
		Method: method,
		Status: "completed",
	}
	if err := s.wallet.Adjust(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info("wallet adjusted",
		zap.Int64("user_id", userID),
		zap.String("type", entryType),
		zap.Float64("amount", amount))
	return entry, nil
}

// EstimateCost previews the cost of delivering energyKWh at a station.
func (s *ChargingService) EstimateCost(ctx context.Context, stationCode string, energyKWh float64) (*Estimate, error) {
	station, err := s.stations.ByCode(ctx, stationCode)
	if err != nil {
		return nil, err
	}
	return estimateFor(station, energyKWh), nil
}

func estimateFor(station *models.Station, energyKWh float64) *Estimate {
	if energyKWh <= 0 {
		energyKWh = DefaultEstimateKWh
	}
	solar := energyKWh * SolarShareRatio
	grid := energyKWh - solar
	energyCost := solar*station.PriceSolarKWh + grid*station.PriceGridKWh
	serviceCost := energyKWh * station.ServiceFeeKWh

	power := station.PowerRatingKW
	if power <= 0 {
		power = 1
	}
	minutes := int(math.Ceil(energyKWh / power * 60))

	return &Estimate{
		EnergyKWh:        energyKWh,
		SolarKWh:         solar,
		GridKWh:          grid,
		EnergyCost:       energyCost,
		ServiceCost:      serviceCost,
		TotalCost:        energyCost + serviceCost,
		EstimatedMinutes: minutes,
	}
}

// Start validates a user start command and creates the session in
// `preparing`. The station moves to `occupied` immediately; energy flows
// once the station reports StartTransaction.
func (s *ChargingService) Start(ctx context.Context, cmd StartCommand) (*models.Session, error) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	station, err := s.stations.ByCode(ctx, cmd.StationCode)
	if err != nil {
		return nil, err
	}
	if !station.IsAvailable() {
		return nil, ErrStationUnavailable
	}

	vehicle, err := s.vehicles.ByIDForUser(ctx, cmd.VehicleID, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if vehicle.ConnectorType != station.ConnectorType {
		return nil, ErrVehicleIncompatible
	}

	est := estimateFor(station, cmd.EstimatedKWh)
	balance, err := s.wallet.Balance(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if balance < est.TotalCost {
		return nil, ErrInsufficientBalance
	}

	if err := s.ensureNoActive(ctx, cmd.UserID, cmd.StationCode); err != nil {
		return nil, err
	}

	session := &models.Session{
		Code:        newSessionCode(),
		UserID:      cmd.UserID,
		VehicleID:   cmd.VehicleID,
		StationCode: cmd.StationCode,
		StartTime:   time.Now().UTC(),
		Status:      models.SessionPreparing,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	s.setStationStatus(ctx, cmd.StationCode, models.StationOccupied)
	s.txStore.SetIntent(cmd.StationCode, StartIntent{
		SessionID: session.ID,
		UserID:    cmd.UserID,
		VehicleID: cmd.VehicleID,
	})

	s.logger.Info("charging session created",
		zap.String("session_code", session.Code),
		zap.String("station_code", cmd.StationCode),
		zap.Int64("user_id", cmd.UserID))
	return session, nil
}

func (s *ChargingService) ensureNoActive(ctx context.Context, userID int64, stationCode string) error {
	if _, err := s.sessions.ActiveByUser(ctx, userID); err == nil {
		return ErrSessionAlreadyActive
	} else if !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	if _, err := s.sessions.ActiveByStation(ctx, stationCode); err == nil {
		return ErrSessionAlreadyActive
	} else if !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	return nil
}

// Stop handles a user stop command. A session that never started energy
// transfer settles immediately with zero energy; a charging one moves to
// `finishing` and settles when the station reports StopTransaction. The
// returned session carries the transaction id the caller needs for the
// RemoteStopTransaction pass-through.
func (s *ChargingService) Stop(ctx context.Context, cmd StopCommand) (*models.Session, error) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	session, err := s.sessions.ActiveByUser(ctx, cmd.UserID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}

	reason := cmd.Reason
	if reason == "" {
		reason = models.StopReasonUser
	}

	if session.Status == models.SessionPreparing {
		s.txStore.TakeIntent(session.StationCode)
		if err := s.settle(ctx, session, reason); err != nil {
			return nil, err
		}
		return session, nil
	}

	session.Status = models.SessionFinishing
	session.StopReason = reason
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("charging session finishing",
		zap.String("session_code", session.Code),
		zap.String("station_code", session.StationCode))
	return session, nil
}

// CancelPreparing aborts a session the station never energized, for example
// after a rejected remote start. The session faults with zero energy and the
// station is released.
func (s *ChargingService) CancelPreparing(ctx context.Context, stationCode, reason string) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	session, err := s.sessions.ActiveByStation(ctx, stationCode)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if session.Status != models.SessionPreparing {
		return nil
	}

	s.txStore.TakeIntent(stationCode)
	if err := s.settleAs(ctx, session, models.SessionFaulted, reason); err != nil {
		return err
	}
	s.setStationStatus(ctx, stationCode, models.StationAvailable)
	return nil
}

// OnBootNotification handles the station-initiated boot.
func (s *ChargingService) OnBootNotification(ctx context.Context, stationCode string, req protocol.BootNotificationRequest) error {
	station := &models.Station{
		Code:            stationCode,
		Vendor:          req.ChargePointVendor,
		Model:           req.ChargePointModel,
		FirmwareVersion: req.FirmwareVersion,
		Status:          models.StationAvailable,
		LastHeartbeat:   time.Now().UTC(),
	}
	if err := s.stations.UpsertBoot(ctx, station); err != nil {
		return err
	}
	s.state.UpdateStatus(stationCode, models.StationAvailable)
	s.state.Heartbeat(stationCode, station.LastHeartbeat)
	return nil
}

// OnBootReply handles the station's answer to the server-initiated boot
// request. Only an affirmative reply resolves the station to `available`.
func (s *ChargingService) OnBootReply(ctx context.Context, stationCode string, accepted bool) {
	if !accepted {
		s.logger.Warn("boot request not accepted, station status unresolved",
			zap.String("station_code", stationCode))
		return
	}
	s.setStationStatus(ctx, stationCode, models.StationAvailable)
	now := time.Now().UTC()
	s.state.Heartbeat(stationCode, now)
	if err := s.stations.Heartbeat(ctx, stationCode, now); err != nil {
		s.logger.Warn("failed to persist heartbeat", zap.String("station_code", stationCode), zap.Error(err))
	}
}

// OnHeartbeat refreshes the last-heartbeat timestamp and nothing else, so
// replayed heartbeats stay idempotent.
func (s *ChargingService) OnHeartbeat(ctx context.Context, stationCode string, at time.Time) {
	s.state.Heartbeat(stationCode, at)
	if err := s.stations.Heartbeat(ctx, stationCode, at); err != nil {
		s.logger.Warn("failed to persist heartbeat", zap.String("station_code", stationCode), zap.Error(err))
	}
}

// IsStationOnline classifies a station by heartbeat freshness.
func (s *ChargingService) IsStationOnline(stationCode string, now time.Time) bool {
	return s.state.IsOnline(stationCode, now)
}

// stationStatusFromConnector maps the wire status vocabulary onto the
// station status enum. Unrecognized values fail safe to offline.
func stationStatusFromConnector(connectorStatus string) string {
	switch connectorStatus {
	case protocol.ConnectorAvailable:
		return models.StationAvailable
	case protocol.ConnectorOccupied, protocol.ConnectorCharging, protocol.ConnectorPreparing,
		protocol.ConnectorFinishing, protocol.ConnectorSuspendedEV, protocol.ConnectorSuspendedEVSE:
		return models.StationOccupied
	case protocol.ConnectorUnavailable, protocol.ConnectorFaulted:
		return models.StationMaintenance
	default:
		return models.StationOffline
	}
}

// OnStatusNotification updates station status and drives the
// suspend/resume session transitions.
func (s *ChargingService) OnStatusNotification(ctx context.Context, stationCode string, req protocol.StatusNotificationRequest) {
	mapped := stationStatusFromConnector(req.Status)
	s.setStationStatus(ctx, stationCode, mapped)
	if req.ConnectorID > 0 {
		s.state.UpdateConnector(stationCode, req.ConnectorID, req.Status)
	}

	switch req.Status {
	case protocol.ConnectorSuspendedEV, protocol.ConnectorSuspendedEVSE:
		s.moveActiveSession(ctx, stationCode, models.SessionCharging, models.SessionSuspended)
	case protocol.ConnectorCharging:
		s.moveActiveSession(ctx, stationCode, models.SessionSuspended, models.SessionCharging)
	case protocol.ConnectorFaulted:
		s.faultActiveSession(ctx, stationCode)
	}
}

// faultActiveSession settles whatever session occupies the station with the
// faulted terminal status, billing the energy delivered so far.
func (s *ChargingService) faultActiveSession(ctx context.Context, stationCode string) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	session, err := s.sessions.ActiveByStation(ctx, stationCode)
	if err != nil {
		return
	}
	if err := s.settleAs(ctx, session, models.SessionFaulted, models.StopReasonFault); err != nil {
		s.logger.Error("failed to fault session",
			zap.String("session_code", session.Code),
			zap.Error(err))
	}
}

func (s *ChargingService) moveActiveSession(ctx context.Context, stationCode, from, to string) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	session, err := s.sessions.ActiveByStation(ctx, stationCode)
	if err != nil {
		return
	}
	if session.Status != from {
		return
	}
	session.Status = to
	if err := s.sessions.Update(ctx, session); err != nil {
		s.logger.Warn("failed to update session status",
			zap.String("session_code", session.Code),
			zap.String("status", to),
			zap.Error(err))
		return
	}
	s.logger.Info("charging session status changed",
		zap.String("session_code", session.Code),
		zap.String("status", to))
}

// OnStartTransaction admits a station start event into the state machine.
// It either promotes the pending `preparing` session or creates a fresh one,
// and rejects when the station already carries an energized session.
func (s *ChargingService) OnStartTransaction(ctx context.Context, stationCode string, req protocol.StartTransactionRequest) (string, bool, error) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	session, err := s.sessions.ActiveByStation(ctx, stationCode)
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		session, err = s.createFromStation(ctx, stationCode, req)
		if err != nil {
			return "", false, err
		}
	case err != nil:
		return "", false, err
	case session.Status == models.SessionPreparing:
		// The intent is spent by this start event; a later cable-first start
		// on the station must not inherit it.
		s.txStore.TakeIntent(stationCode)
		session.Status = models.SessionCharging
		session.MeterStart = req.MeterStart
		session.TransactionID = session.Code
		if err := s.sessions.Update(ctx, session); err != nil {
			return "", false, err
		}
	default:
		// Energy already flowing: duplicate start, the invariant holds.
		s.logger.Warn("rejecting start transaction, station already has an energized session",
			zap.String("station_code", stationCode),
			zap.String("session_code", session.Code))
		return "", false, nil
	}

	s.setStationStatus(ctx, stationCode, models.StationOccupied)
	s.txStore.Set(session.TransactionID, TransactionContext{
		SessionID:  session.ID,
		UserID:     session.UserID,
		MeterStart: session.MeterStart,
	})
	if s.active != nil {
		if err := s.active.Save(ctx, cache.ActiveSession{
			SessionID:     session.ID,
			TransactionID: session.TransactionID,
			StationCode:   stationCode,
			UserID:        session.UserID,
			MeterStart:    session.MeterStart,
		}); err != nil {
			s.logger.Warn("failed to cache active session", zap.Error(err))
		}
	}

	s.logger.Info("charging session energized",
		zap.String("session_code", session.Code),
		zap.String("station_code", stationCode),
		zap.Int64("meter_start", session.MeterStart))
	return session.TransactionID, true, nil
}

func (s *ChargingService) createFromStation(ctx context.Context, stationCode string, req protocol.StartTransactionRequest) (*models.Session, error) {
	userID, vehicleID := int64(0), int64(0)
	if intent, ok := s.txStore.TakeIntent(stationCode); ok {
		userID, vehicleID = intent.UserID, intent.VehicleID
	} else if parsed, err := strconv.ParseInt(req.IdTag, 10, 64); err == nil {
		userID = parsed
	}

	startTime := req.Timestamp
	if startTime.IsZero() {
		startTime = time.Now().UTC()
	}
	code := newSessionCode()
	session := &models.Session{
		Code:          code,
		UserID:        userID,
		VehicleID:     vehicleID,
		StationCode:   stationCode,
		TransactionID: code,
		StartTime:     startTime.UTC(),
		MeterStart:    req.MeterStart,
		Status:        models.SessionCharging,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// OnMeterValues updates the running delivered energy from the cumulative
// meter register. Status never changes here.
func (s *ChargingService) OnMeterValues(ctx context.Context, stationCode string, req protocol.MeterValuesRequest) {
	txCtx, ok := s.txStore.Get(req.TransactionID)
	if !ok {
		session, err := s.sessions.ByTransaction(ctx, req.TransactionID)
		if err != nil {
			s.logger.Warn("meter values without session context",
				zap.String("station_code", stationCode),
				zap.String("transaction_id", req.TransactionID))
			return
		}
		if session.IsTerminal() {
			s.logger.Info("ignoring meter values for settled session",
				zap.String("session_code", session.Code),
				zap.String("transaction_id", req.TransactionID))
			return
		}
		txCtx = TransactionContext{SessionID: session.ID, UserID: session.UserID, MeterStart: session.MeterStart}
		s.txStore.Set(req.TransactionID, txCtx)
	}

	deliveredWh := req.MeterValue - float64(txCtx.MeterStart)
	if deliveredWh < 0 {
		deliveredWh = 0
	}
	if err := s.sessions.UpdateEnergy(ctx, txCtx.SessionID, deliveredWh/1000.0); err != nil {
		s.logger.Warn("failed to update session energy",
			zap.Int64("session_id", txCtx.SessionID),
			zap.Error(err))
	}
}

// OnStopTransaction settles the referenced session from the final meter
// reading and releases the station. Settling an already terminal session is
// a no-op, so replays stay harmless.
func (s *ChargingService) OnStopTransaction(ctx context.Context, stationCode string, req protocol.StopTransactionRequest) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	session, err := s.sessions.ByTransaction(ctx, req.TransactionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		s.logger.Warn("stop transaction for unknown transaction id",
			zap.String("station_code", stationCode),
			zap.String("transaction_id", req.TransactionID))
		s.setStationStatus(ctx, stationCode, models.StationAvailable)
		return nil
	}
	if err != nil {
		return err
	}
	if session.IsTerminal() {
		s.logger.Info("stop transaction replayed for settled session",
			zap.String("session_code", session.Code))
		return nil
	}

	session.MeterStop = req.MeterStop
	if req.MeterStop > session.MeterStart {
		session.EnergyKWh = float64(req.MeterStop-session.MeterStart) / 1000.0
	}
	reason := req.Reason
	if reason == "" {
		reason = session.StopReason
	}
	if reason == "" {
		reason = models.StopReasonComplete
	}
	return s.settle(ctx, session, reason)
}

func (s *ChargingService) settle(ctx context.Context, session *models.Session, reason string) error {
	return s.settleAs(ctx, session, models.SessionCompleted, reason)
}

// settleAs applies the terminal effects: cost computation, session finalize,
// wallet debit, and ledger append in one transaction. Callers hold the
// transition lock.
func (s *ChargingService) settleAs(ctx context.Context, session *models.Session, status, reason string) error {
	session.SolarKWh = session.EnergyKWh * SolarShareRatio
	session.GridKWh = session.EnergyKWh - session.SolarKWh

	station, err := s.stations.ByCode(ctx, session.StationCode)
	if err != nil {
		return err
	}
	session.EnergyCost = session.SolarKWh*station.PriceSolarKWh + session.GridKWh*station.PriceGridKWh
	session.ServiceCost = session.EnergyKWh * station.ServiceFeeKWh
	session.TotalCost = session.EnergyCost + session.ServiceCost
	session.Status = status
	session.StopReason = reason
	if session.EndTime.IsZero() {
		session.EndTime = time.Now().UTC()
	}

	entry := &models.LedgerEntry{
		Code:      newLedgerCode(),
		UserID:    session.UserID,
		SessionID: session.ID,
		Type:      models.LedgerTypeCharge,
		Amount:    -session.TotalCost,
		Method:    "wallet",
		Status:    "completed",
	}
	if err := s.wallet.Settle(ctx, session, entry); err != nil {
		// Nothing was applied; the whole settlement can be retried.
		s.logger.Error("settlement failed",
			zap.String("session_code", session.Code),
			zap.Error(err))
		return fmt.Errorf("settle session %s: %w", session.Code, err)
	}

	// A faulted station stays in maintenance; the status notification that
	// reported the fault owns its station status.
	if status == models.SessionCompleted {
		s.setStationStatus(ctx, session.StationCode, models.StationAvailable)
	}
	if session.TransactionID != "" {
		s.txStore.Delete(session.TransactionID)
	}
	if s.active != nil {
		_ = s.active.Delete(ctx, cache.ActiveSession{
			TransactionID: session.TransactionID,
			StationCode:   session.StationCode,
		})
	}

	s.logger.Info("charging session settled",
		zap.String("session_code", session.Code),
		zap.Float64("energy_kwh", session.EnergyKWh),
		zap.Float64("cost_total", session.TotalCost),
		zap.String("stop_reason", reason))
	return nil
}

func (s *ChargingService) setStationStatus(ctx context.Context, stationCode, status string) {
	s.state.UpdateStatus(stationCode, status)
	if err := s.stations.UpdateStatus(ctx, stationCode, status); err != nil {
		s.logger.Warn("failed to persist station status",
			zap.String("station_code", stationCode),
			zap.String("status", status),
			zap.Error(err))
	}
}

func newSessionCode() string {
	return fmt.Sprintf("CHG%d", time.Now().UTC().UnixNano())
}

func newLedgerCode() string {
	return fmt.Sprintf("PAY%d", time.Now().UTC().UnixNano())
}
