package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"solarcharge/internal/models"
	"solarcharge/internal/ocpp/protocol"
	"solarcharge/internal/repository"
)

type fakeSessions struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*models.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{items: make(map[int64]*models.Session)}
}

func (f *fakeSessions) Create(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	session.ID = f.nextID
	copied := *session
	f.items[session.ID] = &copied
	return nil
}

func (f *fakeSessions) Update(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[session.ID]; !ok {
		return repository.ErrSessionNotFound
	}
	copied := *session
	f.items[session.ID] = &copied
	return nil
}

func (f *fakeSessions) UpdateEnergy(ctx context.Context, sessionID int64, energyKWh float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	// Mirrors the repository: terminal rows are never touched.
	if !activeStatus(s.Status) {
		return nil
	}
	s.EnergyKWh = energyKWh
	return nil
}

func activeStatus(status string) bool {
	switch status {
	case models.SessionPreparing, models.SessionCharging, models.SessionSuspended, models.SessionFinishing:
		return true
	}
	return false
}

func (f *fakeSessions) ActiveByStation(ctx context.Context, stationCode string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.items {
		if s.StationCode == stationCode && activeStatus(s.Status) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeSessions) ActiveByUser(ctx context.Context, userID int64) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.items {
		if s.UserID == userID && activeStatus(s.Status) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeSessions) ByTransaction(ctx context.Context, transactionID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.items {
		if s.TransactionID == transactionID && transactionID != "" {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeSessions) byID(id int64) *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok {
		return nil
	}
	copied := *s
	return &copied
}

type fakeStations struct {
	mu    sync.Mutex
	items map[string]*models.Station
}

func newFakeStations(stations ...*models.Station) *fakeStations {
	f := &fakeStations{items: make(map[string]*models.Station)}
	for _, s := range stations {
		copied := *s
		f.items[s.Code] = &copied
	}
	return f
}

func (f *fakeStations) ByCode(ctx context.Context, code string) (*models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[code]
	if !ok {
		return nil, repository.ErrStationNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStations) UpsertBoot(ctx context.Context, station *models.Station) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.items[station.Code]; ok {
		existing.Vendor = station.Vendor
		existing.Model = station.Model
		existing.FirmwareVersion = station.FirmwareVersion
		existing.Status = station.Status
		existing.LastHeartbeat = station.LastHeartbeat
		return nil
	}
	copied := *station
	f.items[station.Code] = &copied
	return nil
}

func (f *fakeStations) UpdateStatus(ctx context.Context, code, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[code]
	if !ok {
		return repository.ErrStationNotFound
	}
	s.Status = status
	return nil
}

func (f *fakeStations) Heartbeat(ctx context.Context, code string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[code]
	if !ok {
		return repository.ErrStationNotFound
	}
	s.LastHeartbeat = at
	return nil
}

func (f *fakeStations) status(code string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[code].Status
}

type fakeVehicles struct {
	items map[int64]*models.Vehicle
}

func (f *fakeVehicles) ByIDForUser(ctx context.Context, vehicleID, userID int64) (*models.Vehicle, error) {
	v, ok := f.items[vehicleID]
	if !ok || v.UserID != userID {
		return nil, repository.ErrVehicleNotFound
	}
	copied := *v
	return &copied, nil
}

// fakeWallet mirrors the settlement repository: finalizing the session and
// moving the balance happen in the same call.
type fakeWallet struct {
	mu       sync.Mutex
	balances map[int64]float64
	sessions *fakeSessions
	entries  []models.LedgerEntry
}

func newFakeWallet(balances map[int64]float64, sessions *fakeSessions) *fakeWallet {
	return &fakeWallet{balances: balances, sessions: sessions}
}

func (f *fakeWallet) Balance(ctx context.Context, userID int64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	return balance, nil
}

func (f *fakeWallet) Adjust(ctx context.Context, entry *models.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	before, ok := f.balances[entry.UserID]
	if !ok {
		return repository.ErrUserNotFound
	}
	entry.BalanceBefore = before
	entry.BalanceAfter = before + entry.Amount
	f.balances[entry.UserID] = entry.BalanceAfter
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeWallet) Settle(ctx context.Context, session *models.Session, entry *models.LedgerEntry) error {
	f.sessions.mu.Lock()
	if stored, ok := f.sessions.items[session.ID]; !ok || stored.IsTerminal() {
		f.sessions.mu.Unlock()
		return repository.ErrSessionNotFound
	}
	copied := *session
	f.sessions.items[session.ID] = &copied
	f.sessions.mu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	before := f.balances[entry.UserID]
	entry.BalanceBefore = before
	entry.BalanceAfter = before + entry.Amount
	f.balances[entry.UserID] = entry.BalanceAfter
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeWallet) entryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func testStation() *models.Station {
	return &models.Station{
		Code:          "ST001",
		ConnectorType: "Type2",
		PowerRatingKW: 10,
		PriceSolarKWh: 0.10,
		PriceGridKWh:  0.20,
		ServiceFeeKWh: 0.05,
		Status:        models.StationAvailable,
		LastHeartbeat: time.Now().UTC(),
	}
}

func testVehicles() *fakeVehicles {
	return &fakeVehicles{items: map[int64]*models.Vehicle{
		10: {ID: 10, UserID: 1, ConnectorType: "Type2"},
		11: {ID: 11, UserID: 1, ConnectorType: "CHAdeMO"},
		20: {ID: 20, UserID: 2, ConnectorType: "Type2"},
	}}
}

type fixture struct {
	sessions *fakeSessions
	stations *fakeStations
	wallet   *fakeWallet
	service  *ChargingService
}

func newFixture(balances map[int64]float64) *fixture {
	sessions := newFakeSessions()
	stations := newFakeStations(testStation())
	wallet := newFakeWallet(balances, sessions)
	svc := NewChargingService(
		sessions,
		stations,
		testVehicles(),
		wallet,
		nil,
		NewStationState(),
		NewTransactionStore(),
		zap.NewNop(),
	)
	return &fixture{sessions: sessions, stations: stations, wallet: wallet, service: svc}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestStartRejectsUnavailableStation(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100})
	fx.stations.UpdateStatus(context.Background(), "ST001", models.StationMaintenance)

	_, err := fx.service.Start(context.Background(), StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10})
	if !errors.Is(err, ErrStationUnavailable) {
		t.Fatalf("expected ErrStationUnavailable, got %v", err)
	}
}

func TestStartRejectsIncompatibleConnector(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100})

	_, err := fx.service.Start(context.Background(), StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 11})
	if !errors.Is(err, ErrVehicleIncompatible) {
		t.Fatalf("expected ErrVehicleIncompatible, got %v", err)
	}
}

func TestStartRejectsInsufficientBalance(t *testing.T) {
	// Default estimate 10 kWh: energy 0.7·10·0.10 + 0.3·10·0.20 = 1.30,
	// service 10·0.05 = 0.50, total 1.80.
	fx := newFixture(map[int64]float64{1: 1.79})

	_, err := fx.service.Start(context.Background(), StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestStartRejectsSecondActiveSession(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100, 2: 100})

	if _, err := fx.service.Start(context.Background(), StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10}); err != nil {
		t.Fatalf("first start: %v", err)
	}

	// Same user, anywhere.
	_, err := fx.service.Start(context.Background(), StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10})
	if !errors.Is(err, ErrStationUnavailable) && !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("expected rejection for duplicate start, got %v", err)
	}
}

func TestFullLifecycleSettlement(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100})
	ctx := context.Background()

	session, err := fx.service.Start(ctx, StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.Status != models.SessionPreparing {
		t.Fatalf("expected preparing, got %s", session.Status)
	}
	if fx.stations.status("ST001") != models.StationOccupied {
		t.Fatalf("station must be occupied after start")
	}

	txID, accepted, err := fx.service.OnStartTransaction(ctx, "ST001", protocol.StartTransactionRequest{
		ConnectorID: 1,
		IdTag:       "1",
		MeterStart:  1000,
	})
	if err != nil {
		t.Fatalf("start transaction: %v", err)
	}
	if !accepted || txID == "" {
		t.Fatalf("expected accepted start with transaction id, got accepted=%v txID=%q", accepted, txID)
	}

	energized := fx.sessions.byID(session.ID)
	if energized.Status != models.SessionCharging {
		t.Fatalf("expected charging, got %s", energized.Status)
	}
	if energized.MeterStart != 1000 {
		t.Fatalf("expected meter start 1000, got %d", energized.MeterStart)
	}

	fx.service.OnMeterValues(ctx, "ST001", protocol.MeterValuesRequest{TransactionID: txID, MeterValue: 3500})
	if got := fx.sessions.byID(session.ID).EnergyKWh; !almostEqual(got, 2.5) {
		t.Fatalf("expected 2.5 kWh after meter report, got %v", got)
	}

	if err := fx.service.OnStopTransaction(ctx, "ST001", protocol.StopTransactionRequest{
		TransactionID: txID,
		MeterStop:     5000,
	}); err != nil {
		t.Fatalf("stop transaction: %v", err)
	}

	final := fx.sessions.byID(session.ID)
	if final.Status != models.SessionCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if !almostEqual(final.EnergyKWh, 4.0) {
		t.Fatalf("expected 4.0 kWh delivered, got %v", final.EnergyKWh)
	}
	if !almostEqual(final.SolarKWh, 2.8) || !almostEqual(final.GridKWh, 1.2) {
		t.Fatalf("unexpected energy split: solar=%v grid=%v", final.SolarKWh, final.GridKWh)
	}
	// energy 2.8·0.10 + 1.2·0.20 = 0.52, service 4·0.05 = 0.20
	if !almostEqual(final.EnergyCost, 0.52) || !almostEqual(final.ServiceCost, 0.20) || !almostEqual(final.TotalCost, 0.72) {
		t.Fatalf("unexpected costs: %v %v %v", final.EnergyCost, final.ServiceCost, final.TotalCost)
	}

	if fx.wallet.entryCount() != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", fx.wallet.entryCount())
	}
	entry := fx.wallet.entries[0]
	if !almostEqual(entry.Amount, -0.72) {
		t.Fatalf("expected debit of 0.72, got %v", entry.Amount)
	}
	if !almostEqual(entry.BalanceAfter, 100-0.72) {
		t.Fatalf("unexpected balance after: %v", entry.BalanceAfter)
	}

	if fx.stations.status("ST001") != models.StationAvailable {
		t.Fatalf("station must be released after settlement")
	}
}

func TestStopTransactionReplayIsIdempotent(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100})
	ctx := context.Background()

	if _, err := fx.service.Start(ctx, StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10}); err != nil {
		t.Fatalf("start: %v", err)
	}
	txID, _, err := fx.service.OnStartTransaction(ctx, "ST001", protocol.StartTransactionRequest{IdTag: "1", MeterStart: 0})
	if err != nil {
		t.Fatalf("start transaction: %v", err)
	}

	stop := protocol.StopTransactionRequest{TransactionID: txID, MeterStop: 2000}
	if err := fx.service.OnStopTransaction(ctx, "ST001", stop); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := fx.service.OnStopTransaction(ctx, "ST001", stop); err != nil {
		t.Fatalf("replayed stop: %v", err)
	}

	if fx.wallet.entryCount() != 1 {
		t.Fatalf("replay must not settle twice, got %d entries", fx.wallet.entryCount())
	}
}

func TestDuplicateStartTransactionRejected(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100})
	ctx := context.Background()

	if _, err := fx.service.Start(ctx, StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, accepted, err := fx.service.OnStartTransaction(ctx, "ST001", protocol.StartTransactionRequest{IdTag: "1"}); err != nil || !accepted {
		t.Fatalf("first start transaction should be accepted: accepted=%v err=%v", accepted, err)
	}

	_, accepted, err := fx.service.OnStartTransaction(ctx, "ST001", protocol.StartTransactionRequest{IdTag: "1"})
	if err != nil {
		t.Fatalf("duplicate start transaction: %v", err)
	}
	if accepted {
		t.Fatalf("second start on an energized station must be rejected")
	}
}

func TestStopPreparingSettlesImmediately(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100})
	ctx := context.Background()

	session, err := fx.service.Start(ctx, StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	stopped, err := fx.service.Stop(ctx, StopCommand{UserID: 1})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != models.SessionCompleted {
		t.Fatalf("expected completed, got %s", stopped.Status)
	}
	if !almostEqual(stopped.TotalCost, 0) {
		t.Fatalf("never-energized session must cost nothing, got %v", stopped.TotalCost)
	}
	if fx.sessions.byID(session.ID).Status != models.SessionCompleted {
		t.Fatalf("persisted session must be completed")
	}
	if fx.stations.status("ST001") != models.StationAvailable {
		t.Fatalf("station must be released")
	}
}

func TestStopChargingMarksFinishing(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100})
	ctx := context.Background()

	if _, err := fx.service.Start(ctx, StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := fx.service.OnStartTransaction(ctx, "ST001", protocol.StartTransactionRequest{IdTag: "1", MeterStart: 100}); err != nil {
		t.Fatalf("start transaction: %v", err)
	}

	stopped, err := fx.service.Stop(ctx, StopCommand{UserID: 1})
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != models.SessionFinishing {
		t.Fatalf("expected finishing, got %s", stopped.Status)
	}
	if stopped.TransactionID == "" {
		t.Fatalf("caller needs the transaction id for the remote stop")
	}
	if fx.wallet.entryCount() != 0 {
		t.Fatalf("settlement must wait for the station's stop event")
	}
}

func TestStopWithoutSession(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100})
	_, err := fx.service.Stop(context.Background(), StopCommand{UserID: 1})
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestStatusNotificationSuspendsAndResumes(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100})
	ctx := context.Background()

	session, err := fx.service.Start(ctx, StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := fx.service.OnStartTransaction(ctx, "ST001", protocol.StartTransactionRequest{IdTag: "1"}); err != nil {
		t.Fatalf("start transaction: %v", err)
	}

	fx.service.OnStatusNotification(ctx, "ST001", protocol.StatusNotificationRequest{ConnectorID: 1, Status: protocol.ConnectorSuspendedEV})
	if got := fx.sessions.byID(session.ID).Status; got != models.SessionSuspended {
		t.Fatalf("expected suspended, got %s", got)
	}

	fx.service.OnStatusNotification(ctx, "ST001", protocol.StatusNotificationRequest{ConnectorID: 1, Status: protocol.ConnectorCharging})
	if got := fx.sessions.byID(session.ID).Status; got != models.SessionCharging {
		t.Fatalf("expected charging after resume, got %s", got)
	}
}

func TestFaultedConnectorFaultsSession(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100})
	ctx := context.Background()

	session, err := fx.service.Start(ctx, StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := fx.service.OnStartTransaction(ctx, "ST001", protocol.StartTransactionRequest{IdTag: "1", MeterStart: 0}); err != nil {
		t.Fatalf("start transaction: %v", err)
	}

	fx.service.OnStatusNotification(ctx, "ST001", protocol.StatusNotificationRequest{ConnectorID: 1, Status: protocol.ConnectorFaulted})

	final := fx.sessions.byID(session.ID)
	if final.Status != models.SessionFaulted {
		t.Fatalf("expected faulted, got %s", final.Status)
	}
	if final.StopReason != models.StopReasonFault {
		t.Fatalf("expected fault stop reason, got %s", final.StopReason)
	}
	if fx.stations.status("ST001") != models.StationMaintenance {
		t.Fatalf("faulted station must stay in maintenance, got %s", fx.stations.status("ST001"))
	}
}

func TestConcurrentStartsSingleWinner(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100, 2: 100})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, userID := range []int64{1, 2} {
		wg.Add(1)
		go func(idx int, uid int64) {
			defer wg.Done()
			vehicleID := int64(10)
			if uid == 2 {
				vehicleID = 20
			}
			_, results[idx] = fx.service.Start(ctx, StartCommand{UserID: uid, StationCode: "ST001", VehicleID: vehicleID})
		}(i, userID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful start, got %d (errs: %v)", succeeded, results)
	}
}

func TestPromotionConsumesStartIntent(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100, 2: 100})
	ctx := context.Background()

	// User 1 remote-starts, charges, settles.
	if _, err := fx.service.Start(ctx, StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10}); err != nil {
		t.Fatalf("start: %v", err)
	}
	txID, _, err := fx.service.OnStartTransaction(ctx, "ST001", protocol.StartTransactionRequest{IdTag: "1", MeterStart: 0})
	if err != nil {
		t.Fatalf("start transaction: %v", err)
	}
	if err := fx.service.OnStopTransaction(ctx, "ST001", protocol.StopTransactionRequest{TransactionID: txID, MeterStop: 1000}); err != nil {
		t.Fatalf("stop transaction: %v", err)
	}

	// User 2 plugs in cable-first; the settled remote start must not leak
	// its attribution onto this session.
	txID2, accepted, err := fx.service.OnStartTransaction(ctx, "ST001", protocol.StartTransactionRequest{IdTag: "2", MeterStart: 500})
	if err != nil || !accepted {
		t.Fatalf("cable-first start: accepted=%v err=%v", accepted, err)
	}
	session, err := fx.sessions.ByTransaction(ctx, txID2)
	if err != nil {
		t.Fatalf("lookup cable-first session: %v", err)
	}
	if session.UserID != 2 {
		t.Fatalf("cable-first session attributed to user %d, expected 2", session.UserID)
	}
}

func TestLateMeterValuesAfterSettlementIgnored(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100})
	ctx := context.Background()

	session, err := fx.service.Start(ctx, StartCommand{UserID: 1, StationCode: "ST001", VehicleID: 10})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	txID, _, err := fx.service.OnStartTransaction(ctx, "ST001", protocol.StartTransactionRequest{IdTag: "1", MeterStart: 1000})
	if err != nil {
		t.Fatalf("start transaction: %v", err)
	}
	if err := fx.service.OnStopTransaction(ctx, "ST001", protocol.StopTransactionRequest{TransactionID: txID, MeterStop: 5000}); err != nil {
		t.Fatalf("stop transaction: %v", err)
	}

	// A meter report delivered after settlement must not mutate the
	// completed session.
	fx.service.OnMeterValues(ctx, "ST001", protocol.MeterValuesRequest{TransactionID: txID, MeterValue: 9000})

	final := fx.sessions.byID(session.ID)
	if final.Status != models.SessionCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if !almostEqual(final.EnergyKWh, 4.0) {
		t.Fatalf("settled energy mutated by late meter values: got %v kWh", final.EnergyKWh)
	}
}

func TestAdjustWalletTopUp(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 10})

	entry, err := fx.service.AdjustWallet(context.Background(), 1, 25, models.LedgerTypeTopUp, "card")
	if err != nil {
		t.Fatalf("adjust wallet: %v", err)
	}
	if !almostEqual(entry.BalanceAfter, 35) {
		t.Fatalf("expected balance 35 after top-up, got %v", entry.BalanceAfter)
	}
	if balance, _ := fx.wallet.Balance(context.Background(), 1); !almostEqual(balance, 35) {
		t.Fatalf("expected persisted balance 35, got %v", balance)
	}
	if fx.wallet.entryCount() != 1 {
		t.Fatalf("expected one ledger entry, got %d", fx.wallet.entryCount())
	}
}

func TestAdjustWalletRejectsInvalid(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 10})
	ctx := context.Background()

	if _, err := fx.service.AdjustWallet(ctx, 1, 0, models.LedgerTypeTopUp, "card"); !errors.Is(err, ErrInvalidAdjustment) {
		t.Fatalf("expected ErrInvalidAdjustment for zero amount, got %v", err)
	}
	if _, err := fx.service.AdjustWallet(ctx, 1, 5, models.LedgerTypeCharge, "card"); !errors.Is(err, ErrInvalidAdjustment) {
		t.Fatalf("expected ErrInvalidAdjustment for charge type, got %v", err)
	}
}

func TestEstimateDefaultsToTenKWh(t *testing.T) {
	fx := newFixture(map[int64]float64{1: 100})

	est, err := fx.service.EstimateCost(context.Background(), "ST001", 0)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if !almostEqual(est.EnergyKWh, 10) {
		t.Fatalf("expected default 10 kWh, got %v", est.EnergyKWh)
	}
	if !almostEqual(est.TotalCost, 1.80) {
		t.Fatalf("expected total 1.80, got %v", est.TotalCost)
	}
	if est.EstimatedMinutes != 60 {
		t.Fatalf("expected 60 minutes at 10 kW, got %d", est.EstimatedMinutes)
	}
}
