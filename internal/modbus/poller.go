package modbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"solarcharge/internal/models"
	"solarcharge/libs/logging"
)

// Poller defaults.
const (
	DefaultPollInterval   = 30 * time.Second
	DefaultReadTimeout    = 5 * time.Second
	DefaultReconnectPause = 2 * time.Second
)

// ErrInverterNotPolled reports a restart request for an inverter without a
// running worker.
var ErrInverterNotPolled = errors.New("inverter is not being polled")

// InverterStore is the persistence surface the poller writes through.
type InverterStore interface {
	UpdateStatus(ctx context.Context, code, status string) error
	UpdateSnapshot(ctx context.Context, code string, snap models.TelemetrySnapshot, at time.Time) error
}

// SampleStore appends the immutable time series.
type SampleStore interface {
	Append(ctx context.Context, sample *models.TelemetrySample) error
}

// SnapshotCache keeps the latest reading hot.
type SnapshotCache interface {
	Set(ctx context.Context, inverterCode string, snap models.TelemetrySnapshot) error
}

// ClientFactory builds the transport for one inverter. Injected so tests can
// run the poller against scripted clients.
type ClientFactory func(inv models.Inverter) (DeviceClient, error)

// PollerConfig tunes one fleet of workers. Zero values fall back to the
// defaults above.
type PollerConfig struct {
	Interval       time.Duration
	ReadTimeout    time.Duration
	ReconnectPause time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.ReconnectPause <= 0 {
		c.ReconnectPause = DefaultReconnectPause
	}
	return c
}

// Poller runs one goroutine per inverter. A worker never touches another
// worker's connection, so a wedged device degrades only its own readings.
type Poller struct {
	config    PollerConfig
	factory   ClientFactory
	inverters InverterStore
	samples   SampleStore
	cache     SnapshotCache
	logger    *zap.Logger

	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
}

// NewPoller builds the poller. samples and cache may be nil when only the
// live snapshot matters.
func NewPoller(
	config PollerConfig,
	factory ClientFactory,
	inverters InverterStore,
	samples SampleStore,
	cache SnapshotCache,
	logger *zap.Logger,
) *Poller {
	return &Poller{
		config:    config.withDefaults(),
		factory:   factory,
		inverters: inverters,
		samples:   samples,
		cache:     cache,
		logger:    logger,
		workers:   make(map[string]*worker),
	}
}

type worker struct {
	inverter models.Inverter
	client   DeviceClient
	restart  chan struct{}
	opened   atomic.Bool
}

// Watch starts a polling worker for the inverter. Watching an already
// watched code is a no-op.
func (p *Poller) Watch(ctx context.Context, inv models.Inverter) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.workers[inv.Code]; ok {
		return nil
	}

	client, err := p.factory(inv)
	if err != nil {
		return err
	}
	w := &worker{
		inverter: inv,
		client:   client,
		restart:  make(chan struct{}, 1),
	}
	p.workers[inv.Code] = w

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, w)
	}()
	return nil
}

// Restart asks a worker to drop and re-dial its connection. Used after
// remote maintenance on the device.
func (p *Poller) Restart(inverterCode string) error {
	p.mu.Lock()
	w, ok := p.workers[inverterCode]
	p.mu.Unlock()
	if !ok {
		return ErrInverterNotPolled
	}
	select {
	case w.restart <- struct{}{}:
	default:
	}
	return nil
}

// SetParameter writes one named configuration value to the device. Only the
// registers in the writable table are accepted.
func (p *Poller) SetParameter(inverterCode, name string, value float64) error {
	param, err := LookupParameter(name)
	if err != nil {
		return err
	}

	p.mu.Lock()
	w, ok := p.workers[inverterCode]
	p.mu.Unlock()
	if !ok {
		return ErrInverterNotPolled
	}
	if !w.opened.Load() {
		return errors.New("inverter is not connected")
	}

	raw := uint16(value * param.Scale)
	if err := w.client.WriteParameter(param.Register, raw); err != nil {
		return err
	}
	p.logger.Info("inverter parameter written",
		zap.String("inverter_code", inverterCode),
		zap.String("parameter", name),
		zap.Float64("value", value))
	return nil
}

// Wait blocks until every worker has exited.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, w *worker) {
	log := logging.ForDevice(p.logger, "inverter", w.inverter.Code)
	defer func() {
		if w.opened.Load() {
			_ = w.client.Close()
		}
		log.Info("inverter polling stopped")
	}()

	p.connect(ctx, w, log)
	p.poll(ctx, w, log)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.restart:
			log.Info("restarting inverter connection")
			p.reconnect(ctx, w, log)
		case <-ticker.C:
			p.poll(ctx, w, log)
		}
	}
}

func (p *Poller) connect(ctx context.Context, w *worker, log *zap.Logger) {
	if err := w.client.Open(); err != nil {
		log.Warn("inverter connection failed", zap.Error(err))
		p.markStatus(ctx, w, models.InverterOffline, log)
		return
	}
	w.opened.Store(true)
	log.Info("inverter connected",
		zap.String("host", w.inverter.Host),
		zap.Int("port", w.inverter.Port))
}

func (p *Poller) reconnect(ctx context.Context, w *worker, log *zap.Logger) {
	if w.opened.Load() {
		_ = w.client.Close()
		w.opened.Store(false)
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(p.config.ReconnectPause):
	}
	p.connect(ctx, w, log)
}

// poll performs one read-decode-store cycle. The read runs inline, so a
// device slower than the interval simply loses ticks instead of stacking
// concurrent reads.
func (p *Poller) poll(ctx context.Context, w *worker, log *zap.Logger) {
	if !w.opened.Load() {
		p.reconnect(ctx, w, log)
		if !w.opened.Load() {
			return
		}
	}

	block, err := w.client.ReadTelemetryBlock()
	if err != nil {
		log.Warn("inverter read failed", zap.Error(err))
		p.markStatus(ctx, w, models.InverterError, log)
		p.reconnect(ctx, w, log)
		return
	}

	snap := DecodeTelemetry(block)
	now := time.Now().UTC()

	storeCtx, cancel := context.WithTimeout(ctx, p.config.ReadTimeout)
	defer cancel()

	if err := p.inverters.UpdateSnapshot(storeCtx, w.inverter.Code, snap, now); err != nil {
		log.Warn("failed to persist inverter snapshot", zap.Error(err))
	}
	if p.samples != nil {
		sample := &models.TelemetrySample{
			InverterCode:      w.inverter.Code,
			Timestamp:         now,
			TelemetrySnapshot: snap,
		}
		if err := p.samples.Append(storeCtx, sample); err != nil {
			log.Warn("failed to append telemetry sample", zap.Error(err))
		}
	}
	if p.cache != nil {
		if err := p.cache.Set(storeCtx, w.inverter.Code, snap); err != nil {
			log.Warn("failed to cache telemetry", zap.Error(err))
		}
	}

	log.Debug("inverter polled",
		zap.Float64("power_kw", snap.PowerKW),
		zap.Float64("daily_energy_kwh", snap.DailyEnergyKWh))
}

func (p *Poller) markStatus(ctx context.Context, w *worker, status string, log *zap.Logger) {
	if err := p.inverters.UpdateStatus(ctx, w.inverter.Code, status); err != nil {
		log.Warn("failed to persist inverter status",
			zap.String("status", status),
			zap.Error(err))
	}
}
