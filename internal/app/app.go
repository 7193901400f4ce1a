package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"solarcharge/internal/cache"
	"solarcharge/internal/config"
	"solarcharge/internal/fleet"
	"solarcharge/internal/handlers"
	"solarcharge/internal/modbus"
	"solarcharge/internal/models"
	"solarcharge/internal/ocpp"
	"solarcharge/internal/repository"
	"solarcharge/internal/service"
	"solarcharge/internal/ws"
	"solarcharge/libs/db"
	libredis "solarcharge/libs/redis"
)

// App wires the whole device-integration graph: station transport, charging
// core, inverter polling, and their shared stores.
type App struct {
	httpServer *http.Server
	db         *sql.DB
	redis      *goredis.Client
	manager    *ws.Manager
	supervisor *fleet.Supervisor
	logger     *zap.Logger
}

// New builds the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgres(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	var redisClient *goredis.Client
	var activeSessions *cache.ActiveSessionStore
	var telemetryCache *cache.TelemetryStore
	if cfg.Redis.Addr != "" {
		redisClient, err = libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		activeSessions = cache.NewActiveSessionStore(redisClient, cfg.CacheTTL())
		telemetryCache = cache.NewTelemetryStore(redisClient, cfg.CacheTTL())
	}

	stationRepo := repository.NewStationRepository(sqlDB)
	sessionRepo := repository.NewSessionRepository(sqlDB)
	vehicleRepo := repository.NewVehicleRepository(sqlDB)
	settlementRepo := repository.NewSettlementRepository(sqlDB)
	inverterRepo := repository.NewInverterRepository(sqlDB)
	telemetryRepo := repository.NewTelemetryRepository(sqlDB)
	syslogRepo := repository.NewSystemLogRepository(sqlDB)
	ocppLogRepo := repository.NewOCPPLogRepository(sqlDB)

	stationState := service.NewStationState()
	txStore := service.NewTransactionStore()
	charging := service.NewChargingService(
		sessionRepo,
		stationRepo,
		vehicleRepo,
		settlementRepo,
		activeSessions,
		stationState,
		txStore,
		logger,
	)

	router := ocpp.NewRouter()
	processor := ocpp.NewProcessor(router, ocppLogRepo, logger)
	handlers.NewOCPPHandlers(charging, cfg.HeartbeatInterval(), logger).Register(router)

	commands := ocpp.NewCommandManager(ocpp.CommandManagerConfig{
		Timeout:     cfg.CommandTimeout(),
		MaxAttempts: cfg.OCPP.CommandMaxAttempts,
		Logger:      logger,
	})
	engine := ocpp.NewEngine(processor, commands)

	manager := ws.NewManager(cfg.PingInterval())
	wsServer := ws.NewServer(manager, engine, cfg.WriteTimeout(), logger)

	poller := modbus.NewPoller(
		modbus.PollerConfig{
			Interval:       cfg.PollInterval(),
			ReadTimeout:    cfg.ReadTimeout(),
			ReconnectPause: cfg.ReconnectPause(),
		},
		func(inv models.Inverter) (modbus.DeviceClient, error) {
			return modbus.NewDeviceClient(inv.Host, inv.Port, inv.UnitID, cfg.ReadTimeout())
		},
		inverterRepo,
		telemetryRepo,
		telemetryCache,
		logger,
	)

	supervisor := fleet.NewSupervisor(
		manager,
		commands,
		charging,
		stationRepo,
		inverterRepo,
		poller,
		telemetryCache,
		syslogRepo,
		logger,
	)

	wsServer.OnConnect = func(stationCode string, conn *ws.Connection) {
		supervisor.HandleStationConnect(stationCode, conn)
	}
	wsServer.OnDisconnect = func(stationCode string, conn *ws.Connection) {
		supervisor.HandleStationDisconnect(stationCode, conn)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/ocpp/", wsServer.HandleWS)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		httpServer: httpServer,
		db:         sqlDB,
		redis:      redisClient,
		manager:    manager,
		supervisor: supervisor,
		logger:     logger,
	}, nil
}

// Supervisor exposes the fleet control surface.
func (a *App) Supervisor() *fleet.Supervisor {
	return a.supervisor
}

// Run starts the ping loop, inverter polling, and the HTTP server, then
// blocks until the context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go a.manager.Start(ctx)

	if err := a.supervisor.StartInverters(ctx); err != nil {
		a.logger.Error("failed to start inverter polling", zap.Error(err))
	}

	go func() {
		a.logger.Info("starting http server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.supervisor.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("fleet shutdown incomplete", zap.Error(err))
		}
		return a.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Close releases resources.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
