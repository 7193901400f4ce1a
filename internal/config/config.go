package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "solarcharge/libs/config"
)

// HTTPConfig is the station-facing listener.
type HTTPConfig struct {
	Port string `yaml:"port" env:"HTTP_PORT"`
}

// DatabaseConfig holds the postgres connection.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
}

// RedisConfig holds the cache connection. An empty addr disables the caches.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	TTL      int    `yaml:"ttlSeconds" env:"REDIS_TTL"`
}

// WebSocketConfig tunes the station transport.
type WebSocketConfig struct {
	PingIntervalSeconds int `yaml:"pingIntervalSeconds" env:"WS_PING_INTERVAL"`
	WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds" env:"WS_WRITE_TIMEOUT"`
}

// OCPPConfig tunes the protocol engine.
type OCPPConfig struct {
	HeartbeatIntervalSeconds int `yaml:"heartbeatIntervalSeconds" env:"OCPP_HEARTBEAT_INTERVAL"`
	CommandTimeoutSeconds    int `yaml:"commandTimeoutSeconds" env:"OCPP_COMMAND_TIMEOUT"`
	CommandMaxAttempts       int `yaml:"commandMaxAttempts" env:"OCPP_COMMAND_ATTEMPTS"`
}

// ModbusConfig tunes the inverter polling engine.
type ModbusConfig struct {
	PollIntervalSeconds   int `yaml:"pollIntervalSeconds" env:"MODBUS_POLL_INTERVAL"`
	ReadTimeoutSeconds    int `yaml:"readTimeoutSeconds" env:"MODBUS_READ_TIMEOUT"`
	ReconnectPauseSeconds int `yaml:"reconnectPauseSeconds" env:"MODBUS_RECONNECT_PAUSE"`
}

// Config is the whole application configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	OCPP      OCPPConfig      `yaml:"ocpp"`
	Modbus    ModbusConfig    `yaml:"modbus"`
}

// Load uses the shared config loader and validates required fields.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{Port: "8080"},
		WebSocket: WebSocketConfig{
			PingIntervalSeconds: 30,
			WriteTimeoutSeconds: 15,
		},
		OCPP: OCPPConfig{
			HeartbeatIntervalSeconds: 300,
			CommandTimeoutSeconds:    15,
			CommandMaxAttempts:       3,
		},
		Modbus: ModbusConfig{
			PollIntervalSeconds:   30,
			ReadTimeoutSeconds:    5,
			ReconnectPauseSeconds: 2,
		},
		Redis: RedisConfig{TTL: 86400},
	}

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database DSN is required")
	}

	return cfg, nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// PingInterval returns websocket ping interval.
func (c *Config) PingInterval() time.Duration {
	return secondsOr(c.WebSocket.PingIntervalSeconds, 30*time.Second)
}

// WriteTimeout returns websocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return secondsOr(c.WebSocket.WriteTimeoutSeconds, 15*time.Second)
}

// HeartbeatInterval is the cadence handed to stations at boot.
func (c *Config) HeartbeatInterval() time.Duration {
	return secondsOr(c.OCPP.HeartbeatIntervalSeconds, 300*time.Second)
}

// CommandTimeout is how long an outbound CALL may stay unanswered.
func (c *Config) CommandTimeout() time.Duration {
	return secondsOr(c.OCPP.CommandTimeoutSeconds, 15*time.Second)
}

// PollInterval returns the inverter poll cadence.
func (c *Config) PollInterval() time.Duration {
	return secondsOr(c.Modbus.PollIntervalSeconds, 30*time.Second)
}

// ReadTimeout returns the modbus read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return secondsOr(c.Modbus.ReadTimeoutSeconds, 5*time.Second)
}

// ReconnectPause returns the pause between dropping and re-dialing a device.
func (c *Config) ReconnectPause() time.Duration {
	return secondsOr(c.Modbus.ReconnectPauseSeconds, 2*time.Second)
}

// CacheTTL returns the redis entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return secondsOr(c.Redis.TTL, 24*time.Hour)
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
