package models

import "time"

// Station status values persisted in charging_stations.status.
const (
	StationAvailable   = "available"
	StationOccupied    = "occupied"
	StationMaintenance = "maintenance"
	StationOffline     = "offline"
)

// HeartbeatOnlineWindow is how recent the last heartbeat must be for a
// station to count as online. The interval is open on the upper end: a
// heartbeat aged exactly the window is already offline.
const HeartbeatOnlineWindow = 5 * time.Minute

// Station represents a charging station.
type Station struct {
	ID              int64     `db:"id" json:"id"`
	Code            string    `db:"station_code" json:"station_code"`
	Name            string    `db:"name" json:"name"`
	Vendor          string    `db:"vendor" json:"vendor"`
	Model           string    `db:"model" json:"model"`
	FirmwareVersion string    `db:"firmware_version" json:"firmware_version"`
	PowerRatingKW   float64   `db:"power_rating" json:"power_rating"`
	ConnectorType   string    `db:"connector_type" json:"connector_type"`
	PriceGridKWh    float64   `db:"energy_price_grid" json:"energy_price_grid"`
	PriceSolarKWh   float64   `db:"energy_price_solar" json:"energy_price_solar"`
	ServiceFeeKWh   float64   `db:"service_fee" json:"service_fee"`
	Status          string    `db:"status" json:"status"`
	LastHeartbeat   time.Time `db:"last_heartbeat" json:"last_heartbeat"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// IsOnline reports whether the station heartbeat is fresh at the given time.
func (s *Station) IsOnline(now time.Time) bool {
	if s.LastHeartbeat.IsZero() {
		return false
	}
	return now.Sub(s.LastHeartbeat) < HeartbeatOnlineWindow
}

// IsAvailable reports whether the station accepts a new session.
func (s *Station) IsAvailable() bool {
	return s.Status == StationAvailable
}
