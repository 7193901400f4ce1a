package models

import "time"

// Session status values. A session is active while preparing or charging,
// and immutable once completed or faulted.
const (
	SessionPreparing = "preparing"
	SessionCharging  = "charging"
	SessionSuspended = "suspended"
	SessionFinishing = "finishing"
	SessionCompleted = "completed"
	SessionFaulted   = "faulted"
)

// Stop reason values recorded on settlement.
const (
	StopReasonUser      = "user"
	StopReasonComplete  = "complete"
	StopReasonEmergency = "emergency"
	StopReasonFault     = "fault"
	StopReasonTimeout   = "timeout"
)

// Session represents one charge-from-start-to-settlement lifecycle.
type Session struct {
	ID            int64     `db:"id" json:"id"`
	Code          string    `db:"session_code" json:"session_code"`
	UserID        int64     `db:"user_id" json:"user_id"`
	VehicleID     int64     `db:"vehicle_id" json:"vehicle_id"`
	StationCode   string    `db:"station_code" json:"station_code"`
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	StartTime     time.Time `db:"start_time" json:"start_time"`
	EndTime       time.Time `db:"end_time" json:"end_time"`
	MeterStart    int64     `db:"meter_start" json:"meter_start"`
	MeterStop     int64     `db:"meter_stop" json:"meter_stop"`
	EnergyKWh     float64   `db:"energy_delivered" json:"energy_delivered"`
	SolarKWh      float64   `db:"energy_from_solar" json:"energy_from_solar"`
	GridKWh       float64   `db:"energy_from_grid" json:"energy_from_grid"`
	EnergyCost    float64   `db:"cost_energy" json:"cost_energy"`
	ServiceCost   float64   `db:"cost_service" json:"cost_service"`
	TotalCost     float64   `db:"cost_total" json:"cost_total"`
	Status        string    `db:"status" json:"status"`
	StopReason    string    `db:"stop_reason" json:"stop_reason"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the session still occupies its station.
func (s *Session) IsActive() bool {
	return s.Status == SessionPreparing || s.Status == SessionCharging
}

// IsTerminal reports whether the session may no longer be mutated.
func (s *Session) IsTerminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionFaulted
}
