package models

import "time"

// Inverter status values persisted in solar_inverters.status.
const (
	InverterOnline      = "online"
	InverterOffline     = "offline"
	InverterError       = "error"
	InverterMaintenance = "maintenance"
)

// Inverter represents a solar inverter polled over Modbus TCP.
type Inverter struct {
	ID            int64     `db:"id" json:"id"`
	Code          string    `db:"inverter_code" json:"inverter_code"`
	Name          string    `db:"name" json:"name"`
	Host          string    `db:"ip_address" json:"ip_address"`
	Port          int       `db:"port" json:"port"`
	UnitID        uint8     `db:"unit_id" json:"unit_id"`
	RatedPowerKW  float64   `db:"rated_power" json:"rated_power"`
	Status        string    `db:"status" json:"status"`
	LastUpdate    time.Time `db:"last_update" json:"last_update"`
	TelemetrySnapshot
}

// TelemetrySnapshot is the live reading set, overwritten wholesale on every
// successful poll.
type TelemetrySnapshot struct {
	PowerKW        float64 `db:"current_power" json:"current_power"`
	VoltageDC      float64 `db:"voltage_dc" json:"voltage_dc"`
	CurrentDC      float64 `db:"current_dc" json:"current_dc"`
	VoltageAC      float64 `db:"voltage_ac" json:"voltage_ac"`
	CurrentAC      float64 `db:"current_ac" json:"current_ac"`
	FrequencyHz    float64 `db:"frequency" json:"frequency"`
	TemperatureC   float64 `db:"temperature" json:"temperature"`
	EfficiencyPct  float64 `db:"efficiency" json:"efficiency"`
	DailyEnergyKWh float64 `db:"daily_energy" json:"daily_energy"`
	TotalEnergyKWh float64 `db:"total_energy" json:"total_energy"`
}
