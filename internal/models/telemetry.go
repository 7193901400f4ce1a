package models

import "time"

// TelemetrySample is an immutable point-in-time copy of an inverter reading,
// appended to the energy_monitoring series on every successful poll.
type TelemetrySample struct {
	ID           int64     `db:"id" json:"id"`
	InverterCode string    `db:"inverter_code" json:"inverter_code"`
	Timestamp    time.Time `db:"timestamp" json:"timestamp"`
	TelemetrySnapshot
}
