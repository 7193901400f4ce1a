package repository

import (
	"context"
	"database/sql"
	"time"

	"solarcharge/internal/models"
)

// TelemetryRepository appends immutable inverter samples. Retention and
// aggregation live outside the core.
type TelemetryRepository struct {
	db *sql.DB
}

// NewTelemetryRepository returns repository.
func NewTelemetryRepository(db *sql.DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

// Append stores one sample.
func (r *TelemetryRepository) Append(ctx context.Context, sample *models.TelemetrySample) error {
	const query = `
		INSERT INTO energy_monitoring (inverter_code, power_output, voltage_dc, current_dc, voltage_ac, current_ac, frequency, temperature, efficiency, daily_energy, total_energy, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	ts := sample.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, query,
		sample.InverterCode,
		sample.PowerKW,
		sample.VoltageDC,
		sample.CurrentDC,
		sample.VoltageAC,
		sample.CurrentAC,
		sample.FrequencyHz,
		sample.TemperatureC,
		sample.EfficiencyPct,
		sample.DailyEnergyKWh,
		sample.TotalEnergyKWh,
		ts,
	).Scan(&sample.ID)
}

// Range returns samples for one inverter within [from, to], ascending.
func (r *TelemetryRepository) Range(ctx context.Context, inverterCode string, from, to time.Time, limit int) ([]models.TelemetrySample, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	const query = `
		SELECT id, inverter_code, power_output, voltage_dc, current_dc, voltage_ac, current_ac, frequency, temperature, efficiency, daily_energy, total_energy, timestamp
		FROM energy_monitoring
		WHERE inverter_code = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, inverterCode, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.TelemetrySample
	for rows.Next() {
		var s models.TelemetrySample
		if err := rows.Scan(
			&s.ID,
			&s.InverterCode,
			&s.PowerKW,
			&s.VoltageDC,
			&s.CurrentDC,
			&s.VoltageAC,
			&s.CurrentAC,
			&s.FrequencyHz,
			&s.TemperatureC,
			&s.EfficiencyPct,
			&s.DailyEnergyKWh,
			&s.TotalEnergyKWh,
			&s.Timestamp,
		); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
