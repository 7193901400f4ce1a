package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"solarcharge/internal/models"
)

// ErrInverterNotFound indicates an unknown inverter code.
var ErrInverterNotFound = errors.New("inverter not found")

// InverterRepository manages solar inverter persistence.
type InverterRepository struct {
	db *sql.DB
}

// NewInverterRepository returns repository.
func NewInverterRepository(db *sql.DB) *InverterRepository {
	return &InverterRepository{db: db}
}

const inverterColumns = `
	id, inverter_code, name, ip_address, port, unit_id, rated_power, status,
	current_power, voltage_dc, current_dc, voltage_ac, current_ac, frequency,
	temperature, efficiency, daily_energy, total_energy, last_update
`

// List returns every configured inverter the fleet should poll.
func (r *InverterRepository) List(ctx context.Context) ([]models.Inverter, error) {
	const query = `
		SELECT ` + inverterColumns + `
		FROM solar_inverters
		WHERE status <> 'maintenance'
		ORDER BY inverter_code
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inverters []models.Inverter
	for rows.Next() {
		inv, err := scanInverter(rows)
		if err != nil {
			return nil, err
		}
		inverters = append(inverters, *inv)
	}
	return inverters, rows.Err()
}

// ByCode fetches one inverter.
func (r *InverterRepository) ByCode(ctx context.Context, code string) (*models.Inverter, error) {
	const query = `
		SELECT ` + inverterColumns + `
		FROM solar_inverters
		WHERE inverter_code = $1
	`
	rows, err := r.db.QueryContext(ctx, query, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrInverterNotFound
	}
	return scanInverter(rows)
}

// UpdateStatus changes only the inverter status.
func (r *InverterRepository) UpdateStatus(ctx context.Context, code, status string) error {
	const query = `
		UPDATE solar_inverters
		SET status = $2,
		    last_update = NOW(),
		    updated_at = NOW()
		WHERE inverter_code = $1
	`
	_, err := r.db.ExecContext(ctx, query, code, status)
	return err
}

// UpdateSnapshot overwrites the live telemetry snapshot wholesale.
func (r *InverterRepository) UpdateSnapshot(ctx context.Context, code string, snap models.TelemetrySnapshot, at time.Time) error {
	const query = `
		UPDATE solar_inverters
		SET current_power = $2,
		    voltage_dc = $3,
		    current_dc = $4,
		    voltage_ac = $5,
		    current_ac = $6,
		    frequency = $7,
		    temperature = $8,
		    efficiency = $9,
		    daily_energy = $10,
		    total_energy = $11,
		    status = 'online',
		    last_update = $12,
		    updated_at = NOW()
		WHERE inverter_code = $1
	`
	_, err := r.db.ExecContext(ctx, query,
		code,
		snap.PowerKW,
		snap.VoltageDC,
		snap.CurrentDC,
		snap.VoltageAC,
		snap.CurrentAC,
		snap.FrequencyHz,
		snap.TemperatureC,
		snap.EfficiencyPct,
		snap.DailyEnergyKWh,
		snap.TotalEnergyKWh,
		at,
	)
	return err
}

func scanInverter(rows *sql.Rows) (*models.Inverter, error) {
	var inv models.Inverter
	var lastUpdate sql.NullTime
	if err := rows.Scan(
		&inv.ID,
		&inv.Code,
		&inv.Name,
		&inv.Host,
		&inv.Port,
		&inv.UnitID,
		&inv.RatedPowerKW,
		&inv.Status,
		&inv.PowerKW,
		&inv.VoltageDC,
		&inv.CurrentDC,
		&inv.VoltageAC,
		&inv.CurrentAC,
		&inv.FrequencyHz,
		&inv.TemperatureC,
		&inv.EfficiencyPct,
		&inv.DailyEnergyKWh,
		&inv.TotalEnergyKWh,
		&lastUpdate,
	); err != nil {
		return nil, err
	}
	if lastUpdate.Valid {
		inv.LastUpdate = lastUpdate.Time
	}
	return &inv, nil
}
