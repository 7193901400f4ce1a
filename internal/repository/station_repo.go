package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"solarcharge/internal/models"
)

// ErrStationNotFound indicates an unknown station code.
var ErrStationNotFound = errors.New("station not found")

// StationRepository manages charging station persistence.
type StationRepository struct {
	db *sql.DB
}

// NewStationRepository returns repository.
func NewStationRepository(db *sql.DB) *StationRepository {
	return &StationRepository{db: db}
}

const stationColumns = `
	station_code, name, vendor, model, firmware_version, power_rating,
	connector_type, energy_price_grid, energy_price_solar, service_fee,
	status, last_heartbeat, created_at, updated_at
`

// ByCode fetches one station by its code.
func (r *StationRepository) ByCode(ctx context.Context, code string) (*models.Station, error) {
	const query = `
		SELECT id, ` + stationColumns + `
		FROM charging_stations
		WHERE station_code = $1
	`
	var s models.Station
	var lastHeartbeat sql.NullTime
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&s.ID,
		&s.Code,
		&s.Name,
		&s.Vendor,
		&s.Model,
		&s.FirmwareVersion,
		&s.PowerRatingKW,
		&s.ConnectorType,
		&s.PriceGridKWh,
		&s.PriceSolarKWh,
		&s.ServiceFeeKWh,
		&s.Status,
		&lastHeartbeat,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrStationNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastHeartbeat.Valid {
		s.LastHeartbeat = lastHeartbeat.Time
	}
	return &s, nil
}

// UpsertBoot stores or refreshes station identity from a boot notification.
func (r *StationRepository) UpsertBoot(ctx context.Context, station *models.Station) error {
	const query = `
		INSERT INTO charging_stations (station_code, vendor, model, firmware_version, status, last_heartbeat, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (station_code) DO UPDATE SET
			vendor = EXCLUDED.vendor,
			model = EXCLUDED.model,
			firmware_version = EXCLUDED.firmware_version,
			status = EXCLUDED.status,
			last_heartbeat = EXCLUDED.last_heartbeat,
			updated_at = NOW()
	`
	if station.LastHeartbeat.IsZero() {
		station.LastHeartbeat = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, query,
		station.Code,
		station.Vendor,
		station.Model,
		station.FirmwareVersion,
		station.Status,
		station.LastHeartbeat,
	)
	return err
}

// UpdateStatus changes station status.
func (r *StationRepository) UpdateStatus(ctx context.Context, code, status string) error {
	const query = `
		UPDATE charging_stations
		SET status = $2,
		    updated_at = NOW()
		WHERE station_code = $1
	`
	_, err := r.db.ExecContext(ctx, query, code, status)
	return err
}

// Heartbeat refreshes only the last heartbeat timestamp.
func (r *StationRepository) Heartbeat(ctx context.Context, code string, at time.Time) error {
	const query = `
		UPDATE charging_stations
		SET last_heartbeat = $2,
		    updated_at = NOW()
		WHERE station_code = $1
	`
	_, err := r.db.ExecContext(ctx, query, code, at)
	return err
}

// List returns every configured station.
func (r *StationRepository) List(ctx context.Context) ([]models.Station, error) {
	const query = `
		SELECT id, ` + stationColumns + `
		FROM charging_stations
		ORDER BY station_code
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var s models.Station
		var lastHeartbeat sql.NullTime
		if err := rows.Scan(
			&s.ID,
			&s.Code,
			&s.Name,
			&s.Vendor,
			&s.Model,
			&s.FirmwareVersion,
			&s.PowerRatingKW,
			&s.ConnectorType,
			&s.PriceGridKWh,
			&s.PriceSolarKWh,
			&s.ServiceFeeKWh,
			&s.Status,
			&lastHeartbeat,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if lastHeartbeat.Valid {
			s.LastHeartbeat = lastHeartbeat.Time
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}
