package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"solarcharge/internal/models"
)

// ErrSessionNotFound indicates a missing session row.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository handles persistence of charging sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	id, session_code, user_id, vehicle_id, station_code, transaction_id,
	start_time, end_time, meter_start, meter_stop, energy_delivered,
	energy_from_solar, energy_from_grid, cost_energy, cost_service,
	cost_total, status, stop_reason, created_at, updated_at
`

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	const query = `
		INSERT INTO charging_sessions (session_code, user_id, vehicle_id, station_code, transaction_id, start_time, meter_start, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		session.Code,
		session.UserID,
		session.VehicleID,
		session.StationCode,
		session.TransactionID,
		session.StartTime,
		session.MeterStart,
		session.Status,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
}

// Update rewrites the mutable session fields.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	const query = `
		UPDATE charging_sessions
		SET transaction_id = $2,
		    end_time = $3,
		    meter_start = $4,
		    meter_stop = $5,
		    energy_delivered = $6,
		    status = $7,
		    stop_reason = $8,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.TransactionID,
		nullableTime(session.EndTime),
		session.MeterStart,
		session.MeterStop,
		session.EnergyKWh,
		session.Status,
		session.StopReason,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UpdateEnergy refreshes the running delivered energy. Terminal sessions are
// immutable, so the update only touches live rows.
func (r *SessionRepository) UpdateEnergy(ctx context.Context, sessionID int64, energyKWh float64) error {
	const query = `
		UPDATE charging_sessions
		SET energy_delivered = $2,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('preparing', 'charging', 'suspended', 'finishing')
	`
	_, err := r.db.ExecContext(ctx, query, sessionID, energyKWh)
	return err
}

// ActiveByStation returns the active (preparing/charging/suspended/finishing)
// session occupying a station, or ErrSessionNotFound.
func (r *SessionRepository) ActiveByStation(ctx context.Context, stationCode string) (*models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE station_code = $1 AND status IN ('preparing', 'charging', 'suspended', 'finishing')
		ORDER BY start_time DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, stationCode))
}

// ActiveByUser returns the user's active session, or ErrSessionNotFound.
func (r *SessionRepository) ActiveByUser(ctx context.Context, userID int64) (*models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE user_id = $1 AND status IN ('preparing', 'charging', 'suspended', 'finishing')
		ORDER BY start_time DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID))
}

// ByTransaction returns the session carrying a transaction id.
func (r *SessionRepository) ByTransaction(ctx context.Context, transactionID string) (*models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE transaction_id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, transactionID))
}

func (r *SessionRepository) scanOne(row *sql.Row) (*models.Session, error) {
	var s models.Session
	var endTime sql.NullTime
	var transactionID, stopReason sql.NullString
	err := row.Scan(
		&s.ID,
		&s.Code,
		&s.UserID,
		&s.VehicleID,
		&s.StationCode,
		&transactionID,
		&s.StartTime,
		&endTime,
		&s.MeterStart,
		&s.MeterStop,
		&s.EnergyKWh,
		&s.SolarKWh,
		&s.GridKWh,
		&s.EnergyCost,
		&s.ServiceCost,
		&s.TotalCost,
		&s.Status,
		&stopReason,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.TransactionID = transactionID.String
	s.StopReason = stopReason.String
	if endTime.Valid {
		s.EndTime = endTime.Time
	}
	return &s, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
