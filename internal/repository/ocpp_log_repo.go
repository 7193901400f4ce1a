package repository

import (
	"context"
	"database/sql"
)

// OCPPLogRepository stores raw OCPP frames for audit.
type OCPPLogRepository struct {
	db *sql.DB
}

// NewOCPPLogRepository returns repository.
func NewOCPPLogRepository(db *sql.DB) *OCPPLogRepository {
	return &OCPPLogRepository{db: db}
}

// Save stores one frame.
func (r *OCPPLogRepository) Save(ctx context.Context, stationCode, direction, action string, payload []byte) error {
	const query = `
		INSERT INTO ocpp_messages (station_code, direction, action, payload, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.db.ExecContext(ctx, query, stationCode, direction, action, payload)
	return err
}
