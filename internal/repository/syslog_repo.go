package repository

import (
	"context"
	"database/sql"
	"encoding/json"
)

// SystemLogRepository persists auditable events (control actions, device
// faults) beyond the process log stream.
type SystemLogRepository struct {
	db *sql.DB
}

// NewSystemLogRepository returns repository.
func NewSystemLogRepository(db *sql.DB) *SystemLogRepository {
	return &SystemLogRepository{db: db}
}

// Insert stores one event. Details are marshaled as JSON.
func (r *SystemLogRepository) Insert(ctx context.Context, level, category, message string, details map[string]any) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return err
		}
	}
	const query = `
		INSERT INTO system_logs (level, category, message, details, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.db.ExecContext(ctx, query, level, category, message, detailsJSON)
	return err
}
