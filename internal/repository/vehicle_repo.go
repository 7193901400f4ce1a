package repository

import (
	"context"
	"database/sql"
	"errors"

	"solarcharge/internal/models"
)

// ErrVehicleNotFound indicates the vehicle does not exist or belongs to
// another user.
var ErrVehicleNotFound = errors.New("vehicle not found")

// VehicleRepository reads user vehicles.
type VehicleRepository struct {
	db *sql.DB
}

// NewVehicleRepository returns repository.
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// ByIDForUser fetches a vehicle only if it belongs to the user.
func (r *VehicleRepository) ByIDForUser(ctx context.Context, vehicleID, userID int64) (*models.Vehicle, error) {
	const query = `
		SELECT id, user_id, brand, model, connector_type, battery_capacity
		FROM user_vehicles
		WHERE id = $1 AND user_id = $2
	`
	var v models.Vehicle
	err := r.db.QueryRowContext(ctx, query, vehicleID, userID).Scan(
		&v.ID,
		&v.UserID,
		&v.Brand,
		&v.Model,
		&v.ConnectorType,
		&v.BatteryCapacityKWh,
	)
	if err == sql.ErrNoRows {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
