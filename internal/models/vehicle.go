package models

// Vehicle is a user's registered EV. Only the connector type and battery
// capacity matter to the charging core.
type Vehicle struct {
	ID                 int64   `db:"id" json:"id"`
	UserID             int64   `db:"user_id" json:"user_id"`
	Brand              string  `db:"brand" json:"brand"`
	Model              string  `db:"model" json:"model"`
	ConnectorType      string  `db:"connector_type" json:"connector_type"`
	BatteryCapacityKWh float64 `db:"battery_capacity" json:"battery_capacity"`
}
