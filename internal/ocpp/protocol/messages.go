package protocol

import "time"

// BootNotificationRequest minimal subset.
type BootNotificationRequest struct {
	ChargePointVendor string `json:"chargePointVendor"`
	ChargePointModel  string `json:"chargePointModel"`
	ChargePointSerial string `json:"chargePointSerialNumber"`
	FirmwareVersion   string `json:"firmwareVersion"`
}

// BootNotificationResponse carries the heartbeat interval the station should use.
type BootNotificationResponse struct {
	Status      string    `json:"status"`
	CurrentTime time.Time `json:"currentTime"`
	Interval    int       `json:"interval"`
}

// HeartbeatResponse returns server time.
type HeartbeatResponse struct {
	CurrentTime time.Time `json:"currentTime"`
}

// StatusNotificationRequest payload.
type StatusNotificationRequest struct {
	ConnectorID int       `json:"connectorId"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"errorCode"`
	Info        string    `json:"info"`
	Timestamp   time.Time `json:"timestamp"`
}

// StatusNotificationResponse is an empty ack.
type StatusNotificationResponse struct{}

// AuthorizeRequest payload.
type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

// IdTagInfo wraps the authorization verdict.
type IdTagInfo struct {
	Status string `json:"status"`
}

// AuthorizeResponse payload.
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// StartTransactionRequest payload.
type StartTransactionRequest struct {
	ConnectorID int       `json:"connectorId"`
	IdTag       string    `json:"idTag"`
	MeterStart  int64     `json:"meterStart"`
	Timestamp   time.Time `json:"timestamp"`
}

// StartTransactionResponse returns the transaction id assigned by the server.
type StartTransactionResponse struct {
	TransactionID string    `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

// StopTransactionRequest payload.
type StopTransactionRequest struct {
	TransactionID string    `json:"transactionId"`
	IdTag         string    `json:"idTag"`
	MeterStop     int64     `json:"meterStop"`
	Timestamp     time.Time `json:"timestamp"`
	Reason        string    `json:"reason"`
}

// StopTransactionResponse payload.
type StopTransactionResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// MeterValuesRequest payload, flattened to the single cumulative register
// reading the stations report.
type MeterValuesRequest struct {
	ConnectorID   int       `json:"connectorId"`
	TransactionID string    `json:"transactionId"`
	MeterValue    float64   `json:"meterValue"`
	Timestamp     time.Time `json:"timestamp"`
}

// RemoteStartTransactionRequest is sent server->station.
type RemoteStartTransactionRequest struct {
	IdTag       string `json:"idTag"`
	ConnectorID int    `json:"connectorId"`
}

// RemoteStopTransactionRequest is sent server->station.
type RemoteStopTransactionRequest struct {
	TransactionID string `json:"transactionId"`
}

// ResetRequest is sent server->station.
type ResetRequest struct {
	Type string `json:"type"`
}
