package protocol

// Actions the server accepts from stations.
const (
	ActionBootNotification   = "BootNotification"
	ActionHeartbeat          = "Heartbeat"
	ActionStatusNotification = "StatusNotification"
	ActionAuthorize          = "Authorize"
	ActionStartTransaction   = "StartTransaction"
	ActionStopTransaction    = "StopTransaction"
	ActionMeterValues        = "MeterValues"
)

// Actions the server initiates toward stations.
const (
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
	ActionReset                  = "Reset"
)

// CALLERROR codes.
const (
	ErrorNotSupported  = "NotSupported"
	ErrorInternalError = "InternalError"
)

// Registration and authorization status values.
const (
	StatusAccepted = "Accepted"
	StatusRejected = "Rejected"
)

// StatusNotification connector status vocabulary (subset).
const (
	ConnectorAvailable     = "Available"
	ConnectorOccupied      = "Occupied"
	ConnectorCharging      = "Charging"
	ConnectorPreparing     = "Preparing"
	ConnectorFinishing     = "Finishing"
	ConnectorSuspendedEV   = "SuspendedEV"
	ConnectorSuspendedEVSE = "SuspendedEVSE"
	ConnectorFaulted       = "Faulted"
	ConnectorUnavailable   = "Unavailable"
)

// Reset types.
const (
	ResetSoft = "Soft"
	ResetHard = "Hard"
)
