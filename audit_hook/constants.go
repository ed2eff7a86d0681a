package audithook

// Action constants for audit events.
const (
	// Stream actions
	ActionStreamCreated = "stream.created"

	// Escrow actions
	ActionViewerJoined = "viewer.joined"

	// Metering actions
	ActionTickProcessed = "tick.processed"

	// Diagnostic actions
	ActionTransitionRejected = "transition.rejected"
	ActionCompensationFailed = "compensation.failed"
)

// Resource constants for audit events.
const (
	ResourceStream      = "stream"
	ResourceReservation = "reservation"
	ResourceSettlement  = "settlement"
	ResourceTransition  = "transition"
)

// Category constants for audit events.
const (
	CategoryRegistry  = "registry"
	CategoryEscrow    = "escrow"
	CategoryMetering  = "metering"
	CategoryIntegrity = "integrity"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
