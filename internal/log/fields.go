package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldNodeID     = "node_id"
	FieldDeviceID   = "device_id"
	FieldReceiverID = "receiver_id"
	FieldSinkID     = "sink_id"

	// Process / worker fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Registry fields
	FieldRegistryURL = "registry_url"
	FieldResource    = "resource"

	// Transport fields
	FieldDestination = "destination"
	FieldEncoding    = "encoding"
	FieldSampleRate  = "sample_rate"

	// Network fields
	FieldBaseURL = "base_url"
	FieldStatus  = "status"
)
