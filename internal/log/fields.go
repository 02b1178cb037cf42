package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldBus        = "bus"
	FieldInstanceID = "instance_id"
	FieldSubscriber = "subscriber_id"
	FieldEntryID    = "entry_id"

	// Process fields
	FieldComponent = "component"
	FieldEvent     = "event"

	// Log state fields
	FieldLastID    = "last_id"
	FieldCursor    = "cursor"
	FieldTrimmed   = "trimmed"
	FieldAppended  = "appended"
	FieldQueued    = "queued"
	FieldBookBytes = "book_bytes"

	// Primitive fields
	FieldPath    = "path"
	FieldPermits = "permits"
)
