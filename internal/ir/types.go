package ir

import (
	"time"

	"github.com/cockroachdb/apd/v3"
)

// CommandDispense is the only command tracked per subject today.
const CommandDispense = "dispense"

// DefaultTarget is the addressing hint stamped on new requests.
const DefaultTarget = "dispenser"

// Record is the durable state of one subject (device/account).
//
// Records are loaded fresh per invocation and replaced wholesale on write.
// Version is assigned by the store and is the token for conditional writes:
// a Put carrying a stale Version is rejected instead of overwriting.
type Record struct {
	SubjectID string      `json:"subject_id"`
	Credits   apd.Decimal `json:"credits"`
	Requests  []Request   `json:"requests"`
	Version   int64       `json:"version"`
}

// Request is one outstanding, not yet acknowledged command.
// At most one Request per Command exists on a Record.
type Request struct {
	RequestID string    `json:"request_id"`
	Command   string    `json:"command"`
	CreatedAt time.Time `json:"created_at"`
	Target    string    `json:"target"`
}

// Result is the outcome tag reported by a device.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Valid reports whether r is a known result tag.
func (r Result) Valid() bool {
	return r == ResultSuccess || r == ResultFailure
}

// Outcome is the device-reported response to a Request.
type Outcome struct {
	RequestID string `json:"request_id"`
	Result    Result `json:"result"`
}

// AuditEntry is one append-only audit log line.
type AuditEntry struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Timestamp time.Time `json:"ts"`
	Message   string    `json:"message"`
}

// Message is one notification published to a topic.
type Message struct {
	Seq         int64     `json:"seq"`
	Topic       string    `json:"topic"`
	Payload     string    `json:"payload"`
	PublishedAt time.Time `json:"published_at"`
}

// Shadow is the desired/reported document pair kept for one device.
//
// Desired is written by the engine (commands, output signal); Reported is
// written by the device (responses). Both are JSON objects.
type Shadow struct {
	SubjectID string         `json:"subject_id"`
	Desired   map[string]any `json:"desired"`
	Reported  map[string]any `json:"reported"`
	Version   int64          `json:"version"`
}
