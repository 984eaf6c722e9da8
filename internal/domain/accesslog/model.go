package accesslog

import (
	"time"

	"github.com/google/uuid"
)

// Action is the kind of patient-record touch a plugin requested.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionView   Action = "view"
	ActionUpdate Action = "update"
)

// Outcome records how the gated operation ended. Denied means the gate
// refused before the operation ran; the entry then describes the denial,
// never a fabricated execution.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Entry is one immutable access-log record. Entries are append-only: no
// code path in this repository updates or deletes them.
type Entry struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Code       string     `db:"code" json:"code"`
	PatientID  *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	TenantID   string     `db:"tenant_id" json:"tenant_id"`
	UserID     string     `db:"user_id" json:"user_id"`
	PluginName string     `db:"plugin_name" json:"plugin_name"`
	Action     Action     `db:"action" json:"action"`
	Outcome    Outcome    `db:"outcome" json:"outcome"`
	Context    string     `db:"context" json:"context"`
	Recorded   time.Time  `db:"recorded" json:"recorded"`
}
