package identifier

import (
	"time"

	"github.com/google/uuid"
)

// Ownership binds a medical identifier to exactly one patient and to the
// tenant that performed the original registration. The binding is immutable:
// a code is never reassigned or recycled, only logically retired.
type Ownership struct {
	Code      string    `db:"code" json:"code"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Retired   bool      `db:"retired" json:"retired"`
	ClaimedAt time.Time `db:"claimed_at" json:"claimed_at"`
}

// Availability is the advisory answer for interactive identifier tools. A
// true Available is only a hint; the claim re-checks atomically at commit.
type Availability struct {
	FormatValid bool `json:"format_valid"`
	Available   bool `json:"available"`
}
