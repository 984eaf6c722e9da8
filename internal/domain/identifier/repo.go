package identifier

import (
	"context"

	"github.com/google/uuid"
)

// Store is the durable, concurrency-safe registry of identifier ownership.
// It is the sole arbiter of uniqueness: no caller may assume a code is free
// without going through TryClaim.
type Store interface {
	// TryClaim binds code to patient only if the code is currently unbound.
	// Returns false, not an error, when the code is already taken, so the
	// allocator can decide between retrying (collision) and failing loudly
	// (explicit assignment).
	TryClaim(ctx context.Context, code string, patientID uuid.UUID, tenantID string) (bool, error)

	// Resolve returns the ownership for a code, or ErrUnknownIdentifier.
	Resolve(ctx context.Context, code string) (*Ownership, error)

	// Retire marks an ownership as logically retired. The binding survives;
	// retired codes are never reassigned.
	Retire(ctx context.Context, code string) error

	// CountClaimed reports how many codes are bound, for occupancy telemetry.
	CountClaimed(ctx context.Context) (int64, error)
}
