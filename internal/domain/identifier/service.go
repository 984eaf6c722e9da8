package identifier

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Allocator produces fresh, globally unique medical identifiers and handles
// explicit administrative assignment. Every claim goes through the store's
// atomic TryClaim; the allocator never decides "available" and writes later.
type Allocator struct {
	store        Store
	maxAttempts  int
	claimTimeout time.Duration
	logger       zerolog.Logger
}

func NewAllocator(store Store, maxAttempts int, claimTimeout time.Duration, logger zerolog.Logger) *Allocator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Allocator{
		store:        store,
		maxAttempts:  maxAttempts,
		claimTimeout: claimTimeout,
		logger:       logger,
	}
}

// Allocate draws uniformly random candidates and commits the first one the
// store accepts. The retry budget covers both collisions and transient store
// errors; when it runs out the caller gets ErrAllocationExhausted, which
// registration flows must treat as fatal.
func (a *Allocator) Allocate(ctx context.Context, patientID uuid.UUID, tenantID string) (*Ownership, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient id is required")
	}

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return nil, fmt.Errorf("draw candidate: %w", err)
		}

		claimCtx, cancel := context.WithTimeout(ctx, a.claimTimeout)
		ok, err := a.store.TryClaim(claimCtx, code, patientID, tenantID)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Transient store failure: counts against the budget.
			a.logger.Warn().Err(err).
				Int("attempt", attempt).
				Str("tenant_id", tenantID).
				Msg("identifier claim attempt failed")
			continue
		}
		if ok {
			return &Ownership{
				Code:      code,
				PatientID: patientID,
				TenantID:  tenantID,
				ClaimedAt: time.Now().UTC(),
			}, nil
		}
		// Collision: move to a fresh candidate.
	}

	evt := a.logger.Error().
		Int("attempts", a.maxAttempts).
		Str("tenant_id", tenantID)
	if claimed, err := a.store.CountClaimed(ctx); err == nil {
		evt = evt.Int64("claimed", claimed).
			Float64("occupancy_pct", float64(claimed)/float64(SpaceSize)*100)
	}
	evt.Msg("identifier allocation exhausted")

	return nil, ErrAllocationExhausted
}

// Assign claims a caller-chosen code for a patient. It never substitutes a
// generated code when the requested one is taken; that case is the distinct
// ErrAlreadyOwned, not exhaustion.
func (a *Allocator) Assign(ctx context.Context, raw string, patientID uuid.UUID, tenantID string) (*Ownership, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient id is required")
	}
	code, err := Normalize(raw)
	if err != nil {
		return nil, err
	}

	ok, err := a.store.TryClaim(ctx, code, patientID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("assign identifier: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyOwned
	}
	return &Ownership{
		Code:      code,
		PatientID: patientID,
		TenantID:  tenantID,
		ClaimedAt: time.Now().UTC(),
	}, nil
}

// CheckAvailability answers interactive "is this code free" queries. Format
// failure short-circuits; a positive answer is race-tolerant advice only.
func (a *Allocator) CheckAvailability(ctx context.Context, raw string) (Availability, error) {
	code, err := Normalize(raw)
	if err != nil {
		return Availability{FormatValid: false, Available: false}, nil
	}

	_, err = a.store.Resolve(ctx, code)
	if errors.Is(err, ErrUnknownIdentifier) {
		return Availability{FormatValid: true, Available: true}, nil
	}
	if err != nil {
		return Availability{}, fmt.Errorf("check availability: %w", err)
	}
	return Availability{FormatValid: true, Available: false}, nil
}

// Resolve normalizes and resolves a code to its ownership.
func (a *Allocator) Resolve(ctx context.Context, raw string) (*Ownership, error) {
	code, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	return a.store.Resolve(ctx, code)
}

// Retire logically retires a code. The binding is kept forever.
func (a *Allocator) Retire(ctx context.Context, raw string) error {
	code, err := Normalize(raw)
	if err != nil {
		return err
	}
	return a.store.Retire(ctx, code)
}

// Occupancy reports claimed codes against the total space.
func (a *Allocator) Occupancy(ctx context.Context) (claimed int64, capacity int64, err error) {
	claimed, err = a.store.CountClaimed(ctx)
	return claimed, SpaceSize, err
}

// randomCode draws one uniformly random candidate from the alphabet. Reads
// come from crypto/rand; rejection sampling keeps the distribution uniform
// across the 31 symbols.
func randomCode() (string, error) {
	code := make([]byte, CodeLength)
	buf := make([]byte, 1)
	for i := 0; i < CodeLength; {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		// Reject bytes outside the largest multiple of len(Alphabet).
		if buf[0] >= byte(256-256%len(Alphabet)) {
			continue
		}
		code[i] = Alphabet[int(buf[0])%len(Alphabet)]
		i++
	}
	return string(code), nil
}
