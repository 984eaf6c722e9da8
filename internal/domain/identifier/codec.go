package identifier

import (
	"errors"
	"strings"
)

// Alphabet is the restricted character set for medical identifiers:
// uppercase letters and digits minus the visually ambiguous I, L, O, 1, 0.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeLength is the fixed length of a medical identifier.
const CodeLength = 5

// SpaceSize is the total number of representable identifiers (31^5).
const SpaceSize = 31 * 31 * 31 * 31 * 31

var (
	// ErrInvalidFormat indicates input that does not normalize to a valid
	// 5-character code.
	ErrInvalidFormat = errors.New("invalid identifier format")
	// ErrAlreadyOwned indicates an explicit assignment of a code that is
	// already bound to another patient.
	ErrAlreadyOwned = errors.New("identifier already owned")
	// ErrAllocationExhausted indicates the allocator ran out of attempts.
	// Treat as an operational alarm: this collision rate means the space is
	// nearly saturated or the store is malfunctioning.
	ErrAllocationExhausted = errors.New("identifier allocation exhausted")
	// ErrUnknownIdentifier indicates a structurally valid code with no owner.
	ErrUnknownIdentifier = errors.New("unknown identifier")
)

// Normalize upcases the input, strips separator characters (whitespace and
// hyphens) and validates the result. Ambiguous characters are not silently
// corrected: a code containing I, L, O, 1 or 0 fails with ErrInvalidFormat.
// Normalize is idempotent.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	for _, r := range strings.ToUpper(raw) {
		if r == ' ' || r == '-' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	code := b.String()
	if !Valid(code) {
		return "", ErrInvalidFormat
	}
	return code, nil
}

// Valid is the pure structural check: exact length, alphabet membership.
// It never consults the uniqueness store.
func Valid(candidate string) bool {
	if len(candidate) != CodeLength {
		return false
	}
	for i := 0; i < len(candidate); i++ {
		if strings.IndexByte(Alphabet, candidate[i]) < 0 {
			return false
		}
	}
	return true
}
