package tenant

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrHospitalNotFound indicates no hospital for the given key.
	ErrHospitalNotFound = errors.New("hospital not found")
	// ErrSubdomainTaken indicates the subdomain is already registered.
	ErrSubdomainTaken = errors.New("subdomain already taken")
)

// Plan is the hospital's subscription tier.
type Plan string

const (
	PlanBasic      Plan = "basic"
	PlanPremium    Plan = "premium"
	PlanEnterprise Plan = "enterprise"
)

// Hospital is one tenant of the network. The subdomain doubles as the tenant
// id used for schema routing and in identifier ownership rows, so it is the
// single canonical tenant key.
type Hospital struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Subdomain  string    `db:"subdomain" json:"subdomain"`
	AdminEmail string    `db:"admin_email" json:"admin_email"`
	Plan       Plan      `db:"plan" json:"plan"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a subdomain from a hospital name: lowercase, runs of
// non-alphanumerics collapsed to underscores.
func Slugify(name string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(s, "_")
}
