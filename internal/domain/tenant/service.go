package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospnet/hospnet/internal/platform/db"
)

// Provisioner creates the per-tenant database schema when a hospital is
// onboarded.
type Provisioner func(ctx context.Context, tenantID string) error

type Service struct {
	repo      HospitalRepository
	provision Provisioner
	logger    zerolog.Logger
}

func NewService(repo HospitalRepository, provision Provisioner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, provision: provision, logger: logger}
}

// CreateHospital registers a new hospital and provisions its schema. The
// subdomain is derived from the name when not supplied.
func (s *Service) CreateHospital(ctx context.Context, h *Hospital) (*Hospital, error) {
	if h.Subdomain == "" {
		h.Subdomain = Slugify(h.Name)
	}
	if h.Subdomain == "" {
		return nil, fmt.Errorf("%w: empty subdomain", ErrSubdomainTaken)
	}
	if h.Plan == "" {
		h.Plan = PlanBasic
	}
	h.Active = true

	// The hospital row and its schema provisioning are one unit of work: a
	// failed provision rolls back the row, so a retry sees a clean slate.
	err := db.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, h); err != nil {
			return err
		}
		if s.provision != nil {
			if err := s.provision(ctx, h.Subdomain); err != nil {
				return fmt.Errorf("provision schema for %s: %w", h.Subdomain, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("hospital_id", h.ID.String()).
		Str("subdomain", h.Subdomain).
		Str("plan", string(h.Plan)).
		Msg("hospital onboarded")
	return h, nil
}

// ResolveTenant maps a tenant key (the subdomain) to its hospital in one
// indexed lookup.
func (s *Service) ResolveTenant(ctx context.Context, key string) (*Hospital, error) {
	return s.repo.GetBySubdomain(ctx, key)
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListHospitals(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	return s.repo.List(ctx, limit, offset)
}
