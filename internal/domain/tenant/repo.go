package tenant

import (
	"context"

	"github.com/google/uuid"
)

type HospitalRepository interface {
	Create(ctx context.Context, h *Hospital) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	// GetBySubdomain is the single indexed lookup behind tenant resolution.
	GetBySubdomain(ctx context.Context, subdomain string) (*Hospital, error)
	List(ctx context.Context, limit, offset int) ([]*Hospital, int, error)
}
