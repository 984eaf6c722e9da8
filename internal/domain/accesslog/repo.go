package accesslog

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the append-only access log store. There is deliberately no
// update or delete operation.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	// Search filters by identifier code, tenant, plugin, user or outcome.
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error)
	CountForTenant(ctx context.Context, tenantID string) (int64, error)
}
