package chat

import (
	"context"

	"github.com/google/uuid"
)

// Store persists conversations and identifier mappings. Lookups that
// address a missing row return db.ErrNotFound; inserts rejected by a
// uniqueness constraint return db.ErrConflict.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (Chat, error)
	GetByExternalID(ctx context.Context, tenantID, externalID string) (Chat, error)
	GetByCanonicalID(ctx context.Context, tenantID, canonicalID string) (Chat, error)
	Insert(ctx context.Context, params CreateParams) (Chat, error)
	List(ctx context.Context, opts ListOptions) ([]Chat, error)
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) (Chat, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	SetCanonicalID(ctx context.Context, id uuid.UUID, canonicalID string) error

	GetMappingByAlternate(ctx context.Context, tenantID, alternateID string) (Mapping, error)
	GetMappingByCanonical(ctx context.Context, tenantID, canonicalID string) (Mapping, error)
	UpsertMapping(ctx context.Context, tenantID, alternateID, canonicalID, discoveredFrom string) error
}
