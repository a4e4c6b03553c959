package apikeys

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InsertParams carry the complete stored representation of a new key.
type InsertParams struct {
	Name      string
	KeyHash   string
	KeyPrefix string
	Scopes    []string
	ExpiresAt *time.Time
}

// Store persists API key rows. Lookups addressing missing rows return
// db.ErrNotFound; a duplicate key_hash or primary name returns
// db.ErrConflict.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (Key, error)
	GetByHash(ctx context.Context, keyHash string) (Key, error)
	GetByName(ctx context.Context, name string) (Key, error)
	Insert(ctx context.Context, params InsertParams) (Key, error)
	List(ctx context.Context) ([]Key, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (Key, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (Key, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// BumpUsage adds count uses and advances last_used_at. It backs
	// the batched usage flush and must never move last_used_at
	// backwards.
	BumpUsage(ctx context.Context, id uuid.UUID, count int64, lastUsed time.Time) error
}
