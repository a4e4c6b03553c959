package routes

import (
	"context"

	"github.com/google/uuid"
)

// Store persists routing rules. Lookups addressing missing rows
// return db.ErrNotFound.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (Route, error)
	Insert(ctx context.Context, params CreateParams) (Route, error)
	List(ctx context.Context, tenantID string, opts ListOptions) ([]Route, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (Route, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// FindBest returns the single active route that wins for the
	// given conversation and person, conversation scope before person
	// scope and higher priority first. db.ErrNotFound means the
	// caller should fall back to the tenant default.
	FindBest(ctx context.Context, tenantID string, chatID uuid.UUID, personID *string) (Route, error)
}
