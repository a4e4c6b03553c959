package message

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EditUpdate carries the full post-edit state applied in one write.
type EditUpdate struct {
	TextContent  string
	OriginalText *string
	EditCount    int
	EditHistory  []EditEntry
	Status       Status
}

// Store persists message rows. Insert applies the row insert and the
// owning conversation's aggregate update atomically; a duplicate
// (chat_id, external_id) returns db.ErrConflict with no aggregate
// applied. Lookups addressing missing rows return db.ErrNotFound.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (Message, error)
	GetByExternalID(ctx context.Context, chatID uuid.UUID, externalID string) (Message, error)
	Insert(ctx context.Context, params CreateParams) (Message, error)
	List(ctx context.Context, opts ListOptions) ([]Message, error)
	CountByChat(ctx context.Context, chatID uuid.UUID) (int, error)

	ApplyEdit(ctx context.Context, id uuid.UUID, update EditUpdate, editedAt time.Time) (Message, error)
	SetReactions(ctx context.Context, id uuid.UUID, reactions []Reaction, counts map[string]int) (Message, error)
	SetDeliveryStatus(ctx context.Context, id uuid.UUID, status string) (Message, error)
	MarkDeleted(ctx context.Context, id uuid.UUID) (Message, error)
}
