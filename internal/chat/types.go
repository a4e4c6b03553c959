// Package chat resolves external conversation identifiers to logical
// conversations. The same real-world conversation can arrive under
// several external identifiers; resolution follows exact match, the
// canonical pointer, then the persisted identifier mapping, and never
// crosses tenant boundaries.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// ChatType classifies a conversation.
type ChatType string

const (
	TypeDM        ChatType = "dm"
	TypeGroup     ChatType = "group"
	TypeBroadcast ChatType = "broadcast"
)

// Chat is one logical conversation scoped to a tenant.
type Chat struct {
	ID                 uuid.UUID  `json:"id"`
	TenantID           string     `json:"tenant_id"`
	ExternalID         string     `json:"external_id"`
	CanonicalID        *string    `json:"canonical_id,omitempty"`
	Channel            string     `json:"channel"`
	ChatType           ChatType   `json:"chat_type"`
	Name               *string    `json:"name,omitempty"`
	MessageCount       int        `json:"message_count"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	LastMessagePreview *string    `json:"last_message_preview,omitempty"`
	ParticipantCount   *int       `json:"participant_count,omitempty"`
	ArchivedAt         *time.Time `json:"archived_at,omitempty"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ResolvedIdentity returns the identity this chat answers for: the
// canonical id when the chat defers to another, else its external id.
func (c Chat) ResolvedIdentity() string {
	if c.CanonicalID != nil && *c.CanonicalID != "" {
		return *c.CanonicalID
	}
	return c.ExternalID
}

// Mapping links an alternate-form identifier to its canonical
// counterpart for one tenant.
type Mapping struct {
	ID             uuid.UUID `json:"id"`
	TenantID       string    `json:"tenant_id"`
	AlternateID    string    `json:"alternate_id"`
	CanonicalID    string    `json:"canonical_id"`
	DiscoveredFrom string    `json:"discovered_from"`
	DiscoveredAt   time.Time `json:"discovered_at"`
}

// CreateParams carry the fields for a new conversation row.
type CreateParams struct {
	TenantID    string
	ExternalID  string
	Channel     string
	ChatType    ChatType
	Name        *string
	CanonicalID *string
}

// ListOptions filter List. Zero values mean "no filter".
type ListOptions struct {
	TenantID        string
	Channels        []string
	ChatTypes       []ChatType
	Search          string
	IncludeArchived bool
	Limit           int
}
