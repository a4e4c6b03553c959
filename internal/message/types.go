// Package message appends messages into conversations and keeps the
// owning conversation's aggregates (count, last activity, preview)
// exactly consistent with the stored rows.
package message

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source records how a message entered the system.
type Source string

const (
	SourceRealtime Source = "realtime"
	SourceSync     Source = "sync"
	SourceAPI      Source = "api"
	SourceImport   Source = "import"
)

// Status is the message lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusEdited  Status = "edited"
	StatusDeleted Status = "deleted"
)

// Type classifies the payload.
type Type string

const (
	TypeText     Type = "text"
	TypeImage    Type = "image"
	TypeAudio    Type = "audio"
	TypeVideo    Type = "video"
	TypeDocument Type = "document"
)

// PreviewMaxLen bounds the conversation preview derived from a
// message's text.
const PreviewMaxLen = 500

// EditEntry is one entry in a message's edit history.
type EditEntry struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
	By   *string   `json:"by,omitempty"`
}

// Reaction is one user's reaction on a message. At most one entry
// exists per (UserID, Emoji) pair.
type Reaction struct {
	Emoji  string    `json:"emoji"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// Message is one stored message row.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	ChatID         uuid.UUID       `json:"chat_id"`
	ExternalID     string          `json:"external_id"`
	Source         Source          `json:"source"`
	MessageType    Type            `json:"message_type"`
	TextContent    *string         `json:"text_content,omitempty"`
	MediaURL       *string         `json:"media_url,omitempty"`
	SenderID       *string         `json:"sender_id,omitempty"`
	SenderName     *string         `json:"sender_name,omitempty"`
	FromMe         bool            `json:"from_me"`
	Status         Status          `json:"status"`
	DeliveryStatus *string         `json:"delivery_status,omitempty"`
	OriginalText   *string         `json:"original_text,omitempty"`
	EditCount      int             `json:"edit_count"`
	EditHistory    []EditEntry     `json:"edit_history"`
	Reactions      []Reaction      `json:"reactions"`
	ReactionCounts map[string]int  `json:"reaction_counts,omitempty"`
	ReplyToID      *string         `json:"reply_to_id,omitempty"`
	ForwardedFrom  *string         `json:"forwarded_from,omitempty"`
	RawPayload     json.RawMessage `json:"raw_payload,omitempty"`
	SentAt         time.Time       `json:"sent_at"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateParams carry the fields for a new message row. Preview is the
// conversation preview applied alongside the insert; BuildPreview
// derives it when left empty.
type CreateParams struct {
	ChatID        uuid.UUID
	ExternalID    string
	Source        Source
	MessageType   Type
	TextContent   *string
	MediaURL      *string
	SenderID      *string
	SenderName    *string
	FromMe        bool
	ReplyToID     *string
	ForwardedFrom *string
	RawPayload    json.RawMessage
	SentAt        time.Time
	Preview       string
}

// BuildPreview derives the conversation preview for a message: its
// text, or a media placeholder, truncated to PreviewMaxLen runes.
func BuildPreview(text *string) string {
	preview := "[Media]"
	if text != nil && strings.TrimSpace(*text) != "" {
		preview = *text
	}
	runes := []rune(preview)
	if len(runes) > PreviewMaxLen {
		return string(runes[:PreviewMaxLen])
	}
	return preview
}

// ListOptions filter List. Deleted messages are always excluded.
type ListOptions struct {
	ChatID   uuid.UUID
	Sources  []Source
	Types    []Type
	Statuses []Status
	Search   string
	Since    *time.Time
	Until    *time.Time
	Limit    int
}
