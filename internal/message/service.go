package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnimsg/omnigate/internal/db"
	"github.com/omnimsg/omnigate/internal/events"
)

// Service appends and mutates messages.
type Service struct {
	store     Store
	publisher events.Publisher
	producer  string
	logger    *slog.Logger
}

// NewService creates a message service. The publisher is optional.
func NewService(log *slog.Logger, store Store, publishers ...events.Publisher) *Service {
	if log == nil {
		log = slog.Default()
	}
	var publisher events.Publisher
	if len(publishers) > 0 {
		publisher = publishers[0]
	}
	return &Service{
		store:     store,
		publisher: publisher,
		producer:  "omnigate",
		logger:    log.With(slog.String("service", "message")),
	}
}

// GetByID fetches a message by internal id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (Message, error) {
	return s.store.GetByID(ctx, id)
}

// GetByExternalID fetches a message by its chat-scoped external id.
func (s *Service) GetByExternalID(ctx context.Context, chatID uuid.UUID, externalID string) (Message, error) {
	return s.store.GetByExternalID(ctx, chatID, externalID)
}

// Create inserts a new message and applies the owning conversation's
// aggregate update in the same transaction. A duplicate external id
// surfaces as db.ErrConflict with nothing applied; FindOrCreate is
// the safe entry point for ingestion.
func (s *Service) Create(ctx context.Context, params CreateParams) (Message, error) {
	params.ExternalID = strings.TrimSpace(params.ExternalID)
	if params.ExternalID == "" {
		return Message{}, fmt.Errorf("external id is required")
	}
	created, err := s.store.Insert(ctx, params)
	if err != nil {
		return Message{}, err
	}
	s.publishMessageCreated(created)
	return created, nil
}

// FindOrCreate returns the existing row unchanged when present, else
// creates it. Losing an insert race is recovered by re-reading; the
// aggregate update applies exactly once either way.
func (s *Service) FindOrCreate(ctx context.Context, params CreateParams) (Message, bool, error) {
	params.ExternalID = strings.TrimSpace(params.ExternalID)

	existing, err := s.store.GetByExternalID(ctx, params.ChatID, params.ExternalID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return Message{}, false, err
	}

	created, err := s.Create(ctx, params)
	if errors.Is(err, db.ErrConflict) {
		winner, rerr := s.store.GetByExternalID(ctx, params.ChatID, params.ExternalID)
		if rerr != nil {
			return Message{}, false, fmt.Errorf("re-read after conflict: %w", rerr)
		}
		return winner, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	return created, true, nil
}

// RecordEdit appends to the edit history, captures the original text
// on the very first edit, and moves the message to edited state.
func (s *Service) RecordEdit(ctx context.Context, id uuid.UUID, newText string, editedAt time.Time, editedBy *string) (Message, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Message{}, err
	}

	entry := EditEntry{Text: newText, At: editedAt, By: editedBy}
	history := append(append([]EditEntry{}, m.EditHistory...), entry)

	// originalText is written once, before the first overwrite, and
	// never touched again.
	originalText := m.OriginalText
	if m.EditCount == 0 {
		originalText = m.TextContent
	}

	return s.store.ApplyEdit(ctx, id, EditUpdate{
		TextContent:  newText,
		OriginalText: originalText,
		EditCount:    m.EditCount + 1,
		EditHistory:  history,
		Status:       StatusEdited,
	}, editedAt)
}

// AddReaction records a reaction. A second reaction by the same user
// with the same emoji is a no-op.
func (s *Service) AddReaction(ctx context.Context, id uuid.UUID, emoji, userID string) (Message, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Message{}, err
	}

	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return m, nil
		}
	}

	reactions := append(append([]Reaction{}, m.Reactions...), Reaction{
		Emoji:  emoji,
		UserID: userID,
		At:     time.Now().UTC(),
	})
	counts := copyCounts(m.ReactionCounts)
	counts[emoji]++

	return s.store.SetReactions(ctx, id, reactions, counts)
}

// RemoveReaction removes the matching entry if present and decrements
// the emoji tally, dropping the key at zero.
func (s *Service) RemoveReaction(ctx context.Context, id uuid.UUID, userID, emoji string) (Message, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Message{}, err
	}

	reactions := make([]Reaction, 0, len(m.Reactions))
	removed := false
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			removed = true
			continue
		}
		reactions = append(reactions, r)
	}
	if !removed {
		return m, nil
	}

	counts := copyCounts(m.ReactionCounts)
	if counts[emoji] > 0 {
		counts[emoji]--
	}
	if counts[emoji] == 0 {
		delete(counts, emoji)
	}

	return s.store.SetReactions(ctx, id, reactions, counts)
}

// UpdateDeliveryStatus sets the channel delivery state.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status string) (Message, error) {
	return s.store.SetDeliveryStatus(ctx, id, status)
}

// MarkDeleted moves the message to the terminal deleted state. The
// owning conversation's message count is not decremented.
func (s *Service) MarkDeleted(ctx context.Context, id uuid.UUID) (Message, error) {
	return s.store.MarkDeleted(ctx, id)
}

// List returns non-deleted messages matching opts.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Message, error) {
	return s.store.List(ctx, opts)
}

// CountByChat counts the non-deleted messages of a conversation.
func (s *Service) CountByChat(ctx context.Context, chatID uuid.UUID) (int, error) {
	return s.store.CountByChat(ctx, chatID)
}

func (s *Service) publishMessageCreated(m Message) {
	if s.publisher == nil {
		return
	}
	env := events.NewEnvelope(events.TypeMessageCreated, s.producer, m)
	if err := s.publisher.Publish(context.Background(), events.TypeMessageCreated, env); err != nil {
		s.logger.Warn("publish message created failed",
			slog.String("message_id", m.ID.String()),
			slog.Any("error", err),
		)
	}
}

func copyCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}
