// Package ingest is the entry point for normalized channel payloads.
// One inbound event becomes a resolved conversation plus an appended
// message, each reported with whether this call created it.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/omnimsg/omnigate/internal/chat"
	"github.com/omnimsg/omnigate/internal/identifier"
	"github.com/omnimsg/omnigate/internal/message"
)

// Inbound is one normalized event from a channel adapter.
type Inbound struct {
	TenantID               string
	Channel                string
	ExternalConversationID string
	ExternalMessageID      string

	ChatType chat.ChatType
	ChatName *string

	Message message.CreateParams
}

// Result reports what the ingestion touched. The created flags say
// whether this call brought the row into existence or found it.
type Result struct {
	Chat           chat.Chat
	ChatCreated    bool
	Message        message.Message
	MessageCreated bool
}

// Service glues identity resolution and message persistence together.
type Service struct {
	chats    *chat.Service
	messages *message.Service
	schemes  *identifier.Registry
	logger   *slog.Logger
}

// NewService creates an ingestion service.
func NewService(log *slog.Logger, chats *chat.Service, messages *message.Service, schemes *identifier.Registry) *Service {
	if log == nil {
		log = slog.Default()
	}
	if schemes == nil {
		schemes = identifier.Default()
	}
	return &Service{
		chats:    chats,
		messages: messages,
		schemes:  schemes,
		logger:   log.With(slog.String("service", "ingest")),
	}
}

// Ingest persists one inbound event: the conversation is resolved or
// created first, then the message is appended under it. Replays and
// concurrent deliveries of the same event converge on the same rows
// with created=false.
func (s *Service) Ingest(ctx context.Context, in Inbound) (Result, error) {
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.ExternalConversationID = strings.TrimSpace(in.ExternalConversationID)
	if in.TenantID == "" {
		return Result{}, fmt.Errorf("tenant id is required")
	}
	if in.ExternalConversationID == "" {
		return Result{}, fmt.Errorf("external conversation id is required")
	}

	c, chatCreated, err := s.chats.FindOrCreate(ctx, chat.CreateParams{
		TenantID:   in.TenantID,
		ExternalID: in.ExternalConversationID,
		Channel:    in.Channel,
		ChatType:   in.ChatType,
		Name:       in.ChatName,
	})
	if err != nil {
		return Result{}, fmt.Errorf("resolve conversation: %w", err)
	}

	params := in.Message
	params.ChatID = c.ID
	params.ExternalID = in.ExternalMessageID
	m, messageCreated, err := s.messages.FindOrCreate(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("persist message: %w", err)
	}

	s.logger.Debug("event ingested",
		slog.String("tenant_id", in.TenantID),
		slog.String("chat_id", c.ID.String()),
		slog.Bool("chat_created", chatCreated),
		slog.Bool("message_created", messageCreated),
	)
	return Result{
		Chat:           c,
		ChatCreated:    chatCreated,
		Message:        m,
		MessageCreated: messageCreated,
	}, nil
}

// Correlate records that two identifier forms denote the same contact
// on a channel. The alternate form is worked out from the channel's
// identifier scheme; channels whose identifiers have a single form
// reject the signal.
func (s *Service) Correlate(ctx context.Context, tenantID, channel, formA, formB string) error {
	scheme, ok := s.schemes.Get(channel)
	if !ok || !scheme.HasAlternateForm() {
		return fmt.Errorf("channel %q has no alternate identifier form", channel)
	}

	formA = strings.TrimSpace(formA)
	formB = strings.TrimSpace(formB)

	var alternate, canonical string
	switch {
	case scheme.IsAlternate(formA) && scheme.IsCanonical(formB):
		alternate, canonical = formA, formB
	case scheme.IsAlternate(formB) && scheme.IsCanonical(formA):
		alternate, canonical = formB, formA
	default:
		return fmt.Errorf("cannot correlate %q and %q on channel %q", formA, formB, channel)
	}

	if err := s.chats.UpsertMapping(ctx, tenantID, alternate, canonical); err != nil {
		return err
	}
	s.logger.Info("identifier correlation recorded",
		slog.String("tenant_id", tenantID),
		slog.String("channel", channel),
		slog.String("canonical_id", canonical),
	)
	return nil
}
