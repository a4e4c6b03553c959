package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/omnimsg/omnigate/internal/db"
	"github.com/omnimsg/omnigate/internal/events"
	"github.com/omnimsg/omnigate/internal/identifier"
)

// DiscoveredFromMessageKey marks mappings learned from a message key
// carrying both identifier forms.
const DiscoveredFromMessageKey = "message_key"

// Service resolves and manages conversations.
type Service struct {
	store     Store
	schemes   *identifier.Registry
	publisher events.Publisher
	producer  string
	logger    *slog.Logger
}

// NewService creates a chat service. The publisher is optional; when
// omitted, created conversations are not announced.
func NewService(log *slog.Logger, store Store, schemes *identifier.Registry, publishers ...events.Publisher) *Service {
	if log == nil {
		log = slog.Default()
	}
	if schemes == nil {
		schemes = identifier.Default()
	}
	var publisher events.Publisher
	if len(publishers) > 0 {
		publisher = publishers[0]
	}
	return &Service{
		store:     store,
		schemes:   schemes,
		publisher: publisher,
		producer:  "omnigate",
		logger:    log.With(slog.String("service", "chat")),
	}
}

// GetByID fetches a conversation by internal id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (Chat, error) {
	return s.store.GetByID(ctx, id)
}

// Resolve finds the conversation for an external identifier. Lookup
// order: exact match, reverse canonical pointer, then the identifier
// mapping when the channel's scheme defines an alternate form.
// Returns db.ErrNotFound when nothing matches.
func (s *Service) Resolve(ctx context.Context, tenantID, channel, externalID string) (Chat, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return Chat{}, fmt.Errorf("external id is required")
	}

	found, err := s.store.GetByExternalID(ctx, tenantID, externalID)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return Chat{}, err
	}

	// Another chat may defer to this identifier via its canonical
	// pointer.
	found, err = s.store.GetByCanonicalID(ctx, tenantID, externalID)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return Chat{}, err
	}

	scheme, ok := s.schemes.Get(channel)
	if !ok || !scheme.HasAlternateForm() {
		return Chat{}, db.ErrNotFound
	}

	mapped, err := s.mappedCounterpart(ctx, tenantID, externalID, scheme)
	if err != nil {
		return Chat{}, err
	}
	if mapped == "" {
		return Chat{}, db.ErrNotFound
	}
	return s.store.GetByExternalID(ctx, tenantID, mapped)
}

// mappedCounterpart consults the mapping table in the direction the
// identifier's form dictates. Returns "" when no mapping exists.
func (s *Service) mappedCounterpart(ctx context.Context, tenantID, externalID string, scheme identifier.Scheme) (string, error) {
	if scheme.IsAlternate(externalID) {
		m, err := s.store.GetMappingByAlternate(ctx, tenantID, externalID)
		if errors.Is(err, db.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return m.CanonicalID, nil
	}
	m, err := s.store.GetMappingByCanonical(ctx, tenantID, externalID)
	if errors.Is(err, db.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.AlternateID, nil
}

// FindOrCreate resolves the conversation or inserts a new one. A
// uniqueness conflict on insert means another writer created the row
// between our resolve and insert; it is recovered by re-resolving and
// reported as created=false.
func (s *Service) FindOrCreate(ctx context.Context, params CreateParams) (Chat, bool, error) {
	params.ExternalID = strings.TrimSpace(params.ExternalID)

	existing, err := s.Resolve(ctx, params.TenantID, params.Channel, params.ExternalID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return Chat{}, false, err
	}

	created, err := s.store.Insert(ctx, params)
	if errors.Is(err, db.ErrConflict) {
		winner, rerr := s.Resolve(ctx, params.TenantID, params.Channel, params.ExternalID)
		if rerr != nil {
			return Chat{}, false, fmt.Errorf("re-resolve after conflict: %w", rerr)
		}
		return winner, false, nil
	}
	if err != nil {
		return Chat{}, false, fmt.Errorf("create chat: %w", err)
	}

	s.logger.Info("chat created",
		slog.String("chat_id", created.ID.String()),
		slog.String("tenant_id", created.TenantID),
		slog.String("channel", created.Channel),
	)
	s.publishChatCreated(created)
	return created, true, nil
}

// Create inserts a conversation without the resolve step. Duplicate
// identifiers surface as db.ErrConflict; FindOrCreate is the safe
// entry point for ingestion paths.
func (s *Service) Create(ctx context.Context, params CreateParams) (Chat, error) {
	params.ExternalID = strings.TrimSpace(params.ExternalID)
	created, err := s.store.Insert(ctx, params)
	if err != nil {
		return Chat{}, err
	}
	s.publishChatCreated(created)
	return created, nil
}

// UpsertMapping records that alternateID and canonicalID denote the
// same contact. Idempotent; repeated upserts refresh the canonical
// value and discovery time.
func (s *Service) UpsertMapping(ctx context.Context, tenantID, alternateID, canonicalID string) error {
	alternateID = strings.TrimSpace(alternateID)
	canonicalID = strings.TrimSpace(canonicalID)
	if alternateID == "" || canonicalID == "" {
		return fmt.Errorf("alternate and canonical ids are required")
	}
	return s.store.UpsertMapping(ctx, tenantID, alternateID, canonicalID, DiscoveredFromMessageKey)
}

// Archive marks the conversation archived. Archiving an archived
// conversation succeeds.
func (s *Service) Archive(ctx context.Context, id uuid.UUID) (Chat, error) {
	return s.store.SetArchived(ctx, id, true)
}

// Unarchive clears the archived state.
func (s *Service) Unarchive(ctx context.Context, id uuid.UUID) (Chat, error) {
	return s.store.SetArchived(ctx, id, false)
}

// SoftDelete marks the conversation deleted. Terminal: deleted
// conversations leave normal access paths but rows are retained.
func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return s.store.SoftDelete(ctx, id)
}

// SetCanonicalID points the conversation at the canonical identity it
// defers to. Set asynchronously once a mapping is discovered.
func (s *Service) SetCanonicalID(ctx context.Context, id uuid.UUID, canonicalID string) error {
	return s.store.SetCanonicalID(ctx, id, canonicalID)
}

// List returns conversations matching opts, deduplicated by resolved
// identity: when one row defers to another via its canonical pointer,
// only one representative appears.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Chat, error) {
	items, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(items))
	deduped := items[:0]
	for _, c := range items {
		// Identities are tenant-scoped, so the key must be too.
		key := c.TenantID + "\x00" + c.ResolvedIdentity()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, c)
	}
	return deduped, nil
}

func (s *Service) publishChatCreated(c Chat) {
	if s.publisher == nil {
		return
	}
	env := events.NewEnvelope(events.TypeChatCreated, s.producer, c)
	if err := s.publisher.Publish(context.Background(), events.TypeChatCreated, env); err != nil {
		s.logger.Warn("publish chat created failed",
			slog.String("chat_id", c.ID.String()),
			slog.Any("error", err),
		)
	}
}
