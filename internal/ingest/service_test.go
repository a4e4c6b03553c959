package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnimsg/omnigate/internal/chat"
	"github.com/omnimsg/omnigate/internal/db"
	"github.com/omnimsg/omnigate/internal/identifier"
	"github.com/omnimsg/omnigate/internal/message"
)

type fakeChatStore struct {
	mu       sync.Mutex
	chats    map[uuid.UUID]chat.Chat
	mappings map[string]chat.Mapping
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		chats:    make(map[uuid.UUID]chat.Chat),
		mappings: make(map[string]chat.Mapping),
	}
}

func (f *fakeChatStore) GetByID(_ context.Context, id uuid.UUID) (chat.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[id]
	if !ok {
		return chat.Chat{}, db.ErrNotFound
	}
	return c, nil
}

func (f *fakeChatStore) GetByExternalID(_ context.Context, tenantID, externalID string) (chat.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chats {
		if c.TenantID == tenantID && c.ExternalID == externalID {
			return c, nil
		}
	}
	return chat.Chat{}, db.ErrNotFound
}

func (f *fakeChatStore) GetByCanonicalID(_ context.Context, tenantID, canonicalID string) (chat.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chats {
		if c.TenantID == tenantID && c.CanonicalID != nil && *c.CanonicalID == canonicalID {
			return c, nil
		}
	}
	return chat.Chat{}, db.ErrNotFound
}

func (f *fakeChatStore) Insert(_ context.Context, params chat.CreateParams) (chat.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chats {
		if c.TenantID == params.TenantID && c.ExternalID == params.ExternalID {
			return chat.Chat{}, db.ErrConflict
		}
	}
	c := chat.Chat{
		ID:          uuid.New(),
		TenantID:    params.TenantID,
		ExternalID:  params.ExternalID,
		CanonicalID: params.CanonicalID,
		Channel:     params.Channel,
		ChatType:    params.ChatType,
		Name:        params.Name,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	f.chats[c.ID] = c
	return c, nil
}

func (f *fakeChatStore) List(_ context.Context, _ chat.ListOptions) ([]chat.Chat, error) {
	return nil, nil
}

func (f *fakeChatStore) SetArchived(_ context.Context, id uuid.UUID, _ bool) (chat.Chat, error) {
	return chat.Chat{}, db.ErrNotFound
}

func (f *fakeChatStore) SoftDelete(_ context.Context, _ uuid.UUID) error { return db.ErrNotFound }

func (f *fakeChatStore) SetCanonicalID(_ context.Context, _ uuid.UUID, _ string) error { return nil }

func (f *fakeChatStore) GetMappingByAlternate(_ context.Context, tenantID, alternateID string) (chat.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mappings[tenantID+"\x00"+alternateID]
	if !ok {
		return chat.Mapping{}, db.ErrNotFound
	}
	return m, nil
}

func (f *fakeChatStore) GetMappingByCanonical(_ context.Context, tenantID, canonicalID string) (chat.Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.mappings {
		if m.TenantID == tenantID && m.CanonicalID == canonicalID {
			return m, nil
		}
	}
	return chat.Mapping{}, db.ErrNotFound
}

func (f *fakeChatStore) UpsertMapping(_ context.Context, tenantID, alternateID, canonicalID, discoveredFrom string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mappings[tenantID+"\x00"+alternateID] = chat.Mapping{
		ID:             uuid.New(),
		TenantID:       tenantID,
		AlternateID:    alternateID,
		CanonicalID:    canonicalID,
		DiscoveredFrom: discoveredFrom,
		DiscoveredAt:   time.Now(),
	}
	return nil
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID]message.Message
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: make(map[uuid.UUID]message.Message)}
}

func (f *fakeMessageStore) GetByID(_ context.Context, id uuid.UUID) (message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return message.Message{}, db.ErrNotFound
	}
	return m, nil
}

func (f *fakeMessageStore) GetByExternalID(_ context.Context, chatID uuid.UUID, externalID string) (message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ChatID == chatID && m.ExternalID == externalID {
			return m, nil
		}
	}
	return message.Message{}, db.ErrNotFound
}

func (f *fakeMessageStore) Insert(_ context.Context, params message.CreateParams) (message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ChatID == params.ChatID && m.ExternalID == params.ExternalID {
			return message.Message{}, db.ErrConflict
		}
	}
	m := message.Message{
		ID:          uuid.New(),
		ChatID:      params.ChatID,
		ExternalID:  params.ExternalID,
		Source:      params.Source,
		MessageType: params.MessageType,
		TextContent: params.TextContent,
		Status:      message.StatusActive,
		SentAt:      params.SentAt,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	f.messages[m.ID] = m
	return m, nil
}

func (f *fakeMessageStore) List(_ context.Context, _ message.ListOptions) ([]message.Message, error) {
	return nil, nil
}

func (f *fakeMessageStore) CountByChat(_ context.Context, _ uuid.UUID) (int, error) { return 0, nil }

func (f *fakeMessageStore) ApplyEdit(_ context.Context, _ uuid.UUID, _ message.EditUpdate, _ time.Time) (message.Message, error) {
	return message.Message{}, db.ErrNotFound
}

func (f *fakeMessageStore) SetReactions(_ context.Context, _ uuid.UUID, _ []message.Reaction, _ map[string]int) (message.Message, error) {
	return message.Message{}, db.ErrNotFound
}

func (f *fakeMessageStore) SetDeliveryStatus(_ context.Context, _ uuid.UUID, _ string) (message.Message, error) {
	return message.Message{}, db.ErrNotFound
}

func (f *fakeMessageStore) MarkDeleted(_ context.Context, _ uuid.UUID) (message.Message, error) {
	return message.Message{}, db.ErrNotFound
}

func newTestService(t *testing.T) (*Service, *fakeChatStore, *fakeMessageStore) {
	t.Helper()
	chatStore := newFakeChatStore()
	messageStore := newFakeMessageStore()
	chats := chat.NewService(nil, chatStore, identifier.Default())
	messages := message.NewService(nil, messageStore)
	return NewService(nil, chats, messages, identifier.Default()), chatStore, messageStore
}

func textPtr(s string) *string { return &s }

func TestIngestCreatesChatAndMessage(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, Inbound{
		TenantID:               "acme",
		Channel:                "whatsapp",
		ExternalConversationID: "5511999999999@s.whatsapp.net",
		ExternalMessageID:      "msg-1",
		ChatType:               chat.TypeDM,
		Message: message.CreateParams{
			Source:      message.SourceRealtime,
			MessageType: message.TypeText,
			TextContent: textPtr("hello"),
			SentAt:      time.Now(),
		},
	})
	require.NoError(t, err)
	assert.True(t, res.ChatCreated)
	assert.True(t, res.MessageCreated)
	assert.Equal(t, res.Chat.ID, res.Message.ChatID)
}

func TestIngestReplayFindsExistingRows(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	in := Inbound{
		TenantID:               "acme",
		Channel:                "telegram",
		ExternalConversationID: "1234",
		ExternalMessageID:      "m-7",
		ChatType:               chat.TypeDM,
		Message: message.CreateParams{
			Source:      message.SourceRealtime,
			MessageType: message.TypeText,
			TextContent: textPtr("first delivery"),
			SentAt:      time.Now(),
		},
	}

	first, err := svc.Ingest(ctx, in)
	require.NoError(t, err)
	require.True(t, first.MessageCreated)

	// The replay carries different content but the same external ids;
	// the stored rows win.
	in.Message.TextContent = textPtr("replayed delivery")
	second, err := svc.Ingest(ctx, in)
	require.NoError(t, err)
	assert.False(t, second.ChatCreated)
	assert.False(t, second.MessageCreated)
	assert.Equal(t, first.Chat.ID, second.Chat.ID)
	assert.Equal(t, first.Message.ID, second.Message.ID)
	assert.Equal(t, "first delivery", *second.Message.TextContent)
}

func TestIngestSecondMessageSameChat(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	base := Inbound{
		TenantID:               "acme",
		Channel:                "telegram",
		ExternalConversationID: "1234",
		ChatType:               chat.TypeDM,
		Message: message.CreateParams{
			Source:      message.SourceRealtime,
			MessageType: message.TypeText,
			SentAt:      time.Now(),
		},
	}

	base.ExternalMessageID = "m-1"
	first, err := svc.Ingest(ctx, base)
	require.NoError(t, err)

	base.ExternalMessageID = "m-2"
	second, err := svc.Ingest(ctx, base)
	require.NoError(t, err)
	assert.False(t, second.ChatCreated)
	assert.True(t, second.MessageCreated)
	assert.Equal(t, first.Chat.ID, second.Chat.ID)
}

func TestIngestValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, Inbound{Channel: "telegram", ExternalConversationID: "1"})
	assert.Error(t, err)

	_, err = svc.Ingest(ctx, Inbound{TenantID: "acme", Channel: "telegram"})
	assert.Error(t, err)
}

func TestCorrelateRecordsMapping(t *testing.T) {
	svc, chatStore, _ := newTestService(t)
	ctx := context.Background()

	lid := "123456789@lid"
	phone := "5511999999999@s.whatsapp.net"

	// Argument order must not matter.
	require.NoError(t, svc.Correlate(ctx, "acme", "whatsapp", phone, lid))

	m, err := chatStore.GetMappingByAlternate(ctx, "acme", lid)
	require.NoError(t, err)
	assert.Equal(t, phone, m.CanonicalID)
}

func TestCorrelateAfterIngestUnifiesIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	lid := "123456789@lid"
	phone := "5511999999999@s.whatsapp.net"

	first, err := svc.Ingest(ctx, Inbound{
		TenantID:               "acme",
		Channel:                "whatsapp",
		ExternalConversationID: phone,
		ExternalMessageID:      "m-1",
		ChatType:               chat.TypeDM,
		Message:                message.CreateParams{Source: message.SourceRealtime, MessageType: message.TypeText, SentAt: time.Now()},
	})
	require.NoError(t, err)
	require.True(t, first.ChatCreated)

	require.NoError(t, svc.Correlate(ctx, "acme", "whatsapp", lid, phone))

	// The same contact arriving under its privacy identifier resolves
	// to the existing conversation instead of forking a new one.
	second, err := svc.Ingest(ctx, Inbound{
		TenantID:               "acme",
		Channel:                "whatsapp",
		ExternalConversationID: lid,
		ExternalMessageID:      "m-2",
		ChatType:               chat.TypeDM,
		Message:                message.CreateParams{Source: message.SourceRealtime, MessageType: message.TypeText, SentAt: time.Now()},
	})
	require.NoError(t, err)
	assert.False(t, second.ChatCreated)
	assert.Equal(t, first.Chat.ID, second.Chat.ID)
}

func TestCorrelateRejectsSingleFormChannels(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Correlate(context.Background(), "acme", "telegram", "123", "456")
	assert.Error(t, err)
}

func TestCorrelateRejectsUnclassifiableForms(t *testing.T) {
	svc, _, _ := newTestService(t)

	// Two canonical identifiers cannot be correlated.
	err := svc.Correlate(context.Background(), "acme", "whatsapp",
		"5511999999999@s.whatsapp.net", "5511888888888@s.whatsapp.net")
	assert.Error(t, err)
}
