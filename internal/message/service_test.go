package message

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnimsg/omnigate/internal/db"
)

// chatAggregates mirrors the owning conversation's derived fields so
// tests can assert the count moves in lockstep with the rows.
type chatAggregates struct {
	MessageCount int
	LastAt       time.Time
	Preview      string
}

// fakeStore is an in-memory Store enforcing the (chat_id, external_id)
// uniqueness constraint and applying aggregates atomically with the
// insert, like the real schema does.
type fakeStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID]Message
	chats    map[uuid.UUID]*chatAggregates
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: map[uuid.UUID]Message{},
		chats:    map[uuid.UUID]*chatAggregates{},
	}
}

func (f *fakeStore) aggregates(chatID uuid.UUID) chatAggregates {
	f.mu.Lock()
	defer f.mu.Unlock()
	agg := f.chats[chatID]
	if agg == nil {
		return chatAggregates{}
	}
	return *agg
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return Message{}, db.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) GetByExternalID(_ context.Context, chatID uuid.UUID, externalID string) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ChatID == chatID && m.ExternalID == externalID {
			return m, nil
		}
	}
	return Message{}, db.ErrNotFound
}

func (f *fakeStore) Insert(_ context.Context, params CreateParams) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ChatID == params.ChatID && m.ExternalID == params.ExternalID {
			return Message{}, db.ErrConflict
		}
	}

	now := time.Now()
	sentAt := params.SentAt
	if sentAt.IsZero() {
		sentAt = now
	}
	m := Message{
		ID:          uuid.New(),
		ChatID:      params.ChatID,
		ExternalID:  params.ExternalID,
		Source:      params.Source,
		MessageType: params.MessageType,
		TextContent: params.TextContent,
		FromMe:      params.FromMe,
		Status:      StatusActive,
		EditHistory: []EditEntry{},
		Reactions:   []Reaction{},
		SentAt:      sentAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.messages[m.ID] = m

	agg := f.chats[params.ChatID]
	if agg == nil {
		agg = &chatAggregates{}
		f.chats[params.ChatID] = agg
	}
	agg.MessageCount++
	if sentAt.After(agg.LastAt) {
		agg.LastAt = sentAt
	}
	preview := params.Preview
	if preview == "" {
		preview = BuildPreview(params.TextContent)
	}
	agg.Preview = preview
	return m, nil
}

func (f *fakeStore) List(_ context.Context, opts ListOptions) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []Message
	for _, m := range f.messages {
		if m.DeletedAt != nil {
			continue
		}
		if opts.ChatID != uuid.Nil && m.ChatID != opts.ChatID {
			continue
		}
		if opts.Search != "" && (m.TextContent == nil || !strings.Contains(*m.TextContent, opts.Search)) {
			continue
		}
		items = append(items, m)
	}
	return items, nil
}

func (f *fakeStore) CountByChat(_ context.Context, chatID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		if m.ChatID == chatID && m.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ApplyEdit(_ context.Context, id uuid.UUID, update EditUpdate, _ time.Time) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return Message{}, db.ErrNotFound
	}
	text := update.TextContent
	m.TextContent = &text
	m.OriginalText = update.OriginalText
	m.EditCount = update.EditCount
	m.EditHistory = update.EditHistory
	m.Status = update.Status
	m.UpdatedAt = time.Now()
	f.messages[id] = m
	return m, nil
}

func (f *fakeStore) SetReactions(_ context.Context, id uuid.UUID, reactions []Reaction, counts map[string]int) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return Message{}, db.ErrNotFound
	}
	m.Reactions = reactions
	if len(counts) == 0 {
		m.ReactionCounts = nil
	} else {
		m.ReactionCounts = counts
	}
	m.UpdatedAt = time.Now()
	f.messages[id] = m
	return m, nil
}

func (f *fakeStore) SetDeliveryStatus(_ context.Context, id uuid.UUID, status string) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return Message{}, db.ErrNotFound
	}
	m.DeliveryStatus = &status
	f.messages[id] = m
	return m, nil
}

func (f *fakeStore) MarkDeleted(_ context.Context, id uuid.UUID) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return Message{}, db.ErrNotFound
	}
	now := time.Now()
	m.Status = StatusDeleted
	m.DeletedAt = &now
	f.messages[id] = m
	return m, nil
}

func strPtr(s string) *string { return &s }

func TestFindOrCreateKeepsOriginalContent(t *testing.T) {
	store := newFakeStore()
	svc := NewService(nil, store)
	ctx := context.Background()
	chatID := uuid.New()

	first, created, err := svc.FindOrCreate(ctx, CreateParams{
		ChatID:      chatID,
		ExternalID:  "msg-1",
		Source:      SourceRealtime,
		MessageType: TypeText,
		TextContent: strPtr("Original"),
	})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.FindOrCreate(ctx, CreateParams{
		ChatID:      chatID,
		ExternalID:  "msg-1",
		Source:      SourceSync,
		MessageType: TypeText,
		TextContent: strPtr("Different text"),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.TextContent)
	assert.Equal(t, "Original", *second.TextContent)

	assert.Equal(t, 1, store.aggregates(chatID).MessageCount)
}

func TestConcurrentFindOrCreateAppliesAggregateOnce(t *testing.T) {
	store := newFakeStore()
	svc := NewService(nil, store)
	ctx := context.Background()
	chatID := uuid.New()

	const n = 16
	createdResults := make(chan bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := svc.FindOrCreate(ctx, CreateParams{
				ChatID:      chatID,
				ExternalID:  "race-msg",
				Source:      SourceRealtime,
				MessageType: TypeText,
				TextContent: strPtr("hello"),
			})
			assert.NoError(t, err)
			createdResults <- created
		}()
	}
	wg.Wait()
	close(createdResults)

	createdCount := 0
	for created := range createdResults {
		if created {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)

	rows, err := svc.CountByChat(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
	assert.Equal(t, 1, store.aggregates(chatID).MessageCount, "aggregate increments exactly once")
}

func TestCreateDuplicateSurfacesConflict(t *testing.T) {
	svc := NewService(nil, newFakeStore())
	ctx := context.Background()
	params := CreateParams{
		ChatID:      uuid.New(),
		ExternalID:  "dup",
		Source:      SourceAPI,
		MessageType: TypeText,
		TextContent: strPtr("x"),
	}

	_, err := svc.Create(ctx, params)
	require.NoError(t, err)
	_, err = svc.Create(ctx, params)
	assert.ErrorIs(t, err, db.ErrConflict)
}

func TestRecordEditCapturesOriginalOnce(t *testing.T) {
	svc := NewService(nil, newFakeStore())
	ctx := context.Background()

	m, err := svc.Create(ctx, CreateParams{
		ChatID:      uuid.New(),
		ExternalID:  "edit-me",
		Source:      SourceRealtime,
		MessageType: TypeText,
		TextContent: strPtr("first"),
	})
	require.NoError(t, err)

	editor := "user-9"
	edited, err := svc.RecordEdit(ctx, m.ID, "second", time.Now(), &editor)
	require.NoError(t, err)
	assert.Equal(t, StatusEdited, edited.Status)
	assert.Equal(t, 1, edited.EditCount)
	require.NotNil(t, edited.OriginalText)
	assert.Equal(t, "first", *edited.OriginalText)
	require.Len(t, edited.EditHistory, 1)
	assert.Equal(t, "second", edited.EditHistory[0].Text)
	require.NotNil(t, edited.EditHistory[0].By)
	assert.Equal(t, "user-9", *edited.EditHistory[0].By)

	again, err := svc.RecordEdit(ctx, m.ID, "third", time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, again.EditCount)
	require.NotNil(t, again.OriginalText)
	assert.Equal(t, "first", *again.OriginalText, "original text never overwritten")
	assert.Len(t, again.EditHistory, 2)
}

func TestReactionsAddRemoveRoundTrip(t *testing.T) {
	svc := NewService(nil, newFakeStore())
	ctx := context.Background()

	m, err := svc.Create(ctx, CreateParams{
		ChatID:      uuid.New(),
		ExternalID:  "react",
		Source:      SourceRealtime,
		MessageType: TypeText,
		TextContent: strPtr("hi"),
	})
	require.NoError(t, err)

	withReaction, err := svc.AddReaction(ctx, m.ID, "👍", "user-1")
	require.NoError(t, err)
	assert.Len(t, withReaction.Reactions, 1)
	assert.Equal(t, map[string]int{"👍": 1}, withReaction.ReactionCounts)

	// Same (user, emoji) again is a no-op.
	dup, err := svc.AddReaction(ctx, m.ID, "👍", "user-1")
	require.NoError(t, err)
	assert.Len(t, dup.Reactions, 1)
	assert.Equal(t, map[string]int{"👍": 1}, dup.ReactionCounts)

	other, err := svc.AddReaction(ctx, m.ID, "👍", "user-2")
	require.NoError(t, err)
	assert.Len(t, other.Reactions, 2)
	assert.Equal(t, map[string]int{"👍": 2}, other.ReactionCounts)

	removed, err := svc.RemoveReaction(ctx, m.ID, "user-2", "👍")
	require.NoError(t, err)
	assert.Len(t, removed.Reactions, 1)
	assert.Equal(t, map[string]int{"👍": 1}, removed.ReactionCounts)

	// Removing the last entry drops the emoji key entirely.
	empty, err := svc.RemoveReaction(ctx, m.ID, "user-1", "👍")
	require.NoError(t, err)
	assert.Empty(t, empty.Reactions)
	assert.Nil(t, empty.ReactionCounts)

	// Removing a reaction that is not there is a no-op.
	same, err := svc.RemoveReaction(ctx, m.ID, "user-1", "👍")
	require.NoError(t, err)
	assert.Empty(t, same.Reactions)
}

func TestMarkDeletedKeepsAggregateCount(t *testing.T) {
	store := newFakeStore()
	svc := NewService(nil, store)
	ctx := context.Background()
	chatID := uuid.New()

	m, err := svc.Create(ctx, CreateParams{
		ChatID:      chatID,
		ExternalID:  "gone",
		Source:      SourceRealtime,
		MessageType: TypeText,
		TextContent: strPtr("bye"),
	})
	require.NoError(t, err)

	deleted, err := svc.MarkDeleted(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, deleted.Status)
	assert.NotNil(t, deleted.DeletedAt)

	items, err := svc.List(ctx, ListOptions{ChatID: chatID})
	require.NoError(t, err)
	assert.Empty(t, items, "deleted messages leave default listings")

	assert.Equal(t, 1, store.aggregates(chatID).MessageCount, "count reflects retracted history")
}

func TestUpdateDeliveryStatus(t *testing.T) {
	svc := NewService(nil, newFakeStore())
	ctx := context.Background()

	m, err := svc.Create(ctx, CreateParams{
		ChatID:      uuid.New(),
		ExternalID:  "dlv",
		Source:      SourceRealtime,
		MessageType: TypeText,
		TextContent: strPtr("hi"),
	})
	require.NoError(t, err)

	updated, err := svc.UpdateDeliveryStatus(ctx, m.ID, "read")
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveryStatus)
	assert.Equal(t, "read", *updated.DeliveryStatus)

	_, err = svc.UpdateDeliveryStatus(ctx, uuid.New(), "read")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestBuildPreview(t *testing.T) {
	assert.Equal(t, "[Media]", BuildPreview(nil))
	assert.Equal(t, "[Media]", BuildPreview(strPtr("   ")))
	assert.Equal(t, "hello", BuildPreview(strPtr("hello")))

	long := strings.Repeat("a", PreviewMaxLen+100)
	assert.Len(t, BuildPreview(&long), PreviewMaxLen)
}
