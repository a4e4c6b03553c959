package message

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnimsg/omnigate/internal/db"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store over a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const messageColumns = `id, chat_id, external_id, source, message_type, text_content, media_url,
	sender_id, sender_name, from_me, status, delivery_status, original_text, edit_count,
	edit_history, reactions, reaction_counts, reply_to_id, forwarded_from, raw_payload,
	sent_at, deleted_at, created_at, updated_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	var editHistory, reactions []byte
	var counts []byte
	err := row.Scan(
		&m.ID, &m.ChatID, &m.ExternalID, &m.Source, &m.MessageType, &m.TextContent, &m.MediaURL,
		&m.SenderID, &m.SenderName, &m.FromMe, &m.Status, &m.DeliveryStatus, &m.OriginalText, &m.EditCount,
		&editHistory, &reactions, &counts, &m.ReplyToID, &m.ForwardedFrom, &m.RawPayload,
		&m.SentAt, &m.DeletedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return Message{}, db.NormalizeRowError(err)
	}
	if err := json.Unmarshal(editHistory, &m.EditHistory); err != nil {
		return Message{}, fmt.Errorf("decode edit history: %w", err)
	}
	if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
		return Message{}, fmt.Errorf("decode reactions: %w", err)
	}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &m.ReactionCounts); err != nil {
			return Message{}, fmt.Errorf("decode reaction counts: %w", err)
		}
	}
	return m, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	return scanMessage(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) GetByExternalID(ctx context.Context, chatID uuid.UUID, externalID string) (Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages WHERE chat_id = $1 AND external_id = $2`
	return scanMessage(s.pool.QueryRow(ctx, query, chatID, externalID))
}

// Insert writes the message row and the owning conversation's
// aggregate update in one transaction. The aggregate statement is a
// single atomic UPDATE so concurrent inserts against the same
// conversation serialize at the row level.
func (s *PostgresStore) Insert(ctx context.Context, params CreateParams) (Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	sentAt := params.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	preview := params.Preview
	if preview == "" {
		preview = BuildPreview(params.TextContent)
	}
	rawPayload := params.RawPayload
	if len(rawPayload) == 0 {
		rawPayload = nil
	}

	insert := `
		INSERT INTO messages (chat_id, external_id, source, message_type, text_content,
			media_url, sender_id, sender_name, from_me, reply_to_id, forwarded_from,
			raw_payload, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + messageColumns
	m, err := scanMessage(tx.QueryRow(ctx, insert,
		params.ChatID, params.ExternalID, params.Source, params.MessageType, params.TextContent,
		params.MediaURL, params.SenderID, params.SenderName, params.FromMe, params.ReplyToID,
		params.ForwardedFrom, rawPayload, sentAt,
	))
	if err != nil {
		return Message{}, err
	}

	aggregate := `
		UPDATE chats
		SET message_count = message_count + 1,
			last_message_at = GREATEST(coalesce(last_message_at, 'epoch'::timestamptz), $2),
			last_message_preview = $3,
			updated_at = now()
		WHERE id = $1`
	if _, err := tx.Exec(ctx, aggregate, params.ChatID, sentAt, preview); err != nil {
		return Message{}, fmt.Errorf("update chat aggregates: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]Message, error) {
	conditions := []string{"deleted_at IS NULL"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.ChatID != uuid.Nil {
		conditions = append(conditions, "chat_id = "+arg(opts.ChatID))
	}
	if len(opts.Sources) > 0 {
		conditions = append(conditions, "source = ANY("+arg(asStrings(opts.Sources))+")")
	}
	if len(opts.Types) > 0 {
		conditions = append(conditions, "message_type = ANY("+arg(asStrings(opts.Types))+")")
	}
	if len(opts.Statuses) > 0 {
		conditions = append(conditions, "status = ANY("+arg(asStrings(opts.Statuses))+")")
	}
	if opts.Search != "" {
		conditions = append(conditions, "text_content ILIKE "+arg("%"+opts.Search+"%"))
	}
	if opts.Since != nil {
		conditions = append(conditions, "sent_at >= "+arg(*opts.Since))
	}
	if opts.Until != nil {
		conditions = append(conditions, "sent_at <= "+arg(*opts.Until))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY sent_at DESC
		LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (s *PostgresStore) CountByChat(ctx context.Context, chatID uuid.UUID) (int, error) {
	var n int
	query := `SELECT count(*) FROM messages WHERE chat_id = $1 AND deleted_at IS NULL`
	if err := s.pool.QueryRow(ctx, query, chatID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ApplyEdit(ctx context.Context, id uuid.UUID, update EditUpdate, editedAt time.Time) (Message, error) {
	history, err := json.Marshal(update.EditHistory)
	if err != nil {
		return Message{}, fmt.Errorf("encode edit history: %w", err)
	}
	query := `
		UPDATE messages
		SET text_content = $2, original_text = $3, edit_count = $4, edit_history = $5,
			status = $6, updated_at = now()
		WHERE id = $1
		RETURNING ` + messageColumns
	return scanMessage(s.pool.QueryRow(ctx, query,
		id, update.TextContent, update.OriginalText, update.EditCount, history, update.Status,
	))
}

func (s *PostgresStore) SetReactions(ctx context.Context, id uuid.UUID, reactions []Reaction, counts map[string]int) (Message, error) {
	if reactions == nil {
		reactions = []Reaction{}
	}
	reactionsJSON, err := json.Marshal(reactions)
	if err != nil {
		return Message{}, fmt.Errorf("encode reactions: %w", err)
	}
	var countsJSON []byte
	if len(counts) > 0 {
		countsJSON, err = json.Marshal(counts)
		if err != nil {
			return Message{}, fmt.Errorf("encode reaction counts: %w", err)
		}
	}
	query := `
		UPDATE messages
		SET reactions = $2, reaction_counts = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + messageColumns
	return scanMessage(s.pool.QueryRow(ctx, query, id, reactionsJSON, countsJSON))
}

func (s *PostgresStore) SetDeliveryStatus(ctx context.Context, id uuid.UUID, status string) (Message, error) {
	query := `
		UPDATE messages SET delivery_status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + messageColumns
	return scanMessage(s.pool.QueryRow(ctx, query, id, status))
}

// MarkDeleted sets the terminal deleted state. The owning chat's
// message_count is intentionally left alone: the count reflects
// delivered-then-retracted history, not physical removal.
func (s *PostgresStore) MarkDeleted(ctx context.Context, id uuid.UUID) (Message, error) {
	query := `
		UPDATE messages SET status = $2, deleted_at = now(), updated_at = now()
		WHERE id = $1
		RETURNING ` + messageColumns
	return scanMessage(s.pool.QueryRow(ctx, query, id, StatusDeleted))
}

func asStrings[T ~string](items []T) []string {
	out := make([]string, len(items))
	for i, v := range items {
		out[i] = string(v)
	}
	return out
}
