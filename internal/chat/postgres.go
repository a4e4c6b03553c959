package chat

import (
	"context"
	"fmt"
	"strings"

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

const chatColumns = `id, tenant_id, external_id, canonical_id, channel, chat_type, name,
	message_count, last_message_at, last_message_preview, participant_count,
	archived_at, deleted_at, created_at, updated_at`

func scanChat(row pgx.Row) (Chat, error) {
	var c Chat
	err := row.Scan(
		&c.ID, &c.TenantID, &c.ExternalID, &c.CanonicalID, &c.Channel, &c.ChatType, &c.Name,
		&c.MessageCount, &c.LastMessageAt, &c.LastMessagePreview, &c.ParticipantCount,
		&c.ArchivedAt, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Chat{}, db.NormalizeRowError(err)
	}
	return c, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1 AND deleted_at IS NULL`
	return scanChat(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) GetByExternalID(ctx context.Context, tenantID, externalID string) (Chat, error) {
	query := `SELECT ` + chatColumns + `
		FROM chats WHERE tenant_id = $1 AND external_id = $2 AND deleted_at IS NULL`
	return scanChat(s.pool.QueryRow(ctx, query, tenantID, externalID))
}

func (s *PostgresStore) GetByCanonicalID(ctx context.Context, tenantID, canonicalID string) (Chat, error) {
	query := `SELECT ` + chatColumns + `
		FROM chats WHERE tenant_id = $1 AND canonical_id = $2 AND deleted_at IS NULL
		LIMIT 1`
	return scanChat(s.pool.QueryRow(ctx, query, tenantID, canonicalID))
}

func (s *PostgresStore) Insert(ctx context.Context, params CreateParams) (Chat, error) {
	query := `
		INSERT INTO chats (tenant_id, external_id, canonical_id, channel, chat_type, name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + chatColumns
	return scanChat(s.pool.QueryRow(ctx, query,
		params.TenantID, params.ExternalID, params.CanonicalID,
		params.Channel, params.ChatType, params.Name,
	))
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]Chat, error) {
	conditions := []string{"deleted_at IS NULL"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.TenantID != "" {
		conditions = append(conditions, "tenant_id = "+arg(opts.TenantID))
	}
	if len(opts.Channels) > 0 {
		conditions = append(conditions, "channel = ANY("+arg(opts.Channels)+")")
	}
	if len(opts.ChatTypes) > 0 {
		types := make([]string, len(opts.ChatTypes))
		for i, t := range opts.ChatTypes {
			types[i] = string(t)
		}
		conditions = append(conditions, "chat_type = ANY("+arg(types)+")")
	}
	if opts.Search != "" {
		pattern := "%" + opts.Search + "%"
		p := arg(pattern)
		conditions = append(conditions,
			"(name ILIKE "+p+" OR external_id ILIKE "+p+" OR canonical_id ILIKE "+p+")")
	}
	if !opts.IncludeArchived {
		conditions = append(conditions, "archived_at IS NULL")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + chatColumns + `
		FROM chats
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY last_message_at DESC NULLS LAST
		LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var items []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (s *PostgresStore) SetArchived(ctx context.Context, id uuid.UUID, archived bool) (Chat, error) {
	query := `
		UPDATE chats
		SET archived_at = CASE WHEN $2 THEN now() ELSE NULL END, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + chatColumns
	return scanChat(s.pool.QueryRow(ctx, query, id, archived))
}

func (s *PostgresStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE chats SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("soft delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetCanonicalID(ctx context.Context, id uuid.UUID, canonicalID string) error {
	query := `UPDATE chats SET canonical_id = $2, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, canonicalID)
	if err != nil {
		return fmt.Errorf("set canonical id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func scanMapping(row pgx.Row) (Mapping, error) {
	var m Mapping
	err := row.Scan(&m.ID, &m.TenantID, &m.AlternateID, &m.CanonicalID, &m.DiscoveredFrom, &m.DiscoveredAt)
	if err != nil {
		return Mapping{}, db.NormalizeRowError(err)
	}
	return m, nil
}

const mappingColumns = `id, tenant_id, alternate_id, canonical_id, discovered_from, discovered_at`

func (s *PostgresStore) GetMappingByAlternate(ctx context.Context, tenantID, alternateID string) (Mapping, error) {
	query := `SELECT ` + mappingColumns + `
		FROM chat_id_mappings WHERE tenant_id = $1 AND alternate_id = $2`
	return scanMapping(s.pool.QueryRow(ctx, query, tenantID, alternateID))
}

func (s *PostgresStore) GetMappingByCanonical(ctx context.Context, tenantID, canonicalID string) (Mapping, error) {
	query := `SELECT ` + mappingColumns + `
		FROM chat_id_mappings WHERE tenant_id = $1 AND canonical_id = $2
		LIMIT 1`
	return scanMapping(s.pool.QueryRow(ctx, query, tenantID, canonicalID))
}

func (s *PostgresStore) UpsertMapping(ctx context.Context, tenantID, alternateID, canonicalID, discoveredFrom string) error {
	query := `
		INSERT INTO chat_id_mappings (tenant_id, alternate_id, canonical_id, discovered_from)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, alternate_id)
		DO UPDATE SET canonical_id = EXCLUDED.canonical_id, discovered_at = now()`
	if _, err := s.pool.Exec(ctx, query, tenantID, alternateID, canonicalID, discoveredFrom); err != nil {
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return nil
}
