package apikeys

import (
	"context"
	"encoding/json"
	"fmt"
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

const keyColumns = `id, name, key_hash, key_prefix, scopes, is_active, last_used_at,
	usage_count, expires_at, created_at`

func scanKey(row pgx.Row) (Key, error) {
	var k Key
	var keyPrefix string
	var scopes []byte
	err := row.Scan(
		&k.ID, &k.Name, &k.KeyHash, &keyPrefix, &scopes, &k.IsActive, &k.LastUsedAt,
		&k.UsageCount, &k.ExpiresAt, &k.CreatedAt,
	)
	if err != nil {
		return Key{}, db.NormalizeRowError(err)
	}
	if err := json.Unmarshal(scopes, &k.Scopes); err != nil {
		return Key{}, fmt.Errorf("decode scopes: %w", err)
	}
	k.KeyDisplay = MaskKey(keyPrefix)
	return k, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (Key, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE id = $1`
	return scanKey(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) GetByHash(ctx context.Context, keyHash string) (Key, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE key_hash = $1`
	return scanKey(s.pool.QueryRow(ctx, query, keyHash))
}

func (s *PostgresStore) GetByName(ctx context.Context, name string) (Key, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE name = $1 ORDER BY created_at LIMIT 1`
	return scanKey(s.pool.QueryRow(ctx, query, name))
}

func (s *PostgresStore) Insert(ctx context.Context, params InsertParams) (Key, error) {
	scopes, err := json.Marshal(params.Scopes)
	if err != nil {
		return Key{}, fmt.Errorf("encode scopes: %w", err)
	}
	query := `
		INSERT INTO api_keys (name, key_hash, key_prefix, scopes, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + keyColumns
	return scanKey(s.pool.QueryRow(ctx, query,
		params.Name, params.KeyHash, params.KeyPrefix, scopes, params.ExpiresAt,
	))
}

func (s *PostgresStore) List(ctx context.Context) ([]Key, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var items []Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, k)
	}
	return items, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (Key, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return Key{}, err
	}

	name := current.Name
	if params.Name != nil {
		name = *params.Name
	}
	scopes := current.Scopes
	if params.Scopes != nil {
		scopes = params.Scopes
	}
	expiresAt := current.ExpiresAt
	if params.ClearTTL {
		expiresAt = nil
	} else if params.ExpiresAt != nil {
		expiresAt = params.ExpiresAt
	}

	scopesJSON, err := json.Marshal(scopes)
	if err != nil {
		return Key{}, fmt.Errorf("encode scopes: %w", err)
	}
	query := `
		UPDATE api_keys SET name = $2, scopes = $3, expires_at = $4
		WHERE id = $1
		RETURNING ` + keyColumns
	return scanKey(s.pool.QueryRow(ctx, query, id, name, scopesJSON, expiresAt))
}

func (s *PostgresStore) SetActive(ctx context.Context, id uuid.UUID, active bool) (Key, error) {
	query := `
		UPDATE api_keys SET is_active = $2
		WHERE id = $1
		RETURNING ` + keyColumns
	return scanKey(s.pool.QueryRow(ctx, query, id, active))
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) BumpUsage(ctx context.Context, id uuid.UUID, count int64, lastUsed time.Time) error {
	query := `
		UPDATE api_keys
		SET usage_count = usage_count + $2,
			last_used_at = GREATEST(coalesce(last_used_at, 'epoch'::timestamptz), $3)
		WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id, count, lastUsed); err != nil {
		return fmt.Errorf("bump key usage: %w", err)
	}
	return nil
}
