package routes

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

const routeColumns = `id, tenant_id, scope, chat_id, person_id, agent_id, label,
	priority, is_active, created_at, updated_at`

func scanRoute(row pgx.Row) (Route, error) {
	var r Route
	err := row.Scan(
		&r.ID, &r.TenantID, &r.Scope, &r.ChatID, &r.PersonID, &r.AgentID, &r.Label,
		&r.Priority, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return Route{}, db.NormalizeRowError(err)
	}
	return r, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (Route, error) {
	query := `SELECT ` + routeColumns + ` FROM agent_routes WHERE id = $1`
	return scanRoute(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) Insert(ctx context.Context, params CreateParams) (Route, error) {
	isActive := true
	if params.IsActive != nil {
		isActive = *params.IsActive
	}
	query := `
		INSERT INTO agent_routes (tenant_id, scope, chat_id, person_id, agent_id, label, priority, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + routeColumns
	return scanRoute(s.pool.QueryRow(ctx, query,
		params.TenantID, params.Scope, params.ChatID, params.PersonID,
		params.AgentID, params.Label, params.Priority, isActive,
	))
}

func (s *PostgresStore) List(ctx context.Context, tenantID string, opts ListOptions) ([]Route, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Scope != "" {
		conditions = append(conditions, "scope = "+arg(opts.Scope))
	}
	if opts.IsActive != nil {
		conditions = append(conditions, "is_active = "+arg(*opts.IsActive))
	}

	query := `SELECT ` + routeColumns + `
		FROM agent_routes
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY priority DESC, created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	var items []Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (Route, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return Route{}, err
	}

	agentID := current.AgentID
	if params.AgentID != nil {
		agentID = *params.AgentID
	}
	label := current.Label
	if params.Label != nil {
		label = params.Label
	}
	priority := current.Priority
	if params.Priority != nil {
		priority = *params.Priority
	}
	isActive := current.IsActive
	if params.IsActive != nil {
		isActive = *params.IsActive
	}

	query := `
		UPDATE agent_routes
		SET agent_id = $2, label = $3, priority = $4, is_active = $5, updated_at = now()
		WHERE id = $1
		RETURNING ` + routeColumns
	return scanRoute(s.pool.QueryRow(ctx, query, id, agentID, label, priority, isActive))
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agent_routes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete route: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// FindBest picks the winning route in SQL. A nil personID compares
// false against every person route, which is the intended "no person
// context" behavior.
func (s *PostgresStore) FindBest(ctx context.Context, tenantID string, chatID uuid.UUID, personID *string) (Route, error) {
	query := `
		SELECT ` + routeColumns + `
		FROM agent_routes
		WHERE tenant_id = $1
			AND is_active = true
			AND ((scope = 'chat' AND chat_id = $2) OR (scope = 'user' AND person_id = $3))
		ORDER BY CASE scope WHEN 'chat' THEN 0 ELSE 1 END, priority DESC
		LIMIT 1`
	return scanRoute(s.pool.QueryRow(ctx, query, tenantID, chatID, personID))
}
