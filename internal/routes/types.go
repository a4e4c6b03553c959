// Package routes maps conversations and people to the agent that
// should handle them. Resolution prefers a conversation-scoped route
// over a person-scoped one, then higher priority.
package routes

import (
	"time"

	"github.com/google/uuid"
)

// Scope says what a route binds to.
type Scope string

const (
	ScopeChat Scope = "chat"
	ScopeUser Scope = "user"
)

// Route is one stored routing rule.
type Route struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Scope     Scope      `json:"scope"`
	ChatID    *uuid.UUID `json:"chat_id,omitempty"`
	PersonID  *string    `json:"person_id,omitempty"`
	AgentID   string     `json:"agent_id"`
	Label     *string    `json:"label,omitempty"`
	Priority  int        `json:"priority"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CreateParams carry the fields for a new route.
type CreateParams struct {
	TenantID string
	Scope    Scope
	ChatID   *uuid.UUID
	PersonID *string
	AgentID  string
	Label    *string
	Priority int
	IsActive *bool
}

// UpdateParams carry partial route updates; nil fields are left alone.
type UpdateParams struct {
	AgentID  *string
	Label    *string
	Priority *int
	IsActive *bool
}

// ListOptions filter List.
type ListOptions struct {
	Scope    Scope
	IsActive *bool
}
