package routes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Service manages routing rules and keeps the resolver cache honest
// across mutations.
type Service struct {
	store    Store
	resolver *Resolver
	logger   *slog.Logger
}

// NewService creates a route service. The resolver is optional; pass
// the one serving lookups so writes invalidate its cache.
func NewService(log *slog.Logger, store Store, resolver *Resolver) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		resolver: resolver,
		logger:   log.With(slog.String("service", "routes")),
	}
}

// Create stores a new routing rule. Conversation-scoped routes need a
// conversation id, person-scoped routes a person id.
func (s *Service) Create(ctx context.Context, params CreateParams) (Route, error) {
	params.TenantID = strings.TrimSpace(params.TenantID)
	params.AgentID = strings.TrimSpace(params.AgentID)
	if params.TenantID == "" {
		return Route{}, fmt.Errorf("tenant id is required")
	}
	if params.AgentID == "" {
		return Route{}, fmt.Errorf("agent id is required")
	}
	switch params.Scope {
	case ScopeChat:
		if params.ChatID == nil {
			return Route{}, fmt.Errorf("chat id is required for chat-scoped routes")
		}
	case ScopeUser:
		if params.PersonID == nil || strings.TrimSpace(*params.PersonID) == "" {
			return Route{}, fmt.Errorf("person id is required for user-scoped routes")
		}
	default:
		return Route{}, fmt.Errorf("unknown route scope %q", params.Scope)
	}

	route, err := s.store.Insert(ctx, params)
	if err != nil {
		return Route{}, err
	}
	s.invalidateTenant(route.TenantID)
	s.logger.Info("route created",
		slog.String("route_id", route.ID.String()),
		slog.String("tenant_id", route.TenantID),
		slog.String("scope", string(route.Scope)),
	)
	return route, nil
}

// GetByID fetches a route.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (Route, error) {
	return s.store.GetByID(ctx, id)
}

// List returns a tenant's routes, highest priority first.
func (s *Service) List(ctx context.Context, tenantID string, opts ListOptions) ([]Route, error) {
	return s.store.List(ctx, tenantID, opts)
}

// Update applies partial changes and invalidates cached resolutions.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (Route, error) {
	route, err := s.store.Update(ctx, id, params)
	if err != nil {
		return Route{}, err
	}
	s.invalidateTenant(route.TenantID)
	s.logger.Info("route updated", slog.String("route_id", id.String()))
	return route, nil
}

// Delete removes a route and invalidates cached resolutions.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	route, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateTenant(route.TenantID)
	s.logger.Info("route deleted", slog.String("route_id", id.String()))
	return nil
}

func (s *Service) invalidateTenant(tenantID string) {
	if s.resolver != nil {
		s.resolver.InvalidateTenant(tenantID)
	}
}
