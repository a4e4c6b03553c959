package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/omnimsg/omnigate/internal/routes"
)

// RoutesHandler exposes agent route management and resolution.
type RoutesHandler struct {
	routes   *routes.Service
	resolver *routes.Resolver
	logger   *slog.Logger
}

// NewRoutesHandler creates a RoutesHandler.
func NewRoutesHandler(log *slog.Logger, svc *routes.Service, resolver *routes.Resolver) *RoutesHandler {
	return &RoutesHandler{
		routes:   svc,
		resolver: resolver,
		logger:   log.With(slog.String("handler", "routes")),
	}
}

// Register registers the route management routes.
func (h *RoutesHandler) Register(e *echo.Echo) {
	g := e.Group("/routes")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/resolve", h.Resolve)
	g.GET("/metrics", h.Metrics)
	g.GET("/:id", h.GetByID)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

type createRouteRequest struct {
	TenantID string  `json:"tenant_id"`
	Scope    string  `json:"scope"`
	ChatID   *string `json:"chat_id"`
	PersonID *string `json:"person_id"`
	AgentID  string  `json:"agent_id"`
	Label    *string `json:"label"`
	Priority int     `json:"priority"`
	IsActive *bool   `json:"is_active"`
}

func (h *RoutesHandler) Create(c echo.Context) error {
	var req createRouteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	params := routes.CreateParams{
		TenantID: req.TenantID,
		Scope:    routes.Scope(req.Scope),
		PersonID: req.PersonID,
		AgentID:  req.AgentID,
		Label:    req.Label,
		Priority: req.Priority,
		IsActive: req.IsActive,
	}
	if req.ChatID != nil {
		chatID, err := uuid.Parse(*req.ChatID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid chat_id")
		}
		params.ChatID = &chatID
	}

	route, err := h.routes.Create(c.Request().Context(), params)
	if err != nil {
		if strings.Contains(err.Error(), "required") || strings.Contains(err.Error(), "scope") {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, route)
}

func (h *RoutesHandler) List(c echo.Context) error {
	tenantID := strings.TrimSpace(c.QueryParam("tenant_id"))
	if tenantID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant_id is required")
	}
	opts := routes.ListOptions{Scope: routes.Scope(c.QueryParam("scope"))}
	if raw := c.QueryParam("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid is_active")
		}
		opts.IsActive = &active
	}

	items, err := h.routes.List(c.Request().Context(), tenantID, opts)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []routes.Route{}
	}
	return c.JSON(http.StatusOK, items)
}

type resolveResponse struct {
	Route *routes.Route `json:"route"`
}

func (h *RoutesHandler) Resolve(c echo.Context) error {
	tenantID := strings.TrimSpace(c.QueryParam("tenant_id"))
	if tenantID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant_id is required")
	}
	chatID, err := uuid.Parse(strings.TrimSpace(c.QueryParam("chat_id")))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid chat_id")
	}
	var personID *string
	if raw := strings.TrimSpace(c.QueryParam("person_id")); raw != "" {
		personID = &raw
	}

	route, err := h.resolver.Resolve(c.Request().Context(), tenantID, chatID, personID)
	if err != nil {
		return httpError(err)
	}
	// A null route means "use the tenant default"; that is a valid
	// answer, not a 404.
	return c.JSON(http.StatusOK, resolveResponse{Route: route})
}

func (h *RoutesHandler) Metrics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.resolver.Metrics())
}

func (h *RoutesHandler) GetByID(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	route, err := h.routes.GetByID(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, route)
}

type updateRouteRequest struct {
	AgentID  *string `json:"agent_id"`
	Label    *string `json:"label"`
	Priority *int    `json:"priority"`
	IsActive *bool   `json:"is_active"`
}

func (h *RoutesHandler) Update(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req updateRouteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	route, err := h.routes.Update(c.Request().Context(), id, routes.UpdateParams{
		AgentID:  req.AgentID,
		Label:    req.Label,
		Priority: req.Priority,
		IsActive: req.IsActive,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, route)
}

func (h *RoutesHandler) Delete(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.routes.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
