package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/omnimsg/omnigate/internal/chat"
)

// ChatsHandler exposes conversation resolution and lifecycle endpoints.
type ChatsHandler struct {
	chats  *chat.Service
	logger *slog.Logger
}

// NewChatsHandler creates a ChatsHandler.
func NewChatsHandler(log *slog.Logger, chats *chat.Service) *ChatsHandler {
	return &ChatsHandler{
		chats:  chats,
		logger: log.With(slog.String("handler", "chats")),
	}
}

// Register registers all conversation routes.
func (h *ChatsHandler) Register(e *echo.Echo) {
	g := e.Group("/chats")
	g.GET("", h.List)
	g.POST("", h.FindOrCreate)
	g.GET("/:id", h.GetByID)
	g.POST("/:id/archive", h.Archive)
	g.POST("/:id/unarchive", h.Unarchive)
	g.PUT("/:id/canonical", h.SetCanonicalID)
	g.DELETE("/:id", h.Delete)
	e.POST("/mappings", h.UpsertMapping)
}

type findOrCreateChatRequest struct {
	TenantID   string  `json:"tenant_id"`
	ExternalID string  `json:"external_id"`
	Channel    string  `json:"channel"`
	ChatType   string  `json:"chat_type"`
	Name       *string `json:"name"`
}

type chatResponse struct {
	chat.Chat
	Created bool `json:"created"`
}

func (h *ChatsHandler) FindOrCreate(c echo.Context) error {
	var req findOrCreateChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.TenantID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant id is required")
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "external id is required")
	}

	result, created, err := h.chats.FindOrCreate(c.Request().Context(), chat.CreateParams{
		TenantID:   req.TenantID,
		ExternalID: req.ExternalID,
		Channel:    req.Channel,
		ChatType:   chat.ChatType(req.ChatType),
		Name:       req.Name,
	})
	if err != nil {
		return httpError(err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, chatResponse{Chat: result, Created: created})
}

func (h *ChatsHandler) List(c echo.Context) error {
	opts := chat.ListOptions{
		TenantID: strings.TrimSpace(c.QueryParam("tenant_id")),
		Search:   strings.TrimSpace(c.QueryParam("search")),
	}
	if raw := c.QueryParam("channel"); raw != "" {
		opts.Channels = strings.Split(raw, ",")
	}
	if raw := c.QueryParam("chat_type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			opts.ChatTypes = append(opts.ChatTypes, chat.ChatType(t))
		}
	}
	if raw := c.QueryParam("include_archived"); raw != "" {
		opts.IncludeArchived, _ = strconv.ParseBool(raw)
	}
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			opts.Limit = limit
		}
	}

	items, err := h.chats.List(c.Request().Context(), opts)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []chat.Chat{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ChatsHandler) GetByID(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	result, err := h.chats.GetByID(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ChatsHandler) Archive(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	result, err := h.chats.Archive(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ChatsHandler) Unarchive(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	result, err := h.chats.Unarchive(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type setCanonicalRequest struct {
	CanonicalID string `json:"canonical_id"`
}

func (h *ChatsHandler) SetCanonicalID(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req setCanonicalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.CanonicalID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "canonical id is required")
	}
	if err := h.chats.SetCanonicalID(c.Request().Context(), id, req.CanonicalID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ChatsHandler) Delete(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.chats.SoftDelete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type upsertMappingRequest struct {
	TenantID    string `json:"tenant_id"`
	AlternateID string `json:"alternate_id"`
	CanonicalID string `json:"canonical_id"`
}

func (h *ChatsHandler) UpsertMapping(c echo.Context) error {
	var req upsertMappingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.chats.UpsertMapping(c.Request().Context(), req.TenantID, req.AlternateID, req.CanonicalID); err != nil {
		if strings.Contains(err.Error(), "required") {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseUUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
