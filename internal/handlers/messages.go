package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omnimsg/omnigate/internal/message"
)

// MessagesHandler exposes message read and mutation endpoints.
type MessagesHandler struct {
	messages *message.Service
	logger   *slog.Logger
}

// NewMessagesHandler creates a MessagesHandler.
func NewMessagesHandler(log *slog.Logger, messages *message.Service) *MessagesHandler {
	return &MessagesHandler{
		messages: messages,
		logger:   log.With(slog.String("handler", "messages")),
	}
}

// Register registers all message routes.
func (h *MessagesHandler) Register(e *echo.Echo) {
	e.GET("/chats/:chat_id/messages", h.ListByChat)
	e.GET("/chats/:chat_id/messages/count", h.CountByChat)

	g := e.Group("/messages")
	g.GET("/:id", h.GetByID)
	g.POST("/:id/edit", h.RecordEdit)
	g.POST("/:id/reactions", h.AddReaction)
	g.DELETE("/:id/reactions", h.RemoveReaction)
	g.PUT("/:id/delivery", h.UpdateDeliveryStatus)
	g.DELETE("/:id", h.MarkDeleted)
}

func (h *MessagesHandler) ListByChat(c echo.Context) error {
	chatID, err := parseUUIDParam(c, "chat_id")
	if err != nil {
		return err
	}
	opts := message.ListOptions{
		ChatID: chatID,
		Search: strings.TrimSpace(c.QueryParam("search")),
	}
	if raw := c.QueryParam("source"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			opts.Sources = append(opts.Sources, message.Source(s))
		}
	}
	if raw := c.QueryParam("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			opts.Types = append(opts.Types, message.Type(t))
		}
	}
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			opts.Limit = limit
		}
	}
	if raw := c.QueryParam("since"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			opts.Since = &ts
		}
	}
	if raw := c.QueryParam("until"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			opts.Until = &ts
		}
	}

	items, err := h.messages.List(c.Request().Context(), opts)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []message.Message{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *MessagesHandler) CountByChat(c echo.Context) error {
	chatID, err := parseUUIDParam(c, "chat_id")
	if err != nil {
		return err
	}
	count, err := h.messages.CountByChat(c.Request().Context(), chatID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

func (h *MessagesHandler) GetByID(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	m, err := h.messages.GetByID(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

type recordEditRequest struct {
	Text     string  `json:"text"`
	EditedAt *string `json:"edited_at"`
	EditedBy *string `json:"edited_by"`
}

func (h *MessagesHandler) RecordEdit(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req recordEditRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	editedAt := time.Now().UTC()
	if req.EditedAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.EditedAt)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid edited_at timestamp")
		}
		editedAt = ts
	}

	m, err := h.messages.RecordEdit(c.Request().Context(), id, req.Text, editedAt, req.EditedBy)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

type reactionRequest struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user_id"`
}

func (h *MessagesHandler) AddReaction(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req reactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Emoji == "" || req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "emoji and user_id are required")
	}
	m, err := h.messages.AddReaction(c.Request().Context(), id, req.Emoji, req.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *MessagesHandler) RemoveReaction(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req reactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Emoji == "" || req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "emoji and user_id are required")
	}
	m, err := h.messages.RemoveReaction(c.Request().Context(), id, req.UserID, req.Emoji)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

type deliveryStatusRequest struct {
	Status string `json:"status"`
}

func (h *MessagesHandler) UpdateDeliveryStatus(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req deliveryStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Status) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}
	m, err := h.messages.UpdateDeliveryStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *MessagesHandler) MarkDeleted(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	m, err := h.messages.MarkDeleted(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}
