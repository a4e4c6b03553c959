package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omnimsg/omnigate/internal/chat"
	"github.com/omnimsg/omnigate/internal/ingest"
	"github.com/omnimsg/omnigate/internal/message"
)

// IngestHandler receives normalized payloads from channel adapters.
type IngestHandler struct {
	ingest *ingest.Service
	logger *slog.Logger
}

// NewIngestHandler creates an IngestHandler.
func NewIngestHandler(log *slog.Logger, svc *ingest.Service) *IngestHandler {
	return &IngestHandler{
		ingest: svc,
		logger: log.With(slog.String("handler", "ingest")),
	}
}

// Register registers the ingestion routes.
func (h *IngestHandler) Register(e *echo.Echo) {
	e.POST("/ingest", h.Ingest)
	e.POST("/ingest/correlate", h.Correlate)
}

type ingestRequest struct {
	TenantID               string          `json:"tenant_id"`
	Channel                string          `json:"channel"`
	ExternalConversationID string          `json:"external_conversation_id"`
	ExternalMessageID      string          `json:"external_message_id"`
	ChatType               string          `json:"chat_type"`
	ChatName               *string         `json:"chat_name"`
	Source                 string          `json:"source"`
	MessageType            string          `json:"message_type"`
	TextContent            *string         `json:"text_content"`
	MediaURL               *string         `json:"media_url"`
	SenderID               *string         `json:"sender_id"`
	SenderName             *string         `json:"sender_name"`
	FromMe                 bool            `json:"from_me"`
	ReplyToID              *string         `json:"reply_to_id"`
	RawPayload             json.RawMessage `json:"raw_payload"`
	SentAt                 *string         `json:"sent_at"`
}

func (h *IngestHandler) Ingest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.TenantID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant id is required")
	}
	if strings.TrimSpace(req.ExternalConversationID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "external conversation id is required")
	}
	if strings.TrimSpace(req.ExternalMessageID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "external message id is required")
	}

	sentAt := time.Now().UTC()
	if req.SentAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.SentAt)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid sent_at timestamp")
		}
		sentAt = ts
	}
	source := message.Source(req.Source)
	if source == "" {
		source = message.SourceAPI
	}
	msgType := message.Type(req.MessageType)
	if msgType == "" {
		msgType = message.TypeText
	}

	result, err := h.ingest.Ingest(c.Request().Context(), ingest.Inbound{
		TenantID:               req.TenantID,
		Channel:                req.Channel,
		ExternalConversationID: req.ExternalConversationID,
		ExternalMessageID:      req.ExternalMessageID,
		ChatType:               chat.ChatType(req.ChatType),
		ChatName:               req.ChatName,
		Message: message.CreateParams{
			Source:      source,
			MessageType: msgType,
			TextContent: req.TextContent,
			MediaURL:    req.MediaURL,
			SenderID:    req.SenderID,
			SenderName:  req.SenderName,
			FromMe:      req.FromMe,
			ReplyToID:   req.ReplyToID,
			RawPayload:  req.RawPayload,
			SentAt:      sentAt,
		},
	})
	if err != nil {
		return httpError(err)
	}
	status := http.StatusOK
	if result.MessageCreated {
		status = http.StatusCreated
	}
	return c.JSON(status, result)
}

type correlateRequest struct {
	TenantID string `json:"tenant_id"`
	Channel  string `json:"channel"`
	FormA    string `json:"form_a"`
	FormB    string `json:"form_b"`
}

func (h *IngestHandler) Correlate(c echo.Context) error {
	var req correlateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.ingest.Correlate(c.Request().Context(), req.TenantID, req.Channel, req.FormA, req.FormB); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
