package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/botgate/internal/domain"
	"github.com/smallbiznis/botgate/internal/http/middleware"
	"github.com/smallbiznis/botgate/internal/service"
)

// WebhookHandler receives signed platform callbacks and turns them into
// dispatched work.
type WebhookHandler struct {
	Sessions *service.SessionService
	Dispatch *service.DispatchService
	Logger   *zap.Logger
}

// NewWebhookHandler creates the webhook handler set.
func NewWebhookHandler(sessions *service.SessionService, dispatch *service.DispatchService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &WebhookHandler{Sessions: sessions, Dispatch: dispatch, Logger: logger}
}

type eventEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	TeamID    string `json:"team_id"`
	Event     struct {
		Type     string `json:"type"`
		User     string `json:"user"`
		Channel  string `json:"channel"`
		Text     string `json:"text"`
		ThreadTS string `json:"thread_ts"`
		BotID    string `json:"bot_id"`
	} `json:"event"`
}

// Events handles the platform's event subscription callback. The signature
// middleware has already verified the raw bytes this decodes.
func (h *WebhookHandler) Events(c *gin.Context) {
	body, ok := middleware.RawBody(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	switch envelope.Type {
	case "url_verification":
		c.JSON(http.StatusOK, gin.H{"challenge": envelope.Challenge})
		return
	case "event_callback":
		// Ignore the bot's own messages to avoid dispatch loops.
		if envelope.Event.BotID != "" {
			c.Status(http.StatusOK)
			return
		}
		h.handleEvent(c, envelope)
	default:
		c.Status(http.StatusOK)
	}
}

func (h *WebhookHandler) handleEvent(c *gin.Context, envelope eventEnvelope) {
	ctx := c.Request.Context()
	userID := envelope.Event.User
	workspaceID := envelope.TeamID

	if _, err := h.Sessions.EnsureValid(ctx, userID, workspaceID); err != nil {
		h.respondAuthFailure(c, err, userID, workspaceID)
		return
	}

	_, err := h.Dispatch.Enqueue(ctx, domain.WorkItem{
		UserID:      userID,
		WorkspaceID: workspaceID,
		ChannelID:   envelope.Event.Channel,
		Text:        envelope.Event.Text,
		ThreadTS:    envelope.Event.ThreadTS,
	})
	if err != nil {
		h.respondDispatchFailure(c, err, userID, workspaceID)
		return
	}

	c.Status(http.StatusOK)
}

// Commands handles slash-command callbacks. The body is form-encoded; the
// platform expects an immediate response while the work runs async.
func (h *WebhookHandler) Commands(c *gin.Context) {
	body, ok := middleware.RawBody(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	ctx := c.Request.Context()
	userID := form.Get("user_id")
	workspaceID := form.Get("team_id")

	if _, err := h.Sessions.EnsureValid(ctx, userID, workspaceID); err != nil {
		h.respondAuthFailure(c, err, userID, workspaceID)
		return
	}

	text := strings.TrimSpace(form.Get("text"))
	_, err = h.Dispatch.Enqueue(ctx, domain.WorkItem{
		UserID:      userID,
		WorkspaceID: workspaceID,
		ChannelID:   form.Get("channel_id"),
		Text:        text,
		ResponseURL: form.Get("response_url"),
	})
	if err != nil {
		h.respondDispatchFailure(c, err, userID, workspaceID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"response_type": "ephemeral",
		"text":          "Working on it. I'll post the result here shortly.",
	})
}

// respondAuthFailure maps session errors to user-facing outcomes without
// leaking storage or crypto details.
func (h *WebhookHandler) respondAuthFailure(c *gin.Context, err error, userID, workspaceID string) {
	switch {
	case errors.Is(err, domain.ErrReauthRequired):
		c.JSON(http.StatusOK, gin.H{
			"response_type": "ephemeral",
			"text":          "Your session has expired. Please re-authenticate to continue.",
		})
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.Logger.Error("session store unavailable",
			zap.String("user_id", userID),
			zap.String("workspace_id", workspaceID),
			zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily_unavailable"})
	default:
		h.Logger.Error("session lookup failed",
			zap.String("user_id", userID),
			zap.String("workspace_id", workspaceID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
	}
}

func (h *WebhookHandler) respondDispatchFailure(c *gin.Context, err error, userID, workspaceID string) {
	if errors.Is(err, domain.ErrInvalidWork) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.Logger.Error("dispatch failed",
		zap.String("user_id", userID),
		zap.String("workspace_id", workspaceID),
		zap.Error(err))
	c.JSON(http.StatusOK, gin.H{
		"response_type": "ephemeral",
		"text":          "Sorry, your request could not be queued. Please try again shortly.",
	})
}
