package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	oauthadapter "github.com/smallbiznis/botgate/internal/adapter/oauth"
	"github.com/smallbiznis/botgate/internal/domain"
	"github.com/smallbiznis/botgate/internal/service"
)

// OAuthHandler completes the interactive OAuth flow and manages session
// revocation.
type OAuthHandler struct {
	Sessions       *service.SessionService
	ProviderClient oauthadapter.ProviderClient
	Provider       oauthadapter.ProviderConfig
	RedirectURI    string
	Logger         *zap.Logger
}

// NewOAuthHandler creates the OAuth handler set.
func NewOAuthHandler(sessions *service.SessionService, client oauthadapter.ProviderClient, provider oauthadapter.ProviderConfig, redirectURI string, logger *zap.Logger) *OAuthHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &OAuthHandler{
		Sessions:       sessions,
		ProviderClient: client,
		Provider:       provider,
		RedirectURI:    redirectURI,
		Logger:         logger,
	}
}

const successPage = `<!DOCTYPE html>
<html>
<head><title>Connected</title></head>
<body>
<h1>You're connected.</h1>
<p>You can close this window and return to your workspace.</p>
</body>
</html>`

const failurePage = `<!DOCTYPE html>
<html>
<head><title>Something went wrong</title></head>
<body>
<h1>Authorization failed.</h1>
<p>Please return to your workspace and try connecting again.</p>
</body>
</html>`

// Callback exchanges the authorization code and establishes the encrypted
// session record.
func (h *OAuthHandler) Callback(c *gin.Context) {
	if denied := c.Query("error"); denied != "" {
		h.Logger.Warn("oauth authorization denied", zap.String("error", denied))
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8", []byte(failurePage))
		return
	}

	code := c.Query("code")
	if code == "" {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8", []byte(failurePage))
		return
	}

	ctx := c.Request.Context()
	token, err := h.ProviderClient.ExchangeCode(ctx, h.Provider, code, h.RedirectURI)
	if err != nil {
		h.Logger.Error("oauth code exchange failed", zap.Error(err))
		c.Data(http.StatusBadGateway, "text/html; charset=utf-8", []byte(failurePage))
		return
	}
	if token.UserID == "" || token.WorkspaceID == "" {
		h.Logger.Error("oauth token response missing identity fields")
		c.Data(http.StatusBadGateway, "text/html; charset=utf-8", []byte(failurePage))
		return
	}

	if _, err := h.Sessions.Establish(ctx, token.UserID, token.WorkspaceID, token); err != nil {
		h.Logger.Error("session establish failed",
			zap.String("user_id", token.UserID),
			zap.String("workspace_id", token.WorkspaceID),
			zap.Error(err))
		c.Data(http.StatusServiceUnavailable, "text/html; charset=utf-8", []byte(failurePage))
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(successPage))
}

// Revoke deletes the caller's session record.
func (h *OAuthHandler) Revoke(c *gin.Context) {
	var req struct {
		UserID      string `json:"user_id" binding:"required"`
		WorkspaceID string `json:"workspace_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	ok, err := h.Sessions.Revoke(c.Request.Context(), req.UserID, req.WorkspaceID)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily_unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": ok})
}
