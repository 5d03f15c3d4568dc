package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	oauthadapter "github.com/smallbiznis/botgate/internal/adapter/oauth"
	"github.com/smallbiznis/botgate/internal/domain"
	"github.com/smallbiznis/botgate/internal/service"
)

type exchangeProviderClient struct {
	stubProviderClient
	response *oauthadapter.TokenResponse
	err      error
	lastCode string
}

func (e *exchangeProviderClient) ExchangeCode(_ context.Context, _ oauthadapter.ProviderConfig, code, _ string) (*oauthadapter.TokenResponse, error) {
	e.lastCode = code
	if e.err != nil {
		return nil, e.err
	}
	return e.response, nil
}

func newOAuthTestHarness(client oauthadapter.ProviderClient) (*gin.Engine, *memorySessionStore) {
	gin.SetMode(gin.TestMode)
	store := newMemorySessionStore()
	provider := oauthadapter.ProviderConfig{ClientID: "client", ClientSecret: "secret", TokenURL: "https://example.com/token"}
	sessions := service.NewSessionService(store, client, provider, zap.NewNop())
	h := NewOAuthHandler(sessions, client, provider, "https://bot.example.com/oauth/callback", zap.NewNop())

	engine := gin.New()
	engine.GET("/oauth/callback", h.Callback)
	engine.POST("/auth/revoke", h.Revoke)
	return engine, store
}

func TestOAuthCallback_EstablishesSession(t *testing.T) {
	client := &exchangeProviderClient{response: &oauthadapter.TokenResponse{
		AccessToken:  "a1",
		RefreshToken: "r1",
		ExpiresIn:    3600,
		UserID:       "U1",
		WorkspaceID:  "W1",
	}}
	engine, store := newOAuthTestHarness(client)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=auth-code", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "connected")
	require.Equal(t, "auth-code", client.lastCode)

	rec, err := store.Get(context.Background(), "U1", "W1")
	require.NoError(t, err)
	require.Equal(t, "a1", rec.Tokens.AccessToken)
}

func TestOAuthCallback_DeniedAndMissingCode(t *testing.T) {
	engine, _ := newOAuthTestHarness(&exchangeProviderClient{})

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?error=access_denied", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/oauth/callback", nil)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOAuthRevoke(t *testing.T) {
	client := &exchangeProviderClient{response: &oauthadapter.TokenResponse{
		AccessToken: "a1",
		UserID:      "U1",
		WorkspaceID: "W1",
	}}
	engine, store := newOAuthTestHarness(client)
	store.put("U1", "W1", domain.TokenSet{AccessToken: "a1"})

	req := httptest.NewRequest(http.MethodPost, "/auth/revoke", strings.NewReader(`{"user_id":"U1","workspace_id":"W1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"revoked":true`)

	ok, err := store.Exists(context.Background(), "U1", "W1")
	require.NoError(t, err)
	require.False(t, ok)
}
