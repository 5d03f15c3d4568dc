package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func providerConfig(tokenURL string) ProviderConfig {
	return ProviderConfig{ClientID: "client", ClientSecret: "secret", TokenURL: tokenURL}
}

func TestHTTPProviderClient_RefreshToken(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"refresh_token": r.PostFormValue("refresh_token"),
			"client_id":     r.PostFormValue("client_id"),
			"client_secret": r.PostFormValue("client_secret"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"access_token":"a2","refresh_token":"r2","expires_in":43200,"scope":"chat:write"}`))
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(srv.Client())
	resp, err := client.RefreshToken(context.Background(), providerConfig(srv.URL), "r1")
	require.NoError(t, err)
	require.Equal(t, "a2", resp.AccessToken)
	require.Equal(t, "r2", resp.RefreshToken)
	require.Equal(t, int64(43200), resp.ExpiresIn)
	require.Equal(t, "chat:write", resp.Scope)

	require.Equal(t, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": "r1",
		"client_id":     "client",
		"client_secret": "secret",
	}, gotForm)
}

func TestHTTPProviderClient_SlackStyleErrorBody(t *testing.T) {
	// Slack reports failures inside a 200 response.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"error":"invalid_refresh_token"}`))
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(srv.Client())
	_, err := client.RefreshToken(context.Background(), providerConfig(srv.URL), "r1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid_refresh_token")
}

func TestHTTPProviderClient_ExchangeCodeUserScopedInstall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostFormValue("grant_type"))
		require.Equal(t, "auth-code", r.PostFormValue("code"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"team":{"id":"W1"},"authed_user":{"id":"U1","access_token":"xoxp-1","refresh_token":"xoxe-1","expires_in":43200,"scope":"chat:write"}}`))
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(srv.Client())
	resp, err := client.ExchangeCode(context.Background(), providerConfig(srv.URL), "auth-code", "https://bot.example.com/oauth/callback")
	require.NoError(t, err)
	require.Equal(t, "U1", resp.UserID)
	require.Equal(t, "W1", resp.WorkspaceID)
	require.Equal(t, "xoxp-1", resp.AccessToken)
	require.Equal(t, "xoxe-1", resp.RefreshToken)
}

func TestHTTPProviderClient_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(srv.Client())
	_, err := client.RefreshToken(context.Background(), providerConfig(srv.URL), "r1")
	require.Error(t, err)
}

func TestHTTPProviderClient_MissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"scope":"chat:write"}`))
	}))
	defer srv.Close()

	client := NewHTTPProviderClient(srv.Client())
	_, err := client.RefreshToken(context.Background(), providerConfig(srv.URL), "r1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing access token")
}

func TestHTTPProviderClient_HonorsContextDeadline(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := NewHTTPProviderClient(srv.Client())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.RefreshToken(ctx, providerConfig(srv.URL), "r1")
	require.Error(t, err)
}
