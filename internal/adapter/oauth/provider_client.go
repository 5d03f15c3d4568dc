package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProviderConfig identifies this service to the external identity provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// TokenResponse models the provider's token endpoint response for both the
// authorization-code and refresh-token grants.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Scope        string
	UserID       string
	WorkspaceID  string
}

// ProviderClient encapsulates outbound HTTP calls to the identity provider's
// token endpoint.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, cfg ProviderConfig, code, redirectURI string) (*TokenResponse, error)
	RefreshToken(ctx context.Context, cfg ProviderConfig, refreshToken string) (*TokenResponse, error)
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
}

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client}
}

// ExchangeCode redeems an authorization code for a token set.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, cfg ProviderConfig, code, redirectURI string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	if strings.TrimSpace(redirectURI) != "" {
		data.Set("redirect_uri", redirectURI)
	}
	return c.tokenRequest(ctx, cfg, data)
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *HTTPProviderClient) RefreshToken(ctx context.Context, cfg ProviderConfig, refreshToken string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, cfg, data)
}

func (c *HTTPProviderClient) tokenRequest(ctx context.Context, cfg ProviderConfig, data url.Values) (*TokenResponse, error) {
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing")
	}
	data.Set("client_id", cfg.ClientID)
	if cfg.ClientSecret != "" {
		data.Set("client_secret", cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token request failed: status=%d", resp.StatusCode)
	}

	var raw struct {
		OK           *bool  `json:"ok"`
		Error        string `json:"error"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope"`
		AuthedUser   struct {
			ID           string `json:"id"`
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int64  `json:"expires_in"`
			Scope        string `json:"scope"`
		} `json:"authed_user"`
		Team struct {
			ID string `json:"id"`
		} `json:"team"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	// Slack-style endpoints report errors inside a 200 body.
	if raw.OK != nil && !*raw.OK {
		return nil, fmt.Errorf("token request rejected: %s", raw.Error)
	}

	token := &TokenResponse{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		ExpiresIn:    raw.ExpiresIn,
		Scope:        raw.Scope,
		UserID:       raw.AuthedUser.ID,
		WorkspaceID:  raw.Team.ID,
	}
	// User-scoped installs carry the token set under authed_user.
	if token.AccessToken == "" && raw.AuthedUser.AccessToken != "" {
		token.AccessToken = raw.AuthedUser.AccessToken
		token.RefreshToken = raw.AuthedUser.RefreshToken
		token.ExpiresIn = raw.AuthedUser.ExpiresIn
		token.Scope = raw.AuthedUser.Scope
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access token")
	}
	return token, nil
}
