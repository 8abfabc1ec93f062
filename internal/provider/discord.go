package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmonster/booster-apply/internal/domain"
)

const (
	discordAPIBase    = "https://discord.com/api/v10"
	discordAuthorize  = "https://discord.com/oauth2/authorize"
	discordOAuthScope = "identify email"
)

// DiscordConfig configures the OAuth client.
type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// BaseURL overrides the Discord API origin. Tests point it at a local
	// server; production leaves it empty.
	BaseURL string
}

// DiscordClient drives the OAuth authorization-code flow against the Discord
// API and fetches the authenticated user's profile.
type DiscordClient struct {
	cfg        DiscordConfig
	apiBase    string
	authorize  string
	httpClient *http.Client
}

// NewDiscordClient creates a DiscordClient.
func NewDiscordClient(cfg DiscordConfig) *DiscordClient {
	apiBase := discordAPIBase
	authorize := discordAuthorize
	if cfg.BaseURL != "" {
		base := strings.TrimRight(cfg.BaseURL, "/")
		apiBase = base + "/api/v10"
		authorize = base + "/oauth2/authorize"
	}
	return &DiscordClient{
		cfg:        cfg,
		apiBase:    apiBase,
		authorize:  authorize,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// AuthURL builds the authorization redirect carrying the CSRF state nonce.
func (c *DiscordClient) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", discordOAuthScope)
	q.Set("state", state)
	return c.authorize + "?" + q.Encode()
}

// Exchange trades an authorization code for an access token.
func (c *DiscordClient) Exchange(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access token")
	}
	return token.AccessToken, nil
}

// FetchIdentity loads the authenticated user's profile.
func (c *DiscordClient) FetchIdentity(ctx context.Context, accessToken string) (*domain.DiscordIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch discord profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("profile endpoint returned %d: %s", resp.StatusCode, body)
	}

	var user struct {
		ID            string `json:"id"`
		Username      string `json:"username"`
		Discriminator string `json:"discriminator"`
		Avatar        string `json:"avatar"`
		Email         string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode profile response: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("profile response carried no user id")
	}

	return &domain.DiscordIdentity{
		ID:            user.ID,
		Username:      user.Username,
		Discriminator: user.Discriminator,
		Avatar:        user.Avatar,
		Email:         user.Email,
	}, nil
}

// Authenticate runs the full callback half of the flow: code for token,
// token for identity.
func (c *DiscordClient) Authenticate(ctx context.Context, code string) (*domain.DiscordIdentity, error) {
	token, err := c.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	return c.FetchIdentity(ctx, token)
}
