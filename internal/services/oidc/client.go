package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/benvon/ai-task/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	// GoogleIssuer is the issuer of Google ID tokens
	GoogleIssuer = "https://accounts.google.com"
	// GoogleJWKSURL serves the keys Google signs ID tokens with
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	// GoogleUserInfoURL returns the profile of the token owner
	GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// GoogleConfig holds the OAuth client registration
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Client wraps OAuth2 client functionality for Google sign-in
type Client struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewClient creates a new OAuth2 client for Google
func NewClient(cfg GoogleConfig) *Client {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     endpoints.Google,
	}

	return &Client{config: config, userInfoURL: GoogleUserInfoURL}
}

// Configured reports whether a client id is set
func (c *Client) Configured() bool {
	return c.config.ClientID != ""
}

// ClientID returns the OAuth client id, the expected ID token audience
func (c *Client) ClientID() string {
	return c.config.ClientID
}

// AuthCodeURL returns the authorization URL. Offline access is requested so
// Google returns a refresh token.
func (c *Client) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange exchanges an authorization code for tokens
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}

// FetchUserInfo loads the profile of the token owner
func (c *Client) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*models.GoogleProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	var profile models.GoogleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if profile.GoogleID == "" || profile.Email == "" {
		return nil, fmt.Errorf("user info is missing sub or email")
	}
	return &profile, nil
}
