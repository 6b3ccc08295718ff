// Package quickbooks talks to QuickBooks Online: the OAuth2 authorization flow,
// the v3 REST API and the per-user session built from stored tokens.
package quickbooks

import (
	"errors"
	"strings"
)

const (
	SandboxBaseURL    = "https://sandbox-quickbooks.api.intuit.com"
	ProductionBaseURL = "https://quickbooks.api.intuit.com"
	DefaultAuthURL    = "https://appcenter.intuit.com/connect/oauth2"
	DefaultTokenURL   = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	DefaultRevokeURL  = "https://developer.api.intuit.com/v2/oauth2/tokens/revoke"

	// Scope is the only OAuth scope requested.
	Scope = "com.intuit.quickbooks.accounting"

	// MinorVersion is pinned on every API request.
	MinorVersion = "65"
)

var ErrMissingCredentials = errors.New("QuickBooks client id, client secret and redirect URI are required")

// Config configures the OAuth flow and the REST client. Empty URLs take the
// defaults for Environment.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Environment  string // sandbox | production

	BaseURL   string
	AuthURL   string
	TokenURL  string
	RevokeURL string
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" || strings.TrimSpace(c.RedirectURI) == "" {
		return ErrMissingCredentials
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = SandboxBaseURL
		if c.Environment == "production" {
			c.BaseURL = ProductionBaseURL
		}
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.RevokeURL == "" {
		c.RevokeURL = DefaultRevokeURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}
