package config

import "slices"

// OIDCConfig holds OIDC authentication configuration for the operations API
// (only used in production mode)
type OIDCConfig struct {
	IssuerURL     string   `env:"ISSUER_URL"`
	ClientID      string   `env:"CLIENT_ID"`
	ClientSecret  string   `env:"CLIENT_SECRET"`
	RedirectURL   string   `env:"REDIRECT_URL"`
	AllowedEmails []string `env:"ALLOWED_EMAILS" envSeparator:","`
}

// IsConfigured returns true if OIDC is fully configured
func (c *OIDCConfig) IsConfigured() bool {
	return c.IssuerURL != "" &&
		c.ClientID != "" &&
		c.ClientSecret != ""
}

// IsAllowed returns true if the email may call the API. An empty allow
// list admits every verified user.
func (c *OIDCConfig) IsAllowed(email string) bool {
	return len(c.AllowedEmails) == 0 || slices.Contains(c.AllowedEmails, email)
}
