package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BaSui01/snowgate/types"
)

// StrategyType enumerates the supported authentication strategies.
type StrategyType string

const (
	StrategyNone        StrategyType = "none"
	StrategyStaticToken StrategyType = "static-token"
	StrategyJWT         StrategyType = "jwt"
	StrategyOAuthProxy  StrategyType = "oauth-proxy"
	StrategyOIDCProxy   StrategyType = "oidc-proxy"
	StrategyRemoteOAuth StrategyType = "remote-oauth"
)

// Config selects one strategy and carries its parameters. Exactly the
// sub-config matching Strategy is consulted; the rest are ignored.
type Config struct {
	Strategy StrategyType `yaml:"strategy" env:"STRATEGY"`

	Static      StaticConfig      `yaml:"static" env:"STATIC"`
	JWT         JWTConfig         `yaml:"jwt" env:"JWT"`
	OAuthProxy  OAuthProxyConfig  `yaml:"oauth_proxy" env:"OAUTH_PROXY"`
	OIDCProxy   OIDCProxyConfig   `yaml:"oidc_proxy" env:"OIDC_PROXY"`
	RemoteOAuth RemoteOAuthConfig `yaml:"remote_oauth" env:"REMOTE_OAUTH"`
}

// StaticToken describes one accepted static token.
type StaticToken struct {
	ClientID string   `yaml:"client_id"`
	Scopes   []string `yaml:"scopes"`
}

// StaticConfig configures the static-token strategy: a fixed map of
// accepted tokens, intended for development and tests.
type StaticConfig struct {
	Tokens map[string]StaticToken `yaml:"tokens" env:"-"`
}

// JWTConfig configures JWT verification. Exactly one key source must be
// set: JWKSURI, or Algorithm+Secret (HMAC), or PublicKey (PEM). Issuer and
// Audience are always required.
type JWTConfig struct {
	JWKSURI        string   `yaml:"jwks_uri" env:"JWKS_URI"`
	Issuer         string   `yaml:"issuer" env:"ISSUER"`
	Audience       string   `yaml:"audience" env:"AUDIENCE"`
	Algorithm      string   `yaml:"algorithm" env:"ALGORITHM"`
	Secret         string   `yaml:"secret" env:"SECRET"`
	PublicKey      string   `yaml:"public_key" env:"PUBLIC_KEY"`
	RequiredScopes []string `yaml:"required_scopes" env:"REQUIRED_SCOPES"`
}

// OAuthProxyConfig configures the oauth-proxy strategy: this process
// terminates an upstream authorization-code flow and verifies the
// re-issued tokens with Verifier.
type OAuthProxyConfig struct {
	UpstreamAuthEndpoint  string    `yaml:"upstream_auth_endpoint" env:"UPSTREAM_AUTH_ENDPOINT"`
	UpstreamTokenEndpoint string    `yaml:"upstream_token_endpoint" env:"UPSTREAM_TOKEN_ENDPOINT"`
	ClientID              string    `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret          string    `yaml:"client_secret" env:"CLIENT_SECRET"`
	BaseURL               string    `yaml:"base_url" env:"BASE_URL"`
	AllowedRedirectURIs   []string  `yaml:"allowed_redirect_uris" env:"ALLOWED_REDIRECT_URIS"`
	Verifier              JWTConfig `yaml:"verifier" env:"VERIFIER"`
}

// OIDCProxyConfig configures the oidc-proxy strategy: the whole
// authorization flow is delegated to an external OIDC provider, resolved
// through its discovery document.
type OIDCProxyConfig struct {
	ConfigURL           string   `yaml:"config_url" env:"CONFIG_URL"`
	ClientID            string   `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret        string   `yaml:"client_secret" env:"CLIENT_SECRET"`
	BaseURL             string   `yaml:"base_url" env:"BASE_URL"`
	AllowedRedirectURIs []string `yaml:"allowed_redirect_uris" env:"ALLOWED_REDIRECT_URIS"`
}

// RemoteOAuthConfig configures the remote-oauth strategy: tokens issued by
// the listed external authorization servers are accepted after
// verification.
type RemoteOAuthConfig struct {
	AuthServers []string  `yaml:"auth_servers" env:"AUTH_SERVERS"`
	BaseURL     string    `yaml:"base_url" env:"BASE_URL"`
	Verifier    JWTConfig `yaml:"verifier" env:"VERIFIER"`
}

// validate checks the strategy-specific required fields and returns a
// CONFIG_ERROR naming every missing or conflicting one.
func (c Config) validate() error {
	switch c.Strategy {
	case StrategyNone, "":
		return nil
	case StrategyStaticToken:
		if len(c.Static.Tokens) == 0 {
			return configError("static-token requires at least one token in static.tokens")
		}
		return nil
	case StrategyJWT:
		return c.JWT.validate("jwt")
	case StrategyOAuthProxy:
		var missing []string
		if c.OAuthProxy.UpstreamAuthEndpoint == "" {
			missing = append(missing, "oauth_proxy.upstream_auth_endpoint")
		}
		if c.OAuthProxy.UpstreamTokenEndpoint == "" {
			missing = append(missing, "oauth_proxy.upstream_token_endpoint")
		}
		if c.OAuthProxy.ClientID == "" {
			missing = append(missing, "oauth_proxy.client_id")
		}
		if c.OAuthProxy.ClientSecret == "" {
			missing = append(missing, "oauth_proxy.client_secret")
		}
		if c.OAuthProxy.BaseURL == "" {
			missing = append(missing, "oauth_proxy.base_url")
		}
		if len(missing) > 0 {
			return configError("oauth-proxy requires " + strings.Join(missing, ", "))
		}
		if err := validateRedirectURIs("oauth_proxy", c.OAuthProxy.AllowedRedirectURIs); err != nil {
			return err
		}
		return c.OAuthProxy.Verifier.validate("oauth_proxy.verifier")
	case StrategyOIDCProxy:
		var missing []string
		if c.OIDCProxy.ConfigURL == "" {
			missing = append(missing, "oidc_proxy.config_url")
		}
		if c.OIDCProxy.ClientID == "" {
			missing = append(missing, "oidc_proxy.client_id")
		}
		if c.OIDCProxy.ClientSecret == "" {
			missing = append(missing, "oidc_proxy.client_secret")
		}
		if c.OIDCProxy.BaseURL == "" {
			missing = append(missing, "oidc_proxy.base_url")
		}
		if len(missing) > 0 {
			return configError("oidc-proxy requires " + strings.Join(missing, ", "))
		}
		return validateRedirectURIs("oidc_proxy", c.OIDCProxy.AllowedRedirectURIs)
	case StrategyRemoteOAuth:
		var missing []string
		if len(c.RemoteOAuth.AuthServers) == 0 {
			missing = append(missing, "remote_oauth.auth_servers")
		}
		if c.RemoteOAuth.BaseURL == "" {
			missing = append(missing, "remote_oauth.base_url")
		}
		if len(missing) > 0 {
			return configError("remote-oauth requires " + strings.Join(missing, ", "))
		}
		return c.RemoteOAuth.Verifier.validate("remote_oauth.verifier")
	default:
		return configError(fmt.Sprintf("unknown auth strategy %q", c.Strategy))
	}
}

// validateRedirectURIs rejects allow-list entries that are not absolute
// http(s) URLs or that carry a fragment. An empty list is valid and means
// no redirect-based flow is offered.
func validateRedirectURIs(prefix string, uris []string) error {
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return configError(fmt.Sprintf("%s.allowed_redirect_uris entry %q is not an absolute http(s) URL", prefix, raw))
		}
		if u.Fragment != "" {
			return configError(fmt.Sprintf("%s.allowed_redirect_uris entry %q must not carry a fragment", prefix, raw))
		}
	}
	return nil
}

// validate enforces the key-source exclusivity rule: exactly one of
// jwks_uri, algorithm+secret, or public_key.
func (j JWTConfig) validate(prefix string) error {
	sources := 0
	if j.JWKSURI != "" {
		sources++
	}
	if j.Algorithm != "" || j.Secret != "" {
		if j.Algorithm == "" || j.Secret == "" {
			return configError(prefix + " HMAC verification requires both algorithm and secret")
		}
		sources++
	}
	if j.PublicKey != "" {
		sources++
	}
	if sources == 0 {
		return configError(prefix + " requires one of jwks_uri, algorithm+secret, or public_key")
	}
	if sources > 1 {
		return configError(prefix + " key sources conflict: set only one of jwks_uri, algorithm+secret, or public_key")
	}
	if j.Issuer == "" {
		return configError(prefix + " requires issuer")
	}
	if j.Audience == "" {
		return configError(prefix + " requires audience")
	}
	return nil
}

func configError(msg string) error {
	return types.NewError(types.ErrConfig, msg)
}
