package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// jwtStrategy verifies JWT bearer tokens against a single key source:
// a JWKS endpoint, an HMAC shared secret, or a static PEM public key.
type jwtStrategy struct {
	cfg    JWTConfig
	rsaKey *rsa.PublicKey
	jwks   *jwksCache
	opts   []jwt.ParserOption
	logger *zap.Logger
}

func newJWTStrategy(cfg JWTConfig, client httpDoer, logger *zap.Logger) (*jwtStrategy, error) {
	s := &jwtStrategy{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "jwt_verifier")),
	}

	switch {
	case cfg.JWKSURI != "":
		s.jwks = newJWKSCache(cfg.JWKSURI, client, logger)
		s.opts = []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	case cfg.Secret != "":
		alg := strings.ToUpper(cfg.Algorithm)
		switch alg {
		case "HS256", "HS384", "HS512":
		default:
			return nil, configError(fmt.Sprintf("unsupported HMAC algorithm %q", cfg.Algorithm))
		}
		s.opts = []jwt.ParserOption{jwt.WithValidMethods([]string{alg})}
	case cfg.PublicKey != "":
		key, err := parseRSAPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, configError("invalid public_key: " + err.Error())
		}
		s.rsaKey = key
		s.opts = []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	}

	s.opts = append(s.opts,
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	return s, nil
}

func (s *jwtStrategy) Type() StrategyType    { return StrategyJWT }
func (s *jwtStrategy) TokenEndpoint() string { return "" }

// Verify parses and validates the token, then maps the standard claims.
func (s *jwtStrategy) Verify(ctx context.Context, tokenStr string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, s.keyFunc(ctx), s.opts...)
	if err != nil {
		s.logger.Debug("JWT validation failed", zap.Error(err))
		return nil, unauthorized("invalid or expired token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, unauthorized("invalid token claims")
	}

	claims := claimsFromMap(mapClaims)
	if !claims.HasScopes(s.cfg.RequiredScopes) {
		return nil, unauthorizedf("token is missing required scopes %v", s.cfg.RequiredScopes)
	}
	return claims, nil
}

func (s *jwtStrategy) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		switch token.Method.Alg() {
		case "HS256", "HS384", "HS512":
			if s.cfg.Secret == "" {
				return nil, fmt.Errorf("HMAC secret not configured")
			}
			return []byte(s.cfg.Secret), nil
		case "RS256", "RS384", "RS512":
			if s.rsaKey != nil {
				return s.rsaKey, nil
			}
			if s.jwks != nil {
				kid, _ := token.Header["kid"].(string)
				return s.jwks.Key(ctx, kid)
			}
			return nil, fmt.Errorf("RSA key not configured")
		default:
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
	}
}

// claimsFromMap extracts the identity fields snowgate cares about. Scopes
// come from either a space-separated "scope" string or a "scp" list.
func claimsFromMap(m jwt.MapClaims) *Claims {
	claims := &Claims{Raw: map[string]any(m)}
	if sub, ok := m["sub"].(string); ok {
		claims.Subject = sub
	}
	if cid, ok := m["client_id"].(string); ok {
		claims.ClientID = cid
	}
	if scope, ok := m["scope"].(string); ok && scope != "" {
		claims.Scopes = strings.Fields(scope)
	} else if scp, ok := m["scp"].([]any); ok {
		for _, v := range scp {
			if s, ok := v.(string); ok {
				claims.Scopes = append(claims.Scopes, s)
			}
		}
	}
	if exp, err := m.GetExpirationTime(); err == nil && exp != nil {
		claims.Expiry = exp.Time
	}
	return claims
}

func parseRSAPublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return key, nil
}
