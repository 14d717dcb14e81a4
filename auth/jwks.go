package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// httpDoer is the subset of *http.Client the auth package needs; tests
// inject their own.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// jwksRefreshInterval bounds how often an unknown kid triggers a refetch.
const jwksRefreshInterval = 5 * time.Minute

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

// jwksCache fetches a JWKS endpoint lazily and caches the parsed RSA keys
// by kid. A verification hitting an unknown kid forces a refetch, rate
// limited by jwksRefreshInterval so a flood of bad tokens cannot hammer
// the endpoint.
type jwksCache struct {
	uri    string
	client httpDoer

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time

	logger *zap.Logger
}

func newJWKSCache(uri string, client httpDoer, logger *zap.Logger) *jwksCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &jwksCache{
		uri:    uri,
		client: client,
		keys:   make(map[string]*rsa.PublicKey),
		logger: logger.With(zap.String("component", "jwks_cache")),
	}
}

// Key returns the RSA public key for kid. When kid is empty and exactly
// one key is cached, that key is returned.
func (c *jwksCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key := c.lookupLocked(kid); key != nil {
		return key, nil
	}

	if time.Since(c.fetchedAt) < jwksRefreshInterval && !c.fetchedAt.IsZero() {
		return nil, fmt.Errorf("no key for kid %q", kid)
	}
	if err := c.fetchLocked(ctx); err != nil {
		return nil, err
	}
	if key := c.lookupLocked(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("no key for kid %q", kid)
}

func (c *jwksCache) lookupLocked(kid string) *rsa.PublicKey {
	if kid == "" && len(c.keys) == 1 {
		for _, key := range c.keys {
			return key
		}
	}
	return c.keys[kid]
}

func (c *jwksCache) fetchLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("jwks fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("jwks parse failed: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		key, err := k.rsaPublicKey()
		if err != nil {
			c.logger.Warn("skipping unparseable JWKS key", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys[k.Kid] = key
	}
	if len(keys) == 0 {
		return fmt.Errorf("jwks document at %s contains no usable RSA keys", c.uri)
	}

	c.keys = keys
	c.fetchedAt = time.Now()
	c.logger.Debug("JWKS refreshed", zap.Int("keys", len(keys)))
	return nil
}

func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("zero exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}
