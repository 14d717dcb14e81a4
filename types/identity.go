package types

import (
	"sync"
	"time"
)

// IdentityContext carries one task's authentication material: the caller's
// raw bearer credential, the verified claims (when an auth strategy is
// active), and, once delegation has run, the exchanged downstream token.
//
// An IdentityContext is created once per inbound task and is owned
// exclusively by that task's execution. It must be threaded explicitly
// through the call chain; it is never stored in a global or otherwise
// shared between tasks. Concurrent branches of the same task may call its
// methods simultaneously.
type IdentityContext struct {
	raw      string
	subject  string
	clientID string
	scopes   []string

	// Basic credentials are the fallback for downstream providers when no
	// bearer credential is present and delegation is disabled.
	basicUser     string
	basicPassword string

	mu        sync.Mutex
	exchanged string
	expiry    time.Time
}

// NewIdentityContext creates an identity context around the caller's raw
// bearer credential.
func NewIdentityContext(raw string) *IdentityContext {
	return &IdentityContext{raw: raw}
}

// NewBasicIdentityContext creates an identity context backed by basic
// credentials instead of a bearer token.
func NewBasicIdentityContext(user, password string) *IdentityContext {
	return &IdentityContext{basicUser: user, basicPassword: password}
}

// WithClaims attaches the verified claim fields. Called once, before the
// context is handed to the task; not safe to combine with concurrent reads.
func (ic *IdentityContext) WithClaims(subject, clientID string, scopes []string) *IdentityContext {
	ic.subject = subject
	ic.clientID = clientID
	ic.scopes = scopes
	return ic
}

// Raw returns the caller's raw bearer credential ("" for basic identities).
func (ic *IdentityContext) Raw() string { return ic.raw }

// Subject returns the verified subject claim, if any.
func (ic *IdentityContext) Subject() string { return ic.subject }

// ClientID returns the verified client_id claim, if any.
func (ic *IdentityContext) ClientID() string { return ic.clientID }

// Scopes returns the verified scopes, if any.
func (ic *IdentityContext) Scopes() []string { return ic.scopes }

// Basic returns the fallback basic credentials and whether they are set.
func (ic *IdentityContext) Basic() (user, password string, ok bool) {
	return ic.basicUser, ic.basicPassword, ic.basicUser != ""
}

// Credential returns the credential downstream invocations should present:
// the exchanged token when a valid one is cached, otherwise the raw
// credential.
func (ic *IdentityContext) Credential() string {
	if tok, ok := ic.Exchanged(); ok {
		return tok
	}
	return ic.raw
}

// Exchanged returns the cached exchanged token if one is present and not
// expired.
func (ic *IdentityContext) Exchanged() (string, bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.exchanged == "" {
		return "", false
	}
	if !ic.expiry.IsZero() && time.Now().After(ic.expiry) {
		return "", false
	}
	return ic.exchanged, true
}

// ExchangeOnce returns the cached exchanged token, or runs fn to obtain one
// and caches it until its expiry. The lock is held across fn so that
// concurrent branches of the same task perform at most one exchange; the
// result is visible only through this context.
func (ic *IdentityContext) ExchangeOnce(fn func() (token string, expiry time.Time, err error)) (string, error) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.exchanged != "" && (ic.expiry.IsZero() || time.Now().Before(ic.expiry)) {
		return ic.exchanged, nil
	}
	token, expiry, err := fn()
	if err != nil {
		return "", err
	}
	ic.exchanged = token
	ic.expiry = expiry
	return token, nil
}
