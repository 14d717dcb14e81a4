// Package identity binds the caller's credential to each inbound task and,
// when delegation is enabled, exchanges it for a downstream-scoped token
// via the OAuth2 token-exchange grant (RFC 8693).
//
// The exchanged token lives only inside the task's IdentityContext. One
// task performs at most one exchange before the token's expiry; nothing is
// shared between tasks, so two tasks in flight at the same time can never
// observe each other's credentials.
package identity
