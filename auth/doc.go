// Package auth selects, validates, and runs exactly one authentication
// strategy for inbound tasks.
//
// The strategy set is fixed: none, static-token, jwt, oauth-proxy,
// oidc-proxy, and remote-oauth. Selection follows a small state machine
// (Unconfigured → Validating → Ready | ConfigError): Build validates the
// strategy-specific configuration exhaustively at startup and either
// returns a Ready strategy or a CONFIG_ERROR listing what is missing or
// conflicting. Nothing is deferred to the first request.
//
// A Ready strategy verifies bearer credentials into Claims and, when it
// terminates or proxies an upstream authorization flow, exposes the
// upstream token endpoint for identity delegation.
package auth
