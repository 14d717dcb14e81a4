// Package handlers implements the HTTP API: task submission and
// polling, the capability catalog, and health probes. All responses use
// the unified Response envelope.
package handlers
