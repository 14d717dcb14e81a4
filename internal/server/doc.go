// Package server manages the HTTP listener lifecycle: non-blocking
// start, asynchronous error reporting, and signal-driven graceful
// shutdown.
package server
