// Package types defines the shared domain types of snowgate: capabilities
// and their tag metadata, tasks and delegation results, per-task identity
// contexts, and the unified error taxonomy.
//
// Everything in this package is either immutable after construction
// (Capability, Task fields) or safe for concurrent use through its own
// synchronization (IdentityContext). Higher layers share these values
// freely across goroutines.
package types
