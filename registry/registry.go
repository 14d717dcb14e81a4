// Package registry holds the flat set of capabilities known to the system
// and derives per-tag scoped toolsets from it.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/types"
)

// Registry is the append-only capability registry. It is populated during
// startup and frozen before the first task is accepted; after Freeze it is
// read-only and may be shared across tasks without additional locking.
type Registry struct {
	mu     sync.RWMutex
	caps   map[string]types.Capability
	order  []string
	frozen atomic.Bool
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		caps:   make(map[string]types.Capability),
		logger: logger.With(zap.String("component", "registry")),
	}
}

// Register adds a capability. Registration fails once the registry is
// frozen, when the capability is invalid, or when the name is already
// taken.
func (r *Registry) Register(c types.Capability) error {
	if r.frozen.Load() {
		return types.NewError(types.ErrConfig, fmt.Sprintf("registry is frozen, cannot register %q", c.Name))
	}
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caps[c.Name]; exists {
		return types.NewError(types.ErrDuplicateCapability, fmt.Sprintf("capability %q already registered", c.Name))
	}

	r.caps[c.Name] = c
	r.order = append(r.order, c.Name)

	r.logger.Debug("capability registered",
		zap.String("name", c.Name),
		zap.Strings("tags", c.Tags),
	)
	return nil
}

// Freeze marks the end of startup. Further Register calls fail.
func (r *Registry) Freeze() {
	r.frozen.Store(true)
	r.logger.Info("registry frozen", zap.Int("capabilities", r.Len()))
}

// Frozen reports whether the registry has been frozen.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Get returns a capability by name.
func (r *Registry) Get(name string) (types.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	return c, ok
}

// List returns all capabilities in registration order.
func (r *Registry) List() []types.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.caps[name])
	}
	return out
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}
