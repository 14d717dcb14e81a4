package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/types"
)

// ScopedToolset is the subset of registry capabilities visible to one
// tag's specialist. It is derived data: Scope guarantees that Capabilities
// is exactly the registry entries whose tag set contains Tag, in
// registration order.
type ScopedToolset struct {
	Tag          string             `json:"tag"`
	Capabilities []types.Capability `json:"capabilities"`
}

// Empty reports whether no capability carries the tag. An empty toolset is
// a valid value; whether it is fatal is the caller's decision.
func (t ScopedToolset) Empty() bool {
	return len(t.Capabilities) == 0
}

// Has reports whether the toolset contains a capability by name.
func (t ScopedToolset) Has(name string) bool {
	for _, c := range t.Capabilities {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Names returns the capability names in the toolset.
func (t ScopedToolset) Names() []string {
	names := make([]string, 0, len(t.Capabilities))
	for _, c := range t.Capabilities {
		names = append(names, c.Name)
	}
	return names
}

// Partitioner derives ScopedToolsets from a Registry. Tags have union
// semantics: a capability tagged {a, b} appears in both Scope("a") and
// Scope("b"). Results are cached once the registry is frozen; a toolset is
// always recomputed, never patched, while registration is still open.
type Partitioner struct {
	registry *Registry
	mu       sync.Mutex
	cache    map[string]ScopedToolset
	logger   *zap.Logger
}

// NewPartitioner creates a partitioner over the given registry.
func NewPartitioner(reg *Registry, logger *zap.Logger) *Partitioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Partitioner{
		registry: reg,
		cache:    make(map[string]ScopedToolset),
		logger:   logger.With(zap.String("component", "partitioner")),
	}
}

// Scope returns the toolset for tag. An unknown tag yields an empty,
// valid toolset rather than an error.
func (p *Partitioner) Scope(tag string) ScopedToolset {
	if p.registry.Frozen() {
		p.mu.Lock()
		if ts, ok := p.cache[tag]; ok {
			p.mu.Unlock()
			return ts
		}
		p.mu.Unlock()
	}

	ts := ScopedToolset{Tag: tag}
	for _, c := range p.registry.List() {
		if c.HasTag(tag) {
			ts.Capabilities = append(ts.Capabilities, c)
		}
	}

	if p.registry.Frozen() {
		p.mu.Lock()
		p.cache[tag] = ts
		p.mu.Unlock()
	}
	return ts
}

// Tags returns every tag that appears on at least one capability, sorted.
func (p *Partitioner) Tags() []string {
	seen := make(map[string]struct{})
	for _, c := range p.registry.List() {
		for _, tag := range c.Tags {
			seen[tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
