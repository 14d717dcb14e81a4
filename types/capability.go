package types

import (
	"encoding/json"
	"fmt"
)

// Capability describes one named downstream operation with a typed
// input/output contract. Tags group related capabilities into domains
// (e.g. "incidents", "cmdb"); a capability may belong to several domains
// at once. Capabilities are immutable after registration.
type Capability struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Tags         []string        `json:"tags"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
}

// Validate checks the registration invariants: a non-empty name and at
// least one non-empty tag.
func (c Capability) Validate() error {
	if c.Name == "" {
		return NewError(ErrInvalidRequest, "capability name is required")
	}
	if len(c.Tags) == 0 {
		return NewError(ErrInvalidRequest, fmt.Sprintf("capability %q has no tags", c.Name))
	}
	for _, tag := range c.Tags {
		if tag == "" {
			return NewError(ErrInvalidRequest, fmt.Sprintf("capability %q has an empty tag", c.Name))
		}
	}
	return nil
}

// HasTag reports whether the capability belongs to the given tag.
func (c Capability) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
