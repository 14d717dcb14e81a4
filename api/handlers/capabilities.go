package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/registry"
	"github.com/BaSui01/snowgate/types"
)

// CapabilityHandler exposes the capability catalog.
type CapabilityHandler struct {
	reg         *registry.Registry
	partitioner *registry.Partitioner
	logger      *zap.Logger
}

// NewCapabilityHandler creates the catalog handler.
func NewCapabilityHandler(reg *registry.Registry, partitioner *registry.Partitioner, logger *zap.Logger) *CapabilityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapabilityHandler{
		reg:         reg,
		partitioner: partitioner,
		logger:      logger.With(zap.String("component", "capability_handler")),
	}
}

// CapabilityList is the catalog response payload.
type CapabilityList struct {
	Tag          string             `json:"tag,omitempty"`
	Capabilities []types.Capability `json:"capabilities"`
}

// HandleList handles GET /api/v1/capabilities. An optional ?tag= query
// scopes the listing to one domain; an unknown tag yields an empty list,
// not an error.
func (h *CapabilityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		WriteSuccess(w, CapabilityList{Capabilities: h.reg.List()})
		return
	}

	toolset := h.partitioner.Scope(tag)
	caps := toolset.Capabilities
	if caps == nil {
		caps = []types.Capability{}
	}
	WriteSuccess(w, CapabilityList{Tag: tag, Capabilities: caps})
}
