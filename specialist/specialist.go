// Package specialist executes tasks against one tag's scoped capability
// subset. A Worker is bound at creation to (tag, ScopedToolset) and
// invokes the external capability provider once per planned capability,
// under the task's identity.
package specialist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/identity"
	"github.com/BaSui01/snowgate/registry"
	"github.com/BaSui01/snowgate/types"
)

// Provider is the external capability-provider contract. The concrete
// downstream binding implements it; the router never builds transport
// requests itself.
type Provider interface {
	Invoke(ctx context.Context, operation string, arguments json.RawMessage, id *types.IdentityContext) (json.RawMessage, error)
}

// Invocation is one planned capability call.
type Invocation struct {
	Operation string          `json:"operation"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Planner selects which capabilities of the toolset a task needs. The
// real reasoning lives outside this system; KeywordPlanner is the
// built-in stand-in.
type Planner interface {
	Plan(ctx context.Context, task *types.Task, toolset registry.ScopedToolset) ([]Invocation, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, task *types.Task, toolset registry.ScopedToolset) ([]Invocation, error)

func (f PlannerFunc) Plan(ctx context.Context, task *types.Task, toolset registry.ScopedToolset) ([]Invocation, error) {
	return f(ctx, task, toolset)
}

// WorkerConfig configures one specialist.
type WorkerConfig struct {
	// Timeout bounds one Execute call. Zero means no extra timeout beyond
	// the caller's context.
	Timeout time.Duration
}

// Worker is a specialist bound to one tag's toolset.
type Worker struct {
	tag       string
	toolset   registry.ScopedToolset
	provider  Provider
	planner   Planner
	exchanger *identity.Exchanger
	config    WorkerConfig
	logger    *zap.Logger
}

// NewWorker creates a specialist for tag over its scoped toolset.
// exchanger may be nil when delegation is disabled.
func NewWorker(toolset registry.ScopedToolset, provider Provider, planner Planner, exchanger *identity.Exchanger, config WorkerConfig, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		tag:       toolset.Tag,
		toolset:   toolset,
		provider:  provider,
		planner:   planner,
		exchanger: exchanger,
		config:    config,
		logger: logger.With(
			zap.String("component", "specialist"),
			zap.String("tag", toolset.Tag),
		),
	}
}

// Tag returns the tag this worker serves.
func (w *Worker) Tag() string { return w.tag }

// Toolset returns the worker's scoped toolset.
func (w *Worker) Toolset() registry.ScopedToolset { return w.toolset }

// invocationOutput pairs an operation with its provider result when a
// plan spans multiple capabilities.
type invocationOutput struct {
	Operation string          `json:"operation"`
	Result    json.RawMessage `json:"result"`
}

// Execute runs the task against this worker's toolset and returns one
// DelegationResult. Errors are returned inside the result, never raised:
// a failed branch must not disturb its siblings.
func (w *Worker) Execute(ctx context.Context, task *types.Task) types.DelegationResult {
	start := time.Now()

	if w.toolset.Empty() {
		return types.FailedResult(w.tag, types.ErrNoCapability,
			fmt.Sprintf("no capability available for tag %q", w.tag), time.Since(start))
	}

	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}

	// Delegation first: if the exchange fails, no invocation happens on
	// this branch.
	if w.exchanger != nil {
		if _, err := w.exchanger.Authorize(ctx, task.Identity); err != nil {
			w.logger.Warn("identity delegation failed", zap.String("task_id", task.ID), zap.Error(err))
			return w.failedFromErr(err, start)
		}
	}

	plan, err := w.planner.Plan(ctx, task, w.toolset)
	if err != nil {
		return w.failedFromErr(err, start)
	}
	if len(plan) == 0 {
		return types.FailedResult(w.tag, types.ErrNoCapability,
			fmt.Sprintf("no capability of tag %q matches the task", w.tag), time.Since(start))
	}

	outputs := make([]invocationOutput, 0, len(plan))
	for _, inv := range plan {
		if err := ctx.Err(); err != nil {
			return w.failedFromErr(err, start)
		}
		if !w.toolset.Has(inv.Operation) {
			return types.FailedResult(w.tag, types.ErrNoCapability,
				fmt.Sprintf("capability %q is outside the %q toolset", inv.Operation, w.tag), time.Since(start))
		}

		out, err := w.provider.Invoke(ctx, inv.Operation, inv.Arguments, task.Identity)
		if err != nil {
			w.logger.Warn("capability invocation failed",
				zap.String("task_id", task.ID),
				zap.String("operation", inv.Operation),
				zap.Error(err),
			)
			return w.failedFromErr(err, start)
		}
		outputs = append(outputs, invocationOutput{Operation: inv.Operation, Result: out})
	}

	var payload json.RawMessage
	if len(outputs) == 1 {
		payload = outputs[0].Result
	} else {
		payload, err = json.Marshal(outputs)
		if err != nil {
			return w.failedFromErr(err, start)
		}
	}

	return types.DelegationResult{
		Tag:      w.tag,
		Output:   payload,
		Duration: time.Since(start),
	}
}

// failedFromErr maps an error to a typed branch result. Context errors
// become TIMEOUT/CANCELED; typed errors keep their code; everything else
// is an upstream provider error.
func (w *Worker) failedFromErr(err error, start time.Time) types.DelegationResult {
	code := types.GetErrorCode(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = types.ErrTimeout
	case errors.Is(err, context.Canceled):
		code = types.ErrCanceled
	case code == "":
		code = types.ErrUpstream
	}
	return types.FailedResult(w.tag, code, err.Error(), time.Since(start))
}
