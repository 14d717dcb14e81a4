// Package orchestrator routes tasks to per-tag specialists and
// aggregates their results. It also hosts the task manager implementing
// the submit/poll protocol.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/snowgate/identity"
	"github.com/BaSui01/snowgate/internal/metrics"
	"github.com/BaSui01/snowgate/registry"
	"github.com/BaSui01/snowgate/specialist"
	"github.com/BaSui01/snowgate/types"
)

// PolicyOracle decides which tags apply to a task. The result is pure
// advice: empty and multi-tag results are both legal.
type PolicyOracle interface {
	Classify(ctx context.Context, task *types.Task) ([]string, error)
}

// OracleFunc adapts a function to the PolicyOracle interface.
type OracleFunc func(ctx context.Context, task *types.Task) ([]string, error)

func (f OracleFunc) Classify(ctx context.Context, task *types.Task) ([]string, error) {
	return f(ctx, task)
}

// DispatchMode selects how branches of one task are dispatched.
type DispatchMode string

const (
	// DispatchSequential runs branches one after another in tag order.
	DispatchSequential DispatchMode = "sequential"

	// DispatchParallel fans branches out concurrently, bounded by
	// MaxParallel.
	DispatchParallel DispatchMode = "parallel"
)

// Config controls dispatch behavior.
type Config struct {
	// Mode is the fan-out policy. Defaults to sequential.
	Mode DispatchMode `yaml:"mode" env:"MODE"`

	// MaxParallel bounds concurrently running branches of one task in
	// parallel mode. Defaults to 4.
	MaxParallel int64 `yaml:"max_parallel" env:"MAX_PARALLEL"`

	// BranchTimeout bounds one specialist execution. Zero disables the
	// per-branch timeout.
	BranchTimeout time.Duration `yaml:"branch_timeout" env:"BRANCH_TIMEOUT"`
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = DispatchSequential
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}
	return c
}

// Validate rejects unknown dispatch modes at startup.
func (c Config) Validate() error {
	switch c.Mode {
	case "", DispatchSequential, DispatchParallel:
		return nil
	}
	return types.NewError(types.ErrConfig, "orchestrator.mode must be sequential or parallel, have "+string(c.Mode))
}

// Orchestrator routes one task: classify, resolve specialists, dispatch,
// aggregate. Specialists are constructed lazily per tag, only for
// non-empty toolsets, and cached; the toolsets are immutable after the
// registry freezes so sharing workers across tasks is safe.
type Orchestrator struct {
	partitioner *registry.Partitioner
	provider    specialist.Provider
	planner     specialist.Planner
	exchanger   *identity.Exchanger
	oracle      PolicyOracle
	config      Config
	collector   *metrics.Collector
	logger      *zap.Logger

	mu      sync.RWMutex
	workers map[string]*specialist.Worker
}

// New creates the orchestrator. exchanger and collector may be nil.
func New(
	partitioner *registry.Partitioner,
	provider specialist.Provider,
	planner specialist.Planner,
	exchanger *identity.Exchanger,
	oracle PolicyOracle,
	config Config,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		partitioner: partitioner,
		provider:    provider,
		planner:     planner,
		exchanger:   exchanger,
		oracle:      oracle,
		config:      config.withDefaults(),
		collector:   collector,
		logger:      logger.With(zap.String("component", "orchestrator")),
		workers:     make(map[string]*specialist.Worker),
	}
}

// worker returns the cached specialist for tag, constructing it on first
// use. Returns false when the tag's toolset is empty: no specialist is
// ever built for an empty toolset.
func (o *Orchestrator) worker(tag string) (*specialist.Worker, bool) {
	o.mu.RLock()
	w, ok := o.workers[tag]
	o.mu.RUnlock()
	if ok {
		return w, true
	}

	toolset := o.partitioner.Scope(tag)
	if toolset.Empty() {
		o.logger.Info("skipping specialist for empty toolset", zap.String("tag", tag))
		return nil, false
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if w, ok := o.workers[tag]; ok {
		return w, true
	}
	w = specialist.NewWorker(toolset, o.provider, o.planner, o.exchanger,
		specialist.WorkerConfig{Timeout: o.config.BranchTimeout}, o.logger)
	o.workers[tag] = w
	return w, true
}

// Route executes the task end to end and always returns an
// AggregateResponse, even when every branch failed. Results appear in
// tag-declaration order regardless of completion order.
func (o *Orchestrator) Route(ctx context.Context, task *types.Task) *types.AggregateResponse {
	if !task.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, task.Deadline)
		defer cancel()
	}

	resp := &types.AggregateResponse{TaskID: task.ID}

	tags, err := o.oracle.Classify(ctx, task)
	if err != nil {
		o.logger.Error("policy oracle failed", zap.String("task_id", task.ID), zap.Error(err))
		resp.State = overallState(ctx, resp)
		return resp
	}
	tags = dedupe(tags)
	if len(tags) == 0 {
		o.logger.Info("no tag classified for task", zap.String("task_id", task.ID))
		resp.State = overallState(ctx, resp)
		return resp
	}

	resp.Results = o.dispatch(ctx, task, tags)
	resp.State = overallState(ctx, resp)

	for _, r := range resp.Results {
		outcome := "ok"
		if !r.Succeeded() {
			outcome = string(r.ErrorCode)
		}
		o.collector.RecordBranch(r.Tag, outcome, r.Duration)
	}

	o.logger.Info("task routed",
		zap.String("task_id", task.ID),
		zap.Strings("tags", tags),
		zap.Int("succeeded", resp.Succeeded()),
		zap.String("overall_state", string(resp.State)),
	)
	return resp
}

// dispatch runs one branch per tag and assembles results indexed by the
// tag's declaration position, so ordering is stable in both modes.
func (o *Orchestrator) dispatch(ctx context.Context, task *types.Task, tags []string) []types.DelegationResult {
	results := make([]types.DelegationResult, len(tags))

	type branch struct {
		idx    int
		worker *specialist.Worker
	}
	var branches []branch
	for i, tag := range tags {
		w, ok := o.worker(tag)
		if !ok {
			results[i] = types.FailedResult(tag, types.ErrNoCapability,
				"no capability registered for tag "+tag, 0)
			continue
		}
		branches = append(branches, branch{idx: i, worker: w})
	}

	switch o.config.Mode {
	case DispatchParallel:
		sem := semaphore.NewWeighted(o.config.MaxParallel)
		var wg sync.WaitGroup
		for _, b := range branches {
			wg.Add(1)
			go func(b branch) {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					results[b.idx] = types.FailedResult(b.worker.Tag(), types.ErrCanceled, err.Error(), 0)
					return
				}
				defer sem.Release(1)
				results[b.idx] = b.worker.Execute(ctx, task)
			}(b)
		}
		wg.Wait()
	default:
		for _, b := range branches {
			if err := ctx.Err(); err != nil {
				results[b.idx] = canceledResult(b.worker.Tag(), err)
				continue
			}
			results[b.idx] = b.worker.Execute(ctx, task)
		}
	}
	return results
}

// overallState derives the terminal state. A canceled or expired task
// context always wins: a canceled task never reports completed.
func overallState(ctx context.Context, resp *types.AggregateResponse) types.TaskState {
	if ctx.Err() != nil {
		return types.StateCanceled
	}
	if resp.Succeeded() > 0 {
		return types.StateCompleted
	}
	return types.StateFailed
}

func canceledResult(tag string, err error) types.DelegationResult {
	code := types.ErrCanceled
	if err == context.DeadlineExceeded {
		code = types.ErrTimeout
	}
	return types.FailedResult(tag, code, err.Error(), 0)
}

// dedupe keeps the first occurrence of each tag, preserving declaration
// order. The input is never modified: the oracle owns it and may hand the
// same slice to concurrent tasks.
func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
