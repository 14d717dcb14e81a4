package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/snowgate/internal/metrics"
	"github.com/BaSui01/snowgate/store"
	"github.com/BaSui01/snowgate/types"
)

// ManagerConfig controls the task manager.
type ManagerConfig struct {
	// MaxTasks caps concurrently in-flight tasks. Submissions beyond the
	// cap are rejected, not queued. Defaults to 64.
	MaxTasks int `yaml:"max_tasks" env:"MAX_TASKS"`

	// TaskTimeout is the default per-task deadline applied when the
	// submission carries none. Defaults to 2 minutes.
	TaskTimeout time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.MaxTasks <= 0 {
		c.MaxTasks = 64
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 2 * time.Minute
	}
	return c
}

// Manager implements the submit/poll protocol: Submit returns a
// correlation id immediately and routes the task in the background;
// Poll reads the task record from the store; Cancel stops an in-flight
// task.
type Manager struct {
	orch      *Orchestrator
	archive   store.Store
	config    ManagerConfig
	collector *metrics.Collector
	logger    *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewManager creates the task manager. collector may be nil.
func NewManager(orch *Orchestrator, archive store.Store, config ManagerConfig, collector *metrics.Collector, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		orch:      orch,
		archive:   archive,
		config:    config.withDefaults(),
		collector: collector,
		logger:    logger.With(zap.String("component", "task_manager")),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// InFlight returns the number of currently running tasks.
func (m *Manager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancels)
}

// Submit accepts a task for routing and returns its correlation id. The
// identity travels with the task in memory only; it is never persisted.
func (m *Manager) Submit(ctx context.Context, description string, id *types.IdentityContext, deadline time.Time) (string, error) {
	if description == "" {
		return "", types.NewError(types.ErrInvalidRequest, "task description is required").WithHTTPStatus(400)
	}

	now := time.Now()
	if deadline.IsZero() {
		deadline = now.Add(m.config.TaskTimeout)
	}
	task := &types.Task{
		ID:          uuid.NewString(),
		Description: description,
		Deadline:    deadline,
		CreatedAt:   now,
		Identity:    id,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", types.NewError(types.ErrOverloaded, "task manager is shutting down").WithHTTPStatus(503)
	}
	if len(m.cancels) >= m.config.MaxTasks {
		m.mu.Unlock()
		return "", types.NewError(types.ErrOverloaded, "too many tasks in flight").
			WithHTTPStatus(429).WithRetryable(true)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancels[task.ID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	if err := m.archive.Save(ctx, store.Record{
		TaskID:      task.ID,
		State:       types.StatePending,
		Description: task.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		m.release(task.ID)
		m.wg.Done()
		return "", err
	}

	m.collector.TaskStarted()
	go m.run(runCtx, task)

	m.logger.Info("task submitted",
		zap.String("task_id", task.ID),
		zap.Time("deadline", deadline),
	)
	return task.ID, nil
}

// run routes the task and persists the terminal record. It owns the
// task's cancel slot for its whole lifetime.
func (m *Manager) run(ctx context.Context, task *types.Task) {
	defer m.wg.Done()
	defer m.release(task.ID)

	m.saveState(task, types.StateRunning, nil)

	resp := m.orch.Route(ctx, task)
	m.saveState(task, resp.State, resp)

	m.collector.TaskFinished(string(resp.State), time.Since(task.CreatedAt))
}

func (m *Manager) saveState(task *types.Task, state types.TaskState, resp *types.AggregateResponse) {
	// Store writes use a fresh context: the task's own context may
	// already be canceled when the terminal record lands.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.archive.Save(ctx, store.Record{
		TaskID:      task.ID,
		State:       state,
		Description: task.Description,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   time.Now(),
		Response:    resp,
	})
	if err != nil {
		m.logger.Error("persisting task record failed",
			zap.String("task_id", task.ID),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
}

// Poll returns the task record for id.
func (m *Manager) Poll(ctx context.Context, id string) (store.Record, error) {
	return m.archive.Get(ctx, id)
}

// Cancel stops an in-flight task. Canceling a terminal task is an
// invalid request; an unknown id is TASK_NOT_FOUND.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	cancel, inFlight := m.cancels[id]
	m.mu.Unlock()

	if inFlight {
		m.logger.Info("task canceled", zap.String("task_id", id))
		cancel()
		return nil
	}

	rec, err := m.archive.Get(ctx, id)
	if err != nil {
		return err
	}
	return types.NewError(types.ErrInvalidRequest,
		"task "+id+" already reached state "+string(rec.State)).WithHTTPStatus(409)
}

// Shutdown cancels all in-flight tasks and waits for their terminal
// records, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
