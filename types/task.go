package types

import (
	"encoding/json"
	"time"
)

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	StatePending   TaskState = "pending"
	StateRunning   TaskState = "running"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
	StateCanceled  TaskState = "canceled"
)

// Terminal reports whether the state is terminal.
func (s TaskState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled:
		return true
	}
	return false
}

// Task is one inbound unit of work: a natural-language description routed
// to one or more specialists under the caller's identity. Fields are set
// at submission and not mutated afterwards.
type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// Identity is owned exclusively by this task. It is excluded from
	// serialization so credentials never reach a store or the wire.
	Identity *IdentityContext `json:"-"`
}

// DelegationResult is the outcome of one specialist branch.
type DelegationResult struct {
	Tag       string          `json:"tag"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode ErrorCode       `json:"error_code,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// Succeeded reports whether the branch produced output without error.
func (r DelegationResult) Succeeded() bool {
	return r.Error == "" && r.ErrorCode == ""
}

// FailedResult builds a DelegationResult for a failed branch.
func FailedResult(tag string, code ErrorCode, message string, duration time.Duration) DelegationResult {
	return DelegationResult{
		Tag:       tag,
		Error:     message,
		ErrorCode: code,
		Duration:  duration,
	}
}

// AggregateResponse is the caller-visible outcome of a routed task:
// one DelegationResult per dispatched branch, in tag-declaration order,
// plus the overall terminal state.
type AggregateResponse struct {
	TaskID  string             `json:"task_id"`
	Results []DelegationResult `json:"results"`
	State   TaskState          `json:"overall_state"`
}

// Succeeded returns how many branches succeeded.
func (a *AggregateResponse) Succeeded() int {
	n := 0
	for _, r := range a.Results {
		if r.Succeeded() {
			n++
		}
	}
	return n
}
