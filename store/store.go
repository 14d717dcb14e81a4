// Package store persists task records for the submit/poll protocol.
// Two backends ship: an in-memory map for single-process deployments
// and a Redis-backed archive for anything that restarts.
package store

import (
	"context"
	"time"

	"github.com/BaSui01/snowgate/types"
)

// Record is the persisted view of one task. It carries no credential
// material: the IdentityContext stays in memory with the running task.
type Record struct {
	TaskID      string                   `json:"task_id"`
	State       types.TaskState          `json:"state"`
	Description string                   `json:"description"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
	Response    *types.AggregateResponse `json:"response,omitempty"`
}

// Store is the task archive contract.
type Store interface {
	// Save upserts a record under its TaskID.
	Save(ctx context.Context, rec Record) error

	// Get returns the record for id, or a TASK_NOT_FOUND error.
	Get(ctx context.Context, id string) (Record, error)

	// Delete removes the record for id. Deleting a missing id is not an
	// error.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}

func notFound(id string) error {
	return types.NewError(types.ErrTaskNotFound, "no task with id "+id)
}
