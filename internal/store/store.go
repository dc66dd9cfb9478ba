// Package store provides the persistence adapter: durable CRUD for the four
// entity collections (projects, todos, project assignees, memos) backed by
// embedded SQLite.
package store

import (
	"context"
	"errors"

	"github.com/teamboard/teamboard/internal/model"
)

// ErrNotFound is returned when the referenced project or todo does not exist.
var ErrNotFound = errors.New("not found")

// Snapshot is a consistent read of all four collections, used to (re)load
// the in-memory state store.
type Snapshot struct {
	Projects           []model.Project
	TodosByProject     map[string][]model.Todo
	AssigneesByProject map[string][]string
	MemosByProject     map[string]string
}

// Store is the contract the command processor and state store write through.
// Implementations must make every mutation durable before returning.
type Store interface {
	CreateProject(ctx context.Context, p model.Project) error
	UpdateProject(ctx context.Context, p model.Project) error
	// DeleteProject removes the project and cascades to its todos,
	// assignees, and memo. Deleting an absent project is a no-op.
	DeleteProject(ctx context.Context, projectID string) error
	GetProject(ctx context.Context, projectID string) (*model.Project, error)

	CreateTodo(ctx context.Context, projectID string, t model.Todo) error
	// ReplaceTodo overwrites the stored row with t (full-replace semantics)
	// and returns the final row. CompletedDate is managed here: stamped when
	// the completed flag flips to true, cleared when it flips back, and
	// preserved otherwise.
	ReplaceTodo(ctx context.Context, projectID string, t model.Todo) (model.Todo, error)
	DeleteTodo(ctx context.Context, projectID, todoID string) error
	ListTodos(ctx context.Context, projectID string) ([]model.Todo, error)
	// TodoCounts reads the persisted completed/total counts for progress
	// recomputation. Reading the durable rows, not a cache, keeps the
	// derived progress from drifting.
	TodoCounts(ctx context.Context, projectID string) (completed, total int, err error)

	// AddAssignee adds the name to the project's set. Reports whether the
	// name was newly added; a duplicate add is a no-op, not an error.
	AddAssignee(ctx context.Context, projectID, name string) (added bool, err error)
	// DeleteAssignee removes the name from the set and clears the assignee
	// field on every todo in the project referencing it, atomically.
	// Returns the repaired todos.
	DeleteAssignee(ctx context.Context, projectID, name string) (repaired []model.Todo, err error)

	// GetMemo returns the project's memo content, or "" when none exists.
	GetMemo(ctx context.Context, projectID string) (string, error)
	// UpsertMemo inserts or replaces the project's memo.
	UpsertMemo(ctx context.Context, projectID, content string) error

	// LoadAll reads all four collections in one consistent view.
	LoadAll(ctx context.Context) (*Snapshot, error)

	Close() error
}
