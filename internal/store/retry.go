package store

import (
	"context"
	"errors"
	"time"

	"github.com/teamboard/teamboard/internal/model"
)

// Retrying decorates a Store with a bounded, fixed-delay retry budget.
// Transient storage failures are absorbed here; once the budget is spent the
// last error surfaces and the triggering command fails. Not-found and
// context errors are never retried.
type Retrying struct {
	inner    Store
	attempts int
	delay    time.Duration
}

// NewRetrying wraps inner. attempts is the total number of tries (minimum 1).
func NewRetrying(inner Store, attempts int, delay time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{inner: inner, attempts: attempts, delay: delay}
}

func (r *Retrying) do(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return err
}

func (r *Retrying) CreateProject(ctx context.Context, p model.Project) error {
	return r.do(ctx, func() error { return r.inner.CreateProject(ctx, p) })
}

func (r *Retrying) UpdateProject(ctx context.Context, p model.Project) error {
	return r.do(ctx, func() error { return r.inner.UpdateProject(ctx, p) })
}

func (r *Retrying) DeleteProject(ctx context.Context, projectID string) error {
	return r.do(ctx, func() error { return r.inner.DeleteProject(ctx, projectID) })
}

func (r *Retrying) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	var p *model.Project
	err := r.do(ctx, func() error {
		var err error
		p, err = r.inner.GetProject(ctx, projectID)
		return err
	})
	return p, err
}

func (r *Retrying) CreateTodo(ctx context.Context, projectID string, t model.Todo) error {
	return r.do(ctx, func() error { return r.inner.CreateTodo(ctx, projectID, t) })
}

func (r *Retrying) ReplaceTodo(ctx context.Context, projectID string, t model.Todo) (model.Todo, error) {
	var out model.Todo
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.ReplaceTodo(ctx, projectID, t)
		return err
	})
	return out, err
}

func (r *Retrying) DeleteTodo(ctx context.Context, projectID, todoID string) error {
	return r.do(ctx, func() error { return r.inner.DeleteTodo(ctx, projectID, todoID) })
}

func (r *Retrying) ListTodos(ctx context.Context, projectID string) ([]model.Todo, error) {
	var todos []model.Todo
	err := r.do(ctx, func() error {
		var err error
		todos, err = r.inner.ListTodos(ctx, projectID)
		return err
	})
	return todos, err
}

func (r *Retrying) TodoCounts(ctx context.Context, projectID string) (completed, total int, err error) {
	err = r.do(ctx, func() error {
		var err error
		completed, total, err = r.inner.TodoCounts(ctx, projectID)
		return err
	})
	return completed, total, err
}

func (r *Retrying) AddAssignee(ctx context.Context, projectID, name string) (added bool, err error) {
	err = r.do(ctx, func() error {
		var err error
		added, err = r.inner.AddAssignee(ctx, projectID, name)
		return err
	})
	return added, err
}

func (r *Retrying) DeleteAssignee(ctx context.Context, projectID, name string) (repaired []model.Todo, err error) {
	err = r.do(ctx, func() error {
		var err error
		repaired, err = r.inner.DeleteAssignee(ctx, projectID, name)
		return err
	})
	return repaired, err
}

func (r *Retrying) GetMemo(ctx context.Context, projectID string) (string, error) {
	var content string
	err := r.do(ctx, func() error {
		var err error
		content, err = r.inner.GetMemo(ctx, projectID)
		return err
	})
	return content, err
}

func (r *Retrying) UpsertMemo(ctx context.Context, projectID, content string) error {
	return r.do(ctx, func() error { return r.inner.UpsertMemo(ctx, projectID, content) })
}

func (r *Retrying) LoadAll(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := r.do(ctx, func() error {
		var err error
		snap, err = r.inner.LoadAll(ctx)
		return err
	})
	return snap, err
}

func (r *Retrying) Close() error {
	return r.inner.Close()
}
