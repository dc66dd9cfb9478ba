// Package model provides the domain types shared by the server, the
// persistence layer, and the client mirror: projects, todos, assignees,
// and memos.
package model

import (
	"fmt"
	"time"
)

// Priority is the urgency level of a todo.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the three known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// rank orders priorities for sorting, highest first.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Project is a named container for todos, assignees, and a memo.
// Progress is derived from the project's todos and never set directly;
// the command processor recomputes it after every todo mutation.
type Project struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Progress int    `json:"progress"`
}

// Validate checks the Project's field values.
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Progress < 0 || p.Progress > 100 {
		return fmt.Errorf("progress must be between 0 and 100 (got %d)", p.Progress)
	}
	return nil
}

// Todo is a single item of work owned by exactly one project.
//
// Assignee is a denormalized display name, not a foreign key: deleting an
// assignee from the project clears this field on every todo referencing it.
//
// CompletedDate is managed by the server: stamped when Completed flips to
// true, cleared when it flips back.
type Todo struct {
	ID            string     `json:"id"`
	Text          string     `json:"text"`
	Completed     bool       `json:"completed"`
	Assignee      string     `json:"assignee,omitempty"`
	Priority      Priority   `json:"priority"`
	DueDate       *Date      `json:"dueDate,omitempty"`
	CompletedDate *time.Time `json:"completedDate,omitempty"`
}

// Validate checks the Todo's field values.
func (t *Todo) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Text == "" {
		return fmt.Errorf("text is required")
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("priority must be low, medium, or high (got %q)", t.Priority)
	}
	return nil
}

// SetDefaults fills optional fields left empty by lenient clients.
func (t *Todo) SetDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityLow
	}
}

// Memo is the single free-text block attached to a project.
type Memo struct {
	ProjectID string `json:"projectId"`
	Content   string `json:"content"`
}

// ComputeProgress returns the derived completion percentage for a set of
// todo counts: round(100*completed/total), or 0 for an empty project.
func ComputeProgress(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(completed)/float64(total)*100 + 0.5)
}
