// Package state holds the server's authoritative in-memory snapshot of all
// projects, todos, assignees, and memos. The command processor is the only
// writer; snapshot readers (new connections, the HTTP read endpoints) see a
// consistent copy at all times.
package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/teamboard/teamboard/internal/model"
	"github.com/teamboard/teamboard/internal/store"
)

// Store caches the four collections. All methods are safe for concurrent
// use; mutators are expected to be called only by the serialized command
// processor, mirroring changes that have already been persisted.
type Store struct {
	mu sync.RWMutex

	projects           []model.Project
	todosByProject     map[string][]model.Todo
	assigneesByProject map[string][]string
	memosByProject     map[string]string
	loaded             bool
}

// New returns an empty state store. Call LoadAll before serving snapshots.
func New() *Store {
	return &Store{
		todosByProject:     map[string][]model.Todo{},
		assigneesByProject: map[string][]string{},
		memosByProject:     map[string]string{},
	}
}

// LoadAll replaces the whole snapshot from the persistence adapter. The swap
// is atomic: readers see either the previous snapshot or the new one, never
// a mix. On failure the previous snapshot is retained and the error returned
// so the caller can schedule a retry.
func (s *Store) LoadAll(ctx context.Context, src store.Store) error {
	snap, err := src.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("state load failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = snap.Projects
	s.todosByProject = snap.TodosByProject
	s.assigneesByProject = snap.AssigneesByProject
	s.memosByProject = snap.MemosByProject
	s.loaded = true
	return nil
}

// Loaded reports whether an initial LoadAll has succeeded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Snapshot returns a deep copy of the current cached state, suitable for a
// full-state push to a newly authenticated connection.
func (s *Store) Snapshot() *store.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &store.Snapshot{
		Projects:           make([]model.Project, len(s.projects)),
		TodosByProject:     make(map[string][]model.Todo, len(s.todosByProject)),
		AssigneesByProject: make(map[string][]string, len(s.assigneesByProject)),
		MemosByProject:     make(map[string]string, len(s.memosByProject)),
	}
	copy(snap.Projects, s.projects)
	for id, todos := range s.todosByProject {
		snap.TodosByProject[id] = append([]model.Todo{}, todos...)
	}
	for id, names := range s.assigneesByProject {
		snap.AssigneesByProject[id] = append([]string{}, names...)
	}
	for id, content := range s.memosByProject {
		snap.MemosByProject[id] = content
	}
	return snap
}

// ApplyProjectAdded appends the project unless it is already cached.
func (s *Store) ApplyProjectAdded(p model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.projects {
		if existing.ID == p.ID {
			return
		}
	}
	s.projects = append(s.projects, p)
	if _, ok := s.todosByProject[p.ID]; !ok {
		s.todosByProject[p.ID] = []model.Todo{}
	}
	if _, ok := s.assigneesByProject[p.ID]; !ok {
		s.assigneesByProject[p.ID] = []string{}
	}
}

// ApplyProjectUpdated replaces the cached project with the same id.
func (s *Store) ApplyProjectUpdated(p model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.projects {
		if existing.ID == p.ID {
			s.projects[i] = p
			return
		}
	}
}

// ApplyProjectDeleted removes the project and its owned collections.
func (s *Store) ApplyProjectDeleted(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.projects[:0]
	for _, p := range s.projects {
		if p.ID != projectID {
			kept = append(kept, p)
		}
	}
	s.projects = kept
	delete(s.todosByProject, projectID)
	delete(s.assigneesByProject, projectID)
	delete(s.memosByProject, projectID)
}

// ApplyTodoAdded appends the todo unless a todo with that id is cached.
func (s *Store) ApplyTodoAdded(projectID string, t model.Todo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.todosByProject[projectID] {
		if existing.ID == t.ID {
			return
		}
	}
	s.todosByProject[projectID] = append(s.todosByProject[projectID], t)
}

// ApplyTodoUpdated replaces the cached todo with the same id.
func (s *Store) ApplyTodoUpdated(projectID string, t model.Todo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	todos := s.todosByProject[projectID]
	for i, existing := range todos {
		if existing.ID == t.ID {
			todos[i] = t
			return
		}
	}
}

// ApplyTodoDeleted removes the cached todo by id.
func (s *Store) ApplyTodoDeleted(projectID, todoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	todos := s.todosByProject[projectID]
	kept := todos[:0]
	for _, t := range todos {
		if t.ID != todoID {
			kept = append(kept, t)
		}
	}
	s.todosByProject[projectID] = kept
}

// ApplyAssigneeAdded adds the name to the project's set (set semantics).
func (s *Store) ApplyAssigneeAdded(projectID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assigneesByProject[projectID] {
		if existing == name {
			return
		}
	}
	s.assigneesByProject[projectID] = append(s.assigneesByProject[projectID], name)
}

// ApplyAssigneeDeleted removes the name from the set and clears the
// denormalized assignee field on the project's cached todos.
func (s *Store) ApplyAssigneeDeleted(projectID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := s.assigneesByProject[projectID]
	kept := names[:0]
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}
	s.assigneesByProject[projectID] = kept

	todos := s.todosByProject[projectID]
	for i := range todos {
		if todos[i].Assignee == name {
			todos[i].Assignee = ""
		}
	}
}

// ApplyMemoUpdated caches the project's memo content.
func (s *Store) ApplyMemoUpdated(projectID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memosByProject[projectID] = content
}

// Projects returns a copy of the cached project list.
func (s *Store) Projects() []model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Project, len(s.projects))
	copy(out, s.projects)
	return out
}

// Todos returns a copy of the cached todo list for one project.
func (s *Store) Todos(projectID string) []model.Todo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Todo{}, s.todosByProject[projectID]...)
}
