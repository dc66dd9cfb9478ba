// Package client implements the client side of the sync protocol: a local
// mirror of the server's state kept consistent by incremental events and
// full-state snapshots, a reconnecting WebSocket transport, and the memo
// editor's debounce/typing-guard logic.
package client

import (
	"log"
	"sync"

	"github.com/teamboard/teamboard/internal/model"
	"github.com/teamboard/teamboard/internal/protocol"
)

// Reconciler maintains the local mirrors of projects, todos, assignees, and
// memos, applying server events so the mirror converges on the server's
// authoritative state. Event application is idempotent: duplicate delivery
// of the same event leaves the mirror unchanged.
type Reconciler struct {
	mu sync.Mutex

	projects           []model.Project
	todosByProject     map[string][]model.Todo
	assigneesByProject map[string][]string
	memoByProject      map[string]string

	// OnChange fires after any mirror mutation, for the view layer.
	OnChange func()
	// OnProjectDeleted fires when a project is removed, so a view showing
	// that project can navigate away.
	OnProjectDeleted func(projectID string)

	// memoSink, when set, receives incoming MEMO_UPDATE events instead of
	// the mirror being written directly. The memo editor uses this to defer
	// updates while the user is typing; the memo command uses it to tell a
	// reply apart from an empty mirror. The sink is responsible for calling
	// ApplyMemo once the update should land. Guarded by mu.
	memoSink func(projectID, content string)

	logger *log.Logger
}

// NewReconciler returns an empty mirror.
func NewReconciler(logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{
		todosByProject:     map[string][]model.Todo{},
		assigneesByProject: map[string][]string{},
		memoByProject:      map[string]string{},
		logger:             logger,
	}
}

// Apply routes one server event into the mirror. Unknown event types are
// logged and ignored.
func (r *Reconciler) Apply(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeFullStateUpdate:
		r.applyFullState(msg)
	case protocol.TypeProjectAdded:
		if msg.Project != nil {
			r.applyProjectAdded(*msg.Project)
		}
	case protocol.TypeProjectUpdated:
		if msg.Project != nil {
			r.applyProjectUpdated(*msg.Project)
		}
	case protocol.TypeProjectDeleted:
		r.applyProjectDeleted(msg.ProjectID)
	case protocol.TypeTodoAdded:
		if msg.Todo != nil {
			r.applyTodoAdded(msg.ProjectID, *msg.Todo)
		}
	case protocol.TypeTodoUpdated:
		if msg.Todo != nil {
			r.applyTodoUpdated(msg.ProjectID, *msg.Todo)
		}
	case protocol.TypeTodoDeleted:
		r.applyTodoDeleted(msg.ProjectID, msg.TodoID)
	case protocol.TypeAssigneeAdded:
		r.applyAssigneeAdded(msg.ProjectID, msg.AssigneeName)
	case protocol.TypeAssigneeDeleted:
		r.applyAssigneeDeleted(msg.ProjectID, msg.AssigneeName)
	case protocol.TypeMemoUpdate:
		content := ""
		if msg.Content != nil {
			content = *msg.Content
		}
		r.mu.Lock()
		sink := r.memoSink
		r.mu.Unlock()
		if sink != nil {
			sink(msg.ProjectID, content)
		} else {
			r.ApplyMemo(msg.ProjectID, content)
		}
	case protocol.TypeAuthResult, protocol.TypeError:
		// Handled by the transport layer, not the mirror.
	default:
		r.logger.Printf("Ignoring unknown event type %q", msg.Type)
	}
}

// applyFullState replaces all mirrors wholesale. This is the convergence
// mechanism for a freshly authenticated or reconnecting client: it must
// fully overwrite, never merge.
func (r *Reconciler) applyFullState(msg *protocol.Message) {
	r.mu.Lock()
	r.projects = append([]model.Project{}, msg.Projects...)
	r.todosByProject = map[string][]model.Todo{}
	for id, todos := range msg.Todos {
		r.todosByProject[id] = append([]model.Todo{}, todos...)
	}
	r.assigneesByProject = map[string][]string{}
	for id, names := range msg.ProjectAssignees {
		r.assigneesByProject[id] = append([]string{}, names...)
	}
	r.memoByProject = map[string]string{}
	r.mu.Unlock()
	r.changed()
}

func (r *Reconciler) applyProjectAdded(p model.Project) {
	r.mu.Lock()
	for _, existing := range r.projects {
		if existing.ID == p.ID {
			r.mu.Unlock()
			return
		}
	}
	r.projects = append(r.projects, p)
	r.mu.Unlock()
	r.changed()
}

// applyProjectUpdated replaces by id, appending if absent: an update can
// arrive before its add and the protocol does not strictly prevent that.
func (r *Reconciler) applyProjectUpdated(p model.Project) {
	r.mu.Lock()
	found := false
	for i, existing := range r.projects {
		if existing.ID == p.ID {
			r.projects[i] = p
			found = true
			break
		}
	}
	if !found {
		r.projects = append(r.projects, p)
	}
	r.mu.Unlock()
	r.changed()
}

func (r *Reconciler) applyProjectDeleted(projectID string) {
	r.mu.Lock()
	kept := r.projects[:0]
	for _, p := range r.projects {
		if p.ID != projectID {
			kept = append(kept, p)
		}
	}
	r.projects = kept
	delete(r.todosByProject, projectID)
	delete(r.assigneesByProject, projectID)
	delete(r.memoByProject, projectID)
	r.mu.Unlock()

	if r.OnProjectDeleted != nil {
		r.OnProjectDeleted(projectID)
	}
	r.changed()
}

func (r *Reconciler) applyTodoAdded(projectID string, t model.Todo) {
	r.mu.Lock()
	for _, existing := range r.todosByProject[projectID] {
		if existing.ID == t.ID {
			r.mu.Unlock()
			return
		}
	}
	r.todosByProject[projectID] = append(r.todosByProject[projectID], t)
	r.mu.Unlock()
	r.changed()
}

func (r *Reconciler) applyTodoUpdated(projectID string, t model.Todo) {
	r.mu.Lock()
	todos := r.todosByProject[projectID]
	found := false
	for i, existing := range todos {
		if existing.ID == t.ID {
			todos[i] = t
			found = true
			break
		}
	}
	if !found {
		r.todosByProject[projectID] = append(todos, t)
	}
	r.mu.Unlock()
	r.changed()
}

func (r *Reconciler) applyTodoDeleted(projectID, todoID string) {
	r.mu.Lock()
	todos := r.todosByProject[projectID]
	kept := todos[:0]
	for _, t := range todos {
		if t.ID != todoID {
			kept = append(kept, t)
		}
	}
	r.todosByProject[projectID] = kept
	r.mu.Unlock()
	r.changed()
}

func (r *Reconciler) applyAssigneeAdded(projectID, name string) {
	r.mu.Lock()
	for _, existing := range r.assigneesByProject[projectID] {
		if existing == name {
			r.mu.Unlock()
			return
		}
	}
	r.assigneesByProject[projectID] = append(r.assigneesByProject[projectID], name)
	r.mu.Unlock()
	r.changed()
}

// applyAssigneeDeleted removes the name from the set and clears the
// assignee on every local todo referencing it, matching the server-side
// repair so the mirror stays referentially consistent.
func (r *Reconciler) applyAssigneeDeleted(projectID, name string) {
	r.mu.Lock()
	names := r.assigneesByProject[projectID]
	kept := names[:0]
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}
	r.assigneesByProject[projectID] = kept

	todos := r.todosByProject[projectID]
	for i := range todos {
		if todos[i].Assignee == name {
			todos[i].Assignee = ""
		}
	}
	r.mu.Unlock()
	r.changed()
}

// SetMemoSink installs (or clears, with nil) the MEMO_UPDATE interceptor.
// Safe to call while events are being applied.
func (r *Reconciler) SetMemoSink(sink func(projectID, content string)) {
	r.mu.Lock()
	r.memoSink = sink
	r.mu.Unlock()
}

// ApplyMemo writes memo content into the mirror.
func (r *Reconciler) ApplyMemo(projectID, content string) {
	r.mu.Lock()
	r.memoByProject[projectID] = content
	r.mu.Unlock()
	r.changed()
}

func (r *Reconciler) changed() {
	if r.OnChange != nil {
		r.OnChange()
	}
}

// Projects returns a copy of the mirrored project list.
func (r *Reconciler) Projects() []model.Project {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Project{}, r.projects...)
}

// Todos returns a copy of one project's mirrored todos.
func (r *Reconciler) Todos(projectID string) []model.Todo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Todo{}, r.todosByProject[projectID]...)
}

// Assignees returns a copy of one project's mirrored assignee set.
func (r *Reconciler) Assignees(projectID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.assigneesByProject[projectID]...)
}

// Memo returns the mirrored memo content for one project.
func (r *Reconciler) Memo(projectID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memoByProject[projectID]
}
