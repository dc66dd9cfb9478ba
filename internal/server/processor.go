package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/teamboard/teamboard/internal/model"
	"github.com/teamboard/teamboard/internal/protocol"
	"github.com/teamboard/teamboard/internal/state"
	"github.com/teamboard/teamboard/internal/store"
)

// Processor validates and executes inbound commands: write through the
// persistence adapter, mirror the change into the state store, then hand the
// event to the dispatcher.
//
// A single mutex serializes command execution, so no two commands ever
// mutate the state store concurrently and events reach the dispatcher in
// command-completion order. Validation and persistence failures never crash
// the command loop: they are logged and reported back to the offending
// connection as an error frame, and nothing is broadcast.
type Processor struct {
	mu sync.Mutex

	store      store.Store
	state      *state.Store
	dispatcher Broadcaster
	registry   *Registry
	password   string
	logger     *log.Logger
}

// NewProcessor wires the processor to its collaborators. password is the
// shared credential checked by the auth gate.
func NewProcessor(st store.Store, cache *state.Store, dispatcher Broadcaster, registry *Registry, password string, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{
		store:      st,
		state:      cache,
		dispatcher: dispatcher,
		registry:   registry,
		password:   password,
		logger:     logger,
	}
}

// Handle processes one raw inbound frame from conn.
func (p *Processor) Handle(ctx context.Context, conn Connection, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		p.logger.Printf("Dropping malformed frame: %v", err)
		p.sendTo(ctx, conn, protocol.Error("malformed message"))
		return
	}

	// The auth gate: the only command accepted before authentication.
	if msg.Type == protocol.TypeAuth {
		p.handleAuth(ctx, conn, msg)
		return
	}
	if !p.registry.IsAuthenticated(conn) {
		p.logger.Printf("Rejecting %s from unauthenticated connection", msg.Type)
		p.sendTo(ctx, conn, protocol.Error("authentication required"))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch msg.Type {
	case protocol.TypeRequestFullState:
		p.sendSnapshot(ctx, conn)
	case protocol.TypeAddProject:
		p.addProject(ctx, conn, msg)
	case protocol.TypeUpdateProject:
		p.updateProject(ctx, conn, msg)
	case protocol.TypeDeleteProject:
		p.deleteProject(ctx, conn, msg)
	case protocol.TypeAddTodo:
		p.addTodo(ctx, conn, msg)
	case protocol.TypeUpdateTodo:
		p.updateTodo(ctx, conn, msg)
	case protocol.TypeDeleteTodo:
		p.deleteTodo(ctx, conn, msg)
	case protocol.TypeAddAssignee:
		p.addAssignee(ctx, conn, msg)
	case protocol.TypeDeleteAssignee:
		p.deleteAssignee(ctx, conn, msg)
	case protocol.TypeGetMemo:
		p.getMemo(ctx, conn, msg)
	case protocol.TypeUpdateMemo:
		p.updateMemo(ctx, conn, msg)
	default:
		p.logger.Printf("Dropping unknown command type %q", msg.Type)
		p.sendTo(ctx, conn, protocol.Error("unknown command type"))
	}
}

// handleAuth checks the shared credential. On success the connection is
// promoted and immediately receives a full-state snapshot; on failure it
// stays open for another attempt.
func (p *Processor) handleAuth(ctx context.Context, conn Connection, msg *protocol.Message) {
	ok := subtle.ConstantTimeCompare([]byte(msg.Password), []byte(p.password)) == 1
	p.sendTo(ctx, conn, protocol.AuthResult(ok))
	if !ok {
		p.logger.Printf("Authentication failed")
		return
	}

	p.registry.SetAuthenticated(conn)
	p.logger.Printf("Connection authenticated")

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendSnapshot(ctx, conn)
}

// Resync reloads the state store from the persistence adapter. It runs
// under the command mutex, so a reload never interleaves with a command's
// commit-then-apply sequence and can never clobber a committed change with
// a stale database read.
func (p *Processor) Resync(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.LoadAll(ctx, p.store)
}

// sendSnapshot pushes the current full state to one connection only.
func (p *Processor) sendSnapshot(ctx context.Context, conn Connection) {
	snap := p.state.Snapshot()
	p.sendTo(ctx, conn, protocol.FullState(snap.Projects, snap.TodosByProject, snap.AssigneesByProject))
}

func (p *Processor) addProject(ctx context.Context, conn Connection, msg *protocol.Message) {
	if msg.Name == "" {
		p.reject(ctx, conn, "ADD_PROJECT requires a non-empty name")
		return
	}

	project := model.Project{ID: uuid.New().String(), Name: msg.Name, Progress: 0}
	if err := p.store.CreateProject(ctx, project); err != nil {
		p.fail(ctx, conn, "ADD_PROJECT", err)
		return
	}

	p.state.ApplyProjectAdded(project)
	p.dispatcher.Broadcast(protocol.ProjectAdded(project))
}

// updateProject merges the named fields into the stored project. Only the
// name is user-settable; progress is derived and the id immutable.
func (p *Processor) updateProject(ctx context.Context, conn Connection, msg *protocol.Message) {
	if msg.Project == nil || msg.Project.ID == "" {
		p.reject(ctx, conn, "UPDATE_PROJECT requires a project with an id")
		return
	}

	existing, err := p.store.GetProject(ctx, msg.Project.ID)
	if err != nil {
		p.fail(ctx, conn, "UPDATE_PROJECT", err)
		return
	}

	merged := *existing
	if msg.Project.Name != "" {
		merged.Name = msg.Project.Name
	}

	if err := p.store.UpdateProject(ctx, merged); err != nil {
		p.fail(ctx, conn, "UPDATE_PROJECT", err)
		return
	}

	p.state.ApplyProjectUpdated(merged)
	p.dispatcher.Broadcast(protocol.ProjectUpdated(merged))
}

func (p *Processor) deleteProject(ctx context.Context, conn Connection, msg *protocol.Message) {
	if msg.ProjectID == "" {
		p.reject(ctx, conn, "DELETE_PROJECT requires a projectId")
		return
	}

	if err := p.store.DeleteProject(ctx, msg.ProjectID); err != nil {
		p.fail(ctx, conn, "DELETE_PROJECT", err)
		return
	}

	p.state.ApplyProjectDeleted(msg.ProjectID)
	p.dispatcher.Broadcast(protocol.ProjectDeleted(msg.ProjectID))
}

func (p *Processor) addTodo(ctx context.Context, conn Connection, msg *protocol.Message) {
	if msg.ProjectID == "" || msg.Text == "" {
		p.reject(ctx, conn, "ADD_TODO requires projectId and text")
		return
	}

	todo := model.Todo{
		ID:        uuid.New().String(),
		Text:      msg.Text,
		Completed: false,
		Assignee:  msg.Assignee,
		Priority:  msg.Priority,
		DueDate:   msg.DueDate,
	}
	todo.SetDefaults()
	if err := todo.Validate(); err != nil {
		p.reject(ctx, conn, "ADD_TODO: "+err.Error())
		return
	}

	if err := p.store.CreateTodo(ctx, msg.ProjectID, todo); err != nil {
		p.fail(ctx, conn, "ADD_TODO", err)
		return
	}

	p.state.ApplyTodoAdded(msg.ProjectID, todo)
	p.dispatcher.Broadcast(protocol.TodoAdded(msg.ProjectID, todo))
	p.recomputeProgress(ctx, conn, msg.ProjectID)
}

// updateTodo has full-replace semantics: the stored row becomes exactly what
// the client sent (after defaulting), so an omitted field is cleared.
func (p *Processor) updateTodo(ctx context.Context, conn Connection, msg *protocol.Message) {
	if msg.ProjectID == "" || msg.Todo == nil || msg.Todo.ID == "" {
		p.reject(ctx, conn, "UPDATE_TODO requires projectId and a todo with an id")
		return
	}

	todo := *msg.Todo
	todo.SetDefaults()
	if err := todo.Validate(); err != nil {
		p.reject(ctx, conn, "UPDATE_TODO: "+err.Error())
		return
	}

	final, err := p.store.ReplaceTodo(ctx, msg.ProjectID, todo)
	if err != nil {
		p.fail(ctx, conn, "UPDATE_TODO", err)
		return
	}

	p.state.ApplyTodoUpdated(msg.ProjectID, final)
	p.dispatcher.Broadcast(protocol.TodoUpdated(msg.ProjectID, final))
	p.recomputeProgress(ctx, conn, msg.ProjectID)
}

func (p *Processor) deleteTodo(ctx context.Context, conn Connection, msg *protocol.Message) {
	if msg.ProjectID == "" || msg.TodoID == "" {
		p.reject(ctx, conn, "DELETE_TODO requires projectId and todoId")
		return
	}

	if err := p.store.DeleteTodo(ctx, msg.ProjectID, msg.TodoID); err != nil {
		p.fail(ctx, conn, "DELETE_TODO", err)
		return
	}

	p.state.ApplyTodoDeleted(msg.ProjectID, msg.TodoID)
	p.dispatcher.Broadcast(protocol.TodoDeleted(msg.ProjectID, msg.TodoID))
	p.recomputeProgress(ctx, conn, msg.ProjectID)
}

func (p *Processor) addAssignee(ctx context.Context, conn Connection, msg *protocol.Message) {
	if msg.ProjectID == "" || msg.AssigneeName == "" {
		p.reject(ctx, conn, "ADD_ASSIGNEE requires projectId and assigneeName")
		return
	}

	added, err := p.store.AddAssignee(ctx, msg.ProjectID, msg.AssigneeName)
	if err != nil {
		p.fail(ctx, conn, "ADD_ASSIGNEE", err)
		return
	}
	if !added {
		// Set semantics: duplicate add is a no-op, nothing to announce.
		return
	}

	p.state.ApplyAssigneeAdded(msg.ProjectID, msg.AssigneeName)
	p.dispatcher.Broadcast(protocol.AssigneeAdded(msg.ProjectID, msg.AssigneeName))
}

// deleteAssignee removes the name and repairs the denormalized reference on
// the project's todos authoritatively, broadcasting a TODO_UPDATED per
// repaired todo before the ASSIGNEE_DELETED event. Clients never need to
// re-send the repair.
func (p *Processor) deleteAssignee(ctx context.Context, conn Connection, msg *protocol.Message) {
	if msg.ProjectID == "" || msg.AssigneeName == "" {
		p.reject(ctx, conn, "DELETE_ASSIGNEE requires projectId and assigneeName")
		return
	}

	repaired, err := p.store.DeleteAssignee(ctx, msg.ProjectID, msg.AssigneeName)
	if err != nil {
		p.fail(ctx, conn, "DELETE_ASSIGNEE", err)
		return
	}

	for _, todo := range repaired {
		p.state.ApplyTodoUpdated(msg.ProjectID, todo)
		p.dispatcher.Broadcast(protocol.TodoUpdated(msg.ProjectID, todo))
	}

	p.state.ApplyAssigneeDeleted(msg.ProjectID, msg.AssigneeName)
	p.dispatcher.Broadcast(protocol.AssigneeDeleted(msg.ProjectID, msg.AssigneeName))
}

// getMemo responds to the requesting connection only; reads are not
// broadcast.
func (p *Processor) getMemo(ctx context.Context, conn Connection, msg *protocol.Message) {
	if msg.ProjectID == "" {
		p.reject(ctx, conn, "GET_MEMO requires projectId")
		return
	}

	content, err := p.store.GetMemo(ctx, msg.ProjectID)
	if err != nil {
		p.fail(ctx, conn, "GET_MEMO", err)
		return
	}

	p.sendTo(ctx, conn, protocol.MemoUpdate(msg.ProjectID, content))
}

func (p *Processor) updateMemo(ctx context.Context, conn Connection, msg *protocol.Message) {
	if msg.ProjectID == "" {
		p.reject(ctx, conn, "UPDATE_MEMO requires projectId")
		return
	}
	content := ""
	if msg.Content != nil {
		content = *msg.Content
	}

	if err := p.store.UpsertMemo(ctx, msg.ProjectID, content); err != nil {
		p.fail(ctx, conn, "UPDATE_MEMO", err)
		return
	}

	p.state.ApplyMemoUpdated(msg.ProjectID, content)
	p.dispatcher.Broadcast(protocol.MemoUpdate(msg.ProjectID, content))
}

// recomputeProgress rederives a project's progress from the persisted todo
// rows after a todo mutation and broadcasts the updated project. Reading the
// durable counts, not the cache, keeps the percentage from drifting.
func (p *Processor) recomputeProgress(ctx context.Context, conn Connection, projectID string) {
	completed, total, err := p.store.TodoCounts(ctx, projectID)
	if err != nil {
		p.fail(ctx, conn, "progress recompute", err)
		return
	}

	project, err := p.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Project deleted under us; nothing to update.
			return
		}
		p.fail(ctx, conn, "progress recompute", err)
		return
	}

	project.Progress = model.ComputeProgress(completed, total)
	if err := p.store.UpdateProject(ctx, *project); err != nil {
		p.fail(ctx, conn, "progress recompute", err)
		return
	}

	p.state.ApplyProjectUpdated(*project)
	p.dispatcher.Broadcast(protocol.ProjectUpdated(*project))
}

// reject reports a validation failure back to the offending connection.
func (p *Processor) reject(ctx context.Context, conn Connection, reason string) {
	p.logger.Printf("Rejecting command: %s", reason)
	p.sendTo(ctx, conn, protocol.Error(reason))
}

// fail reports a failed command (usually persistence) to its origin. The
// state store is untouched and nothing is broadcast, so other clients never
// observe a write that did not durably commit.
func (p *Processor) fail(ctx context.Context, conn Connection, op string, err error) {
	p.logger.Printf("%s failed: %v", op, err)
	p.sendTo(ctx, conn, protocol.Error(op+" failed"))
}

func (p *Processor) sendTo(ctx context.Context, conn Connection, msg *protocol.Message) {
	sendCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Send(sendCtx, msg); err != nil {
		p.logger.Printf("Failed to send %s to client: %v", msg.Type, err)
	}
}
