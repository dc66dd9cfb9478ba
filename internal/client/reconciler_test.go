package client

import (
	"testing"

	"github.com/teamboard/teamboard/internal/model"
	"github.com/teamboard/teamboard/internal/protocol"
)

func TestApplyFullStateOverwrites(t *testing.T) {
	r := NewReconciler(nil)

	// Seed the mirror with stale state.
	r.Apply(protocol.ProjectAdded(model.Project{ID: "stale", Name: "Old"}))
	r.Apply(protocol.TodoAdded("stale", model.Todo{ID: "t0", Text: "old", Priority: model.PriorityLow}))

	r.Apply(protocol.FullState(
		[]model.Project{{ID: "p1", Name: "Website", Progress: 50}},
		map[string][]model.Todo{"p1": {{ID: "t1", Text: "x", Priority: model.PriorityLow}}},
		map[string][]string{"p1": {"alice"}},
	))

	projects := r.Projects()
	if len(projects) != 1 || projects[0].ID != "p1" {
		t.Errorf("Snapshot did not overwrite: %+v", projects)
	}
	if todos := r.Todos("stale"); len(todos) != 0 {
		t.Errorf("Stale todos survived the snapshot: %+v", todos)
	}
	if names := r.Assignees("p1"); len(names) != 1 || names[0] != "alice" {
		t.Errorf("Assignees = %+v", names)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	r := NewReconciler(nil)

	add := protocol.ProjectAdded(model.Project{ID: "p1", Name: "Website"})
	r.Apply(add)
	r.Apply(add)
	if projects := r.Projects(); len(projects) != 1 {
		t.Errorf("Duplicate PROJECT_ADDED applied twice: %+v", projects)
	}

	todoAdd := protocol.TodoAdded("p1", model.Todo{ID: "t1", Text: "x", Priority: model.PriorityLow})
	r.Apply(todoAdd)
	r.Apply(todoAdd)
	if todos := r.Todos("p1"); len(todos) != 1 {
		t.Errorf("Duplicate TODO_ADDED applied twice: %+v", todos)
	}

	assigneeAdd := protocol.AssigneeAdded("p1", "alice")
	r.Apply(assigneeAdd)
	r.Apply(assigneeAdd)
	if names := r.Assignees("p1"); len(names) != 1 {
		t.Errorf("Duplicate ASSIGNEE_ADDED applied twice: %+v", names)
	}
}

func TestApplyUpdateForUnknownTargetAppends(t *testing.T) {
	r := NewReconciler(nil)

	r.Apply(protocol.ProjectUpdated(model.Project{ID: "p1", Name: "Website", Progress: 10}))
	if projects := r.Projects(); len(projects) != 1 || projects[0].Progress != 10 {
		t.Errorf("Update of unknown project not appended: %+v", projects)
	}

	r.Apply(protocol.TodoUpdated("p1", model.Todo{ID: "t1", Text: "x", Priority: model.PriorityLow}))
	if todos := r.Todos("p1"); len(todos) != 1 {
		t.Errorf("Update of unknown todo not appended: %+v", todos)
	}
}

func TestApplyProjectDeleted(t *testing.T) {
	r := NewReconciler(nil)
	var deletedID string
	r.OnProjectDeleted = func(projectID string) { deletedID = projectID }

	r.Apply(protocol.ProjectAdded(model.Project{ID: "p1", Name: "Website"}))
	r.Apply(protocol.TodoAdded("p1", model.Todo{ID: "t1", Text: "x", Priority: model.PriorityLow}))
	r.ApplyMemo("p1", "notes")

	r.Apply(protocol.ProjectDeleted("p1"))

	if projects := r.Projects(); len(projects) != 0 {
		t.Errorf("Project not removed: %+v", projects)
	}
	if todos := r.Todos("p1"); len(todos) != 0 {
		t.Errorf("Todos not removed: %+v", todos)
	}
	if memo := r.Memo("p1"); memo != "" {
		t.Errorf("Memo not removed: %q", memo)
	}
	if deletedID != "p1" {
		t.Errorf("OnProjectDeleted fired with %q", deletedID)
	}
}

func TestApplyAssigneeDeletedRepairsLocalTodos(t *testing.T) {
	r := NewReconciler(nil)

	r.Apply(protocol.ProjectAdded(model.Project{ID: "p1", Name: "Website"}))
	r.Apply(protocol.AssigneeAdded("p1", "alice"))
	r.Apply(protocol.TodoAdded("p1", model.Todo{ID: "t1", Text: "x", Assignee: "alice", Priority: model.PriorityLow}))
	r.Apply(protocol.TodoAdded("p1", model.Todo{ID: "t2", Text: "y", Assignee: "bob", Priority: model.PriorityLow}))

	r.Apply(protocol.AssigneeDeleted("p1", "alice"))

	if names := r.Assignees("p1"); len(names) != 0 {
		t.Errorf("Assignee not removed: %+v", names)
	}
	todos := r.Todos("p1")
	if todos[0].Assignee != "" {
		t.Errorf("Local todo not repaired: %+v", todos[0])
	}
	if todos[1].Assignee != "bob" {
		t.Errorf("Unrelated todo touched: %+v", todos[1])
	}
}

func TestApplyMemoUpdateDirect(t *testing.T) {
	r := NewReconciler(nil)

	r.Apply(protocol.MemoUpdate("p1", "hello"))
	if memo := r.Memo("p1"); memo != "hello" {
		t.Errorf("Memo = %q, want hello", memo)
	}

	// Empty content is a real value, not a deletion marker.
	r.Apply(protocol.MemoUpdate("p1", ""))
	if memo := r.Memo("p1"); memo != "" {
		t.Errorf("Memo = %q, want empty", memo)
	}
}

func TestApplyMemoUpdateRoutesToSink(t *testing.T) {
	r := NewReconciler(nil)
	var sinkProject, sinkContent string
	r.SetMemoSink(func(projectID, content string) {
		sinkProject, sinkContent = projectID, content
	})

	r.Apply(protocol.MemoUpdate("p1", "draft"))

	if sinkProject != "p1" || sinkContent != "draft" {
		t.Errorf("Sink got (%q, %q)", sinkProject, sinkContent)
	}
	if memo := r.Memo("p1"); memo != "" {
		t.Errorf("Mirror written despite sink: %q", memo)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	r := NewReconciler(nil)
	r.Apply(protocol.ProjectAdded(model.Project{ID: "p1", Name: "Website"}))

	r.Apply(&protocol.Message{Type: "SOMETHING_NEW"})

	if projects := r.Projects(); len(projects) != 1 {
		t.Errorf("Unknown event disturbed the mirror: %+v", projects)
	}
}

func TestOnChangeFires(t *testing.T) {
	r := NewReconciler(nil)
	changes := 0
	r.OnChange = func() { changes++ }

	r.Apply(protocol.ProjectAdded(model.Project{ID: "p1", Name: "Website"}))
	r.Apply(protocol.TodoAdded("p1", model.Todo{ID: "t1", Text: "x", Priority: model.PriorityLow}))

	if changes != 2 {
		t.Errorf("OnChange fired %d times, want 2", changes)
	}
}
