package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/teamboard/teamboard/internal/model"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProjectCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := model.Project{ID: "p1", Name: "Website", Progress: 0}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	got, err := s.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if *got != p {
		t.Errorf("GetProject = %+v, want %+v", got, p)
	}

	p.Name = "Website v2"
	p.Progress = 50
	if err := s.UpdateProject(ctx, p); err != nil {
		t.Fatalf("UpdateProject failed: %v", err)
	}
	got, err = s.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProject after update failed: %v", err)
	}
	if got.Name != "Website v2" || got.Progress != 50 {
		t.Errorf("Update not persisted: %+v", got)
	}

	if err := s.DeleteProject(ctx, "p1"); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}
	if _, err := s.GetProject(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestUpdateMissingProject(t *testing.T) {
	s := openTestStore(t)

	err := s.UpdateProject(context.Background(), model.Project{ID: "nope", Name: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateProject(ctx, model.Project{ID: "p1", Name: "Website"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if err := s.CreateTodo(ctx, "p1", model.Todo{ID: "t1", Text: "x", Priority: model.PriorityLow}); err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}
	if _, err := s.AddAssignee(ctx, "p1", "alice"); err != nil {
		t.Fatalf("AddAssignee failed: %v", err)
	}
	if err := s.UpsertMemo(ctx, "p1", "notes"); err != nil {
		t.Fatalf("UpsertMemo failed: %v", err)
	}

	if err := s.DeleteProject(ctx, "p1"); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}

	snap, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(snap.Projects) != 0 || len(snap.TodosByProject) != 0 ||
		len(snap.AssigneesByProject) != 0 || len(snap.MemosByProject) != 0 {
		t.Errorf("Cascade incomplete: %+v", snap)
	}
}

func TestReplaceTodoManagesCompletedDate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateProject(ctx, model.Project{ID: "p1", Name: "Website"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	todo := model.Todo{ID: "t1", Text: "Ship it", Priority: model.PriorityHigh}
	if err := s.CreateTodo(ctx, "p1", todo); err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}

	// Completing stamps the date.
	todo.Completed = true
	final, err := s.ReplaceTodo(ctx, "p1", todo)
	if err != nil {
		t.Fatalf("ReplaceTodo failed: %v", err)
	}
	if final.CompletedDate == nil {
		t.Fatal("CompletedDate not stamped on completion")
	}
	stamped := *final.CompletedDate

	// Replacing while still completed preserves the original stamp, even
	// though the client never sends the field back.
	final.Text = "Ship it now"
	final.CompletedDate = nil
	final, err = s.ReplaceTodo(ctx, "p1", final)
	if err != nil {
		t.Fatalf("ReplaceTodo failed: %v", err)
	}
	if final.CompletedDate == nil || !final.CompletedDate.Equal(stamped) {
		t.Errorf("CompletedDate not preserved: %v, want %v", final.CompletedDate, stamped)
	}

	// Un-completing clears it.
	final.Completed = false
	final, err = s.ReplaceTodo(ctx, "p1", final)
	if err != nil {
		t.Fatalf("ReplaceTodo failed: %v", err)
	}
	if final.CompletedDate != nil {
		t.Errorf("CompletedDate not cleared: %v", final.CompletedDate)
	}
}

func TestReplaceTodoFullReplace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateProject(ctx, model.Project{ID: "p1", Name: "Website"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	due := model.NewDate(2026, time.April, 1)
	todo := model.Todo{ID: "t1", Text: "x", Assignee: "alice", Priority: model.PriorityHigh, DueDate: &due}
	if err := s.CreateTodo(ctx, "p1", todo); err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}

	// Omitted fields are cleared, not merged.
	final, err := s.ReplaceTodo(ctx, "p1", model.Todo{ID: "t1", Text: "x", Priority: model.PriorityLow})
	if err != nil {
		t.Fatalf("ReplaceTodo failed: %v", err)
	}
	if final.Assignee != "" || final.DueDate != nil {
		t.Errorf("Fields not cleared on full replace: %+v", final)
	}

	if _, err := s.ReplaceTodo(ctx, "p1", model.Todo{ID: "missing", Text: "x", Priority: model.PriorityLow}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing todo, got %v", err)
	}
}

func TestTodoCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateProject(ctx, model.Project{ID: "p1", Name: "Website"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	completed, total, err := s.TodoCounts(ctx, "p1")
	if err != nil {
		t.Fatalf("TodoCounts failed: %v", err)
	}
	if completed != 0 || total != 0 {
		t.Errorf("Empty project counts = %d/%d", completed, total)
	}

	for i, done := range []bool{true, false, true, false} {
		todo := model.Todo{ID: string(rune('a' + i)), Text: "x", Completed: done, Priority: model.PriorityLow}
		if err := s.CreateTodo(ctx, "p1", todo); err != nil {
			t.Fatalf("CreateTodo failed: %v", err)
		}
	}

	completed, total, err = s.TodoCounts(ctx, "p1")
	if err != nil {
		t.Fatalf("TodoCounts failed: %v", err)
	}
	if completed != 2 || total != 4 {
		t.Errorf("Counts = %d/%d, want 2/4", completed, total)
	}
}

func TestAssigneeSetSemantics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateProject(ctx, model.Project{ID: "p1", Name: "Website"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	added, err := s.AddAssignee(ctx, "p1", "alice")
	if err != nil {
		t.Fatalf("AddAssignee failed: %v", err)
	}
	if !added {
		t.Error("First add should report added")
	}

	added, err = s.AddAssignee(ctx, "p1", "alice")
	if err != nil {
		t.Fatalf("Duplicate AddAssignee failed: %v", err)
	}
	if added {
		t.Error("Duplicate add should report not added")
	}
}

func TestDeleteAssigneeRepairsTodos(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateProject(ctx, model.Project{ID: "p1", Name: "Website"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if _, err := s.AddAssignee(ctx, "p1", "alice"); err != nil {
		t.Fatalf("AddAssignee failed: %v", err)
	}
	for _, todo := range []model.Todo{
		{ID: "t1", Text: "a", Assignee: "alice", Priority: model.PriorityLow},
		{ID: "t2", Text: "b", Assignee: "alice", Priority: model.PriorityLow},
		{ID: "t3", Text: "c", Assignee: "bob", Priority: model.PriorityLow},
	} {
		if err := s.CreateTodo(ctx, "p1", todo); err != nil {
			t.Fatalf("CreateTodo failed: %v", err)
		}
	}

	repaired, err := s.DeleteAssignee(ctx, "p1", "alice")
	if err != nil {
		t.Fatalf("DeleteAssignee failed: %v", err)
	}
	if len(repaired) != 2 {
		t.Fatalf("Expected 2 repaired todos, got %d", len(repaired))
	}
	for _, todo := range repaired {
		if todo.Assignee != "" {
			t.Errorf("Repaired todo %s still has assignee %q", todo.ID, todo.Assignee)
		}
	}

	todos, err := s.ListTodos(ctx, "p1")
	if err != nil {
		t.Fatalf("ListTodos failed: %v", err)
	}
	for _, todo := range todos {
		if todo.Assignee == "alice" {
			t.Errorf("Todo %s still references deleted assignee", todo.ID)
		}
	}
}

func TestMemoUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateProject(ctx, model.Project{ID: "p1", Name: "Website"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	content, err := s.GetMemo(ctx, "p1")
	if err != nil {
		t.Fatalf("GetMemo on absent memo failed: %v", err)
	}
	if content != "" {
		t.Errorf("Absent memo = %q, want empty", content)
	}

	if err := s.UpsertMemo(ctx, "p1", "first"); err != nil {
		t.Fatalf("UpsertMemo failed: %v", err)
	}
	if err := s.UpsertMemo(ctx, "p1", "second"); err != nil {
		t.Fatalf("Second UpsertMemo failed: %v", err)
	}

	content, err = s.GetMemo(ctx, "p1")
	if err != nil {
		t.Fatalf("GetMemo failed: %v", err)
	}
	if content != "second" {
		t.Errorf("Memo = %q, want second", content)
	}
}

func TestDueDateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateProject(ctx, model.Project{ID: "p1", Name: "Website"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	due := model.NewDate(2026, time.September, 15)
	if err := s.CreateTodo(ctx, "p1", model.Todo{ID: "t1", Text: "dated", Priority: model.PriorityLow, DueDate: &due}); err != nil {
		t.Fatalf("CreateTodo with due date failed: %v", err)
	}
	if err := s.CreateTodo(ctx, "p1", model.Todo{ID: "t2", Text: "undated", Priority: model.PriorityLow}); err != nil {
		t.Fatalf("CreateTodo without due date failed: %v", err)
	}

	todos, err := s.ListTodos(ctx, "p1")
	if err != nil {
		t.Fatalf("ListTodos failed: %v", err)
	}
	if len(todos) != 2 {
		t.Fatalf("ListTodos returned %d todos, want 2", len(todos))
	}
	if todos[0].DueDate == nil || *todos[0].DueDate != due {
		t.Errorf("Due date = %v, want %s", todos[0].DueDate, due)
	}
	if todos[1].DueDate != nil {
		t.Errorf("Undated todo came back with due date %v", todos[1].DueDate)
	}
}

func TestLoadAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	due := model.NewDate(2026, time.May, 1)
	if err := s.CreateProject(ctx, model.Project{ID: "p1", Name: "Website", Progress: 50}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if err := s.CreateTodo(ctx, "p1", model.Todo{ID: "t1", Text: "x", Assignee: "alice", Priority: model.PriorityHigh, DueDate: &due}); err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}
	if _, err := s.AddAssignee(ctx, "p1", "alice"); err != nil {
		t.Fatalf("AddAssignee failed: %v", err)
	}
	if err := s.UpsertMemo(ctx, "p1", "notes"); err != nil {
		t.Fatalf("UpsertMemo failed: %v", err)
	}

	snap, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	if len(snap.Projects) != 1 || snap.Projects[0].Name != "Website" {
		t.Errorf("Projects = %+v", snap.Projects)
	}
	todos := snap.TodosByProject["p1"]
	if len(todos) != 1 || todos[0].Assignee != "alice" || todos[0].DueDate == nil {
		t.Errorf("Todos = %+v", todos)
	}
	if names := snap.AssigneesByProject["p1"]; len(names) != 1 || names[0] != "alice" {
		t.Errorf("Assignees = %+v", names)
	}
	if snap.MemosByProject["p1"] != "notes" {
		t.Errorf("Memos = %+v", snap.MemosByProject)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.CreateProject(ctx, model.Project{ID: "p1", Name: "Website"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()

	got, err := s.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProject after reopen failed: %v", err)
	}
	if got.Name != "Website" {
		t.Errorf("Project = %+v", got)
	}
}
