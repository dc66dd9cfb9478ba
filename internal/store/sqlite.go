package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/teamboard/teamboard/internal/model"
)

// SQLite implements Store on an embedded SQLite database with WAL mode.
type SQLite struct {
	conn *sql.DB
	path string
}

// Open creates or opens the database at path and initializes the schema.
// The caller must Close when done.
func Open(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLite{conn: conn, path: path}

	// WAL keeps snapshot reads concurrent with the single command writer.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close checkpoints the WAL and closes the connection pool.
func (s *SQLite) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// initSchema creates the tables if needed. Idempotent.
func (s *SQLite) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS todos (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		assignee TEXT,
		priority TEXT NOT NULL DEFAULT 'low',
		due_date TEXT,        -- calendar date, YYYY-MM-DD
		completed_date TEXT   -- RFC3339 timestamp
	);

	CREATE TABLE IF NOT EXISTS project_assignees (
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		assignee_name TEXT NOT NULL,
		PRIMARY KEY (project_id, assignee_name)
	);

	CREATE TABLE IF NOT EXISTS memos (
		project_id TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
		content TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_todos_project ON todos(project_id);
	CREATE INDEX IF NOT EXISTS idx_todos_assignee ON todos(project_id, assignee);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// CreateProject inserts a new project row.
func (s *SQLite) CreateProject(ctx context.Context, p model.Project) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO projects (id, name, progress) VALUES (?, ?, ?)`,
		p.ID, p.Name, p.Progress,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project %s: %w", p.ID, err)
	}
	return nil
}

// UpdateProject overwrites name and progress for an existing project.
func (s *SQLite) UpdateProject(ctx context.Context, p model.Project) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}
	res, err := s.conn.ExecContext(ctx,
		`UPDATE projects SET name = ?, progress = ? WHERE id = ?`,
		p.Name, p.Progress, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// DeleteProject removes the project; todos, assignees, and the memo cascade.
func (s *SQLite) DeleteProject(ctx context.Context, projectID string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", projectID, err)
	}
	return nil
}

// GetProject fetches one project by id.
func (s *SQLite) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	var p model.Project
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, name, progress FROM projects WHERE id = ?`, projectID,
	).Scan(&p.ID, &p.Name, &p.Progress)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", projectID, err)
	}
	return &p, nil
}

// CreateTodo inserts a new todo row under the given project.
func (s *SQLite) CreateTodo(ctx context.Context, projectID string, t model.Todo) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid todo: %w", err)
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO todos (id, project_id, text, completed, assignee, priority, due_date, completed_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, projectID, t.Text, boolToInt(t.Completed),
		nullIfEmpty(t.Assignee), string(t.Priority),
		t.DueDate, timeToNull(t.CompletedDate),
	)
	if err != nil {
		return fmt.Errorf("failed to insert todo %s: %w", t.ID, err)
	}
	return nil
}

// ReplaceTodo overwrites the row with t, managing completed_date on
// completion transitions, and returns the final row.
func (s *SQLite) ReplaceTodo(ctx context.Context, projectID string, t model.Todo) (model.Todo, error) {
	if err := t.Validate(); err != nil {
		return model.Todo{}, fmt.Errorf("invalid todo: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return model.Todo{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var wasCompleted int
	var prevCompletedDate sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT completed, completed_date FROM todos WHERE id = ? AND project_id = ?`,
		t.ID, projectID,
	).Scan(&wasCompleted, &prevCompletedDate)
	if err == sql.ErrNoRows {
		return model.Todo{}, fmt.Errorf("todo %s in project %s: %w", t.ID, projectID, ErrNotFound)
	}
	if err != nil {
		return model.Todo{}, fmt.Errorf("failed to read todo %s: %w", t.ID, err)
	}

	switch {
	case t.Completed && wasCompleted == 0:
		// Second precision, matching the RFC3339 column round trip.
		now := time.Now().UTC().Truncate(time.Second)
		t.CompletedDate = &now
	case t.Completed && wasCompleted == 1:
		t.CompletedDate = nullToTime(prevCompletedDate)
	default:
		t.CompletedDate = nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE todos SET text = ?, completed = ?, assignee = ?, priority = ?, due_date = ?, completed_date = ?
		WHERE id = ? AND project_id = ?`,
		t.Text, boolToInt(t.Completed), nullIfEmpty(t.Assignee), string(t.Priority),
		t.DueDate, timeToNull(t.CompletedDate),
		t.ID, projectID,
	)
	if err != nil {
		return model.Todo{}, fmt.Errorf("failed to replace todo %s: %w", t.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return model.Todo{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return t, nil
}

// DeleteTodo removes one todo. Deleting an absent todo is a no-op.
func (s *SQLite) DeleteTodo(ctx context.Context, projectID, todoID string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM todos WHERE id = ? AND project_id = ?`, todoID, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete todo %s: %w", todoID, err)
	}
	return nil
}

// ListTodos returns the project's todos in insertion order.
func (s *SQLite) ListTodos(ctx context.Context, projectID string) ([]model.Todo, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, text, completed, assignee, priority, due_date, completed_date
		FROM todos WHERE project_id = ? ORDER BY rowid ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos for project %s: %w", projectID, err)
	}
	defer rows.Close()
	return scanTodos(rows)
}

// TodoCounts returns the persisted completed and total counts for a project.
func (s *SQLite) TodoCounts(ctx context.Context, projectID string) (completed, total int, err error) {
	err = s.conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(completed), 0), COUNT(*)
		FROM todos WHERE project_id = ?`, projectID,
	).Scan(&completed, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count todos for project %s: %w", projectID, err)
	}
	return completed, total, nil
}

// AddAssignee adds the name to the project's set; duplicate adds are no-ops.
func (s *SQLite) AddAssignee(ctx context.Context, projectID, name string) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO project_assignees (project_id, assignee_name) VALUES (?, ?)
		ON CONFLICT(project_id, assignee_name) DO NOTHING`,
		projectID, name,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add assignee %s to project %s: %w", name, projectID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteAssignee removes the name and repairs the denormalized assignee
// field on every todo referencing it, in one transaction.
func (s *SQLite) DeleteAssignee(ctx context.Context, projectID, name string) ([]model.Todo, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, text, completed, assignee, priority, due_date, completed_date
		FROM todos WHERE project_id = ? AND assignee = ? ORDER BY rowid ASC`,
		projectID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find todos for assignee %s: %w", name, err)
	}
	repaired, err := scanTodos(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE todos SET assignee = NULL WHERE project_id = ? AND assignee = ?`,
		projectID, name); err != nil {
		return nil, fmt.Errorf("failed to clear assignee %s on todos: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM project_assignees WHERE project_id = ? AND assignee_name = ?`,
		projectID, name); err != nil {
		return nil, fmt.Errorf("failed to delete assignee %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	for i := range repaired {
		repaired[i].Assignee = ""
	}
	return repaired, nil
}

// GetMemo returns the memo content, or "" when the project has no memo yet.
func (s *SQLite) GetMemo(ctx context.Context, projectID string) (string, error) {
	var content string
	err := s.conn.QueryRowContext(ctx,
		`SELECT content FROM memos WHERE project_id = ?`, projectID,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get memo for project %s: %w", projectID, err)
	}
	return content, nil
}

// UpsertMemo inserts or replaces the project's memo.
func (s *SQLite) UpsertMemo(ctx context.Context, projectID, content string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO memos (project_id, content) VALUES (?, ?)
		ON CONFLICT(project_id) DO UPDATE SET content = excluded.content`,
		projectID, content,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert memo for project %s: %w", projectID, err)
	}
	return nil
}

// LoadAll reads the four collections inside one read transaction so the
// snapshot never mixes states across collections.
func (s *SQLite) LoadAll(ctx context.Context) (*Snapshot, error) {
	tx, err := s.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	snap := &Snapshot{
		Projects:           []model.Project{},
		TodosByProject:     map[string][]model.Todo{},
		AssigneesByProject: map[string][]string{},
		MemosByProject:     map[string]string{},
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, name, progress FROM projects ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Progress); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		snap.Projects = append(snap.Projects, p)
		snap.TodosByProject[p.ID] = []model.Todo{}
		snap.AssigneesByProject[p.ID] = []string{}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `
		SELECT project_id, id, text, completed, assignee, priority, due_date, completed_date
		FROM todos ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load todos: %w", err)
	}
	for rows.Next() {
		var projectID string
		t, err := scanTodoWithProject(rows, &projectID)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snap.TodosByProject[projectID] = append(snap.TodosByProject[projectID], t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating todos: %w", err)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `
		SELECT project_id, assignee_name FROM project_assignees ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignees: %w", err)
	}
	for rows.Next() {
		var projectID, name string
		if err := rows.Scan(&projectID, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan assignee: %w", err)
		}
		snap.AssigneesByProject[projectID] = append(snap.AssigneesByProject[projectID], name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating assignees: %w", err)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `SELECT project_id, content FROM memos`)
	if err != nil {
		return nil, fmt.Errorf("failed to load memos: %w", err)
	}
	for rows.Next() {
		var projectID, content string
		if err := rows.Scan(&projectID, &content); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan memo: %w", err)
		}
		snap.MemosByProject[projectID] = content
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating memos: %w", err)
	}
	rows.Close()

	return snap, nil
}

// scanTodos scans todo rows without the project_id column.
func scanTodos(rows *sql.Rows) ([]model.Todo, error) {
	todos := []model.Todo{}
	for rows.Next() {
		var t model.Todo
		var completed int
		var assignee, completedDate sql.NullString
		var dueDate sql.Null[model.Date]
		err := rows.Scan(&t.ID, &t.Text, &completed, &assignee, &t.Priority, &dueDate, &completedDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		t.Completed = completed != 0
		t.Assignee = assignee.String
		if dueDate.Valid {
			d := dueDate.V
			t.DueDate = &d
		}
		t.CompletedDate = nullToTime(completedDate)
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating todos: %w", err)
	}
	return todos, nil
}

// scanTodoWithProject scans one todo row prefixed by its project_id.
func scanTodoWithProject(rows *sql.Rows, projectID *string) (model.Todo, error) {
	var t model.Todo
	var completed int
	var assignee, completedDate sql.NullString
	var dueDate sql.Null[model.Date]
	err := rows.Scan(projectID, &t.ID, &t.Text, &completed, &assignee, &t.Priority, &dueDate, &completedDate)
	if err != nil {
		return model.Todo{}, fmt.Errorf("failed to scan todo: %w", err)
	}
	t.Completed = completed != 0
	t.Assignee = assignee.String
	if dueDate.Valid {
		d := dueDate.V
		t.DueDate = &d
	}
	t.CompletedDate = nullToTime(completedDate)
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func timeToNull(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func nullToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
