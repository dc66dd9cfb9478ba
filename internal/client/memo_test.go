package client

import (
	"sync"
	"testing"
	"time"
)

// memoRecorder captures sends and applies from a MemoEditor.
type memoRecorder struct {
	mu      sync.Mutex
	sent    []string
	applied []string
}

func (m *memoRecorder) send(projectID, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, content)
}

func (m *memoRecorder) apply(projectID, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, content)
}

func (m *memoRecorder) sentAll() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.sent...)
}

func (m *memoRecorder) appliedAll() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.applied...)
}

func newTestEditor() (*MemoEditor, *memoRecorder) {
	rec := &memoRecorder{}
	e := NewMemoEditor(rec.send, rec.apply)
	e.SetDelays(20*time.Millisecond, 60*time.Millisecond)
	return e, rec
}

func TestTypingDebouncesSaves(t *testing.T) {
	e, rec := newTestEditor()
	e.Open("p1", "")

	// A burst of keystrokes within the debounce window.
	e.Type("h")
	e.Type("he")
	e.Type("hel")
	e.Type("hello")

	time.Sleep(40 * time.Millisecond)

	sent := rec.sentAll()
	if len(sent) != 1 {
		t.Fatalf("Expected one debounced save, got %d: %v", len(sent), sent)
	}
	if sent[0] != "hello" {
		t.Errorf("Saved %q, want final content", sent[0])
	}
}

func TestRemoteDeferredWhileTyping(t *testing.T) {
	e, rec := newTestEditor()
	e.Open("p1", "")

	e.Type("local draft")
	if !e.Typing() {
		t.Fatal("Typing guard should be active")
	}

	// A broadcast echo arrives mid-edit; it must not clobber the editor.
	e.HandleRemote("p1", "remote version")
	if got := e.Content(); got != "local draft" {
		t.Errorf("Remote update clobbered editor: %q", got)
	}
	if len(rec.appliedAll()) != 0 {
		t.Error("Remote update applied while typing")
	}

	// After the guard expires the deferred update lands.
	time.Sleep(100 * time.Millisecond)
	if e.Typing() {
		t.Error("Typing guard should have expired")
	}
	applied := rec.appliedAll()
	if len(applied) != 1 || applied[0] != "remote version" {
		t.Errorf("Deferred update not applied: %v", applied)
	}
	if got := e.Content(); got != "remote version" {
		t.Errorf("Editor content = %q, want remote version", got)
	}
}

func TestOnlyLatestDeferredRemoteWins(t *testing.T) {
	e, rec := newTestEditor()
	e.Open("p1", "")

	e.Type("typing")
	e.HandleRemote("p1", "first")
	e.HandleRemote("p1", "second")

	time.Sleep(100 * time.Millisecond)

	applied := rec.appliedAll()
	if len(applied) != 1 || applied[0] != "second" {
		t.Errorf("Applied = %v, want only the latest", applied)
	}
}

func TestRemoteAppliesImmediatelyWhenIdle(t *testing.T) {
	e, rec := newTestEditor()
	e.Open("p1", "old")

	e.HandleRemote("p1", "new")

	if got := e.Content(); got != "new" {
		t.Errorf("Content = %q, want new", got)
	}
	if applied := rec.appliedAll(); len(applied) != 1 || applied[0] != "new" {
		t.Errorf("Applied = %v", applied)
	}
}

func TestRemoteForOtherProjectPassesThrough(t *testing.T) {
	e, rec := newTestEditor()
	e.Open("p1", "mine")
	e.Type("mine edited")

	e.HandleRemote("p2", "other project")

	// Applied immediately regardless of the typing guard.
	if applied := rec.appliedAll(); len(applied) != 1 || applied[0] != "other project" {
		t.Errorf("Applied = %v", applied)
	}
	if got := e.Content(); got != "mine edited" {
		t.Errorf("Open memo disturbed: %q", got)
	}
}

func TestOpenCancelsPendingSave(t *testing.T) {
	e, rec := newTestEditor()
	e.Open("p1", "")
	e.Type("about to switch")

	e.Open("p2", "fresh")
	time.Sleep(40 * time.Millisecond)

	if sent := rec.sentAll(); len(sent) != 0 {
		t.Errorf("Save fired after switching memos: %v", sent)
	}
}
