package client

import (
	"sync"
	"time"
)

const (
	defaultSaveDelay   = 300 * time.Millisecond
	defaultGuardWindow = 2 * time.Second
)

// MemoEditor manages one open memo. Keystrokes are debounced before being
// sent upstream, and incoming remote updates are held back while the user is
// actively typing so a broadcast echo cannot clobber text mid-edit. Once the
// typing guard expires, the latest deferred remote update is applied.
type MemoEditor struct {
	mu sync.Mutex

	projectID string
	content   string

	typing        bool
	pendingRemote *string

	saveTimer  *time.Timer
	guardTimer *time.Timer

	saveDelay   time.Duration
	guardWindow time.Duration

	// send pushes the debounced content upstream as an UPDATE_MEMO command.
	send func(projectID, content string)
	// apply lands content in the mirror and view.
	apply func(projectID, content string)
}

// NewMemoEditor builds an editor that sends saves via send and lands content
// via apply.
func NewMemoEditor(send, apply func(projectID, content string)) *MemoEditor {
	return &MemoEditor{
		saveDelay:   defaultSaveDelay,
		guardWindow: defaultGuardWindow,
		send:        send,
		apply:       apply,
	}
}

// SetDelays overrides the debounce and guard durations, for tests.
func (e *MemoEditor) SetDelays(save, guard time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saveDelay = save
	e.guardWindow = guard
}

// Open switches the editor to a project with the given initial content. Any
// pending timers from the previous memo are cancelled.
func (e *MemoEditor) Open(projectID, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimersLocked()
	e.projectID = projectID
	e.content = content
	e.typing = false
	e.pendingRemote = nil
}

// Close abandons the current memo without saving.
func (e *MemoEditor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimersLocked()
	e.projectID = ""
	e.content = ""
	e.typing = false
	e.pendingRemote = nil
}

// Type records a local edit. The save is debounced so only the final content
// of a typing burst goes upstream, and the typing guard restarts so remote
// updates stay deferred while keystrokes continue.
func (e *MemoEditor) Type(content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.projectID == "" {
		return
	}
	e.content = content
	e.typing = true

	projectID := e.projectID
	if e.saveTimer != nil {
		e.saveTimer.Stop()
	}
	e.saveTimer = time.AfterFunc(e.saveDelay, func() {
		e.mu.Lock()
		content := e.content
		current := e.projectID == projectID
		e.mu.Unlock()
		if current {
			e.send(projectID, content)
		}
	})

	if e.guardTimer != nil {
		e.guardTimer.Stop()
	}
	e.guardTimer = time.AfterFunc(e.guardWindow, e.guardExpired)
}

// HandleRemote receives an incoming MEMO_UPDATE. Updates for other projects
// land immediately; updates for the open memo are deferred while the typing
// guard is active, keeping only the most recent one.
func (e *MemoEditor) HandleRemote(projectID, content string) {
	e.mu.Lock()
	if projectID != e.projectID {
		apply := e.apply
		e.mu.Unlock()
		apply(projectID, content)
		return
	}
	if e.typing {
		e.pendingRemote = &content
		e.mu.Unlock()
		return
	}
	e.content = content
	apply := e.apply
	e.mu.Unlock()
	apply(projectID, content)
}

// Content returns the editor's current text.
func (e *MemoEditor) Content() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.content
}

// Typing reports whether the guard window is active.
func (e *MemoEditor) Typing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.typing
}

func (e *MemoEditor) guardExpired() {
	e.mu.Lock()
	e.typing = false
	pending := e.pendingRemote
	e.pendingRemote = nil
	projectID := e.projectID
	apply := e.apply
	if pending != nil {
		e.content = *pending
	}
	e.mu.Unlock()

	if pending != nil {
		apply(projectID, *pending)
	}
}

func (e *MemoEditor) stopTimersLocked() {
	if e.saveTimer != nil {
		e.saveTimer.Stop()
		e.saveTimer = nil
	}
	if e.guardTimer != nil {
		e.guardTimer.Stop()
		e.guardTimer = nil
	}
}
