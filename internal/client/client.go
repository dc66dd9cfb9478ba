package client

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/teamboard/teamboard/internal/model"
	"github.com/teamboard/teamboard/internal/protocol"
)

// defaultReconnectDelay is the fixed pause between reconnection attempts.
// No backoff: the server is expected to come back quickly and a few spare
// dials per outage are cheap.
const defaultReconnectDelay = 3 * time.Second

const sendTimeout = 5 * time.Second

// Client is a reconnecting sync client. It dials the server, authenticates,
// applies the snapshot and subsequent events through its Reconciler, and
// redials on a fixed interval whenever the connection drops. After every
// successful re-authentication it requests a fresh snapshot so the mirror
// converges regardless of what was missed while offline.
type Client struct {
	url      string
	password string
	delay    time.Duration

	reconciler *Reconciler
	logger     *log.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	// OnAuthResult fires with the outcome of each auth attempt.
	OnAuthResult func(success bool)
	// OnConnectionChange fires when the transport goes up or down.
	OnConnectionChange func(connected bool)
}

// NewClient builds a client for the given WebSocket URL.
func NewClient(url, password string, reconciler *Reconciler, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		url:        url,
		password:   password,
		delay:      defaultReconnectDelay,
		reconciler: reconciler,
		logger:     logger,
	}
}

// SetReconnectDelay overrides the fixed reconnect interval, for tests.
func (c *Client) SetReconnectDelay(d time.Duration) {
	c.delay = d
}

// Reconciler returns the client's mirror.
func (c *Client) Reconciler() *Reconciler {
	return c.reconciler
}

// Connected reports whether the transport is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run dials and serves the connection, redialing on the fixed interval until
// the context is cancelled. Blocking.
func (c *Client) Run(ctx context.Context) error {
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !first {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		first = false

		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Printf("Connection lost: %v (retrying in %s)", err, c.delay)
		}
	}
}

// runOnce performs one dial, auth, read-until-error cycle.
func (c *Client) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}

	c.setConn(conn)
	defer func() {
		c.setConn(nil)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	if err := c.Send(ctx, &protocol.Message{
		Type:     protocol.TypeAuth,
		Password: c.password,
	}); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Printf("Dropping malformed frame: %v", err)
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeAuthResult:
		success := msg.Success != nil && *msg.Success
		if c.OnAuthResult != nil {
			c.OnAuthResult(success)
		}
		if success {
			if err := c.RequestFullState(ctx); err != nil {
				c.logger.Printf("Failed to request full state: %v", err)
			}
		} else {
			c.logger.Println("Authentication rejected")
		}
	case protocol.TypeError:
		c.logger.Printf("Server error: %s", msg.Message)
	default:
		c.reconciler.Apply(msg)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = conn != nil
	c.mu.Unlock()
	if c.OnConnectionChange != nil {
		c.OnConnectionChange(conn != nil)
	}
}

// Send writes one command frame to the server.
func (c *Client) Send(ctx context.Context, msg *protocol.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// RequestFullState asks the server for a fresh snapshot.
func (c *Client) RequestFullState(ctx context.Context) error {
	return c.Send(ctx, &protocol.Message{Type: protocol.TypeRequestFullState})
}

// AddProject creates a project with the given name.
func (c *Client) AddProject(ctx context.Context, name string) error {
	return c.Send(ctx, &protocol.Message{
		Type: protocol.TypeAddProject,
		Name: name,
	})
}

// UpdateProject renames a project.
func (c *Client) UpdateProject(ctx context.Context, projectID, name string) error {
	return c.Send(ctx, &protocol.Message{
		Type:    protocol.TypeUpdateProject,
		Project: &model.Project{ID: projectID, Name: name},
	})
}

// DeleteProject removes a project and everything under it.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.Send(ctx, &protocol.Message{
		Type:      protocol.TypeDeleteProject,
		ProjectID: projectID,
	})
}

// AddTodo creates a todo under a project. The server assigns the id and
// applies defaults.
func (c *Client) AddTodo(ctx context.Context, projectID, text, assignee string, priority model.Priority, due *model.Date) error {
	return c.Send(ctx, &protocol.Message{
		Type:      protocol.TypeAddTodo,
		ProjectID: projectID,
		Text:      text,
		Assignee:  assignee,
		Priority:  priority,
		DueDate:   due,
	})
}

// UpdateTodo replaces a todo's content wholesale.
func (c *Client) UpdateTodo(ctx context.Context, projectID string, todo model.Todo) error {
	return c.Send(ctx, &protocol.Message{
		Type:      protocol.TypeUpdateTodo,
		ProjectID: projectID,
		Todo:      &todo,
	})
}

// DeleteTodo removes a todo.
func (c *Client) DeleteTodo(ctx context.Context, projectID, todoID string) error {
	return c.Send(ctx, &protocol.Message{
		Type:      protocol.TypeDeleteTodo,
		ProjectID: projectID,
		TodoID:    todoID,
	})
}

// AddAssignee adds a name to a project's roster.
func (c *Client) AddAssignee(ctx context.Context, projectID, name string) error {
	return c.Send(ctx, &protocol.Message{
		Type:         protocol.TypeAddAssignee,
		ProjectID:    projectID,
		AssigneeName: name,
	})
}

// DeleteAssignee removes a name from a project's roster.
func (c *Client) DeleteAssignee(ctx context.Context, projectID, name string) error {
	return c.Send(ctx, &protocol.Message{
		Type:         protocol.TypeDeleteAssignee,
		ProjectID:    projectID,
		AssigneeName: name,
	})
}

// GetMemo asks for a project's memo content, delivered as a targeted
// MEMO_UPDATE.
func (c *Client) GetMemo(ctx context.Context, projectID string) error {
	return c.Send(ctx, &protocol.Message{
		Type:      protocol.TypeGetMemo,
		ProjectID: projectID,
	})
}

// UpdateMemo saves a project's memo content.
func (c *Client) UpdateMemo(ctx context.Context, projectID, content string) error {
	return c.Send(ctx, &protocol.Message{
		Type:      protocol.TypeUpdateMemo,
		ProjectID: projectID,
		Content:   &content,
	})
}
