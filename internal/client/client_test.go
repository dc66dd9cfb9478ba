package client

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teamboard/teamboard/internal/server"
	"github.com/teamboard/teamboard/internal/state"
	"github.com/teamboard/teamboard/internal/store"
)

func startTestServer(t *testing.T) *server.Server {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cache := state.New()
	if err := cache.LoadAll(context.Background(), st); err != nil {
		t.Fatalf("Failed to load state: %v", err)
	}

	srv := server.NewServer(&server.Config{
		Port:     0,
		Password: "secret",
		Logger:   log.New(os.Stderr, "[test-server] ", log.LstdFlags),
	}, st, cache)

	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	time.Sleep(100 * time.Millisecond)
	return srv
}

// startTestClient runs a client and blocks until it has authenticated.
func startTestClient(t *testing.T, ctx context.Context, srv *server.Server, password string) *Client {
	t.Helper()
	logger := log.New(os.Stderr, "[test-client] ", log.LstdFlags)
	c := NewClient("ws://"+srv.Addr()+"/ws", password, NewReconciler(logger), logger)
	c.SetReconnectDelay(200 * time.Millisecond)

	authed := make(chan struct{}, 1)
	c.OnAuthResult = func(ok bool) {
		if ok {
			select {
			case authed <- struct{}{}:
			default:
			}
		}
	}
	go func() { _ = c.Run(ctx) }()

	select {
	case <-authed:
	case <-time.After(5 * time.Second):
		t.Fatal("Client never authenticated")
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestClientConverges(t *testing.T) {
	srv := startTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := startTestClient(t, ctx, srv, "secret")
	waitFor(t, "connection", c.Connected)

	if err := c.AddProject(ctx, "Website"); err != nil {
		t.Fatalf("AddProject failed: %v", err)
	}

	waitFor(t, "project in mirror", func() bool {
		projects := c.Reconciler().Projects()
		return len(projects) == 1 && projects[0].Name == "Website"
	})
}

func TestTwoClientsConverge(t *testing.T) {
	srv := startTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := startTestClient(t, ctx, srv, "secret")
	bob := startTestClient(t, ctx, srv, "secret")

	if err := alice.AddProject(ctx, "Website"); err != nil {
		t.Fatalf("AddProject failed: %v", err)
	}

	var projectID string
	waitFor(t, "project on alice", func() bool {
		projects := alice.Reconciler().Projects()
		if len(projects) == 1 {
			projectID = projects[0].ID
			return true
		}
		return false
	})
	waitFor(t, "project on bob", func() bool {
		return len(bob.Reconciler().Projects()) == 1
	})

	if err := bob.AddTodo(ctx, projectID, "Ship it", "alice", "", nil); err != nil {
		t.Fatalf("AddTodo failed: %v", err)
	}

	for name, c := range map[string]*Client{"alice": alice, "bob": bob} {
		c := c
		waitFor(t, "todo on "+name, func() bool {
			todos := c.Reconciler().Todos(projectID)
			return len(todos) == 1 && todos[0].Text == "Ship it"
		})
	}
}

func TestMemoReplyDistinguishesEmptyContent(t *testing.T) {
	srv := startTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := startTestClient(t, ctx, srv, "secret")
	if err := c.AddProject(ctx, "Website"); err != nil {
		t.Fatalf("AddProject failed: %v", err)
	}

	var projectID string
	waitFor(t, "project in mirror", func() bool {
		projects := c.Reconciler().Projects()
		if len(projects) == 1 {
			projectID = projects[0].ID
			return true
		}
		return false
	})

	r := c.Reconciler()
	replies := make(chan string, 1)
	r.SetMemoSink(func(id, content string) {
		r.ApplyMemo(id, content)
		if id == projectID {
			select {
			case replies <- content:
			default:
			}
		}
	})

	// A project with no memo yet still answers promptly, with empty content.
	if err := c.GetMemo(ctx, projectID); err != nil {
		t.Fatalf("GetMemo failed: %v", err)
	}
	select {
	case content := <-replies:
		if content != "" {
			t.Errorf("Memo reply = %q, want empty", content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Empty memo reply never arrived")
	}

	if err := c.UpdateMemo(ctx, projectID, "release notes"); err != nil {
		t.Fatalf("UpdateMemo failed: %v", err)
	}
	select {
	case content := <-replies:
		if content != "release notes" {
			t.Errorf("Memo reply = %q, want release notes", content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Memo update never arrived")
	}
}

func TestAuthRejectionSurfaces(t *testing.T) {
	srv := startTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.New(os.Stderr, "[test-client] ", log.LstdFlags)
	c := NewClient("ws://"+srv.Addr()+"/ws", "wrong", NewReconciler(logger), logger)
	c.SetReconnectDelay(200 * time.Millisecond)

	rejected := make(chan struct{}, 1)
	c.OnAuthResult = func(ok bool) {
		if !ok {
			select {
			case rejected <- struct{}{}:
			default:
			}
		}
	}
	go func() { _ = c.Run(ctx) }()

	select {
	case <-rejected:
	case <-time.After(5 * time.Second):
		t.Fatal("Auth rejection never surfaced")
	}
	if projects := c.Reconciler().Projects(); len(projects) != 0 {
		t.Errorf("Rejected client received state: %+v", projects)
	}
}
