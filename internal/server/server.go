package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/teamboard/teamboard/internal/protocol"
	"github.com/teamboard/teamboard/internal/state"
	"github.com/teamboard/teamboard/internal/store"
)

// Config holds server configuration.
type Config struct {
	// Port to listen on. 0 picks a random free port.
	Port int

	// Password is the shared credential for the auth gate.
	Password string

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// Server owns the WebSocket transport and the read-only HTTP endpoints, and
// wires the registry, processor, and dispatcher together.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	registry   *Registry
	dispatcher *Dispatcher
	processor  *Processor
	cache      *state.Store
	password   string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer assembles the sync core around a persistence adapter and a
// loaded state store.
func NewServer(config *Config, st store.Store, cache *state.Store) *Server {
	if config == nil {
		config = &Config{}
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	registry := NewRegistry()
	dispatcher := NewDispatcher(registry, config.Logger)
	processor := NewProcessor(st, cache, dispatcher, registry, config.Password, config.Logger)

	return &Server{
		addr:       fmt.Sprintf(":%d", config.Port),
		registry:   registry,
		dispatcher: dispatcher,
		processor:  processor,
		cache:      cache,
		password:   config.Password,
		ctx:        ctx,
		cancel:     cancel,
		logger:     config.Logger,
	}
}

// Start begins listening and serving. Non-blocking.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/projects", s.handleProjects)
	mux.HandleFunc("/projects/", s.handleProjectTodos)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.dispatcher.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Sync server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping sync server")

	s.cancel()
	s.dispatcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	s.logger.Println("Sync server stopped")
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of live connections.
func (s *Server) ClientCount() int {
	return s.registry.Count()
}

// Resync reloads the state cache from the persistence adapter, serialized
// with command execution.
func (s *Server) Resync(ctx context.Context) error {
	return s.processor.Resync(ctx)
}

// wsConn adapts a websocket connection to the Connection interface.
// Writes are serialized; coder/websocket forbids concurrent writers.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, msg *protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// handleWebSocket upgrades the HTTP connection and runs its read loop. The
// connection starts unauthenticated and receives nothing until it passes
// the auth gate.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &wsConn{conn: conn}
	s.registry.Add(client)
	s.logger.Printf("Client connected (total: %d)", s.registry.Count())

	go s.readLoop(client)
}

// readLoop processes inbound frames until the transport drops. Each frame
// is handled to completion before the next is read.
func (s *Server) readLoop(client *wsConn) {
	defer func() {
		s.registry.Remove(client)
		_ = client.conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", s.registry.Count())
	}()

	for {
		_, data, err := client.conn.Read(s.ctx)
		if err != nil {
			return
		}
		s.processor.Handle(s.ctx, client, data)
	}
}

// handleHealth reports liveness and the connection count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.registry.Count(),
	})
}

// authorizedHTTP checks the shared password on the read-only endpoints,
// carried as a bearer token. The WebSocket side has its own auth gate.
func (s *Server) authorizedHTTP(r *http.Request) bool {
	if s.password == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.password)) == 1
}

// handleProjects serves the cached project list, read-only.
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedHTTP(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.cache.Projects())
}

// handleProjectTodos serves one project's cached todos: /projects/{id}/todos.
func (s *Server) handleProjectTodos(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedHTTP(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/projects/")
	projectID, ok := strings.CutSuffix(rest, "/todos")
	if !ok || projectID == "" || strings.Contains(projectID, "/") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.cache.Todos(projectID))
}
