// Package gateway serves the daemon's JSON-over-WebSocket API and pushes
// health updates to connected clients.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nc9/taskmux/internal/orchestrator"
	"github.com/nc9/taskmux/internal/telemetry"
)

// DefaultPort is where the daemon listens unless told otherwise.
const DefaultPort = 8765

// DefaultLogLines is how many lines the logs command returns by default.
const DefaultLogLines = 100

// Backend is the orchestrator surface the API exposes.
type Backend interface {
	Status(ctx context.Context) orchestrator.StatusReport
	Restart(ctx context.Context, name string) error
	Kill(ctx context.Context, name string) error
	Logs(name string, lines int) ([]string, error)
}

// Request is one API call.
type Request struct {
	Command string `json:"command"`
	Params  Params `json:"params"`
}

// Params carries command arguments.
type Params struct {
	Task  string `json:"task"`
	Lines *int   `json:"lines,omitempty"`
}

// Event is pushed to every client, e.g. after a health cycle.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Options configure a Server.
type Options struct {
	Logf    func(format string, args ...interface{})
	Metrics http.Handler // served at /metrics when set
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (c *client) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// Server is the WebSocket API server.
type Server struct {
	backend Backend
	logf    func(format string, args ...interface{})
	metrics http.Handler

	mu      sync.Mutex
	clients map[string]*client
}

// New creates a Server backed by b.
func New(b Backend, opts Options) *Server {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Server{
		backend: b,
		logf:    logf,
		metrics: opts.Metrics,
		clients: make(map[string]*client),
	}
}

// Handler returns the HTTP routes: the WebSocket endpoint at / and /ws, and
// /metrics when a metrics handler was supplied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	mux.HandleFunc("/ws", s.handleWebSocket)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("websocket upgrade failed: %v", err)
		return
	}
	c := &client{id: uuid.New().String(), conn: conn}
	s.add(c)
	s.logf("New WebSocket client connected: %s (%s)", r.RemoteAddr, c.id)
	defer func() {
		s.remove(c.id)
		conn.Close()
		s.logf("WebSocket client disconnected: %s (%s)", r.RemoteAddr, c.id)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := c.send(s.Dispatch(r.Context(), raw)); err != nil {
			return
		}
	}
}

func (s *Server) add(c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast sends an event to every client. Clients that cannot be written
// to are disconnected. It returns how many clients received the event.
func (s *Server) Broadcast(ev Event) int {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	sent := 0
	for _, c := range targets {
		if err := c.send(ev); err != nil {
			s.remove(c.id)
			c.conn.Close()
			continue
		}
		sent++
	}
	return sent
}

// Dispatch decodes one raw request and returns the response to send.
func (s *Server) Dispatch(ctx context.Context, raw []byte) interface{} {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		telemetry.RecordGatewayRequest(ctx, "invalid", false)
		return errorResponse("Invalid JSON")
	}
	resp, ok := s.handle(ctx, req)
	telemetry.RecordGatewayRequest(ctx, req.Command, ok)
	return resp
}

func (s *Server) handle(ctx context.Context, req Request) (interface{}, bool) {
	switch req.Command {
	case "status":
		return s.backend.Status(ctx), true

	case "restart":
		if req.Params.Task == "" {
			return errorResponse("Task name required"), false
		}
		if err := s.backend.Restart(ctx, req.Params.Task); err != nil {
			return errorResponse(err.Error()), false
		}
		return successResponse(fmt.Sprintf("Restarted %s", req.Params.Task)), true

	case "kill":
		if req.Params.Task == "" {
			return errorResponse("Task name required"), false
		}
		if err := s.backend.Kill(ctx, req.Params.Task); err != nil {
			return errorResponse(err.Error()), false
		}
		return successResponse(fmt.Sprintf("Killed %s", req.Params.Task)), true

	case "logs":
		lines := DefaultLogLines
		if req.Params.Lines != nil && *req.Params.Lines > 0 {
			lines = *req.Params.Lines
		}
		if req.Params.Task == "" {
			return errorResponse("Could not retrieve logs"), false
		}
		out, err := s.backend.Logs(req.Params.Task, lines)
		if err != nil {
			return errorResponse("Could not retrieve logs"), false
		}
		if out == nil {
			out = []string{}
		}
		return map[string]interface{}{"success": true, "logs": out}, true
	}
	return errorResponse(fmt.Sprintf("Unknown command: %s", req.Command)), false
}

func errorResponse(msg string) map[string]interface{} {
	return map[string]interface{}{"error": msg}
}

func successResponse(msg string) map[string]interface{} {
	return map[string]interface{}{"success": true, "message": msg}
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// closeClients disconnects everyone; hijacked WebSocket connections are not
// closed by http.Server.Shutdown.
func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.conn.Close()
		delete(s.clients, id)
	}
}
