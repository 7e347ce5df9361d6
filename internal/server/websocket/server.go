// Package websocket implements the WebSocket transport for fanning out
// change notifications to a connected host.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sessionlens/sessionlens/internal/hub"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 15 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 90 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	// Send buffer size per client.
	sendBufferSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The engine only ever binds to localhost; origin checks don't add
		// anything a same-machine UI host needs.
		return true
	},
}

// CommandHandler is a function that handles incoming commands.
type CommandHandler func(clientID string, message []byte)

// Server is the WebSocket transport for notify.Notification fan-out.
type Server struct {
	addr           string
	server         *http.Server
	commandHandler CommandHandler
	hub            *hub.Hub

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewServer creates a new WebSocket server.
func NewServer(host string, port int, commandHandler CommandHandler, h *hub.Hub) *Server {
	addr := fmt.Sprintf("%s:%d", host, port)
	s := &Server{
		addr:           addr,
		commandHandler: commandHandler,
		hub:            h,
		clients:        make(map[string]*Client),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
		// Do NOT set ReadTimeout/WriteTimeout here: those apply to the
		// underlying HTTP connection and would cut off long-lived WebSocket
		// connections. gorilla/websocket enforces its own deadlines via
		// SetReadDeadline/SetWriteDeadline in the read/write pumps.
	}

	return s
}

// Start starts the WebSocket server.
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("WebSocket server starting")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("WebSocket server error")
		}
	}()

	return nil
}

// Stop gracefully stops the WebSocket server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("WebSocket server stopping")

	s.mu.Lock()
	for _, client := range s.clients {
		client.Close()
	}
	s.clients = make(map[string]*Client)
	s.mu.Unlock()

	return s.server.Shutdown(ctx)
}

// handleWebSocket handles WebSocket upgrade requests.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(conn, s.commandHandler, func(id string) {
		if s.hub != nil {
			s.hub.Unsubscribe(id)
		}
		s.removeClient(id)
	})

	s.mu.Lock()
	s.clients[client.ID()] = client
	s.mu.Unlock()

	if s.hub != nil {
		subscriber := NewClientSubscriber(client)
		s.hub.Subscribe(subscriber)
	}

	log.Info().
		Str("client_id", client.ID()).
		Str("remote_addr", conn.RemoteAddr().String()).
		Msg("client connected")

	client.Start()
}

// removeClient removes a client from the server.
func (s *Server) removeClient(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
	log.Info().Str("client_id", id).Msg("client disconnected")
}

// Broadcast sends a message to all connected clients.
func (s *Server) Broadcast(message []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		client.Send(message)
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// GetClient returns a client by ID.
func (s *Server) GetClient(id string) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[id]
}
