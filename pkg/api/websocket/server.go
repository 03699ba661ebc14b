// Package websocket streams live indexer events to WebSocket clients.
package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/constants"
	"github.com/0xmhha/tron-indexer-go/pkg/events"
)

// DefaultMaxClients is the maximum number of concurrent WebSocket clients
const DefaultMaxClients = 10000

// Server upgrades HTTP connections and attaches each client to the event bus
type Server struct {
	bus      *events.EventBus
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu         sync.Mutex
	clients    map[*Client]struct{}
	maxClients int
	stopped    bool

	nextID atomic.Uint64
}

// NewServer creates a WebSocket server backed by bus
func NewServer(bus *events.EventBus, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  constants.DefaultWSReadBufferSize,
			WriteBufferSize: constants.DefaultWSWriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:     logger.With(zap.String("component", "websocket")),
		clients:    make(map[*Client]struct{}),
		maxClients: DefaultMaxClients,
	}
}

// ServeHTTP upgrades the connection and starts the client pumps
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.stopped || len(s.clients) >= s.maxClients {
		s.mu.Unlock()
		s.logger.Warn("Rejecting WebSocket connection", zap.Int("maxClients", s.maxClients))
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	id := events.SubscriptionID(fmt.Sprintf("ws-%d", s.nextID.Add(1)))
	client := newClient(s, conn, id)

	s.mu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Info("Client connected",
		zap.String("id", string(id)),
		zap.Int("totalClients", total))

	go client.writePump()
	go client.readPump()
}

func (s *Server) remove(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Info("Client disconnected",
		zap.String("id", string(c.id)),
		zap.Int("totalClients", total))
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Stop closes every client connection and rejects new ones
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopped = true
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	s.logger.Info("WebSocket server stopped")
}
