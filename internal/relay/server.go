// Package relay implements the local signaling hub: a WebSocket server that
// forwards every text message from one client to all other connected clients.
// The camera sender and the viewer both connect to it and exchange offer,
// answer and ice records through it.
package relay

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/1ureka/piviewer/internal/util"
)

const (
	DefaultAddr = "0.0.0.0:9001"

	defaultMaxMessageBytes = 1 << 20
	defaultQueueSize       = 64 // per-client outbound frames
	writeTimeout           = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Options configures a Server. Zero values select the defaults; a zero
// MessagesPerSecond disables rate limiting.
type Options struct {
	Addr              string
	PIN               string
	MaxMessageBytes   int64
	MessagesPerSecond float64
	QueueSize         int
}

// Server is the relay hub.
type Server struct {
	opts     Options
	listener net.Listener
	http     *http.Server

	mu      sync.Mutex
	clients map[string]*client
	closed  bool

	wg sync.WaitGroup
}

// client is one connected peer with its own writer goroutine.
type client struct {
	id      string
	conn    *websocket.Conn
	outbox  chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	once    sync.Once
}

// NewServer creates a relay hub. Call Start to begin listening.
func NewServer(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Server{
		opts:    opts,
		clients: make(map[string]*client),
	}
}

// Handler returns the hub's HTTP handler. Clients may connect on "/" or "/ws".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start begins listening on the configured address and returns the bound
// address, which differs from the configured one when port 0 was requested.
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to start relay server: %w", err)
	}
	s.listener = listener
	s.http = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("relay server stopped: %v", err)
		}
	}()

	addr := listener.Addr().String()
	util.LogInfo("relay server listening on %s", addr)
	return addr, nil
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops accepting connections and disconnects every client. It is safe
// to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	var err error
	if s.http != nil {
		err = s.http.Close()
	}
	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"),
			time.Now().Add(time.Second))
		c.stop()
	}
	s.wg.Wait()
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.opts.PIN != "" && r.URL.Query().Get("pin") != s.opts.PIN {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(s.opts.MaxMessageBytes)

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		outbox: make(chan []byte, s.opts.QueueSize),
		done:   make(chan struct{}),
	}
	if s.opts.MessagesPerSecond > 0 {
		burst := int(s.opts.MessagesPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), burst)
	}

	if !s.register(c) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"))
		conn.Close()
		return
	}

	go func() {
		defer s.wg.Done()
		c.writeLoop()
	}()

	s.readLoop(c)
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c.id] = c
	s.wg.Add(1) // released by the client's writer
	util.LogInfo("[relay] client %s connected (%d total)", c.id[:8], len(s.clients))
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	n := len(s.clients)
	s.mu.Unlock()

	c.stop()
	util.LogInfo("[relay] client %s disconnected (%d left)", c.id[:8], n)
}

// readLoop reads frames from c until it disconnects and broadcasts every text
// frame. Binary frames are ignored.
func (s *Server) readLoop(c *client) {
	defer s.unregister(c)

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				util.LogDebug("[relay] client %s read: %v", c.id[:8], err)
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			util.LogWarning("[relay] client %s over rate limit, dropping message", c.id[:8])
			continue
		}

		util.LogDebug("[relay] %s -> %d bytes", c.id[:8], len(data))
		s.broadcast(c, data)
	}
}

// broadcast queues data for every client except the sender. A client whose
// queue is full misses the message.
func (s *Server) broadcast(from *client, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.clients {
		if id == from.id {
			continue
		}
		select {
		case c.outbox <- data:
		case <-c.done:
		default:
			util.LogWarning("[relay] client %s queue full, dropping message", id[:8])
		}
	}
}

// writeLoop is the client's single writer.
func (c *client) writeLoop() {
	for {
		select {
		case data := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				util.LogDebug("[relay] client %s write: %v", c.id[:8], err)
				c.stop()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) stop() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
