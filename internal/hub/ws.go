package hub

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lanefield/arena/internal/config"
	"github.com/lanefield/arena/internal/protocol"
)

// Server is the WebSocket front of the dispatcher. One goroutine pair
// per connection: the read pump feeds the dispatcher serially, the write
// pump drains the outbound queue. A connection that cannot drain its
// queue is dropped rather than allowed to stall the rest.
type Server struct {
	logger     *zap.Logger
	cfg        config.ServerConfig
	dispatcher *Dispatcher
	verifier   *Verifier
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// NewServer wires the HTTP routes and the upgrade handler.
//
// Precondition: logger, dispatcher, and verifier must be non-nil.
func NewServer(logger *zap.Logger, cfg config.ServerConfig, dispatcher *Dispatcher, verifier *Verifier) *Server {
	s := &Server{
		logger:     logger,
		cfg:        cfg,
		dispatcher: dispatcher,
		verifier:   verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The browser client connects cross-origin in development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleUpgrade).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}
	return s
}

// Start listens and serves until Stop. It blocks, satisfying the
// lifecycle Service contract.
func (s *Server) Start() error {
	s.logger.Info("websocket server listening", zap.String("addr", s.cfg.Addr()))
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes the listener and every live connection.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}

	s.mu.Lock()
	open := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()
	for _, c := range open {
		c.close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	identity, err := s.verifier.Identify(r)
	if err != nil {
		s.logger.Warn("rejecting connection", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := &conn{
		id:           identity.ID,
		socket:       socket,
		out:          make(chan []byte, s.cfg.SendBuffer),
		writeTimeout: s.cfg.WriteTimeout,
		logger:       s.logger.With(zap.String("peer", identity.ID)),
	}

	if err := s.dispatcher.Connect(c, identity); err != nil {
		// Duplicate id: answer with the error and drop the socket.
		if data, encErr := protocol.Encode(protocol.EventError, protocol.AsEvent(err)); encErr == nil {
			_ = socket.WriteMessage(websocket.TextMessage, data)
		}
		_ = socket.Close()
		return
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	go c.writePump()
	go func() {
		c.readPump(s.dispatcher)
		s.dispatcher.Disconnect(c.id)
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()
}

// conn is one live WebSocket connection. It implements Peer.
type conn struct {
	id           string
	socket       *websocket.Conn
	out          chan []byte
	writeTimeout time.Duration
	logger       *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (c *conn) ID() string { return c.id }

// Send encodes and queues one event. It never blocks: a full queue
// means the client has stopped draining, and the connection is closed
// instead.
func (c *conn) Send(event protocol.Event, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.Errorf(protocol.KindInvalidRoomState, "connection closed")
	}
	select {
	case c.out <- data:
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		c.logger.Warn("send queue full, dropping connection")
		c.close()
		return protocol.Errorf(protocol.KindInvalidRoomState, "send queue full")
	}
}

// readPump feeds inbound frames to the dispatcher one at a time. Serial
// dispatch per connection is what keeps each peer's intents ordered.
func (c *conn) readPump(d *Dispatcher) {
	defer c.close()
	for {
		kind, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		d.Dispatch(c, data)
	}
}

func (c *conn) writePump() {
	for data := range c.out {
		if c.writeTimeout > 0 {
			_ = c.socket.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
			c.logger.Debug("write failed", zap.Error(err))
			c.close()
			return
		}
	}
	_ = c.socket.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.socket.Close()
}

// close tears the connection down exactly once; the read pump unblocks
// on the closed socket and the write pump drains out.
func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.out)
	c.mu.Unlock()
	_ = c.socket.Close()
}
