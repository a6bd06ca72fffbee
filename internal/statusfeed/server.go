// Package statusfeed serves recent decision records to operator dashboards
// over a WebSocket fanout. A ring buffer of recent frames is replayed to
// every new client so a reconnect does not start blind.
package statusfeed

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courtsidehq/courtside/internal/events"
	"github.com/courtsidehq/courtside/internal/telemetry"
)

const (
	clientSendBuf = 256
	writeDeadline = 5 * time.Second
	pongWait      = 30 * time.Second
	pingInterval  = 20 * time.Second
	replayDepth   = 200
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Server subscribes to the decision bus and fans frames out to connected
// clients.
type Server struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	recent  [][]byte // ring buffer, oldest first
}

func NewServer(bus *events.Bus) *Server {
	s := &Server{
		clients: make(map[*client]struct{}),
	}
	for _, t := range []events.EventType{
		events.EventSignal,
		events.EventRunDetected,
		events.EventOrderIntent,
		events.EventFill,
		events.EventBreakerTrip,
		events.EventSettlement,
	} {
		bus.Subscribe(t, s.forward)
	}
	return s
}

// forward runs on the engine's goroutine: serialize, remember, enqueue to
// each client non-blocking. A slow dashboard loses frames, never stalls
// trading.
func (s *Server) forward(evt events.Event) error {
	data, err := marshalFrame(evt)
	if err != nil {
		telemetry.Warnf("statusfeed: marshal error: %v", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append(s.recent, data)
	if len(s.recent) > replayDepth {
		s.recent = s.recent[len(s.recent)-replayDepth:]
	}

	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			telemetry.Warnf("statusfeed: dropping frame for slow client")
		}
	}
	return nil
}

// HandleWS upgrades a dashboard connection and replays the recent buffer.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.Warnf("statusfeed: upgrade failed: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, clientSendBuf),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	for _, frame := range s.recent {
		select {
		case c.send <- frame:
		default:
		}
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	telemetry.Plainf("statusfeed: client connected %s", r.RemoteAddr)

	go s.writePump(c)
	go s.readPump(c)
}

// writePump owns the client lifecycle: on exit it removes the client from
// the map and closes the connection.
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.removeClient(c)
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the connection alive by consuming pongs and close frames.
func (s *Server) readPump(c *client) {
	defer close(c.done)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	telemetry.Plainf("statusfeed: client disconnected")
}

// ListenAndServe starts the status feed HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)

	telemetry.Plainf("statusfeed: listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
