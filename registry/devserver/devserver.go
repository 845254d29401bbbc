// Package devserver is a tiny "watch and re-emit" push channel: each
// simulated device opens one WebSocket connection and receives a fresh
// bytecode blob whenever the server's Broadcast is called (typically
// from a file-watch loop driving Emitter.EmitFrom on source changes).
// The emitter itself stays synchronous and connection-agnostic; this
// package is purely an outer delivery shell.
//
// Grounded on internal/network's WebSocketListen/Upgrader/Clients
// server shape (gorilla/websocket's Upgrader plus a registry of live
// client connections protected by a mutex), narrowed from a
// general-purpose bidirectional socket module down to one
// broadcast-only push server.
package devserver

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server pushes freshly emitted bytecode buffers to every connected
// device. One Server serves one registry; Broadcast is safe to call
// concurrently with client connects/disconnects.
type Server struct {
	upgrader websocket.Upgrader
	http     *http.Server

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// New builds a Server listening on addr (e.g. ":8089"); call Serve to
// start accepting connections and Broadcast to push a buffer to every
// connected device.
func New(addr string) *Server {
	s := &Server{
		clients: map[string]*client{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", s.handleWatch)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Serve blocks accepting connections until the listener is closed.
func (s *Server) Serve() error {
	return s.http.ListenAndServe()
}

// Close shuts the server down and drops every connected client.
func (s *Server) Close() error {
	s.mu.Lock()
	for _, c := range s.clients {
		close(c.send)
		c.conn.Close()
	}
	s.clients = map[string]*client{}
	s.mu.Unlock()
	return s.http.Close()
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("devserver: upgrade failed: %v", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, 4)}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	go s.writeLoop(c)
	go s.readLoop(c)
}

// readLoop only exists to notice a client disconnecting (gorilla's
// Conn requires a live reader to surface close frames); this server
// never expects incoming messages from a device.
func (s *Server) readLoop(c *client) {
	defer s.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case buf, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.send)
	}
	s.mu.Unlock()
	c.conn.Close()
}

// Broadcast pushes buf to every connected device, dropping it for any
// client whose send queue is currently full rather than blocking the
// whole server on one slow reader.
func (s *Server) Broadcast(buf []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.send <- buf:
		default:
			log.Printf("devserver: dropping push to client %s (send queue full)", c.id)
		}
	}
}

// ClientCount reports how many devices are currently connected.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
