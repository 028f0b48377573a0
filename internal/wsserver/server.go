// Package wsserver provides the two browser-facing WebSocket surfaces: the
// packet-stream fan-out that broadcasts encoder packets to every viewer,
// and the camera-control endpoint that accepts live view-matrix updates.
package wsserver

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// connInfo pairs a client connection with a write mutex, since gorilla
// connections allow only one concurrent writer.
type connInfo struct {
	conn     *websocket.Conn
	writeMux sync.Mutex
}

// Server is the shared skeleton of both WebSocket endpoints: it accepts
// any number of clients, tracks them in a registry, and can broadcast a
// binary message to all of them. Inbound binary messages go to the
// onMessage hook; servers that never expect client traffic leave it nil.
type Server struct {
	name     string
	port     uint16
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu    sync.Mutex
	conns map[uuid.UUID]*connInfo
	addr  string

	onMessage    func(data []byte)
	onConnect    func()
	onDisconnect func()
}

// NewServer returns an unstarted server named for logging.
func NewServer(name string, port uint16) *Server {
	s := &Server{
		name:  name,
		port:  port,
		conns: make(map[uuid.UUID]*connInfo),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleClient)
	s.httpSrv = &http.Server{Handler: mux}
	return s
}

// Start binds the listen port and begins accepting clients. A bind failure
// is returned to the caller, which treats it as fatal at startup.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("%s: bind port %d: %w", s.name, s.port, err)
	}
	s.addr = ln.Addr().String()
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("%s(%d): serve: %v", s.name, s.port, err)
		}
	}()
	log.Printf("%s(%d): websocket server listening", s.name, s.port)
	return nil
}

// Addr reports the bound listen address once Start has succeeded.
func (s *Server) Addr() string { return s.addr }

// Stop closes every client with a going-away frame and stops accepting.
func (s *Server) Stop() {
	s.mu.Lock()
	conns := make([]*connInfo, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[uuid.UUID]*connInfo)
	s.mu.Unlock()

	for _, c := range conns {
		c.writeMux.Lock()
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		c.writeMux.Unlock()
		c.conn.Close()
	}
	s.httpSrv.Close()
	log.Printf("%s(%d): websocket server closed", s.name, s.port)
}

// ClientCount reports the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// SendToAll broadcasts data as one binary message to every connected
// client. A client whose write fails is dropped; its read loop cleans up.
func (s *Server) SendToAll(data []byte) {
	s.mu.Lock()
	conns := make([]*connInfo, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.writeMux.Lock()
		err := c.conn.WriteMessage(websocket.BinaryMessage, data)
		c.writeMux.Unlock()
		if err != nil {
			c.conn.Close()
		}
	}
}

// handleClient upgrades one HTTP request and pumps its messages until the
// client goes away.
func (s *Server) handleClient(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("%s(%d): upgrade: %v", s.name, s.port, err)
		return
	}

	id := uuid.New()
	c := &connInfo{conn: conn}
	s.mu.Lock()
	s.conns[id] = c
	s.mu.Unlock()
	log.Printf("%s(%d): accepted client connection", s.name, s.port)
	if s.onConnect != nil {
		s.onConnect()
	}

	defer func() {
		s.mu.Lock()
		_, present := s.conns[id]
		delete(s.conns, id)
		s.mu.Unlock()
		conn.Close()
		if present {
			log.Printf("%s(%d): client connection closed", s.name, s.port)
			if s.onDisconnect != nil {
				s.onDisconnect()
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.BinaryMessage && s.onMessage != nil {
			s.onMessage(data)
		}
	}
}
