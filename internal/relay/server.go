// ABOUTME: Voice relay server
// ABOUTME: Accepts WebSocket clients, assigns speaker ids and fans voice out to peers
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Sendspin/sendspin-voice/internal/discovery"
	"github.com/Sendspin/sendspin-voice/pkg/protocol"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	helloTimeout  = 10 * time.Second
	sendQueueSize = 128
)

// Config holds relay configuration
type Config struct {
	Port       int
	Name       string
	Path       string
	EnableMDNS bool
	UseTUI     bool
}

// Server relays voice between connected clients
type Server struct {
	config   Config
	serverID string
	log      logrus.FieldLogger

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	clients       map[uint32]*Client
	clientIDs     map[string]uint32
	clientsMu     sync.RWMutex
	nextSpeakerID uint32

	mdnsManager *discovery.Manager
	tui         *RelayTUI

	forwarded atomic.Int64
	dropped   atomic.Int64

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client is a connected voice client
type Client struct {
	ID        string
	Name      string
	SpeakerID uint32
	Conn      *websocket.Conn

	mu     sync.RWMutex
	update protocol.VoiceUpdate

	sendChan chan interface{}
	done     chan struct{}
}

// snapshot returns the last voice/update the client sent
func (c *Client) snapshot() protocol.VoiceUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.update
}

// New creates a relay
func New(config Config) *Server {
	if config.Path == "" {
		config.Path = discovery.DefaultPath
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		log:      logrus.WithField("component", "relay"),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// voice clients are native applications, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[uint32]*Client),
		clientIDs: make(map[string]uint32),
		stopChan:  make(chan struct{}),
	}
	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	return s
}

// Handler returns the relay's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Stop is called or the listener fails
func (s *Server) Start() error {
	s.log.WithFields(logrus.Fields{
		"name": s.config.Name,
		"id":   s.serverID,
	}).Info("Relay starting")

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        s.config.Path,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.WithError(err).Warn("Failed to start mDNS advertisement")
		}
	}

	var tuiQuit <-chan struct{}
	if s.config.UseTUI {
		s.tui = NewRelayTUI(s.config.Name, s.config.Port)
		tuiQuit = s.tui.QuitChan()
		go func() {
			if err := s.tui.Start(); err != nil {
				s.log.WithError(err).Warn("TUI exited with error")
			}
		}()
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	s.log.WithField("addr", addr).Info("WebSocket relay listening")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		s.log.Info("Relay shutting down")
	case <-tuiQuit:
		s.log.Info("TUI quit requested, shutting down")
	case err := <-errChan:
		s.log.WithError(err).Error("HTTP server error")
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("HTTP server shutdown error")
	}

	// hijacked connections are not closed by Shutdown
	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
	s.clientsMu.RUnlock()

	s.wg.Wait()
	if s.tui != nil {
		s.tui.Stop()
	}
	s.log.Info("Relay stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the relay
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	s.log.WithField("remote", r.RemoteAddr).Debug("New WebSocket connection")
	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		s.log.Info("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	hello, err := s.readHello(conn)
	if err != nil {
		s.log.WithError(err).Warn("Handshake failed")
		s.rejectHello(conn, err.Error())
		return
	}

	client, err := s.register(conn, hello)
	if err != nil {
		s.log.WithError(err).Warn("Rejecting client")
		s.rejectHello(conn, err.Error())
		return
	}
	log := s.log.WithFields(logrus.Fields{
		"client":  client.Name,
		"speaker": client.SpeakerID,
	})
	log.Info("Client joined")

	writerDone := make(chan struct{})
	defer func() {
		s.unregister(client)
		close(client.done)
		<-writerDone
		log.Info("Client left")
	}()

	s.enqueue(client, protocol.Message{Type: protocol.TypeServerHello, Payload: protocol.ServerHello{
		ServerID:  s.serverID,
		Name:      s.config.Name,
		Version:   protocol.ProtocolVersion,
		SpeakerID: client.SpeakerID,
	}})

	go func() {
		defer close(writerDone)
		s.clientWriter(client)
	}()

	// tell the newcomer where everyone already is
	for _, peer := range s.peers(client) {
		if update := peer.snapshot(); update.SpeakerID != 0 {
			s.enqueue(client, protocol.Message{Type: protocol.TypeVoiceUpdate, Payload: update})
		}
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("WebSocket read error")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.handleVoice(client, data)
		case websocket.TextMessage:
			if !s.handleControl(client, data) {
				return
			}
		}
	}
}

func (s *Server) readHello(conn *websocket.Conn) (protocol.ClientHello, error) {
	var hello protocol.ClientHello

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return hello, fmt.Errorf("error reading hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return hello, fmt.Errorf("error unmarshaling message: %w", err)
	}
	if msg.Type != protocol.TypeClientHello {
		return hello, fmt.Errorf("expected %s, got %s", protocol.TypeClientHello, msg.Type)
	}
	if err := protocol.DecodePayload(msg, &hello); err != nil {
		return hello, err
	}
	if hello.ClientID == "" {
		return hello, fmt.Errorf("client hello missing client_id")
	}
	if hello.Name == "" {
		return hello, fmt.Errorf("client hello missing name")
	}
	return hello, nil
}

// rejectHello writes directly since no writer goroutine exists yet
func (s *Server) rejectHello(conn *websocket.Conn, reason string) {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	conn.WriteJSON(protocol.Message{Type: protocol.TypeServerError, Payload: protocol.ServerError{Message: reason}})
}

// register assigns the next speaker id; ids start at 1 and are never reused
func (s *Server) register(conn *websocket.Conn, hello protocol.ClientHello) (*Client, error) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if _, exists := s.clientIDs[hello.ClientID]; exists {
		return nil, fmt.Errorf("client id %s already connected", hello.ClientID)
	}

	s.nextSpeakerID++
	client := &Client{
		ID:        hello.ClientID,
		Name:      hello.Name,
		SpeakerID: s.nextSpeakerID,
		Conn:      conn,
		sendChan:  make(chan interface{}, sendQueueSize),
		done:      make(chan struct{}),
	}
	s.clients[client.SpeakerID] = client
	s.clientIDs[client.ID] = client.SpeakerID
	s.updateTUILocked()
	return client, nil
}

// unregister removes the client and tells peers it stopped talking
func (s *Server) unregister(client *Client) {
	s.clientsMu.Lock()
	delete(s.clients, client.SpeakerID)
	delete(s.clientIDs, client.ID)
	s.updateTUILocked()
	s.clientsMu.Unlock()

	gone := client.snapshot()
	gone.SpeakerID = client.SpeakerID
	gone.IsTalking = false
	s.broadcast(client, protocol.Message{Type: protocol.TypeVoiceUpdate, Payload: gone}, gone.WorldOrCell)
}

// handleVoice validates a datagram, stamps the sender's id and fans it out
func (s *Server) handleVoice(client *Client, data []byte) {
	if _, err := protocol.ParseVoiceDatagram(data); err != nil {
		s.log.WithError(err).WithField("speaker", client.SpeakerID).Debug("Dropping invalid datagram")
		return
	}

	// peers share the read buffer, so stamp a copy
	out := append([]byte(nil), data...)
	if err := protocol.StampSpeakerID(out, client.SpeakerID); err != nil {
		return
	}
	s.forwarded.Add(int64(s.broadcast(client, out, client.snapshot().WorldOrCell)))
}

// handleControl reports false when the client said goodbye
func (s *Server) handleControl(client *Client, data []byte) bool {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.WithError(err).Warn("Error unmarshaling message")
		return true
	}

	switch msg.Type {
	case protocol.TypeVoiceUpdate:
		var update protocol.VoiceUpdate
		if err := protocol.DecodePayload(msg, &update); err != nil {
			s.log.WithError(err).Warn("Invalid voice/update")
			return true
		}
		update.SpeakerID = client.SpeakerID

		client.mu.Lock()
		client.update = update
		client.mu.Unlock()
		s.updateTUI()

		s.broadcast(client, protocol.Message{Type: protocol.TypeVoiceUpdate, Payload: update}, update.WorldOrCell)

	case protocol.TypeClientGoodbye:
		var goodbye protocol.ClientGoodbye
		protocol.DecodePayload(msg, &goodbye)
		s.log.WithFields(logrus.Fields{
			"speaker": client.SpeakerID,
			"reason":  goodbye.Reason,
		}).Info("Client said goodbye")
		return false

	default:
		s.log.WithField("type", msg.Type).Debug("Unknown message type")
	}
	return true
}

// peers returns every client except from
func (s *Server) peers(from *Client) []*Client {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	peers := make([]*Client, 0, len(s.clients))
	for id, c := range s.clients {
		if id != from.SpeakerID {
			peers = append(peers, c)
		}
	}
	return peers
}

// broadcast sends msg to every peer in the same world or cell and reports
// how many were queued. Zero means unknown and matches everyone.
func (s *Server) broadcast(from *Client, msg interface{}, worldOrCell uint32) int {
	queued := 0
	for _, peer := range s.peers(from) {
		if worldOrCell != 0 {
			if peerWorld := peer.snapshot().WorldOrCell; peerWorld != 0 && peerWorld != worldOrCell {
				continue
			}
		}
		if s.enqueue(peer, msg) {
			queued++
		}
	}
	return queued
}

// enqueue drops the message when the client is too slow
func (s *Server) enqueue(client *Client, msg interface{}) bool {
	select {
	case client.sendChan <- msg:
		return true
	default:
		s.dropped.Add(1)
		s.log.WithField("speaker", client.SpeakerID).Debug("Client send buffer full, dropping message")
		return false
	}
}

// Forwarded returns how many voice datagrams were queued to peers
func (s *Server) Forwarded() int64 {
	return s.forwarded.Load()
}

// Dropped returns how many messages were dropped on full client queues
func (s *Server) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	s.updateTUILocked()
}

// updateTUILocked must hold clientsMu
func (s *Server) updateTUILocked() {
	if s.tui == nil {
		return
	}
	s.tui.Update(Status{
		Name:      s.config.Name,
		Port:      s.config.Port,
		Clients:   s.clientInfoLocked(),
		Forwarded: s.forwarded.Load(),
		Dropped:   s.dropped.Load(),
	})
}

// clientInfoLocked lists clients by speaker id; must hold clientsMu
func (s *Server) clientInfoLocked() []ClientInfo {
	clients := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		update := c.snapshot()
		clients = append(clients, ClientInfo{
			Name:        c.Name,
			SpeakerID:   c.SpeakerID,
			Talking:     update.IsTalking,
			WorldOrCell: update.WorldOrCell,
		})
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].SpeakerID < clients[j].SpeakerID })
	return clients
}

// Clients returns the connected clients ordered by speaker id
func (s *Server) Clients() []ClientInfo {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return s.clientInfoLocked()
}

func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return

		case msg := <-client.sendChan:

			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			var err error
			switch v := msg.(type) {
			case []byte:
				err = client.Conn.WriteMessage(websocket.BinaryMessage, v)
			default:
				err = client.Conn.WriteJSON(v)
			}
			if err != nil {
				s.log.WithError(err).WithField("speaker", client.SpeakerID).Debug("Write failed")
				client.Conn.Close()
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				client.Conn.Close()
				return
			}
		}
	}
}
