// ABOUTME: WebSocket client for the voice relay
// ABOUTME: Handles connection, handshake, outbound queueing and inbound routing
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Sendspin/sendspin-voice/pkg/protocol"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	writeDeadline           = 10 * time.Second
	pingInterval            = 30 * time.Second
	sendQueueSize           = 64
)

// ErrNotConnected is returned when sending without a live connection
var ErrNotConnected = errors.New("not connected")

// ErrSendQueueFull is returned when the writer cannot keep up
var ErrSendQueueFull = errors.New("send queue full")

// Config holds client configuration
type Config struct {
	RelayAddr        string
	Path             string
	ClientID         string
	Name             string
	DeviceInfo       protocol.DeviceInfo
	AudioFormat      protocol.AudioFormat
	HandshakeTimeout time.Duration
}

// Client is a connection to a voice relay
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex
	log    logrus.FieldLogger

	// Inbound traffic
	Voice   chan protocol.VoiceDatagram
	Updates chan protocol.VoiceUpdate
	Errors  chan protocol.ServerError

	sendChan  chan interface{}
	speakerID uint32
	relayName string

	// State
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new relay client
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = "/voice"
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:   config,
		log:      logrus.WithField("component", "client"),
		Voice:    make(chan protocol.VoiceDatagram, 100),
		Updates:  make(chan protocol.VoiceUpdate, 32),
		Errors:   make(chan protocol.ServerError, 4),
		sendChan: make(chan interface{}, sendQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Connect dials the relay and performs the handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.RelayAddr, Path: c.config.Path}
	c.log.WithField("url", u.String()).Info("Connecting to relay")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.writeMessages()
	go c.readMessages()

	return nil
}

// handshake runs before the reader and writer goroutines start
func (c *Client) handshake() error {
	hello := protocol.ClientHello{
		ClientID:    c.config.ClientID,
		Name:        c.config.Name,
		Version:     protocol.ProtocolVersion,
		DeviceInfo:  &c.config.DeviceInfo,
		AudioFormat: &c.config.AudioFormat,
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := c.conn.WriteJSON(protocol.Message{Type: protocol.TypeClientHello, Payload: hello}); err != nil {
		return fmt.Errorf("failed to send %s: %w", protocol.TypeClientHello, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.config.HandshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", protocol.TypeServerHello, err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", protocol.TypeServerHello, err)
	}

	switch msg.Type {
	case protocol.TypeServerHello:
	case protocol.TypeServerError:
		var serverErr protocol.ServerError
		if err := protocol.DecodePayload(msg, &serverErr); err != nil {
			return err
		}
		return fmt.Errorf("relay rejected hello: %s", serverErr.Message)
	default:
		return fmt.Errorf("expected %s, got %s", protocol.TypeServerHello, msg.Type)
	}

	var serverHello protocol.ServerHello
	if err := protocol.DecodePayload(msg, &serverHello); err != nil {
		return err
	}

	c.mu.Lock()
	c.speakerID = serverHello.SpeakerID
	c.relayName = serverHello.Name
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"relay":      serverHello.Name,
		"speaker_id": serverHello.SpeakerID,
	}).Info("Handshake complete with relay")
	return nil
}

// SpeakerID returns the id the relay assigned to this client
func (c *Client) SpeakerID() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.speakerID
}

// RelayName returns the name the relay announced
func (c *Client) RelayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relayName
}

// SendVoice queues one encoded packet. It never blocks, so it is safe to
// call from an audio callback.
func (c *Client) SendVoice(packet []byte) error {
	data, err := protocol.VoiceDatagram{SpeakerID: c.SpeakerID(), Payload: packet}.MarshalBinary()
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// SendUpdate queues a voice/update
func (c *Client) SendUpdate(update protocol.VoiceUpdate) error {
	update.SpeakerID = c.SpeakerID()
	return c.enqueue(protocol.Message{Type: protocol.TypeVoiceUpdate, Payload: update})
}

// SendGoodbye queues a client/goodbye before disconnecting
func (c *Client) SendGoodbye(reason string) error {
	return c.enqueue(protocol.Message{
		Type:    protocol.TypeClientGoodbye,
		Payload: protocol.ClientGoodbye{Reason: reason},
	})
}

func (c *Client) enqueue(msg interface{}) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	select {
	case c.sendChan <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrNotConnected
	default:
		return ErrSendQueueFull
	}
}

// writeMessages is the only writer after the handshake
func (c *Client) writeMessages() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case msg := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))

			var err error
			switch v := msg.(type) {
			case []byte:
				err = c.conn.WriteMessage(websocket.BinaryMessage, v)
			default:
				err = c.conn.WriteJSON(v)
			}
			if err != nil {
				c.log.WithError(err).Warn("Write failed")
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.WithError(err).Info("Relay connection lost")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleBinaryMessage(data)
		case websocket.TextMessage:
			c.handleJSONMessage(data)
		default:
			c.log.WithField("type", messageType).Warn("Unknown WebSocket message type")
		}
	}
}

func (c *Client) handleBinaryMessage(data []byte) {
	dgram, err := protocol.ParseVoiceDatagram(data)
	if err != nil {
		c.log.WithError(err).Warn("Dropping invalid voice datagram")
		return
	}

	select {
	case c.Voice <- dgram:
	default:
		c.log.WithField("speaker", dgram.SpeakerID).Warn("Voice channel full, dropping packet")
	}
}

func (c *Client) handleJSONMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.WithError(err).Warn("Failed to parse JSON message")
		return
	}

	switch msg.Type {
	case protocol.TypeVoiceUpdate:
		var update protocol.VoiceUpdate
		if err := protocol.DecodePayload(msg, &update); err != nil {
			c.log.WithError(err).Warn("Invalid voice/update")
			return
		}
		select {
		case c.Updates <- update:
		case <-c.ctx.Done():
		}

	case protocol.TypeServerError:
		var serverErr protocol.ServerError
		if err := protocol.DecodePayload(msg, &serverErr); err != nil {
			c.log.WithError(err).Warn("Invalid server/error")
			return
		}
		c.log.WithField("message", serverErr.Message).Warn("Relay reported error")
		select {
		case c.Errors <- serverErr:
		default:
		}

	default:
		c.log.WithField("type", msg.Type).Debug("Ignoring message")
	}
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		conn := c.conn
		c.mu.Unlock()

		c.cancel()
		if conn != nil {
			conn.Close()
		}
		close(c.done)
		c.log.Info("Connection closed")
	})
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
