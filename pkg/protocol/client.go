// ABOUTME: WebSocket client for the voice relay
// ABOUTME: Handles connection, serialized writes and inbound message routing
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harperreed/voicecoach/pkg/audio"
	"go.uber.org/zap"
)

const (
	// writeTimeout bounds a single frame write
	writeTimeout = 5 * time.Second

	// closeGrace bounds the close handshake write
	closeGrace = time.Second
)

// ErrNotConnected is returned when sending without an open connection
var ErrNotConnected = errors.New("not connected")

// Config holds client configuration
type Config struct {
	// URL is the relay endpoint, e.g. ws://host:8765/ws
	URL      string
	ClientID string
	Product  string
	Version  string

	// OnMessage receives every decoded inbound frame, on the reader goroutine
	OnMessage func(Inbound)

	// OnClose is called once when the connection ends without Close
	OnClose func(error)

	Dialer *websocket.Dialer
	Logger *zap.Logger
}

// Client represents a WebSocket client
type Client struct {
	config Config
	logger *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	gen  uint64

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	if config.Dialer == nil {
		config.Dialer = websocket.DefaultDialer
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Client{
		config: config,
		logger: config.Logger.Named("transport"),
	}
}

// Connect dials the relay. Connecting an open client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	target, err := c.dialURL()
	if err != nil {
		return err
	}

	c.logger.Info("Connecting", zap.String("url", target))

	conn, _, err := c.config.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		// Lost a race with a concurrent Connect
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.mu.Unlock()

	go c.readMessages(conn, gen)

	c.logger.Info("Connected")
	return nil
}

// dialURL adds the client identification query
func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", fmt.Errorf("invalid relay url %q: %w", c.config.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid relay url %q: scheme must be ws or wss", c.config.URL)
	}

	q := u.Query()
	if c.config.ClientID != "" {
		q.Set("client_id", c.config.ClientID)
	}
	if c.config.Product != "" {
		q.Set("product", c.config.Product)
	}
	if c.config.Version != "" {
		q.Set("version", c.config.Version)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Send writes a JSON event; it fails with ErrNotConnected when closed
func (c *Client) Send(kind Kind, payload interface{}) error {
	return c.write(func(conn *websocket.Conn) error {
		return conn.WriteJSON(Message{Type: kind, Payload: payload})
	})
}

// SendAudio writes one PCM frame tagged as client audio
func (c *Client) SendAudio(samples []int16) error {
	frame := EncodeBinary(BinaryClientAudio, audio.EncodePCM16LE(samples))
	return c.write(func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.BinaryMessage, frame)
	})
}

func (c *Client) write(fn func(*websocket.Conn) error) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := fn(conn); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// readMessages reads and routes incoming messages until the connection ends
func (c *Client) readMessages(conn *websocket.Conn, gen uint64) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(gen, err)
			return
		}

		var in Inbound
		switch messageType {
		case websocket.BinaryMessage:
			in, err = ParseBinary(data)
		case websocket.TextMessage:
			in, err = ParseText(data)
		default:
			continue
		}
		if err != nil {
			c.logger.Warn("Dropping inbound frame", zap.Error(err))
			continue
		}

		if c.config.OnMessage != nil {
			c.config.OnMessage(in)
		}
	}
}

// connectionLost reports an unexpected end of the connection of generation gen
func (c *Client) connectionLost(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.conn == nil {
		// Closed by Close, or superseded by a newer connection
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	conn.Close()
	c.logger.Warn("Connection lost", zap.Error(err))

	if c.config.OnClose != nil {
		c.config.OnClose(err)
	}
}

// Close closes the connection. Safe to call repeatedly and before Connect.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	c.writeMu.Unlock()

	if err := conn.Close(); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}

	c.logger.Info("Connection closed")
	return nil
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
