package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	SendBuffer   int
	WriteWait    time.Duration
	PingInterval time.Duration
}

// Client is a WebSocket endpoint. Sends are queued and written by a single
// write pump; a full queue is reported to the caller instead of blocking.
type Client struct {
	id     domain.ClientID
	connID domain.ConnID
	conn   *websocket.Conn
	opts   Options

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id domain.ClientID, conn *websocket.Conn, opts Options) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	return &Client{
		id:     id,
		connID: domain.NewConnID(),
		conn:   conn,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() domain.ClientID   { return c.id }
func (c *Client) ConnID() domain.ConnID { return c.connID }
func (c *Client) Conn() *websocket.Conn { return c.conn }
func (c *Client) Done() <-chan struct{} { return c.done }

// Start launches the write pump.
func (c *Client) Start() {
	go c.writePump()
}

func (c *Client) SendSignal(env domain.Envelope) error {
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.enqueue(msg)
}

type errorFrame struct {
	Type    string          `json:"type"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	To      domain.ClientID `json:"to,omitempty"`
}

func (c *Client) SendError(code, message string, peer domain.ClientID) error {
	msg, err := json.Marshal(errorFrame{Type: "error", Code: code, Message: message, To: peer})
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

type byeFrame struct {
	Type string          `json:"type"`
	From domain.ClientID `json:"from"`
	To   domain.ClientID `json:"to"`
}

// SendBye tells the client that its session with peer is over.
func (c *Client) SendBye(peer domain.ClientID) error {
	msg, err := json.Marshal(byeFrame{Type: "bye", From: peer, To: c.id})
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

func (c *Client) enqueue(msg []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("send to %q: %w", c.id, domain.ErrEndpointClosed)
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return fmt.Errorf("send to %q: %w", c.id, domain.ErrEndpointClosed)
	default:
		return fmt.Errorf("send to %q: %w", c.id, domain.ErrSendBufferFull)
	}
}

// Close sends a close frame and closes the connection. Safe to call more
// than once and from any goroutine.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.opts.WriteWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) writePump() {
	var tick <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Str("client_id", c.id.String()).Msg("Write failed")
				c.Close()
				return
			}
		case <-tick:
			deadline := time.Now().Add(c.opts.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug().Err(err).Str("client_id", c.id.String()).Msg("Ping failed")
				c.Close()
				return
			}
		}
	}
}
