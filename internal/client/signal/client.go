// Package signal is the client half of the relay connection: one
// persistent websocket, a write pump, and a single-threaded dispatch
// loop. All registered handlers run on the read goroutine, so reactive
// state machines built on top need no internal ordering tricks.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/core"
)

var ErrClosed = errors.New("signal client closed")

type Handler func(data json.RawMessage)

type Client struct {
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	handlers map[core.EventKind][]Handler
	closed   bool
}

func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:     conn,
		send:     make(chan []byte, 32),
		handlers: make(map[core.EventKind][]Handler),
	}, nil
}

// On appends a handler for the kind. Several subsystems may listen to
// the same kind (1:1 calls and room meshes share the negotiation
// events); each handler ignores payloads that are not addressed to it.
func (c *Client) On(kind core.EventKind, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], h)
}

func (c *Client) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

// Run starts the pumps and blocks until the connection or ctx dies.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	return c.readLoop(ctx)
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "client.signal").Msg("set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "client.signal").Msg("write error")
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "client.signal").Msg("bad json")
		return
	}
	c.mu.Lock()
	hs := c.handlers[env.Kind]
	c.mu.Unlock()
	if len(hs) == 0 {
		log.Debug().Str("module", "client.signal").Str("type", string(env.Kind)).Msg("unhandled event")
		return
	}
	for _, h := range hs {
		h(data)
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.conn.Close()
}
