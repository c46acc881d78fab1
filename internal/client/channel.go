package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/huddlekit/huddle/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	channelBuffer  = 32
)

type ChannelState string

const (
	ChannelConnected    ChannelState = "connected"
	ChannelDisconnected ChannelState = "disconnected"
)

// Channel manages one WebSocket connection to the relay. A Channel covers a
// single connection lifetime; reconnecting means dialing a fresh one.
type Channel struct {
	serverURL string
	log       *slog.Logger

	conn     *websocket.Conn
	incoming chan domain.Envelope
	outgoing chan domain.Envelope
	states   chan ChannelState
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewChannel(serverURL string, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		serverURL: serverURL,
		log:       log,
		incoming:  make(chan domain.Envelope, channelBuffer),
		outgoing:  make(chan domain.Envelope, channelBuffer),
		states:    make(chan ChannelState, 4),
		done:      make(chan struct{}),
	}
}

// Dial establishes the WebSocket connection and starts the pumps.
func (c *Channel) Dial(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	c.notify(ChannelConnected)
	return nil
}

// readPump reads envelopes until the connection dies. Closing incoming is
// the disconnect signal for the consumer.
func (c *Channel) readPump() {
	defer func() {
		c.conn.Close()
		// The state lands before incoming closes, so a consumer reacting
		// to the closure can still drain the disconnect notification.
		c.notify(ChannelDisconnected)
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var env domain.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}

		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

// writePump writes outbound envelopes and sends periodic pings.
func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues an envelope for the write pump.
func (c *Channel) Send(env domain.Envelope) error {
	select {
	case c.outgoing <- env:
		return nil
	case <-c.done:
		return ErrNotConnected
	}
}

// Incoming returns the inbound envelope stream. It closes when the
// connection is gone.
func (c *Channel) Incoming() <-chan domain.Envelope {
	return c.incoming
}

// States reports connected/disconnected transitions.
func (c *Channel) States() <-chan ChannelState {
	return c.states
}

func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *Channel) notify(state ChannelState) {
	select {
	case c.states <- state:
	default:
	}
}
