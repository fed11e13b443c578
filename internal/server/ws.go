package server

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/boardstream/relay/internal/fanout"
)

var (
	errConnectionClosed = errors.New("server: connection closed")
	errSendBufferFull   = errors.New("server: send buffer full")
)

// inboundMessage is the envelope clients send over the websocket.
type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type identifyPayload struct {
	Identity string `json:"identity"`
	Token    string `json:"token,omitempty"`
}

const inboundTypeIdentify = "identify"

// wsConn is one live websocket session. It satisfies presence.Conn: the
// registry holds it as a non-owning reference while the read loop owns the
// socket lifecycle.
type wsConn struct {
	sessionID string
	socket    *websocket.Conn
	outbound  chan any
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	identity string
}

func newWSConn(sessionID string, socket *websocket.Conn, sendBuffer int) *wsConn {
	return &wsConn{
		sessionID: sessionID,
		socket:    socket,
		outbound:  make(chan any, sendBuffer),
		done:      make(chan struct{}),
	}
}

// SessionID is unique per process lifetime.
func (c *wsConn) SessionID() string {
	return c.sessionID
}

// Send enqueues one outbound message without blocking. A full buffer or a
// closed connection reports failure; callers treat either as "no longer
// deliverable" and move on.
func (c *wsConn) Send(message any) error {
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}
	select {
	case c.outbound <- message:
		return nil
	default:
		return errSendBufferFull
	}
}

// bindIdentity records the identity sent by the first identify message.
// The binding is immutable; later identifies report false and are ignored.
func (c *wsConn) bindIdentity(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity != "" {
		return false
	}
	c.identity = identity
	return true
}

func (c *wsConn) boundIdentity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// writePump drains the outbound queue onto the socket. Write failures close
// the connection; the read loop observes the closure and unregisters.
func (c *wsConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case message := <-c.outbound:
			if err := c.socket.WriteJSON(message); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.socket.Close()
	})
}

// greet sends the connected envelope directly; the write pump is not running
// yet when the session opens.
func (c *wsConn) greet() error {
	return c.socket.WriteJSON(fanout.ConnectedEnvelope())
}
