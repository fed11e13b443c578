package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Origin checks are delegated to the CORS layer; the relay is fronted by the
// primary application's gateway.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (h *httpHandler) handleWebsocket(c *gin.Context) {
	socket, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID, err := h.ids.NewID()
	if err != nil {
		h.logger.Error("failed to issue session id", zap.Error(err))
		socket.Close()
		return
	}
	conn := newWSConn(sessionID, socket, h.sendBuffer)

	if h.metrics != nil {
		h.metrics.LiveConnections.Inc()
	}
	h.logger.Debug("websocket session opened", zap.String("session", sessionID))

	if err := conn.greet(); err != nil {
		h.closeSession(conn)
		return
	}
	go conn.writePump()
	h.readLoop(conn)
}

// readLoop owns the inbound side of the session. It returns when the client
// disconnects or the socket fails, which doubles as the disconnect event.
func (h *httpHandler) readLoop(conn *wsConn) {
	defer h.closeSession(conn)
	for {
		_, data, err := conn.socket.ReadMessage()
		if err != nil {
			return
		}
		var message inboundMessage
		if err := json.Unmarshal(data, &message); err != nil {
			h.logger.Debug("ignoring malformed inbound message",
				zap.String("session", conn.SessionID()))
			continue
		}
		if message.Type == inboundTypeIdentify {
			h.handleIdentify(conn, message.Payload)
		}
	}
}

func (h *httpHandler) handleIdentify(conn *wsConn, payload json.RawMessage) {
	var request identifyPayload
	if err := json.Unmarshal(payload, &request); err != nil {
		h.logger.Debug("ignoring malformed identify payload",
			zap.String("session", conn.SessionID()))
		return
	}

	identity := request.Identity
	if h.requireToken || request.Token != "" {
		subject, err := h.tokens.Validate(request.Token)
		if err != nil {
			h.logger.Warn("identify token rejected",
				zap.String("session", conn.SessionID()),
				zap.Error(err))
			return
		}
		identity = subject
	}
	if identity == "" {
		return
	}

	// The identity binding is immutable once set; repeat identifies no-op.
	if !conn.bindIdentity(identity) {
		return
	}
	h.registry.Register(identity, conn)
	h.logger.Debug("connection identified",
		zap.String("session", conn.SessionID()),
		zap.String("identity", identity))
}

func (h *httpHandler) closeSession(conn *wsConn) {
	conn.close()
	h.registry.Unregister(conn)
	if h.metrics != nil {
		h.metrics.LiveConnections.Dec()
	}
	h.logger.Debug("websocket session closed", zap.String("session", conn.SessionID()))
}
