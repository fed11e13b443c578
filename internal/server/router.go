package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/boardstream/relay/internal/board"
	"github.com/boardstream/relay/internal/metrics"
	"github.com/boardstream/relay/internal/notify"
	"github.com/boardstream/relay/internal/presence"
)

const userIDContextKey = "relay_user_id"

const defaultSendBuffer = 32

var (
	errMissingRegistry      = errors.New("presence registry dependency required")
	errMissingNotifications = errors.New("notification store dependency required")
	errMissingHistory       = errors.New("history appender dependency required")
	errMissingTokens        = errors.New("token validator dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// NotificationStore is the read/update surface the REST endpoints need.
type NotificationStore interface {
	ListForRecipient(ctx context.Context, recipientID string) ([]notify.Record, error)
	MarkSeen(ctx context.Context, recordID, recipientID string) error
}

// HistoryAppender commits one mutation event onto the history stream.
type HistoryAppender interface {
	AppendEvent(ctx context.Context, event *board.Event) error
}

// TokenValidator checks a bearer token and returns the user id subject.
type TokenValidator interface {
	Validate(tokenString string) (string, error)
}

// IDProvider issues connection session and event identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Dependencies wires the HTTP surface.
type Dependencies struct {
	Registry      *presence.Registry
	Notifications NotificationStore
	History       HistoryAppender
	Tokens        TokenValidator
	IDs           IDProvider
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	// RequireToken makes the websocket identify message carry a valid bearer
	// token; without it the claimed identity is trusted as-is.
	RequireToken bool
	SendBuffer   int
	Clock        func() time.Time
}

// NewHTTPHandler builds the gin router for the relay.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Notifications == nil {
		return nil, errMissingNotifications
	}
	if deps.History == nil {
		return nil, errMissingHistory
	}
	if deps.Tokens == nil {
		return nil, errMissingTokens
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := deps.IDs
	if ids == nil {
		ids = NewUUIDProvider()
	}
	sendBuffer := deps.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		registry:      deps.Registry,
		notifications: deps.Notifications,
		history:       deps.History,
		tokens:        deps.Tokens,
		ids:           ids,
		logger:        logger,
		metrics:       deps.Metrics,
		requireToken:  deps.RequireToken,
		sendBuffer:    sendBuffer,
		now:           clock,
	}

	router.GET("/isalive", handler.handleIsAlive)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", handler.handleWebsocket)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/notifications", handler.handleListNotifications)
	protected.POST("/notifications/:id/seen", handler.handleMarkSeen)
	protected.POST("/boards/:id/events", handler.handleAppendEvent)

	return router, nil
}

type httpHandler struct {
	registry      *presence.Registry
	notifications NotificationStore
	history       HistoryAppender
	tokens        TokenValidator
	ids           IDProvider
	logger        *zap.Logger
	metrics       *metrics.Metrics
	requireToken  bool
	sendBuffer    int
	now           func() time.Time
}

func (h *httpHandler) handleIsAlive(c *gin.Context) {
	c.String(http.StatusOK, "alive")
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, err := bearerToken(c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn("bearer token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func bearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errInvalidAuthorization
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errInvalidAuthorization
	}
	return token, nil
}

func authenticatedUserID(c *gin.Context) string {
	value, _ := c.Get(userIDContextKey)
	userID, _ := value.(string)
	return userID
}

type notificationsResponsePayload struct {
	Notifications []notify.Record `json:"notifications"`
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	userID := authenticatedUserID(c)
	records, err := h.notifications.ListForRecipient(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.String("user", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	if records == nil {
		records = []notify.Record{}
	}
	c.JSON(http.StatusOK, notificationsResponsePayload{Notifications: records})
}

func (h *httpHandler) handleMarkSeen(c *gin.Context) {
	userID := authenticatedUserID(c)
	recordID := c.Param("id")
	err := h.notifications.MarkSeen(c.Request.Context(), recordID, userID)
	if errors.Is(err, notify.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to mark notification seen", zap.String("record", recordID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type appendEventRequestPayload struct {
	Action             string          `json:"action"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	OriginConnectionID string          `json:"originConnectionId,omitempty"`
}

type appendEventResponsePayload struct {
	EventID string `json:"eventId"`
}

func (h *httpHandler) handleAppendEvent(c *gin.Context) {
	var request appendEventRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	action := board.ActionKind(request.Action)
	if !action.Known() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_action"})
		return
	}
	boardID, err := board.NewBoardID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_board"})
		return
	}

	eventID, err := h.ids.NewID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "append_failed"})
		return
	}
	event := &board.Event{
		EventID:            eventID,
		BoardID:            boardID.String(),
		ActorID:            authenticatedUserID(c),
		Action:             action,
		OriginConnectionID: request.OriginConnectionID,
		PayloadJSON:        string(request.Payload),
		CreatedAtSeconds:   h.now().UTC().Unix(),
	}
	if err := h.history.AppendEvent(c.Request.Context(), event); err != nil {
		h.logger.Error("failed to append mutation event",
			zap.String("board", event.BoardID),
			zap.String("action", string(event.Action)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "append_failed"})
		return
	}
	c.JSON(http.StatusAccepted, appendEventResponsePayload{EventID: event.EventID})
}
