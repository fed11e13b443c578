package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/boardstream/relay/internal/auth"
	"github.com/boardstream/relay/internal/board"
	"github.com/boardstream/relay/internal/database"
	"github.com/boardstream/relay/internal/fanout"
	"github.com/boardstream/relay/internal/feed"
	"github.com/boardstream/relay/internal/notify"
	"github.com/boardstream/relay/internal/presence"
	"github.com/boardstream/relay/internal/server"
	"github.com/boardstream/relay/internal/users"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type relayHarness struct {
	server   *httptest.Server
	registry *presence.Registry
	issuer   *auth.TokenIssuer
	store    *notify.Store
}

func newRelayHarness(t *testing.T) *relayHarness {
	t.Helper()

	db, err := database.OpenSQLite("file::memory:", nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	seededBoard := board.Board{
		ID:    "board-1",
		Title: "Launch Plan",
		Members: []board.Member{
			{UserID: "user-a", WatchMode: board.WatchModeWatching},
			{UserID: "user-b", WatchMode: board.WatchModeNotWatching},
		},
	}
	if err := db.Create(&seededBoard).Error; err != nil {
		t.Fatalf("failed to seed board: %v", err)
	}
	profiles := []users.Profile{
		{ID: "user-a", FirstName: "Ada", LastName: "Lovelace"},
		{ID: "user-b", FirstName: "Blaise", LastName: "Pascal"},
	}
	for _, profile := range profiles {
		if err := db.Create(&profile).Error; err != nil {
			t.Fatalf("failed to seed profile: %v", err)
		}
	}

	registry := presence.NewRegistry()
	boardService, err := board.NewService(board.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build board service: %v", err)
	}
	profileService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build profile service: %v", err)
	}
	store, err := notify.NewStore(notify.StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build notification store: %v", err)
	}
	dispatcher, err := fanout.NewDispatcher(fanout.DispatcherConfig{
		Registry:      registry,
		Boards:        boardService,
		Profiles:      profileService,
		Notifications: store,
	})
	if err != nil {
		t.Fatalf("failed to build dispatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for _, stream := range []struct {
		name    string
		handler feed.HandlerFunc
	}{
		{name: feed.StreamHistory, handler: fanout.MutationHandler(dispatcher)},
		{name: feed.StreamNotifications, handler: fanout.NotificationHandler(dispatcher)},
	} {
		source, err := feed.NewChangelog(feed.ChangelogConfig{
			Database:     db,
			Stream:       stream.name,
			PollInterval: 10 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("failed to build %s source: %v", stream.name, err)
		}
		consumer, err := feed.NewConsumer(feed.ConsumerConfig{
			Source:  source,
			Stream:  stream.name,
			Handler: stream.handler,
		})
		if err != nil {
			t.Fatalf("failed to build %s consumer: %v", stream.name, err)
		}
		go consumer.Run(ctx)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte("integration-secret")})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Registry:      registry,
		Notifications: store,
		History:       boardService,
		Tokens:        issuer,
	})
	if err != nil {
		t.Fatalf("failed to build router: %v", err)
	}

	httpServer := httptest.NewServer(handler)
	t.Cleanup(httpServer.Close)
	return &relayHarness{server: httpServer, registry: registry, issuer: issuer, store: store}
}

func (h *relayHarness) dialAndIdentify(t *testing.T, identity string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	var greeting fanout.Envelope
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := client.ReadJSON(&greeting); err != nil || greeting.Type != fanout.MessageConnected {
		t.Fatalf("expected connected greeting, got %+v (%v)", greeting, err)
	}

	identify := map[string]any{"type": "identify", "payload": map[string]any{"identity": identity}}
	if err := client.WriteJSON(identify); err != nil {
		t.Fatalf("failed to identify: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.registry.ConnectionsFor(identity)) > 0 {
			return client
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("identity %s never registered", identity)
	return nil
}

func (h *relayHarness) commitMutation(t *testing.T, actor, boardID, action, originConnectionID string) {
	t.Helper()
	token, err := h.issuer.Issue(actor)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	payload := map[string]any{"action": action, "payload": map[string]any{"cardId": "card-9"}}
	if originConnectionID != "" {
		payload["originConnectionId"] = originConnectionID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}
	request, err := http.NewRequest(http.MethodPost, h.server.URL+"/boards/"+boardID+"/events", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", "application/json")

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("failed to post event: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", response.StatusCode)
	}
}

// collectMessages reads pushes until the deadline, bucketing them by type.
func collectMessages(client *websocket.Conn, window time.Duration) map[string]int {
	counts := make(map[string]int)
	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return counts
		}
		client.SetReadDeadline(time.Now().Add(remaining))
		var envelope fanout.Envelope
		if err := client.ReadJSON(&envelope); err != nil {
			return counts
		}
		counts[envelope.Type]++
	}
}

func TestMutationFanoutAcrossTheFullLoop(t *testing.T) {
	harness := newRelayHarness(t)

	actorClient := harness.dialAndIdentify(t, "user-a")
	memberClient := harness.dialAndIdentify(t, "user-b")

	originConnectionID := harness.registry.ConnectionsFor("user-a")[0].SessionID()
	harness.commitMutation(t, "user-a", "board-1", "ADD_USER", originConnectionID)

	actorMessages := collectMessages(actorClient, 1500*time.Millisecond)
	memberMessages := collectMessages(memberClient, 1500*time.Millisecond)

	if actorMessages[fanout.MessageHistoryItem] != 1 {
		t.Fatalf("actor must receive the historyItem, got %v", actorMessages)
	}
	if actorMessages[fanout.MessageChange] != 0 {
		t.Fatalf("originating connection must not receive the change, got %v", actorMessages)
	}
	if actorMessages[fanout.MessageNotification] != 0 {
		t.Fatalf("actor must not be notified of own action, got %v", actorMessages)
	}

	if memberMessages[fanout.MessageHistoryItem] != 1 || memberMessages[fanout.MessageChange] != 1 {
		t.Fatalf("member must receive historyItem and change, got %v", memberMessages)
	}
	// ADD_USER triggers a notification for a "Not watching" member; the record
	// is persisted, observed on the notification stream, and pushed live.
	if memberMessages[fanout.MessageNotification] != 1 {
		t.Fatalf("member must receive the redelivered notification, got %v", memberMessages)
	}

	records, err := harness.store.ListForRecipient(context.Background(), "user-b")
	if err != nil {
		t.Fatalf("failed to list notifications: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 persisted record, got %d", len(records))
	}
	record := records[0]
	if record.BoardTitle != "Launch Plan" || record.ActorDisplayName != "Ada Lovelace" {
		t.Fatalf("expected snapshotted board title and actor name, got %+v", record)
	}
	if record.Seen {
		t.Fatal("fresh records must start unseen")
	}
}

func TestLowSignalMutationProducesNoNotification(t *testing.T) {
	harness := newRelayHarness(t)

	memberClient := harness.dialAndIdentify(t, "user-b")
	harness.commitMutation(t, "user-a", "board-1", "CHANGE_FILTER", "")

	messages := collectMessages(memberClient, 1200*time.Millisecond)
	if messages[fanout.MessageHistoryItem] != 1 || messages[fanout.MessageChange] != 1 {
		t.Fatalf("member must still receive live fanout, got %v", messages)
	}
	if messages[fanout.MessageNotification] != 0 {
		t.Fatalf("CHANGE_FILTER must not notify a Not watching member, got %v", messages)
	}

	records, err := harness.store.ListForRecipient(context.Background(), "user-b")
	if err != nil {
		t.Fatalf("failed to list notifications: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no persisted records, got %d", len(records))
	}
}
