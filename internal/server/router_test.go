package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/boardstream/relay/internal/board"
	"github.com/boardstream/relay/internal/notify"
	"github.com/boardstream/relay/internal/presence"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeNotifications struct {
	mu      sync.Mutex
	records map[string][]notify.Record
	seen    []string
}

func (f *fakeNotifications) ListForRecipient(_ context.Context, recipientID string) ([]notify.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[recipientID], nil
}

func (f *fakeNotifications) MarkSeen(_ context.Context, recordID, recipientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, record := range f.records[recipientID] {
		if record.ID == recordID {
			f.seen = append(f.seen, recordID)
			return nil
		}
	}
	return notify.ErrRecordNotFound
}

type fakeHistory struct {
	mu     sync.Mutex
	events []board.Event
}

func (f *fakeHistory) AppendEvent(_ context.Context, event *board.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *event)
	return nil
}

type fakeTokens struct {
	subjects map[string]string
}

func (f *fakeTokens) Validate(tokenString string) (string, error) {
	subject, ok := f.subjects[tokenString]
	if !ok {
		return "", errors.New("invalid token")
	}
	return subject, nil
}

func newTestRouter(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	if deps.Registry == nil {
		deps.Registry = presence.NewRegistry()
	}
	if deps.Notifications == nil {
		deps.Notifications = &fakeNotifications{records: map[string][]notify.Record{}}
	}
	if deps.History == nil {
		deps.History = &fakeHistory{}
	}
	if deps.Tokens == nil {
		deps.Tokens = &fakeTokens{subjects: map[string]string{"token-b": "user-b"}}
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("unexpected router construction error: %v", err)
	}
	return handler
}

func TestIsAlive(t *testing.T) {
	handler := newTestRouter(t, Dependencies{})
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/isalive", nil)

	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if recorder.Body.String() != "alive" {
		t.Fatalf("expected alive body, got %q", recorder.Body.String())
	}
}

func TestProtectedRoutesRejectMissingBearer(t *testing.T) {
	handler := newTestRouter(t, Dependencies{})
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/notifications", nil)

	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestListNotificationsForAuthenticatedUser(t *testing.T) {
	store := &fakeNotifications{records: map[string][]notify.Record{
		"user-b": {{ID: "notif-1", RecipientID: "user-b", Action: board.ActionAddUser}},
	}}
	handler := newTestRouter(t, Dependencies{Notifications: store})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	request.Header.Set("Authorization", "Bearer token-b")

	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "notif-1") {
		t.Fatalf("expected record in response, got %s", recorder.Body.String())
	}
}

func TestMarkSeenUnknownRecord(t *testing.T) {
	handler := newTestRouter(t, Dependencies{})
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/notifications/ghost/seen", nil)
	request.Header.Set("Authorization", "Bearer token-b")

	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestAppendEventCommitsMutation(t *testing.T) {
	history := &fakeHistory{}
	handler := newTestRouter(t, Dependencies{History: history})

	body := strings.NewReader(`{"action":"EDIT_CARD","payload":{"cardId":"card-9"},"originConnectionId":"conn-1"}`)
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/boards/board-1/events", body)
	request.Header.Set("Authorization", "Bearer token-b")
	request.Header.Set("Content-Type", "application/json")

	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if len(history.events) != 1 {
		t.Fatalf("expected 1 appended event, got %d", len(history.events))
	}
	event := history.events[0]
	if event.BoardID != "board-1" || event.ActorID != "user-b" {
		t.Fatalf("unexpected event attribution %+v", event)
	}
	if event.Action != board.ActionEditCard {
		t.Fatalf("unexpected action %s", event.Action)
	}
	if event.OriginConnectionID != "conn-1" {
		t.Fatalf("unexpected origin connection %s", event.OriginConnectionID)
	}
	if event.EventID == "" || event.CreatedAtSeconds == 0 {
		t.Fatal("expected assigned event id and timestamp")
	}
}

func TestAppendEventRejectsUnknownAction(t *testing.T) {
	handler := newTestRouter(t, Dependencies{})

	body := strings.NewReader(`{"action":"SHRUG"}`)
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/boards/board-1/events", body)
	request.Header.Set("Authorization", "Bearer token-b")
	request.Header.Set("Content-Type", "application/json")

	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}
