package fanout

import (
	"encoding/json"

	"github.com/boardstream/relay/internal/board"
)

// Outbound message types pushed to client connections.
const (
	MessageConnected    = "connected"
	MessageHistoryItem  = "historyItem"
	MessageChange       = "change"
	MessageNotification = "notification"
)

// Envelope wraps every outbound push. Payload is absent for the connected
// greeting.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ConnectedEnvelope is sent once, immediately after a transport session opens.
func ConnectedEnvelope() Envelope {
	return Envelope{Type: MessageConnected}
}

// HistoryItemPayload describes a committed mutation for board history views.
// History items go to every member connection, the originating one included.
type HistoryItemPayload struct {
	Action           board.ActionKind `json:"action"`
	BoardID          string           `json:"boardId"`
	ActorID          string           `json:"actorId"`
	CreatedAtSeconds int64            `json:"createdAtS"`
}

// ChangePayload carries the mutation body for live board refresh. The origin
// connection is suppressed; the acting user's other tabs still receive it.
type ChangePayload struct {
	Action  board.ActionKind `json:"action"`
	Payload json.RawMessage  `json:"payload,omitempty"`
}
