package board

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidBoardID indicates that a board identifier is empty or exceeds storage bounds.
	ErrInvalidBoardID = errors.New("board: invalid board id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("board: invalid user id")
)

// WatchMode is a per-member notification preference on one board.
type WatchMode string

const (
	// WatchModeWatching subscribes the member to most board activity.
	WatchModeWatching WatchMode = "Watching"
	// WatchModeNotWatching limits notifications to membership and assignment changes.
	WatchModeNotWatching WatchMode = "Not watching"
	// WatchModeIgnoring suppresses all notifications for the member.
	WatchModeIgnoring WatchMode = "Ignoring"
)

// BoardID represents a validated board identifier.
type BoardID string

// NewBoardID validates raw input and returns a BoardID.
func NewBoardID(rawInput string) (BoardID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidBoardID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidBoardID, maxIdentifierLength)
	}
	return BoardID(trimmed), nil
}

// String returns the underlying string identifier.
func (id BoardID) String() string {
	return string(id)
}

// Board is the read model of one shared board. The relay never writes boards;
// the primary application owns them.
type Board struct {
	ID      string   `gorm:"column:board_id;primaryKey;size:190;not null" json:"id"`
	Title   string   `gorm:"column:title;size:512;not null" json:"title"`
	Members []Member `gorm:"foreignKey:BoardID;references:ID" json:"members"`
}

// TableName provides the explicit table binding for GORM.
func (Board) TableName() string {
	return "boards"
}

// Member associates a user with a board and carries the user's watch preference.
// The raw member list may contain the same user id more than once; fanout
// collapses duplicates by identity.
type Member struct {
	RowID     int64     `gorm:"column:row_id;primaryKey;autoIncrement" json:"-"`
	BoardID   string    `gorm:"column:board_id;size:190;not null;index" json:"-"`
	UserID    string    `gorm:"column:user_id;size:190;not null" json:"userId"`
	WatchMode WatchMode `gorm:"column:watch_mode;size:32;not null;default:'Watching'" json:"watchMode"`
}

// TableName provides the explicit table binding for GORM.
func (Member) TableName() string {
	return "board_members"
}

// Event is one committed board mutation. It is both the decoded history-stream
// document and the changelog row the changelog feed driver tails; Seq is the
// stream position in the latter case.
type Event struct {
	Seq                int64      `gorm:"column:seq;primaryKey;autoIncrement" json:"-"`
	EventID            string     `gorm:"column:event_id;size:190;not null;uniqueIndex" json:"eventId"`
	BoardID            string     `gorm:"column:board_id;size:190;index" json:"boardId,omitempty"`
	ActorID            string     `gorm:"column:actor_id;size:190;not null" json:"actorId"`
	Action             ActionKind `gorm:"column:action;size:64;not null" json:"action"`
	OriginConnectionID string     `gorm:"column:origin_connection_id;size:190" json:"originConnectionId,omitempty"`
	PayloadJSON        string     `gorm:"column:payload_json;type:text;not null;default:''" json:"payload,omitempty"`
	CreatedAtSeconds   int64      `gorm:"column:created_at_s;not null" json:"createdAtS"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "board_events"
}
