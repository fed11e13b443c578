package notify

import "github.com/boardstream/relay/internal/board"

// Record is one persisted, addressed notification. Records are only ever
// created by the fanout dispatcher in reaction to a mutation event; clients
// can read them and mark them seen, never create them.
//
// Seq doubles as the notification stream position for the changelog feed
// driver: appends are observed by tailing this table in seq order.
type Record struct {
	Seq              int64            `gorm:"column:seq;primaryKey;autoIncrement" json:"-"`
	ID               string           `gorm:"column:notification_id;size:190;not null;uniqueIndex" json:"id"`
	RecipientID      string           `gorm:"column:recipient_id;size:190;not null;index" json:"recipientId"`
	Action           board.ActionKind `gorm:"column:action;size:64;not null" json:"action"`
	BoardID          string           `gorm:"column:board_id;size:190;not null" json:"boardId"`
	BoardTitle       string           `gorm:"column:board_title;size:512;not null" json:"boardTitle"`
	ActorDisplayName string           `gorm:"column:actor_display_name;size:512;not null" json:"actorDisplayName"`
	Seen             bool             `gorm:"column:seen;not null;default:false" json:"seen"`
	CreatedAtSeconds int64            `gorm:"column:created_at_s;not null" json:"createdAtS"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "notifications"
}
