package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boardstream/relay/internal/board"
	"github.com/boardstream/relay/internal/feed"
	"github.com/boardstream/relay/internal/notify"
)

// MutationHandler adapts the dispatcher to the history stream: decode the
// entry into a mutation event and hand it off. Decode failures bubble up to
// the consumer, which drops the entry and keeps the stream moving.
func MutationHandler(dispatcher *Dispatcher) feed.HandlerFunc {
	return func(ctx context.Context, entry feed.Entry) error {
		var event board.Event
		if err := json.Unmarshal(entry.Value, &event); err != nil {
			return fmt.Errorf("fanout: decode mutation at cursor %d: %w", entry.Cursor, err)
		}
		return dispatcher.HandleMutation(ctx, event)
	}
}

// NotificationHandler adapts the dispatcher to the notification stream.
func NotificationHandler(dispatcher *Dispatcher) feed.HandlerFunc {
	return func(ctx context.Context, entry feed.Entry) error {
		var record notify.Record
		if err := json.Unmarshal(entry.Value, &record); err != nil {
			return fmt.Errorf("fanout: decode notification at cursor %d: %w", entry.Cursor, err)
		}
		return dispatcher.HandleNotification(ctx, record)
	}
}
