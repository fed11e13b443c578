// Package feed consumes the two ordered event streams the relay reacts to:
// the board mutation history and the notification log. Each stream is
// strictly ordered internally; nothing is guaranteed about interleaving
// across streams and downstream handlers must tolerate any.
package feed

import "context"

// Stream names. One Source instance serves exactly one stream.
const (
	StreamHistory       = "history"
	StreamNotifications = "notifications"
)

// Entry is one committed stream position. Value holds the document bytes;
// an empty Value (a deletion, a tombstone) is skipped by the consumer.
type Entry struct {
	Stream string
	Cursor int64
	Value  []byte
}

// HandlerFunc decodes and dispatches one entry. Returning an error drops the
// entry after logging; the stream keeps moving.
type HandlerFunc func(ctx context.Context, entry Entry) error

// Source yields one stream's entries in order. Run blocks until ctx is done
// or the source fails; it must not advance its checkpoint past an entry until
// emit has returned for it.
type Source interface {
	Run(ctx context.Context, emit func(ctx context.Context, entry Entry) error) error
}
