package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/boardstream/relay/internal/board"
	"github.com/boardstream/relay/internal/notify"
)

const changelogBatchLimit = 100

// Checkpoint stores the last emitted cursor per stream so a restarted relay
// resumes where it left off instead of replaying or dropping entries.
type Checkpoint struct {
	Stream           string `gorm:"column:stream;primaryKey;size:64;not null"`
	Cursor           int64  `gorm:"column:cursor;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Checkpoint) TableName() string {
	return "feed_checkpoints"
}

// ChangelogConfig describes one database-backed stream tailer.
type ChangelogConfig struct {
	Database *gorm.DB
	// Stream selects the table to tail: StreamHistory tails board_events,
	// StreamNotifications tails notifications.
	Stream       string
	PollInterval time.Duration
	Clock        func() time.Time
}

// Changelog tails an append-only table in sequence order. It is the default
// feed driver: the table the dispatcher (or the primary application) writes
// is itself the ordered stream, so a crash between persisting and delivering
// leaves the entry queued for redelivery on the next poll.
type Changelog struct {
	db       *gorm.DB
	stream   string
	interval time.Duration
	now      func() time.Time
	fetch    func(ctx context.Context, afterSeq int64, limit int) ([]Entry, error)
}

// NewChangelog constructs a tailer for one stream.
func NewChangelog(cfg ChangelogConfig) (*Changelog, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("feed: database connection required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("feed: poll interval must be positive")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	tailer := &Changelog{
		db:       cfg.Database,
		stream:   cfg.Stream,
		interval: cfg.PollInterval,
		now:      clock,
	}
	switch cfg.Stream {
	case StreamHistory:
		tailer.fetch = tailer.fetchEvents
	case StreamNotifications:
		tailer.fetch = tailer.fetchNotifications
	default:
		return nil, fmt.Errorf("feed: unknown stream %q", cfg.Stream)
	}
	return tailer, nil
}

// Run tails the table until ctx is cancelled, emitting rows in seq order and
// persisting the checkpoint after each emitted entry.
func (c *Changelog) Run(ctx context.Context, emit func(ctx context.Context, entry Entry) error) error {
	cursor, err := c.loadCheckpoint(ctx)
	if err != nil {
		return err
	}
	for {
		entries, err := c.fetch(ctx, cursor, changelogBatchLimit)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := emit(ctx, entry); err != nil {
				return err
			}
			cursor = entry.Cursor
			if err := c.saveCheckpoint(cursor); err != nil {
				return err
			}
		}
		if len(entries) == changelogBatchLimit {
			// More rows are likely waiting; drain before sleeping.
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.interval):
		}
	}
}

func (c *Changelog) fetchEvents(ctx context.Context, afterSeq int64, limit int) ([]Entry, error) {
	var rows []board.Event
	err := c.db.WithContext(ctx).
		Where("seq > ?", afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, fmt.Errorf("feed: fetch board events after %d: %w", afterSeq, err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		value, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("feed: encode event %s: %w", row.EventID, err)
		}
		entries = append(entries, Entry{Stream: c.stream, Cursor: row.Seq, Value: value})
	}
	return entries, nil
}

func (c *Changelog) fetchNotifications(ctx context.Context, afterSeq int64, limit int) ([]Entry, error) {
	var rows []notify.Record
	err := c.db.WithContext(ctx).
		Where("seq > ?", afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, fmt.Errorf("feed: fetch notifications after %d: %w", afterSeq, err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		value, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("feed: encode notification %s: %w", row.ID, err)
		}
		entries = append(entries, Entry{Stream: c.stream, Cursor: row.Seq, Value: value})
	}
	return entries, nil
}

func (c *Changelog) loadCheckpoint(ctx context.Context) (int64, error) {
	var checkpoint Checkpoint
	err := c.db.WithContext(ctx).
		Where("stream = ?", c.stream).
		Take(&checkpoint).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("feed: load checkpoint for %s: %w", c.stream, err)
	}
	return checkpoint.Cursor, nil
}

// saveCheckpoint intentionally ignores the loop context: an entry handled
// just before shutdown must still advance the checkpoint or it would be
// replayed on the next start.
func (c *Changelog) saveCheckpoint(cursor int64) error {
	checkpoint := Checkpoint{
		Stream:           c.stream,
		Cursor:           cursor,
		UpdatedAtSeconds: c.now().UTC().Unix(),
	}
	err := c.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stream"}},
			DoUpdates: clause.AssignmentColumns([]string{"cursor", "updated_at_s"}),
		}).
		Create(&checkpoint).
		Error
	if err != nil {
		return fmt.Errorf("feed: save checkpoint for %s: %w", c.stream, err)
	}
	return nil
}
