package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrRecordNotFound indicates the referenced notification does not exist or
// belongs to another recipient.
var ErrRecordNotFound = errors.New("notify: record not found")

// Publisher mirrors appended records onto an external notification stream.
// The changelog feed driver needs no publisher; appended rows are the stream.
type Publisher interface {
	PublishNotification(ctx context.Context, record Record) error
}

// StoreConfig describes the dependencies of the notification store.
type StoreConfig struct {
	Database *gorm.DB
	// Publisher is optional; set when the Kafka feed driver is active.
	Publisher Publisher
	Clock     func() time.Time
}

// Store is the durable, append-only notification collection. Appends are
// observed by the notification feed consumer, which closes the
// persist-then-redeliver loop.
type Store struct {
	db        *gorm.DB
	publisher Publisher
	now       func() time.Time
}

// NewStore constructs the notification store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("notify: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: cfg.Database, publisher: cfg.Publisher, now: clock}, nil
}

// Append persists one notification record and, when a publisher is
// configured, produces it onto the notification stream. The record's id,
// timestamp and seen flag are assigned here.
func (s *Store) Append(ctx context.Context, record Record) error {
	if record.RecipientID == "" {
		return fmt.Errorf("notify: recipient required")
	}
	recordID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("notify: issue record id: %w", err)
	}
	record.ID = recordID.String()
	record.Seen = false
	record.CreatedAtSeconds = s.now().UTC().Unix()

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("notify: append record: %w", err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishNotification(ctx, record); err != nil {
			return fmt.Errorf("notify: publish record %s: %w", record.ID, err)
		}
	}
	return nil
}

// ListForRecipient returns the recipient's notifications, newest first.
func (s *Store) ListForRecipient(ctx context.Context, recipientID string) ([]Record, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("notify: recipient required")
	}
	var records []Record
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("seq DESC").
		Find(&records).
		Error
	if err != nil {
		return nil, fmt.Errorf("notify: list for %s: %w", recipientID, err)
	}
	return records, nil
}

// MarkSeen flips the seen flag on one of the recipient's records.
func (s *Store) MarkSeen(ctx context.Context, recordID, recipientID string) error {
	if recordID == "" || recipientID == "" {
		return fmt.Errorf("notify: record id and recipient required")
	}
	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("notification_id = ? AND recipient_id = ?", recordID, recipientID).
		Update("seen", true)
	if result.Error != nil {
		return fmt.Errorf("notify: mark seen %s: %w", recordID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}
	return nil
}
