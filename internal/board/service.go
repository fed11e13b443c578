package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrBoardNotFound indicates the referenced board no longer exists.
var ErrBoardNotFound = errors.New("board: not found")

// ServiceConfig describes the dependencies required for board lookups.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service reads boards and appends mutation events on behalf of the ingest
// surface. Board rows themselves are owned by the primary application.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the board service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("board: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// BoardByID fetches one board with its full member list.
func (s *Service) BoardByID(ctx context.Context, id string) (Board, error) {
	boardID, err := NewBoardID(id)
	if err != nil {
		return Board{}, err
	}
	var record Board
	err = s.db.WithContext(ctx).
		Preload("Members").
		Where("board_id = ?", boardID.String()).
		Take(&record).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Board{}, fmt.Errorf("%w: %s", ErrBoardNotFound, boardID)
	}
	if err != nil {
		return Board{}, fmt.Errorf("board: fetch %s: %w", boardID, err)
	}
	return record, nil
}

// AppendEvent stores one mutation event as the next entry of the history
// changelog. The assigned sequence number is written back into the event.
func (s *Service) AppendEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("board: event required")
	}
	if event.ActorID == "" {
		return fmt.Errorf("%w: empty actor", ErrInvalidUserID)
	}
	if !event.Action.Known() {
		return fmt.Errorf("board: unknown action %q", event.Action)
	}
	if event.CreatedAtSeconds == 0 {
		event.CreatedAtSeconds = s.now().UTC().Unix()
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("board: append event: %w", err)
	}
	return nil
}
