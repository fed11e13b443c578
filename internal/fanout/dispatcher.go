// Package fanout resolves recipients for observed stream events and pushes
// live messages to their connections.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/boardstream/relay/internal/board"
	"github.com/boardstream/relay/internal/metrics"
	"github.com/boardstream/relay/internal/notify"
	"github.com/boardstream/relay/internal/policy"
	"github.com/boardstream/relay/internal/presence"
)

var (
	errMissingRegistry      = errors.New("fanout: presence registry required")
	errMissingBoards        = errors.New("fanout: board lookup required")
	errMissingProfiles      = errors.New("fanout: profile lookup required")
	errMissingNotifications = errors.New("fanout: notification store required")
)

// BoardLookup fetches a board with its member list.
type BoardLookup interface {
	BoardByID(ctx context.Context, id string) (board.Board, error)
}

// DisplayNameLookup resolves a user id to a display name.
type DisplayNameLookup interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// NotificationAppender persists notification records.
type NotificationAppender interface {
	Append(ctx context.Context, record notify.Record) error
}

// DispatcherConfig describes the dispatcher's collaborators.
type DispatcherConfig struct {
	Registry      *presence.Registry
	Boards        BoardLookup
	Profiles      DisplayNameLookup
	Notifications NotificationAppender
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Dispatcher handles decoded stream events one at a time per stream. It holds
// no state across events; ordering comes from the feed consumers.
type Dispatcher struct {
	registry      *presence.Registry
	boards        BoardLookup
	profiles      DisplayNameLookup
	notifications NotificationAppender
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// NewDispatcher constructs the dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	if cfg.Boards == nil {
		return nil, errMissingBoards
	}
	if cfg.Profiles == nil {
		return nil, errMissingProfiles
	}
	if cfg.Notifications == nil {
		return nil, errMissingNotifications
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry:      cfg.Registry,
		boards:        cfg.Boards,
		profiles:      cfg.Profiles,
		notifications: cfg.Notifications,
		logger:        logger,
		metrics:       cfg.Metrics,
	}, nil
}

// HandleMutation fans one committed mutation out to the board's members:
// a historyItem to every member connection, a change to every member
// connection except the originating one, and a policy-gated notification
// record per member.
func (d *Dispatcher) HandleMutation(ctx context.Context, event board.Event) error {
	if event.BoardID == "" {
		// Non-board-scoped mutations have no delivery path.
		d.logger.Debug("mutation without board scope", zap.String("event", event.EventID))
		return nil
	}

	// Board and profile reads happen before any registry access so no
	// blocking I/O ever runs under the registry lock.
	boardRecord, err := d.boards.BoardByID(ctx, event.BoardID)
	if errors.Is(err, board.ErrBoardNotFound) {
		d.logger.Warn("mutation references missing board",
			zap.String("event", event.EventID),
			zap.String("board", event.BoardID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("fanout: board lookup for event %s: %w", event.EventID, err)
	}

	recipients := dedupMembers(boardRecord.Members)

	historyItem := Envelope{Type: MessageHistoryItem, Payload: HistoryItemPayload{
		Action:           event.Action,
		BoardID:          event.BoardID,
		ActorID:          event.ActorID,
		CreatedAtSeconds: event.CreatedAtSeconds,
	}}
	change := Envelope{Type: MessageChange, Payload: ChangePayload{
		Action:  event.Action,
		Payload: json.RawMessage(event.PayloadJSON),
	}}

	for _, member := range recipients {
		for _, conn := range d.registry.ConnectionsFor(member.UserID) {
			d.send(conn, historyItem)
			if conn.SessionID() != event.OriginConnectionID {
				d.send(conn, change)
			}
		}
	}

	d.persistNotifications(ctx, event, boardRecord, recipients)
	return nil
}

// HandleNotification delivers one observed notification record to every live
// connection of its recipient. No echo suppression applies here.
func (d *Dispatcher) HandleNotification(ctx context.Context, record notify.Record) error {
	envelope := Envelope{Type: MessageNotification, Payload: record}
	for _, conn := range d.registry.ConnectionsFor(record.RecipientID) {
		d.send(conn, envelope)
	}
	return nil
}

func (d *Dispatcher) persistNotifications(ctx context.Context, event board.Event, boardRecord board.Board, recipients []board.Member) {
	actorName := ""
	for _, member := range recipients {
		if !policy.ShouldNotify(member.UserID, event.Action, member.WatchMode, event.ActorID) {
			continue
		}
		if actorName == "" {
			actorName = d.resolveActorName(ctx, event)
		}
		record := notify.Record{
			RecipientID:      member.UserID,
			Action:           event.Action,
			BoardID:          boardRecord.ID,
			BoardTitle:       boardRecord.Title,
			ActorDisplayName: actorName,
		}
		if err := d.notifications.Append(ctx, record); err != nil {
			d.logger.Error("failed to persist notification",
				zap.String("event", event.EventID),
				zap.String("recipient", member.UserID),
				zap.Error(err))
			continue
		}
		if d.metrics != nil {
			d.metrics.NotificationsPersisted.Inc()
		}
	}
}

// resolveActorName snapshots the actor's display name at write time, falling
// back to the raw actor id when no profile is available.
func (d *Dispatcher) resolveActorName(ctx context.Context, event board.Event) string {
	name, err := d.profiles.DisplayName(ctx, event.ActorID)
	if err != nil {
		d.logger.Warn("actor display name unavailable",
			zap.String("actor", event.ActorID),
			zap.Error(err))
		return event.ActorID
	}
	return name
}

// send pushes fire-and-forget: a failed send means the connection is no
// longer deliverable and its disconnect will clean the registry shortly.
func (d *Dispatcher) send(conn presence.Conn, envelope Envelope) {
	if err := conn.Send(envelope); err != nil {
		d.logger.Debug("dropping send to dead connection",
			zap.String("session", conn.SessionID()),
			zap.String("type", envelope.Type))
		return
	}
	if d.metrics != nil {
		d.metrics.MessagesDelivered.WithLabelValues(envelope.Type).Inc()
	}
}

// dedupMembers collapses duplicate identity entries; the first occurrence's
// watch mode wins.
func dedupMembers(members []board.Member) []board.Member {
	seen := make(map[string]struct{}, len(members))
	deduped := make([]board.Member, 0, len(members))
	for _, member := range members {
		if member.UserID == "" {
			continue
		}
		if _, ok := seen[member.UserID]; ok {
			continue
		}
		seen[member.UserID] = struct{}{}
		deduped = append(deduped, member)
	}
	return deduped
}
