// Package policy decides whether a board mutation materializes a notification
// for one recipient. The decision is pure: no I/O, no clock, no state.
package policy

import "github.com/boardstream/relay/internal/board"

// ShouldNotify reports whether a notification record should be written for
// recipientID in reaction to a mutation of kind action performed by actorID.
//
// Rules, evaluated in order:
//  1. actors are never notified of their own actions
//  2. Ignoring members are never notified
//  3. Watching members are notified of everything except the watch-exempt
//     actions (socket toggles, guest entry, filter and watch-mode changes)
//  4. "Not watching" members are notified only of membership and assignment
//     actions
//
// The Watching/Not-watching polarity reads inverted at first sight but matches
// the product behavior; keep it as is.
func ShouldNotify(recipientID string, action board.ActionKind, mode board.WatchMode, actorID string) bool {
	if recipientID == actorID {
		return false
	}
	switch mode {
	case board.WatchModeIgnoring:
		return false
	case board.WatchModeWatching:
		return !action.WatchExempt()
	case board.WatchModeNotWatching:
		return action.TriggersNotWatching()
	}
	return false
}
