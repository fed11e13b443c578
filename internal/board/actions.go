package board

// ActionKind enumerates the closed set of board mutations the primary
// application commits to the history stream.
type ActionKind string

const (
	ActionAddList          ActionKind = "ADD_LIST"
	ActionChangeListTitle  ActionKind = "CHANGE_LIST_TITLE"
	ActionDeleteList       ActionKind = "DELETE_LIST"
	ActionAddCard          ActionKind = "ADD_CARD"
	ActionEditCard         ActionKind = "EDIT_CARD"
	ActionMoveCard         ActionKind = "MOVE_CARD"
	ActionDeleteCard       ActionKind = "DELETE_CARD"
	ActionAddComment       ActionKind = "ADD_COMMENT"
	ActionAddUser          ActionKind = "ADD_USER"
	ActionRemoveUser       ActionKind = "REMOVE_USER"
	ActionAssignUser       ActionKind = "ASSIGN_USER"
	ActionChangeBoardTitle ActionKind = "CHANGE_BOARD_TITLE"
	ActionChangeFilter     ActionKind = "CHANGE_FILTER"
	ActionToggleSocket     ActionKind = "TOGGLE_SOCKET"
	ActionEnterAsGuest     ActionKind = "ENTER_AS_GUEST"
	ActionChangeWatch      ActionKind = "CHANGE_WATCH"
)

// watchExemptActions are the low-signal mutations that do not notify a
// Watching member.
var watchExemptActions = map[ActionKind]struct{}{
	ActionToggleSocket: {},
	ActionEnterAsGuest: {},
	ActionChangeFilter: {},
	ActionChangeWatch:  {},
}

// notWatchingTriggerActions are the only mutations that notify a member whose
// watch mode is "Not watching". The asymmetry with watchExemptActions is
// intentional and load-bearing.
var notWatchingTriggerActions = map[ActionKind]struct{}{
	ActionAddUser:    {},
	ActionRemoveUser: {},
	ActionAssignUser: {},
}

// WatchExempt reports whether the action is excluded from Watching-member
// notifications.
func (a ActionKind) WatchExempt() bool {
	_, ok := watchExemptActions[a]
	return ok
}

// TriggersNotWatching reports whether the action notifies a "Not watching"
// member.
func (a ActionKind) TriggersNotWatching() bool {
	_, ok := notWatchingTriggerActions[a]
	return ok
}

// Known reports whether the action belongs to the closed enumeration.
func (a ActionKind) Known() bool {
	switch a {
	case ActionAddList, ActionChangeListTitle, ActionDeleteList,
		ActionAddCard, ActionEditCard, ActionMoveCard, ActionDeleteCard,
		ActionAddComment, ActionAddUser, ActionRemoveUser, ActionAssignUser,
		ActionChangeBoardTitle, ActionChangeFilter, ActionToggleSocket,
		ActionEnterAsGuest, ActionChangeWatch:
		return true
	}
	return false
}
