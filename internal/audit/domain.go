package audit

import "time"

// Action names a state-changing operation recorded in the activity log.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionCheckout  Action = "checkout"
	ActionCheckin   Action = "checkin"
	ActionTag       Action = "tag"
	ActionOverdue   Action = "overdue"
	ActionAssign    Action = "assign"
	ActionUnassign  Action = "unassign"
	ActionAdjust    Action = "adjust"
	ActionPrivilege Action = "privilege"
)

// Item types used across the engine.
const (
	ItemAsset     = "asset"
	ItemPool      = "pool"
	ItemPrincipal = "principal"
	ItemRole      = "role"
)

// Entry is a record to append. UserID is the acting principal, nil for
// system actions.
type Entry struct {
	Action   Action
	ItemType string
	ItemID   int64
	UserID   *int64
	Notes    string
	At       time.Time
}

// Record is a persisted activity row. UserID becomes nil once the
// referenced principal is deleted.
type Record struct {
	ID       int64
	Action   Action
	ItemType string
	ItemID   int64
	UserID   *int64
	At       time.Time
	Notes    string
}

// Filter narrows List results.
type Filter struct {
	ItemType string
	ItemID   int64
	UserID   int64
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo carries page metadata for List.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Page is one window of the activity feed.
type Page struct {
	Records []Record
	Paging  PagingInfo
}

// DeletedUserNote is appended to notes of records whose principal was removed.
func DeletedUserNote(username string) string {
	return "[User deleted: " + username + "]"
}

// Actor returns a pointer suitable for Entry.UserID; zero means system.
func Actor(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
