package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Resource names a capability domain subject to permission checks.
type Resource string

const (
	// ResourceAssets covers individually tracked assets.
	ResourceAssets Resource = "assets"
	// ResourceEquipment covers pooled equipment.
	ResourceEquipment Resource = "equipment"
	// ResourceConsumables covers consumable stock.
	ResourceConsumables Resource = "consumables"
	// ResourceLicenses covers license seat pools.
	ResourceLicenses Resource = "licenses"
	// ResourceUsers covers principal administration.
	ResourceUsers Resource = "users"
	// ResourceRoles covers role administration.
	ResourceRoles Resource = "roles"
	// ResourceActivity covers the activity feed.
	ResourceActivity Resource = "activity"
)

// Resources lists every known resource in a stable order.
func Resources() []Resource {
	return []Resource{
		ResourceAssets,
		ResourceEquipment,
		ResourceConsumables,
		ResourceLicenses,
		ResourceUsers,
		ResourceRoles,
		ResourceActivity,
	}
}

// Valid reports whether r is a known resource.
func (r Resource) Valid() bool {
	for _, known := range Resources() {
		if r == known {
			return true
		}
	}
	return false
}

// ParseResource converts a raw name into a Resource.
func ParseResource(raw string) (Resource, error) {
	r := Resource(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: resource %q", ErrUnknownPermission, raw)
	}
	return r, nil
}

// Action is one of the four verbs in a permission matrix.
type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionAdd    Action = "add"
	ActionDelete Action = "delete"
)

// Actions lists the supported actions.
func Actions() []Action {
	return []Action{ActionView, ActionEdit, ActionAdd, ActionDelete}
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionEdit, ActionAdd, ActionDelete:
		return true
	}
	return false
}

// ParseAction converts a raw verb into an Action.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: action %q", ErrUnknownPermission, raw)
	}
	return a, nil
}

// ActionSet holds the grants for a single resource.
type ActionSet struct {
	View   bool `json:"view"`
	Edit   bool `json:"edit"`
	Add    bool `json:"add"`
	Delete bool `json:"delete"`
}

// Allows reports whether the set grants action.
func (s ActionSet) Allows(action Action) bool {
	switch action {
	case ActionView:
		return s.View
	case ActionEdit:
		return s.Edit
	case ActionAdd:
		return s.Add
	case ActionDelete:
		return s.Delete
	}
	return false
}

func (s *ActionSet) set(action Action, granted bool) {
	switch action {
	case ActionView:
		s.View = granted
	case ActionEdit:
		s.Edit = granted
	case ActionAdd:
		s.Add = granted
	case ActionDelete:
		s.Delete = granted
	}
}

// Matrix maps resources to their granted actions. A nil Matrix means no
// permissions are configured at all.
type Matrix map[Resource]ActionSet

// ErrUnknownPermission is returned when a matrix names an unknown resource or action.
var ErrUnknownPermission = errors.New("rbac: unknown resource or action")

// ParseMatrix validates a raw matrix as stored in role records. Unknown
// resource or action names are rejected rather than silently ignored.
func ParseMatrix(raw map[string]map[string]bool) (Matrix, error) {
	if raw == nil {
		return nil, nil
	}
	m := make(Matrix, len(raw))
	for rawResource, actions := range raw {
		resource, err := ParseResource(rawResource)
		if err != nil {
			return nil, err
		}
		set := m[resource]
		for rawAction, granted := range actions {
			action, err := ParseAction(rawAction)
			if err != nil {
				return nil, err
			}
			set.set(action, granted)
		}
		m[resource] = set
	}
	return m, nil
}

// Raw converts the matrix back into its storage representation.
func (m Matrix) Raw() map[string]map[string]bool {
	if m == nil {
		return nil
	}
	raw := make(map[string]map[string]bool, len(m))
	for resource, set := range m {
		actions := make(map[string]bool, 4)
		for _, action := range Actions() {
			actions[string(action)] = set.Allows(action)
		}
		raw[string(resource)] = actions
	}
	return raw
}

// Grants flattens the matrix into sorted "resource.action" names.
func (m Matrix) Grants() []string {
	var out []string
	for resource, set := range m {
		for _, action := range Actions() {
			if set.Allows(action) {
				out = append(out, string(resource)+"."+string(action))
			}
		}
	}
	sort.Strings(out)
	return out
}

// FullMatrix grants every action on every known resource.
func FullMatrix() Matrix {
	m := make(Matrix, len(Resources()))
	for _, r := range Resources() {
		m[r] = ActionSet{View: true, Edit: true, Add: true, Delete: true}
	}
	return m
}

// Principal is the authoritative record of an actor's privilege.
type Principal struct {
	ID       int64
	Username string
	IsAdmin  bool
	RoleID   *int64
}

// Role groups a permission matrix under a name.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions Matrix
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DenyReason identifies why a request was refused.
type DenyReason string

const (
	DenyUnknownPrincipal     DenyReason = "unknown_principal"
	DenyNoRolePermissions    DenyReason = "no_role_permissions"
	DenyResourceNotPermitted DenyReason = "resource_not_permitted"
	DenyActionNotPermitted   DenyReason = "action_not_permitted"
)

var denyMessages = map[DenyReason]string{
	DenyUnknownPrincipal:     "unknown principal",
	DenyNoRolePermissions:    "no role permissions configured",
	DenyResourceNotPermitted: "resource not permitted",
	DenyActionNotPermitted:   "action not permitted",
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a refusing decision with the given reason.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Message returns the human readable reason, empty when allowed.
func (d Decision) Message() string {
	if d.Allowed {
		return ""
	}
	return denyMessages[d.Reason]
}

func (d Decision) String() string {
	if d.Allowed {
		return "allow"
	}
	return "deny(" + d.Message() + ")"
}
