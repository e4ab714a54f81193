package roles

import "errors"

// CreateInput defines a role. Permissions uses the stored shape
// resource -> action -> granted.
type CreateInput struct {
	Name        string `validate:"required,max=100"`
	Description string `validate:"max=500"`
	Permissions map[string]map[string]bool
}

// UpdateInput replaces the permission matrix of a role.
type UpdateInput struct {
	Permissions map[string]map[string]bool
}

var (
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("roles: invalid input")
	// ErrDuplicateName rejects a role name that is already taken.
	ErrDuplicateName = errors.New("roles: name already exists")
)
