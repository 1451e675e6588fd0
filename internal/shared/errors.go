package shared

import "errors"

var (
	// ErrNotFound indicates the referenced principal, role, permission or
	// workspace does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation, e.g. a duplicate email or a
	// duplicate (name, guard) pair.
	ErrConflict = errors.New("conflict")
	// ErrProtected indicates an attempted mutation of a protected entity, e.g.
	// deleting a default role or editing a super-admin principal.
	ErrProtected = errors.New("protected entity")
	// ErrValidation indicates malformed input, e.g. an unknown guard name.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
