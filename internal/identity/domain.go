package identity

import "time"

// Principal represents an authenticated user account.
type Principal struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	CreatedBy    *int64
	UpdatedBy    *int64
	DeletedBy    *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// IsDeleted reports whether the principal is tombstoned.
func (p Principal) IsDeleted() bool {
	return p.DeletedAt != nil
}

// Workspace is a tenant boundary principals can belong to.
type Workspace struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}
