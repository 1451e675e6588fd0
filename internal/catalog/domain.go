package catalog

import "time"

// Guard names partition roles and permissions per authentication context. The
// same role name under two guards is two distinct roles.
const (
	GuardWeb = "web"
	GuardAPI = "api"
)

// KnownGuards lists the guards this deployment recognises.
var KnownGuards = []string{GuardWeb, GuardAPI}

// Seed role names.
const (
	RoleSuperAdmin    = "super_admin"
	RoleAdmin         = "admin"
	RoleAuthenticated = "authenticated"
)

// Role represents a named permission grouping within a guard.
type Role struct {
	ID        int64
	Name      string
	GuardName string
	// IsDefault marks roles the system structurally requires. Default roles
	// cannot be deleted.
	IsDefault bool
	CreatedBy *int64
	UpdatedBy *int64
	DeletedBy *int64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Permission represents an atomic capability within a guard.
type Permission struct {
	ID        int64
	Name      string
	GuardName string
	CreatedAt time.Time
}

// ValidGuard reports whether guard is recognised.
func ValidGuard(guard string) bool {
	for _, g := range KnownGuards {
		if g == guard {
			return true
		}
	}
	return false
}
