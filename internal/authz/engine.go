package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/warden-authz/warden/internal/catalog"
	"github.com/warden-authz/warden/internal/shared"
)

// ResourceKind tags the entity a permission check is scoped to.
type ResourceKind string

// Resource kinds carrying hard-coded protection rules.
const (
	ResourceRole      ResourceKind = "role"
	ResourcePrincipal ResourceKind = "principal"
)

// Resource references a concrete entity instance for a scoped check. A tagged
// kind+ID pair, never a reflective reference.
type Resource struct {
	Kind ResourceKind
	ID   int64
}

// CatalogPort is the slice of the catalog the engine consults.
type CatalogPort interface {
	GetRole(ctx context.Context, id int64) (catalog.Role, error)
	HasRole(ctx context.Context, principalID int64, name, guard string) (bool, error)
	PermissionNamesFor(ctx context.Context, principalID int64, guard string) ([]string, error)
}

// IdentityPort is the slice of the identity store the engine consults.
type IdentityPort interface {
	HasMembership(ctx context.Context, principalID, workspaceID int64) (bool, error)
}

// Engine renders allow/deny decisions. Denial is a plain false, never an
// error; only malformed input raises ErrValidation.
type Engine struct {
	catalog        CatalogPort
	identity       IdentityPort
	cache          *PermissionCache
	superAdminRole string
}

// NewEngine builds an Engine. superAdminRole defaults to the seeded
// super_admin role when empty. A nil cache means every check hits the catalog.
func NewEngine(cat CatalogPort, ident IdentityPort, cache *PermissionCache, superAdminRole string) *Engine {
	if superAdminRole == "" {
		superAdminRole = catalog.RoleSuperAdmin
	}
	return &Engine{catalog: cat, identity: ident, cache: cache, superAdminRole: superAdminRole}
}

// Can decides whether the principal may perform the named permission in the
// guard, optionally scoped to a resource instance. The check order is
// significant:
//
//  1. super-admin bypass, before everything else;
//  2. default-role protection (update/delete on a default role is denied no
//     matter what is granted);
//  3. super-admin principal protection (a super-admin account cannot be
//     modified through permission grants);
//  4. the generic grant check against the principal's effective set.
func (e *Engine) Can(ctx context.Context, principalID int64, permission, guard string, resource *Resource) (bool, error) {
	if principalID <= 0 {
		return false, fmt.Errorf("%w: principal required", shared.ErrValidation)
	}
	if strings.TrimSpace(permission) == "" {
		return false, fmt.Errorf("%w: permission name required", shared.ErrValidation)
	}
	if !catalog.ValidGuard(guard) {
		return false, fmt.Errorf("%w: unknown guard %q", shared.ErrValidation, guard)
	}

	isSuper, err := e.catalog.HasRole(ctx, principalID, e.superAdminRole, guard)
	if err != nil {
		return false, err
	}
	if isSuper {
		return true, nil
	}

	if resource != nil {
		denied, err := e.resourceProtected(ctx, permission, guard, resource)
		if err != nil {
			return false, err
		}
		if denied {
			return false, nil
		}
	}

	names, err := e.permissionNames(ctx, principalID, guard)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == permission {
			return true, nil
		}
	}
	return false, nil
}

// CanAccessTenant reports whether the principal is a member of the workspace.
func (e *Engine) CanAccessTenant(ctx context.Context, principalID, workspaceID int64) (bool, error) {
	if principalID <= 0 || workspaceID <= 0 {
		return false, fmt.Errorf("%w: principal and workspace required", shared.ErrValidation)
	}
	return e.identity.HasMembership(ctx, principalID, workspaceID)
}

func (e *Engine) resourceProtected(ctx context.Context, permission, guard string, resource *Resource) (bool, error) {
	action := actionOf(permission)
	switch resource.Kind {
	case ResourceRole:
		if !roleProtectedActions[action] {
			return false, nil
		}
		role, err := e.catalog.GetRole(ctx, resource.ID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return role.IsDefault, nil
	case ResourcePrincipal:
		if !principalProtectedActions[action] {
			return false, nil
		}
		return e.catalog.HasRole(ctx, resource.ID, e.superAdminRole, guard)
	default:
		return false, fmt.Errorf("%w: unknown resource kind %q", shared.ErrValidation, resource.Kind)
	}
}

func (e *Engine) permissionNames(ctx context.Context, principalID int64, guard string) ([]string, error) {
	loader := func(ctx context.Context) ([]string, error) {
		return e.catalog.PermissionNamesFor(ctx, principalID, guard)
	}
	if e.cache == nil {
		return loader(ctx)
	}
	return e.cache.FetchNames(ctx, principalID, guard, loader)
}

// roleProtectedActions lists action prefixes denied on default roles.
var roleProtectedActions = map[string]bool{
	"update":           true,
	"delete":           true,
	"delete_any":       true,
	"force_delete":     true,
	"force_delete_any": true,
}

// principalProtectedActions lists action prefixes denied on super-admin
// principals: they cannot be demoted, removed, restored or cloned by a lesser
// role.
var principalProtectedActions = map[string]bool{
	"update":           true,
	"delete":           true,
	"delete_any":       true,
	"force_delete":     true,
	"force_delete_any": true,
	"restore":          true,
	"restore_any":      true,
	"replicate":        true,
}

// actionPrefixes holds the canonical prefixes, longest first so
// "force_delete_any" wins over "force_delete" and "delete".
var actionPrefixes = []string{
	"force_delete_any",
	"force_delete",
	"restore_any",
	"restore",
	"delete_any",
	"delete",
	"view_any",
	"view",
	"create",
	"update",
	"replicate",
	"reorder",
}

// actionOf extracts the action prefix from a permission name like
// "delete_any_role". Returns the whole name when no prefix matches (direct
// permissions such as "access_admin_panel").
func actionOf(permission string) string {
	for _, prefix := range actionPrefixes {
		if permission == prefix || strings.HasPrefix(permission, prefix+"_") {
			return prefix
		}
	}
	return permission
}
