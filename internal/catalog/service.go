package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/warden-authz/warden/internal/shared"
)

// RepositoryPort defines data access methods for the role/permission graph.
// ReplacePermissions runs in a single transaction; all other mutations are
// single-row. Ad hoc junction writes are not part of the port, so pair
// uniqueness is enforced in one place.
type RepositoryPort interface {
	CreateRole(ctx context.Context, name, guard string, isDefault bool, createdBy *int64) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	FindRole(ctx context.Context, name, guard string) (Role, error)
	ListRoles(ctx context.Context, guard string) ([]Role, error)
	RenameRole(ctx context.Context, id int64, name string, updatedBy *int64) (Role, error)
	MarkRoleDeleted(ctx context.Context, id int64, deletedBy *int64) error
	MarkRoleRestored(ctx context.Context, id int64) error

	EnsurePermission(ctx context.Context, name, guard string) (Permission, bool, error)
	ListPermissions(ctx context.Context, guard string) ([]Permission, error)
	ListRolePermissionNames(ctx context.Context, roleID int64) ([]string, error)
	ReplacePermissions(ctx context.Context, roleID int64, guard string, names []string) error

	AssignRole(ctx context.Context, principalID, roleID int64) error
	RevokeRole(ctx context.Context, principalID, roleID int64) error
	ListRolesFor(ctx context.Context, principalID int64, guard string) ([]Role, error)
	ListPermissionNamesFor(ctx context.Context, principalID int64, guard string) ([]string, error)
}

// Invalidator is the explicit permission-cache invalidation hook. The authz
// package provides the redis-backed implementation; a nil invalidator is a
// no-op so seed scripts can run without redis.
type Invalidator interface {
	InvalidateCache(ctx context.Context) error
}

// AuditPort records catalog mutations. May be nil.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the role/permission graph and its invariants.
type Service struct {
	repo        RepositoryPort
	invalidator Invalidator
	audit       AuditPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, invalidator Invalidator, audit AuditPort) *Service {
	return &Service{repo: repo, invalidator: invalidator, audit: audit}
}

func (s *Service) record(ctx context.Context, action string, entityID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(entityID, 10),
	})
}

// CreateRole inserts a new role. Fails with ErrConflict when (name, guard)
// already exists.
func (s *Service) CreateRole(ctx context.Context, name, guard string, isDefault bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	if !ValidGuard(guard) {
		return Role{}, fmt.Errorf("%w: unknown guard %q", shared.ErrValidation, guard)
	}
	role, err := s.repo.CreateRole(ctx, name, guard, isDefault, actorRef(ctx))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "role.create", role.ID)
	return role, nil
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// FindRole fetches a role by its (name, guard) pair. Lookups are always
// scoped by guard, never by name alone.
func (s *Service) FindRole(ctx context.Context, name, guard string) (Role, error) {
	if !ValidGuard(guard) {
		return Role{}, fmt.Errorf("%w: unknown guard %q", shared.ErrValidation, guard)
	}
	return s.repo.FindRole(ctx, name, guard)
}

// ListRoles returns roles, optionally filtered by guard.
func (s *Service) ListRoles(ctx context.Context, guard string) ([]Role, error) {
	if guard != "" && !ValidGuard(guard) {
		return nil, fmt.Errorf("%w: unknown guard %q", shared.ErrValidation, guard)
	}
	return s.repo.ListRoles(ctx, guard)
}

// RenameRole changes a role's name within its guard. The is_default flag is
// immutable after creation.
func (s *Service) RenameRole(ctx context.Context, id int64, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	return s.repo.RenameRole(ctx, id, name, actorRef(ctx))
}

// DeleteRole soft-deletes a role and records the deleting principal. Default
// roles are protected: deletion fails with ErrProtected and leaves the role
// untouched.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsDefault {
		return fmt.Errorf("%w: default role %s cannot be deleted", shared.ErrProtected, role.Name)
	}
	if err := s.repo.MarkRoleDeleted(ctx, id, actorRef(ctx)); err != nil {
		return err
	}
	s.record(ctx, "role.delete", id)
	return s.invalidate(ctx)
}

// RestoreRole reverses a soft delete.
func (s *Service) RestoreRole(ctx context.Context, id int64) error {
	if err := s.repo.MarkRoleRestored(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "role.restore", id)
	return s.invalidate(ctx)
}

// EnsurePermission creates the permission when missing and reports whether it
// was created.
func (s *Service) EnsurePermission(ctx context.Context, name, guard string) (Permission, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, false, fmt.Errorf("%w: permission name required", shared.ErrValidation)
	}
	if !ValidGuard(guard) {
		return Permission{}, false, fmt.Errorf("%w: unknown guard %q", shared.ErrValidation, guard)
	}
	return s.repo.EnsurePermission(ctx, name, guard)
}

// ListPermissions returns permissions, optionally filtered by guard.
func (s *Service) ListPermissions(ctx context.Context, guard string) ([]Permission, error) {
	if guard != "" && !ValidGuard(guard) {
		return nil, fmt.Errorf("%w: unknown guard %q", shared.ErrValidation, guard)
	}
	return s.repo.ListPermissions(ctx, guard)
}

// ListRolePermissionNames returns the permission names attached to a role.
func (s *Service) ListRolePermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListRolePermissionNames(ctx, roleID)
}

// SyncPermissions replaces the role's entire permission set with exactly the
// given names: missing assignments are added, extra ones removed, in one
// transaction. Calling twice with the same set is a no-op on the second call.
func (s *Service) SyncPermissions(ctx context.Context, roleID int64, names []string) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	deduped := dedupe(names)
	if err := s.repo.ReplacePermissions(ctx, roleID, role.GuardName, deduped); err != nil {
		return err
	}
	s.record(ctx, "role.sync_permissions", role.ID)
	return s.invalidate(ctx)
}

// AssignRole assigns a role to a principal. Assigning twice is a no-op.
func (s *Service) AssignRole(ctx context.Context, principalID, roleID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, principalID, roleID); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

// RevokeRole removes a role from a principal.
func (s *Service) RevokeRole(ctx context.Context, principalID, roleID int64) error {
	if err := s.repo.RevokeRole(ctx, principalID, roleID); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

// RolesFor returns the roles assigned to a principal in the given guard.
func (s *Service) RolesFor(ctx context.Context, principalID int64, guard string) ([]Role, error) {
	if !ValidGuard(guard) {
		return nil, fmt.Errorf("%w: unknown guard %q", shared.ErrValidation, guard)
	}
	return s.repo.ListRolesFor(ctx, principalID, guard)
}

// HasRole reports whether the principal holds the named role in the guard.
func (s *Service) HasRole(ctx context.Context, principalID int64, name, guard string) (bool, error) {
	roles, err := s.RolesFor(ctx, principalID, guard)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// PermissionNamesFor returns the union of permission names granted by all of
// the principal's roles in the guard.
func (s *Service) PermissionNamesFor(ctx context.Context, principalID int64, guard string) ([]string, error) {
	if !ValidGuard(guard) {
		return nil, fmt.Errorf("%w: unknown guard %q", shared.ErrValidation, guard)
	}
	return s.repo.ListPermissionNamesFor(ctx, principalID, guard)
}

// InvalidateCache bumps the permission-cache version. Discovery calls this
// after a reconcile; mutations above call it implicitly.
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) error {
	if s.invalidator == nil {
		return nil
	}
	return s.invalidator.InvalidateCache(ctx)
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func actorRef(ctx context.Context) *int64 {
	if id := shared.ActorFromContext(ctx); id > 0 {
		return &id
	}
	return nil
}
