package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/warden-authz/warden/internal/catalog"
	"github.com/warden-authz/warden/internal/shared"
)

// Direct permissions that do not map to a managed resource.
const (
	PermAccessAdminPanel = "access_admin_panel"
	PermAccessAppPanel   = "access_app_panel"
)

// SeedRole pairs a role with its curated permission subset. The bootstrap
// mapping is configuration data, not logic.
type SeedRole struct {
	Name        string
	Guard       string
	IsDefault   bool
	Permissions []string
}

// DefaultDescriptors declares the resources the admin surface manages.
func DefaultDescriptors() []ResourceDescriptor {
	return []ResourceDescriptor{
		{Resource: "role", Actions: ExtendedActions},
		{Resource: "user", Actions: ExtendedActions},
		{Resource: "workspace", Actions: CoreActions},
	}
}

// DefaultDirectPermissions lists the ad hoc permissions reconciled alongside
// the derived set.
func DefaultDirectPermissions() []string {
	return []string{PermAccessAdminPanel, PermAccessAppPanel}
}

// DefaultSeedRoles returns the fixed bootstrap table: the full admin grant
// for super_admin and admin, panel access only for authenticated. All three
// are default roles and therefore protected from deletion.
func DefaultSeedRoles() []SeedRole {
	adminPermissions := DerivePermissionNames(DefaultDescriptors())
	adminPermissions = append(adminPermissions, PermAccessAdminPanel, PermAccessAppPanel)

	return []SeedRole{
		{Name: catalog.RoleSuperAdmin, Guard: catalog.GuardWeb, IsDefault: true, Permissions: adminPermissions},
		{Name: catalog.RoleAdmin, Guard: catalog.GuardWeb, IsDefault: true, Permissions: adminPermissions},
		{Name: catalog.RoleAuthenticated, Guard: catalog.GuardWeb, IsDefault: true, Permissions: []string{PermAccessAppPanel}},
	}
}

// Bootstrap reconciles the catalog and installs the seed roles with their
// permission sets. Safe to run repeatedly.
func (s *Syncer) Bootstrap(ctx context.Context, descriptors []ResourceDescriptor, direct []string, seedRoles []SeedRole) error {
	guards := make(map[string]struct{})
	for _, sr := range seedRoles {
		guards[sr.Guard] = struct{}{}
	}
	for guard := range guards {
		if _, err := s.Reconcile(ctx, descriptors, direct, guard); err != nil {
			return err
		}
	}

	for _, sr := range seedRoles {
		role, err := s.catalog.FindRole(ctx, sr.Name, sr.Guard)
		if errors.Is(err, shared.ErrNotFound) {
			role, err = s.catalog.CreateRole(ctx, sr.Name, sr.Guard, sr.IsDefault)
		}
		if err != nil {
			return fmt.Errorf("discovery: seed role %s/%s: %w", sr.Name, sr.Guard, err)
		}
		for _, perm := range sr.Permissions {
			if _, _, err := s.catalog.EnsurePermission(ctx, perm, sr.Guard); err != nil {
				return err
			}
		}
		if err := s.catalog.SyncPermissions(ctx, role.ID, sr.Permissions); err != nil {
			return fmt.Errorf("discovery: sync role %s/%s: %w", sr.Name, sr.Guard, err)
		}
	}
	return s.catalog.InvalidateCache(ctx)
}
