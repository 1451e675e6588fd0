package discovery

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warden-authz/warden/internal/catalog"
	"github.com/warden-authz/warden/internal/shared"
)

type memoryCatalog struct {
	permissions map[string]catalog.Permission // "name/guard"
	roles       map[string]catalog.Role       // "name/guard"
	rolePerms   map[int64][]string
	nextID      int64
	invalidated int
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		permissions: make(map[string]catalog.Permission),
		roles:       make(map[string]catalog.Role),
		rolePerms:   make(map[int64][]string),
	}
}

func (m *memoryCatalog) EnsurePermission(ctx context.Context, name, guard string) (catalog.Permission, bool, error) {
	key := name + "/" + guard
	if p, ok := m.permissions[key]; ok {
		return p, false, nil
	}
	m.nextID++
	p := catalog.Permission{ID: m.nextID, Name: name, GuardName: guard}
	m.permissions[key] = p
	return p, true, nil
}

func (m *memoryCatalog) FindRole(ctx context.Context, name, guard string) (catalog.Role, error) {
	if r, ok := m.roles[name+"/"+guard]; ok {
		return r, nil
	}
	return catalog.Role{}, shared.ErrNotFound
}

func (m *memoryCatalog) CreateRole(ctx context.Context, name, guard string, isDefault bool) (catalog.Role, error) {
	key := name + "/" + guard
	if _, ok := m.roles[key]; ok {
		return catalog.Role{}, shared.ErrConflict
	}
	m.nextID++
	r := catalog.Role{ID: m.nextID, Name: name, GuardName: guard, IsDefault: isDefault}
	m.roles[key] = r
	return r, nil
}

func (m *memoryCatalog) SyncPermissions(ctx context.Context, roleID int64, names []string) error {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	m.rolePerms[roleID] = sorted
	return nil
}

func (m *memoryCatalog) InvalidateCache(ctx context.Context) error {
	m.invalidated++
	return nil
}

func TestReconcileCreatesDerivedNames(t *testing.T) {
	cat := newMemoryCatalog()
	syncer := NewSyncer(cat, nil)
	ctx := context.Background()

	descriptors := []ResourceDescriptor{
		{Resource: "post", Actions: []Action{ActionView, ActionCreate}},
	}

	result, err := syncer.Reconcile(ctx, descriptors, nil, catalog.GuardWeb)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"view_post", "create_post"}, result.Created)
	require.Empty(t, result.Unchanged)
	require.Equal(t, 1, cat.invalidated)
}

func TestReconcileIdempotent(t *testing.T) {
	cat := newMemoryCatalog()
	syncer := NewSyncer(cat, nil)
	ctx := context.Background()

	descriptors := []ResourceDescriptor{
		{Resource: "post", Actions: []Action{ActionView, ActionCreate}},
	}

	_, err := syncer.Reconcile(ctx, descriptors, []string{"access_admin_panel"}, catalog.GuardWeb)
	require.NoError(t, err)

	// Second run with identical inputs creates nothing and skips invalidation.
	result, err := syncer.Reconcile(ctx, descriptors, []string{"access_admin_panel"}, catalog.GuardWeb)
	require.NoError(t, err)
	require.Empty(t, result.Created)
	require.ElementsMatch(t, []string{"view_post", "create_post", "access_admin_panel"}, result.Unchanged)
	require.Equal(t, 1, cat.invalidated)
}

func TestReconcileNonDestructive(t *testing.T) {
	cat := newMemoryCatalog()
	syncer := NewSyncer(cat, nil)
	ctx := context.Background()

	_, _, err := cat.EnsurePermission(ctx, "legacy_permission", catalog.GuardWeb)
	require.NoError(t, err)

	_, err = syncer.Reconcile(ctx, []ResourceDescriptor{{Resource: "post", Actions: CoreActions}}, nil, catalog.GuardWeb)
	require.NoError(t, err)

	// Permissions outside the declared set stay.
	_, ok := cat.permissions["legacy_permission/"+catalog.GuardWeb]
	require.True(t, ok)
}

func TestReconcileRejectsUnknownGuard(t *testing.T) {
	syncer := NewSyncer(newMemoryCatalog(), nil)

	_, err := syncer.Reconcile(context.Background(), nil, nil, "mobile")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDerivePermissionNamesSnakeCases(t *testing.T) {
	names := DerivePermissionNames([]ResourceDescriptor{
		{Resource: "UserProfile", Actions: []Action{ActionViewAny, ActionForceDeleteAny}},
		{Resource: "post", Actions: []Action{ActionViewAny}},
	})
	require.Equal(t, []string{"force_delete_any_user_profile", "view_any_post", "view_any_user_profile"}, names)
}

func TestBootstrapSeedsRoles(t *testing.T) {
	cat := newMemoryCatalog()
	syncer := NewSyncer(cat, nil)
	ctx := context.Background()

	err := syncer.Bootstrap(ctx, DefaultDescriptors(), DefaultDirectPermissions(), DefaultSeedRoles())
	require.NoError(t, err)

	super, err := cat.FindRole(ctx, catalog.RoleSuperAdmin, catalog.GuardWeb)
	require.NoError(t, err)
	require.True(t, super.IsDefault)
	admin, err := cat.FindRole(ctx, catalog.RoleAdmin, catalog.GuardWeb)
	require.NoError(t, err)
	authenticated, err := cat.FindRole(ctx, catalog.RoleAuthenticated, catalog.GuardWeb)
	require.NoError(t, err)
	require.True(t, authenticated.IsDefault)

	// Full grant for the admin pair, panel access only for authenticated.
	require.Equal(t, cat.rolePerms[super.ID], cat.rolePerms[admin.ID])
	require.Contains(t, cat.rolePerms[admin.ID], "force_delete_any_role")
	require.Contains(t, cat.rolePerms[admin.ID], PermAccessAdminPanel)
	require.Equal(t, []string{PermAccessAppPanel}, cat.rolePerms[authenticated.ID])

	// Workspace only carries the core actions.
	_, ok := cat.permissions["force_delete_workspace/"+catalog.GuardWeb]
	require.False(t, ok)
	_, ok = cat.permissions["delete_any_workspace/"+catalog.GuardWeb]
	require.True(t, ok)
}

func TestBootstrapIdempotent(t *testing.T) {
	cat := newMemoryCatalog()
	syncer := NewSyncer(cat, nil)
	ctx := context.Background()

	require.NoError(t, syncer.Bootstrap(ctx, DefaultDescriptors(), DefaultDirectPermissions(), DefaultSeedRoles()))
	rolesBefore := len(cat.roles)
	permsBefore := len(cat.permissions)

	require.NoError(t, syncer.Bootstrap(ctx, DefaultDescriptors(), DefaultDirectPermissions(), DefaultSeedRoles()))
	require.Equal(t, rolesBefore, len(cat.roles))
	require.Equal(t, permsBefore, len(cat.permissions))
}
