package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warden-authz/warden/internal/shared"
)

type memoryRepo struct {
	principals  map[int64]Principal
	workspaces  map[int64]Workspace
	memberships map[int64][]int64
	nextID      int64
	failCreate  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		principals:  make(map[int64]Principal),
		workspaces:  make(map[int64]Workspace),
		memberships: make(map[int64][]int64),
	}
}

func (r *memoryRepo) CreatePrincipal(ctx context.Context, name, email, passwordHash string, createdBy *int64) (Principal, error) {
	if r.failCreate != nil {
		return Principal{}, r.failCreate
	}
	for _, p := range r.principals {
		if p.Email == email {
			return Principal{}, shared.ErrConflict
		}
	}
	r.nextID++
	p := Principal{ID: r.nextID, Name: name, Email: email, PasswordHash: passwordHash, CreatedBy: createdBy, CreatedAt: time.Now()}
	r.principals[p.ID] = p
	return p, nil
}

func (r *memoryRepo) GetPrincipal(ctx context.Context, id int64) (Principal, error) {
	p, ok := r.principals[id]
	if !ok || p.IsDeleted() {
		return Principal{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetTrashedPrincipal(ctx context.Context, id int64) (Principal, error) {
	p, ok := r.principals[id]
	if !ok || !p.IsDeleted() {
		return Principal{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (Principal, error) {
	for _, p := range r.principals {
		if p.Email == email {
			return p, nil
		}
	}
	return Principal{}, shared.ErrNotFound
}

func (r *memoryRepo) ListPrincipals(ctx context.Context) ([]Principal, error) {
	out := make([]Principal, 0, len(r.principals))
	for _, p := range r.principals {
		if !p.IsDeleted() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdatePrincipal(ctx context.Context, id int64, name, email string, updatedBy *int64) (Principal, error) {
	p, ok := r.principals[id]
	if !ok || p.IsDeleted() {
		return Principal{}, shared.ErrNotFound
	}
	for _, other := range r.principals {
		if other.ID != id && other.Email == email {
			return Principal{}, shared.ErrConflict
		}
	}
	p.Name, p.Email, p.UpdatedBy = name, email, updatedBy
	r.principals[id] = p
	return p, nil
}

func (r *memoryRepo) MarkDeleted(ctx context.Context, id int64, tombstonedEmail string, deletedBy *int64) error {
	p, ok := r.principals[id]
	if !ok || p.IsDeleted() {
		return shared.ErrNotFound
	}
	now := time.Now()
	p.Email, p.DeletedAt, p.DeletedBy = tombstonedEmail, &now, deletedBy
	r.principals[id] = p
	return nil
}

func (r *memoryRepo) MarkRestored(ctx context.Context, id int64, restoredEmail string) error {
	p, ok := r.principals[id]
	if !ok || !p.IsDeleted() {
		return shared.ErrNotFound
	}
	for _, other := range r.principals {
		if other.ID != id && other.Email == restoredEmail {
			return shared.ErrConflict
		}
	}
	p.Email, p.DeletedAt, p.DeletedBy = restoredEmail, nil, nil
	r.principals[id] = p
	return nil
}

func (r *memoryRepo) CreateWorkspace(ctx context.Context, name string) (Workspace, error) {
	r.nextID++
	ws := Workspace{ID: r.nextID, Name: name, CreatedAt: time.Now()}
	r.workspaces[ws.ID] = ws
	return ws, nil
}

func (r *memoryRepo) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	out := make([]Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		out = append(out, ws)
	}
	return out, nil
}

func (r *memoryRepo) ListMemberships(ctx context.Context, principalID int64) ([]Workspace, error) {
	var out []Workspace
	for _, wsID := range r.memberships[principalID] {
		out = append(out, r.workspaces[wsID])
	}
	return out, nil
}

func (r *memoryRepo) AddMembership(ctx context.Context, principalID, workspaceID int64) error {
	for _, wsID := range r.memberships[principalID] {
		if wsID == workspaceID {
			return nil
		}
	}
	r.memberships[principalID] = append(r.memberships[principalID], workspaceID)
	return nil
}

func (r *memoryRepo) RemoveMembership(ctx context.Context, principalID, workspaceID int64) error {
	kept := r.memberships[principalID][:0]
	for _, wsID := range r.memberships[principalID] {
		if wsID != workspaceID {
			kept = append(kept, wsID)
		}
	}
	r.memberships[principalID] = kept
	return nil
}

func (r *memoryRepo) HasMembership(ctx context.Context, principalID, workspaceID int64) (bool, error) {
	for _, wsID := range r.memberships[principalID] {
		if wsID == workspaceID {
			return true, nil
		}
	}
	return false, nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, BcryptHasher{Cost: 4}, nil)
}

func TestCreateNormalizesEmail(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Bob", "Bob@X.com", "password1")
	require.NoError(t, err)
	require.Equal(t, "bob@x.com", p.Email)

	_, err = svc.Create(ctx, "Bob Again", "BOB@x.COM", "password1")
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, "", "bob@x.com", "password1")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Create(ctx, "Bob", "  ", "password1")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Create(ctx, "Bob", "bob@x.com", "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSoftDeleteTombstonesEmail(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Bob", "bob@x.com", "password1")
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(ctx, p.ID))

	stored := repo.principals[p.ID]
	require.True(t, stored.IsDeleted())
	require.Equal(t, TombstoneEmail("bob@x.com", p.ID), stored.Email)

	// The address is free again for a new registration.
	fresh, err := svc.Create(ctx, "New Bob", "bob@x.com", "password1")
	require.NoError(t, err)
	require.NotEqual(t, p.ID, fresh.ID)

	// Deleted principals disappear from live reads.
	_, err = svc.Get(ctx, p.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRestoreRevertsEmail(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Bob", "bob@x.com", "password1")
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, p.ID))

	require.NoError(t, svc.Restore(ctx, p.ID))

	stored := repo.principals[p.ID]
	require.False(t, stored.IsDeleted())
	require.Equal(t, "bob@x.com", stored.Email)
}

func TestRestoreConflictsWhenEmailRetaken(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Bob", "bob@x.com", "password1")
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, p.ID))

	_, err = svc.Create(ctx, "New Bob", "bob@x.com", "password1")
	require.NoError(t, err)

	err = svc.Restore(ctx, p.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	// The tombstoned row is untouched by the failed restore.
	stored := repo.principals[p.ID]
	require.True(t, stored.IsDeleted())
	require.Equal(t, TombstoneEmail("bob@x.com", p.ID), stored.Email)
}

func TestRestoreRequiresTrashedPrincipal(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Bob", "bob@x.com", "password1")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Restore(ctx, p.ID), shared.ErrNotFound)
	require.ErrorIs(t, svc.Restore(ctx, 999), shared.ErrNotFound)
}

func TestAuthenticate(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Bob", "bob@x.com", "password1")
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, "Bob@X.com", "password1")
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)

	_, err = svc.Authenticate(ctx, "bob@x.com", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@x.com", "password1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.NoError(t, svc.SoftDelete(ctx, p.ID))
	_, err = svc.Authenticate(ctx, "bob@x.com", "password1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestMemberships(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, "Bob", "bob@x.com", "password1")
	require.NoError(t, err)
	ws1, err := svc.CreateWorkspace(ctx, "Alpha")
	require.NoError(t, err)
	ws2, err := svc.CreateWorkspace(ctx, "Beta")
	require.NoError(t, err)

	require.NoError(t, svc.AddMembership(ctx, p.ID, ws1.ID))
	require.NoError(t, svc.AddMembership(ctx, p.ID, ws1.ID)) // idempotent
	require.NoError(t, svc.AddMembership(ctx, p.ID, ws2.ID))

	got, err := svc.ListMemberships(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	def, err := svc.DefaultWorkspace(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, ws1.ID, def.ID)

	ok, err := svc.HasMembership(ctx, p.ID, ws2.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.RemoveMembership(ctx, p.ID, ws1.ID))
	ok, err = svc.HasMembership(ctx, p.ID, ws1.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDefaultWorkspaceWithoutMemberships(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	p, err := svc.Create(context.Background(), "Bob", "bob@x.com", "password1")
	require.NoError(t, err)

	_, err = svc.DefaultWorkspace(context.Background(), p.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTombstoneRoundTrip(t *testing.T) {
	require.Equal(t, "bob@x.com-deleted-42", TombstoneEmail("bob@x.com", 42))
	require.Equal(t, "bob@x.com", RestoreEmail("bob@x.com-deleted-42", 42))
	// Only the suffix for the matching ID is stripped.
	require.Equal(t, "bob@x.com-deleted-42", RestoreEmail("bob@x.com-deleted-42", 7))
}
