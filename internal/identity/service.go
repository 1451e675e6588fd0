package identity

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/warden-authz/warden/internal/shared"
)

// RepositoryPort defines data access methods for principals and workspaces.
// MarkDeleted and MarkRestored apply the email mutation and the deletion flag
// in one statement so a failed restore never leaves a half-suffixed email.
type RepositoryPort interface {
	CreatePrincipal(ctx context.Context, name, email, passwordHash string, createdBy *int64) (Principal, error)
	GetPrincipal(ctx context.Context, id int64) (Principal, error)
	GetTrashedPrincipal(ctx context.Context, id int64) (Principal, error)
	FindByEmail(ctx context.Context, email string) (Principal, error)
	ListPrincipals(ctx context.Context) ([]Principal, error)
	UpdatePrincipal(ctx context.Context, id int64, name, email string, updatedBy *int64) (Principal, error)
	MarkDeleted(ctx context.Context, id int64, tombstonedEmail string, deletedBy *int64) error
	MarkRestored(ctx context.Context, id int64, restoredEmail string) error

	CreateWorkspace(ctx context.Context, name string) (Workspace, error)
	ListWorkspaces(ctx context.Context) ([]Workspace, error)
	ListMemberships(ctx context.Context, principalID int64) ([]Workspace, error)
	AddMembership(ctx context.Context, principalID, workspaceID int64) error
	RemoveMembership(ctx context.Context, principalID, workspaceID int64) error
	HasMembership(ctx context.Context, principalID, workspaceID int64) (bool, error)
}

// AuditPort records principal lifecycle events. May be nil.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles principal lifecycle and tenant membership rules.
type Service struct {
	repo   RepositoryPort
	hasher Hasher
	audit  AuditPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, hasher Hasher, audit AuditPort) *Service {
	return &Service{repo: repo, hasher: hasher, audit: audit}
}

func (s *Service) record(ctx context.Context, action string, entityID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "principal",
		EntityID: strconv.FormatInt(entityID, 10),
	})
}

// Create registers a new principal. Email uniqueness is checked against the
// normalized form; duplicates surface as ErrConflict.
func (s *Service) Create(ctx context.Context, name, email, password string) (Principal, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" || email == "" {
		return Principal{}, fmt.Errorf("%w: name and email required", shared.ErrValidation)
	}
	if password == "" {
		return Principal{}, fmt.Errorf("%w: password required", shared.ErrValidation)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Principal{}, err
	}
	p, err := s.repo.CreatePrincipal(ctx, name, email, hash, actorRef(ctx))
	if err != nil {
		return Principal{}, err
	}
	s.record(ctx, "principal.create", p.ID)
	return p, nil
}

// Get fetches a live principal by ID.
func (s *Service) Get(ctx context.Context, id int64) (Principal, error) {
	return s.repo.GetPrincipal(ctx, id)
}

// FindByEmail looks a principal up by its normalized email.
func (s *Service) FindByEmail(ctx context.Context, email string) (Principal, error) {
	return s.repo.FindByEmail(ctx, NormalizeEmail(email))
}

// List returns all live principals.
func (s *Service) List(ctx context.Context) ([]Principal, error) {
	return s.repo.ListPrincipals(ctx)
}

// Update changes name and email of a live principal.
func (s *Service) Update(ctx context.Context, id int64, name, email string) (Principal, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" || email == "" {
		return Principal{}, fmt.Errorf("%w: name and email required", shared.ErrValidation)
	}
	p, err := s.repo.UpdatePrincipal(ctx, id, name, email, actorRef(ctx))
	if err != nil {
		return Principal{}, err
	}
	s.record(ctx, "principal.update", p.ID)
	return p, nil
}

// SoftDelete tombstones a principal: the deletion timestamp is set and the
// email gains a "-deleted-{id}" suffix so the address becomes available again.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	p, err := s.repo.GetPrincipal(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.MarkDeleted(ctx, id, TombstoneEmail(p.Email, p.ID), actorRef(ctx)); err != nil {
		return err
	}
	s.record(ctx, "principal.soft_delete", id)
	return nil
}

// Restore reverses SoftDelete. Fails with ErrConflict if the original email
// has been taken by a newer registration in the meantime.
func (s *Service) Restore(ctx context.Context, id int64) error {
	p, err := s.repo.GetTrashedPrincipal(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.MarkRestored(ctx, id, RestoreEmail(p.Email, p.ID)); err != nil {
		return err
	}
	s.record(ctx, "principal.restore", id)
	return nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Principal, error) {
	p, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return Principal{}, shared.ErrInvalidCredentials
	}
	if p.IsDeleted() {
		return Principal{}, shared.ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, p.PasswordHash) {
		return Principal{}, shared.ErrInvalidCredentials
	}
	return p, nil
}

// CreateWorkspace registers a new tenant.
func (s *Service) CreateWorkspace(ctx context.Context, name string) (Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Workspace{}, fmt.Errorf("%w: workspace name required", shared.ErrValidation)
	}
	return s.repo.CreateWorkspace(ctx, name)
}

// ListWorkspaces returns all tenants.
func (s *Service) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	return s.repo.ListWorkspaces(ctx)
}

// ListMemberships returns the workspaces a principal belongs to, oldest
// membership first.
func (s *Service) ListMemberships(ctx context.Context, principalID int64) ([]Workspace, error) {
	return s.repo.ListMemberships(ctx, principalID)
}

// DefaultWorkspace returns the principal's first membership, the fallback
// active tenant when none is explicitly selected.
func (s *Service) DefaultWorkspace(ctx context.Context, principalID int64) (Workspace, error) {
	memberships, err := s.repo.ListMemberships(ctx, principalID)
	if err != nil {
		return Workspace{}, err
	}
	if len(memberships) == 0 {
		return Workspace{}, shared.ErrNotFound
	}
	return memberships[0], nil
}

// AddMembership joins a principal to a workspace. Adding twice is a no-op.
func (s *Service) AddMembership(ctx context.Context, principalID, workspaceID int64) error {
	if _, err := s.repo.GetPrincipal(ctx, principalID); err != nil {
		return err
	}
	return s.repo.AddMembership(ctx, principalID, workspaceID)
}

// RemoveMembership removes a principal from a workspace.
func (s *Service) RemoveMembership(ctx context.Context, principalID, workspaceID int64) error {
	return s.repo.RemoveMembership(ctx, principalID, workspaceID)
}

// HasMembership reports whether the principal belongs to the workspace.
func (s *Service) HasMembership(ctx context.Context, principalID, workspaceID int64) (bool, error) {
	return s.repo.HasMembership(ctx, principalID, workspaceID)
}

func actorRef(ctx context.Context) *int64 {
	if id := shared.ActorFromContext(ctx); id > 0 {
		return &id
	}
	return nil
}
