package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warden-authz/warden/internal/platform/db"
	"github.com/warden-authz/warden/internal/shared"
)

// Repository provides PostgreSQL backed persistence for principals and
// workspaces.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const principalColumns = `id, name, email, password_hash, created_by, updated_by, deleted_by, created_at, updated_at, deleted_at`

func scanPrincipal(row pgx.Row) (Principal, error) {
	var p Principal
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.CreatedBy, &p.UpdatedBy, &p.DeletedBy, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, shared.ErrNotFound
		}
		return Principal{}, err
	}
	return p, nil
}

// CreatePrincipal inserts a new principal.
func (r *Repository) CreatePrincipal(ctx context.Context, name, email, passwordHash string, createdBy *int64) (Principal, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO principals (name, email, password_hash, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+principalColumns,
		name, email, passwordHash, createdBy)
	p, err := scanPrincipal(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Principal{}, fmt.Errorf("%w: email %s already registered", shared.ErrConflict, email)
		}
		return Principal{}, err
	}
	return p, nil
}

// GetPrincipal fetches a live principal by ID.
func (r *Repository) GetPrincipal(ctx context.Context, id int64) (Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanPrincipal(row)
}

// GetTrashedPrincipal fetches a soft-deleted principal by ID.
func (r *Repository) GetTrashedPrincipal(ctx context.Context, id int64) (Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	return scanPrincipal(row)
}

// FindByEmail fetches a live principal by normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE email = $1 AND deleted_at IS NULL`, email)
	return scanPrincipal(row)
}

// ListPrincipals returns all live principals.
func (r *Repository) ListPrincipals(ctx context.Context) ([]Principal, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+principalColumns+` FROM principals WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var principals []Principal
	for rows.Next() {
		var p Principal
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.CreatedBy, &p.UpdatedBy, &p.DeletedBy, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
}

// UpdatePrincipal updates name and email of a live principal.
func (r *Repository) UpdatePrincipal(ctx context.Context, id int64, name, email string, updatedBy *int64) (Principal, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE principals SET name = $2, email = $3, updated_by = $4, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+principalColumns,
		id, name, email, updatedBy)
	p, err := scanPrincipal(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Principal{}, fmt.Errorf("%w: email %s already registered", shared.ErrConflict, email)
		}
		return Principal{}, err
	}
	return p, nil
}

// MarkDeleted tombstones the principal. Email mutation and the deletion flag
// land in a single statement, so the operation is atomic.
func (r *Repository) MarkDeleted(ctx context.Context, id int64, tombstonedEmail string, deletedBy *int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE principals SET deleted_at = NOW(), deleted_by = $3, email = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		id, tombstonedEmail, deletedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkRestored reverses MarkDeleted.
func (r *Repository) MarkRestored(ctx context.Context, id int64, restoredEmail string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE principals SET deleted_at = NULL, deleted_by = NULL, email = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL`,
		id, restoredEmail)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: email %s already registered", shared.ErrConflict, restoredEmail)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateWorkspace inserts a new workspace.
func (r *Repository) CreateWorkspace(ctx context.Context, name string) (Workspace, error) {
	var ws Workspace
	err := r.pool.QueryRow(ctx, `
		INSERT INTO workspaces (name, created_at) VALUES ($1, NOW())
		RETURNING id, name, created_at`, name).Scan(&ws.ID, &ws.Name, &ws.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Workspace{}, fmt.Errorf("%w: workspace %s already exists", shared.ErrConflict, name)
		}
		return Workspace{}, err
	}
	return ws, nil
}

// ListWorkspaces returns all workspaces.
func (r *Repository) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM workspaces ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var workspaces []Workspace
	for rows.Next() {
		var ws Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.CreatedAt); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

// ListMemberships returns the workspaces a principal belongs to, ordered by
// when the membership was created.
func (r *Repository) ListMemberships(ctx context.Context, principalID int64) ([]Workspace, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT w.id, w.name, w.created_at
		FROM workspaces w
		JOIN principal_workspace pw ON pw.workspace_id = w.id
		WHERE pw.principal_id = $1
		ORDER BY pw.created_at, w.id`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var workspaces []Workspace
	for rows.Next() {
		var ws Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.CreatedAt); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

// AddMembership joins a principal to a workspace, idempotently.
func (r *Repository) AddMembership(ctx context.Context, principalID, workspaceID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO principal_workspace (principal_id, workspace_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (principal_id, workspace_id) DO NOTHING`, principalID, workspaceID)
	return err
}

// RemoveMembership removes the membership pair.
func (r *Repository) RemoveMembership(ctx context.Context, principalID, workspaceID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM principal_workspace WHERE principal_id = $1 AND workspace_id = $2`, principalID, workspaceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HasMembership reports whether the membership pair exists.
func (r *Repository) HasMembership(ctx context.Context, principalID, workspaceID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM principal_workspace WHERE principal_id = $1 AND workspace_id = $2)`, principalID, workspaceID).Scan(&exists)
	return exists, err
}
