package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warden-authz/warden/internal/platform/db"
	"github.com/warden-authz/warden/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the role/permission
// graph.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const roleColumns = `id, name, guard_name, is_default, created_by, updated_by, deleted_by, created_at, updated_at, deleted_at`

func scanRole(row pgx.Row) (Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.Name, &r.GuardName, &r.IsDefault, &r.CreatedBy, &r.UpdatedBy, &r.DeletedBy, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return r, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, guard string, isDefault bool, createdBy *int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, guard_name, is_default, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+roleColumns,
		name, guard, isDefault, createdBy)
	role, err := scanRole(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role %s already exists in guard %s", shared.ErrConflict, name, guard)
		}
		return Role{}, err
	}
	return role, nil
}

// GetRole fetches a live role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanRole(row)
}

// FindRole fetches a live role by its (name, guard) pair.
func (r *Repository) FindRole(ctx context.Context, name, guard string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1 AND guard_name = $2 AND deleted_at IS NULL`, name, guard)
	return scanRole(row)
}

// ListRoles returns live roles, optionally filtered by guard.
func (r *Repository) ListRoles(ctx context.Context, guard string) ([]Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE deleted_at IS NULL`
	args := []any{}
	if guard != "" {
		query += ` AND guard_name = $1`
		args = append(args, guard)
	}
	query += ` ORDER BY guard_name, name`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// RenameRole updates the role name.
func (r *Repository) RenameRole(ctx context.Context, id int64, name string, updatedBy *int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+roleColumns,
		id, name, updatedBy)
	role, err := scanRole(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role name %s already taken", shared.ErrConflict, name)
		}
		return Role{}, err
	}
	return role, nil
}

// MarkRoleDeleted soft-deletes the role and records who deleted it.
func (r *Repository) MarkRoleDeleted(ctx context.Context, id int64, deletedBy *int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE roles SET deleted_at = NOW(), deleted_by = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, deletedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkRoleRestored reverses a soft delete.
func (r *Repository) MarkRoleRestored(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE roles SET deleted_at = NULL, deleted_by = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// EnsurePermission inserts the permission when missing. The second return
// value reports whether a row was created.
func (r *Repository) EnsurePermission(ctx context.Context, name, guard string) (Permission, bool, error) {
	var p Permission
	var created bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, guard_name, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name, guard_name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, guard_name, created_at, (xmax = 0)`,
		name, guard).Scan(&p.ID, &p.Name, &p.GuardName, &p.CreatedAt, &created)
	if err != nil {
		return Permission{}, false, err
	}
	return p, created, nil
}

// ListPermissions returns permissions, optionally filtered by guard.
func (r *Repository) ListPermissions(ctx context.Context, guard string) ([]Permission, error) {
	query := `SELECT id, name, guard_name, created_at FROM permissions`
	args := []any{}
	if guard != "" {
		query += ` WHERE guard_name = $1`
		args = append(args, guard)
	}
	query += ` ORDER BY guard_name, name`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.GuardName, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ListRolePermissionNames returns permission names attached to a role.
func (r *Repository) ListRolePermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ReplacePermissions swaps the role's permission set for exactly the given
// names, resolving each name within the role's guard. Additions and removals
// are applied in one transaction; an unknown name aborts the whole sync.
func (r *Repository) ReplacePermissions(ctx context.Context, roleID int64, guard string, names []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		want := make(map[int64]struct{}, len(names))
		for _, name := range names {
			var permID int64
			err := tx.QueryRow(ctx, `SELECT id FROM permissions WHERE name = $1 AND guard_name = $2`, name, guard).Scan(&permID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("%w: permission %s in guard %s", shared.ErrNotFound, name, guard)
				}
				return err
			}
			want[permID] = struct{}{}
		}

		rows, err := tx.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
		if err != nil {
			return err
		}
		existing := make(map[int64]struct{})
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			existing[id] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for id := range want {
			if _, ok := existing[id]; ok {
				continue
			}
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id, created_at) VALUES ($1, $2, NOW())`, roleID, id); err != nil {
				return err
			}
		}
		for id := range existing {
			if _, ok := want[id]; ok {
				continue
			}
			if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignRole links a principal to a role, idempotently.
func (r *Repository) AssignRole(ctx context.Context, principalID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO principal_roles (principal_id, role_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (principal_id, role_id) DO NOTHING`, principalID, roleID)
	return err
}

// RevokeRole removes the assignment pair.
func (r *Repository) RevokeRole(ctx context.Context, principalID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM principal_roles WHERE principal_id = $1 AND role_id = $2`, principalID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListRolesFor returns live roles assigned to a principal in the guard.
func (r *Repository) ListRolesFor(ctx context.Context, principalID int64, guard string) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixedRoleColumns("r")+`
		FROM roles r
		JOIN principal_roles pr ON pr.role_id = r.id
		WHERE pr.principal_id = $1 AND r.guard_name = $2 AND r.deleted_at IS NULL
		ORDER BY r.name`, principalID, guard)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// ListPermissionNamesFor returns the deduplicated union of permission names
// across the principal's live roles in the guard.
func (r *Repository) ListPermissionNamesFor(ctx context.Context, principalID int64, guard string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN roles r ON r.id = rp.role_id
		JOIN principal_roles pr ON pr.role_id = r.id
		WHERE pr.principal_id = $1 AND r.guard_name = $2 AND r.deleted_at IS NULL
		ORDER BY p.name`, principalID, guard)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func prefixedRoleColumns(alias string) string {
	return alias + `.id, ` + alias + `.name, ` + alias + `.guard_name, ` + alias + `.is_default, ` + alias + `.created_by, ` + alias + `.updated_by, ` + alias + `.deleted_by, ` + alias + `.created_at, ` + alias + `.updated_at, ` + alias + `.deleted_at`
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.GuardName, &role.IsDefault, &role.CreatedBy, &role.UpdatedBy, &role.DeletedBy, &role.CreatedAt, &role.UpdatedAt, &role.DeletedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
