package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warden-authz/warden/internal/catalog"
	"github.com/warden-authz/warden/internal/shared"
)

// CatalogPort is the slice of the catalog the syncer drives. Satisfied by
// *catalog.Service.
type CatalogPort interface {
	EnsurePermission(ctx context.Context, name, guard string) (catalog.Permission, bool, error)
	FindRole(ctx context.Context, name, guard string) (catalog.Role, error)
	CreateRole(ctx context.Context, name, guard string, isDefault bool) (catalog.Role, error)
	SyncPermissions(ctx context.Context, roleID int64, names []string) error
	InvalidateCache(ctx context.Context) error
}

// Result reports what a reconcile run did.
type Result struct {
	Created   []string
	Unchanged []string
}

// Syncer reconciles the permission catalog against the declared resource
// descriptors.
type Syncer struct {
	catalog CatalogPort
	logger  *slog.Logger
}

// NewSyncer builds a Syncer instance.
func NewSyncer(cat CatalogPort, logger *slog.Logger) *Syncer {
	return &Syncer{catalog: cat, logger: logger}
}

// Reconcile ensures every derived and direct permission name exists in the
// catalog under the guard. Pre-existing permissions not mentioned are left
// untouched: pruning would orphan role assignments on a transient discovery
// gap, so it is deliberately not performed. Running twice with identical
// inputs creates nothing on the second run.
func (s *Syncer) Reconcile(ctx context.Context, descriptors []ResourceDescriptor, directPermissionNames []string, guard string) (Result, error) {
	if !catalog.ValidGuard(guard) {
		return Result{}, fmt.Errorf("%w: unknown guard %q", shared.ErrValidation, guard)
	}

	names := DerivePermissionNames(descriptors)
	names = append(names, directPermissionNames...)

	var result Result
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		_, created, err := s.catalog.EnsurePermission(ctx, name, guard)
		if err != nil {
			return Result{}, fmt.Errorf("discovery: ensure permission %s: %w", name, err)
		}
		if created {
			result.Created = append(result.Created, name)
		} else {
			result.Unchanged = append(result.Unchanged, name)
		}
	}

	if len(result.Created) > 0 {
		if err := s.catalog.InvalidateCache(ctx); err != nil {
			return Result{}, err
		}
	}
	if s.logger != nil {
		s.logger.Info("permission reconcile",
			slog.String("guard", guard),
			slog.Int("created", len(result.Created)),
			slog.Int("unchanged", len(result.Unchanged)))
	}
	return result, nil
}
