package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/warden-authz/warden/internal/authz"
	"github.com/warden-authz/warden/internal/identity"
	jobmetrics "github.com/warden-authz/warden/internal/jobs"
)

// PrincipalLister yields the principals whose permission sets get warmed.
// Satisfied by *identity.Service.
type PrincipalLister interface {
	List(ctx context.Context) ([]identity.Principal, error)
}

// PermissionSource resolves a principal's effective permission names.
// Satisfied by *catalog.Service.
type PermissionSource interface {
	PermissionNamesFor(ctx context.Context, principalID int64, guard string) ([]string, error)
}

// NewCacheWarmupHandler returns the handler for TaskCacheWarmup. It fills the
// permission cache for every live principal so the first authorization check
// after an invalidation does not pay the database round trip.
func NewCacheWarmupHandler(principals PrincipalLister, source PermissionSource, cache *authz.PermissionCache, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskCacheWarmup)
		var payload CacheWarmupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		list, err := principals.List(ctx)
		if err != nil {
			return tracker.End(err)
		}
		warmed := 0
		for _, p := range list {
			if p.IsDeleted() {
				continue
			}
			id := p.ID
			if _, err := cache.FetchNames(ctx, id, payload.Guard, func(ctx context.Context) ([]string, error) {
				return source.PermissionNamesFor(ctx, id, payload.Guard)
			}); err != nil {
				return tracker.End(err)
			}
			warmed++
		}
		if logger != nil {
			logger.Info("permission cache warmup",
				slog.String("guard", payload.Guard),
				slog.Int("principals", warmed))
		}
		return tracker.End(nil)
	}
}
