package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/warden-authz/warden/internal/discovery"
	jobmetrics "github.com/warden-authz/warden/internal/jobs"
)

// NewReconcileHandler returns the handler for TaskPermissionReconcile.
// A payload without descriptors falls back to the built-in defaults, so the
// cron entry can stay a bare guard name.
func NewReconcileHandler(syncer *discovery.Syncer, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskPermissionReconcile)
		var payload ReconcilePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		descriptors := toDescriptors(payload.Descriptors)
		direct := payload.Direct
		if len(descriptors) == 0 && len(direct) == 0 {
			descriptors = discovery.DefaultDescriptors()
			direct = discovery.DefaultDirectPermissions()
		}
		result, err := syncer.Reconcile(ctx, descriptors, direct, payload.Guard)
		if err != nil {
			return tracker.End(err)
		}
		if logger != nil {
			logger.Info("scheduled reconcile",
				slog.String("guard", payload.Guard),
				slog.Int("created", len(result.Created)))
		}
		return tracker.End(nil)
	}
}

func toDescriptors(payloads []DescriptorPayload) []discovery.ResourceDescriptor {
	descriptors := make([]discovery.ResourceDescriptor, 0, len(payloads))
	for _, p := range payloads {
		actions := make([]discovery.Action, 0, len(p.Actions))
		for _, a := range p.Actions {
			actions = append(actions, discovery.Action(a))
		}
		descriptors = append(descriptors, discovery.ResourceDescriptor{Resource: p.Resource, Model: p.Model, Actions: actions})
	}
	return descriptors
}
