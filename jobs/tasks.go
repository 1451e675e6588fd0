package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionReconcile re-runs permission discovery against the
	// declared resource descriptors.
	TaskPermissionReconcile = "discovery:reconcile"
	// TaskCacheWarmup pre-fills the permission cache for active principals.
	TaskCacheWarmup = "authz:cache_warmup"
)

// ReconcilePayload carries the inputs of a scheduled reconcile run. Empty
// descriptors mean the built-in defaults.
type ReconcilePayload struct {
	Guard       string              `json:"guard"`
	Descriptors []DescriptorPayload `json:"descriptors,omitempty"`
	Direct      []string            `json:"direct,omitempty"`
}

// DescriptorPayload is the wire form of a resource descriptor.
type DescriptorPayload struct {
	Resource string   `json:"resource"`
	Model    string   `json:"model,omitempty"`
	Actions  []string `json:"actions"`
}

// NewReconcileTask constructs an Asynq task for a reconcile run.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionReconcile, data), nil
}

// CacheWarmupPayload selects the guard whose permission sets get warmed.
type CacheWarmupPayload struct {
	Guard string `json:"guard"`
}

// NewCacheWarmupTask constructs an Asynq task for a cache warmup run.
func NewCacheWarmupTask(payload CacheWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheWarmup, data), nil
}
