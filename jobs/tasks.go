package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/oxiliere/oxutils/internal/jobs"
	"github.com/oxiliere/oxutils/internal/permissions"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRoleSync reconciles materialized grants of one role.
	TaskTypeRoleSync = "perm:role_sync"
	// TaskTypeGroupSync reconciles grants of every member of one group.
	TaskTypeGroupSync = "perm:group_sync"
)

// RoleSyncPayload narrows a role sync to one scope when Scope is set.
type RoleSyncPayload struct {
	Role  string `json:"role"`
	Scope string `json:"scope,omitempty"`
}

// GroupSyncPayload names the group to reconcile.
type GroupSyncPayload struct {
	Group string `json:"group"`
}

// NewRoleSyncTask constructs an Asynq task.
func NewRoleSyncTask(payload RoleSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRoleSync, data), nil
}

// NewGroupSyncTask constructs an Asynq task.
func NewGroupSyncTask(payload GroupSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGroupSync, data), nil
}

// SyncService is the slice of the permission engine the worker needs.
type SyncService interface {
	RoleSync(ctx context.Context, role, scope string) (permissions.RoleSyncStats, error)
	GroupSync(ctx context.Context, group string) (permissions.GroupSyncStats, error)
}

// HandleRoleSyncTask processes TaskTypeRoleSync tasks.
func HandleRoleSyncTask(service SyncService, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RoleSyncPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskTypeRoleSync)
		stats, err := service.RoleSync(ctx, payload.Role, payload.Scope)
		if err := tracker.End(err); err != nil {
			return err
		}
		logger.Info("role sync done",
			slog.String("role", payload.Role),
			slog.String("scope", payload.Scope),
			slog.Int("grants_updated", stats.GrantsUpdated))
		return nil
	}
}

// HandleGroupSyncTask processes TaskTypeGroupSync tasks.
func HandleGroupSyncTask(service SyncService, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload GroupSyncPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskTypeGroupSync)
		stats, err := service.GroupSync(ctx, payload.Group)
		if err := tracker.End(err); err != nil {
			return err
		}
		logger.Info("group sync done",
			slog.String("group", payload.Group),
			slog.Int("users_synced", stats.UsersSynced),
			slog.Int("grants_updated", stats.GrantsUpdated))
		return nil
	}
}
