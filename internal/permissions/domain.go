package permissions

import (
	"time"

	"github.com/google/uuid"
)

// Role is a named, reusable permission template identity.
type Role struct {
	Slug      string    `json:"slug" db:"slug"`
	Name      string    `json:"name" db:"name"`
	App       string    `json:"app" db:"app"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Group bundles roles for assignment as a unit. It holds no permissions
// itself.
type Group struct {
	Slug      string    `json:"slug" db:"slug"`
	Name      string    `json:"name" db:"name"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RoleGrant binds a (role, scope) pair to an action set and a context
// template. Actions are always stored in expanded form.
type RoleGrant struct {
	ID        int64          `json:"id" db:"id"`
	Role      string         `json:"role" db:"role_slug"`
	Scope     string         `json:"scope" db:"scope"`
	Actions   []string       `json:"actions" db:"actions"`
	Context   map[string]any `json:"context" db:"context"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// UserGroup records a principal's membership in a group. Grants derived from
// the membership reference it, so revoking the group cascades to them.
type UserGroup struct {
	ID        int64      `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	Group     string     `json:"group" db:"group_slug"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Grant is a materialized permission record for one principal on one scope.
// Actions hold the expanded closure of some root set. A locked grant has been
// customized by an operator and is exempt from template synchronization.
type Grant struct {
	ID          int64          `json:"id" db:"id"`
	UserID      uuid.UUID      `json:"user_id" db:"user_id"`
	Scope       string         `json:"scope" db:"scope"`
	Role        *string        `json:"role,omitempty" db:"role_slug"`
	UserGroupID *int64         `json:"user_group_id,omitempty" db:"user_group_id"`
	Actions     []string       `json:"actions" db:"actions"`
	Context     map[string]any `json:"context" db:"context"`
	Locked      bool           `json:"locked" db:"locked"`
	CreatedBy   *uuid.UUID     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// RoleSyncStats reports the outcome of a role reconciliation run.
type RoleSyncStats struct {
	GrantsUpdated int `json:"grants_updated"`
}

// GroupSyncStats reports the outcome of a group reconciliation run.
type GroupSyncStats struct {
	UsersSynced   int `json:"users_synced"`
	GrantsUpdated int `json:"grants_updated"`
}
