package permissions

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oxiliere/oxutils/internal/platform/db"
)

// GrantFilter narrows grant listings for sync and query operations.
type GrantFilter struct {
	UserID      *uuid.UUID
	Scope       string
	Role        string
	UserGroupID *int64
	DirectOnly  bool // user_group_id IS NULL
	Unlocked    bool // locked = FALSE
}

// Repository provides persistence for templates, memberships and grants.
// Every mutation of the grant store runs through WithTx so each logical
// operation is atomic.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, slug, name string) (Role, error)
	GetRole(ctx context.Context, slug string) (Role, error)
	ListRoles(ctx context.Context, app string) ([]Role, error)

	CreateGroup(ctx context.Context, group Group) (Group, error)
	UpdateGroup(ctx context.Context, slug, name string) (Group, error)
	DeleteGroup(ctx context.Context, slug string) error
	GetGroup(ctx context.Context, slug string) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	SetGroupRoles(ctx context.Context, slug string, roles []string) error

	CreateRoleGrant(ctx context.Context, rg RoleGrant) (RoleGrant, error)
	UpdateRoleGrant(ctx context.Context, id int64, acts []string, grantCtx map[string]any) (RoleGrant, error)
	DeleteRoleGrant(ctx context.Context, id int64) error
	GetRoleGrant(ctx context.Context, id int64) (RoleGrant, error)
	ListRoleGrants(ctx context.Context, role, scope string) ([]RoleGrant, error)

	CreateUserGroup(ctx context.Context, ug UserGroup) (UserGroup, error)
	GetUserGroup(ctx context.Context, userID uuid.UUID, group string) (UserGroup, error)
	ListUserGroupsByGroup(ctx context.Context, group string) ([]UserGroup, error)
	ListUserGroupsForUser(ctx context.Context, userID uuid.UUID) ([]UserGroup, error)
	DeleteUserGroup(ctx context.Context, id int64) error

	UpsertGrant(ctx context.Context, grant Grant) (Grant, error)
	GetGrantByScope(ctx context.Context, userID uuid.UUID, scope string) (Grant, error)
	ListGrants(ctx context.Context, filter GrantFilter) ([]Grant, error)
	// UpdateGrantActions rewrites a grant's action set only while the grant
	// is unlocked and the actions actually differ. This is the compare-and-set
	// that keeps sync from clobbering a concurrent override.
	UpdateGrantActions(ctx context.Context, id int64, acts []string) (bool, error)
	// LockGrant stores custom actions, sets locked and detaches the grant
	// from its role template.
	LockGrant(ctx context.Context, id int64, acts []string) error
	DeleteGrant(ctx context.Context, id int64) error
	DeleteGrantsByRole(ctx context.Context, userID uuid.UUID, role string) (int64, error)
	DeleteGrantsByUserGroup(ctx context.Context, userGroupID int64) (int64, error)
	ListUserRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
	CountRoles(ctx context.Context) (int64, error)
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const uniqueViolation = "23505"

func mapUnique(err, sentinel error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return sentinel
	}
	return err
}

// --- roles ---

func (r *repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO perm_roles (slug, name, app)
		VALUES ($1, $2, $3)
		RETURNING slug, name, app, created_at, updated_at`,
		role.Slug, role.Name, role.App)
	out, err := scanRole(row)
	if err != nil {
		return Role{}, mapUnique(err, ErrDuplicateSlug)
	}
	return out, nil
}

func (r *repository) UpdateRole(ctx context.Context, slug, name string) (Role, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE perm_roles SET name = $2, updated_at = now()
		WHERE slug = $1
		RETURNING slug, name, app, created_at, updated_at`,
		slug, name)
	out, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return out, nil
}

func (r *repository) GetRole(ctx context.Context, slug string) (Role, error) {
	row := r.db.QueryRow(ctx, `
		SELECT slug, name, app, created_at, updated_at
		FROM perm_roles WHERE slug = $1`, slug)
	out, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return out, nil
}

func (r *repository) ListRoles(ctx context.Context, app string) ([]Role, error) {
	query := `SELECT slug, name, app, created_at, updated_at FROM perm_roles`
	args := []any{}
	if app != "" {
		query += ` WHERE app = $1`
		args = append(args, app)
	}
	query += ` ORDER BY slug`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *repository) CountRoles(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM perm_roles`).Scan(&count)
	return count, err
}

// --- groups ---

func (r *repository) CreateGroup(ctx context.Context, group Group) (Group, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO perm_groups (slug, name)
		VALUES ($1, $2)
		RETURNING slug, name, created_at, updated_at`,
		group.Slug, group.Name)
	out := Group{}
	if err := row.Scan(&out.Slug, &out.Name, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Group{}, mapUnique(err, ErrDuplicateSlug)
	}
	return out, nil
}

func (r *repository) UpdateGroup(ctx context.Context, slug, name string) (Group, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE perm_groups SET name = $2, updated_at = now()
		WHERE slug = $1
		RETURNING slug, name, created_at, updated_at`,
		slug, name)
	out := Group{}
	if err := row.Scan(&out.Slug, &out.Name, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, ErrGroupNotFound
		}
		return Group{}, err
	}
	return r.GetGroup(ctx, out.Slug)
}

func (r *repository) DeleteGroup(ctx context.Context, slug string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM perm_groups WHERE slug = $1`, slug)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *repository) GetGroup(ctx context.Context, slug string) (Group, error) {
	row := r.db.QueryRow(ctx, `
		SELECT slug, name, created_at, updated_at
		FROM perm_groups WHERE slug = $1`, slug)
	out := Group{}
	if err := row.Scan(&out.Slug, &out.Name, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, ErrGroupNotFound
		}
		return Group{}, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT role_slug FROM perm_group_roles
		WHERE group_slug = $1 ORDER BY role_slug`, slug)
	if err != nil {
		return Group{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return Group{}, err
		}
		out.Roles = append(out.Roles, role)
	}
	return out, rows.Err()
}

func (r *repository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.db.Query(ctx, `
		SELECT slug, name, created_at, updated_at
		FROM perm_groups ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		group := Group{}
		if err := rows.Scan(&group.Slug, &group.Name, &group.CreatedAt, &group.UpdatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range groups {
		full, err := r.GetGroup(ctx, groups[i].Slug)
		if err != nil {
			return nil, err
		}
		groups[i].Roles = full.Roles
	}
	return groups, nil
}

func (r *repository) SetGroupRoles(ctx context.Context, slug string, roles []string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM perm_group_roles WHERE group_slug = $1`, slug); err != nil {
		return err
	}
	for _, role := range roles {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO perm_group_roles (group_slug, role_slug)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, slug, role); err != nil {
			return err
		}
	}
	return nil
}

// --- role grants ---

func (r *repository) CreateRoleGrant(ctx context.Context, rg RoleGrant) (RoleGrant, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO perm_role_grants (role_slug, scope, actions, context)
		VALUES ($1, $2, $3, $4)
		RETURNING id, role_slug, scope, actions, context, created_at, updated_at`,
		rg.Role, rg.Scope, rg.Actions, rg.Context)
	out, err := scanRoleGrant(row)
	if err != nil {
		return RoleGrant{}, mapUnique(err, ErrDuplicateTemplate)
	}
	return out, nil
}

func (r *repository) UpdateRoleGrant(ctx context.Context, id int64, acts []string, grantCtx map[string]any) (RoleGrant, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE perm_role_grants SET actions = $2, context = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, role_slug, scope, actions, context, created_at, updated_at`,
		id, acts, grantCtx)
	out, err := scanRoleGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleGrant{}, ErrRoleGrantNotFound
		}
		return RoleGrant{}, err
	}
	return out, nil
}

func (r *repository) DeleteRoleGrant(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM perm_role_grants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleGrantNotFound
	}
	return nil
}

func (r *repository) GetRoleGrant(ctx context.Context, id int64) (RoleGrant, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, role_slug, scope, actions, context, created_at, updated_at
		FROM perm_role_grants WHERE id = $1`, id)
	out, err := scanRoleGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleGrant{}, ErrRoleGrantNotFound
		}
		return RoleGrant{}, err
	}
	return out, nil
}

func (r *repository) ListRoleGrants(ctx context.Context, role, scope string) ([]RoleGrant, error) {
	query := `
		SELECT id, role_slug, scope, actions, context, created_at, updated_at
		FROM perm_role_grants`
	var conditions []string
	var args []any
	if role != "" {
		args = append(args, role)
		conditions = append(conditions, `role_slug = $1`)
	}
	if scope != "" {
		args = append(args, scope)
		if len(args) == 1 {
			conditions = append(conditions, `scope = $1`)
		} else {
			conditions = append(conditions, `scope = $2`)
		}
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + conditions[0]
		if len(conditions) == 2 {
			query += ` AND ` + conditions[1]
		}
	}
	query += ` ORDER BY role_slug, scope`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []RoleGrant
	for rows.Next() {
		rg, err := scanRoleGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, rg)
	}
	return grants, rows.Err()
}

// --- user groups ---

func (r *repository) CreateUserGroup(ctx context.Context, ug UserGroup) (UserGroup, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO perm_user_groups (user_id, group_slug, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, group_slug, created_by, created_at`,
		ug.UserID, ug.Group, ug.CreatedBy)
	out, err := scanUserGroup(row)
	if err != nil {
		return UserGroup{}, mapUnique(err, ErrAlreadyAssigned)
	}
	return out, nil
}

func (r *repository) GetUserGroup(ctx context.Context, userID uuid.UUID, group string) (UserGroup, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, group_slug, created_by, created_at
		FROM perm_user_groups WHERE user_id = $1 AND group_slug = $2`,
		userID, group)
	out, err := scanUserGroup(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserGroup{}, ErrGroupNotFound
		}
		return UserGroup{}, err
	}
	return out, nil
}

func (r *repository) ListUserGroupsByGroup(ctx context.Context, group string) ([]UserGroup, error) {
	return r.listUserGroups(ctx, `
		SELECT id, user_id, group_slug, created_by, created_at
		FROM perm_user_groups WHERE group_slug = $1 ORDER BY id`, group)
}

func (r *repository) ListUserGroupsForUser(ctx context.Context, userID uuid.UUID) ([]UserGroup, error) {
	return r.listUserGroups(ctx, `
		SELECT id, user_id, group_slug, created_by, created_at
		FROM perm_user_groups WHERE user_id = $1 ORDER BY id`, userID)
}

func (r *repository) listUserGroups(ctx context.Context, query string, arg any) ([]UserGroup, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var memberships []UserGroup
	for rows.Next() {
		ug, err := scanUserGroup(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, ug)
	}
	return memberships, rows.Err()
}

func (r *repository) DeleteUserGroup(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM perm_user_groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// --- grants ---

func (r *repository) UpsertGrant(ctx context.Context, grant Grant) (Grant, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO perm_grants (user_id, scope, role_slug, user_group_id, actions, context, locked, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT uq_grant_key
		DO UPDATE SET actions = EXCLUDED.actions, context = EXCLUDED.context, updated_at = now()
		RETURNING id, user_id, scope, role_slug, user_group_id, actions, context, locked, created_by, created_at, updated_at`,
		grant.UserID, grant.Scope, grant.Role, grant.UserGroupID,
		grant.Actions, grant.Context, grant.Locked, grant.CreatedBy)
	out, err := scanGrant(row)
	if err != nil {
		return Grant{}, mapUnique(err, ErrConstraintViolation)
	}
	return out, nil
}

func (r *repository) GetGrantByScope(ctx context.Context, userID uuid.UUID, scope string) (Grant, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, scope, role_slug, user_group_id, actions, context, locked, created_by, created_at, updated_at
		FROM perm_grants WHERE user_id = $1 AND scope = $2
		ORDER BY id LIMIT 1`, userID, scope)
	out, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{}, ErrGrantNotFound
		}
		return Grant{}, err
	}
	return out, nil
}

func (r *repository) ListGrants(ctx context.Context, filter GrantFilter) ([]Grant, error) {
	query := `
		SELECT id, user_id, scope, role_slug, user_group_id, actions, context, locked, created_by, created_at, updated_at
		FROM perm_grants`
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, cond+placeholder(len(args)))
	}
	if filter.UserID != nil {
		add(`user_id = `, *filter.UserID)
	}
	if filter.Scope != "" {
		add(`scope = `, filter.Scope)
	}
	if filter.Role != "" {
		add(`role_slug = `, filter.Role)
	}
	if filter.UserGroupID != nil {
		add(`user_group_id = `, *filter.UserGroupID)
	}
	if filter.DirectOnly {
		conditions = append(conditions, `user_group_id IS NULL`)
	}
	if filter.Unlocked {
		conditions = append(conditions, `locked = FALSE`)
	}
	for i, cond := range conditions {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}
	query += ` ORDER BY id`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

func (r *repository) UpdateGrantActions(ctx context.Context, id int64, acts []string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE perm_grants SET actions = $2, updated_at = now()
		WHERE id = $1 AND locked = FALSE AND actions IS DISTINCT FROM $2`,
		id, acts)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) LockGrant(ctx context.Context, id int64, acts []string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE perm_grants
		SET actions = $2, locked = TRUE, role_slug = NULL, updated_at = now()
		WHERE id = $1`, id, acts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGrantNotFound
	}
	return nil
}

func (r *repository) DeleteGrant(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM perm_grants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGrantNotFound
	}
	return nil
}

func (r *repository) DeleteGrantsByRole(ctx context.Context, userID uuid.UUID, role string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM perm_grants
		WHERE user_id = $1 AND role_slug = $2 AND user_group_id IS NULL`,
		userID, role)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repository) DeleteGrantsByUserGroup(ctx context.Context, userGroupID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM perm_grants WHERE user_group_id = $1`, userGroupID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repository) ListUserRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT role_slug FROM perm_grants
		WHERE user_id = $1 AND role_slug IS NOT NULL
		ORDER BY role_slug`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// --- scanning helpers ---

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.Slug, &role.Name, &role.App, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

func scanRoleGrant(row pgx.Row) (RoleGrant, error) {
	var rg RoleGrant
	err := row.Scan(&rg.ID, &rg.Role, &rg.Scope, &rg.Actions, &rg.Context, &rg.CreatedAt, &rg.UpdatedAt)
	return rg, err
}

func scanUserGroup(row pgx.Row) (UserGroup, error) {
	var ug UserGroup
	err := row.Scan(&ug.ID, &ug.UserID, &ug.Group, &ug.CreatedBy, &ug.CreatedAt)
	return ug, err
}

func scanGrant(row pgx.Row) (Grant, error) {
	var grant Grant
	err := row.Scan(&grant.ID, &grant.UserID, &grant.Scope, &grant.Role, &grant.UserGroupID,
		&grant.Actions, &grant.Context, &grant.Locked, &grant.CreatedBy, &grant.CreatedAt, &grant.UpdatedAt)
	return grant, err
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
