package permissions

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type grantKey struct {
	user  uuid.UUID
	scope string
	role  string
	group int64
}

type mockRepository struct {
	roles      map[string]Role
	groups     map[string]Group
	roleGrants map[int64]RoleGrant
	userGroups map[int64]UserGroup
	grants     map[int64]Grant

	nextRoleGrantID int64
	nextUserGroupID int64
	nextGrantID     int64

	txError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		roles:           make(map[string]Role),
		groups:          make(map[string]Group),
		roleGrants:      make(map[int64]RoleGrant),
		userGroups:      make(map[int64]UserGroup),
		grants:          make(map[int64]Grant),
		nextRoleGrantID: 1,
		nextUserGroupID: 1,
		nextGrantID:     1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, m)
}

func (m *mockRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	if _, ok := m.roles[role.Slug]; ok {
		return Role{}, ErrDuplicateSlug
	}
	m.roles[role.Slug] = role
	return role, nil
}

func (m *mockRepository) UpdateRole(ctx context.Context, slug, name string) (Role, error) {
	role, ok := m.roles[slug]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	role.Name = name
	m.roles[slug] = role
	return role, nil
}

func (m *mockRepository) GetRole(ctx context.Context, slug string) (Role, error) {
	role, ok := m.roles[slug]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (m *mockRepository) ListRoles(ctx context.Context, app string) ([]Role, error) {
	var roles []Role
	for _, role := range m.roles {
		if app == "" || role.App == app {
			roles = append(roles, role)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Slug < roles[j].Slug })
	return roles, nil
}

func (m *mockRepository) CountRoles(ctx context.Context) (int64, error) {
	return int64(len(m.roles)), nil
}

func (m *mockRepository) CreateGroup(ctx context.Context, group Group) (Group, error) {
	if _, ok := m.groups[group.Slug]; ok {
		return Group{}, ErrDuplicateSlug
	}
	m.groups[group.Slug] = group
	return group, nil
}

func (m *mockRepository) UpdateGroup(ctx context.Context, slug, name string) (Group, error) {
	group, ok := m.groups[slug]
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	group.Name = name
	m.groups[slug] = group
	return group, nil
}

func (m *mockRepository) DeleteGroup(ctx context.Context, slug string) error {
	if _, ok := m.groups[slug]; !ok {
		return ErrGroupNotFound
	}
	delete(m.groups, slug)
	for id, ug := range m.userGroups {
		if ug.Group != slug {
			continue
		}
		delete(m.userGroups, id)
		for gid, grant := range m.grants {
			if grant.UserGroupID != nil && *grant.UserGroupID == id {
				delete(m.grants, gid)
			}
		}
	}
	return nil
}

func (m *mockRepository) GetGroup(ctx context.Context, slug string) (Group, error) {
	group, ok := m.groups[slug]
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	return group, nil
}

func (m *mockRepository) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	for _, group := range m.groups {
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Slug < groups[j].Slug })
	return groups, nil
}

func (m *mockRepository) SetGroupRoles(ctx context.Context, slug string, roles []string) error {
	group, ok := m.groups[slug]
	if !ok {
		return ErrGroupNotFound
	}
	group.Roles = append([]string(nil), roles...)
	m.groups[slug] = group
	return nil
}

func (m *mockRepository) CreateRoleGrant(ctx context.Context, rg RoleGrant) (RoleGrant, error) {
	for _, existing := range m.roleGrants {
		if existing.Role == rg.Role && existing.Scope == rg.Scope {
			return RoleGrant{}, ErrDuplicateTemplate
		}
	}
	rg.ID = m.nextRoleGrantID
	m.nextRoleGrantID++
	m.roleGrants[rg.ID] = rg
	return rg, nil
}

func (m *mockRepository) UpdateRoleGrant(ctx context.Context, id int64, acts []string, grantCtx map[string]any) (RoleGrant, error) {
	rg, ok := m.roleGrants[id]
	if !ok {
		return RoleGrant{}, ErrRoleGrantNotFound
	}
	rg.Actions = append([]string(nil), acts...)
	rg.Context = grantCtx
	m.roleGrants[id] = rg
	return rg, nil
}

func (m *mockRepository) DeleteRoleGrant(ctx context.Context, id int64) error {
	if _, ok := m.roleGrants[id]; !ok {
		return ErrRoleGrantNotFound
	}
	delete(m.roleGrants, id)
	return nil
}

func (m *mockRepository) GetRoleGrant(ctx context.Context, id int64) (RoleGrant, error) {
	rg, ok := m.roleGrants[id]
	if !ok {
		return RoleGrant{}, ErrRoleGrantNotFound
	}
	return rg, nil
}

func (m *mockRepository) ListRoleGrants(ctx context.Context, role, scope string) ([]RoleGrant, error) {
	var grants []RoleGrant
	for _, rg := range m.roleGrants {
		if role != "" && rg.Role != role {
			continue
		}
		if scope != "" && rg.Scope != scope {
			continue
		}
		grants = append(grants, rg)
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].ID < grants[j].ID })
	return grants, nil
}

func (m *mockRepository) CreateUserGroup(ctx context.Context, ug UserGroup) (UserGroup, error) {
	for _, existing := range m.userGroups {
		if existing.UserID == ug.UserID && existing.Group == ug.Group {
			return UserGroup{}, ErrAlreadyAssigned
		}
	}
	ug.ID = m.nextUserGroupID
	m.nextUserGroupID++
	m.userGroups[ug.ID] = ug
	return ug, nil
}

func (m *mockRepository) GetUserGroup(ctx context.Context, userID uuid.UUID, group string) (UserGroup, error) {
	for _, ug := range m.userGroups {
		if ug.UserID == userID && ug.Group == group {
			return ug, nil
		}
	}
	return UserGroup{}, ErrGroupNotFound
}

func (m *mockRepository) ListUserGroupsByGroup(ctx context.Context, group string) ([]UserGroup, error) {
	var memberships []UserGroup
	for _, ug := range m.userGroups {
		if ug.Group == group {
			memberships = append(memberships, ug)
		}
	}
	sort.Slice(memberships, func(i, j int) bool { return memberships[i].ID < memberships[j].ID })
	return memberships, nil
}

func (m *mockRepository) ListUserGroupsForUser(ctx context.Context, userID uuid.UUID) ([]UserGroup, error) {
	var memberships []UserGroup
	for _, ug := range m.userGroups {
		if ug.UserID == userID {
			memberships = append(memberships, ug)
		}
	}
	sort.Slice(memberships, func(i, j int) bool { return memberships[i].ID < memberships[j].ID })
	return memberships, nil
}

func (m *mockRepository) DeleteUserGroup(ctx context.Context, id int64) error {
	if _, ok := m.userGroups[id]; !ok {
		return ErrGroupNotFound
	}
	delete(m.userGroups, id)
	return nil
}

func keyOf(grant Grant) grantKey {
	key := grantKey{user: grant.UserID, scope: grant.Scope}
	if grant.Role != nil {
		key.role = *grant.Role
	}
	if grant.UserGroupID != nil {
		key.group = *grant.UserGroupID
	}
	return key
}

func (m *mockRepository) UpsertGrant(ctx context.Context, grant Grant) (Grant, error) {
	key := keyOf(grant)
	for id, existing := range m.grants {
		if keyOf(existing) == key {
			existing.Actions = append([]string(nil), grant.Actions...)
			existing.Context = grant.Context
			m.grants[id] = existing
			return existing, nil
		}
	}
	grant.ID = m.nextGrantID
	m.nextGrantID++
	m.grants[grant.ID] = grant
	return grant, nil
}

func (m *mockRepository) GetGrantByScope(ctx context.Context, userID uuid.UUID, scope string) (Grant, error) {
	best := Grant{}
	found := false
	for _, grant := range m.grants {
		if grant.UserID == userID && grant.Scope == scope {
			if !found || grant.ID < best.ID {
				best = grant
				found = true
			}
		}
	}
	if !found {
		return Grant{}, ErrGrantNotFound
	}
	return best, nil
}

func (m *mockRepository) ListGrants(ctx context.Context, filter GrantFilter) ([]Grant, error) {
	var grants []Grant
	for _, grant := range m.grants {
		if filter.UserID != nil && grant.UserID != *filter.UserID {
			continue
		}
		if filter.Scope != "" && grant.Scope != filter.Scope {
			continue
		}
		if filter.Role != "" && (grant.Role == nil || *grant.Role != filter.Role) {
			continue
		}
		if filter.UserGroupID != nil && (grant.UserGroupID == nil || *grant.UserGroupID != *filter.UserGroupID) {
			continue
		}
		if filter.DirectOnly && grant.UserGroupID != nil {
			continue
		}
		if filter.Unlocked && grant.Locked {
			continue
		}
		grants = append(grants, grant)
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].ID < grants[j].ID })
	return grants, nil
}

func sameActions(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (m *mockRepository) UpdateGrantActions(ctx context.Context, id int64, acts []string) (bool, error) {
	grant, ok := m.grants[id]
	if !ok || grant.Locked || sameActions(grant.Actions, acts) {
		return false, nil
	}
	grant.Actions = append([]string(nil), acts...)
	m.grants[id] = grant
	return true, nil
}

func (m *mockRepository) LockGrant(ctx context.Context, id int64, acts []string) error {
	grant, ok := m.grants[id]
	if !ok {
		return ErrGrantNotFound
	}
	grant.Actions = append([]string(nil), acts...)
	grant.Locked = true
	grant.Role = nil
	m.grants[id] = grant
	return nil
}

func (m *mockRepository) DeleteGrant(ctx context.Context, id int64) error {
	if _, ok := m.grants[id]; !ok {
		return ErrGrantNotFound
	}
	delete(m.grants, id)
	return nil
}

func (m *mockRepository) DeleteGrantsByRole(ctx context.Context, userID uuid.UUID, role string) (int64, error) {
	var deleted int64
	for id, grant := range m.grants {
		if grant.UserID == userID && grant.UserGroupID == nil &&
			grant.Role != nil && *grant.Role == role {
			delete(m.grants, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockRepository) DeleteGrantsByUserGroup(ctx context.Context, userGroupID int64) (int64, error) {
	var deleted int64
	for id, grant := range m.grants {
		if grant.UserGroupID != nil && *grant.UserGroupID == userGroupID {
			delete(m.grants, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockRepository) ListUserRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	seen := map[string]struct{}{}
	for _, grant := range m.grants {
		if grant.UserID == userID && grant.Role != nil {
			seen[*grant.Role] = struct{}{}
		}
	}
	roles := make([]string, 0, len(seen))
	for role := range seen {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles, nil
}

// ============================================================================
// FIXTURES
// ============================================================================

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, ServiceConfig{})
}

func seedRole(t *testing.T, svc *Service, slug string, templates map[string][]string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.CreateRole(ctx, slug, slug, "")
	require.NoError(t, err)
	for scope, acts := range templates {
		_, err := svc.CreateRoleGrant(ctx, slug, scope, acts, nil)
		require.NoError(t, err)
	}
}

// ============================================================================
// TEMPLATE STORE
// ============================================================================

func TestCreateRoleNormalizesSlug(t *testing.T) {
	svc := newTestService(newMockRepository())

	role, err := svc.CreateRole(context.Background(), "  Content Editor ", "Content Editor", "cms")
	require.NoError(t, err)
	assert.Equal(t, "content-editor", role.Slug)

	_, err = svc.CreateRole(context.Background(), "content-editor", "Again", "cms")
	assert.ErrorIs(t, err, ErrDuplicateSlug)
}

func TestCreateRoleGrantExpandsActions(t *testing.T) {
	svc := newTestService(newMockRepository())
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, "editor", "Editor", "")
	require.NoError(t, err)

	rg, err := svc.CreateRoleGrant(ctx, "editor", "articles", []string{"d"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "r", "w"}, rg.Actions)

	_, err = svc.CreateRoleGrant(ctx, "editor", "articles", []string{"r"}, nil)
	assert.ErrorIs(t, err, ErrDuplicateTemplate)
}

func TestCreateRoleGrantRejectsUnknownRole(t *testing.T) {
	svc := newTestService(newMockRepository())

	_, err := svc.CreateRoleGrant(context.Background(), "ghost", "articles", []string{"r"}, nil)
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestScopeAndContextWhitelists(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, ServiceConfig{
		Scopes:      []string{"articles"},
		ContextKeys: []string{"tenant_id"},
	})
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, "editor", "Editor", "")
	require.NoError(t, err)

	_, err = svc.CreateRoleGrant(ctx, "editor", "invoices", []string{"r"}, nil)
	assert.ErrorIs(t, err, ErrScopeNotAllowed)

	_, err = svc.CreateRoleGrant(ctx, "editor", "articles", []string{"r"}, map[string]any{"region": "eu"})
	assert.ErrorIs(t, err, ErrContextKeyNotAllowed)

	_, err = svc.CreateRoleGrant(ctx, "editor", "articles", []string{"r"}, map[string]any{"tenant_id": 7})
	assert.NoError(t, err)
}

// ============================================================================
// ASSIGNMENT ENGINE
// ============================================================================

func TestAssignRoleMaterializesTemplates(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	seedRole(t, svc, "editor", map[string][]string{
		"articles": {"d"},
		"media":    {"w"},
	})

	require.NoError(t, svc.AssignRole(ctx, userID, "editor", nil))

	grants, err := svc.GetUserGrants(ctx, userID, "")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	byScope := map[string]Grant{}
	for _, grant := range grants {
		byScope[grant.Scope] = grant
	}
	assert.Equal(t, []string{"d", "r", "w"}, byScope["articles"].Actions)
	assert.Equal(t, []string{"r", "w"}, byScope["media"].Actions)
	require.NotNil(t, byScope["articles"].Role)
	assert.Equal(t, "editor", *byScope["articles"].Role)
	assert.False(t, byScope["articles"].Locked)

	// Re-assignment refreshes grants instead of duplicating them.
	require.NoError(t, svc.AssignRole(ctx, userID, "editor", nil))
	grants, err = svc.GetUserGrants(ctx, userID, "")
	require.NoError(t, err)
	assert.Len(t, grants, 2)
}

func TestAssignRoleUnknownRole(t *testing.T) {
	svc := newTestService(newMockRepository())

	err := svc.AssignRole(context.Background(), uuid.New(), "ghost", nil)
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRevokeRoleLeavesOtherRolesIntact(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	seedRole(t, svc, "editor", map[string][]string{"articles": {"w"}})
	seedRole(t, svc, "auditor", map[string][]string{"reports": {"r"}})
	require.NoError(t, svc.AssignRole(ctx, userID, "editor", nil))
	require.NoError(t, svc.AssignRole(ctx, userID, "auditor", nil))

	deleted, err := svc.RevokeRole(ctx, userID, "editor")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	grants, err := svc.GetUserGrants(ctx, userID, "")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "reports", grants[0].Scope)
}

func TestRevokeRoleKeepsGroupDerivedGrants(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	seedRole(t, svc, "editor", map[string][]string{"articles": {"w"}})
	_, err := svc.CreateGroup(ctx, "newsroom", "Newsroom", []string{"editor"})
	require.NoError(t, err)
	_, err = svc.AssignGroup(ctx, userID, "newsroom", nil)
	require.NoError(t, err)

	deleted, err := svc.RevokeRole(ctx, userID, "editor")
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	grants, err := svc.GetUserGrants(ctx, userID, "")
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestGroupRolesLeaveCallerSliceUntouched(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	seedRole(t, svc, "content-editor", map[string][]string{"articles": {"w"}})
	seedRole(t, svc, "auditor", map[string][]string{"reports": {"r"}})

	supplied := []string{"  Content Editor ", "AUDITOR"}
	group, err := svc.CreateGroup(ctx, "newsroom", "Newsroom", supplied)
	require.NoError(t, err)
	assert.Equal(t, []string{"content-editor", "auditor"}, group.Roles)
	assert.Equal(t, []string{"  Content Editor ", "AUDITOR"}, supplied)

	updated := []string{"AUDITOR"}
	group, err = svc.UpdateGroup(ctx, "newsroom", "Newsroom", updated)
	require.NoError(t, err)
	assert.Equal(t, []string{"auditor"}, group.Roles)
	assert.Equal(t, []string{"AUDITOR"}, updated)
}

func TestAssignGroupMaterializesMemberRoles(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	seedRole(t, svc, "editor", map[string][]string{"articles": {"w"}})
	seedRole(t, svc, "auditor", map[string][]string{"reports": {"r"}})
	_, err := svc.CreateGroup(ctx, "newsroom", "Newsroom", []string{"editor", "auditor"})
	require.NoError(t, err)

	membership, err := svc.AssignGroup(ctx, userID, "newsroom", nil)
	require.NoError(t, err)
	assert.Equal(t, "newsroom", membership.Group)

	grants, err := svc.GetUserGrants(ctx, userID, "")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	for _, grant := range grants {
		require.NotNil(t, grant.UserGroupID)
		assert.Equal(t, membership.ID, *grant.UserGroupID)
	}

	_, err = svc.AssignGroup(ctx, userID, "newsroom", nil)
	assert.ErrorIs(t, err, ErrAlreadyAssigned)
}

func TestRevokeGroupCascadesIncludingLocked(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	seedRole(t, svc, "editor", map[string][]string{"articles": {"w"}, "media": {"w"}})
	_, err := svc.CreateGroup(ctx, "newsroom", "Newsroom", []string{"editor"})
	require.NoError(t, err)
	_, err = svc.AssignGroup(ctx, userID, "newsroom", nil)
	require.NoError(t, err)

	// Lock one of the membership's grants through an override.
	require.NoError(t, svc.OverrideGrant(ctx, userID, "media", []string{"w"}))

	deleted, err := svc.RevokeGroup(ctx, userID, "newsroom")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	grants, err := svc.GetUserGrants(ctx, userID, "")
	require.NoError(t, err)
	assert.Empty(t, grants)
	memberships, err := svc.GetUserGroups(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, memberships)
}

func TestRevokeGroupWithoutMembership(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateGroup(ctx, "newsroom", "Newsroom", nil)
	require.NoError(t, err)

	deleted, err := svc.RevokeGroup(ctx, uuid.New(), "newsroom")
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

// ============================================================================
// OVERRIDE ENGINE
// ============================================================================

func TestOverrideGrantReducesAndLocks(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	seedRole(t, svc, "editor", map[string][]string{"articles": {"w", "a"}})
	require.NoError(t, svc.AssignRole(ctx, userID, "editor", nil))

	require.NoError(t, svc.OverrideGrant(ctx, userID, "articles", []string{"w"}))

	grants, err := svc.GetUserGrants(ctx, userID, "articles")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	grant := grants[0]
	assert.Equal(t, []string{"a", "r"}, grant.Actions)
	assert.True(t, grant.Locked)
	assert.Nil(t, grant.Role)
}

func TestOverrideGrantKeepsImpliedLeftovers(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	// The template's "w" expands to {r,w}; removing "w" must leave a locked
	// grant holding the implied "r", not delete the grant.
	seedRole(t, svc, "editor", map[string][]string{"articles": {"w"}})
	require.NoError(t, svc.AssignRole(ctx, userID, "editor", nil))

	require.NoError(t, svc.OverrideGrant(ctx, userID, "articles", []string{"w"}))

	grants, err := svc.GetUserGrants(ctx, userID, "articles")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	grant := grants[0]
	assert.Equal(t, []string{"r"}, grant.Actions)
	assert.True(t, grant.Locked)
	assert.Nil(t, grant.Role)
}

func TestOverrideGrantRemovesImplyingActions(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	// Removing "w" also strips "d", which implies it; only {r} survives.
	seedRole(t, svc, "publisher", map[string][]string{"articles": {"d"}})
	require.NoError(t, svc.AssignRole(ctx, userID, "publisher", nil))

	require.NoError(t, svc.OverrideGrant(ctx, userID, "articles", []string{"w"}))

	grants, err := svc.GetUserGrants(ctx, userID, "articles")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, []string{"r"}, grants[0].Actions)
	assert.True(t, grants[0].Locked)
}

func TestOverrideGrantRemovingEverythingDeletes(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	seedRole(t, svc, "viewer", map[string][]string{"articles": {"r"}})
	require.NoError(t, svc.AssignRole(ctx, userID, "viewer", nil))

	require.NoError(t, svc.OverrideGrant(ctx, userID, "articles", []string{"r"}))

	grants, err := svc.GetUserGrants(ctx, userID, "")
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestOverrideGrantMissingGrant(t *testing.T) {
	svc := newTestService(newMockRepository())

	err := svc.OverrideGrant(context.Background(), uuid.New(), "articles", []string{"r"})
	assert.ErrorIs(t, err, ErrGrantNotFound)
}

// ============================================================================
// READS
// ============================================================================

func TestGetUserRolesDistinct(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	seedRole(t, svc, "editor", map[string][]string{"articles": {"w"}, "media": {"w"}})
	seedRole(t, svc, "auditor", map[string][]string{"reports": {"r"}})
	require.NoError(t, svc.AssignRole(ctx, userID, "editor", nil))
	require.NoError(t, svc.AssignRole(ctx, userID, "auditor", nil))

	roles, err := svc.GetUserRoles(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"auditor", "editor"}, roles)
}
