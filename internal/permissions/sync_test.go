package permissions

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleSyncUpdatesDriftedGrants(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	seedRole(t, svc, "editor", map[string][]string{"articles": {"w"}})
	require.NoError(t, svc.AssignRole(ctx, userID, "editor", nil))

	templates, err := svc.ListRoleGrants(ctx, "editor")
	require.NoError(t, err)
	require.Len(t, templates, 1)
	_, err = svc.UpdateRoleGrant(ctx, templates[0].ID, []string{"d"}, nil)
	require.NoError(t, err)

	stats, err := svc.RoleSync(ctx, "editor", "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.GrantsUpdated)

	grants, err := svc.GetUserGrants(ctx, userID, "articles")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, []string{"d", "r", "w"}, grants[0].Actions)

	// A second run finds nothing to rewrite.
	stats, err = svc.RoleSync(ctx, "editor", "")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.GrantsUpdated)
}

func TestRoleSyncSkipsLockedGrants(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	seedRole(t, svc, "editor", map[string][]string{"articles": {"w", "a"}})
	require.NoError(t, svc.AssignRole(ctx, userID, "editor", nil))
	require.NoError(t, svc.OverrideGrant(ctx, userID, "articles", []string{"a"}))

	templates, err := svc.ListRoleGrants(ctx, "editor")
	require.NoError(t, err)
	_, err = svc.UpdateRoleGrant(ctx, templates[0].ID, []string{"d"}, nil)
	require.NoError(t, err)

	stats, err := svc.RoleSync(ctx, "editor", "")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.GrantsUpdated)

	grants, err := svc.GetUserGrants(ctx, userID, "articles")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, []string{"r", "w"}, grants[0].Actions)
	assert.True(t, grants[0].Locked)
}

func TestRoleSyncSkipsGroupDerivedGrants(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	direct := uuid.New()
	viaGroup := uuid.New()

	seedRole(t, svc, "editor", map[string][]string{"articles": {"w"}})
	_, err := svc.CreateGroup(ctx, "newsroom", "Newsroom", []string{"editor"})
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, direct, "editor", nil))
	_, err = svc.AssignGroup(ctx, viaGroup, "newsroom", nil)
	require.NoError(t, err)

	templates, err := svc.ListRoleGrants(ctx, "editor")
	require.NoError(t, err)
	_, err = svc.UpdateRoleGrant(ctx, templates[0].ID, []string{"d"}, nil)
	require.NoError(t, err)

	stats, err := svc.RoleSync(ctx, "editor", "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.GrantsUpdated)

	grants, err := svc.GetUserGrants(ctx, viaGroup, "articles")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, []string{"r", "w"}, grants[0].Actions)
}

func TestRoleSyncScopeNarrowing(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	userID := uuid.New()

	seedRole(t, svc, "editor", map[string][]string{"articles": {"w"}, "media": {"w"}})
	require.NoError(t, svc.AssignRole(ctx, userID, "editor", nil))

	templates, err := svc.ListRoleGrants(ctx, "editor")
	require.NoError(t, err)
	for _, rg := range templates {
		_, err = svc.UpdateRoleGrant(ctx, rg.ID, []string{"d"}, nil)
		require.NoError(t, err)
	}

	stats, err := svc.RoleSync(ctx, "editor", "articles")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.GrantsUpdated)

	grants, err := svc.GetUserGrants(ctx, userID, "media")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, []string{"r", "w"}, grants[0].Actions)
}

func TestRoleSyncUnknownRole(t *testing.T) {
	svc := newTestService(newMockRepository())

	_, err := svc.RoleSync(context.Background(), "ghost", "")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestGroupSyncReportsMembersAndUpdates(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	seedRole(t, svc, "editor", map[string][]string{"articles": {"w"}})
	_, err := svc.CreateGroup(ctx, "newsroom", "Newsroom", []string{"editor"})
	require.NoError(t, err)
	_, err = svc.AssignGroup(ctx, alice, "newsroom", nil)
	require.NoError(t, err)
	_, err = svc.AssignGroup(ctx, bob, "newsroom", nil)
	require.NoError(t, err)

	templates, err := svc.ListRoleGrants(ctx, "editor")
	require.NoError(t, err)
	_, err = svc.UpdateRoleGrant(ctx, templates[0].ID, []string{"d"}, nil)
	require.NoError(t, err)

	// Lock bob's grant so only alice's gets rewritten.
	require.NoError(t, svc.OverrideGrant(ctx, bob, "articles", []string{"w"}))

	stats, err := svc.GroupSync(ctx, "newsroom")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.UsersSynced)
	assert.Equal(t, 1, stats.GrantsUpdated)

	grants, err := svc.GetUserGrants(ctx, alice, "articles")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, []string{"d", "r", "w"}, grants[0].Actions)
}

func TestGroupSyncUnknownGroup(t *testing.T) {
	svc := newTestService(newMockRepository())

	_, err := svc.GroupSync(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}
