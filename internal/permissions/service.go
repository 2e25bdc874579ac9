package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/oxiliere/oxutils/internal/actions"
)

// ServiceConfig carries the scope and context-key whitelists. Empty slices
// disable the corresponding restriction.
type ServiceConfig struct {
	Scopes      []string
	ContextKeys []string
}

// Service orchestrates templates, assignments, overrides, sync and checks.
type Service struct {
	repo  Repository
	cfg   ServiceConfig
	cache *CheckCache
}

// NewService constructs a Service. The cache may be nil, in which case every
// check reads through to the repository.
func NewService(repo Repository, cache *CheckCache, cfg ServiceConfig) *Service {
	return &Service{repo: repo, cfg: cfg, cache: cache}
}

var slugCaser = cases.Lower(language.Und)

func normalizeSlug(raw string) string {
	slug := slugCaser.String(strings.TrimSpace(raw))
	return strings.ReplaceAll(slug, " ", "-")
}

func (s *Service) allowScope(scope string) error {
	if len(s.cfg.Scopes) == 0 {
		return nil
	}
	for _, allowed := range s.cfg.Scopes {
		if allowed == scope {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrScopeNotAllowed, scope)
}

func (s *Service) allowContext(grantCtx map[string]any) error {
	if len(s.cfg.ContextKeys) == 0 {
		return nil
	}
	for key := range grantCtx {
		found := false
		for _, allowed := range s.cfg.ContextKeys {
			if allowed == key {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q", ErrContextKeyNotAllowed, key)
		}
	}
	return nil
}

// --- template store ---

// CreateRole registers a new role template identity.
func (s *Service) CreateRole(ctx context.Context, slug, name, app string) (Role, error) {
	slug = normalizeSlug(slug)
	if slug == "" || strings.TrimSpace(name) == "" {
		return Role{}, errors.New("permissions: role slug and name required")
	}
	return s.repo.CreateRole(ctx, Role{Slug: slug, Name: strings.TrimSpace(name), App: app})
}

// UpdateRole renames a role. The slug is immutable once grants reference it.
func (s *Service) UpdateRole(ctx context.Context, slug, name string) (Role, error) {
	if strings.TrimSpace(name) == "" {
		return Role{}, errors.New("permissions: role name required")
	}
	return s.repo.UpdateRole(ctx, normalizeSlug(slug), strings.TrimSpace(name))
}

// GetRole fetches a role by slug.
func (s *Service) GetRole(ctx context.Context, slug string) (Role, error) {
	return s.repo.GetRole(ctx, normalizeSlug(slug))
}

// ListRoles returns roles, optionally filtered by owning application.
func (s *Service) ListRoles(ctx context.Context, app string) ([]Role, error) {
	return s.repo.ListRoles(ctx, app)
}

// ListScopes returns the configured scope whitelist.
func (s *Service) ListScopes() []string {
	return append([]string(nil), s.cfg.Scopes...)
}

// CreateGroup registers a group and optionally its member roles.
func (s *Service) CreateGroup(ctx context.Context, slug, name string, roleSlugs []string) (Group, error) {
	slug = normalizeSlug(slug)
	if slug == "" || strings.TrimSpace(name) == "" {
		return Group{}, errors.New("permissions: group slug and name required")
	}
	roles, err := s.normalizeGroupRoles(ctx, roleSlugs)
	if err != nil {
		return Group{}, err
	}
	group, err := s.repo.CreateGroup(ctx, Group{Slug: slug, Name: strings.TrimSpace(name)})
	if err != nil {
		return Group{}, err
	}
	if len(roles) > 0 {
		if err := s.repo.SetGroupRoles(ctx, slug, roles); err != nil {
			return Group{}, err
		}
		group.Roles = roles
	}
	return group, nil
}

// normalizeGroupRoles returns a fresh normalized copy of the slugs, leaving
// the caller's slice untouched, and verifies each role exists.
func (s *Service) normalizeGroupRoles(ctx context.Context, roleSlugs []string) ([]string, error) {
	roles := make([]string, len(roleSlugs))
	for i, role := range roleSlugs {
		roles[i] = normalizeSlug(role)
		if _, err := s.repo.GetRole(ctx, roles[i]); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// UpdateGroup renames a group and, when roles is non-nil, replaces its
// membership.
func (s *Service) UpdateGroup(ctx context.Context, slug, name string, roleSlugs []string) (Group, error) {
	slug = normalizeSlug(slug)
	group, err := s.repo.UpdateGroup(ctx, slug, strings.TrimSpace(name))
	if err != nil {
		return Group{}, err
	}
	if roleSlugs != nil {
		roles, err := s.normalizeGroupRoles(ctx, roleSlugs)
		if err != nil {
			return Group{}, err
		}
		if err := s.repo.SetGroupRoles(ctx, slug, roles); err != nil {
			return Group{}, err
		}
		group.Roles = roles
	}
	return group, nil
}

// DeleteGroup removes a group; memberships and group grants cascade away.
func (s *Service) DeleteGroup(ctx context.Context, slug string) error {
	return s.repo.DeleteGroup(ctx, normalizeSlug(slug))
}

// GetGroup fetches a group and its member role slugs.
func (s *Service) GetGroup(ctx context.Context, slug string) (Group, error) {
	return s.repo.GetGroup(ctx, normalizeSlug(slug))
}

// ListGroups returns all groups.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	return s.repo.ListGroups(ctx)
}

// GetGroupMembers returns the memberships recorded for a group.
func (s *Service) GetGroupMembers(ctx context.Context, slug string) ([]UserGroup, error) {
	slug = normalizeSlug(slug)
	if _, err := s.repo.GetGroup(ctx, slug); err != nil {
		return nil, err
	}
	return s.repo.ListUserGroupsByGroup(ctx, slug)
}

// CreateRoleGrant stores a (role, scope) template. Raw actions are replaced
// by their closure before persistence so templates are always pre-expanded.
func (s *Service) CreateRoleGrant(ctx context.Context, roleSlug, scope string, acts []string, grantCtx map[string]any) (RoleGrant, error) {
	roleSlug = normalizeSlug(roleSlug)
	if err := s.allowScope(scope); err != nil {
		return RoleGrant{}, err
	}
	if err := s.allowContext(grantCtx); err != nil {
		return RoleGrant{}, err
	}
	expanded, err := actions.Expand(acts)
	if err != nil {
		return RoleGrant{}, err
	}
	if _, err := s.repo.GetRole(ctx, roleSlug); err != nil {
		return RoleGrant{}, err
	}
	if grantCtx == nil {
		grantCtx = map[string]any{}
	}
	return s.repo.CreateRoleGrant(ctx, RoleGrant{
		Role:    roleSlug,
		Scope:   scope,
		Actions: expanded,
		Context: grantCtx,
	})
}

// UpdateRoleGrant rewrites a template's actions and context, re-expanding the
// action set. Materialized grants catch up on the next sync.
func (s *Service) UpdateRoleGrant(ctx context.Context, id int64, acts []string, grantCtx map[string]any) (RoleGrant, error) {
	if err := s.allowContext(grantCtx); err != nil {
		return RoleGrant{}, err
	}
	expanded, err := actions.Expand(acts)
	if err != nil {
		return RoleGrant{}, err
	}
	if grantCtx == nil {
		grantCtx = map[string]any{}
	}
	return s.repo.UpdateRoleGrant(ctx, id, expanded, grantCtx)
}

// DeleteRoleGrant removes a template. Existing materialized grants are left
// in place until revoked or synced away by their owners.
func (s *Service) DeleteRoleGrant(ctx context.Context, id int64) error {
	return s.repo.DeleteRoleGrant(ctx, id)
}

// ListRoleGrants returns templates, optionally filtered by role slug.
func (s *Service) ListRoleGrants(ctx context.Context, roleSlug string) ([]RoleGrant, error) {
	if roleSlug != "" {
		roleSlug = normalizeSlug(roleSlug)
		if _, err := s.repo.GetRole(ctx, roleSlug); err != nil {
			return nil, err
		}
	}
	return s.repo.ListRoleGrants(ctx, roleSlug, "")
}

// --- assignment engine ---

// AssignRole materializes every template of the role into grants for the
// principal. Re-invoking refreshes the same grants rather than duplicating
// them.
func (s *Service) AssignRole(ctx context.Context, userID uuid.UUID, roleSlug string, actor *uuid.UUID) error {
	roleSlug = normalizeSlug(roleSlug)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		role, err := tx.GetRole(ctx, roleSlug)
		if err != nil {
			return err
		}
		templates, err := tx.ListRoleGrants(ctx, role.Slug, "")
		if err != nil {
			return err
		}
		for _, rg := range templates {
			roleRef := role.Slug
			if _, err := tx.UpsertGrant(ctx, Grant{
				UserID:    userID,
				Scope:     rg.Scope,
				Role:      &roleRef,
				Actions:   rg.Actions,
				Context:   rg.Context,
				CreatedBy: actor,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// RevokeRole deletes the principal's direct grants for the role and returns
// the number removed. Group-derived grants are untouched.
func (s *Service) RevokeRole(ctx context.Context, userID uuid.UUID, roleSlug string) (int64, error) {
	roleSlug = normalizeSlug(roleSlug)
	var deleted int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetRole(ctx, roleSlug); err != nil {
			return err
		}
		var err error
		deleted, err = tx.DeleteGrantsByRole(ctx, userID, roleSlug)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, userID)
	return deleted, nil
}

// AssignGroup records the membership and materializes grants for every
// template of every member role, all tagged with the new membership.
func (s *Service) AssignGroup(ctx context.Context, userID uuid.UUID, groupSlug string, actor *uuid.UUID) (UserGroup, error) {
	groupSlug = normalizeSlug(groupSlug)
	var membership UserGroup
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		group, err := tx.GetGroup(ctx, groupSlug)
		if err != nil {
			return err
		}
		membership, err = tx.CreateUserGroup(ctx, UserGroup{
			UserID:    userID,
			Group:     group.Slug,
			CreatedBy: actor,
		})
		if err != nil {
			return err
		}
		for _, roleSlug := range group.Roles {
			templates, err := tx.ListRoleGrants(ctx, roleSlug, "")
			if err != nil {
				return err
			}
			for _, rg := range templates {
				roleRef := roleSlug
				groupID := membership.ID
				if _, err := tx.UpsertGrant(ctx, Grant{
					UserID:      userID,
					Scope:       rg.Scope,
					Role:        &roleRef,
					UserGroupID: &groupID,
					Actions:     rg.Actions,
					Context:     rg.Context,
					CreatedBy:   actor,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return UserGroup{}, err
	}
	s.invalidate(ctx, userID)
	return membership, nil
}

// RevokeGroup withdraws the membership and every grant that traces back to
// it, locked or not. A principal without the membership yields zero deletions.
func (s *Service) RevokeGroup(ctx context.Context, userID uuid.UUID, groupSlug string) (int64, error) {
	groupSlug = normalizeSlug(groupSlug)
	var deleted int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetGroup(ctx, groupSlug); err != nil {
			return err
		}
		membership, err := tx.GetUserGroup(ctx, userID, groupSlug)
		if err != nil {
			if errors.Is(err, ErrGroupNotFound) {
				return nil
			}
			return err
		}
		deleted, err = tx.DeleteGrantsByUserGroup(ctx, membership.ID)
		if err != nil {
			return err
		}
		return tx.DeleteUserGroup(ctx, membership.ID)
	})
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, userID)
	return deleted, nil
}

// --- override engine ---

// OverrideGrant removes actions from the principal's grant on the scope.
// Everything in the grant that implies a removed action goes with it, so the
// removal cannot be re-derived; actions the removed ones merely implied
// survive (removing "w" from {r,w} keeps {r}). An emptied grant is deleted;
// otherwise the grant is locked and detached from its role template, making
// it a standalone custom grant.
func (s *Service) OverrideGrant(ctx context.Context, userID uuid.UUID, scope string, removeActions []string) error {
	for _, code := range removeActions {
		if !actions.Valid(code) {
			return fmt.Errorf("%w: %q", actions.ErrInvalid, code)
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		grant, err := tx.GetGrantByScope(ctx, userID, scope)
		if err != nil {
			return err
		}
		remaining, err := actions.Subtract(grant.Actions, removeActions)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			return tx.DeleteGrant(ctx, grant.ID)
		}
		return tx.LockGrant(ctx, grant.ID, remaining)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// --- reads ---

// GetUserGrants returns the principal's grants, optionally for one scope.
func (s *Service) GetUserGrants(ctx context.Context, userID uuid.UUID, scope string) ([]Grant, error) {
	return s.repo.ListGrants(ctx, GrantFilter{UserID: &userID, Scope: scope})
}

// GetUserRoles returns the distinct role slugs backing the principal's grants.
func (s *Service) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return s.repo.ListUserRoles(ctx, userID)
}

// GetUserGroups returns the principal's group memberships.
func (s *Service) GetUserGroups(ctx context.Context, userID uuid.UUID) ([]UserGroup, error) {
	return s.repo.ListUserGroupsForUser(ctx, userID)
}

func (s *Service) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
}
