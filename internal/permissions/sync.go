package permissions

import (
	"context"

	"github.com/google/uuid"
)

// RoleSync reconciles direct (group-less) grants of a role with its current
// templates. Locked grants and group-derived grants are skipped: locked
// grants carry an explicit operator override, and group grants belong to
// GroupSync. Scope narrows the run to a single template when provided.
//
// The run is idempotent; with no intervening template change a second run
// reports zero updates.
func (s *Service) RoleSync(ctx context.Context, roleSlug, scope string) (RoleSyncStats, error) {
	roleSlug = normalizeSlug(roleSlug)
	stats := RoleSyncStats{}
	touched := map[uuid.UUID]struct{}{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetRole(ctx, roleSlug); err != nil {
			return err
		}
		templates, err := tx.ListRoleGrants(ctx, roleSlug, scope)
		if err != nil {
			return err
		}
		for _, rg := range templates {
			grants, err := tx.ListGrants(ctx, GrantFilter{
				Scope:      rg.Scope,
				Role:       roleSlug,
				DirectOnly: true,
				Unlocked:   true,
			})
			if err != nil {
				return err
			}
			for _, grant := range grants {
				updated, err := tx.UpdateGrantActions(ctx, grant.ID, rg.Actions)
				if err != nil {
					return err
				}
				if updated {
					stats.GrantsUpdated++
					touched[grant.UserID] = struct{}{}
				}
			}
		}
		return nil
	})
	if err != nil {
		return RoleSyncStats{}, err
	}
	for userID := range touched {
		s.invalidate(ctx, userID)
	}
	return stats, nil
}

// GroupSync reconciles every membership of a group: for each member role's
// templates, unlocked grants tagged with the membership are rewritten to the
// live template actions. Locked grants under a membership survive untouched.
func (s *Service) GroupSync(ctx context.Context, groupSlug string) (GroupSyncStats, error) {
	groupSlug = normalizeSlug(groupSlug)
	stats := GroupSyncStats{}
	touched := map[uuid.UUID]struct{}{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		group, err := tx.GetGroup(ctx, groupSlug)
		if err != nil {
			return err
		}
		memberships, err := tx.ListUserGroupsByGroup(ctx, group.Slug)
		if err != nil {
			return err
		}
		for _, membership := range memberships {
			stats.UsersSynced++
			for _, roleSlug := range group.Roles {
				templates, err := tx.ListRoleGrants(ctx, roleSlug, "")
				if err != nil {
					return err
				}
				for _, rg := range templates {
					groupID := membership.ID
					grants, err := tx.ListGrants(ctx, GrantFilter{
						Scope:       rg.Scope,
						Role:        roleSlug,
						UserGroupID: &groupID,
						Unlocked:    true,
					})
					if err != nil {
						return err
					}
					for _, grant := range grants {
						updated, err := tx.UpdateGrantActions(ctx, grant.ID, rg.Actions)
						if err != nil {
							return err
						}
						if updated {
							stats.GrantsUpdated++
							touched[grant.UserID] = struct{}{}
						}
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return GroupSyncStats{}, err
	}
	for userID := range touched {
		s.invalidate(ctx, userID)
	}
	return stats, nil
}
