package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/oxiliere/oxutils/internal/actions"
)

// Preset declares an initial set of roles, groups and role grants, typically
// loaded from a JSON file at deploy time.
type Preset struct {
	Roles []PresetRole `json:"roles" yaml:"roles"`
	// Scopes seeds the scope whitelist for documentation purposes; it is not
	// persisted.
	Scopes     []string          `json:"scopes" yaml:"scopes"`
	Groups     []PresetGroup     `json:"groups" yaml:"groups"`
	RoleGrants []PresetRoleGrant `json:"role_grants" yaml:"role_grants"`
}

// PresetRole declares one role.
type PresetRole struct {
	Slug string `json:"slug" yaml:"slug"`
	Name string `json:"name" yaml:"name"`
	App  string `json:"app" yaml:"app"`
}

// PresetGroup declares one group and its member roles.
type PresetGroup struct {
	Slug  string   `json:"slug" yaml:"slug"`
	Name  string   `json:"name" yaml:"name"`
	Roles []string `json:"roles" yaml:"roles"`
}

// PresetRoleGrant declares one template.
type PresetRoleGrant struct {
	Role    string         `json:"role" yaml:"role"`
	Scope   string         `json:"scope" yaml:"scope"`
	Actions []string       `json:"actions" yaml:"actions"`
	Context map[string]any `json:"context" yaml:"context"`
}

// PresetStats counts the records a preset load created.
type PresetStats struct {
	Roles      int
	Groups     int
	RoleGrants int
}

// ErrPresetRefused indicates roles already exist and force was not set.
var ErrPresetRefused = errors.New("permissions: roles already exist, refusing to load preset without force")

// LoadPreset bulk-creates the preset's roles, groups and role grants. When
// roles already exist the load is refused unless force is set, to avoid
// accidental duplication over a live installation. Records that already exist
// are skipped, so a forced re-run is idempotent.
func (s *Service) LoadPreset(ctx context.Context, preset Preset, force bool) (PresetStats, error) {
	stats := PresetStats{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		existing, err := tx.CountRoles(ctx)
		if err != nil {
			return err
		}
		if existing > 0 && !force {
			return fmt.Errorf("%w (%d roles present)", ErrPresetRefused, existing)
		}

		for _, role := range preset.Roles {
			_, err := tx.CreateRole(ctx, Role{
				Slug: normalizeSlug(role.Slug),
				Name: role.Name,
				App:  role.App,
			})
			if errors.Is(err, ErrDuplicateSlug) {
				continue
			}
			if err != nil {
				return err
			}
			stats.Roles++
		}

		for _, group := range preset.Groups {
			slug := normalizeSlug(group.Slug)
			_, err := tx.CreateGroup(ctx, Group{Slug: slug, Name: group.Name})
			if err != nil && !errors.Is(err, ErrDuplicateSlug) {
				return err
			}
			if err == nil {
				stats.Groups++
			}
			roles := make([]string, 0, len(group.Roles))
			for _, role := range group.Roles {
				role = normalizeSlug(role)
				if _, err := tx.GetRole(ctx, role); err != nil {
					return fmt.Errorf("group %q: %w", slug, err)
				}
				roles = append(roles, role)
			}
			if err := tx.SetGroupRoles(ctx, slug, roles); err != nil {
				return err
			}
		}

		for _, rg := range preset.RoleGrants {
			role := normalizeSlug(rg.Role)
			if _, err := tx.GetRole(ctx, role); err != nil {
				return fmt.Errorf("role grant %q/%q: %w", rg.Role, rg.Scope, err)
			}
			expanded, err := actions.Expand(rg.Actions)
			if err != nil {
				return err
			}
			grantCtx := rg.Context
			if grantCtx == nil {
				grantCtx = map[string]any{}
			}
			_, err = tx.CreateRoleGrant(ctx, RoleGrant{
				Role:    role,
				Scope:   rg.Scope,
				Actions: expanded,
				Context: grantCtx,
			})
			if errors.Is(err, ErrDuplicateTemplate) {
				continue
			}
			if err != nil {
				return err
			}
			stats.RoleGrants++
		}
		return nil
	})
	if err != nil {
		return PresetStats{}, err
	}
	return stats, nil
}
