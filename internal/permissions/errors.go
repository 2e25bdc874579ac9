package permissions

import "errors"

var (
	// ErrRoleNotFound indicates an unknown role slug.
	ErrRoleNotFound = errors.New("permissions: role not found")
	// ErrGroupNotFound indicates an unknown group slug.
	ErrGroupNotFound = errors.New("permissions: group not found")
	// ErrGrantNotFound indicates no grant exists for the principal and scope.
	ErrGrantNotFound = errors.New("permissions: grant not found")
	// ErrRoleGrantNotFound indicates an unknown role grant template.
	ErrRoleGrantNotFound = errors.New("permissions: role grant not found")

	// ErrDuplicateSlug indicates a role or group slug collision.
	ErrDuplicateSlug = errors.New("permissions: slug already exists")
	// ErrDuplicateTemplate indicates a (role, scope) template collision.
	ErrDuplicateTemplate = errors.New("permissions: role grant already exists for role and scope")
	// ErrAlreadyAssigned indicates the group is already assigned to the principal.
	ErrAlreadyAssigned = errors.New("permissions: group already assigned to user")

	// ErrMalformedPermission indicates a permission expression that does not
	// follow the scope:actions[:role][?query] grammar.
	ErrMalformedPermission = errors.New("permissions: malformed permission expression")

	// ErrScopeNotAllowed indicates a scope outside the configured whitelist.
	ErrScopeNotAllowed = errors.New("permissions: scope not allowed")
	// ErrContextKeyNotAllowed indicates a context key outside the configured whitelist.
	ErrContextKeyNotAllowed = errors.New("permissions: context key not allowed")

	// ErrConstraintViolation is surfaced when the store rejects a write that
	// races a concurrent mutation of the same key.
	ErrConstraintViolation = errors.New("permissions: constraint violation")
)
