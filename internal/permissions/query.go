package permissions

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/oxiliere/oxutils/internal/actions"
)

// Check reports whether a grant exists for the principal and scope holding
// every required action, matching the role slug when one is supplied, and
// containing every supplied context key with an equal value. A check that
// finds nothing returns false, never an error.
func (s *Service) Check(ctx context.Context, userID uuid.UUID, scope string, required []string, role string, checkCtx map[string]any) (bool, error) {
	return s.cachedCheck(ctx, userID, checkKey("check", userID, scope, required, role, checkCtx), func(ctx context.Context) (bool, error) {
		grants, err := s.candidateGrants(ctx, userID, scope, role)
		if err != nil {
			return false, err
		}
		for _, grant := range grants {
			if actions.Contains(grant.Actions, required) && contextMatches(grant.Context, checkCtx) {
				return true, nil
			}
		}
		return false, nil
	})
}

// AnyActionCheck reports whether a grant for the principal and scope holds at
// least one of the candidate actions.
func (s *Service) AnyActionCheck(ctx context.Context, userID uuid.UUID, scope string, candidates []string, role string, checkCtx map[string]any) (bool, error) {
	return s.cachedCheck(ctx, userID, checkKey("any_action", userID, scope, candidates, role, checkCtx), func(ctx context.Context) (bool, error) {
		grants, err := s.candidateGrants(ctx, userID, scope, role)
		if err != nil {
			return false, err
		}
		for _, grant := range grants {
			if actions.Intersects(grant.Actions, candidates) && contextMatches(grant.Context, checkCtx) {
				return true, nil
			}
		}
		return false, nil
	})
}

// AnyPermissionCheck reports whether at least one of the permission
// expressions checks out. Malformed expressions fail loudly.
func (s *Service) AnyPermissionCheck(ctx context.Context, userID uuid.UUID, exprs ...string) (bool, error) {
	if len(exprs) == 0 {
		return false, fmt.Errorf("%w: no expressions supplied", ErrMalformedPermission)
	}
	perms := make([]Permission, 0, len(exprs))
	for _, expr := range exprs {
		perm, err := ParsePermission(expr)
		if err != nil {
			return false, err
		}
		perms = append(perms, perm)
	}
	for _, perm := range perms {
		ok, err := s.Check(ctx, userID, perm.Scope, perm.Actions, perm.Role, perm.Context)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// StrCheck parses a single permission expression and checks it, merging the
// extra context over the expression's query context.
func (s *Service) StrCheck(ctx context.Context, userID uuid.UUID, expr string, extraCtx map[string]any) (bool, error) {
	perm, err := ParsePermission(expr)
	if err != nil {
		return false, err
	}
	merged := perm.Context
	for key, val := range extraCtx {
		merged[key] = val
	}
	return s.Check(ctx, userID, perm.Scope, perm.Actions, perm.Role, merged)
}

// AnyActionStrCheck parses an expression whose actions segment lists
// alternatives and succeeds when the principal holds any one of them.
func (s *Service) AnyActionStrCheck(ctx context.Context, userID uuid.UUID, expr string, extraCtx map[string]any) (bool, error) {
	perm, err := ParsePermission(expr)
	if err != nil {
		return false, err
	}
	merged := perm.Context
	for key, val := range extraCtx {
		merged[key] = val
	}
	return s.AnyActionCheck(ctx, userID, perm.Scope, perm.Actions, perm.Role, merged)
}

func (s *Service) candidateGrants(ctx context.Context, userID uuid.UUID, scope, role string) ([]Grant, error) {
	return s.repo.ListGrants(ctx, GrantFilter{UserID: &userID, Scope: scope, Role: role})
}

func (s *Service) cachedCheck(ctx context.Context, userID uuid.UUID, key string, fn func(context.Context) (bool, error)) (bool, error) {
	if s.cache == nil {
		return fn(ctx)
	}
	return s.cache.Do(ctx, userID, key, fn)
}

// contextMatches reports whether got contains every want key with an equal
// scalar value. Comparison is explicit and key-by-key rather than delegated
// to a JSON containment operator.
func contextMatches(got, want map[string]any) bool {
	for key, wantVal := range want {
		gotVal, ok := got[key]
		if !ok || !scalarEqual(gotVal, wantVal) {
			return false
		}
	}
	return true
}

// scalarEqual compares context scalars across the numeric representations
// that JSON decoding and query parsing produce (float64 vs int).
func scalarEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	return aok && bok && as == bs
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
