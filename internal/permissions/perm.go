package permissions

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/oxiliere/oxutils/internal/actions"
)

// Permission is a parsed permission expression.
//
// The textual form is "scope:actions[:role][?key=value&...]", e.g.
// "articles:rw?tenant_id=123". Each character of the actions segment is an
// independent action code.
type Permission struct {
	Scope   string
	Actions []string
	Role    string
	Context map[string]any
}

// ParsePermission parses a permission expression. Missing scope or actions
// segments yield ErrMalformedPermission; unknown action codes yield
// actions.ErrInvalid.
func ParsePermission(expr string) (Permission, error) {
	base, rawQuery, hasQuery := strings.Cut(expr, "?")

	parts := strings.Split(base, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Permission{}, fmt.Errorf("%w: %q", ErrMalformedPermission, expr)
	}
	scope := parts[0]
	if scope == "" || parts[1] == "" {
		return Permission{}, fmt.Errorf("%w: %q", ErrMalformedPermission, expr)
	}

	acts, err := actions.Split(parts[1])
	if err != nil {
		return Permission{}, err
	}

	perm := Permission{
		Scope:   scope,
		Actions: acts,
		Context: map[string]any{},
	}
	if len(parts) == 3 {
		if parts[2] == "" {
			return Permission{}, fmt.Errorf("%w: %q", ErrMalformedPermission, expr)
		}
		perm.Role = parts[2]
	}

	if hasQuery && rawQuery != "" {
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return Permission{}, fmt.Errorf("%w: %q", ErrMalformedPermission, expr)
		}
		for key, vals := range values {
			if len(vals) == 0 {
				continue
			}
			perm.Context[key] = coerceScalar(vals[0])
		}
	}
	return perm, nil
}

// String renders the permission back into its textual form.
func (p Permission) String() string {
	var b strings.Builder
	b.WriteString(p.Scope)
	b.WriteString(":")
	b.WriteString(strings.Join(p.Actions, ""))
	if p.Role != "" {
		b.WriteString(":")
		b.WriteString(p.Role)
	}
	if len(p.Context) > 0 {
		values := url.Values{}
		for key, val := range p.Context {
			values.Set(key, fmt.Sprint(val))
		}
		b.WriteString("?")
		b.WriteString(values.Encode())
	}
	return b.String()
}

// coerceScalar turns integer-looking query values into ints so that context
// comparison matches numeric values stored in grants.
func coerceScalar(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return raw
}
