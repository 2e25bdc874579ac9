package shared

import (
	"context"

	"github.com/google/uuid"
)

// Principal identifies the authenticated caller of a request. For service
// accounts the acting user may differ from the account itself; ActingUser is
// what ends up in grant provenance.
type Principal struct {
	ID         uuid.UUID
	Name       string
	ActingUser *uuid.UUID
}

// Actor returns the principal to record as provenance: the acting user when
// one was supplied, otherwise the principal itself.
func (p Principal) Actor() *uuid.UUID {
	if p.ActingUser != nil {
		return p.ActingUser
	}
	id := p.ID
	return &id
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
