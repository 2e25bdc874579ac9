package permissions

import (
	"log/slog"
	"net/http"

	"github.com/oxiliere/oxutils/internal/shared"
)

// Middleware wires authorization helpers for HTTP handlers. Each guard
// consumes permission expressions in the scope:actions[:role][?query]
// grammar and resolves them against the engine for the request's principal.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireScope ensures the principal satisfies the permission expression
// (every listed action must be held).
func (m Middleware) RequireScope(expr string) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request, p shared.Principal) (bool, error) {
		return m.Service.StrCheck(r.Context(), p.ID, expr, nil)
	})
}

// RequireAnyScope ensures the principal satisfies at least one of the
// permission expressions.
func (m Middleware) RequireAnyScope(exprs ...string) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request, p shared.Principal) (bool, error) {
		return m.Service.AnyPermissionCheck(r.Context(), p.ID, exprs...)
	})
}

// RequireAnyAction ensures the principal holds at least one of the actions in
// the expression's actions segment.
func (m Middleware) RequireAnyAction(expr string) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request, p shared.Principal) (bool, error) {
		return m.Service.AnyActionStrCheck(r.Context(), p.ID, expr, nil)
	})
}

func (m Middleware) guard(allow func(*http.Request, shared.Principal) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			granted, err := allow(r, principal)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authorization check", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !granted {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
