package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/oxiliere/oxutils/internal/platform/httpx"
	"github.com/oxiliere/oxutils/internal/shared"
)

const actingUserHeader = "X-Acting-User"

// Middleware authenticates bearer tokens and installs the resolved principal
// into the request context. An optional X-Acting-User header records the end
// user the caller acts on behalf of.
func Middleware(logger *slog.Logger, service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			account, err := service.Authenticate(r.Context(), token)
			if err != nil {
				logger.Warn("token rejected", slog.String("remote", r.RemoteAddr))
				httpx.RespondError(w, shared.ErrInvalidCredentials)
				return
			}
			principal := shared.Principal{ID: account.PrincipalID, Name: account.Name}
			if raw := r.Header.Get(actingUserHeader); raw != "" {
				acting, err := uuid.Parse(raw)
				if err != nil {
					httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+actingUserHeader+" header")
					return
				}
				principal.ActingUser = &acting
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
