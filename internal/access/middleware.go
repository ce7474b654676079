package access

import (
	"log/slog"
	"net/http"

	"github.com/harborwatch/harborwatch/internal/platform/httpx"
	"github.com/harborwatch/harborwatch/internal/roles"
)

// Middleware guards routes with capability checks against the static role
// matrix. Resource-level access still goes through the Resolver; this only
// answers "may this role use this endpoint at all".
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny admits the request when the identity's role carries at least one
// of the permissions. No identity on the context is a 401; an unknown role
// carries no permissions and is a 403.
func (m Middleware) RequireAny(perms ...roles.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, perm := range perms {
				if roles.HasCapability(id.Role, perm) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Debug("capability denied",
					slog.Int64("user_id", id.UserID),
					slog.String("role", string(id.Role)))
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}
