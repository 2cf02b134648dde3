package middleware

import (
	"net/http"

	"qrmenu-be/internal/auth"
	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/utils"

	"go.uber.org/zap"
)

// DevIdentity is injected on every request when no JWT secret is configured.
var DevIdentity = utils.Identity{UserID: "dev", Role: utils.RoleAdmin}

type Authenticator struct {
	secret []byte
}

// NewAuthenticator returns an authenticator; an empty secret disables verification.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// Middleware attaches the caller identity to the request context. Requests without
// a token pass through anonymously; an invalid token is rejected.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r.WithContext(utils.SetIdentity(r.Context(), DevIdentity)))
			return
		}

		tokenStr := auth.ExtractAccessToken(r)
		if tokenStr == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := auth.ParseToken(a.secret, tokenStr)
		if err != nil {
			logger.FromCtx(r.Context()).Info("rejected access token",
				zap.String("layer", "middleware"),
				zap.Error(err),
			)
			utils.WriteJSONError(w, "invalid access token", "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := utils.SetIdentity(r.Context(), claims.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects anonymous callers with 401 and other roles with 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := utils.IdentityFrom(r.Context())
			if !ok {
				utils.WriteJSONError(w, "authentication required", "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			utils.WriteJSONError(w, "insufficient role", "forbidden", http.StatusForbidden)
		})
	}
}
