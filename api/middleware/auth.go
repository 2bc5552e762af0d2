package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/stkpush-backend/api/responses"
	pkgauth "github.com/angelmondragon/stkpush-backend/pkg/auth"
	"github.com/angelmondragon/stkpush-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/stkpush-backend/pkg/errors"
	"github.com/angelmondragon/stkpush-backend/pkg/logger"
)

// OptionalAuth attaches the caller's user id when a bearer token is present.
// Requests without credentials pass through anonymously; a token that fails
// validation is rejected with 401.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
