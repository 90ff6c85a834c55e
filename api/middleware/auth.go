package middleware

import (
	"net/http"
	"strings"

	"github.com/oneman/oneman-backend/api/responses"
	"github.com/oneman/oneman-backend/internal/session"
	pkgAuth "github.com/oneman/oneman-backend/pkg/auth"
	"github.com/oneman/oneman-backend/pkg/config"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
)

// streamTokenParam carries the token for EventSource clients, which cannot
// set headers. Only GET requests may use it.
const streamTokenParam = "access_token"

// Auth validates the identity token and seeds the request context with the
// actor it describes.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseIdentityToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			actor := session.Actor{
				UserID:   claims.UserID(),
				Email:    claims.Email,
				Name:     claims.Name,
				PhotoURL: claims.Picture,
			}
			if err := actor.Validate(); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithUserID(ctx, actor.UserID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		if r.Method == http.MethodGet {
			return strings.TrimSpace(r.URL.Query().Get(streamTokenParam))
		}
		return ""
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	return raw
}
