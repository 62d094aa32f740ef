package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/nkiryanov/washpay/internal/handlers/render"
	"github.com/nkiryanov/washpay/internal/handlers/userctx"
	"github.com/nkiryanov/washpay/internal/models"
)

const (
	kindUnauthorized = "unauthorized"
	kindForbidden    = "forbidden"
)

type tokenParser interface {
	ParseAccess(access string) (models.Identity, error)
}

// Authenticate bearer token and require one of the roles
// Empty roles means any authenticated identity passes
func AuthMiddleware(p tokenParser, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				render.Error(w, kindUnauthorized, "Unauthorized", http.StatusUnauthorized)
				return
			}

			identity, err := p.ParseAccess(token)
			if err != nil {
				render.Error(w, kindUnauthorized, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if len(roles) > 0 && !slices.Contains(roles, identity.Role) {
				render.Error(w, kindForbidden, "Role is not allowed to access the resource", http.StatusForbidden)
				return
			}

			ctx := userctx.New(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
