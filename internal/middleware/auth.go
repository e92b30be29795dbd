package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mealbook/api/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// Authenticate rejects requests without a valid bearer access token and
// stores the token claims on the request context.
func Authenticate(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeJSON(w, http.StatusUnauthorized, unauthorized("missing authorization header"))
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeJSON(w, http.StatusUnauthorized, unauthorized("invalid authorization format"))
				return
			}

			claims, err := auth.ValidateToken(jwtSecret, parts[1])
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, unauthorized("invalid token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole allows only the given roles through. Must run after Authenticate.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeJSON(w, http.StatusUnauthorized, unauthorized("not authenticated"))
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient permissions", "code": "FORBIDDEN"})
		})
	}
}

// WithClaims stores claims on ctx.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// UserKey is an httprate key func that limits per authenticated user and
// falls back to the client address for anonymous requests.
func UserKey(r *http.Request) (string, error) {
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		return "user:" + claims.UserID.String(), nil
	}
	return "ip:" + r.RemoteAddr, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func unauthorized(msg string) map[string]string {
	return map[string]string{"error": msg, "code": "UNAUTHORIZED"}
}
