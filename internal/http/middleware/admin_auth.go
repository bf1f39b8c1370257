package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/booking-assistant/internal/tenancy"
)

type contextKey string

const operatorClaimsKey contextKey = "operatorClaims"

// AllTenants in a token's tenants claim grants access to every tenant.
const AllTenants = "*"

// OperatorClaims are the claims carried by operator tokens. Tenants limits
// which tenants the bearer may read; empty means none.
type OperatorClaims struct {
	Tenants []string `json:"tenants"`
	jwt.RegisteredClaims
}

// Allows reports whether the claims cover tenantID.
func (c OperatorClaims) Allows(tenantID string) bool {
	return slices.Contains(c.Tenants, AllTenants) || slices.Contains(c.Tenants, tenantID)
}

// OperatorJWT enforces an HMAC-signed bearer token on operator routes. When
// the route carries a {tenantID}, the token must cover that tenant.
func OperatorJWT(secret string) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	}))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "operator auth disabled", http.StatusUnauthorized)
				return
			}
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			var claims OperatorClaims
			token, err := parser.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if tenantID := chi.URLParam(r, tenancy.URLParam); tenantID != "" && !claims.Allows(tenantID) {
				http.Error(w, "tenant not permitted", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), operatorClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorClaimsFromContext returns the verified claims if present.
func OperatorClaimsFromContext(ctx context.Context) (OperatorClaims, bool) {
	claims, ok := ctx.Value(operatorClaimsKey).(OperatorClaims)
	return claims, ok
}
