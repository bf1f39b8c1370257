package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func operatorToken(t *testing.T, secret string, tenants ...string) string {
	t.Helper()
	claims := OperatorClaims{
		Tenants: tenants,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func operatorRouter(secret string, called *bool) http.Handler {
	r := chi.NewRouter()
	r.Route("/admin/tenants/{tenantID}", func(r chi.Router) {
		r.Use(OperatorJWT(secret))
		r.Get("/reminders", func(w http.ResponseWriter, r *http.Request) {
			*called = true
			claims, ok := OperatorClaimsFromContext(r.Context())
			if !ok || claims.Subject != "ops" {
				w.WriteHeader(http.StatusTeapot)
			}
		})
	})
	return r
}

func TestOperatorJWT(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		auth   string
		want   int
	}{
		{name: "auth disabled", secret: "", auth: "", want: http.StatusUnauthorized},
		{name: "missing header", secret: "secret", auth: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", secret: "secret", auth: "Basic abc", want: http.StatusUnauthorized},
		{name: "bad signature", secret: "secret", auth: "Bearer " + operatorToken(t, "wrong", "t1"), want: http.StatusUnauthorized},
		{name: "other tenant", secret: "secret", auth: "Bearer " + operatorToken(t, "secret", "t2"), want: http.StatusForbidden},
		{name: "no tenants claim", secret: "secret", auth: "Bearer " + operatorToken(t, "secret"), want: http.StatusForbidden},
		{name: "tenant granted", secret: "secret", auth: "Bearer " + operatorToken(t, "secret", "t1"), want: http.StatusOK},
		{name: "all tenants", secret: "secret", auth: "Bearer " + operatorToken(t, "secret", AllTenants), want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			req := httptest.NewRequest(http.MethodGet, "/admin/tenants/t1/reminders", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			operatorRouter(tt.secret, &called).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.want == http.StatusOK, called)
		})
	}
}

func TestOperatorJWTRejectsNoneAlgorithm(t *testing.T) {
	claims := OperatorClaims{Tenants: []string{AllTenants}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	called := false
	req := httptest.NewRequest(http.MethodGet, "/admin/tenants/t1/reminders", nil)
	req.Header.Set("Authorization", "Bearer "+unsigned)
	rec := httptest.NewRecorder()
	operatorRouter("secret", &called).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}
