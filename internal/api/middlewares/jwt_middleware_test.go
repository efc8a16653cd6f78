package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestJWTMiddleware(t *testing.T) {
	const secret = "mw-secret"

	var gotUserID string
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotUserID, _ = UserIDFromContext(r.Context())
	})
	handler := JWTMiddleware(secret)(next)

	valid := signToken(t, secret, jwt.MapClaims{
		"user_id": "u-42",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantNext bool
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, true},
		{"no header", "", http.StatusUnauthorized, false},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, false},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized, false},
		{
			"wrong secret",
			"Bearer " + signToken(t, "other", jwt.MapClaims{"user_id": "u-42", "exp": time.Now().Add(time.Hour).Unix()}),
			http.StatusUnauthorized, false,
		},
		{
			"expired",
			"Bearer " + signToken(t, secret, jwt.MapClaims{"user_id": "u-42", "exp": time.Now().Add(-time.Hour).Unix()}),
			http.StatusUnauthorized, false,
		},
		{
			"missing user_id claim",
			"Bearer " + signToken(t, secret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}),
			http.StatusUnauthorized, false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called = false
			gotUserID = ""
			req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tc.wantCode, w.Code)
			assert.Equal(t, tc.wantNext, called)
			if tc.wantNext {
				assert.Equal(t, "u-42", gotUserID)
			}
		})
	}
}
