package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, key []byte, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() Claims {
	return Claims{
		Email: "buyer@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func authRouter() *gin.Engine {
	r := gin.New()
	r.GET("/me", Auth(secret), func(c *gin.Context) {
		buyer, ok := CurrentBuyer(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": buyer.ID, "email": buyer.Email})
	})
	return r
}

func TestAuth(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noSubject := validClaims()
	noSubject.Subject = "alice"
	noEmail := validClaims()
	noEmail.Email = ""

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, validClaims()), http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, []byte("other"), jwt.SigningMethodHS256, validClaims()), http.StatusUnauthorized},
		{"wrong algorithm", "Bearer " + signToken(t, secret, jwt.SigningMethodHS512, validClaims()), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, expired), http.StatusUnauthorized},
		{"non numeric subject", "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, noSubject), http.StatusUnauthorized},
		{"no email", "Bearer " + signToken(t, secret, jwt.SigningMethodHS256, noEmail), http.StatusUnauthorized},
	}

	r := authRouter()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2"), "limits are per client")
}
