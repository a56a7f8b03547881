package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"raffle-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("middleware-test-secret")

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func adminRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", NewAdminAuthMiddleware(quietLogger(), testSecret).RequireAdminAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"admin": c.GetString("admin_username")})
	})
	return r
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code
}

func TestRequireAdminAuth(t *testing.T) {
	valid, err := handlers.GenerateAdminJWTToken(testSecret, "admin", time.Hour)
	require.NoError(t, err)
	expired, err := handlers.GenerateAdminJWTToken(testSecret, "admin", -time.Hour)
	require.NoError(t, err)
	wrongSecret, err := handlers.GenerateAdminJWTToken([]byte("other"), "admin", time.Hour)
	require.NoError(t, err)

	operatorClaims := handlers.AdminJWTClaims{
		Username: "operator",
		Role:     "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "raffle-backend-admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	viewer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, operatorClaims).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, "MISSING_AUTH_HEADER"},
		{"basic scheme", "Basic abc", http.StatusUnauthorized, "INVALID_AUTH_FORMAT"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "EMPTY_TOKEN"},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"wrong secret", "Bearer " + wrongSecret, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"non admin role", "Bearer " + viewer, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS"},
	}

	r := adminRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+valid)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"admin":"admin"}`, w.Body.String())
	})
}

func TestLocalhostOnly_Restrict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	whitelist := NewLocalhostOnly(quietLogger(), []string{"10.0.0.7", "192.168.1.0/24", "bad/cidr"})
	r.GET("/metrics", whitelist.Restrict(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		remote string
		status int
	}{
		{"127.0.0.1:5000", http.StatusOK},
		{"[::1]:5000", http.StatusOK},
		{"10.0.0.7:5000", http.StatusOK},
		{"192.168.1.42:5000", http.StatusOK},
		{"192.168.2.42:5000", http.StatusForbidden},
		{"8.8.8.8:5000", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remote
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusForbidden {
				assert.Equal(t, "IP_NOT_ALLOWED", errorCode(t, w))
			}
		})
	}
}
