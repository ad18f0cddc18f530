package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/lazynerd-007/lpv1-sub000/internal/auth"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *auth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:         "test-secret-test-secret-test-secret",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/protected", RequireAuth(jwtService), func(c *gin.Context) {
		userID, ok := UserID(c)
		require.True(t, ok)
		c.String(http.StatusOK, userID)
	})
	return router, jwtService
}

func TestRequireAuthAcceptsValidBearerToken(t *testing.T) {
	router, jwtService := newAuthRouter(t)

	token, err := jwtService.GenerateAccessToken("user-123")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-123", rec.Body.String())
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	router, _ := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsMalformedHeader(t *testing.T) {
	router, jwtService := newAuthRouter(t)

	token, err := jwtService.GenerateAccessToken("user-123")
	require.NoError(t, err)

	for _, header := range []string{token, "Basic " + token, "Bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestRequireAuthRejectsGarbageToken(t *testing.T) {
	router, _ := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStreamTokenPrefersQueryParameter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/stream?token=query-token", nil)
	c.Request.Header.Set("Authorization", "Bearer header-token")

	require.Equal(t, "query-token", StreamToken(c))
}

func TestStreamTokenFallsBackToHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/stream", nil)
	c.Request.Header.Set("Authorization", "Bearer header-token")

	require.Equal(t, "header-token", StreamToken(c))
}
