package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/roster/backend/internal/infrastructure/auth"
)

func capabilityRouter(claims *auth.Claims, mw gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	if claims != nil {
		router.Use(func(c *gin.Context) {
			c.Set(JWTClaimsKey, claims)
			c.Next()
		})
	}
	router.Use(mw)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func TestRequireCapability_Granted(t *testing.T) {
	claims := &auth.Claims{Capabilities: []string{"user:upload"}}
	router := capabilityRouter(claims, RequireCapability("user:upload"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireCapability_Denied(t *testing.T) {
	claims := &auth.Claims{Capabilities: []string{"group:view"}}
	router := capabilityRouter(claims, RequireCapability("user:upload"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireCapability_NoClaims(t *testing.T) {
	router := capabilityRouter(nil, RequireCapability("user:upload"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAllCapabilities(t *testing.T) {
	claims := &auth.Claims{Capabilities: []string{"user:create", "user:update"}}

	granted := capabilityRouter(claims, RequireAllCapabilities("user:create", "user:update"))
	rec := httptest.NewRecorder()
	granted.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	denied := capabilityRouter(claims, RequireAllCapabilities("user:create", "user:delete"))
	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHasCapability(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(JWTClaimsKey, &auth.Claims{Capabilities: []string{"group:manage"}})

	assert.True(t, HasCapability(c, "group:manage"))
	assert.False(t, HasCapability(c, "group:assign"))
}
