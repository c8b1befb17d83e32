package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CapabilityConfig holds configuration for capability middleware
type CapabilityConfig struct {
	// Logger for middleware logging
	Logger *zap.Logger
	// OnDenied is called when the check fails (optional)
	OnDenied func(c *gin.Context, required []string)
}

// RequireCapability creates middleware that requires a specific capability
func RequireCapability(capability string) gin.HandlerFunc {
	return RequireCapabilityWithConfig(capability, CapabilityConfig{})
}

// RequireCapabilityWithConfig creates middleware with custom config
func RequireCapabilityWithConfig(capability string, cfg CapabilityConfig) gin.HandlerFunc {
	return requireCapabilities(cfg, capability)
}

// RequireAllCapabilities creates middleware that requires every listed
// capability
func RequireAllCapabilities(capabilities ...string) gin.HandlerFunc {
	return requireCapabilities(CapabilityConfig{}, capabilities...)
}

func requireCapabilities(cfg CapabilityConfig, capabilities ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			handleCapabilityDenied(c, cfg, capabilities, "No authentication claims found")
			return
		}

		if !claims.HasAllCapabilities(capabilities...) {
			handleCapabilityDenied(c, cfg, capabilities, "User lacks required capability")
			return
		}

		if cfg.Logger != nil {
			cfg.Logger.Debug("Capability check passed",
				zap.String("user_id", claims.UserID),
				zap.Strings("required", capabilities),
			)
		}

		c.Next()
	}
}

// HasCapability is a helper function to check a capability in handlers
func HasCapability(c *gin.Context, capability string) bool {
	claims := GetJWTClaims(c)
	if claims == nil {
		return false
	}
	return claims.HasCapability(capability)
}

// handleCapabilityDenied handles capability denied scenarios
func handleCapabilityDenied(c *gin.Context, cfg CapabilityConfig, required []string, reason string) {
	if cfg.OnDenied != nil {
		cfg.OnDenied(c, required)
		return
	}

	if cfg.Logger != nil {
		claims := GetJWTClaims(c)
		userID := ""
		userCaps := []string{}
		if claims != nil {
			userID = claims.UserID
			userCaps = claims.Capabilities
		}

		cfg.Logger.Warn("Capability denied",
			zap.String("reason", reason),
			zap.String("user_id", userID),
			zap.Strings("required", required),
			zap.Strings("user_capabilities", userCaps),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
	}

	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "ERR_FORBIDDEN",
			"message": "Access denied: insufficient capabilities",
		},
	})
}
