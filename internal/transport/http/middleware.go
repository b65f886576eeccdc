package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/majlischat/majlis-server/internal/auth"
	"github.com/majlischat/majlis-server/internal/perm"
)

const (
	// ContextKeyUsername is the context key for the admin username.
	ContextKeyUsername = "username"
	// ContextKeyRole is the context key for the admin role.
	ContextKeyRole = "role"
)

// AuthMiddleware creates a middleware that validates admin JWT tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		token := parts[1]
		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextKeyUsername, claims.Username)
		c.Set(ContextKeyRole, string(claims.Role))

		c.Next()
	}
}

// RequireRole gates a route to specific privilege tiers. Runs after
// AuthMiddleware.
func RequireRole(roles ...perm.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := claimedRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "insufficient privileges"})
		c.Abort()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func claimedRole(c *gin.Context) perm.Role {
	return perm.Role(c.GetString(ContextKeyRole))
}
