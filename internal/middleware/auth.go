package middleware

import (
	"net/http"
	"strings"

	"plumberleads/internal/domain"
	"plumberleads/internal/pkg/jwt"
	"plumberleads/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ctxActorID = "actor_id"
	ctxIsAdmin = "is_admin"
)

// JWTAuth validates the bearer token and stores the actor on the context.
func JWTAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "Authorization header is required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			response.Error(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>'")
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ctxActorID, claims.Subject)
		c.Set(ctxIsAdmin, claims.Admin)
		c.Next()
	}
}

// AdminOnly must run after JWTAuth.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ctxActorID); !ok {
			response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			c.Abort()
			return
		}
		if !c.GetBool(ctxIsAdmin) {
			response.Error(c, http.StatusForbidden, "FORBIDDEN", "Admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func ActorFrom(c *gin.Context) domain.Actor {
	return domain.Actor{ID: c.GetString(ctxActorID), Admin: c.GetBool(ctxIsAdmin)}
}

// SetActor is used by handler tests to skip token parsing.
func SetActor(c *gin.Context, actor domain.Actor) {
	c.Set(ctxActorID, actor.ID)
	c.Set(ctxIsAdmin, actor.Admin)
}
