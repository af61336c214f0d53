package middleware

import (
	"errors"
	"net/http"
	"strings"

	"delivery-tracker/backend/internal/models"
	"delivery-tracker/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const actorKey = "actor"

// TokenParser is implemented by services.TokenManager.
type TokenParser interface {
	Parse(token string) (services.Actor, error)
}

// Authenticate requires a valid bearer token and stores its actor on the
// context for ActorFrom.
func Authenticate(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_token",
				"message": "Authorization header is required",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token_format",
				"message": "Authorization header must use Bearer token",
			})
			return
		}

		actor, err := tokens.Parse(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Token validation failed",
			})
			return
		}

		SetActor(c, actor)
		c.Next()
	}
}

// ActorResolver is implemented by services.AuthServiceImpl.
type ActorResolver interface {
	ResolveActor(db *gorm.DB, id uuid.UUID) (services.Actor, error)
}

// ReloadActor replaces the actor from the token claims with the account as
// stored, so deactivation and title changes apply before the token expires.
// It must run after Authenticate.
func ReloadActor(db *gorm.DB, actors ActorResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimed, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		actor, err := actors.ResolveActor(db.WithContext(c.Request.Context()), claimed.ID)
		var login *services.LoginError
		switch {
		case err == nil:
		case errors.Is(err, services.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Account no longer exists",
			})
			return
		case errors.As(err, &login):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "account_disabled",
				"message": login.Message,
			})
			return
		default:
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		SetActor(c, actor)
		c.Next()
	}
}

// RequireRole lets the request through only for the listed account roles.
// It must run after Authenticate.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":          "insufficient_role",
			"message":        "User role does not have access to this resource",
			"required_roles": roles,
			"user_role":      actor.Role,
		})
	}
}

func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}

// SetActor records the authenticated actor on the request context.
func SetActor(c *gin.Context, actor services.Actor) {
	c.Set(actorKey, actor)
	c.Set("user_id", actor.ID)
	c.Set("user_role", actor.Role)
}

func ActorFrom(c *gin.Context) (services.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return services.Actor{}, false
	}
	actor, ok := v.(services.Actor)
	return actor, ok
}
