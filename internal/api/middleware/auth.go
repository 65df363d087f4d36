package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/auth"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
)

const (
	// ContextKeyUserID holds the authenticated user id.
	ContextKeyUserID = "userID"
	// ContextKeyRoles holds the roles of the authenticated user.
	ContextKeyRoles = "roles"
	// ContextKeyActor holds the dispatch.Actor of the authenticated user.
	ContextKeyActor = "actor"

	// AuthCookie is the cookie the session token is stored in.
	AuthCookie = "AuthToken"
)

// Authenticator resolves a session token to a live user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, *models.User, error)
}

func tokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := c.Cookie(AuthCookie); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware requires a valid session token (Bearer header or AuthToken
// cookie) whose session is still the user's current one.
func AuthMiddleware(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No autorizado"})
			return
		}

		claims, user, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			log.Debugf("Rejected session token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Sesión inválida o expirada"})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRoles, user.Roles)
		c.Set(ContextKeyActor, dispatch.Actor{ID: user.ID, Email: user.Email, Name: user.Name})
		c.Next()
	}
}

// RoleMiddleware requires the user to hold role. Administrators pass every check.
// Assumes AuthMiddleware runs first.
func RoleMiddleware(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !HasRole(c, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "No tiene permisos para realizar esta acción"})
			return
		}
		c.Next()
	}
}

// AdminMiddleware requires the Administrador role.
func AdminMiddleware() gin.HandlerFunc {
	return RoleMiddleware(models.RoleAdmin)
}

// HasRole reports whether the authenticated user holds role.
func HasRole(c *gin.Context, role string) bool {
	roles, ok := c.Get(ContextKeyRoles)
	if !ok {
		return false
	}
	list, ok := roles.([]string)
	return ok && models.HasRole(list, role)
}

// Actor returns the authenticated user as a dispatch actor.
func Actor(c *gin.Context) (dispatch.Actor, bool) {
	v, ok := c.Get(ContextKeyActor)
	if !ok {
		return dispatch.Actor{}, false
	}
	actor, ok := v.(dispatch.Actor)
	return actor, ok
}
