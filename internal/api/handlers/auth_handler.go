package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/api/middleware"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/services"
)

// AuthHandler handles login, logout and session introspection.
type AuthHandler struct {
	authService  services.IAuthService
	cookieSecure bool
}

func NewAuthHandler(authService services.IAuthService, cookieSecure bool) *AuthHandler {
	return &AuthHandler{authService: authService, cookieSecure: cookieSecure}
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Name     string `json:"nombre" binding:"required"`
	Password string `json:"clave" binding:"required"`
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	session, err := h.authService.Login(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Usuario o contraseña inválidos"})
			return
		}
		internalError(c, err, "Error en el servidor")
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AuthCookie, session.Token, maxAge, "/", "", h.cookieSecure, true)
	log.WithField("user", session.User.ID).Info("User logged in")

	c.JSON(http.StatusOK, gin.H{
		"message": "Login exitoso",
		"token":   session.Token,
		"user":    session.User,
	})
}

// Logout handles POST /v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := c.GetString(middleware.ContextKeyUserID)
	if err := h.authService.Logout(c.Request.Context(), userID); err != nil {
		internalError(c, err, "Error al cerrar sesión")
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AuthCookie, "", -1, "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"message": "Sesión cerrada"})
}

// Me handles GET /v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := middleware.Actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No autorizado"})
		return
	}
	roles, _ := c.Get(middleware.ContextKeyRoles)
	c.JSON(http.StatusOK, gin.H{
		"id":     actor.ID,
		"nombre": actor.Name,
		"correo": actor.Email,
		"roles":  roles,
	})
}

// CheckRole handles GET /v1/auth/role/:role
func (h *AuthHandler) CheckRole(c *gin.Context) {
	if !middleware.HasRole(c, c.Param("role")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "No tiene el rol requerido"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Acceso permitido"})
}
