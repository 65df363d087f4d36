package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/api/middleware"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/audit"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/auth"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/services"
)

// ActivityLister pages through the audit log. Both audit stores implement it.
type ActivityLister interface {
	ListActivities(ctx context.Context, page, limit int) ([]models.ActivityWithDetail, int64, error)
}

// AdminHandler serves the administrator routes.
type AdminHandler struct {
	users      services.IUserService
	templates  services.ITemplateService
	settings   services.ISettingsService
	activities ActivityLister
}

func NewAdminHandler(users services.IUserService, templates services.ITemplateService, settings services.ISettingsService, activities ActivityLister) *AdminHandler {
	return &AdminHandler{users: users, templates: templates, settings: settings, activities: activities}
}

func userError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Usuario no encontrado"})
	case errors.Is(err, services.ErrNameExists):
		c.JSON(http.StatusConflict, gin.H{"error": "El nombre de usuario ya existe"})
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrPasswordTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		internalError(c, err, "Error al procesar el usuario")
	}
}

// ListUsers handles GET /v1/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		internalError(c, err, "Error al obtener los usuarios")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetUser handles GET /v1/admin/users/:id
func (h *AdminHandler) GetUser(c *gin.Context) {
	user, err := h.users.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// CreateUser handles POST /v1/admin/users
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var input services.CreateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	user, err := h.users.Create(c.Request.Context(), input)
	if err != nil {
		userError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Usuario creado exitosamente", "user": user})
}

// UpdateUser handles PUT /v1/admin/users/:id
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var input services.UpdateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	user, err := h.users.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Usuario actualizado exitosamente", "user": user})
}

// DeleteUser handles DELETE /v1/admin/users/:id
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	if id == c.GetString(middleware.ContextKeyUserID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No puede eliminar su propio usuario"})
		return
	}
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		userError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Usuario eliminado exitosamente"})
}

// ListTemplates handles GET /v1/admin/templates
func (h *AdminHandler) ListTemplates(c *gin.Context) {
	list, err := h.templates.List(c.Request.Context())
	if err != nil {
		internalError(c, err, "Error al obtener las plantillas")
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": list})
}

// TemplateRequest is the body of PUT /v1/admin/templates/:key.
type TemplateRequest struct {
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html" binding:"required"`
	Footer   string `json:"footer"`
}

// PutTemplate handles PUT /v1/admin/templates/:key
func (h *AdminHandler) PutTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	saved, err := h.templates.Upsert(c.Request.Context(), models.MessageTemplate{
		Key:      c.Param("key"),
		Subject:  req.Subject,
		BodyHTML: req.BodyHTML,
		Footer:   req.Footer,
	})
	if err != nil {
		if errors.Is(err, services.ErrUnknownTemplate) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Plantilla desconocida"})
			return
		}
		// Compile errors surface here too; they are the author's to fix.
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": saved})
}

// GetPublicSettings handles GET /v1/settings
func (h *AdminHandler) GetPublicSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.GetAllPublic(c.Request.Context()))
}

// SettingRequest is the body of PUT /v1/admin/settings/:key.
type SettingRequest struct {
	Value  any  `json:"value" binding:"required"`
	Public bool `json:"public"`
}

// PutSetting handles PUT /v1/admin/settings/:key
func (h *AdminHandler) PutSetting(c *gin.Context) {
	var req SettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	key := c.Param("key")
	if err := h.settings.Set(c.Request.Context(), key, req.Value, req.Public); err != nil {
		if errors.Is(err, services.ErrInvalidSetting) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		internalError(c, err, "Error al guardar la configuración")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Configuración actualizada", "key": key})
}

// ListActivities handles GET /v1/admin/activities?page=&limit=
func (h *AdminHandler) ListActivities(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(audit.DefaultPageSize)))
	page, limit = audit.PageBounds(page, limit)

	list, total, err := h.activities.ListActivities(c.Request.Context(), page, limit)
	if err != nil {
		internalError(c, err, "Error al obtener las actividades")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"actividades": list,
		"total":       total,
		"pagina":      page,
		"limite":      limit,
		"paginas":     int(math.Ceil(float64(total) / float64(limit))),
	})
}
