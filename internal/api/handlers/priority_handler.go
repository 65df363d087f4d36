package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/api/middleware"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/auth"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/services"
)

// PriorityHandler handles the administrator-approved priority flow.
type PriorityHandler struct {
	priorityService services.IPriorityService
}

func NewPriorityHandler(priorityService services.IPriorityService) *PriorityHandler {
	return &PriorityHandler{priorityService: priorityService}
}

// PriorityRequest is the body of POST /v1/messages/priority/request.
type PriorityRequest struct {
	WhatsApp bool `json:"whatsApp"`
	Priority bool `json:"priority"`
}

// ConfirmRequest is the body of POST /v1/messages/priority/confirm.
type ConfirmRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// Request handles POST /v1/messages/priority/request
func (h *PriorityHandler) Request(c *gin.Context) {
	var req PriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if !req.WhatsApp && !req.Priority {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Debe solicitar al menos una opción"})
		return
	}

	userID := c.GetString(middleware.ContextKeyUserID)
	err := h.priorityService.RequestCode(c.Request.Context(), userID, auth.Grants{
		PriorityAccess: req.Priority,
		SendWhatsApp:   req.WhatsApp,
	})
	if err != nil {
		if errors.Is(err, services.ErrNoAdmin) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No hay un administrador activo para aprobar la solicitud"})
			return
		}
		internalError(c, err, "Fallo al enviar el correo con el código de seguridad")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Código de verificación enviado exitosamente al administrador."})
}

// Confirm handles POST /v1/messages/priority/confirm
func (h *PriorityHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	userID := c.GetString(middleware.ContextKeyUserID)
	token, err := h.priorityService.ConfirmCode(c.Request.Context(), userID, req.Code)
	switch {
	case errors.Is(err, services.ErrCodeNotRequested):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No se ha solicitado ningún código de verificación."})
	case errors.Is(err, services.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Código de verificación inválido o expirado."})
	case errors.Is(err, services.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Demasiados intentos fallidos. Solicite un nuevo código."})
	case err != nil:
		internalError(c, err, "Ocurrió un error interno del servidor.")
	default:
		c.JSON(http.StatusOK, gin.H{
			"message": "Código verificado correctamente. Token de envío prioritario emitido.",
			"token":   token,
		})
	}
}
