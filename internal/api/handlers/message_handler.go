package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/api/middleware"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/auth"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/records"
)

// Dispatch modes.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
	ModeQueue = "queue"
)

// RunPlanner plans runs. *dispatch.Pipeline implements it.
type RunPlanner interface {
	Plan(ctx context.Context, req dispatch.Request) (*dispatch.Run, error)
}

// RunStarter executes runs in the background. *dispatch.Runner implements it.
type RunStarter interface {
	Start(run *dispatch.Run, done func(dispatch.Summary)) error
	Cancel(id, actorID string) error
}

// RunQueue hands runs to the background worker. *tasks.Enqueuer implements it.
type RunQueue interface {
	Enqueue(ctx context.Context, req dispatch.Request) error
}

// MessageHandler starts notification runs.
type MessageHandler struct {
	planner        RunPlanner
	runner         RunStarter
	queue          RunQueue
	mode           string
	prioritySecret string
}

// NewMessageHandler creates the handler. runner is required for async mode and
// queue for queue mode; either may be nil otherwise.
func NewMessageHandler(planner RunPlanner, runner RunStarter, queue RunQueue, mode, prioritySecret string) *MessageHandler {
	return &MessageHandler{
		planner:        planner,
		runner:         runner,
		queue:          queue,
		mode:           mode,
		prioritySecret: prioritySecret,
	}
}

// SendMessagesRequest is the body of POST /v1/messages/<category>.
type SendMessagesRequest struct {
	Personas      []records.FlatRecord `json:"personas" binding:"dive"`
	PriorityToken string               `json:"priorityToken"`
	Mensaje       string               `json:"mensaje"`
	Asunto        string               `json:"asunto"`
}

// Send returns the handler for one category, e.g. POST /v1/messages/morosidad
func (h *MessageHandler) Send(category records.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.Actor(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No autorizado"})
			return
		}

		var body SendMessagesRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			bindError(c, err)
			return
		}

		grants, err := auth.VerifyPriorityToken(body.PriorityToken, actor.ID, h.prioritySecret)
		if err != nil {
			// Run without priority grants rather than rejecting the request.
			log.WithField("actor", actor.ID).Warnf("Ignoring priority token: %v", err)
		}

		req := dispatch.Request{
			Category:       category,
			Records:        body.Personas,
			Actor:          actor,
			PriorityAccess: grants.PriorityAccess,
			SendWhatsApp:   grants.SendWhatsApp,
		}
		if category == records.CategoryMassive {
			req.Subject = body.Asunto
			req.Message = body.Mensaje
		}

		run, err := h.planner.Plan(c.Request.Context(), req)
		if err != nil {
			planError(c, err)
			return
		}

		switch h.mode {
		case ModeSync:
			summary := run.Execute(context.WithoutCancel(c.Request.Context()))
			c.JSON(http.StatusOK, gin.H{
				"message":           "Proceso de envío finalizado",
				"total_lotes":       len(run.Batches),
				"correos_enviados":  summary.EmailOK,
				"whatsapp_enviados": summary.WhatsAppOK,
			})
			return
		case ModeQueue:
			if err := h.queue.Enqueue(c.Request.Context(), run.Request); err != nil {
				internalError(c, err, "No se pudo encolar el envío")
				return
			}
		default:
			if err := h.runner.Start(run, nil); err != nil {
				if errors.Is(err, dispatch.ErrRunnerClosed) {
					c.JSON(http.StatusServiceUnavailable, gin.H{"error": "El servidor se está deteniendo"})
					return
				}
				internalError(c, err, "No se pudo iniciar el envío")
				return
			}
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message":    "Proceso de envío iniciado. Recibirá un correo al finalizar.",
			"totalLotes": len(run.Batches),
			"runId":      run.ID,
		})
	}
}

// CancelRun handles DELETE /v1/messages/runs/:id. Administrators may cancel
// any run, other users only their own.
func (h *MessageHandler) CancelRun(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Envío no encontrado o ya finalizado"})
		return
	}
	actorID := c.GetString(middleware.ContextKeyUserID)
	if middleware.HasRole(c, models.RoleAdmin) {
		actorID = ""
	}

	switch err := h.runner.Cancel(c.Param("id"), actorID); {
	case errors.Is(err, dispatch.ErrNotRunOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "Solo quien inició el envío puede cancelarlo"})
	case err != nil:
		c.JSON(http.StatusNotFound, gin.H{"error": "Envío no encontrado o ya finalizado"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Envío cancelado"})
	}
}

func planError(c *gin.Context, err error) {
	var (
		verr *dispatch.ValidationError
		perr *dispatch.PolicyError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "campo": verr.Field})
	case errors.As(err, &perr):
		c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error(), "totalLotes": perr.Batches})
	default:
		internalError(c, err, "Error al preparar el envío")
	}
}
