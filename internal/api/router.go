package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/api/handlers"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/api/middleware"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/config"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/email"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/records"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/services"
)

// Deps are the services the public API is built from.
type Deps struct {
	Users      services.IUserService
	Auth       services.IAuthService
	Priority   services.IPriorityService
	Templates  services.ITemplateService
	Settings   services.ISettingsService
	Activities handlers.ActivityLister

	Planner handlers.RunPlanner
	Runner  handlers.RunStarter // async mode
	Queue   handlers.RunQueue   // queue mode
}

// SetupRouter configures and returns the main Gin engine. The returned
// limiter must be closed on shutdown.
func SetupRouter(cfg *config.Config, deps Deps) (*gin.Engine, *middleware.RateLimiterMiddleware) {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg.RateLimitBucketSize, cfg.RateLimitRefillRate)
	r.Use(middleware.CORSMiddleware(cfg.CorsOrigin))
	r.Use(rateLimiter.Limit())

	authHandler := handlers.NewAuthHandler(deps.Auth, cfg.CookieSecure)
	messageHandler := handlers.NewMessageHandler(deps.Planner, deps.Runner, deps.Queue, cfg.DispatchMode, cfg.JwtSecret)
	priorityHandler := handlers.NewPriorityHandler(deps.Priority)
	adminHandler := handlers.NewAdminHandler(deps.Users, deps.Templates, deps.Settings, deps.Activities)

	requireAuth := middleware.AuthMiddleware(deps.Auth)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})
		v1.GET("/settings", adminHandler.GetPublicSettings)
		v1.POST("/auth/login", authHandler.Login)

		authRequired := v1.Group("/")
		authRequired.Use(requireAuth)
		{
			authRequired.POST("/auth/logout", authHandler.Logout)
			authRequired.GET("/auth/me", authHandler.Me)
			authRequired.GET("/auth/role/:role", authHandler.CheckRole)
		}

		messages := v1.Group("/messages")
		messages.Use(requireAuth)
		{
			messages.POST("/morosidad", middleware.RoleMiddleware(models.RoleDebt), messageHandler.Send(records.CategoryDebt))
			messages.POST("/propiedades", middleware.RoleMiddleware(models.RoleProperty), messageHandler.Send(records.CategoryProperty))
			messages.POST("/masivo", middleware.RoleMiddleware(models.RoleMassive), messageHandler.Send(records.CategoryMassive))
			messages.DELETE("/runs/:id", messageHandler.CancelRun)
			messages.POST("/priority/request", priorityHandler.Request)
			messages.POST("/priority/confirm", priorityHandler.Confirm)
		}

		admin := v1.Group("/admin")
		admin.Use(requireAuth, middleware.AdminMiddleware())
		{
			admin.GET("/users", adminHandler.ListUsers)
			admin.POST("/users", adminHandler.CreateUser)
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.PUT("/users/:id", adminHandler.UpdateUser)
			admin.DELETE("/users/:id", adminHandler.DeleteUser)
			admin.GET("/templates", adminHandler.ListTemplates)
			admin.PUT("/templates/:key", adminHandler.PutTemplate)
			admin.PUT("/settings/:key", adminHandler.PutSetting)
			admin.GET("/activities", adminHandler.ListActivities)
		}
	}

	return r, rateLimiter
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.Error(c.Errors.String())
			return
		}
		entry.Debug("request")
	}
}

// SetupServiceRouter configures the internal service engine used by
// deployment scripts and end-to-end tests.
func SetupServiceRouter(rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Info("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Warn("Shutdown already signaled")
			}
		case "getTestEmail":
			getTestEmail(c, rdb, req.Arguments)
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

// getTestEmail returns (and consumes) the mail the Redis mock sender stored
// for [kind, email], polling for up to two seconds.
func getTestEmail(c *gin.Context, rdb *redis.Client, rawArgs json.RawMessage) {
	var args []string
	if err := json.Unmarshal(rawArgs, &args); err != nil || len(args) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
		return
	}
	key := email.MockEmailKey(args[1], args[0])

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var data string
	found := false
	for range 10 {
		v, err := rdb.GetDel(ctx, key).Result()
		if err == nil {
			data, found = v, true
			break
		}
		if !errors.Is(err, redis.Nil) {
			log.Errorf("Service API: error reading %s: %v", key, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found for key %s", key)})
		return
	}

	var stored email.StoredEmail
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		log.Errorf("Service API: bad email data under %s: %v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stored})
}
