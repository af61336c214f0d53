// Package server wires handlers, middleware and health endpoints into one
// gin engine.
package server

import (
	"time"

	"delivery-tracker/backend/internal/handlers"
	"delivery-tracker/backend/internal/logger"
	"delivery-tracker/backend/internal/middleware"
	"delivery-tracker/backend/internal/monitoring"
	"delivery-tracker/backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Deps struct {
	DB     *gorm.DB
	Log    *zap.Logger
	Tokens *services.TokenManager

	Auth      services.AuthService
	Members   services.MemberService
	Projects  services.ProjectService
	Tasks     services.TaskService
	Dashboard services.DashboardService
	Reports   services.ReportService

	Monitor       *monitoring.Monitor
	RateLimiter   *middleware.RateLimiter
	ProgressQueue handlers.ProgressQueue

	Location    *time.Location
	Now         func() time.Time
	CORSOrigins []string
}

func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Monitor == nil {
		d.Monitor = monitoring.NewMonitor()
	}

	r := gin.New()
	r.Use(middleware.RecoveryWithLog(d.Log))
	r.Use(logger.GinLogger(d.Log))
	r.Use(d.Monitor.Middleware())
	r.Use(cors.New(corsConfig(d.CORSOrigins)))

	r.GET("/health", d.Monitor.HealthHandler())
	r.GET("/ready", d.Monitor.ReadinessHandler())
	r.GET("/live", d.Monitor.LivenessHandler())
	r.GET("/metrics", d.Monitor.MetricsHandler())

	api := r.Group("/api/v1")
	if d.RateLimiter != nil {
		api.Use(d.RateLimiter.Middleware())
	}

	authHandler := handlers.NewAuthHandler(d.DB, d.Auth)
	memberHandler := handlers.NewMemberHandler(d.DB, d.Members)
	projectHandler := handlers.NewProjectHandler(d.DB, d.Projects, d.Now).WithProgressQueue(d.ProgressQueue)
	taskHandler := handlers.NewTaskHandler(d.DB, d.Tasks, d.Location)
	reportHandler := handlers.NewReportHandler(d.DB, d.Dashboard, d.Reports, d.Location, d.Now)

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.Authenticate(d.Tokens), middleware.ReloadActor(d.DB, d.Auth))
	{
		authed.GET("/auth/me", authHandler.Me)

		authed.GET("/users", memberHandler.ListActiveUsers)
		authed.GET("/members", memberHandler.ListMembers)
		authed.GET("/members/:id", memberHandler.GetMember)
		authed.PUT("/members/:id/password", memberHandler.ChangePassword)

		admin := authed.Group("")
		admin.Use(middleware.RequireAdmin())
		admin.POST("/members", memberHandler.CreateMember)
		admin.PUT("/members/:id", memberHandler.UpdateMember)
		admin.DELETE("/members/:id", memberHandler.DeleteMember)

		authed.GET("/projects", projectHandler.ListProjects)
		authed.GET("/projects/options", projectHandler.ListProjectOptions)
		authed.POST("/projects", projectHandler.CreateProject)
		authed.GET("/projects/:id", projectHandler.GetProject)
		authed.PATCH("/projects/:id", projectHandler.UpdateProject)
		authed.DELETE("/projects/:id", projectHandler.DeleteProject)
		authed.POST("/projects/:id/progress", projectHandler.RecalculateProgress)
		authed.POST("/projects/:id/tasks", taskHandler.CreateParentTask)

		authed.PATCH("/tasks/:id", taskHandler.UpdateParentTask)
		authed.DELETE("/tasks/:id", taskHandler.DeleteTask)
		authed.GET("/tasks/:id/history", taskHandler.GetTaskHistory)
		authed.POST("/tasks/:id/subtasks", taskHandler.CreateSubTask)
		authed.PUT("/subtasks/:id", taskHandler.UpdateSubTask)

		authed.GET("/dashboard", reportHandler.Dashboard)
		authed.GET("/reports/effort", reportHandler.EffortReport)
		authed.GET("/reports/effort.csv", reportHandler.ExportEffortCSV)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	config.AllowHeaders = append(config.AllowHeaders, "Authorization")
	config.ExposeHeaders = []string{"Content-Disposition"}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.MaxAge = 12 * time.Hour
	return config
}
