package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kandev/squad-bridge/internal/common/logger"
)

// SetupRoutes configures the squad API routes.
// router should be the /api/v1 group
func SetupRoutes(router *gin.RouterGroup, b Bridge, log *logger.Logger) {
	handler := NewHandler(b, log)

	squad := router.Group("/squad")
	{
		squad.GET("/installation", handler.GetInstallation)
		squad.POST("/installation/install", handler.Install)

		squad.GET("/sessions", handler.ListSessions)
		squad.POST("/sessions", handler.CreateSession)
		squad.POST("/sessions/status/refresh", handler.RefreshStatuses)

		squad.GET("/sessions/:id/status", handler.GetSessionStatus)
		squad.POST("/sessions/:id/exec", handler.ExecCommand)
		squad.GET("/sessions/:id/runs", handler.ListCommandRuns)
		squad.DELETE("/sessions/:id", handler.TerminateSession)

		squad.GET("/history/sessions", handler.ListSessionHistory)
		squad.GET("/history/sessions/:id", handler.GetSessionRecord)
	}
}
