package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/squad-bridge/internal/common/httpmw"
	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/events"
	"github.com/kandev/squad-bridge/internal/events/bus"
	"github.com/kandev/squad-bridge/internal/squad"
	"github.com/kandev/squad-bridge/internal/squad/api"
)

const serverName = "squad-bridge"

var _ api.Bridge = (*squad.Bridge)(nil)

func newRouter(bridge *squad.Bridge, log *logger.Logger, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.CorrelationID())
	router.Use(httpmw.OtelTracing(serverName))
	router.Use(httpmw.RequestLogger(log, serverName))
	router.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(squad.NewContext(c.Request.Context(), bridge))
		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		b, _ := squad.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"service":       serverName,
			"squad_command": b.CommandPath(),
		})
	})

	api.SetupRoutes(router.Group("/api/v1"), bridge, log)
	return router
}

// subscribeEventLog mirrors every squad event into the debug log.
func subscribeEventLog(eventBus bus.EventBus, log *logger.Logger) (bus.Subscription, error) {
	eventLog := log.WithComponent("event-log")
	return eventBus.Subscribe(events.AllSquadEvents, func(ctx context.Context, e *bus.Event) error {
		eventLog.WithContext(ctx).Debug("squad event",
			zap.String("event_type", e.Type),
			zap.String("source", e.Source),
			zap.Any("data", e.Data))
		return nil
	})
}
