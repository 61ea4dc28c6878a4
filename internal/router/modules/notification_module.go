package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/realtime-task-client/internal/interface/http"
	"github.com/oksasatya/realtime-task-client/internal/interface/middleware"
)

type NotificationModule struct {
	Handler *handlers.NotificationHandler
	Limiter redis.Cmdable
}

func NewNotificationModule(h *handlers.NotificationHandler, limiter redis.Cmdable) *NotificationModule {
	return &NotificationModule{Handler: h, Limiter: limiter}
}

func (m *NotificationModule) Register(rg *gin.RouterGroup) {
	g := rg.Group("/notifications")
	g.GET("", m.Handler.List)
	g.GET("/unread", m.Handler.Unread)
	g.GET("/mutations", m.Handler.Mutations)

	// each call reaches the backend
	markLimiter := middleware.RateLimit(m.Limiter, 30, time.Minute, middleware.KeyByIPAndPath(), nil)
	g.POST("/read", markLimiter, m.Handler.MarkRead)
}
