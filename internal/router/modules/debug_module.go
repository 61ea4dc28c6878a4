package modules

import (
	"expvar"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/realtime-task-client/internal/interface/middleware"
)

type DebugModule struct {
	Limiter redis.Cmdable
}

func NewDebugModule(limiter redis.Cmdable) *DebugModule { return &DebugModule{Limiter: limiter} }

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	// expvar metrics (sync counters included), rate-limited per IP
	rl := middleware.RateLimit(m.Limiter, 120, time.Minute, middleware.KeyByIP(), nil)
	rg.GET("/debug/vars", rl, gin.WrapH(expvar.Handler()))
}
