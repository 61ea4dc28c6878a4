package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/realtime-task-client/internal/interface/http"
)

// StatusModule serves the read-only view of the session and collections.
// GET /api/session, /api/channels, /api/projects, /api/tasks
type StatusModule struct {
	Handler *handlers.StatusHandler
}

func NewStatusModule(h *handlers.StatusHandler) *StatusModule {
	return &StatusModule{Handler: h}
}

func (m *StatusModule) Register(rg *gin.RouterGroup) {
	rg.GET("/session", m.Handler.GetSession)
	rg.GET("/channels", m.Handler.GetChannels)
	rg.GET("/projects", m.Handler.ListProjects)
	rg.GET("/tasks", m.Handler.ListTasks)
}
