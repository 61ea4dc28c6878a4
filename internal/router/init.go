package router

import (
	"github.com/oksasatya/realtime-task-client/internal/container"
	handlers "github.com/oksasatya/realtime-task-client/internal/interface/http"
	"github.com/oksasatya/realtime-task-client/internal/router/modules"
)

// InitModules builds the status API modules from the container and adds
// them to the registry. Call once at startup after the container is filled.
func InitModules(r *Registry) {
	logger := container.GetLogger()
	store := container.GetStore()

	status := handlers.NewStatusHandler(container.GetSession(), container.GetManager(), store, logger)
	notes := handlers.NewNotificationHandler(store, container.GetNotifications(), logger)

	r.Add(modules.NewStatusModule(status))
	r.Add(modules.NewNotificationModule(notes, container.GetLimiter()))
	if cfg := container.GetConfig(); cfg != nil && cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(container.GetLimiter()))
	}
}
