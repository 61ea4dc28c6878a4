package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/realtime-task-client/internal/application"
	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/pkg/response"
)

// SessionView is the read side of the session.
type SessionView interface {
	CurrentUser() *entity.User
	Loading() bool
}

// ChannelView reports push channel states.
type ChannelView interface {
	Status() map[entity.Channel]application.ChannelState
}

// CollectionView reads the committed collections.
type CollectionView interface {
	Projects() []entity.Project
	Tasks() []entity.Task
}

// StatusHandler exposes the synced view read-only.
type StatusHandler struct {
	Session  SessionView
	Channels ChannelView
	Store    CollectionView
	Logger   *logrus.Logger
}

func NewStatusHandler(session SessionView, channels ChannelView, store CollectionView, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{Session: session, Channels: channels, Store: store, Logger: logger}
}

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	Loading       bool         `json:"loading"`
	User          *entity.User `json:"user,omitempty"`
}

type channelStatus struct {
	Channel entity.Channel           `json:"channel"`
	State   application.ChannelState `json:"state"`
}

func (h *StatusHandler) GetSession(c *gin.Context) {
	u := h.Session.CurrentUser()
	response.Success(c, http.StatusOK, sessionResponse{
		Authenticated: u != nil,
		Loading:       h.Session.Loading(),
		User:          u,
	}, "session", nil)
}

func (h *StatusHandler) GetChannels(c *gin.Context) {
	states := h.Channels.Status()
	out := make([]channelStatus, 0, len(entity.Channels))
	for _, ch := range entity.Channels {
		out = append(out, channelStatus{Channel: ch, State: states[ch]})
	}
	response.Success(c, http.StatusOK, out, "channels", nil)
}

func (h *StatusHandler) ListProjects(c *gin.Context) {
	all := h.Store.Projects()
	list := application.FilterProjects(all, c.Query("q"))
	response.Success(c, http.StatusOK, list, "projects", gin.H{"total": len(all), "count": len(list)})
}

func (h *StatusHandler) ListTasks(c *gin.Context) {
	status := c.DefaultQuery("status", application.StatusAll)
	if !validStatusFilter(status) {
		response.Error[any](c, http.StatusBadRequest, "invalid status filter", map[string]string{
			"status": "must be one of All pending in-progress done",
		})
		return
	}
	all := h.Store.Tasks()
	list := application.FilterTasks(all, status, c.Query("q"))
	response.Success(c, http.StatusOK, list, "tasks", gin.H{"total": len(all), "count": len(list)})
}

func validStatusFilter(s string) bool {
	if strings.EqualFold(s, application.StatusAll) {
		return true
	}
	switch entity.TaskStatus(s) {
	case entity.TaskPending, entity.TaskInProgress, entity.TaskDone:
		return true
	}
	return false
}
