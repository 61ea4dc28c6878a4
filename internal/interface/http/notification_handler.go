package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/realtime-task-client/internal/application"
	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
	"github.com/oksasatya/realtime-task-client/pkg/response"
	"github.com/oksasatya/realtime-task-client/pkg/validation"
)

// NotificationReader reads the committed notifications, newest first.
type NotificationReader interface {
	Notifications() []entity.Notification
}

// ReadMarker runs mark-as-read and reports the unread count.
type ReadMarker interface {
	UnreadCount() int
	MarkAsRead(ctx context.Context, ids []int64) (*application.Mutation, error)
	Mutations() []application.Mutation
}

type NotificationHandler struct {
	Store  NotificationReader
	Marker ReadMarker
	Logger *logrus.Logger
}

func NewNotificationHandler(store NotificationReader, marker ReadMarker, logger *logrus.Logger) *NotificationHandler {
	return &NotificationHandler{Store: store, Marker: marker, Logger: logger}
}

// An empty or missing list marks every notification as read.
type markReadRequest struct {
	NotificationIDs []int64 `json:"notificationIDs" binding:"omitempty,dive,gt=0"`
}

func (h *NotificationHandler) List(c *gin.Context) {
	list := h.Store.Notifications()
	response.Success(c, http.StatusOK, list, "notifications", gin.H{"unread": application.CountUnread(list)})
}

func (h *NotificationHandler) Unread(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"unread": h.Marker.UnreadCount()}, "unread count", nil)
}

func (h *NotificationHandler) Mutations(c *gin.Context) {
	response.Success(c, http.StatusOK, h.Marker.Mutations(), "mutations", nil)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
			return
		}
	}

	m, err := h.Marker.MarkAsRead(c.Request.Context(), req.NotificationIDs)
	if err != nil {
		status, msg := markReadFailure(err)
		h.Logger.WithError(err).WithField("request_id", c.GetString("request_id")).Warn("mark as read failed")
		response.Error[any](c, status, msg, gin.H{"mutation": m, "reason": err.Error()})
		return
	}
	response.Success(c, http.StatusOK, m, "notifications marked as read", gin.H{"unread": h.Marker.UnreadCount()})
}

func markReadFailure(err error) (int, string) {
	var se *repository.StatusError
	switch {
	case application.IsAuthError(err):
		return http.StatusUnauthorized, "session expired"
	case application.IsNetworkError(err):
		return http.StatusBadGateway, "backend unreachable"
	case errors.As(err, &se):
		return http.StatusBadGateway, "backend rejected the request"
	}
	return http.StatusInternalServerError, "failed to mark notifications as read"
}
