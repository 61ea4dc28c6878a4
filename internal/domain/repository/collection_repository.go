package repository

import (
	"context"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
)

// CollectionRepository serves the hydration fetches.
type CollectionRepository interface {
	ListProjects(ctx context.Context) ([]entity.Project, error)
	ListTasks(ctx context.Context) ([]entity.Task, error)
	ListNotifications(ctx context.Context, userID int64) ([]entity.Notification, error)
}

// NotificationRepository holds the remote read-state mutation.
type NotificationRepository interface {
	// MarkRead marks ids as read for userID; an empty ids marks all.
	MarkRead(ctx context.Context, userID int64, ids []int64) error
}
