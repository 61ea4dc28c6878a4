package restapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
)

type CollectionRepository struct {
	c *Client
}

func NewCollectionRepository(c *Client) *CollectionRepository {
	return &CollectionRepository{c: c}
}

func (r *CollectionRepository) ListProjects(ctx context.Context) ([]entity.Project, error) {
	var res struct {
		Projects []entity.Project `json:"projects"`
	}
	if err := r.c.do(ctx, "projects.list", http.MethodGet, "/projects", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Projects, nil
}

func (r *CollectionRepository) ListTasks(ctx context.Context) ([]entity.Task, error) {
	var res struct {
		Tasks []entity.Task `json:"tasks"`
	}
	if err := r.c.do(ctx, "tasks.list", http.MethodGet, "/tasks", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Tasks, nil
}

func (r *CollectionRepository) ListNotifications(ctx context.Context, userID int64) ([]entity.Notification, error) {
	var res struct {
		Notifications []entity.Notification `json:"notifications"`
	}
	path := "/notifications/" + strconv.FormatInt(userID, 10)
	if err := r.c.do(ctx, "notifications.list", http.MethodGet, path, nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Notifications, nil
}

// MarkRead sends {notificationIDs: [...]}; the list is never null on the wire.
func (r *CollectionRepository) MarkRead(ctx context.Context, userID int64, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	body := struct {
		NotificationIDs []int64 `json:"notificationIDs"`
	}{NotificationIDs: ids}
	path := "/notifications/read/" + strconv.FormatInt(userID, 10)
	return r.c.do(ctx, "notifications.mark_read", http.MethodPatch, path, nil, body, nil)
}

var (
	_ repository.CollectionRepository   = (*CollectionRepository)(nil)
	_ repository.NotificationRepository = (*CollectionRepository)(nil)
)
