package application

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
	"github.com/oksasatya/realtime-task-client/pkg/validation"
)

// Hydrator fetches the authoritative collection of one channel.
type Hydrator interface {
	Hydrate(ctx context.Context, ch entity.Channel, user *entity.User) ([]entity.Entity, error)
}

// RepositoryHydrator hydrates from the REST collections. Elements that
// fail validation are dropped so an invalid task status never reaches the
// store.
type RepositoryHydrator struct {
	repo   repository.CollectionRepository
	logger *logrus.Logger
}

func NewRepositoryHydrator(repo repository.CollectionRepository, logger *logrus.Logger) *RepositoryHydrator {
	return &RepositoryHydrator{repo: repo, logger: logger}
}

func (h *RepositoryHydrator) Hydrate(ctx context.Context, ch entity.Channel, user *entity.User) ([]entity.Entity, error) {
	switch ch {
	case entity.ChannelProjects:
		list, err := h.repo.ListProjects(ctx)
		if err != nil {
			return nil, err
		}
		return keepValid(h.logger, ch, list), nil
	case entity.ChannelTasks:
		list, err := h.repo.ListTasks(ctx)
		if err != nil {
			return nil, err
		}
		return keepValid(h.logger, ch, list), nil
	case entity.ChannelNotifications:
		if user == nil {
			return nil, &AuthError{Op: "hydrate.notifications", Err: ErrNotAuthenticated}
		}
		list, err := h.repo.ListNotifications(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return keepValid(h.logger, ch, list), nil
	}
	return nil, ErrUnknownChannel
}

func keepValid[T entity.Entity](logger *logrus.Logger, ch entity.Channel, list []T) []entity.Entity {
	out := make([]entity.Entity, 0, len(list))
	for _, it := range list {
		if err := validation.Struct(it); err != nil {
			logger.WithFields(logrus.Fields{
				"channel": ch,
				"id":      it.Key(),
				"fields":  validation.ToDetails(err),
			}).Warn("dropping invalid element from hydration")
			continue
		}
		out = append(out, it)
	}
	return out
}
