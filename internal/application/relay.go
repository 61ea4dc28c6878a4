package application

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
)

// Publisher sends one JSON message to a queue.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// RelayMessage is what the relay publishes for each new notification.
type RelayMessage struct {
	Type         string              `json:"type"`
	Notification entity.Notification `json:"notification"`
	RelayedAt    time.Time           `json:"relayed_at"`
}

const relayQueueSize = 256

// NotificationRelay forwards every notification that arrives on the push
// channel to a message queue. Hydrated notifications are not relayed;
// only ones inserted by a push event are.
type NotificationRelay struct {
	pub     Publisher
	store   *Store
	logger  *logrus.Logger
	timeout time.Duration

	queue chan entity.Notification
	quit  chan struct{}
	wg    sync.WaitGroup
	unsub func()
}

func NewNotificationRelay(pub Publisher, store *Store, logger *logrus.Logger) *NotificationRelay {
	return &NotificationRelay{
		pub:     pub,
		store:   store,
		logger:  logger,
		timeout: 5 * time.Second,
		queue:   make(chan entity.Notification, relayQueueSize),
		quit:    make(chan struct{}),
	}
}

func (r *NotificationRelay) Start() {
	r.unsub = r.store.Subscribe(entity.ChannelNotifications, r.onChange)
	r.wg.Add(1)
	go r.loop()
}

// Stop detaches from the store and waits for queued messages to be sent.
func (r *NotificationRelay) Stop() {
	if r.unsub != nil {
		r.unsub()
	}
	close(r.quit)
	r.wg.Wait()
}

func (r *NotificationRelay) onChange(c Change) {
	for _, a := range c.Applied {
		if a.Outcome != Inserted {
			continue
		}
		n, ok := a.Event.Payload.(entity.Notification)
		if !ok {
			continue
		}
		select {
		case r.queue <- n:
		default:
			r.logger.WithField("notification_id", n.ID).Warn("relay queue full, dropping notification")
		}
	}
}

func (r *NotificationRelay) loop() {
	defer r.wg.Done()
	for {
		select {
		case n := <-r.queue:
			r.publish(n)
		case <-r.quit:
			for {
				select {
				case n := <-r.queue:
					r.publish(n)
				default:
					return
				}
			}
		}
	}
}

func (r *NotificationRelay) publish(n entity.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	msg := RelayMessage{Type: "notification", Notification: n, RelayedAt: time.Now().UTC()}
	if err := r.pub.PublishJSON(ctx, msg); err != nil {
		r.logger.WithError(err).WithField("notification_id", n.ID).Error("relay notification")
	}
}
