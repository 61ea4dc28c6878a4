package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
)

// KeyValueWriter is the write side of a key-value store.
type KeyValueWriter interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// UserSource reports the current user.
type UserSource interface {
	CurrentUser() *entity.User
}

// SnapshotMirror copies every committed collection, and the unread count,
// to a key-value store for external readers. It never reads anything back.
// Writes run on their own goroutine; bursts of commits to one channel
// collapse into a single write.
type SnapshotMirror struct {
	kv       KeyValueWriter
	store    *Store
	users    UserSource
	prefix   string
	ttl      time.Duration
	timeout  time.Duration
	logger   *logrus.Logger
	onFlush  func()
	unsubs   []func()
	wake     chan struct{}
	quit     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	dirty    map[entity.Channel]bool
	lastUser int64
}

func NewSnapshotMirror(kv KeyValueWriter, store *Store, users UserSource, prefix string, ttl time.Duration, logger *logrus.Logger) *SnapshotMirror {
	if prefix == "" {
		prefix = "sync"
	}
	return &SnapshotMirror{
		kv:      kv,
		store:   store,
		users:   users,
		prefix:  prefix,
		ttl:     ttl,
		timeout: 3 * time.Second,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		dirty:   make(map[entity.Channel]bool),
	}
}

// Key returns the key the collection of ch is mirrored to for userID.
func (m *SnapshotMirror) Key(userID int64, ch entity.Channel) string {
	return fmt.Sprintf("%s:user:%d:%s", m.prefix, userID, ch)
}

// UnreadKey returns the key of the mirrored unread count.
func (m *SnapshotMirror) UnreadKey(userID int64) string {
	return fmt.Sprintf("%s:user:%d:unread", m.prefix, userID)
}

func (m *SnapshotMirror) Start() {
	for _, ch := range entity.Channels {
		m.unsubs = append(m.unsubs, m.store.Subscribe(ch, func(c Change) { m.markDirty(c.Channel) }))
	}
	m.wg.Add(1)
	go m.loop()
}

func (m *SnapshotMirror) Stop() {
	for _, u := range m.unsubs {
		u()
	}
	close(m.quit)
	m.wg.Wait()
}

func (m *SnapshotMirror) markDirty(ch entity.Channel) {
	m.mu.Lock()
	m.dirty[ch] = true
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *SnapshotMirror) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.quit:
			return
		case <-m.wake:
			m.flush()
		}
	}
}

func (m *SnapshotMirror) flush() {
	m.mu.Lock()
	dirty := m.dirty
	m.dirty = make(map[entity.Channel]bool)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	user := m.users.CurrentUser()
	if user == nil {
		m.forget(ctx)
	} else {
		if m.lastUser != 0 && m.lastUser != user.ID {
			m.forget(ctx)
		}
		m.lastUser = user.ID
		for _, ch := range entity.Channels {
			if dirty[ch] {
				m.write(ctx, user.ID, ch)
			}
		}
	}
	if m.onFlush != nil {
		m.onFlush()
	}
}

func (m *SnapshotMirror) write(ctx context.Context, userID int64, ch entity.Channel) {
	var value any
	switch ch {
	case entity.ChannelProjects:
		value = m.store.Projects()
	case entity.ChannelTasks:
		value = m.store.Tasks()
	case entity.ChannelNotifications:
		list := m.store.Notifications()
		value = list
		if err := m.kv.SetJSON(ctx, m.UnreadKey(userID), CountUnread(list), m.ttl); err != nil {
			m.logger.WithError(err).Warn("mirror unread count")
		}
	}
	if err := m.kv.SetJSON(ctx, m.Key(userID, ch), value, m.ttl); err != nil {
		m.logger.WithError(err).WithField("channel", ch).Warn("mirror snapshot")
	}
}

// forget removes the keys of the previously mirrored user.
func (m *SnapshotMirror) forget(ctx context.Context) {
	if m.lastUser == 0 {
		return
	}
	keys := []string{m.UnreadKey(m.lastUser)}
	for _, ch := range entity.Channels {
		keys = append(keys, m.Key(m.lastUser, ch))
	}
	if err := m.kv.Del(ctx, keys...); err != nil {
		m.logger.WithError(err).Warn("mirror cleanup")
	}
	m.lastUser = 0
}
