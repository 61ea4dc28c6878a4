package application

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
)

// MutationState tracks an optimistic mutation.
type MutationState string

const (
	MutationPending   MutationState = "pending"
	MutationCommitted MutationState = "committed"
	MutationFailed    MutationState = "failed"
)

// Mutation is one mark-as-read request. An empty IDs means all.
type Mutation struct {
	ID        string        `json:"id"`
	IDs       []int64       `json:"notification_ids"`
	State     MutationState `json:"state"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Identity is what the aggregator needs from the session.
type Identity interface {
	CurrentUser() *entity.User
	Expire(reason error)
}

const maxMutations = 50

// readCover is the set of notification ids a mutation applies to.
type readCover struct {
	all bool
	ids map[int64]bool
}

func coverOf(ids []int64) readCover {
	if len(ids) == 0 {
		return readCover{all: true}
	}
	return readCover{ids: idSet(ids)}
}

func (c readCover) has(id int64) bool { return c.all || c.ids[id] }

func (c *readCover) add(o readCover) {
	if o.all {
		c.all = true
		return
	}
	if c.ids == nil {
		c.ids = make(map[int64]bool, len(o.ids))
	}
	for id := range o.ids {
		c.ids[id] = true
	}
}

// markRun is a mutation waiting on the backend. flips are the optimistic
// changes it answers for, including ones handed over by a failed run.
type markRun struct {
	m      *Mutation
	covers readCover
	// ids covered by runs that committed while this one was in flight
	settled readCover
	flips   []ReadFlip
}

// NotificationAggregator keeps the unread count and runs the optimistic
// mark-as-read flow.
type NotificationAggregator struct {
	store    *Store
	repo     repository.NotificationRepository
	identity Identity
	logger   *logrus.Logger

	mu        sync.Mutex
	unread    int
	listeners []func(int)
	mutations []*Mutation
	inflight  []*markRun

	unsubscribe func()
}

func NewNotificationAggregator(store *Store, repo repository.NotificationRepository, identity Identity, logger *logrus.Logger) *NotificationAggregator {
	a := &NotificationAggregator{store: store, repo: repo, identity: identity, logger: logger}
	a.unread = CountUnread(store.Notifications())
	a.unsubscribe = store.Subscribe(entity.ChannelNotifications, func(Change) { a.recompute() })
	return a
}

// CountUnread counts the notifications not yet read.
func CountUnread(list []entity.Notification) int {
	n := 0
	for _, it := range list {
		if !it.IsRead {
			n++
		}
	}
	return n
}

func (a *NotificationAggregator) UnreadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unread
}

// OnUnreadChange registers fn for unread count changes.
func (a *NotificationAggregator) OnUnreadChange(fn func(int)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// Close detaches the aggregator from the store.
func (a *NotificationAggregator) Close() { a.unsubscribe() }

// recompute runs inside the store's fan-out, so listeners see counts in
// commit order.
func (a *NotificationAggregator) recompute() {
	n := CountUnread(a.store.Notifications())

	a.mu.Lock()
	changed := n != a.unread
	a.unread = n
	listeners := slices.Clone(a.listeners)
	a.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(n)
		}
	}
}

// MarkAsRead marks ids (all when empty) as read. The store is updated
// immediately; if the backend rejects the request the change is rolled
// back and the error returned. It is never retried. Overlapping calls
// never roll back an id another call committed or still covers.
func (a *NotificationAggregator) MarkAsRead(ctx context.Context, ids []int64) (*Mutation, error) {
	user := a.identity.CurrentUser()
	if user == nil {
		return nil, &AuthError{Op: "mark_read", Err: ErrNotAuthenticated}
	}

	m := &Mutation{
		ID:        uuid.NewString(),
		IDs:       slices.Clone(ids),
		State:     MutationPending,
		CreatedAt: time.Now().UTC(),
	}
	run := &markRun{m: m, covers: coverOf(ids)}
	a.track(run)

	flips := a.store.MarkRead(ids)
	a.mu.Lock()
	run.flips = append(run.flips, flips...)
	a.mu.Unlock()

	err := a.repo.MarkRead(ctx, user.ID, ids)
	if err == nil {
		a.store.ReleaseRead(a.commit(run))
		a.logger.WithFields(logrus.Fields{"mutation_id": m.ID, "flipped": len(flips)}).Debug("notifications marked read")
		return a.snapshot(m), nil
	}

	revert, release := a.fail(run, err)
	a.store.ReleaseRead(release)
	a.store.RevertRead(revert)
	a.logger.WithError(err).WithField("mutation_id", m.ID).Warn("mark as read failed, rolled back")
	if IsAuthError(err) {
		a.identity.Expire(err)
		return a.snapshot(m), &AuthError{Op: "mark_read", Err: err}
	}
	return a.snapshot(m), err
}

// Mutations returns the most recent mutations, oldest first.
func (a *NotificationAggregator) Mutations() []Mutation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Mutation, len(a.mutations))
	for i, m := range a.mutations {
		out[i] = *m
	}
	return out
}

// track registers run before it touches the store, so a run failing
// meanwhile already sees what this one covers.
func (a *NotificationAggregator) track(run *markRun) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight = append(a.inflight, run)
	a.mutations = append(a.mutations, run.m)
	if len(a.mutations) > maxMutations {
		a.mutations = slices.Clone(a.mutations[len(a.mutations)-maxMutations:])
	}
}

func (a *NotificationAggregator) untrackLocked(run *markRun) {
	a.inflight = slices.DeleteFunc(a.inflight, func(r *markRun) bool { return r == run })
}

// commit settles run as committed and returns the flips to release. Runs
// still in flight will not roll back what run covered.
func (a *NotificationAggregator) commit(run *markRun) []ReadFlip {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.untrackLocked(run)
	for _, other := range a.inflight {
		other.settled.add(run.covers)
	}
	run.m.State = MutationCommitted
	return run.flips
}

// fail settles run as failed and splits its flips: ones a committed run
// covered are released, ones another pending run covers are handed to it,
// the rest are reverted.
func (a *NotificationAggregator) fail(run *markRun, err error) (revert, release []ReadFlip) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.untrackLocked(run)
	run.m.State = MutationFailed
	run.m.Error = err.Error()

next:
	for _, f := range run.flips {
		if run.settled.has(f.ID) {
			release = append(release, f)
			continue
		}
		for _, other := range a.inflight {
			if other.covers.has(f.ID) {
				other.flips = append(other.flips, f)
				continue next
			}
		}
		revert = append(revert, f)
	}
	return revert, release
}

func (a *NotificationAggregator) snapshot(m *Mutation) *Mutation {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := *m
	return &c
}
