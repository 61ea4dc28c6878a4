package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
)

func seededStore(notes ...entity.Notification) *Store {
	s := NewStore()
	gen, _ := s.BeginHydration(entity.ChannelNotifications)
	items := make([]entity.Entity, len(notes))
	for i, n := range notes {
		items[i] = n
	}
	_ = s.Replace(entity.ChannelNotifications, gen, items)
	return s
}

func TestNotificationAggregator_TracksUnreadCount(t *testing.T) {
	store := seededStore(note(1, "a", false), note(2, "b", true))
	agg := NewNotificationAggregator(store, &fakeNotificationRepo{}, &staticIdentity{user: &entity.User{ID: 1}}, testLogger())
	defer agg.Close()

	var counts []int
	agg.OnUnreadChange(func(n int) { counts = append(counts, n) })

	if agg.UnreadCount() != 1 {
		t.Fatalf("initial unread = %d", agg.UnreadCount())
	}
	_ = store.Apply(noteEvent(note(3, "c", false)))
	_ = store.Apply(noteEvent(note(4, "d", true)))
	_ = store.Apply(Event{Channel: entity.ChannelNotifications, Kind: EventDeleted, Payload: entity.Notification{ID: 1}})
	store.Reset()

	if diff := cmp.Diff([]int{2, 1, 0}, counts); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
}

func TestNotificationAggregator_MarkAllAsRead(t *testing.T) {
	store := seededStore(note(1, "a", false), note(2, "b", false), note(3, "c", true))
	repo := &fakeNotificationRepo{}
	agg := NewNotificationAggregator(store, repo, &staticIdentity{user: &entity.User{ID: 7}}, testLogger())

	var unreadDuringCall int
	repo.during = func() { unreadDuringCall = agg.UnreadCount() }

	m, err := agg.MarkAsRead(context.Background(), nil)
	if err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
	if unreadDuringCall != 0 {
		t.Fatalf("optimistic update not visible during the request: %d unread", unreadDuringCall)
	}
	if agg.UnreadCount() != 0 {
		t.Fatalf("unread = %d", agg.UnreadCount())
	}
	for _, n := range store.Notifications() {
		if !n.IsRead {
			t.Fatalf("notification %d still unread", n.ID)
		}
	}
	if m.State != MutationCommitted || m.ID == "" {
		t.Fatalf("mutation = %+v", m)
	}
	if diff := cmp.Diff([]markCall{{UserID: 7}}, repo.calls); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
}

func TestNotificationAggregator_MarkSomeAsRead(t *testing.T) {
	store := seededStore(note(1, "a", false), note(2, "b", false), note(3, "c", true), note(4, "d", false))
	agg := NewNotificationAggregator(store, &fakeNotificationRepo{}, &staticIdentity{user: &entity.User{ID: 1}}, testLogger())

	before := agg.UnreadCount()
	if _, err := agg.MarkAsRead(context.Background(), []int64{2, 3}); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
	// only 2 was unread among {2, 3}
	if got := agg.UnreadCount(); got != before-1 {
		t.Fatalf("unread = %d, want %d", got, before-1)
	}
	read := map[int64]bool{}
	for _, n := range store.Notifications() {
		read[n.ID] = n.IsRead
	}
	if diff := cmp.Diff(map[int64]bool{1: false, 2: true, 3: true, 4: false}, read); diff != "" {
		t.Fatalf("read state (-want +got):\n%s", diff)
	}
}

func TestNotificationAggregator_RollbackOnFailure(t *testing.T) {
	store := seededStore(note(1, "a", false), note(2, "b", false))
	repo := &fakeNotificationRepo{err: &repository.StatusError{Op: "mark", Status: 500, Message: "boom"}}
	agg := NewNotificationAggregator(store, repo, &staticIdentity{user: &entity.User{ID: 1}}, testLogger())

	var counts []int
	agg.OnUnreadChange(func(n int) { counts = append(counts, n) })

	m, err := agg.MarkAsRead(context.Background(), nil)
	var se *repository.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v", err)
	}
	if m.State != MutationFailed || m.Error == "" {
		t.Fatalf("mutation = %+v", m)
	}
	if agg.UnreadCount() != 2 {
		t.Fatalf("unread after rollback = %d", agg.UnreadCount())
	}
	if diff := cmp.Diff([]int{0, 2}, counts); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
	if len(repo.calls) != 1 {
		t.Fatalf("retried: %d calls", len(repo.calls))
	}
}

// A notification pushed while the request is in flight keeps its own
// state through the rollback.
func TestNotificationAggregator_RollbackKeepsConcurrentPush(t *testing.T) {
	store := seededStore(note(1, "a", false))
	repo := &fakeNotificationRepo{err: &repository.NetworkError{Op: "mark", Err: errors.New("reset")}}
	agg := NewNotificationAggregator(store, repo, &staticIdentity{user: &entity.User{ID: 1}}, testLogger())
	repo.during = func() { _ = store.Apply(noteEvent(note(2, "new", false))) }

	if _, err := agg.MarkAsRead(context.Background(), nil); !IsNetworkError(err) {
		t.Fatalf("err = %v", err)
	}
	if agg.UnreadCount() != 2 {
		t.Fatalf("unread = %d", agg.UnreadCount())
	}
	if first := store.Notifications()[0]; first.ID != 2 || first.IsRead {
		t.Fatalf("pushed notification = %+v", first)
	}
}

func TestNotificationAggregator_RequiresUser(t *testing.T) {
	store := seededStore(note(1, "a", false))
	repo := &fakeNotificationRepo{}
	agg := NewNotificationAggregator(store, repo, &staticIdentity{}, testLogger())

	_, err := agg.MarkAsRead(context.Background(), nil)
	if !IsAuthError(err) || !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v", err)
	}
	if agg.UnreadCount() != 1 || len(repo.calls) != 0 {
		t.Fatal("mutation applied without a user")
	}
}

func TestNotificationAggregator_UnauthorizedExpiresSession(t *testing.T) {
	store := seededStore(note(1, "a", false))
	id := &staticIdentity{user: &entity.User{ID: 1}}
	repo := &fakeNotificationRepo{err: fmt.Errorf("mark: %w", repository.ErrUnauthorized)}
	agg := NewNotificationAggregator(store, repo, id, testLogger())

	_, err := agg.MarkAsRead(context.Background(), []int64{1})
	if !IsAuthError(err) {
		t.Fatalf("err = %v", err)
	}
	if len(id.expired) != 1 || id.CurrentUser() != nil {
		t.Fatalf("session not expired: %v", id.expired)
	}
	if agg.UnreadCount() != 1 {
		t.Fatalf("unread = %d", agg.UnreadCount())
	}
}

func TestNotificationAggregator_MutationsAreBounded(t *testing.T) {
	store := seededStore()
	agg := NewNotificationAggregator(store, &fakeNotificationRepo{}, &staticIdentity{user: &entity.User{ID: 1}}, testLogger())
	var last *Mutation
	for i := 0; i < maxMutations+10; i++ {
		last, _ = agg.MarkAsRead(context.Background(), []int64{int64(i)})
	}
	ms := agg.Mutations()
	if len(ms) != maxMutations {
		t.Fatalf("mutations = %d", len(ms))
	}
	if ms[len(ms)-1].ID != last.ID {
		t.Fatal("newest mutation not last")
	}
}

// steppedMarkRepo holds every MarkRead until the test resolves it.
type steppedMarkRepo struct {
	mu      sync.Mutex
	waiting []chan error
}

func (r *steppedMarkRepo) MarkRead(context.Context, int64, []int64) error {
	ch := make(chan error, 1)
	r.mu.Lock()
	r.waiting = append(r.waiting, ch)
	r.mu.Unlock()
	return <-ch
}

func (r *steppedMarkRepo) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiting)
}

func (r *steppedMarkRepo) resolve(i int, err error) {
	r.mu.Lock()
	ch := r.waiting[i]
	r.mu.Unlock()
	ch <- err
}

func markAsync(agg *NotificationAggregator, ids []int64) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := agg.MarkAsRead(context.Background(), ids)
		done <- err
	}()
	return done
}

func TestNotificationAggregator_FailureKeepsOverlappingCommit(t *testing.T) {
	store := seededStore(note(1, "a", false), note(2, "b", false))
	repo := &steppedMarkRepo{}
	agg := NewNotificationAggregator(store, repo, &staticIdentity{user: &entity.User{ID: 1}}, testLogger())
	defer agg.Close()

	first := markAsync(agg, []int64{1})
	eventually(t, "first request", func() bool { return repo.pending() == 1 })
	all := markAsync(agg, nil)
	eventually(t, "second request", func() bool { return repo.pending() == 2 })

	repo.resolve(1, nil)
	if err := <-all; err != nil {
		t.Fatalf("mark all: %v", err)
	}
	repo.resolve(0, errors.New("boom"))
	if err := <-first; err == nil {
		t.Fatal("expected first mutation to fail")
	}

	if n := agg.UnreadCount(); n != 0 {
		t.Fatalf("unread = %d after a committed mark-all", n)
	}
}

func TestNotificationAggregator_FailureHandsFlipsToPendingRun(t *testing.T) {
	store := seededStore(note(1, "a", false), note(2, "b", false))
	repo := &steppedMarkRepo{}
	agg := NewNotificationAggregator(store, repo, &staticIdentity{user: &entity.User{ID: 1}}, testLogger())
	defer agg.Close()

	first := markAsync(agg, []int64{1})
	eventually(t, "first request", func() bool { return repo.pending() == 1 })
	all := markAsync(agg, nil)
	eventually(t, "second request", func() bool { return repo.pending() == 2 })

	repo.resolve(0, errors.New("boom"))
	<-first
	if n := agg.UnreadCount(); n != 0 {
		t.Fatalf("unread = %d while mark-all is pending", n)
	}

	repo.resolve(1, errors.New("boom"))
	<-all
	if n := agg.UnreadCount(); n != 2 {
		t.Fatalf("unread = %d after both failed", n)
	}
}
