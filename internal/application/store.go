package application

import (
	"fmt"
	"slices"
	"sync"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
)

// ChangeCause tells subscribers why a collection changed.
type ChangeCause string

const (
	CauseEvent      ChangeCause = "event"
	CauseHydrate    ChangeCause = "hydrate"
	CauseReset      ChangeCause = "reset"
	CauseOptimistic ChangeCause = "optimistic"
	CauseRollback   ChangeCause = "rollback"
)

// AppliedEvent is an event together with what it did to the collection.
type AppliedEvent struct {
	Event   Event
	Outcome Outcome
}

// Change is delivered to subscribers after every commit. Applied lists the
// push events that took effect: one for CauseEvent, the replayed buffer for
// CauseHydrate, none otherwise.
type Change struct {
	Channel entity.Channel
	Cause   ChangeCause
	Applied []AppliedEvent
}

// ReadFlip records one optimistic unread-to-read transition so it can be
// reverted.
type ReadFlip struct {
	ID       int64
	Revision int64
}

type hydration struct {
	gen     uint64
	active  bool
	pending []Event
	// flips settled while this hydration was in flight; its snapshot may
	// predate them
	reads []ReadFlip
}

type subscriber struct {
	id uint64
	ch entity.Channel
	fn func(Change)
}

// Store owns the three synchronized collections. Every mutation goes
// through the reducer and replaces the collection slice; readers get
// copies.
//
// Commits and the subscriber fan-out that follows them are serialized:
// subscribers observe changes in commit order. A subscriber must not
// mutate the store from inside its callback.
type Store struct {
	dispatch sync.Mutex

	mu            sync.RWMutex
	projects      []entity.Project
	tasks         []entity.Task
	notifications []entity.Notification
	hydrations    map[entity.Channel]*hydration
	subscribers   []subscriber
	nextSub       uint64
	// optimistic flips not yet settled, by notification id
	held map[int64]ReadFlip
}

func NewStore() *Store {
	s := &Store{
		hydrations: make(map[entity.Channel]*hydration, len(entity.Channels)),
		held:       make(map[int64]ReadFlip),
	}
	for _, ch := range entity.Channels {
		s.hydrations[ch] = &hydration{}
	}
	return s
}

// Apply commits a push event. While the channel is hydrating the event is
// buffered and replayed on top of the fetched collection.
func (s *Store) Apply(ev Event) error {
	if !ev.Channel.Valid() {
		return ErrUnknownChannel
	}
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	if h := s.hydrations[ev.Channel]; h.active {
		h.pending = append(h.pending, ev)
		s.mu.Unlock()
		return nil
	}
	out, err := s.reduceLocked(ev)
	s.mu.Unlock()
	if err != nil || out == Unchanged {
		return err
	}

	s.notify(Change{Channel: ev.Channel, Cause: CauseEvent, Applied: []AppliedEvent{{Event: ev, Outcome: out}}})
	return nil
}

// BeginHydration starts buffering events for ch and returns the generation
// token the matching Replace must present. Starting a new hydration
// supersedes any one still in flight.
func (s *Store) BeginHydration(ch entity.Channel) (uint64, error) {
	if !ch.Valid() {
		return 0, ErrUnknownChannel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hydrations[ch]
	h.gen++
	h.active = true
	h.pending = nil
	return h.gen, nil
}

// Replace installs a fetched collection and replays the events buffered
// since BeginHydration. A generation that was superseded by another
// hydration, a cancel or a Reset is rejected with ErrStaleHydration.
func (s *Store) Replace(ch entity.Channel, gen uint64, items []entity.Entity) error {
	if !ch.Valid() {
		return ErrUnknownChannel
	}
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	h := s.hydrations[ch]
	if !h.active || h.gen != gen {
		s.mu.Unlock()
		return ErrStaleHydration
	}
	reads := h.reads
	var err error
	switch ch {
	case entity.ChannelProjects:
		err = replaceInto(&s.projects, ch, items)
	case entity.ChannelTasks:
		err = replaceInto(&s.tasks, ch, items)
	case entity.ChannelNotifications:
		err = replaceInto(&s.notifications, ch, items)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	applied := s.finishLocked(h)
	if ch == entity.ChannelNotifications {
		s.pinReadsLocked(reads)
	}
	s.mu.Unlock()

	s.notify(Change{Channel: ch, Cause: CauseHydrate, Applied: applied})
	return nil
}

// AbortHydration ends a failed hydration of generation gen: buffered events
// are applied to the collection as it stands. A superseded gen is ignored.
func (s *Store) AbortHydration(ch entity.Channel, gen uint64) {
	s.endHydration(ch, func(h *hydration) bool { return h.gen == gen })
}

// CancelHydration ends whatever hydration of ch is in flight and makes its
// generation stale.
func (s *Store) CancelHydration(ch entity.Channel) {
	s.endHydration(ch, func(h *hydration) bool {
		h.gen++
		return true
	})
}

func (s *Store) endHydration(ch entity.Channel, match func(*hydration) bool) {
	if !ch.Valid() {
		return
	}
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	h := s.hydrations[ch]
	if !h.active || !match(h) {
		s.mu.Unlock()
		return
	}
	applied := s.finishLocked(h)
	s.mu.Unlock()

	if len(applied) > 0 {
		s.notify(Change{Channel: ch, Cause: CauseEvent, Applied: applied})
	}
}

// finishLocked replays the buffer of h and leaves hydration mode.
func (s *Store) finishLocked(h *hydration) []AppliedEvent {
	var applied []AppliedEvent
	for _, ev := range h.pending {
		out, err := s.reduceLocked(ev)
		if err == nil && out != Unchanged {
			applied = append(applied, AppliedEvent{Event: ev, Outcome: out})
		}
	}
	h.active = false
	h.pending = nil
	h.reads = nil
	return applied
}

// Hydrating reports whether ch is buffering events.
func (s *Store) Hydrating(ch entity.Channel) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hydrations[ch]
	return ok && h.active
}

// Reset clears every collection and invalidates in-flight hydrations.
func (s *Store) Reset() {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	s.projects, s.tasks, s.notifications = nil, nil, nil
	for _, h := range s.hydrations {
		h.gen++
		h.active = false
		h.pending = nil
		h.reads = nil
	}
	clear(s.held)
	s.mu.Unlock()

	for _, ch := range entity.Channels {
		s.notify(Change{Channel: ch, Cause: CauseReset})
	}
}

// MarkRead flips the given notifications (all when ids is empty) to read
// and returns what was flipped. Already read or absent ids are skipped.
// The flips are held until ReleaseRead or RevertRead: a hydration that
// lands meanwhile keeps them read.
func (s *Store) MarkRead(ids []int64) []ReadFlip {
	want := idSet(ids)

	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	var flips []ReadFlip
	next := make([]entity.Notification, len(s.notifications))
	copy(next, s.notifications)
	for i, n := range next {
		if n.IsRead || (want != nil && !want[n.ID]) {
			continue
		}
		next[i].IsRead = true
		f := ReadFlip{ID: n.ID, Revision: n.Version}
		flips = append(flips, f)
		s.held[f.ID] = f
	}
	if len(flips) > 0 {
		s.notifications = next
	}
	s.mu.Unlock()

	if len(flips) > 0 {
		s.notify(Change{Channel: entity.ChannelNotifications, Cause: CauseOptimistic})
	}
	return flips
}

// RevertRead undoes flips. A notification that has since been removed,
// re-read as unread, or replaced by a newer revision is left alone.
func (s *Store) RevertRead(flips []ReadFlip) {
	if len(flips) == 0 {
		return
	}
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	h := s.hydrations[entity.ChannelNotifications]
	next := make([]entity.Notification, len(s.notifications))
	copy(next, s.notifications)
	reverted := 0
	for _, f := range flips {
		s.dropHeldLocked(f)
		h.reads = slices.DeleteFunc(h.reads, func(r ReadFlip) bool { return r == f })
		i := indexOf(next, f.ID)
		if i < 0 || !next[i].IsRead || next[i].Version != f.Revision {
			continue
		}
		next[i].IsRead = false
		reverted++
	}
	if reverted > 0 {
		s.notifications = next
	}
	s.mu.Unlock()

	if reverted > 0 {
		s.notify(Change{Channel: entity.ChannelNotifications, Cause: CauseRollback})
	}
}

// ReleaseRead settles flips the backend accepted. A notifications
// hydration already in flight may have fetched the state from before the
// change, so its snapshot still gets them.
func (s *Store) ReleaseRead(flips []ReadFlip) {
	if len(flips) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hydrations[entity.ChannelNotifications]
	for _, f := range flips {
		s.dropHeldLocked(f)
		if h.active {
			h.reads = append(h.reads, f)
		}
	}
}

func (s *Store) dropHeldLocked(f ReadFlip) {
	if cur, ok := s.held[f.ID]; ok && cur == f {
		delete(s.held, f.ID)
	}
}

// pinReadsLocked re-applies held flips and extra on top of a freshly
// installed notifications collection. An element whose revision moved
// since the flip is left as fetched.
func (s *Store) pinReadsLocked(extra []ReadFlip) {
	if len(s.held) == 0 && len(extra) == 0 {
		return
	}
	next := slices.Clone(s.notifications)
	changed := false
	pin := func(f ReadFlip) {
		if i := indexOf(next, f.ID); i >= 0 && !next[i].IsRead && next[i].Version == f.Revision {
			next[i].IsRead = true
			changed = true
		}
	}
	for _, f := range s.held {
		pin(f)
	}
	for _, f := range extra {
		pin(f)
	}
	if changed {
		s.notifications = next
	}
}

func (s *Store) Projects() []entity.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.projects)
}

func (s *Store) Tasks() []entity.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tasks)
}

func (s *Store) Notifications() []entity.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.notifications)
}

// Snapshot returns the collection of ch as generic entities.
func (s *Store) Snapshot(ch entity.Channel) []entity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch ch {
	case entity.ChannelProjects:
		return toEntities(s.projects)
	case entity.ChannelTasks:
		return toEntities(s.tasks)
	case entity.ChannelNotifications:
		return toEntities(s.notifications)
	}
	return nil
}

// Subscribe registers fn for commits on ch and returns the function that
// removes it.
func (s *Store) Subscribe(ch entity.Channel, fn func(Change)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subscribers = append(s.subscribers, subscriber{id: id, ch: ch, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscribers {
				if sub.id == id {
					s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// notify runs with dispatch held and mu released.
func (s *Store) notify(c Change) {
	s.mu.RLock()
	subs := make([]subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		if sub.ch == c.Channel {
			subs = append(subs, sub)
		}
	}
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(c)
	}
}

func (s *Store) reduceLocked(ev Event) (Outcome, error) {
	place := placementFor(ev.Channel)
	switch ev.Channel {
	case entity.ChannelProjects:
		return reduceInto(&s.projects, ev, place)
	case entity.ChannelTasks:
		return reduceInto(&s.tasks, ev, place)
	case entity.ChannelNotifications:
		return reduceInto(&s.notifications, ev, place)
	}
	return Unchanged, ErrUnknownChannel
}

func reduceInto[T entity.Entity](dst *[]T, ev Event, place Placement) (Outcome, error) {
	payload, ok := ev.Payload.(T)
	if !ok {
		return Unchanged, fmt.Errorf("%w: %s got %T", ErrPayloadMismatch, ev.Channel, ev.Payload)
	}
	next, out := Reduce(ev.Kind, payload, *dst, place)
	*dst = next
	return out, nil
}

// replaceInto builds a fresh collection from items, keeping their order.
// Repeated ids collapse onto their first position.
func replaceInto[T entity.Entity](dst *[]T, ch entity.Channel, items []entity.Entity) error {
	next := make([]T, 0, len(items))
	for _, it := range items {
		v, ok := it.(T)
		if !ok {
			return fmt.Errorf("%w: %s got %T", ErrPayloadMismatch, ch, it)
		}
		next, _ = Reduce(EventUpdated, v, next, PlaceAppend)
	}
	*dst = next
	return nil
}

func toEntities[T entity.Entity](items []T) []entity.Entity {
	out := make([]entity.Entity, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}

func idSet(ids []int64) map[int64]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
