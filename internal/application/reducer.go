package application

import "github.com/oksasatya/realtime-task-client/internal/domain/entity"

// EventKind is the effect an event has on its collection.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Placement decides where a newly inserted element goes.
type Placement int

const (
	PlaceAppend Placement = iota
	PlacePrepend
)

// Outcome reports what a reduction did.
type Outcome int

const (
	Unchanged Outcome = iota
	Inserted
	Replaced
	Removed
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Removed:
		return "removed"
	}
	return "unchanged"
}

// Reduce applies one event to current and returns the next collection.
// current is never modified; when the outcome is Unchanged the same slice
// is returned.
//
// Created and updated are both upserts, so duplicate creates and
// update-before-create deliveries converge. Deleting an absent id is a
// no-op. When the stored element carries a revision, the incoming one must
// be strictly newer to apply.
func Reduce[T entity.Entity](kind EventKind, payload T, current []T, place Placement) ([]T, Outcome) {
	idx := indexOf(current, payload.Key())

	switch kind {
	case EventCreated, EventUpdated:
		if idx < 0 {
			return insert(current, payload, place), Inserted
		}
		if !supersedes(payload, current[idx]) {
			return current, Unchanged
		}
		next := make([]T, len(current))
		copy(next, current)
		next[idx] = payload
		return next, Replaced

	case EventDeleted:
		if idx < 0 {
			return current, Unchanged
		}
		next := make([]T, 0, len(current)-1)
		next = append(next, current[:idx]...)
		next = append(next, current[idx+1:]...)
		return next, Removed
	}
	return current, Unchanged
}

// supersedes reports whether incoming may replace stored. Last write wins
// only while stored is unversioned; once it carries a revision, incoming
// must be strictly newer.
func supersedes[T entity.Entity](incoming, stored T) bool {
	return stored.Revision() == 0 || incoming.Revision() > stored.Revision()
}

func indexOf[T entity.Entity](items []T, key int64) int {
	for i, it := range items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}

func insert[T entity.Entity](current []T, item T, place Placement) []T {
	next := make([]T, 0, len(current)+1)
	if place == PlacePrepend {
		next = append(next, item)
		return append(next, current...)
	}
	next = append(next, current...)
	return append(next, item)
}

// placementFor returns the display order rule of a channel: notifications
// are newest first, everything else keeps arrival order.
func placementFor(ch entity.Channel) Placement {
	if ch == entity.ChannelNotifications {
		return PlacePrepend
	}
	return PlaceAppend
}
