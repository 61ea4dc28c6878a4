package application

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/pkg/validation"
)

// Envelope is the wire shape of every push frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is a parsed frame ready for the reducer.
type Event struct {
	Channel entity.Channel
	Kind    EventKind
	Type    string
	Payload entity.Entity
}

var (
	errMissingType = errors.New("missing type")
	errMissingData = errors.New("missing data")
)

// frameKinds maps the recognized frame types of each channel.
// The backend emits "task_update" for task changes, so it is accepted
// next to "task_updated".
var frameKinds = map[entity.Channel]map[string]EventKind{
	entity.ChannelProjects: {
		"project_created": EventCreated,
		"project_updated": EventUpdated,
		"project_deleted": EventDeleted,
	},
	entity.ChannelTasks: {
		"task_created": EventCreated,
		"task_updated": EventUpdated,
		"task_update":  EventUpdated,
		"task_deleted": EventDeleted,
	},
	entity.ChannelNotifications: {
		"notification": EventCreated,
	},
}

// ParseFrame turns one text frame into an Event. handled is false for a
// well-formed frame whose type the channel does not consume (the backend
// also fans task frames out to notification sockets). Any malformed frame
// yields a *ParseError.
func ParseFrame(ch entity.Channel, raw []byte) (ev Event, handled bool, err error) {
	kinds, ok := frameKinds[ch]
	if !ok {
		return Event{}, false, ErrUnknownChannel
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, false, &ParseError{Channel: ch, Err: err}
	}
	if env.Type == "" {
		return Event{}, false, &ParseError{Channel: ch, Err: errMissingType}
	}
	kind, ok := kinds[env.Type]
	if !ok {
		return Event{}, false, nil
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return Event{}, false, &ParseError{Channel: ch, Type: env.Type, Err: errMissingData}
	}

	payload, err := decodePayload(ch, kind, env.Data)
	if err != nil {
		return Event{}, false, &ParseError{Channel: ch, Type: env.Type, Err: err}
	}
	return Event{Channel: ch, Kind: kind, Type: env.Type, Payload: payload}, true, nil
}

func decodePayload(ch entity.Channel, kind EventKind, data json.RawMessage) (entity.Entity, error) {
	switch ch {
	case entity.ChannelProjects:
		return decodeAs[entity.Project](kind, data)
	case entity.ChannelTasks:
		return decodeAs[entity.Task](kind, data)
	case entity.ChannelNotifications:
		return decodeAs[entity.Notification](kind, data)
	}
	return nil, ErrUnknownChannel
}

// decodeAs decodes data into T. Deletes only need a valid id; creates and
// updates must pass the entity's validation tags.
func decodeAs[T entity.Entity](kind EventKind, data json.RawMessage) (entity.Entity, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if kind == EventDeleted {
		if v.Key() <= 0 {
			return nil, errors.New("delete without id")
		}
		return v, nil
	}
	if err := validation.Struct(v); err != nil {
		return nil, newValidationError(err)
	}
	return v, nil
}
