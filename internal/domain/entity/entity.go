package entity

// Entity is an element of one of the synchronized collections.
// Key is unique within its collection. Revision is the monotonic
// per-entity version carried by the backend; zero means unversioned.
type Entity interface {
	Key() int64
	Revision() int64
}

// Channel names one push stream and the collection it feeds.
type Channel string

const (
	ChannelProjects      Channel = "projects"
	ChannelTasks         Channel = "tasks"
	ChannelNotifications Channel = "notifications"
)

// Channels lists every channel in a stable order.
var Channels = []Channel{ChannelProjects, ChannelTasks, ChannelNotifications}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelProjects, ChannelTasks, ChannelNotifications:
		return true
	}
	return false
}
