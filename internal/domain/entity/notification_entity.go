package entity

import "time"

// Notification is a message addressed to the current user.
// Its JSON shape follows the backend, which uses camelCase here
// unlike projects and tasks.
type Notification struct {
	ID        int64     `json:"id" validate:"gt=0"`
	UserID    int64     `json:"userID"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"version,omitempty" validate:"gte=0"`
}

func (n Notification) Key() int64      { return n.ID }
func (n Notification) Revision() int64 { return n.Version }
