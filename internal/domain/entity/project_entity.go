package entity

import "time"

// Project is a container of tasks owned by one user.
type Project struct {
	ID          int64     `json:"id" validate:"gt=0"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     int64     `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int64     `json:"version,omitempty" validate:"gte=0"`
}

func (p Project) Key() int64      { return p.ID }
func (p Project) Revision() int64 { return p.Version }
