package entity

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskDone       TaskStatus = "done"
)

// Valid reports whether s is one of the three known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskDone:
		return true
	}
	return false
}

type Task struct {
	ID          int64      `json:"id" validate:"gt=0"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status" validate:"required,oneof=pending in-progress done"`
	ProjectID   *int64     `json:"project_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Version     int64      `json:"version,omitempty" validate:"gte=0"`
}

func (t Task) Key() int64      { return t.ID }
func (t Task) Revision() int64 { return t.Version }
