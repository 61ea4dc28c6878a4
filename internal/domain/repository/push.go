package repository

import (
	"context"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
)

// PushConn is one open push channel. Receive blocks until the next text
// frame arrives or the connection ends; Close unblocks a pending Receive.
type PushConn interface {
	Receive() ([]byte, error)
	Close() error
}

// PushDialer opens the push channel for one entity type.
type PushDialer interface {
	Dial(ctx context.Context, ch entity.Channel) (PushConn, error)
}
