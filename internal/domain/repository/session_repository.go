package repository

import (
	"context"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
)

// LoginInput is the payload of POST /auth/login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterInput is the payload of POST /auth/register.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionRepository defines the backend calls that establish or end a session.
// Implementations keep the session cookie themselves.
type SessionRepository interface {
	Me(ctx context.Context) (*entity.User, error)
	// Login returns the logged-in user when the backend includes it in the
	// response, or a user carrying only the ID otherwise.
	Login(ctx context.Context, in LoginInput) (*entity.User, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, in RegisterInput) (string, error)
	VerifyEmail(ctx context.Context, token string) (string, error)
	ResendVerification(ctx context.Context, email string) (string, error)
}
