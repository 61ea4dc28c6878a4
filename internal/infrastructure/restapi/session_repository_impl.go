package restapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
)

var errEmptyUser = errors.New("response carried no user")

type SessionRepository struct {
	c *Client
}

func NewSessionRepository(c *Client) *SessionRepository {
	return &SessionRepository{c: c}
}

type messageResponse struct {
	Message string `json:"message"`
}

func (r *SessionRepository) Me(ctx context.Context) (*entity.User, error) {
	var res struct {
		User *entity.User `json:"user"`
	}
	if err := r.c.do(ctx, "auth.me", http.MethodGet, "/auth/me", nil, nil, &res); err != nil {
		return nil, err
	}
	if res.User == nil || res.User.ID == 0 {
		return nil, errEmptyUser
	}
	return res.User, nil
}

func (r *SessionRepository) Login(ctx context.Context, in repository.LoginInput) (*entity.User, error) {
	var res struct {
		UserID int64        `json:"user_id"`
		User   *entity.User `json:"user"`
	}
	if err := r.c.do(ctx, "auth.login", http.MethodPost, "/auth/login", nil, in, &res); err != nil {
		return nil, err
	}
	if res.User != nil && res.User.ID != 0 {
		return res.User, nil
	}
	if res.UserID == 0 {
		return nil, errEmptyUser
	}
	return &entity.User{ID: res.UserID}, nil
}

func (r *SessionRepository) Logout(ctx context.Context) error {
	return r.c.do(ctx, "auth.logout", http.MethodPost, "/auth/logout", nil, nil, nil)
}

func (r *SessionRepository) Register(ctx context.Context, in repository.RegisterInput) (string, error) {
	var res messageResponse
	if err := r.c.do(ctx, "auth.register", http.MethodPost, "/auth/register", nil, in, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}

func (r *SessionRepository) VerifyEmail(ctx context.Context, token string) (string, error) {
	var res messageResponse
	q := url.Values{"token": {token}}
	if err := r.c.do(ctx, "auth.verify_email", http.MethodGet, "/auth/verify-email", q, nil, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}

func (r *SessionRepository) ResendVerification(ctx context.Context, email string) (string, error) {
	var res messageResponse
	body := map[string]string{"email": email}
	if err := r.c.do(ctx, "auth.resend_verification", http.MethodPost, "/auth/resend-verification", nil, body, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
