package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
	"github.com/oksasatya/realtime-task-client/pkg/helpers"
	"github.com/oksasatya/realtime-task-client/pkg/validation"
)

// Credentials is the login form.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,pwd"`
}

// Registration is the sign-up form.
type Registration struct {
	Username        string `json:"username" validate:"required,min=3,max=32"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,pwd"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type emailInput struct {
	Email string `json:"email" validate:"required,email"`
}

// TokenSource exposes the access token the backend stored in the cookie
// jar, if any.
type TokenSource interface {
	AccessToken() string
}

type sessionObserver struct {
	id uint64
	fn func(prev, next *entity.User)
}

// Session is the single owner of the current user. Observers receive every
// identity transition in order.
type Session struct {
	repo   repository.SessionRepository
	tokens TokenSource
	logger *logrus.Logger

	mu        sync.Mutex
	user      *entity.User
	loading   bool
	expiry    *time.Timer
	observers []sessionObserver
	nextObs   uint64

	// held while a transition is delivered
	transitions sync.Mutex
}

// NewSession starts in the loading state until the first Probe or Login
// settles. tokens may be nil.
func NewSession(repo repository.SessionRepository, tokens TokenSource, logger *logrus.Logger) *Session {
	return &Session{repo: repo, tokens: tokens, logger: logger, loading: true}
}

func (s *Session) CurrentUser() *entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Clone()
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// OnChange registers fn for identity transitions and returns the function
// that removes it. fn must not call back into Login, Logout, Probe or
// Expire.
func (s *Session) OnChange(fn func(prev, next *entity.User)) func() {
	s.mu.Lock()
	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, sessionObserver{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Probe asks the backend who is logged in. Failures leave the session
// anonymous and are only logged.
func (s *Session) Probe(ctx context.Context) {
	s.setLoading(true)
	defer s.setLoading(false)

	u, err := s.repo.Me(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrUnauthorized) {
			s.logger.WithError(err).Warn("session probe failed")
		} else {
			s.logger.Debug("no active session")
		}
		s.transition(nil)
		return
	}
	s.transition(u)
}

// Login validates c locally, then authenticates against the backend.
func (s *Session) Login(ctx context.Context, c Credentials) error {
	c.Email = strings.TrimSpace(c.Email)
	if err := validation.Struct(c); err != nil {
		return newValidationError(err)
	}

	u, err := s.repo.Login(ctx, repository.LoginInput{Email: c.Email, Password: c.Password})
	if err != nil {
		if errors.Is(err, repository.ErrUnauthorized) {
			return &AuthError{Op: "login", Err: ErrInvalidCredentials}
		}
		return err
	}
	if u.Username == "" && u.Email == "" {
		me, err := s.repo.Me(ctx)
		switch {
		case err == nil:
			u = me
		default:
			s.logger.WithError(err).Warn("could not load profile after login")
			u.Email = c.Email
		}
	}

	s.setLoading(false)
	s.transition(u)
	s.logger.WithField("user_id", u.ID).Info("logged in")
	return nil
}

// Logout ends the session. The user is cleared even when the backend call
// fails; that error is still returned.
func (s *Session) Logout(ctx context.Context) error {
	err := s.repo.Logout(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("logout request failed, clearing session anyway")
	}
	s.transition(nil)
	return err
}

// Register creates an account. It does not log in.
func (s *Session) Register(ctx context.Context, r Registration) (string, error) {
	r.Email = strings.TrimSpace(r.Email)
	r.Username = strings.TrimSpace(r.Username)
	if err := validation.Struct(r); err != nil {
		return "", newValidationError(err)
	}
	return s.repo.Register(ctx, repository.RegisterInput{
		Username: r.Username,
		Email:    r.Email,
		Password: r.Password,
	})
}

func (s *Session) VerifyEmail(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", &ValidationError{Fields: map[string]string{"token": "is required"}}
	}
	return s.repo.VerifyEmail(ctx, token)
}

func (s *Session) ResendVerification(ctx context.Context, email string) (string, error) {
	in := emailInput{Email: strings.TrimSpace(email)}
	if err := validation.Struct(in); err != nil {
		return "", newValidationError(err)
	}
	return s.repo.ResendVerification(ctx, in.Email)
}

// Expire drops the current user after an AuthError or token expiry.
func (s *Session) Expire(reason error) {
	if s.CurrentUser() == nil {
		return
	}
	s.logger.WithError(reason).Warn("session expired")
	s.transition(nil)
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// transition installs next and tells observers when the identity changed.
func (s *Session) transition(next *entity.User) {
	s.transitions.Lock()
	defer s.transitions.Unlock()

	s.mu.Lock()
	prev := s.user
	s.user = next.Clone()
	observers := make([]sessionObserver, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	s.armExpiry(next)

	if prev.Same(next) {
		return
	}
	for _, o := range observers {
		o.fn(prev.Clone(), next.Clone())
	}
}

// armExpiry schedules Expire for when the access token runs out. Backends
// that keep an opaque session cookie have no expiry to read.
func (s *Session) armExpiry(user *entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	if user == nil || s.tokens == nil {
		return
	}
	exp, ok := helpers.TokenExpiry(s.tokens.AccessToken())
	if !ok {
		return
	}
	id := user.ID
	s.expiry = time.AfterFunc(time.Until(exp), func() {
		if u := s.CurrentUser(); u != nil && u.ID == id {
			s.Expire(ErrSessionExpired)
		}
	})
}
