package application

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
	"github.com/oksasatya/realtime-task-client/pkg/helpers"
)

func testLogger() *logrus.Logger { return helpers.DiscardLogger() }

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func proj(id int64, name string) entity.Project {
	return entity.Project{ID: id, Name: name}
}

func task(id int64, title string, status entity.TaskStatus) entity.Task {
	return entity.Task{ID: id, Title: title, Status: status}
}

func note(id int64, msg string, read bool) entity.Notification {
	return entity.Notification{ID: id, UserID: 1, Message: msg, IsRead: read}
}

// fakeConn is a push connection fed by the test.
type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
	drop   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 32), closed: make(chan struct{})}
}

func (c *fakeConn) Receive() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, io.EOF
	default:
	}
	select {
	case f, ok := <-c.frames:
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		return f, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(frame string) { c.frames <- []byte(frame) }

// hangUp simulates the server dropping the connection.
func (c *fakeConn) hangUp() { c.drop.Do(func() { close(c.frames) }) }

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out fakeConns and records them per channel.
type fakeDialer struct {
	mu       sync.Mutex
	conns    map[entity.Channel][]*fakeConn
	failures map[entity.Channel]int // -1 fails forever
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: map[entity.Channel][]*fakeConn{}, failures: map[entity.Channel]int{}}
}

func (d *fakeDialer) Dial(ctx context.Context, ch entity.Channel) (repository.PushConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := d.failures[ch]; n != 0 {
		if n > 0 {
			d.failures[ch] = n - 1
		}
		return nil, &repository.NetworkError{Op: "dial", Err: errors.New("connection refused")}
	}
	c := newFakeConn()
	d.conns[ch] = append(d.conns[ch], c)
	return c, nil
}

func (d *fakeDialer) failNext(ch entity.Channel, n int) {
	d.mu.Lock()
	d.failures[ch] = n
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount(ch entity.Channel) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns[ch])
}

// conn waits for the i-th successful dial of ch.
func (d *fakeDialer) conn(t *testing.T, ch entity.Channel, i int) *fakeConn {
	t.Helper()
	eventually(t, "dial of "+string(ch), func() bool { return d.dialCount(ch) > i })
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[ch][i]
}

// fakeHydrator serves canned collections; a gate holds a fetch until the
// test releases it.
type fakeHydrator struct {
	mu    sync.Mutex
	items map[entity.Channel][]entity.Entity
	errs  map[entity.Channel]error
	gates map[entity.Channel]chan struct{}
	calls map[entity.Channel]int
}

func newFakeHydrator() *fakeHydrator {
	return &fakeHydrator{
		items: map[entity.Channel][]entity.Entity{},
		errs:  map[entity.Channel]error{},
		gates: map[entity.Channel]chan struct{}{},
		calls: map[entity.Channel]int{},
	}
}

func (h *fakeHydrator) Hydrate(ctx context.Context, ch entity.Channel, _ *entity.User) ([]entity.Entity, error) {
	h.mu.Lock()
	h.calls[ch]++
	gate := h.gates[ch]
	h.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.items[ch]), h.errs[ch]
}

func (h *fakeHydrator) set(ch entity.Channel, items ...entity.Entity) {
	h.mu.Lock()
	h.items[ch] = items
	h.mu.Unlock()
}

func (h *fakeHydrator) fail(ch entity.Channel, err error) {
	h.mu.Lock()
	h.errs[ch] = err
	h.mu.Unlock()
}

func (h *fakeHydrator) hold(ch entity.Channel) chan struct{} {
	gate := make(chan struct{})
	h.mu.Lock()
	h.gates[ch] = gate
	h.mu.Unlock()
	return gate
}

func (h *fakeHydrator) callCount(ch entity.Channel) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[ch]
}

// fakeSessionRepo is an in-memory backend for the session endpoints.
type fakeSessionRepo struct {
	mu           sync.Mutex
	me           *entity.User
	meErr        error
	loginUser    *entity.User
	loginErr     error
	logoutErr    error
	registerErr  error
	calls        []string
	lastLogin    repository.LoginInput
	lastRegister repository.RegisterInput
}

func (r *fakeSessionRepo) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *fakeSessionRepo) callLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func (r *fakeSessionRepo) Me(context.Context) (*entity.User, error) {
	r.record("me")
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meErr != nil {
		return nil, r.meErr
	}
	return r.me.Clone(), nil
}

func (r *fakeSessionRepo) Login(_ context.Context, in repository.LoginInput) (*entity.User, error) {
	r.record("login")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLogin = in
	if r.loginErr != nil {
		return nil, r.loginErr
	}
	return r.loginUser.Clone(), nil
}

func (r *fakeSessionRepo) Logout(context.Context) error {
	r.record("logout")
	return r.logoutErr
}

func (r *fakeSessionRepo) Register(_ context.Context, in repository.RegisterInput) (string, error) {
	r.record("register")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRegister = in
	if r.registerErr != nil {
		return "", r.registerErr
	}
	return "User registered successfully", nil
}

func (r *fakeSessionRepo) VerifyEmail(_ context.Context, token string) (string, error) {
	r.record("verify:" + token)
	return "Email verified successfully", nil
}

func (r *fakeSessionRepo) ResendVerification(_ context.Context, email string) (string, error) {
	r.record("resend:" + email)
	return "Verification email sent", nil
}

// fakeNotificationRepo records mark-as-read calls.
type fakeNotificationRepo struct {
	mu     sync.Mutex
	err    error
	during func()
	calls  []markCall
}

type markCall struct {
	UserID int64
	IDs    []int64
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, userID int64, ids []int64) error {
	r.mu.Lock()
	r.calls = append(r.calls, markCall{UserID: userID, IDs: slices.Clone(ids)})
	during, err := r.during, r.err
	r.mu.Unlock()
	if during != nil {
		during()
	}
	return err
}

// staticIdentity is a fixed session for aggregator tests.
type staticIdentity struct {
	mu      sync.Mutex
	user    *entity.User
	expired []error
}

func (s *staticIdentity) CurrentUser() *entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Clone()
}

func (s *staticIdentity) Expire(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.expired = append(s.expired, reason)
}
