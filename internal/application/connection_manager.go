package application

import (
	"context"
	"errors"
	"expvar"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
)

// ChannelState is the lifecycle state of one push channel.
type ChannelState string

const (
	StateClosed     ChannelState = "closed"
	StateConnecting ChannelState = "connecting"
	StateOpen       ChannelState = "open"
	StateFailed     ChannelState = "failed"
)

// syncStats is published at /debug/vars.
var syncStats = expvar.NewMap("sync")

const (
	statFramesApplied  = "frames_applied"
	statFramesIgnored  = "frames_ignored"
	statParseErrors    = "parse_errors"
	statReconnects     = "reconnects"
	statResyncs        = "resyncs"
	statHydrationFails = "hydration_failures"
)

// ReconnectPolicy bounds the exponential backoff used to (re)dial a channel.
type ReconnectPolicy struct {
	Initial     time.Duration
	MaxInterval time.Duration
	MaxTries    uint
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.Initial <= 0 {
		p.Initial = 500 * time.Millisecond
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 30 * time.Second
	}
	if p.MaxTries == 0 {
		p.MaxTries = 5
	}
	return p
}

// channelHandle is one live subscription. Once closed, nothing it reads is
// dispatched.
type channelHandle struct {
	ch     entity.Channel
	userID int64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	connMu sync.Mutex
	conn   repository.PushConn
	closed atomic.Bool
}

// swap installs conn unless the handle was closed meanwhile.
func (h *channelHandle) swap(conn repository.PushConn) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.closed.Load() {
		return false
	}
	h.conn = conn
	return true
}

func (h *channelHandle) current() repository.PushConn {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.conn
}

func (h *channelHandle) shutdown() {
	h.connMu.Lock()
	h.closed.Store(true)
	conn := h.conn
	h.connMu.Unlock()

	h.cancel()
	if conn != nil {
		_ = conn.Close()
	}
}

// ConnectionManager owns the three push channels of the current user.
// Frames flow reader goroutine -> ParseFrame -> Store.Apply.
type ConnectionManager struct {
	dialer   repository.PushDialer
	store    *Store
	hydrator Hydrator
	logger   *logrus.Logger
	policy   ReconnectPolicy

	mu       sync.Mutex
	user     *entity.User
	lifetime context.Context
	stop     context.CancelFunc
	handles  map[entity.Channel]*channelHandle
	states   map[entity.Channel]ChannelState
	authLost func(error)

	starts sync.WaitGroup
}

func NewConnectionManager(dialer repository.PushDialer, store *Store, hydrator Hydrator, policy ReconnectPolicy, logger *logrus.Logger) *ConnectionManager {
	m := &ConnectionManager{
		dialer:   dialer,
		store:    store,
		hydrator: hydrator,
		logger:   logger,
		policy:   policy.withDefaults(),
		handles:  make(map[entity.Channel]*channelHandle),
		states:   make(map[entity.Channel]ChannelState),
	}
	for _, ch := range entity.Channels {
		m.states[ch] = StateClosed
	}
	return m
}

// Bind follows the session: a user appearing opens every channel in the
// background, the user going away closes them and clears the store. An
// AuthError seen by the manager expires the session.
func (m *ConnectionManager) Bind(s *Session) func() {
	m.mu.Lock()
	m.authLost = s.Expire
	m.mu.Unlock()

	unsubscribe := s.OnChange(func(_, next *entity.User) {
		if next == nil {
			m.Stop()
			return
		}
		m.Start(next)
	})
	if u := s.CurrentUser(); u != nil {
		m.Start(u)
	}
	return func() {
		unsubscribe()
		m.mu.Lock()
		m.authLost = nil
		m.mu.Unlock()
	}
}

// Start adopts user and opens every channel in the background. Starting
// for the user already active is a no-op; a different user tears the
// previous one down first.
func (m *ConnectionManager) Start(user *entity.User) {
	if user == nil {
		return
	}
	m.mu.Lock()
	if m.user.Same(user) && m.lifetime != nil {
		m.mu.Unlock()
		return
	}
	switching := m.user != nil
	m.mu.Unlock()

	if switching {
		m.Stop()
	}

	m.mu.Lock()
	m.user = user.Clone()
	m.lifetime, m.stop = context.WithCancel(context.Background())
	ctx := m.lifetime
	m.mu.Unlock()

	m.logger.WithField("user_id", user.ID).Info("opening push channels")
	m.starts.Add(1)
	go func() {
		defer m.starts.Done()
		if err := m.OpenAll(ctx); err != nil && ctx.Err() == nil {
			m.logger.WithError(err).Warn("not every push channel opened")
		}
	}()
}

// Stop closes every channel, forgets the user and clears the store.
func (m *ConnectionManager) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.user, m.lifetime, m.stop = nil, nil, nil
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	m.starts.Wait()
	m.CloseAll()
	m.store.Reset()
}

// OpenAll opens the three channels concurrently and returns the first
// failure; one channel failing does not stop the others.
func (m *ConnectionManager) OpenAll(ctx context.Context) error {
	var g errgroup.Group
	for _, ch := range entity.Channels {
		g.Go(func() error { return m.Open(ctx, ch) })
	}
	return g.Wait()
}

// Open connects ch and hydrates it. Events arriving while the hydration
// fetch is in flight are buffered by the store and replayed afterwards.
// Opening a channel that is already open for the current user is a no-op.
// A hydration failure leaves the channel open and is returned.
func (m *ConnectionManager) Open(ctx context.Context, ch entity.Channel) error {
	if !ch.Valid() {
		return ErrUnknownChannel
	}

	m.mu.Lock()
	user := m.user.Clone()
	if user == nil || m.lifetime == nil {
		m.mu.Unlock()
		return &AuthError{Op: "open." + string(ch), Err: ErrNotAuthenticated}
	}
	if h := m.handles[ch]; h != nil {
		if h.userID == user.ID {
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		m.Close(ch)
		m.mu.Lock()
	}
	hctx, cancel := context.WithCancel(m.lifetime)
	h := &channelHandle{ch: ch, userID: user.ID, ctx: hctx, cancel: cancel, done: make(chan struct{})}
	m.handles[ch] = h
	m.states[ch] = StateConnecting
	m.mu.Unlock()

	// the caller's ctx bounds this call only, not the channel's lifetime
	opCtx, opCancel := context.WithCancel(hctx)
	defer opCancel()
	defer context.AfterFunc(ctx, opCancel)()

	gen, err := m.store.BeginHydration(ch)
	if err != nil {
		m.abandon(h, StateFailed)
		close(h.done)
		return err
	}

	conn, err := m.dial(opCtx, ch)
	if err != nil || !h.swap(conn) {
		m.store.AbortHydration(ch, gen)
		if err == nil {
			_ = conn.Close()
			err = context.Canceled
		}
		m.abandon(h, StateFailed)
		close(h.done)
		m.logger.WithError(err).WithField("channel", ch).Warn("push channel did not open")
		return err
	}

	m.setState(h, StateOpen)
	go m.read(h)

	return m.hydrate(opCtx, h, gen, user)
}

// Close releases ch. When it returns, no frame of that channel is applied
// anymore. It must not be called from a store subscriber.
func (m *ConnectionManager) Close(ch entity.Channel) {
	m.mu.Lock()
	h := m.handles[ch]
	delete(m.handles, ch)
	m.states[ch] = StateClosed
	m.mu.Unlock()

	if h == nil {
		return
	}
	h.shutdown()
	<-h.done
	m.store.CancelHydration(ch)
}

// CloseAll releases every channel; used on logout and teardown.
func (m *ConnectionManager) CloseAll() {
	m.mu.Lock()
	handles := make([]*channelHandle, 0, len(m.handles))
	for ch, h := range m.handles {
		handles = append(handles, h)
		delete(m.handles, ch)
		m.states[ch] = StateClosed
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.shutdown()
	}
	for _, h := range handles {
		<-h.done
		m.store.CancelHydration(h.ch)
	}
}

// Status reports the state of every channel.
func (m *ConnectionManager) Status() map[entity.Channel]ChannelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[entity.Channel]ChannelState, len(m.states))
	for ch, st := range m.states {
		out[ch] = st
	}
	return out
}

// read is the reader goroutine of h. An unplanned close triggers a
// reconnect followed by a full resync of the channel.
func (m *ConnectionManager) read(h *channelHandle) {
	defer close(h.done)
	for {
		raw, err := h.current().Receive()
		if err != nil {
			if h.closed.Load() {
				return
			}
			m.logger.WithError(err).WithField("channel", h.ch).Warn("push channel closed unexpectedly")
			if !m.resync(h) {
				return
			}
			continue
		}
		m.dispatch(h, raw)
	}
}

// dispatch applies one frame. Frames of a closed handle are discarded.
func (m *ConnectionManager) dispatch(h *channelHandle, raw []byte) {
	if h.closed.Load() {
		return
	}
	ev, handled, err := ParseFrame(h.ch, raw)
	if err != nil {
		syncStats.Add(statParseErrors, 1)
		m.logger.WithError(err).WithField("channel", h.ch).Warn("dropping malformed frame")
		return
	}
	if !handled {
		syncStats.Add(statFramesIgnored, 1)
		m.logger.WithField("channel", h.ch).Debug("ignoring frame of unhandled type")
		return
	}
	if err := m.store.Apply(ev); err != nil {
		m.logger.WithError(err).WithField("channel", h.ch).Error("apply frame")
		return
	}
	syncStats.Add(statFramesApplied, 1)
}

// resync redials h and rehydrates its collection. It reports whether the
// reader should keep going.
func (m *ConnectionManager) resync(h *channelHandle) bool {
	syncStats.Add(statReconnects, 1)
	m.setState(h, StateConnecting)
	if old := h.current(); old != nil {
		_ = old.Close()
	}

	gen, err := m.store.BeginHydration(h.ch)
	if err != nil {
		return false
	}
	conn, err := m.dial(h.ctx, h.ch)
	if err != nil {
		m.store.AbortHydration(h.ch, gen)
		if h.closed.Load() {
			return false
		}
		m.logger.WithError(err).WithField("channel", h.ch).Error("push channel reconnect gave up")
		m.abandon(h, StateFailed)
		return false
	}
	if !h.swap(conn) {
		_ = conn.Close()
		m.store.AbortHydration(h.ch, gen)
		return false
	}
	m.setState(h, StateOpen)

	m.mu.Lock()
	user := m.user.Clone()
	m.mu.Unlock()
	if err := m.hydrate(h.ctx, h, gen, user); err == nil {
		syncStats.Add(statResyncs, 1)
	}
	return true
}

// hydrate fetches the collection of h and installs it under gen. An
// AuthError expires the session.
func (m *ConnectionManager) hydrate(ctx context.Context, h *channelHandle, gen uint64, user *entity.User) error {
	items, err := m.hydrator.Hydrate(ctx, h.ch, user)
	if err == nil {
		err = m.store.Replace(h.ch, gen, items)
		if errors.Is(err, ErrStaleHydration) {
			return nil
		}
	}
	if err == nil {
		return nil
	}

	m.store.AbortHydration(h.ch, gen)
	syncStats.Add(statHydrationFails, 1)
	if h.closed.Load() {
		return nil
	}
	m.logger.WithError(err).WithField("channel", h.ch).Error("hydration failed")
	if IsAuthError(err) {
		m.expireSession(err)
	}
	return err
}

// expireSession reports a lost session without blocking the caller, which
// may be a reader goroutine that the teardown is about to wait for.
func (m *ConnectionManager) expireSession(err error) {
	m.mu.Lock()
	fn := m.authLost
	m.mu.Unlock()
	if fn != nil {
		go fn(err)
	}
}

func (m *ConnectionManager) dial(ctx context.Context, ch entity.Channel) (repository.PushConn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.policy.Initial
	b.MaxInterval = m.policy.MaxInterval

	return backoff.Retry(ctx, func() (repository.PushConn, error) {
		conn, err := m.dialer.Dial(ctx, ch)
		if err != nil && !repository.IsNetwork(err) {
			return nil, backoff.Permanent(err)
		}
		return conn, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(m.policy.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"channel": ch,
				"retry":   next.String(),
			}).Warn("push dial failed")
		}),
	)
}

// setState records st for h's channel if h is still the registered handle.
func (m *ConnectionManager) setState(h *channelHandle, st ChannelState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handles[h.ch] == h {
		m.states[h.ch] = st
	}
}

// abandon unregisters h after a failed open or an exhausted reconnect.
func (m *ConnectionManager) abandon(h *channelHandle, st ChannelState) {
	m.mu.Lock()
	if m.handles[h.ch] == h {
		delete(m.handles, h.ch)
		m.states[h.ch] = st
	}
	m.mu.Unlock()

	h.connMu.Lock()
	h.closed.Store(true)
	h.connMu.Unlock()
	h.cancel()
}
