package push

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
)

// Dialer opens /ws/<channel> connections. The backend authenticates the
// handshake from the session cookie, so cookies are copied out of the
// REST client's jar on every dial.
type Dialer struct {
	base      *url.URL
	origin    string
	jar       http.CookieJar
	cookieURL *url.URL
}

// NewDialer returns a dialer rooted at wsBase (ws:// or wss://).
// jar and cookieURL may be nil when the backend needs no cookie.
func NewDialer(wsBase, origin string, jar http.CookieJar, cookieURL *url.URL) (*Dialer, error) {
	u, err := url.Parse(strings.TrimRight(wsBase, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("push base url %q must use ws or wss", wsBase)
	}
	if origin == "" {
		origin = "http://" + u.Host
	}
	return &Dialer{base: u, origin: origin, jar: jar, cookieURL: cookieURL}, nil
}

// URL returns the endpoint for ch.
func (d *Dialer) URL(ch entity.Channel) string {
	return d.base.JoinPath("ws", string(ch)).String()
}

func (d *Dialer) Dial(ctx context.Context, ch entity.Channel) (repository.PushConn, error) {
	op := "push.dial." + string(ch)
	cfg, err := websocket.NewConfig(d.URL(ch), d.origin)
	if err != nil {
		return nil, err
	}
	if cookie := d.cookieHeader(); cookie != "" {
		cfg.Header = http.Header{}
		cfg.Header.Set("Cookie", cookie)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, &repository.NetworkError{Op: op, Err: err}
	}
	return &Conn{ws: ws}, nil
}

func (d *Dialer) cookieHeader() string {
	if d.jar == nil || d.cookieURL == nil {
		return ""
	}
	cookies := d.jar.Cookies(d.cookieURL)
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Conn adapts a websocket connection to repository.PushConn.
type Conn struct {
	ws   *websocket.Conn
	once sync.Once
	err  error
}

func (c *Conn) Receive() ([]byte, error) {
	var msg string
	if err := websocket.Message.Receive(c.ws, &msg); err != nil {
		return nil, err
	}
	return []byte(msg), nil
}

func (c *Conn) Close() error {
	c.once.Do(func() { c.err = c.ws.Close() })
	return c.err
}

var _ repository.PushDialer = (*Dialer)(nil)
