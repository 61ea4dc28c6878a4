package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
	"github.com/oksasatya/realtime-task-client/pkg/helpers"
)

// Client is a thin JSON client for the task backend. The session travels
// as a cookie, so every repository built on one Client shares its jar.
type Client struct {
	base   *url.URL
	http   *http.Client
	jar    http.CookieJar
	logger *logrus.Logger
}

// NewClient builds a client rooted at baseURL with its own cookie jar.
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		base:   u,
		http:   &http.Client{Timeout: timeout, Jar: jar},
		jar:    jar,
		logger: logger,
	}, nil
}

// Jar exposes the session cookie jar, e.g. for the push channel handshake.
func (c *Client) Jar() http.CookieJar { return c.jar }

// BaseURL returns the API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Cookie returns the value of the named cookie the backend set, or "".
func (c *Client) Cookie(name string) string {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// AccessToken returns the access_token cookie, if the backend issues one.
func (c *Client) AccessToken() string { return c.Cookie(helpers.AccessTokenCookie) }

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return err
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &repository.NetworkError{Op: op, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"op":         op,
			"status":     res.StatusCode,
			"request_id": reqID,
		}).Debug("api call")
	}

	if res.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, repository.ErrUnauthorized)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&eb)
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		return &repository.StatusError{Op: op, Status: res.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
