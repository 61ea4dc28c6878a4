package push

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
	"github.com/oksasatya/realtime-task-client/internal/domain/repository"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestNewDialer_RejectsHTTPScheme(t *testing.T) {
	if _, err := NewDialer("http://localhost:8080", "", nil, nil); err == nil {
		t.Fatal("expected error for http scheme")
	}
}

func TestDialer_URL(t *testing.T) {
	d, err := NewDialer("ws://localhost:8080/", "", nil, nil)
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}
	if got := d.URL(entity.ChannelTasks); got != "ws://localhost:8080/ws/tasks" {
		t.Fatalf("URL = %q", got)
	}
}

func TestDialer_ForwardsCookieAndReceivesFrames(t *testing.T) {
	gotCookie := make(chan string, 1)
	mux := http.NewServeMux()
	mux.Handle("/ws/projects", websocket.Handler(func(conn *websocket.Conn) {
		gotCookie <- conn.Request().Header.Get("Cookie")
		_ = websocket.Message.Send(conn, `{"type":"project_created","data":{"id":1,"name":"P1"}}`)
		_ = websocket.Message.Send(conn, `{"type":"project_deleted","data":{"id":1}}`)
		// hold the connection until the client closes it
		var discard string
		_ = websocket.Message.Receive(conn, &discard)
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	apiURL, _ := url.Parse(srv.URL)
	jar, _ := cookiejar.New(nil)
	jar.SetCookies(apiURL, []*http.Cookie{{Name: "auth-session", Value: "abc"}})

	d, err := NewDialer(wsURL(srv.URL), srv.URL, jar, apiURL)
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, entity.ChannelProjects)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	select {
	case c := <-gotCookie:
		if c != "auth-session=abc" {
			t.Fatalf("cookie header = %q", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handshake never reached the server")
	}

	first, err := conn.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !strings.Contains(string(first), "project_created") {
		t.Fatalf("unexpected first frame %s", first)
	}
	second, err := conn.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !strings.Contains(string(second), "project_deleted") {
		t.Fatalf("unexpected second frame %s", second)
	}
}

func TestConn_CloseUnblocksReceive(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/ws/tasks", websocket.Handler(func(conn *websocket.Conn) {
		var discard string
		_ = websocket.Message.Receive(conn, &discard)
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d, _ := NewDialer(wsURL(srv.URL), "", nil, nil)
	conn, err := d.Dial(context.Background(), entity.ChannelTasks)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := conn.Receive()
		done <- err
	}()
	_ = conn.Close()
	_ = conn.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error from Receive after Close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
}

func TestDialer_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := wsURL(srv.URL)
	srv.Close()

	d, _ := NewDialer(base, "", nil, nil)
	_, err := d.Dial(context.Background(), entity.ChannelNotifications)
	if !repository.IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
}
