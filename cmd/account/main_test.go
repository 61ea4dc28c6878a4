package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oksasatya/realtime-task-client/config"
	"github.com/oksasatya/realtime-task-client/internal/application"
	"github.com/oksasatya/realtime-task-client/internal/infrastructure/restapi"
	"github.com/oksasatya/realtime-task-client/pkg/helpers"
)

func newSession(t *testing.T) (*application.Session, *[]string) {
	t.Helper()
	var hits []string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, _ *http.Request) {
		hits = append(hits, "register")
		_, _ = io.WriteString(w, `{"message":"Registration successful. Please check your email."}`)
	})
	mux.HandleFunc("/auth/verify-email", func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, "verify:"+r.URL.Query().Get("token"))
		_, _ = io.WriteString(w, `{"message":"Email verified"}`)
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		hits = append(hits, "login")
		_, _ = io.WriteString(w, `{"user":{"user_id":5,"username":"kai","email":"kai@example.com","is_verified":true}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := helpers.DiscardLogger()
	api, err := restapi.NewClient(srv.URL, time.Second, logger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return application.NewSession(restapi.NewSessionRepository(api), api, logger), &hits
}

func TestRun_Register(t *testing.T) {
	s, hits := newSession(t)
	msg, err := run(context.Background(), s, &config.Config{}, "register",
		[]string{"-username", "kai", "-email", "kai@example.com", "-password", "secret1"})
	if err != nil || msg == "" || len(*hits) != 1 {
		t.Fatalf("msg=%q err=%v hits=%v", msg, err, *hits)
	}
}

func TestRun_RegisterValidatesLocally(t *testing.T) {
	s, hits := newSession(t)
	_, err := run(context.Background(), s, &config.Config{}, "register",
		[]string{"-username", "k", "-email", "nope", "-password", "123"})
	var ve *application.ValidationError
	if !errors.As(err, &ve) || len(*hits) != 0 {
		t.Fatalf("err=%v hits=%v", err, *hits)
	}
	for _, f := range []string{"username", "email", "password"} {
		if ve.Fields[f] == "" {
			t.Fatalf("missing %s in %v", f, ve.Fields)
		}
	}
}

func TestRun_VerifyAndWhoami(t *testing.T) {
	s, hits := newSession(t)
	if _, err := run(context.Background(), s, &config.Config{}, "verify", []string{"-token", "abc"}); err != nil {
		t.Fatalf("verify: %v", err)
	}
	cfg := &config.Config{SyncEmail: "kai@example.com", SyncPassword: "secret1"}
	msg, err := run(context.Background(), s, cfg, "whoami", nil)
	if err != nil || msg != "id=5 username=kai email=kai@example.com verified=true" {
		t.Fatalf("whoami: %q %v", msg, err)
	}
	if (*hits)[0] != "verify:abc" {
		t.Fatalf("hits = %v", *hits)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	s, _ := newSession(t)
	if _, err := run(context.Background(), s, &config.Config{}, "delete", nil); err == nil {
		t.Fatal("expected error")
	}
}
