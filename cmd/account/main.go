package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/oksasatya/realtime-task-client/config"
	"github.com/oksasatya/realtime-task-client/internal/application"
	"github.com/oksasatya/realtime-task-client/internal/infrastructure/restapi"
	"github.com/oksasatya/realtime-task-client/pkg/helpers"
	"github.com/oksasatya/realtime-task-client/pkg/validation"
)

const usage = `usage: account <command> [flags]

commands:
  register -username NAME -email EMAIL -password PW
  verify   -token TOKEN
  resend   -email EMAIL
  whoami   (logs in with SYNC_EMAIL/SYNC_PASSWORD)`

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	validation.Init()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	logger := helpers.NewLogger(cfg.AppName+"-account", cfg.Env, cfg.LogLevel)
	api, err := restapi.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, logger)
	if err != nil {
		log.Fatalf("invalid API_BASE_URL: %v", err)
	}
	session := application.NewSession(restapi.NewSessionRepository(api), api, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	defer cancel()

	msg, err := run(ctx, session, cfg, os.Args[1], os.Args[2:])
	if err != nil {
		var ve *application.ValidationError
		if errors.As(err, &ve) {
			for field, reason := range ve.Fields {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, reason)
			}
		}
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
	fmt.Println(msg)
}

func run(ctx context.Context, s *application.Session, cfg *config.Config, cmd string, args []string) (string, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	switch cmd {
	case "register":
		var r application.Registration
		fs.StringVar(&r.Username, "username", "", "username (3-32 chars)")
		fs.StringVar(&r.Email, "email", "", "email address")
		fs.StringVar(&r.Password, "password", "", "password (6-32 chars)")
		if err := fs.Parse(args); err != nil {
			return "", err
		}
		r.ConfirmPassword = r.Password
		return s.Register(ctx, r)

	case "verify":
		token := fs.String("token", "", "verification token from the email")
		if err := fs.Parse(args); err != nil {
			return "", err
		}
		return s.VerifyEmail(ctx, *token)

	case "resend":
		email := fs.String("email", "", "email address")
		if err := fs.Parse(args); err != nil {
			return "", err
		}
		return s.ResendVerification(ctx, *email)

	case "whoami":
		if err := s.Login(ctx, application.Credentials{Email: cfg.SyncEmail, Password: cfg.SyncPassword}); err != nil {
			return "", err
		}
		u := s.CurrentUser()
		return fmt.Sprintf("id=%d username=%s email=%s verified=%t", u.ID, u.Username, u.Email, u.Verified), nil
	}
	return "", fmt.Errorf("unknown command %q\n%s", cmd, usage)
}
