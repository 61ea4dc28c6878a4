package validation

import (
	"encoding/json"
	"errors"
	"testing"
)

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,pwd"`
}

type registration struct {
	Password        string `json:"password" validate:"required,pwd"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type taskPayload struct {
	Status string `json:"status" validate:"required,taskstatus"`
}

func TestToDetails_UsesJSONNames(t *testing.T) {
	err := Struct(credentials{Email: "not-an-email", Password: "abc"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	details := ToDetails(err)
	if details["email"] != "must be a valid email" {
		t.Fatalf("email detail = %q", details["email"])
	}
	if details["password"] != "must be at least 6 characters long" {
		t.Fatalf("password detail = %q", details["password"])
	}
}

func TestToDetails_PasswordTooLong(t *testing.T) {
	long := "0123456789012345678901234567890123"
	details := ToDetails(Struct(credentials{Email: "a@b.co", Password: long}))
	if details["password"] != "must be at most 32 characters long" {
		t.Fatalf("password detail = %q", details["password"])
	}
}

func TestToDetails_PasswordMismatch(t *testing.T) {
	details := ToDetails(Struct(registration{Password: "secret1", ConfirmPassword: "secret2"}))
	if details["confirm_password"] != "must match password" {
		t.Fatalf("confirm_password detail = %q", details["confirm_password"])
	}
}

func TestTaskStatusAlias(t *testing.T) {
	tests := []struct {
		status string
		ok     bool
	}{
		{"pending", true},
		{"in-progress", true},
		{"done", true},
		{"archived", false},
		{"", false},
	}
	for _, tc := range tests {
		t.Run(tc.status, func(t *testing.T) {
			err := Struct(taskPayload{Status: tc.status})
			if (err == nil) != tc.ok {
				t.Fatalf("status %q: err = %v, want ok=%v", tc.status, err, tc.ok)
			}
		})
	}
}

func TestToDetails_InvalidJSON(t *testing.T) {
	var v map[string]any
	err := json.Unmarshal([]byte("{"), &v)
	var se *json.SyntaxError
	if !errors.As(err, &se) {
		t.Skip("decoder did not produce a syntax error")
	}
	if got := ToDetails(err)["payload"]; got != "invalid json" {
		t.Fatalf("payload detail = %q", got)
	}
}

func TestToDetails_Nil(t *testing.T) {
	if ToDetails(nil) != nil {
		t.Fatal("expected nil details for nil error")
	}
}
