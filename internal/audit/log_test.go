package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/obs"
)

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	prev := obs.SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer obs.SetLogger(prev)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithClaims(ctx, auth.Claims{SubjectID: "user-42", Roles: auth.NewSet("Admin")})

	if err := LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "audit.test" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}

func TestLogEventAnonymous(t *testing.T) {
	var buf bytes.Buffer
	prev := obs.SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer obs.SetLogger(prev)

	if err := LogEvent(context.Background(), "auth.login_failed", nil); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if _, ok := entry["user_id"]; ok {
		t.Fatalf("unexpected user id on anonymous event: %v", entry)
	}
	if _, ok := entry["request_id"]; ok {
		t.Fatalf("unexpected request id: %v", entry)
	}
}
