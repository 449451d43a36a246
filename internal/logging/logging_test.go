package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestNew_Levels(t *testing.T) {
	if got := New("svc", "debug", "json").GetLevel(); got != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", got)
	}
	if got := New("svc", "nonsense", "json").GetLevel(); got != logrus.InfoLevel {
		t.Errorf("level = %v, want info fallback", got)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "alice")

	if GetTraceID(ctx) != "trace-1" {
		t.Errorf("GetTraceID = %q", GetTraceID(ctx))
	}
	if GetUserID(ctx) != "alice" {
		t.Errorf("GetUserID = %q", GetUserID(ctx))
	}
	if GetTraceID(context.Background()) != "" {
		t.Error("empty context should have no trace id")
	}
}

func TestLogRequest_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := New("casedb", "info", "json")
	l.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "trace-2")
	l.LogRequest(ctx, http.MethodGet, "/case_info", http.StatusNotFound, 15*time.Millisecond)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "casedb" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["trace_id"] != "trace-2" {
		t.Errorf("trace_id = %v", entry["trace_id"])
	}
	if entry["level"] != "warning" {
		t.Errorf("level = %v, want warning for 4xx", entry["level"])
	}
	if entry["status"] != float64(404) {
		t.Errorf("status = %v", entry["status"])
	}
}

func TestNewTraceID_Unique(t *testing.T) {
	if NewTraceID() == NewTraceID() {
		t.Error("trace ids should differ")
	}
}
