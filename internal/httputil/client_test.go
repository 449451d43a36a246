package httputil

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/logging"
)

// =============================================================================
// ServiceClient Tests
// =============================================================================

func TestNewServiceClient(t *testing.T) {
	client := NewServiceClient(ServiceClientConfig{
		BaseURL:   "http://localhost:5000/",
		ServiceID: "interaction",
		Timeout:   10 * time.Second,
	})

	if client == nil {
		t.Fatal("NewServiceClient() returned nil")
	}
	if client.baseURL != "http://localhost:5000" {
		t.Errorf("baseURL = %s, want trailing slash trimmed", client.baseURL)
	}
	if client.httpClient.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", client.httpClient.Timeout)
	}
}

func TestNewServiceClient_Defaults(t *testing.T) {
	client := NewServiceClient(ServiceClientConfig{BaseURL: "http://localhost:5000"})

	if client.httpClient.Timeout != defaultTimeout {
		t.Errorf("default timeout = %v, want %v", client.httpClient.Timeout, defaultTimeout)
	}
}

func TestServiceClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Method = %s, want GET", r.Method)
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{BaseURL: server.URL})

	resp, err := client.Get(context.Background(), "/test")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	var body map[string]string
	if err := DecodeResponse(resp, &body); err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %s, want ok", body["status"])
	}
}

func TestServiceClient_DoForm_GetUsesQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("case_id") != "c1" {
			t.Errorf("case_id = %q, want c1", r.URL.Query().Get("case_id"))
		}
		if r.Header.Get("Content-Type") != "" {
			t.Errorf("GET should carry no content type, got %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{BaseURL: server.URL})
	resp, err := client.DoForm(context.Background(), http.MethodGet, "/case_info", url.Values{"case_id": {"c1"}})
	if err != nil {
		t.Fatalf("DoForm() error = %v", err)
	}
	resp.Body.Close()
}

func TestServiceClient_PostForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("name") != "Pump selection" {
			t.Errorf("name = %q", r.PostForm.Get("name"))
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{BaseURL: server.URL})
	resp, err := client.PostForm(context.Background(), "/create_case", url.Values{"name": {"Pump selection"}})
	if err != nil {
		t.Fatalf("PostForm() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
}

func TestServiceClient_PropagatesHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(TraceIDHeader); got != "trace-9" {
			t.Errorf("X-Trace-ID = %q, want trace-9", got)
		}
		if got := r.Header.Get(UserIDHeader); got != "user-123" {
			t.Errorf("X-User-ID = %q, want user-123", got)
		}
		if got := r.Header.Get(ServiceIDHeader); got != "interaction" {
			t.Errorf("X-Service-ID = %q, want interaction", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{BaseURL: server.URL, ServiceID: "interaction"})

	ctx := logging.WithTraceID(context.Background(), "trace-9")
	ctx = logging.WithUserID(ctx, "user-123")

	resp, err := client.Get(ctx, "/test")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
}

func TestDecodeResponse_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{BaseURL: server.URL})
	resp, err := client.Get(context.Background(), "/")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	err = DecodeResponse(resp, nil)
	if err == nil || !strings.Contains(err.Error(), "418") {
		t.Fatalf("DecodeResponse() error = %v, want status 418", err)
	}
}

func TestReadAllStrict_Limit(t *testing.T) {
	if _, err := ReadAllStrict(strings.NewReader("abcdef"), 3); err == nil {
		t.Error("ReadAllStrict() should fail past the limit")
	}
	data, err := ReadAllStrict(strings.NewReader("abc"), 3)
	if err != nil || string(data) != "abc" {
		t.Errorf("ReadAllStrict() = %q, %v", data, err)
	}
}

// =============================================================================
// Response Helper Tests
// =============================================================================

func TestWriteServiceError_RoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/case_info", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "trace-3"))

	WriteServiceError(rec, req, errors.NotFound("case", "c9"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Code = %d, want 404", rec.Code)
	}

	se := ParseErrorResponse(rec.Code, rec.Body.Bytes())
	if se.Code != errors.CodeNotFound {
		t.Errorf("Code = %s, want NOT_FOUND", se.Code)
	}
	if se.Message != `case "c9" not found` {
		t.Errorf("Message = %q", se.Message)
	}
}

func TestWriteServiceError_HidesPlainErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("password=hunter2"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Code = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Error("plain error text should not leak into the response")
	}
}

func TestParseErrorResponse_Unstructured(t *testing.T) {
	se := ParseErrorResponse(http.StatusForbidden, []byte("go away"))
	if se.Code != errors.CodeForbidden || se.Message != "go away" {
		t.Errorf("ParseErrorResponse() = %+v", se)
	}
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]any{"result": math.Inf(1)})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Code = %d, want 500", rec.Code)
	}
	se := ParseErrorResponse(rec.Code, rec.Body.Bytes())
	if se.Code != errors.CodeInternal {
		t.Errorf("Code = %s, want INTERNAL_ERROR", se.Code)
	}
}
