package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/logging"
)

// =============================================================================
// Response Helpers
// =============================================================================

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
}

// encodeFailure is sent when a response value cannot be encoded as JSON.
const encodeFailure = `{"code":"INTERNAL_ERROR","message":"failed to encode response"}` + "\n"

// WriteJSON writes a JSON response. The value is encoded before the status
// is sent, so a value that cannot be encoded yields a 500 error body.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(encodeFailure))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// WriteText writes a plain text response.
func WriteText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

// WriteHTML writes an HTML response.
func WriteHTML(w http.ResponseWriter, status int, html string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(html))
}

// WriteErrorResponse writes a structured error body.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	resp := ErrorResponse{Code: code, Message: message, Details: details}
	if r != nil {
		resp.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, status, resp)
}

// WriteServiceError renders err through the error taxonomy. Errors outside
// the taxonomy become 500 without leaking their text.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("internal error", err)
	}
	status := se.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteErrorResponse(w, r, status, string(se.Code), se.Message, se.Details)
}

func BadRequest(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusBadRequest, string(errors.CodeInvalidInput), message, nil)
}

func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "unauthorized"
	}
	WriteErrorResponse(w, nil, http.StatusUnauthorized, string(errors.CodeUnauthorized), message, nil)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusForbidden, string(errors.CodeForbidden), message, nil)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusNotFound, string(errors.CodeNotFound), message, nil)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusInternalServerError, string(errors.CodeInternal), message, nil)
}

// ParseErrorResponse turns a peer's error reply back into a ServiceError.
// Bodies that are not structured become a ServiceError derived from status.
func ParseErrorResponse(status int, body []byte) *errors.ServiceError {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Code != "" {
		return &errors.ServiceError{
			Code:       errors.ErrorCode(resp.Code),
			Message:    resp.Message,
			HTTPStatus: status,
			Details:    resp.Details,
		}
	}
	return errors.FromStatus(status, string(body))
}
