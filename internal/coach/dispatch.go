package coach

import (
	"context"
	"mime"
	"net/http"

	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/httputil"
)

const maxFormMemory = 8 << 20

type requestKey struct{}

// RequestFrom returns the HTTP request being dispatched, for handlers that
// need cookies or headers. It returns nil outside a dispatch.
func RequestFrom(ctx context.Context) *http.Request {
	r, _ := ctx.Value(requestKey{}).(*http.Request)
	return r
}

// dispatch adapts an endpoint to an http.HandlerFunc: it pulls every
// declared parameter from the request's form and query values, calls the
// handler and renders its result.
func (m *Microservice) dispatch(ep Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := parseForm(r); err != nil {
			httputil.WriteServiceError(w, r, errors.InvalidInput("body", "malformed form data"))
			return
		}

		args := make(Args, len(ep.Params))
		for _, name := range ep.Params {
			values, ok := r.Form[name]
			if !ok || len(values) == 0 {
				httputil.WriteServiceError(w, r, errors.MissingParameter(name))
				return
			}
			args[name] = values[0]
		}

		ctx := context.WithValue(r.Context(), requestKey{}, r)
		result, err := ep.Handler(ctx, args)
		if err != nil {
			m.logHandlerError(ctx, ep, err)
			httputil.WriteServiceError(w, r, err)
			return
		}
		render(w, result)
	}
}

func parseForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}

func render(w http.ResponseWriter, result any) {
	switch v := result.(type) {
	case nil:
		httputil.WriteText(w, http.StatusOK, "")
	case string:
		httputil.WriteText(w, http.StatusOK, v)
	case HTML:
		httputil.WriteHTML(w, http.StatusOK, string(v))
	case *Response:
		v.write(w)
	case []byte:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(v)
	default:
		httputil.WriteJSON(w, http.StatusOK, v)
	}
}

func (m *Microservice) logHandlerError(ctx context.Context, ep Endpoint, err error) {
	entry := m.logger.WithContext(ctx).WithError(err).WithField("endpoint", ep.Name)
	if errors.HTTPStatus(err) >= http.StatusInternalServerError {
		entry.Error("endpoint failed")
		return
	}
	entry.Debug("endpoint rejected request")
}
