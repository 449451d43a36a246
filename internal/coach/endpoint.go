// Package coach is the microservice framework shared by every COACH service.
//
// A service declares its operations as Endpoints. Registering them mounts
// each one on the service router and records it in the service's API
// description, served at /get_api. A Proxy fetches that description from a
// peer and turns named calls into HTTP requests, so services never hand-code
// each other's routes.
package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/coach-dss/coach/internal/errors"
)

// HandlerFunc implements an endpoint. args holds exactly the endpoint's
// declared parameters.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Endpoint describes one remotely callable operation.
type Endpoint struct {
	// Name is the identifier proxies call. Defaults to Path without the
	// leading slash.
	Name string
	// Path is the URL path. Defaults to "/" + Name.
	Path string
	// Methods lists accepted HTTP methods, most preferred first.
	// Defaults to GET.
	Methods []string
	// Params names the form/query values passed to Handler.
	Params  []string
	Handler HandlerFunc
}

// EndpointInfo is the wire description of an endpoint.
type EndpointInfo struct {
	Path    string   `json:"path"`
	Methods []string `json:"methods"`
	Params  []string `json:"params"`
}

// API maps endpoint names to their descriptions.
type API map[string]EndpointInfo

// Info returns the endpoint's wire description.
func (ep Endpoint) Info() EndpointInfo {
	return EndpointInfo{
		Path:    ep.Path,
		Methods: append([]string(nil), ep.Methods...),
		Params:  append([]string(nil), ep.Params...),
	}
}

func (ep Endpoint) normalize() (Endpoint, error) {
	if ep.Handler == nil {
		return ep, fmt.Errorf("endpoint %q: handler is required", ep.Name+ep.Path)
	}
	if ep.Path == "" {
		if ep.Name == "" {
			return ep, fmt.Errorf("endpoint: name or path is required")
		}
		ep.Path = "/" + ep.Name
	}
	if !strings.HasPrefix(ep.Path, "/") {
		return ep, fmt.Errorf("endpoint %q: path must start with /", ep.Path)
	}
	if ep.Name == "" {
		ep.Name = strings.ReplaceAll(strings.Trim(ep.Path, "/"), "/", "_")
		if ep.Name == "" {
			ep.Name = "index"
		}
	}

	methods := make([]string, 0, len(ep.Methods))
	seen := make(map[string]bool)
	for _, m := range ep.Methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		methods = append(methods, m)
	}
	if len(methods) == 0 {
		methods = []string{http.MethodGet}
	}
	ep.Methods = methods

	params := make([]string, 0, len(ep.Params))
	seenParam := make(map[string]bool)
	for _, p := range ep.Params {
		if p == "" {
			return ep, fmt.Errorf("endpoint %q: empty parameter name", ep.Name)
		}
		if seenParam[p] {
			return ep, fmt.Errorf("endpoint %q: duplicate parameter %q", ep.Name, p)
		}
		seenParam[p] = true
		params = append(params, p)
	}
	ep.Params = params
	return ep, nil
}

// =============================================================================
// Arguments
// =============================================================================

// Args carries endpoint arguments by parameter name.
type Args map[string]string

// Get returns the named argument, or "".
func (a Args) Get(name string) string {
	return a[name]
}

// Int parses the named argument as an integer.
func (a Args) Int(name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(a[name]))
	if err != nil {
		return 0, errors.InvalidInput(name, "must be an integer")
	}
	return n, nil
}

// Bool parses the named argument as a boolean.
func (a Args) Bool(name string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(a[name]))
	if err != nil {
		return false, errors.InvalidInput(name, "must be a boolean")
	}
	return b, nil
}

// JSON decodes the named argument as JSON into v.
func (a Args) JSON(name string, v any) error {
	if err := json.Unmarshal([]byte(a[name]), v); err != nil {
		return errors.InvalidInput(name, "must be valid JSON")
	}
	return nil
}

// Require returns the named argument after checking it is not blank.
func (a Args) Require(name string) (string, error) {
	v := strings.TrimSpace(a[name])
	if v == "" {
		return "", errors.InvalidInput(name, "must not be empty")
	}
	return v, nil
}

// =============================================================================
// Results
// =============================================================================

// HTML is a handler result rendered as text/html.
type HTML string

// Response is a handler result with full control over the reply.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	Location    string
	Cookies     []*http.Cookie
}

// Redirect builds a 303 redirect, optionally setting cookies.
func Redirect(location string, cookies ...*http.Cookie) *Response {
	return &Response{Status: http.StatusSeeOther, Location: location, Cookies: cookies}
}

func (r *Response) write(w http.ResponseWriter) {
	for _, c := range r.Cookies {
		http.SetCookie(w, c)
	}
	if r.Location != "" {
		w.Header().Set("Location", r.Location)
	}
	if r.ContentType != "" {
		w.Header().Set("Content-Type", r.ContentType)
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(r.Body) > 0 {
		_, _ = w.Write(r.Body)
	}
}
