package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/httputil"
	"github.com/coach-dss/coach/internal/metrics"
)

const maxResultBytes = 8 << 20

// ErrUnknownEndpoint is returned when a peer does not expose the called name.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// supportedMethods are the HTTP methods a proxy can encode arguments for.
var supportedMethods = map[string]bool{
	http.MethodGet:  true,
	http.MethodPost: true,
}

// ProxyOption configures a Proxy.
type ProxyOption func(*httputil.ServiceClientConfig)

// WithServiceID sets the X-Service-ID sent with every call.
func WithServiceID(id string) ProxyOption {
	return func(c *httputil.ServiceClientConfig) { c.ServiceID = id }
}

// WithTimeout bounds each request, including the API fetch.
func WithTimeout(d time.Duration) ProxyOption {
	return func(c *httputil.ServiceClientConfig) { c.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ProxyOption {
	return func(c *httputil.ServiceClientConfig) { c.HTTPClient = hc }
}

// Proxy is a local stand-in for a remote microservice. It learns the remote
// API from /get_api on first use and turns named calls into HTTP requests.
type Proxy struct {
	client *httputil.ServiceClient

	mu  sync.Mutex
	api API
}

// NewProxy creates a proxy for the service at baseURL. It performs no I/O.
func NewProxy(baseURL string, opts ...ProxyOption) *Proxy {
	cfg := httputil.ServiceClientConfig{BaseURL: baseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Proxy{client: httputil.NewServiceClient(cfg)}
}

// URL returns the remote service's base URL.
func (p *Proxy) URL() string {
	return p.client.BaseURL()
}

// API returns the remote API description, fetching it on first use. A
// failed fetch is not cached.
func (p *Proxy) API(ctx context.Context) (API, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.api != nil {
		return p.api, nil
	}

	start := time.Now()
	resp, err := p.client.Get(ctx, "/get_api")
	if err != nil {
		metrics.RecordProxyCall(p.URL(), "get_api", "unavailable", time.Since(start))
		return nil, errors.Unavailable(p.URL(), err)
	}
	result, err := readResult(resp)
	if err != nil {
		metrics.RecordProxyCall(p.URL(), "get_api", "unavailable", time.Since(start))
		return nil, errors.Unavailable(p.URL(), err)
	}
	if result.StatusCode >= 300 {
		metrics.RecordProxyCall(p.URL(), "get_api", "error", time.Since(start))
		return nil, httputil.ParseErrorResponse(result.StatusCode, result.Body)
	}

	var api API
	if err := json.Unmarshal(result.Body, &api); err != nil || api == nil {
		metrics.RecordProxyCall(p.URL(), "get_api", "error", time.Since(start))
		return nil, errors.Unavailable(p.URL(), fmt.Errorf("malformed API description: %v", err))
	}
	metrics.RecordProxyCall(p.URL(), "get_api", "ok", time.Since(start))

	p.api = api
	return api, nil
}

// Refresh drops the cached API description.
func (p *Proxy) Refresh() {
	p.mu.Lock()
	p.api = nil
	p.mu.Unlock()
}

// Endpoint returns the description of one remote endpoint.
func (p *Proxy) Endpoint(ctx context.Context, name string) (EndpointInfo, error) {
	api, err := p.API(ctx)
	if err != nil {
		return EndpointInfo{}, err
	}
	info, ok := api[name]
	if !ok {
		return EndpointInfo{}, fmt.Errorf("%w: %s at %s", ErrUnknownEndpoint, name, p.URL())
	}
	return info, nil
}

// Call invokes the named remote endpoint with args. Every declared parameter
// must be present and no other argument is accepted. A non-2xx reply is
// returned as the remote *errors.ServiceError.
func (p *Proxy) Call(ctx context.Context, name string, args Args) (*Result, error) {
	info, err := p.Endpoint(ctx, name)
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	declared := make(map[string]bool, len(info.Params))
	for _, param := range info.Params {
		declared[param] = true
		v, ok := args[param]
		if !ok {
			return nil, errors.MissingParameter(param)
		}
		values.Set(param, v)
	}
	for arg := range args {
		if !declared[arg] {
			return nil, errors.InvalidInput(arg, fmt.Sprintf("not a parameter of %s", name))
		}
	}

	method := ""
	for _, m := range info.Methods {
		if supportedMethods[m] {
			method = m
			break
		}
	}
	if method == "" {
		return nil, fmt.Errorf("endpoint %s: no supported method in %v", name, info.Methods)
	}

	start := time.Now()
	resp, err := p.client.DoForm(ctx, method, info.Path, values)
	if err != nil {
		metrics.RecordProxyCall(p.URL(), name, "unavailable", time.Since(start))
		return nil, errors.Unavailable(p.URL(), err)
	}
	result, err := readResult(resp)
	if err != nil {
		metrics.RecordProxyCall(p.URL(), name, "unavailable", time.Since(start))
		return nil, errors.Unavailable(p.URL(), err)
	}
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		metrics.RecordProxyCall(p.URL(), name, "error", time.Since(start))
		return nil, httputil.ParseErrorResponse(result.StatusCode, result.Body)
	}
	metrics.RecordProxyCall(p.URL(), name, "ok", time.Since(start))
	return result, nil
}

// CallText invokes name and returns the reply body as text.
func (p *Proxy) CallText(ctx context.Context, name string, args Args) (string, error) {
	result, err := p.Call(ctx, name, args)
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

// CallJSON invokes name and decodes the JSON reply into v.
func (p *Proxy) CallJSON(ctx context.Context, name string, args Args, v any) error {
	result, err := p.Call(ctx, name, args)
	if err != nil {
		return err
	}
	return result.Decode(v)
}

// =============================================================================
// Result
// =============================================================================

// Result is a successful remote reply.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func readResult(resp *http.Response) (*Result, error) {
	defer resp.Body.Close()
	body, err := httputil.ReadAllStrict(resp.Body, maxResultBytes)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Result{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// IsJSON reports whether the reply is declared as JSON.
func (r *Result) IsJSON() bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// Text returns the reply body as a string.
func (r *Result) Text() string {
	return string(r.Body)
}

// Decode unmarshals a JSON reply into v.
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
