package coach

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/logging"
)

// newPeer serves a Microservice with a few endpoints and counts /get_api hits.
func newPeer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()

	m := newTestService(t)
	m.MustRegister(
		Endpoint{Name: "greet", Params: []string{"name"}, Handler: func(_ context.Context, args Args) (any, error) {
			return "hello " + args.Get("name"), nil
		}},
		Endpoint{Name: "sum", Methods: []string{"POST"}, Params: []string{"a", "b"}, Handler: func(_ context.Context, args Args) (any, error) {
			a, err := args.Int("a")
			if err != nil {
				return nil, err
			}
			b, err := args.Int("b")
			if err != nil {
				return nil, err
			}
			return map[string]int{"sum": a + b}, nil
		}},
		Endpoint{Name: "whoami", Handler: func(ctx context.Context, _ Args) (any, error) {
			r := RequestFrom(ctx)
			return map[string]string{
				"service": r.Header.Get("X-Service-ID"),
				"trace":   r.Header.Get("X-Trace-ID"),
			}, nil
		}},
		Endpoint{Name: "secret", Handler: func(context.Context, Args) (any, error) {
			return nil, errors.InvalidUserToken()
		}},
		Endpoint{Name: "remove", Methods: []string{"DELETE"}, Handler: echo},
	)

	var hits int32
	handler := m.Handler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/get_api" {
			atomic.AddInt32(&hits, 1)
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestProxy_CallGetAndPost(t *testing.T) {
	srv, hits := newPeer(t)
	p := NewProxy(srv.URL + "/")
	ctx := context.Background()

	text, err := p.CallText(ctx, "greet", Args{"name": "ann"})
	require.NoError(t, err)
	assert.Equal(t, "hello ann", text)

	var out struct{ Sum int }
	require.NoError(t, p.CallJSON(ctx, "sum", Args{"a": "2", "b": "3"}, &out))
	assert.Equal(t, 5, out.Sum)

	res, err := p.Call(ctx, "sum", Args{"a": "1", "b": "1"})
	require.NoError(t, err)
	assert.True(t, res.IsJSON())
	var v map[string]any
	require.NoError(t, res.Decode(&v))
	assert.Equal(t, map[string]any{"sum": float64(2)}, v)

	assert.Equal(t, int32(1), atomic.LoadInt32(hits), "API description fetched once")
}

func TestProxy_LocalValidation(t *testing.T) {
	srv, _ := newPeer(t)
	p := NewProxy(srv.URL)
	ctx := context.Background()

	_, err := p.Call(ctx, "greet", Args{})
	assert.True(t, errors.Is(err, errors.CodeMissingParameter))

	_, err = p.Call(ctx, "greet", Args{"name": "x", "extra": "y"})
	assert.True(t, errors.Is(err, errors.CodeInvalidInput))

	_, err = p.Call(ctx, "nope", nil)
	assert.True(t, errors.IsError(err, ErrUnknownEndpoint))

	_, err = p.Call(ctx, "remove", nil)
	assert.Error(t, err, "DELETE-only endpoint cannot be called")
}

func TestProxy_ReconstructsRemoteError(t *testing.T) {
	srv, _ := newPeer(t)
	p := NewProxy(srv.URL)

	_, err := p.Call(context.Background(), "secret", nil)
	require.Error(t, err)

	se := errors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, errors.CodeInvalidToken, se.Code)
	assert.Equal(t, errors.InvalidUserTokenMessage, se.Message)
	assert.Equal(t, http.StatusUnauthorized, se.HTTPStatus)
}

func TestProxy_FailedFetchNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	peer := newTestService(t)
	peer.MustRegister(Endpoint{Name: "ping", Handler: func(context.Context, Args) (any, error) { return "pong", nil }})
	handler := peer.Handler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	p := NewProxy(srv.URL)
	_, err := p.API(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeUnavailable))

	fail.Store(false)
	text, err := p.CallText(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", text)
}

func TestProxy_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewProxy(url).API(context.Background())
	assert.True(t, errors.Is(err, errors.CodeUnavailable))
}

func TestProxy_PropagatesHeaders(t *testing.T) {
	srv, _ := newPeer(t)
	p := NewProxy(srv.URL, WithServiceID("CaseDatabase"))

	ctx := logging.WithTraceID(context.Background(), "trace-123")
	var out map[string]string
	require.NoError(t, p.CallJSON(ctx, "whoami", nil, &out))
	assert.Equal(t, "CaseDatabase", out["service"])
	assert.Equal(t, "trace-123", out["trace"])
}

func TestProxy_Refresh(t *testing.T) {
	srv, hits := newPeer(t)
	p := NewProxy(srv.URL)
	ctx := context.Background()

	_, err := p.API(ctx)
	require.NoError(t, err)
	p.Refresh()
	_, err = p.API(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestPool_SharesProxies(t *testing.T) {
	pool := NewPool()
	a := pool.Get("http://localhost:5000")
	b := pool.Get("http://localhost:5000/")
	c := pool.Get("http://localhost:5001")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, pool.Len())

	m := newTestService(t)
	assert.Same(t, m.Proxy("http://peer"), m.Proxy("http://peer/"))
}
