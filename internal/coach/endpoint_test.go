package coach

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/httputil"
	"github.com/coach-dss/coach/internal/logging"
)

func newTestService(t *testing.T) *Microservice {
	t.Helper()
	return New(Config{
		Name:    "TestService",
		Lineage: []string{"TestService"},
		Logger:  logging.NewDiscard("TestService"),
	})
}

func echo(ctx context.Context, args Args) (any, error) {
	return args.Get("value"), nil
}

func TestEndpointNormalize(t *testing.T) {
	ep, err := Endpoint{Name: "get_case", Methods: []string{"post", "get", "POST"}, Handler: echo}.normalize()
	require.NoError(t, err)
	assert.Equal(t, "/get_case", ep.Path)
	assert.Equal(t, []string{"POST", "GET"}, ep.Methods)

	ep, err = Endpoint{Path: "/cases/list", Handler: echo}.normalize()
	require.NoError(t, err)
	assert.Equal(t, "cases_list", ep.Name)
	assert.Equal(t, []string{"GET"}, ep.Methods)

	ep, err = Endpoint{Path: "/", Handler: echo}.normalize()
	require.NoError(t, err)
	assert.Equal(t, "index", ep.Name)

	_, err = Endpoint{Name: "x"}.normalize()
	assert.Error(t, err, "missing handler")

	_, err = Endpoint{Handler: echo}.normalize()
	assert.Error(t, err, "missing name and path")

	_, err = Endpoint{Path: "relative", Handler: echo}.normalize()
	assert.Error(t, err)

	_, err = Endpoint{Name: "x", Params: []string{"a", "a"}, Handler: echo}.normalize()
	assert.Error(t, err)
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	m := newTestService(t)

	require.NoError(t, m.Register(Endpoint{Name: "one", Handler: echo}))
	assert.Error(t, m.Register(Endpoint{Name: "one", Path: "/other", Handler: echo}))
	assert.Error(t, m.Register(Endpoint{Name: "two", Path: "/one", Handler: echo}))
	assert.Error(t, m.Register(Endpoint{Name: "get_api", Path: "/api2", Handler: echo}))
}

func TestAPI_ListsEndpoints(t *testing.T) {
	m := newTestService(t)
	require.NoError(t, m.Register(Endpoint{
		Name:    "add",
		Methods: []string{"POST"},
		Params:  []string{"a", "b"},
		Handler: echo,
	}))

	api := m.API()
	assert.Equal(t, EndpointInfo{Path: "/add", Methods: []string{"POST"}, Params: []string{"a", "b"}}, api["add"])
	assert.Contains(t, api, "get_api")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/get_api", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var wire API
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &wire))
	assert.Equal(t, api, wire)
}

func TestDispatch_MissingParameter(t *testing.T) {
	m := newTestService(t)
	m.MustRegister(Endpoint{Name: "echo", Params: []string{"value"}, Handler: echo})

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/echo", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, string(errors.CodeMissingParameter), resp.Code)
	assert.Equal(t, "value", resp.Details["parameter"])
}

func TestDispatch_EmptyValuePassesThrough(t *testing.T) {
	m := newTestService(t)
	var got Args
	m.MustRegister(Endpoint{Name: "echo", Params: []string{"value"}, Handler: func(_ context.Context, args Args) (any, error) {
		got = args
		return nil, nil
	}})

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/echo?value=", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, Args{"value": ""}, got)
	assert.Empty(t, rr.Body.String())
}

func TestDispatch_FormBodyAndMethods(t *testing.T) {
	m := newTestService(t)
	m.MustRegister(Endpoint{Name: "echo", Methods: []string{"POST"}, Params: []string{"value"}, Handler: echo})

	form := url.Values{"value": {"hello"}}
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello", rr.Body.String())
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain"))

	rr = httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/echo?value=x", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestDispatch_RendersResultTypes(t *testing.T) {
	m := newTestService(t)
	m.MustRegister(
		Endpoint{Name: "json", Handler: func(context.Context, Args) (any, error) {
			return map[string]int{"n": 1}, nil
		}},
		Endpoint{Name: "html", Handler: func(context.Context, Args) (any, error) {
			return HTML("<p>hi</p>"), nil
		}},
		Endpoint{Name: "redirect", Handler: func(context.Context, Args) (any, error) {
			return Redirect("/main", &http.Cookie{Name: "token", Value: "abc"}), nil
		}},
		Endpoint{Name: "fail", Handler: func(context.Context, Args) (any, error) {
			return nil, errors.Forbidden("not a stakeholder")
		}},
	)

	cases := []struct {
		path        string
		status      int
		contentType string
	}{
		{"/json", http.StatusOK, "application/json"},
		{"/html", http.StatusOK, "text/html"},
		{"/redirect", http.StatusSeeOther, ""},
		{"/fail", http.StatusForbidden, "application/json"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, rr.Code)
			if tc.contentType != "" {
				assert.Contains(t, rr.Header().Get("Content-Type"), tc.contentType)
			}
		})
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/redirect", nil))
	assert.Equal(t, "/main", rr.Header().Get("Location"))
	assert.Contains(t, rr.Header().Get("Set-Cookie"), "token=abc")
}

func TestRequestFrom(t *testing.T) {
	m := newTestService(t)
	m.MustRegister(Endpoint{Name: "whoami", Handler: func(ctx context.Context, _ Args) (any, error) {
		r := RequestFrom(ctx)
		if r == nil {
			return nil, errors.Internal("no request", nil)
		}
		c, err := r.Cookie("user_id")
		if err != nil {
			return "", nil
		}
		return c.Value, nil
	}})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "user_id", Value: "alice"})
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "alice", rr.Body.String())
	assert.Nil(t, RequestFrom(context.Background()))
}

func TestArgs(t *testing.T) {
	args := Args{"n": " 42 ", "flag": "true", "obj": `{"a":1}`, "bad": "x", "blank": "  "}

	n, err := args.Int("n")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	b, err := args.Bool("flag")
	require.NoError(t, err)
	assert.True(t, b)

	var obj map[string]int
	require.NoError(t, args.JSON("obj", &obj))
	assert.Equal(t, 1, obj["a"])

	_, err = args.Int("bad")
	assert.True(t, errors.Is(err, errors.CodeInvalidInput))

	_, err = args.Require("blank")
	assert.Error(t, err)
}
