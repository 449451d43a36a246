package estimation

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/logging"
	"github.com/coach-dss/coach/internal/settings"
	"github.com/coach-dss/coach/services/casedb"
)

// fakeCases serves one case to the session it was built with.
type fakeCases struct {
	mu      sync.Mutex
	session casedb.Session
	info    casedb.CaseInfo
}

func (f *fakeCases) CaseInfo(_ context.Context, s casedb.Session, caseID string) (casedb.CaseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s != f.session {
		return casedb.CaseInfo{}, errors.InvalidUserToken()
	}
	if caseID != f.info.ID {
		return casedb.CaseInfo{}, errors.NotFound("case", caseID)
	}
	return f.info, nil
}

func (f *fakeCases) ChangeCaseProperty(_ context.Context, s casedb.Session, caseID, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s != f.session {
		return errors.InvalidUserToken()
	}
	f.info.Properties[name] = value
	return nil
}

func (f *fakeCases) property(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info.Properties[name]
}

func newTestClient(t *testing.T, cases CaseAccess) (*Service, *Client) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "methods.yaml")
	require.NoError(t, os.WriteFile(path, []byte(methodsYAML), 0o600))
	quoted, _ := json.Marshal(path)
	s, err := settings.Parse([]byte(`{"EstimationMethodService": {"methods_file": ` + string(quoted) + `, "script_timeout": "200ms"}}`))
	require.NoError(t, err)

	svc, err := New(Config{Settings: s, Logger: logging.NewDiscard(ServiceType), Cases: cases})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { svc.Stop() })

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return svc, NewClient(coach.NewProxy(srv.URL))
}

func TestEstimation_ListAndInfo(t *testing.T) {
	_, client := newTestClient(t, nil)
	ctx := context.Background()

	methods, err := client.Methods(ctx)
	require.NoError(t, err)
	require.Len(t, methods, 4)
	assert.Equal(t, "cost_sum", methods[0].Name)

	m, err := client.Method(ctx, "risk")
	require.NoError(t, err)
	assert.Contains(t, m.Script, "function estimate")

	_, err = client.Method(ctx, "nope")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestEstimation_Estimate(t *testing.T) {
	_, client := newTestClient(t, nil)
	ctx := context.Background()

	est, err := client.Estimate(ctx, "cost_sum", map[string]any{"hardware": 10, "license": 5})
	require.NoError(t, err)
	assert.Equal(t, Estimate{Method: "cost_sum", Result: 15.0}, est)

	_, err = client.Estimate(ctx, "cost_sum", map[string]any{"hardware": 10})
	assert.True(t, errors.Is(err, errors.CodeMissingParameter))

	_, err = client.Estimate(ctx, "unknown", map[string]any{})
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = client.Estimate(ctx, "spin", map[string]any{})
	assert.Equal(t, 500, errors.HTTPStatus(err))
}

func TestEstimation_NonFiniteResultIsRejected(t *testing.T) {
	_, client := newTestClient(t, nil)

	_, err := client.Estimate(context.Background(), "ratio", map[string]any{"a": 1, "b": 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeInvalidInput))
	assert.Equal(t, 400, errors.HTTPStatus(err))
}

func TestPropertyInput(t *testing.T) {
	input := propertyInput(map[string]string{"budget": "12.5", "mode": "fast", "n": "NaN", "inf": "Inf"})
	assert.Equal(t, map[string]any{"budget": 12.5, "mode": "fast", "n": "NaN", "inf": "Inf"}, input)
}

func TestEstimation_InputsMustBeObject(t *testing.T) {
	_, client := newTestClient(t, nil)
	proxy := client.proxy

	_, err := proxy.Call(context.Background(), "estimate", coach.Args{"name": "risk", "inputs": "[1,2]"})
	assert.True(t, errors.Is(err, errors.CodeInvalidInput))

	_, err = proxy.Call(context.Background(), "estimate", coach.Args{"name": "risk", "inputs": "null"})
	assert.True(t, errors.Is(err, errors.CodeInvalidInput))
}

func TestEstimation_EstimateCase(t *testing.T) {
	session := casedb.Session{UserID: "alice", Token: "tok"}
	cases := &fakeCases{
		session: session,
		info: casedb.CaseInfo{
			Case:       casedb.Case{ID: "c1"},
			Properties: map[string]string{"budget": "5000", "owner": "it"},
		},
	}
	_, client := newTestClient(t, cases)
	ctx := context.Background()

	est, err := client.EstimateCase(ctx, session, "c1", "risk")
	require.NoError(t, err)
	assert.Equal(t, "high", est.Result)
	assert.Equal(t, "high", cases.property("estimate_risk"))

	_, err = client.EstimateCase(ctx, casedb.Session{UserID: "alice", Token: "bad"}, "c1", "risk")
	assert.True(t, errors.Is(err, errors.CodeInvalidToken))

	_, err = client.EstimateCase(ctx, session, "c1", "cost_sum")
	assert.True(t, errors.Is(err, errors.CodeMissingParameter))
}

func TestEstimation_EstimateCaseWithoutCaseDatabase(t *testing.T) {
	_, client := newTestClient(t, nil)

	_, err := client.EstimateCase(context.Background(), casedb.Session{UserID: "a", Token: "b"}, "c1", "risk")
	assert.True(t, errors.Is(err, errors.CodeUnavailable))
}

func TestFormatResult(t *testing.T) {
	for in, want := range map[any]string{"text": "text", 42.0: "42", true: "true"} {
		got, err := formatResult(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
