package knowledge

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/logging"
	"github.com/coach-dss/coach/internal/rdf"
	"github.com/coach-dss/coach/internal/settings"
	"github.com/coach-dss/coach/services/casedb"
)

const officeDoc = `<http://coach.example/ns#case/c1> <http://coach.example/ns#name> "Office" .
<http://coach.example/ns#case/c1> <http://coach.example/ns#property/budget> "10" .
`

var (
	alice = casedb.Session{UserID: "alice", Token: "tok-a"}
	bob   = casedb.Session{UserID: "bob", Token: "tok-b"}
)

// fakeCases lets alice act on c1 and c2; bob holds a valid session but no
// case.
type fakeCases struct{}

func (fakeCases) CaseInfo(_ context.Context, s casedb.Session, caseID string) (casedb.CaseInfo, error) {
	switch {
	case s != alice && s != bob:
		return casedb.CaseInfo{}, errors.InvalidUserToken()
	case caseID != "c1" && caseID != "c2":
		return casedb.CaseInfo{}, errors.NotFound("case", caseID)
	case s != alice:
		return casedb.CaseInfo{}, errors.Forbidden("not a stakeholder of this case")
	}
	return casedb.CaseInfo{Case: casedb.Case{ID: caseID}}, nil
}

func newTestClient(t *testing.T) (*Service, *Client) {
	t.Helper()
	svc, err := New(Config{
		Settings: settings.Empty(),
		Logger:   logging.NewDiscard(ServiceType),
		Cases:    fakeCases{},
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { svc.Stop() })

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return svc, NewClient(coach.NewProxy(srv.URL))
}

func TestKnowledge_PublishAndFetch(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	sum, err := client.Publish(ctx, alice, "c1", "Office", officeDoc)
	require.NoError(t, err)
	assert.Equal(t, Summary{
		CaseID:      "c1",
		Title:       "Office",
		PublishedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Facts:       2,
	}, sum)

	doc, err := client.Case(ctx, "c1")
	require.NoError(t, err)
	triples, err := rdf.Unmarshal(doc)
	require.NoError(t, err)
	assert.Len(t, triples, 2)

	list, err := client.Cases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Summary{sum}, list)
}

func TestKnowledge_PublishRejectsBadContent(t *testing.T) {
	_, client := newTestClient(t)

	_, err := client.Publish(context.Background(), alice, "c1", "Broken", "<http://a> <http://b> .\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeInvalidInput))
	assert.Equal(t, 400, errors.HTTPStatus(err))

	_, err = client.Publish(context.Background(), alice, " ", "No id", officeDoc)
	assert.True(t, errors.Is(err, errors.CodeInvalidInput))
}

func TestKnowledge_Republish(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Publish(ctx, alice, "c1", "Office", officeDoc)
	require.NoError(t, err)
	_, err = client.Publish(ctx, alice, "c1", "Office v2", `<http://coach.example/ns#case/c1> <http://coach.example/ns#name> "Office v2" .`)
	require.NoError(t, err)

	list, err := client.Cases(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Office v2", list[0].Title)
	assert.Equal(t, 1, list[0].Facts)
}

func TestKnowledge_Query(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Publish(ctx, alice, "c1", "Office", officeDoc)
	require.NoError(t, err)
	_, err = client.Publish(ctx, alice, "c2", "Vendor", `<http://coach.example/ns#case/c2> <http://coach.example/ns#name> "Vendor" .`)
	require.NoError(t, err)

	var ids []string
	require.NoError(t, client.Query(ctx, "$[*].case_id", &ids))
	assert.Equal(t, []string{"c1", "c2"}, ids)

	var title string
	require.NoError(t, client.Query(ctx, "$[1].title", &title))
	assert.Equal(t, "Vendor", title)

	var objects []string
	require.NoError(t, client.Query(ctx, `$[?(@.case_id == "c1")].facts[*].object`, &objects))
	assert.ElementsMatch(t, []string{`"Office"`, `"10"`}, objects)

	err = client.Query(ctx, "$[", &ids)
	assert.True(t, errors.Is(err, errors.CodeInvalidInput))
}

func TestKnowledge_Remove(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Publish(ctx, alice, "c1", "Office", officeDoc)
	require.NoError(t, err)
	require.NoError(t, client.Remove(ctx, alice, "c1"))

	err = client.Remove(ctx, alice, "c1")
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = client.Case(ctx, "c1")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestKnowledge_WritesRequireCaseAccess(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Publish(ctx, casedb.Session{UserID: "alice", Token: "wrong"}, "c1", "Office", officeDoc)
	assert.True(t, errors.Is(err, errors.CodeInvalidToken))

	_, err = client.Publish(ctx, bob, "c1", "Office", officeDoc)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = client.Publish(ctx, alice, "c1", "Office", officeDoc)
	require.NoError(t, err)

	err = client.Remove(ctx, bob, "c1")
	assert.True(t, errors.Is(err, errors.CodeForbidden))
	_, err = client.Case(ctx, "c1")
	assert.NoError(t, err, "publication survives a rejected removal")
}

func TestNew_RequiresCaseDatabase(t *testing.T) {
	_, err := New(Config{Settings: settings.Empty(), Logger: logging.NewDiscard(ServiceType)})
	assert.Error(t, err)
}

func TestKnowledge_Statistics(t *testing.T) {
	svc, client := newTestClient(t)

	_, err := client.Publish(context.Background(), alice, "c1", "Office", officeDoc)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"documents": 1, "facts": 2}, svc.statistics())
}

func TestNew_UnknownStore(t *testing.T) {
	s, err := settings.Parse([]byte(`{"KnowledgeRepositoryService": {"store": "s3"}}`))
	require.NoError(t, err)
	_, err = New(Config{Settings: s, Logger: logging.NewDiscard(ServiceType), Cases: fakeCases{}})
	assert.Error(t, err)
}

// TestRedisStore runs against a live server when REDIS_ADDR is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	store := NewRedisStore(RedisConfig{Addr: addr, Key: "coach:knowledge:test:" + t.Name()})
	defer store.Close()
	require.NoError(t, store.Ping(ctx))
	defer store.client.Del(ctx, store.key)

	doc := Document{CaseID: "c1", Title: "Office", Content: officeDoc, Facts: []Fact{{"s", "p", "o"}}}
	require.NoError(t, store.Put(ctx, doc))

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)

	docs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.NoError(t, store.Delete(ctx, "c1"))
	assert.ErrorIs(t, store.Delete(ctx, "c1"), ErrNotFound)
	_, err = store.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}
