package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/systemshift/graphrest/internal/server/access"
	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/metrics"
	"github.com/systemshift/graphrest/internal/server/mutation"
	"github.com/systemshift/graphrest/internal/server/resource"
	"github.com/systemshift/graphrest/internal/server/schema"
	"github.com/systemshift/graphrest/internal/server/subscriptions"
)

const testSchema = `
types:
  - name: Person
    properties:
      - {name: name, indexed: true}
      - {name: email, writeOnce: true}
      - {name: password}
    relations:
      - {property: friends, target: Person, type: KNOWS, direction: out}
    views:
      public: [name]
`

type testEnv struct {
	ts    *httptest.Server
	exec  *mutation.Executor
	store *graph.MemoryStore
}

// setupTestServer serves the full router over an in-memory graph.
func setupTestServer(t *testing.T, policy access.DefaultPolicy) *testEnv {
	t.Helper()

	reg, err := schema.Load(strings.NewReader(testSchema))
	require.NoError(t, err)
	collector := metrics.NewCollector("test")
	store := graph.NewMemoryStore()
	exec := mutation.NewExecutor(store, reg, mutation.WithMetrics(collector))
	grants := access.NewResolver(exec, policy, zap.NewNop(), collector)
	service := resource.NewService(reg, exec, grants, resource.WithBaseURI("http://graph.test"))

	subMgr := subscriptions.NewManager(subscriptions.NewNotifier(http.DefaultClient, 1, 0, zap.NewNop()), 10, collector, zap.NewNop())
	subMgr.Start()
	t.Cleanup(func() { subMgr.Stop(context.Background()) })

	ts := httptest.NewServer(New(service, reg, subMgr, collector, zap.NewNop()).Routes())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, exec: exec, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthCheck(t *testing.T) {
	env := setupTestServer(t, access.Allow)

	resp, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, body)["status"])
}

func TestCreateAndRead(t *testing.T) {
	env := setupTestServer(t, access.Allow)

	resp, body := env.do(t, http.MethodPost, "/persons", `{"name":"Ada","password":"secret"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[map[string]any](t, body)
	id := created["id"].(string)
	assert.Equal(t, "http://graph.test/persons/"+id, resp.Header.Get("Location"))

	// the public view hides everything it does not list
	resp, body = env.do(t, http.MethodGet, "/persons/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, body)
	assert.Equal(t, "Ada", got["name"])
	assert.Equal(t, "Person", got["type"])
	assert.NotContains(t, got, "password")

	_, body = env.do(t, http.MethodGet, "/persons/"+id+"/all", "")
	assert.Equal(t, "secret", decode[map[string]any](t, body)["password"])

	_, body = env.do(t, http.MethodGet, "/persons/"+id+"/ids", "")
	assert.Equal(t, map[string]any{"id": id}, decode[map[string]any](t, body))

	_, body = env.do(t, http.MethodGet, "/persons?name=Ada", "")
	list := decode[ListResponse](t, body)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Result, 1)
	name, _ := list.Result[0].Get("name")
	assert.Equal(t, "Ada", name)
}

func TestStatusMapping(t *testing.T) {
	env := setupTestServer(t, access.Allow)
	_, body := env.do(t, http.MethodPost, "/persons", `{"name":"Ada","email":"ada@example.org"}`)
	id := decode[map[string]any](t, body)["id"].(string)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown type", http.MethodGet, "/unicorns", "", http.StatusNotFound},
		{"unmatched segment", http.MethodGet, "/persons/not-valid!", "", http.StatusNotFound},
		{"illegal combination", http.MethodGet, "/persons/persons", "", http.StatusBadRequest},
		{"missing object", http.MethodGet, "/persons/00000000000000000000000000000000", "", http.StatusNotFound},
		{"post on a single object", http.MethodPost, "/persons/" + id, `{"name":"x"}`, http.StatusMethodNotAllowed},
		{"illegal search fields", http.MethodGet, "/persons?password=x&shoe=1", "", http.StatusUnprocessableEntity},
		{"write once", http.MethodPut, "/persons/" + id, `{"email":"other@example.org"}`, http.StatusUnprocessableEntity},
		{"id in body", http.MethodPost, "/persons", `{"id":"abc","name":"x"}`, http.StatusUnprocessableEntity},
		{"bad json", http.MethodPost, "/persons", `[1,2]`, http.StatusBadRequest},
		{"empty put", http.MethodPut, "/persons/" + id, "", http.StatusBadRequest},
		{"bad paging", http.MethodGet, "/persons?page=zero", "", http.StatusBadRequest},
		{"distance key without coordinates", http.MethodGet, "/persons?distance=5&name=Berlin", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))

			errResp := decode[ErrorResponse](t, body)
			assert.Equal(t, tt.status, errResp.Code)
			assert.NotEmpty(t, errResp.Message)
		})
	}
}

func TestIllegalFieldsListed(t *testing.T) {
	env := setupTestServer(t, access.Allow)

	_, body := env.do(t, http.MethodGet, "/persons?password=x&name=Ada&shoe=1", "")
	errResp := decode[ErrorResponse](t, body)
	assert.Equal(t, []string{"password", "shoe"}, errResp.Errors)
}

func TestMethodNotAllowedSetsAllow(t *testing.T) {
	env := setupTestServer(t, access.Allow)
	_, body := env.do(t, http.MethodPost, "/persons", `{"name":"Ada"}`)
	id := decode[map[string]any](t, body)["id"].(string)

	resp, _ := env.do(t, http.MethodPost, "/persons/"+id, `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.NotContains(t, resp.Header.Get("Allow"), http.MethodPost)
	assert.Contains(t, resp.Header.Get("Allow"), http.MethodGet)
}

func TestHeadAndOptions(t *testing.T) {
	env := setupTestServer(t, access.Allow)

	resp, body := env.do(t, http.MethodHead, "/persons", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)

	resp, body = env.do(t, http.MethodOptions, "/persons", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
	assert.Contains(t, resp.Header.Get("Allow"), http.MethodPost)
}

func TestDenyPolicy(t *testing.T) {
	env := setupTestServer(t, access.Deny)

	resp, body := env.do(t, http.MethodGet, "/persons", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", decode[ErrorResponse](t, body).Message)

	// a grant opens exactly the methods its flags name
	err := env.exec.Run(context.Background(), func(tx *mutation.Tx) error {
		_, err := tx.CreateNode(context.Background(), schema.ResourceAccessType,
			(&access.Grant{Signature: "Person", Flags: access.FlagGet}).Props())
		return err
	})
	require.NoError(t, err)

	resp, _ = env.do(t, http.MethodGet, "/persons", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/persons", `{"name":"Ada"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRelatedAndDelete(t *testing.T) {
	env := setupTestServer(t, access.Allow)
	_, body := env.do(t, http.MethodPost, "/persons", `{"name":"Ada"}`)
	ada := decode[map[string]any](t, body)["id"].(string)
	_, body = env.do(t, http.MethodPost, "/persons", `{"name":"Alan"}`)
	alan := decode[map[string]any](t, body)["id"].(string)

	resp, _ := env.do(t, http.MethodPost, "/persons/"+ada+"/friends", `{"id":"`+alan+`"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/persons/"+ada+"/friends", `{"id":"`+alan+`"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "existing link is not duplicated")

	_, body = env.do(t, http.MethodGet, "/persons/"+ada+"/out/all", "")
	rels := decode[ListResponse](t, body)
	require.Len(t, rels.Result, 1)
	end, _ := rels.Result[0].Get("endId")
	assert.Equal(t, alan, end)

	resp, body = env.do(t, http.MethodDelete, "/persons/"+ada, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decode[map[string]any](t, body)["deleted"])

	nodes, relCount := env.store.Counts()
	assert.Equal(t, 1, nodes)
	assert.Equal(t, 0, relCount)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t, access.Allow)
	env.do(t, http.MethodGet, "/persons", "")

	resp, body := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "test_http_requests_total")
}

func TestSubscriptionRoutes(t *testing.T) {
	env := setupTestServer(t, access.Allow)

	resp, body := env.do(t, http.MethodPost, "/_subscriptions", `{"name":"people","webhook":"http://hooks.test/people"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	sub := decode[subscriptions.Subscription](t, body)
	assert.True(t, sub.Enabled)

	_, body = env.do(t, http.MethodGet, "/_subscriptions", "")
	assert.EqualValues(t, 1, decode[map[string]any](t, body)["count"])

	resp, _ = env.do(t, http.MethodGet, "/_subscriptions/"+sub.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/_subscriptions/"+sub.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/_subscriptions/"+sub.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/_subscriptions", `{"name":"bad","webhook":"ftp://x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
