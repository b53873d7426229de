package subscriptions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/metrics"
)

func TestMatch(t *testing.T) {
	node := &graph.Node{ID: graph.NewID(), Type: "Person", Props: map[string]any{"name": "Ada", "age": 36.0}}
	event := NewEvent(ActionCreated, node)
	require.Equal(t, EventNodeCreated, event.Type)

	tests := []struct {
		name    string
		pattern Pattern
		want    bool
	}{
		{"empty pattern", Pattern{}, true},
		{"event type", Pattern{EventTypes: []string{EventNodeCreated}}, true},
		{"other event type", Pattern{EventTypes: []string{EventNodeDeleted}}, false},
		{"object type", Pattern{ObjectTypes: []string{"Person", "Robot"}}, true},
		{"other object type", Pattern{ObjectTypes: []string{"Robot"}}, false},
		{"property case insensitive", Pattern{Match: map[string]any{"name": "ada"}}, true},
		{"numeric coercion", Pattern{Match: map[string]any{"age": 36}}, true},
		{"missing property", Pattern{Match: map[string]any{"email": "x"}}, false},
		{"any of a list", Pattern{Match: map[string]any{"name": []any{"Alan", "ADA"}}}, true},
		{"none of a list", Pattern{Match: map[string]any{"age": []any{1, uint8(2)}}}, false},
		{"string never equals number", Pattern{Match: map[string]any{"age": "36"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(event, tt.pattern))
		})
	}
}

func TestNewEventForRelationship(t *testing.T) {
	rel := &graph.Relationship{ID: graph.NewID(), Type: "KNOWS", StartID: "a", EndID: "b"}
	event := NewEvent(ActionDeleted, rel)
	assert.Equal(t, EventRelationshipDeleted, event.Type)
	assert.Equal(t, "a", event.StartID)
	assert.Equal(t, "b", event.EndID)
}

func TestNotifierRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, EventNodeCreated, r.Header.Get("X-Graphrest-Event"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(srv.Client(), 3, time.Millisecond, zap.NewNop())
	err := n.SendWebhook(context.Background(), srv.URL, Notification{Event: Event{Type: EventNodeCreated}})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifierGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(srv.Client(), 2, time.Millisecond, zap.NewNop())
	err := n.SendWebhook(context.Background(), srv.URL, Notification{})
	var webhookErr *WebhookError
	require.ErrorAs(t, err, &webhookErr)
	assert.Equal(t, http.StatusInternalServerError, webhookErr.StatusCode)
}

func TestManagerDeliversMatchingEvents(t *testing.T) {
	var mu sync.Mutex
	var received []Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n Notification
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&n)) {
			mu.Lock()
			received = append(received, n)
			mu.Unlock()
		}
	}))
	defer srv.Close()

	collector := metrics.NewCollector("test")
	m := NewManager(NewNotifier(srv.Client(), 1, 0, zap.NewNop()), 10, collector, zap.NewNop())
	sub, err := m.Register(Subscription{
		Name:    "people",
		Webhook: srv.URL,
		Enabled: true,
		Pattern: Pattern{ObjectTypes: []string{"Person"}},
	})
	require.NoError(t, err)
	m.Start()

	m.Publish([]Event{
		NewEvent(ActionCreated, &graph.Node{ID: "p1", Type: "Person"}),
		NewEvent(ActionCreated, &graph.Node{ID: "r1", Type: "Robot"}),
	})
	m.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "p1", received[0].Event.ObjectID)
	assert.Equal(t, sub.ID, received[0].SubscriptionID)

	got, err := m.Get(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FireCount)
	assert.NotNil(t, got.LastFired)

	// publishing after stop is a no-op
	m.Publish([]Event{{ID: "late"}})
}

func TestManagerRegistration(t *testing.T) {
	m := NewManager(NewNotifier(nil, 1, 0, zap.NewNop()), 0, nil, zap.NewNop())

	_, err := m.Register(Subscription{Webhook: "http://example.com"})
	assert.Error(t, err)
	_, err = m.Register(Subscription{Name: "x", Webhook: "ftp://example.com"})
	assert.Error(t, err)

	a, err := m.Register(Subscription{ID: "a", Name: "b-sub", Webhook: "http://example.com"})
	require.NoError(t, err)
	_, err = m.Register(Subscription{ID: "a", Name: "again", Webhook: "http://example.com"})
	assert.Error(t, err)
	_, err = m.Register(Subscription{Name: "a-sub", Webhook: "https://example.com"})
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a-sub", list[0].Name)

	require.NoError(t, m.Unregister(a.ID))
	assert.ErrorIs(t, m.Unregister(a.ID), ErrNotFound)
	_, err = m.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
