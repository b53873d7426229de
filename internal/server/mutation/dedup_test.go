package mutation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/metrics"
)

func twoPeople(t *testing.T, e *Executor) (*graph.Node, *graph.Node) {
	t.Helper()
	ctx := context.Background()
	people, err := Do(ctx, e, func(tx *Tx) ([]*graph.Node, error) {
		return createPeople(ctx, tx, "Ada", "Alan")
	})
	require.NoError(t, err)
	return people[0], people[1]
}

func TestCreateIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	collector := metrics.NewCollector("test")
	e, store := newTestExecutor(t, WithMetrics(collector))
	ada, alan := twoPeople(t, e)

	const n = 5
	var created int
	for i := 0; i < n; i++ {
		r, err := Do(ctx, e, func(tx *Tx) (*graph.Relationship, error) {
			return tx.CreateRelationship(ctx, ada, alan, "KNOWS", nil, true)
		})
		require.NoError(t, err)
		if r != nil {
			created++
		}
	}

	assert.Equal(t, 1, created)
	_, rels := store.Counts()
	assert.Equal(t, 1, rels)
	assert.Equal(t, float64(n-1), testutil.ToFloat64(collector.DuplicatesSkipped))
}

func TestDuplicateCheckComparesNewKeysOnly(t *testing.T) {
	ctx := context.Background()
	e, store := newTestExecutor(t)
	ada, alan := twoPeople(t, e)

	create := func(props *graph.PropertySet) *graph.Relationship {
		r, err := Do(ctx, e, func(tx *Tx) (*graph.Relationship, error) {
			return tx.CreateRelationship(ctx, ada, alan, "KNOWS", props, true)
		})
		require.NoError(t, err)
		return r
	}

	require.NotNil(t, create(graph.PropertySetOf("since", 2001, "where", "London")))

	// same pairs in another order
	assert.Nil(t, create(graph.PropertySetOf("where", "London", "since", 2001)))
	// a subset of the stored pairs is compared on that subset only
	assert.Nil(t, create(graph.PropertySetOf("since", 2001)))
	// no properties: any relationship between the two is a duplicate
	assert.Nil(t, create(nil))
	// a different value is a new relationship
	assert.NotNil(t, create(graph.PropertySetOf("since", 2002)))

	_, rels := store.Counts()
	assert.Equal(t, 2, rels)
}

func TestDuplicateCheckIgnoresOtherStartsAndTypes(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExecutor(t)
	ada, alan := twoPeople(t, e)

	var grace *graph.Node
	require.NoError(t, e.Run(ctx, func(tx *Tx) error {
		people, err := createPeople(ctx, tx, "Grace")
		if err != nil {
			return err
		}
		grace = people[0]
		_, err = tx.CreateRelationship(ctx, grace, alan, "KNOWS", nil, false)
		return err
	}))

	require.NoError(t, e.Run(ctx, func(tx *Tx) error {
		ok, err := tx.ShouldCreate(ctx, ada, alan, "KNOWS", nil)
		require.NoError(t, err)
		assert.True(t, ok, "a relationship from another start node is no duplicate")

		ok, err = tx.ShouldCreate(ctx, grace, alan, "LIKES", nil)
		require.NoError(t, err)
		assert.True(t, ok, "a relationship of another type is no duplicate")

		ok, err = tx.ShouldCreate(ctx, grace, alan, "KNOWS", nil)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestConcurrentCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	e, store := newTestExecutor(t)
	ada, alan := twoPeople(t, e)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.Run(ctx, func(tx *Tx) error {
				_, err := tx.CreateRelationship(ctx, ada, alan, "KNOWS", nil, true)
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, rels := store.Counts()
	assert.Equal(t, 1, rels)
	assert.Zero(t, e.locks.size())
}

func TestKeyLocks(t *testing.T) {
	locks := newKeyLocks()
	ctx := context.Background()

	require.NoError(t, locks.acquire(ctx, "a"))
	require.NoError(t, locks.acquire(ctx, "b"), "distinct keys do not block each other")

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, locks.acquire(short, "a"), context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		if assert.NoError(t, locks.acquire(ctx, "a")) {
			close(acquired)
		}
	}()
	locks.release("a")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never got the lock")
	}

	locks.release("a")
	locks.release("b")
	assert.Zero(t, locks.size())
}

func TestRelationshipKeyLockIsReentrant(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExecutor(t)
	ada, alan := twoPeople(t, e)

	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx, func(tx *Tx) error {
			if _, err := tx.ShouldCreate(ctx, ada, alan, "KNOWS", nil); err != nil {
				return err
			}
			_, err := tx.CreateRelationship(ctx, ada, alan, "KNOWS", nil, true)
			return err
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("transaction deadlocked on its own key")
	}
	assert.Zero(t, e.locks.size())
}
