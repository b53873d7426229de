// Package mutation runs units of work against the graph store as atomic
// transactions and fires the per-object lifecycle side effects before commit.
package mutation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/metrics"
	"github.com/systemshift/graphrest/internal/server/schema"
	"github.com/systemshift/graphrest/internal/server/subscriptions"
)

// EventSink receives the changes of committed transactions.
type EventSink interface {
	Publish(events []subscriptions.Event)
}

// Reader is the read-only part of a graph transaction.
type Reader interface {
	GetNode(ctx context.Context, id string) (*graph.Node, error)
	GetRelationship(ctx context.Context, id string) (*graph.Relationship, error)
	FindNodes(ctx context.Context, preds []graph.Predicate) ([]*graph.Node, error)
	Relationships(ctx context.Context, nodeID, relType string, dir graph.Direction) ([]*graph.Relationship, error)
}

// Executor owns the store and everything a transaction needs besides it.
type Executor struct {
	store    graph.Store
	registry *schema.Registry
	locks    *keyLocks
	logger   *zap.Logger
	metrics  *metrics.Collector
	sink     EventSink
	now      func() time.Time
}

type Option func(*Executor)

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(e *Executor) { e.metrics = c }
}

// WithEventSink publishes the changes of every committed transaction to s.
func WithEventSink(s EventSink) Option {
	return func(e *Executor) { e.sink = s }
}

// WithClock replaces the clock used for the bookkeeping timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(store graph.Store, registry *schema.Registry, opts ...Option) *Executor {
	e := &Executor{
		store:    store,
		registry: registry,
		locks:    newKeyLocks(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the type registry the executor enforces.
func (e *Executor) Registry() *schema.Registry {
	return e.registry
}

// Run executes work in one transaction. When work succeeds the created and
// modified objects are drained, then the store commits and the changes are
// published. Any failure rolls everything back and is returned as a
// *TransactionError.
func (e *Executor) Run(ctx context.Context, work func(tx *Tx) error) (err error) {
	started := time.Now()
	committed := false

	gtx, err := e.store.Begin(ctx)
	if err != nil {
		e.metrics.RecordTransaction(false, time.Since(started))
		return wrapFailure(err)
	}
	tx := newTx(e, gtx)

	defer func() {
		if !committed {
			if rbErr := gtx.Rollback(ctx); rbErr != nil {
				e.logger.Error("rollback failed", zap.Error(rbErr))
			}
			tx.releaseLocks()
			e.logger.Debug("transaction rolled back", zap.Error(err))
		}
		e.metrics.RecordTransaction(committed, time.Since(started))
	}()

	if err := work(tx); err != nil {
		return wrapFailure(err)
	}
	if err := tx.drain(ctx); err != nil {
		return wrapFailure(err)
	}
	if err := gtx.Commit(ctx); err != nil {
		return wrapFailure(err)
	}
	committed = true
	tx.releaseLocks()

	tx.recordCounts()
	if e.sink != nil {
		if events := tx.events(); len(events) > 0 {
			e.sink.Publish(events)
		}
	}
	return nil
}

// Do is Run for units of work that produce a value.
func Do[T any](ctx context.Context, e *Executor, work func(tx *Tx) (T, error)) (T, error) {
	var out T
	err := e.Run(ctx, func(tx *Tx) error {
		v, err := work(tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Read runs read-only work in a transaction that is always rolled back.
func (e *Executor) Read(ctx context.Context, work func(r Reader) error) error {
	gtx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer gtx.Rollback(ctx)
	return work(gtx)
}

func wrapFailure(err error) error {
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return err
	}
	return &TransactionError{Err: err}
}

func (e *Executor) timestamp() string {
	return e.now().UTC().Format(schema.TimestampLayout)
}
