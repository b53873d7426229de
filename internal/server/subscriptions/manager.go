package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/metrics"
)

var ErrNotFound = errors.New("subscription not found")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Change actions used to build event types.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// NewEvent snapshots obj into an event of the given action.
func NewEvent(action string, obj graph.Object) Event {
	kind := "node"
	e := Event{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		ObjectID:   obj.ObjectID(),
		ObjectType: obj.ObjectType(),
		Properties: maps.Clone(obj.Properties()),
	}
	if r, ok := obj.(*graph.Relationship); ok {
		kind = "relationship"
		e.StartID = r.StartID
		e.EndID = r.EndID
	}
	e.Type = kind + "." + action
	return e
}

// Manager fans committed events out to the matching subscriptions.
type Manager struct {
	subscriptions map[string]*Subscription
	eventChan     chan Event
	notifier      *Notifier
	metrics       *metrics.Collector
	logger        *zap.Logger
	mu            sync.RWMutex
	closed        bool
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	deliveries    sync.WaitGroup
}

// NewManager creates a manager with an event buffer of bufferSize.
func NewManager(notifier *Notifier, bufferSize int, collector *metrics.Collector, logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	if bufferSize < 1 {
		bufferSize = 1000
	}
	return &Manager{
		subscriptions: make(map[string]*Subscription),
		eventChan:     make(chan Event, bufferSize),
		notifier:      notifier,
		metrics:       collector,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins processing events
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.processEvents()
	m.logger.Info("subscription manager started", zap.Int("subscriptions", len(m.List())))
}

// Stop drains the buffered events, waits for in-flight deliveries and shuts
// the manager down. Events published afterwards are dropped.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.eventChan)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		m.deliveries.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("subscription manager stopped before deliveries finished")
	}
	m.cancel()
}

// Publish queues committed events without blocking the caller. Events are
// dropped when the buffer is full.
func (m *Manager) Publish(events []Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	for _, event := range events {
		select {
		case m.eventChan <- event:
		default:
			m.logger.Warn("event buffer full, dropping event",
				zap.String("event_id", event.ID), zap.String("type", event.Type))
		}
	}
}

// Register adds a subscription. A missing ID is generated.
func (m *Manager) Register(sub Subscription) (*Subscription, error) {
	if err := validate.Struct(sub); err != nil {
		return nil, fmt.Errorf("invalid subscription %q: %w", sub.Name, err)
	}
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.Created = time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.subscriptions[sub.ID]; exists {
		return nil, fmt.Errorf("subscription %s already registered", sub.ID)
	}
	m.subscriptions[sub.ID] = &sub

	m.logger.Info("registered subscription", zap.String("id", sub.ID), zap.String("name", sub.Name))
	out := sub
	return &out, nil
}

// Unregister removes a subscription
func (m *Manager) Unregister(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subscriptions[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.subscriptions, id)
	return nil
}

// Get returns a copy of the subscription with id.
func (m *Manager) Get(id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, exists := m.subscriptions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := *sub
	return &out, nil
}

// List returns copies of all subscriptions ordered by name.
func (m *Manager) List() []*Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		out := *sub
		result = append(result, &out)
	}
	slices.SortFunc(result, func(a, b *Subscription) int { return strings.Compare(a.Name, b.Name) })
	return result
}

func (m *Manager) processEvents() {
	defer m.wg.Done()

	for event := range m.eventChan {
		m.handleEvent(event)
	}
}

func (m *Manager) handleEvent(event Event) {
	now := time.Now().UTC()

	m.mu.Lock()
	var fired []Subscription
	for _, sub := range m.subscriptions {
		if !sub.Enabled || !Match(event, sub.Pattern) {
			continue
		}
		sub.LastFired = &now
		sub.FireCount++
		fired = append(fired, *sub)
	}
	m.mu.Unlock()

	for _, sub := range fired {
		notification := Notification{
			SubscriptionID:   sub.ID,
			SubscriptionName: sub.Name,
			Event:            event,
			MatchedAt:        now,
		}
		m.deliveries.Add(1)
		go m.deliver(sub.Webhook, notification)
	}
}

func (m *Manager) deliver(url string, n Notification) {
	defer m.deliveries.Done()

	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	err := m.notifier.SendWebhook(ctx, url, n)
	m.metrics.RecordWebhook(err == nil)
	if err != nil {
		m.logger.Error("webhook delivery failed",
			zap.String("subscription", n.SubscriptionID),
			zap.String("event", n.Event.Type),
			zap.Error(err))
	}
}
