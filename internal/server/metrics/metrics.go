// Package metrics holds the prometheus instruments of the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Transactions        *prometheus.CounterVec
	TransactionDuration prometheus.Histogram
	DuplicatesSkipped   prometheus.Counter
	ObjectsCreated      *prometheus.CounterVec
	ObjectsDeleted      *prometheus.CounterVec

	GrantConfigErrors prometheus.Counter
	WebhookDeliveries *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Mutation transactions by outcome",
		}, []string{"outcome"}),
		TransactionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Mutation transaction duration in seconds, drain and commit included",
			Buckets:   prometheus.DefBuckets,
		}),
		DuplicatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_suppressed_total",
			Help:      "Relationship creations skipped because an equal relationship exists",
		}),
		ObjectsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_created_total",
			Help:      "Committed object creations",
		}, []string{"kind"}),
		ObjectsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_deleted_total",
			Help:      "Committed object deletions",
		}, []string{"kind"}),
		GrantConfigErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grant_configuration_errors_total",
			Help:      "Grant lookups that found more than one grant for a signature",
		}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook notification attempts by outcome",
		}, []string{"outcome"}),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Transactions,
		c.TransactionDuration,
		c.DuplicatesSkipped,
		c.ObjectsCreated,
		c.ObjectsDeleted,
		c.GrantConfigErrors,
		c.WebhookDeliveries,
	)
	return c
}

// Registry exposes the private registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collected metrics in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordHTTP records one served request. Nil collectors are ignored so callers
// need not check.
func (c *Collector) RecordHTTP(method string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordTransaction records a finished mutation transaction.
func (c *Collector) RecordTransaction(committed bool, d time.Duration) {
	if c == nil {
		return
	}
	outcome := "committed"
	if !committed {
		outcome = "rolled_back"
	}
	c.Transactions.WithLabelValues(outcome).Inc()
	c.TransactionDuration.Observe(d.Seconds())
}

func (c *Collector) RecordDuplicate() {
	if c == nil {
		return
	}
	c.DuplicatesSkipped.Inc()
}

// RecordObjects counts committed creations and deletions per kind.
func (c *Collector) RecordObjects(kind string, created, deleted int) {
	if c == nil {
		return
	}
	if created > 0 {
		c.ObjectsCreated.WithLabelValues(kind).Add(float64(created))
	}
	if deleted > 0 {
		c.ObjectsDeleted.WithLabelValues(kind).Add(float64(deleted))
	}
}

func (c *Collector) RecordGrantConfigError() {
	if c == nil {
		return
	}
	c.GrantConfigErrors.Inc()
}

func (c *Collector) RecordWebhook(delivered bool) {
	if c == nil {
		return
	}
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	c.WebhookDeliveries.WithLabelValues(outcome).Inc()
}
