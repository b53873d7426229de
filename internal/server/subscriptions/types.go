package subscriptions

import (
	"time"
)

// Event is a committed change to one graph object.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // node.created, node.updated, node.deleted, relationship.created, ...
	Timestamp time.Time `json:"timestamp"`

	ObjectID   string `json:"object_id"`
	ObjectType string `json:"object_type"`

	// Relationship events only
	StartID string `json:"start_id,omitempty"`
	EndID   string `json:"end_id,omitempty"`

	Properties map[string]any `json:"properties,omitempty"`
}

// Event type constants
const (
	EventNodeCreated         = "node.created"
	EventNodeUpdated         = "node.updated"
	EventNodeDeleted         = "node.deleted"
	EventRelationshipCreated = "relationship.created"
	EventRelationshipUpdated = "relationship.updated"
	EventRelationshipDeleted = "relationship.deleted"
)

// Pattern decides which events a subscription receives. Empty lists match
// everything.
type Pattern struct {
	EventTypes  []string       `json:"event_types,omitempty" yaml:"eventTypes"`
	ObjectTypes []string       `json:"object_types,omitempty" yaml:"objectTypes"`
	Match       map[string]any `json:"match,omitempty" yaml:"match"`
}

// Subscription forwards matching events to a webhook.
type Subscription struct {
	ID      string  `json:"id" yaml:"id"`
	Name    string  `json:"name" yaml:"name" validate:"required"`
	Pattern Pattern `json:"pattern" yaml:"pattern"`
	Webhook string  `json:"webhook" yaml:"webhook" validate:"required,http_url"`
	Enabled bool    `json:"enabled" yaml:"enabled"`

	Created   time.Time  `json:"created" yaml:"-"`
	LastFired *time.Time `json:"last_fired,omitempty" yaml:"-"`
	FireCount int        `json:"fire_count" yaml:"-"`
}

// Notification is the webhook payload.
type Notification struct {
	SubscriptionID   string    `json:"subscription_id"`
	SubscriptionName string    `json:"subscription_name"`
	Event            Event     `json:"event"`
	MatchedAt        time.Time `json:"matched_at"`
}
