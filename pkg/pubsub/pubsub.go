package pubsub

import (
	"context"
	"encoding/json"
)

// Topic names used by the analyzer.
const (
	TopicStudyStatus = "study_status"
	TopicGraphModel  = "graph_model"
)

// Event represents a pub/sub event.
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"` // e.g. "loading", "rebuilt", "invalid"
	Data    json.RawMessage `json:"data"`
	Version int             `json:"version"` // per-topic ordering
}

// Subscription represents a client subscription to a topic.
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing.
type Publisher interface {
	// Subscribe creates a new subscription to a topic.
	// Context cancellation closes the subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// StudyStatus reports where the analyzer is in loading and building models.
type StudyStatus struct {
	State   string `json:"state"` // loading, building, ready, error
	Message string `json:"message"`
	Step    int    `json:"step"`
	Total   int    `json:"total"`
}

// GraphSummary is the lightweight graph-model event payload; clients fetch
// the full model via the API when notified.
type GraphSummary struct {
	Nodes    int  `json:"nodes"`
	Edges    int  `json:"edges"`
	Valid    bool `json:"valid"`
	Complete bool `json:"complete"`
}
