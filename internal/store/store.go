package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// SolveRecord is one archived solve: the request, the produced solution and
// summary numbers for listing.
type SolveRecord struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	Vehicles     int             `json:"vehicles"`
	Rides        int             `json:"rides"`
	DroppedRides int             `json:"dropped_rides"`
	DurationMs   int64           `json:"duration_ms"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Problem      json.RawMessage `json:"problem,omitempty"`
	Solution     json.RawMessage `json:"solution,omitempty"`
}

// Subscription is a webhook receiver for solve lifecycle events.
type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

// WebhookDelivery is one pending or attempted delivery.
type WebhookDelivery struct {
	ID        string
	EventType string
	URL       string
	Secret    string
	Payload   []byte
	Attempts  int
}

// Store is the persistence interface used by the API server. The engine is
// fully functional without a database; the memory store backs it then.
type Store interface {
	SaveSolve(ctx context.Context, rec SolveRecord) error
	GetSolve(ctx context.Context, id string) (SolveRecord, error)
	ListSolves(ctx context.Context, limit int) ([]SolveRecord, error)

	CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode, latencyMs int) error
}

var ErrNotFound = errors.New("not found")
