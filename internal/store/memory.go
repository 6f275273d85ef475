package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is the in-process store used when DATABASE_URL is unset.
type Memory struct {
	mu            sync.Mutex
	solves        map[string]SolveRecord
	subscriptions map[string]Subscription
	deliveries    map[string]*memDelivery
}

type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	Done          bool
}

func NewMemory() *Memory {
	return &Memory{
		solves:        map[string]SolveRecord{},
		subscriptions: map[string]Subscription{},
		deliveries:    map[string]*memDelivery{},
	}
}

func (s *Memory) SaveSolve(_ context.Context, rec SolveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.solves[rec.ID] = rec
	return nil
}

func (s *Memory) GetSolve(_ context.Context, id string) (SolveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.solves[id]
	if !ok {
		return SolveRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *Memory) ListSolves(_ context.Context, limit int) ([]SolveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SolveRecord, 0, len(s.solves))
	for _, rec := range s.solves {
		rec.Problem = nil
		rec.Solution = nil
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) CreateSubscription(_ context.Context, sub Subscription) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = uuid.New().String()
	s.subscriptions[sub.ID] = sub
	return sub, nil
}

func (s *Memory) ListSubscriptions(_ context.Context) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) GetSubscriptionsForEvent(_ context.Context, eventType string) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Subscription
	for _, sub := range s.subscriptions {
		for _, e := range sub.Events {
			if e == eventType || e == "*" {
				out = append(out, sub)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) DeleteSubscription(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[id]; !ok {
		return ErrNotFound
	}
	delete(s.subscriptions, id)
	return nil
}

func (s *Memory) EnqueueWebhook(_ context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	_ = subscriptionID
	s.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, EventType: eventType, URL: url, Secret: secret, Payload: payload},
		NextAttemptAt:   time.Now(),
	}
	return id, nil
}

func (s *Memory) FetchDueWebhookDeliveries(_ context.Context, limit int) ([]WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []WebhookDelivery
	for _, d := range s.deliveries {
		if d.Done || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Memory) MarkWebhookDelivery(_ context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	_ = lastError
	_ = responseCode
	_ = latencyMs
	d.Attempts++
	if success {
		d.Done = true
	} else if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (s *Memory) FailWebhookDelivery(_ context.Context, id string, lastError string, responseCode, latencyMs int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	_ = lastError
	_ = responseCode
	_ = latencyMs
	d.Attempts++
	d.Done = true
	return nil
}
