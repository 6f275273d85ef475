package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres persists solve history, subscriptions and webhook deliveries.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	p := &Postgres{db: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) ensureSchema() error {
	_, err := p.db.Exec(`
CREATE TABLE IF NOT EXISTS solves (
    id            text PRIMARY KEY,
    created_at    timestamptz NOT NULL,
    vehicles      int NOT NULL,
    rides         int NOT NULL,
    dropped_rides int NOT NULL,
    duration_ms   bigint NOT NULL,
    error_message text,
    problem       jsonb,
    solution      jsonb
);
CREATE TABLE IF NOT EXISTS subscriptions (
    id     text PRIMARY KEY,
    url    text NOT NULL,
    events jsonb NOT NULL,
    secret text
);
CREATE TABLE IF NOT EXISTS webhook_deliveries (
    id              text PRIMARY KEY,
    subscription_id text,
    event_type      text NOT NULL,
    url             text NOT NULL,
    secret          text,
    payload         bytea,
    attempts        int NOT NULL DEFAULT 0,
    status          text NOT NULL DEFAULT 'pending',
    next_attempt_at timestamptz NOT NULL DEFAULT now(),
    last_error      text,
    response_code   int,
    latency_ms      int
);`)
	return err
}

func (p *Postgres) SaveSolve(ctx context.Context, rec SolveRecord) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO solves (id, created_at, vehicles, rides, dropped_rides, duration_ms, error_message, problem, solution)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.CreatedAt, rec.Vehicles, rec.Rides, rec.DroppedRides, rec.DurationMs,
		nullIfEmpty(rec.ErrorMessage), []byte(rec.Problem), []byte(rec.Solution))
	return err
}

func (p *Postgres) GetSolve(ctx context.Context, id string) (SolveRecord, error) {
	var rec SolveRecord
	var errMsg sql.NullString
	err := p.db.QueryRowContext(ctx, `
SELECT id, created_at, vehicles, rides, dropped_rides, duration_ms, error_message, problem, solution
FROM solves WHERE id=$1`, id).Scan(
		&rec.ID, &rec.CreatedAt, &rec.Vehicles, &rec.Rides, &rec.DroppedRides, &rec.DurationMs,
		&errMsg, &rec.Problem, &rec.Solution)
	if errors.Is(err, sql.ErrNoRows) {
		return SolveRecord{}, ErrNotFound
	}
	if err != nil {
		return SolveRecord{}, err
	}
	rec.ErrorMessage = errMsg.String
	return rec, nil
}

func (p *Postgres) ListSolves(ctx context.Context, limit int) ([]SolveRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
SELECT id, created_at, vehicles, rides, dropped_rides, duration_ms, error_message
FROM solves ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SolveRecord
	for rows.Next() {
		var rec SolveRecord
		var errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Vehicles, &rec.Rides, &rec.DroppedRides, &rec.DurationMs, &errMsg); err != nil {
			return nil, err
		}
		rec.ErrorMessage = errMsg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	sub.ID = uuid.New().String()
	events, err := json.Marshal(sub.Events)
	if err != nil {
		return sub, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
		sub.ID, sub.URL, events, nullIfEmpty(sub.Secret))
	return sub, err
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, events, secret FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]Subscription, error) {
	subs, err := p.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	var out []Subscription
	for _, sub := range subs {
		for _, e := range sub.Events {
			if e == eventType || e == "*" {
				out = append(out, sub)
				break
			}
		}
	}
	return out, nil
}

func scanSubscriptions(rows *sql.Rows) ([]Subscription, error) {
	var out []Subscription
	for rows.Next() {
		var sub Subscription
		var events []byte
		var secret sql.NullString
		if err := rows.Scan(&sub.ID, &sub.URL, &events, &secret); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(events, &sub.Events); err != nil {
			return nil, err
		}
		sub.Secret = secret.String
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `
INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload)
VALUES ($1,$2,$3,$4,$5,$6)`, id, subscriptionID, eventType, url, nullIfEmpty(secret), payload)
	return id, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `
SELECT id, event_type, url, COALESCE(secret,''), payload, attempts
FROM webhook_deliveries
WHERE status='pending' AND next_attempt_at <= now()
ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	status := "pending"
	if success {
		status = "delivered"
	}
	var next any
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	} else {
		next = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `
UPDATE webhook_deliveries
SET attempts=attempts+1, status=$2, next_attempt_at=$3, last_error=$4, response_code=$5, latency_ms=$6
WHERE id=$1`, id, status, next, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `
UPDATE webhook_deliveries
SET attempts=attempts+1, status='failed', last_error=$2, response_code=$3, latency_ms=$4
WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
