package api

import (
	"strings"

	"paraplan/internal/config"
	"paraplan/internal/osrm"
	"paraplan/internal/store"
	"paraplan/internal/webhooks"
)

// Server wires the engine's collaborators: the road-network client, the
// store for solve history, the webhook publisher and the event broker.
type Server struct {
	Cfg    config.Config
	OSRM   *osrm.Client
	Store  store.Store
	Pub    *webhooks.Publisher
	Broker EventBroker
}

// NewServer builds a Server from configuration. Without DATABASE_URL the
// in-memory store backs history; without REDIS_URL events stay in-process.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	var cache *osrm.MatrixCache
	if cfg.RedisURL != "" {
		if c, err := osrm.NewMatrixCache(cfg.RedisURL); err == nil {
			cache = c
		}
	}

	return &Server{
		Cfg:    cfg,
		OSRM:   osrm.NewClient(cfg.OSRM, cache),
		Store:  s,
		Pub:    webhooks.NewPublisher(s),
		Broker: broker,
	}, nil
}

// NewWebhookWorker creates the background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
