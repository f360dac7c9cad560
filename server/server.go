// Package server exposes the job scheduler, statistics and host metrics over
// HTTP, plus a websocket on which clients poll the job list.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/pulse/async"
)

// StatsStore is what the statistics endpoint reads from
type StatsStore interface {
	GetUser(ctx context.Context, id string) (*location.User, error)
	ListDailyStatistics(ctx context.Context, userID string) ([]location.DailyStatistic, error)
}

// Config wires a Server to its collaborators
type Config struct {
	Manager        *async.Manager
	Store          StatsStore
	AllowedOrigins []string
	Logger         *zap.SugaredLogger
}

// Server serves the waypoint HTTP API
type Server struct {
	manager        *async.Manager
	store          StatsStore
	allowedOrigins []string
	logger         *zap.SugaredLogger
	handler        http.Handler

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	httpServer *http.Server

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	feedDrops  atomic.Int64
	state      atomic.Int32
	hubStarted atomic.Bool
}

// New creates a server. The job feed hub starts with the first feed connection.
func New(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, errors.New("server requires a job manager")
	}
	if cfg.Store == nil {
		return nil, errors.New("server requires a statistics store")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		manager:        cfg.Manager,
		store:          cfg.Store,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         log.Named("server"),
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		ctx:            ctx,
		cancel:         cancel,
	}
	s.handler = s.routes()
	s.state.Store(int32(ServerStateRunning))
	return s, nil
}

// Handler returns the routed, middleware-wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// getState returns the current server state
func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", newState.String())
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
