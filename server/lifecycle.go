package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/logger"
)

// Start listens on addr and serves until Shutdown. Returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WithHint(errors.Wrapf(err, "failed to listen on %s", addr),
			"another process may hold the port; set server.port in waypoint.toml")
	}
	return s.Serve(listener)
}

// Serve accepts connections on l until Shutdown
func (s *Server) Serve(l net.Listener) error {
	// No WriteTimeout: blocking cancels wait for the job to finish
	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Infow("HTTP server listening", logger.FieldHost, l.Addr().String())
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Shutdown drains HTTP requests, closes feed clients and stops the hub.
// The job manager is left to the caller, which owns its lifecycle.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	s.mu.Lock()
	srv := s.httpServer
	clientsToClose := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clientsToClose = append(clientsToClose, client)
		delete(s.clients, client)
	}
	s.mu.Unlock()

	if len(clientsToClose) > 0 {
		s.logger.Infow("Closing feed connections", logger.FieldCount, len(clientsToClose))
		for _, client := range clientsToClose {
			client.close()
		}
	}

	var shutdownErr error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "http server shutdown")
		}
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("All server goroutines stopped cleanly")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Server goroutine shutdown timed out", "timeout", ShutdownTimeout)
	}

	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete", "feed_drops", s.feedDrops.Load())
	return shutdownErr
}
