package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/pulse/async"
)

// Feed request and message types
const (
	FeedRequestJobs = "jobs"
	FeedMessageJobs = "jobs"
	FeedMessageErr  = "error"
)

// HandleJobFeed upgrades to a websocket on which the client polls the job
// list. Every {"type":"jobs"} request is answered with one snapshot; the
// server never sends unrequested job data.
func (s *Server) HandleJobFeed(w http.ResponseWriter, r *http.Request) {
	s.ensureHub()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request
		s.logger.Warnw("Job feed upgrade failed", logger.FieldError, err)
		return
	}

	client := newClient(s, conn)
	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

// ensureHub starts the hub goroutine once
func (s *Server) ensureHub() {
	if !s.hubStarted.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runHub()
	}()
}

// runHub owns client registration
func (s *Server) runHub() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max feed clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients)
		client.close()
		return
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Job feed client connected", "client_id", client.id, "total_clients", total)
}

func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	_, ok := s.clients[client]
	if ok {
		delete(s.clients, client)
	}
	total := len(s.clients)
	s.mu.Unlock()

	if ok {
		client.close()
		s.logger.Infow("Job feed client disconnected", "client_id", client.id, "total_clients", total)
	}
}

// answer builds the reply to one client request
func (s *Server) answer(data []byte) []byte {
	var req FeedRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return feedError("request must be a JSON object")
	}
	switch req.Type {
	case FeedRequestJobs:
		message, err := json.Marshal(FeedMessage{
			Type:      FeedMessageJobs,
			Jobs:      s.manager.ListJobs(),
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			s.logger.Errorw("Failed to encode job feed", logger.FieldError, err)
			return feedError("failed to encode job list")
		}
		return message
	default:
		return feedError("unknown request type " + req.Type)
	}
}

func feedError(msg string) []byte {
	message, _ := json.Marshal(FeedMessage{
		Type:      FeedMessageErr,
		Jobs:      []async.JobSnapshot{},
		Error:     msg,
		Timestamp: time.Now().UTC(),
	})
	return message
}
