package server

import (
	"time"

	"github.com/teranos/waypoint/location"
	"github.com/teranos/waypoint/pulse/async"
)

const (
	// MaxClients is the maximum number of concurrent job feed clients
	MaxClients = 100
	// MaxClientMessageQueueSize is the size of per-client message queues
	MaxClientMessageQueueSize = 16
	// ShutdownTimeout bounds the HTTP drain. The scheduler has its own deadline.
	ShutdownTimeout = 15 * time.Second
)

// ServerState represents the server lifecycle state
type ServerState int

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

func (s ServerState) String() string {
	switch s {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SubmitJobRequest is the body of POST /api/jobs
type SubmitJobRequest struct {
	Job    string                 `json:"job"`
	User   string                 `json:"user"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// SubmitJobResponse is returned with 201 Created
type SubmitJobResponse struct {
	ID string `json:"id"`
}

// CancelJobResponse is returned by DELETE /api/jobs/{id}
type CancelJobResponse struct {
	Found bool `json:"found"`
}

// JobsResponse lists queued and running jobs
type JobsResponse struct {
	Jobs  []async.JobSnapshot `json:"jobs"`
	Count int                 `json:"count"`
}

// HistoryResponse lists finished jobs, newest first
type HistoryResponse struct {
	Runs  []async.JobRun `json:"runs"`
	Count int            `json:"count"`
}

// StatsResponse carries a user's daily statistics ordered by date
type StatsResponse struct {
	User  string                    `json:"user"`
	Days  []location.DailyStatistic `json:"days"`
	Count int                       `json:"count"`
}

// HealthResponse is served by /health
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	BuildTime   string `json:"build_time"`
	State       string `json:"server_state"`
	Workers     int    `json:"workers"`
	FeedClients int    `json:"feed_clients"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string   `json:"error"`
	Kind  string   `json:"kind,omitempty"`
	Param string   `json:"param,omitempty"`
	Hints []string `json:"hints,omitempty"`
}

// FeedRequest is what a job feed client sends to poll
type FeedRequest struct {
	Type string `json:"type"`
}

// FeedMessage answers one FeedRequest
type FeedMessage struct {
	Type      string              `json:"type"`
	Jobs      []async.JobSnapshot `json:"jobs"`
	Error     string              `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}
