package server

import (
	"net/http"
	"strings"

	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/pulse/async"
)

const (
	// Default and max limits for job history queries
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HandleListJobs lists queued then running jobs
func (s *Server) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.manager.ListJobs()
	writeJSON(w, http.StatusOK, JobsResponse{Jobs: jobs, Count: len(jobs)})
}

// HandleSubmitJob validates a job request through the catalog and enqueues it.
// Unknown types and missing or mistyped parameters are rejected with 400.
func (s *Server) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	req.Job = strings.TrimSpace(req.Job)
	if req.Job == "" {
		writeError(w, http.StatusBadRequest, "Missing job type")
		return
	}

	job, err := s.manager.Submit(req.Job, req.Params, req.User)
	if err != nil {
		handleError(w, logger.FromContext(r.Context(), s.logger), err, "failed to submit job")
		return
	}

	logger.FromContext(r.Context(), s.logger).Infow("Job submitted",
		logger.FieldJobID, shortID(job.ID()),
		logger.FieldJobType, job.Type(),
		logger.FieldUserID, job.UserID())

	writeJSON(w, http.StatusCreated, SubmitJobResponse{ID: job.ID()})
}

// HandleCancelJob stops a running job or drops a queued one.
// With ?blocking=true the response waits until the job is terminal.
func (s *Server) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "Missing job ID")
		return
	}
	blocking := parseBoolQueryParam(r, "blocking", false)

	if !s.manager.Cancel(jobID, blocking) {
		writeJSON(w, http.StatusNotFound, CancelJobResponse{Found: false})
		return
	}

	logger.FromContext(r.Context(), s.logger).Infow("Job cancelled",
		logger.FieldJobID, shortID(jobID),
		"blocking", blocking)
	writeJSON(w, http.StatusOK, CancelJobResponse{Found: true})
}

// HandleJobTypes describes every registered job type and its parameters
func (s *Server) HandleJobTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Catalog().Describe())
}

// HandleJobHistory lists finished jobs, newest first
func (s *Server) HandleJobHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQueryParam(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)

	runs, err := s.manager.History(r.Context(), limit)
	if err != nil {
		handleError(w, s.logger, err, "failed to list job history")
		return
	}
	if runs == nil {
		runs = []async.JobRun{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Runs: runs, Count: len(runs)})
}
