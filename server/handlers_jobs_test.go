package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/waypoint/pulse/async"
)

func TestSubmitAndListJobs(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodPost, "/api/jobs", SubmitJobRequest{Job: "Sleep", User: "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created SubmitJobResponse
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)

	resp = env.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list JobsResponse
	decodeBody(t, resp, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, created.ID, list.Jobs[0].ID)
	assert.Equal(t, "alice", list.Jobs[0].UserID)
	assert.Equal(t, "named:sleep", list.Jobs[0].Category)
	assert.Equal(t, async.JobStateQueued, list.Jobs[0].State)
	assert.False(t, list.Jobs[0].Running)
}

func TestSubmitJobParamsAreConverted(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodPost, "/api/jobs", `{"job": "Scale", "user": "alice", "params": {"factor": 2.5, "extra": true}}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, env.manager.HasPending("alice", "Scale"))
}

func TestSubmitJobRejections(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		kind  string
		param string
	}{
		{name: "unknown type", body: `{"job": "Teleport", "user": "alice"}`, kind: "unknown_type"},
		{name: "missing user", body: `{"job": "Sleep"}`, kind: "missing_user"},
		{name: "missing parameter", body: `{"job": "Scale", "user": "alice"}`, kind: "missing", param: "factor"},
		{name: "mistyped parameter", body: `{"job": "Scale", "user": "alice", "params": {"factor": "lots"}}`, kind: "invalid_type", param: "factor"},
		{name: "missing job type", body: `{"user": "alice"}`},
		{name: "malformed body", body: `{"job": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 0)

			resp := env.do(t, http.MethodPost, "/api/jobs", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body ErrorResponse
			decodeBody(t, resp, &body)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.kind, body.Kind)
			assert.Equal(t, tt.param, body.Param)
			assert.Empty(t, env.manager.ListJobs(), "rejected requests never reach the queue")
		})
	}
}

func TestSubmitJobWhileStopping(t *testing.T) {
	env := newTestEnv(t, 0)
	env.manager.Stop(false)

	resp := env.do(t, http.MethodPost, "/api/jobs", SubmitJobRequest{Job: "Sleep", User: "alice"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCancelQueuedJob(t *testing.T) {
	env := newTestEnv(t, 0)
	job, err := env.manager.Submit("Sleep", nil, "alice")
	require.NoError(t, err)

	resp := env.do(t, http.MethodDelete, "/api/jobs/"+job.ID(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body CancelJobResponse
	decodeBody(t, resp, &body)
	assert.True(t, body.Found)

	assert.Empty(t, env.manager.ListJobs())
	assert.Equal(t, async.JobStateFailed, job.State())
	assert.ErrorIs(t, job.Err(), async.ErrCancelledBeforeStart)
}

func TestCancelUnknownJob(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodDelete, "/api/jobs/no-such-job", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body CancelJobResponse
	decodeBody(t, resp, &body)
	assert.False(t, body.Found)
}

func TestBlockingCancelWaitsForRunningJob(t *testing.T) {
	env := newTestEnv(t, 1)
	job, err := env.manager.Submit("Sleep", nil, "alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return job.State() == async.JobStateRunning
	}, 2*time.Second, 5*time.Millisecond)

	resp := env.do(t, http.MethodDelete, "/api/jobs/"+job.ID()+"?blocking=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.True(t, job.State().IsTerminal(), "blocking cancel returns only after the job finished")
	assert.Equal(t, async.JobStateDone, job.State(), "a cooperative stop is not a failure")
}

func TestWrongMethodIsRejected(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodPut, "/api/jobs", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestJobTypes(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodGet, "/api/jobs/types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var types []async.TypeDescriptor
	decodeBody(t, resp, &types)
	require.Len(t, types, 2)
	assert.Equal(t, "Scale", types[0].Name)
	assert.Equal(t, "exclusive", types[0].Category)
	require.Len(t, types[0].Params, 1)
	assert.Equal(t, async.ParamSpec{Name: "factor", Type: async.ParamFloat}, types[0].Params[0])
	assert.Equal(t, "Sleep", types[1].Name)
	assert.Empty(t, types[1].Params)
}

func TestJobHistory(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodGet, "/api/jobs/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var empty HistoryResponse
	decodeBody(t, resp, &empty)
	assert.NotNil(t, empty.Runs)
	assert.Zero(t, empty.Count)

	for i := 0; i < 3; i++ {
		job, err := env.manager.Submit("Sleep", nil, "alice")
		require.NoError(t, err)
		require.True(t, env.manager.Cancel(job.ID(), false))
	}

	resp = env.do(t, http.MethodGet, "/api/jobs/history?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history HistoryResponse
	decodeBody(t, resp, &history)
	require.Equal(t, 2, history.Count)
	for _, run := range history.Runs {
		assert.Equal(t, "Sleep", run.Type)
		assert.Equal(t, async.JobStateFailed, run.State)
		assert.Equal(t, async.ErrorCodeCancelled, run.ErrorCode)
	}
}

func TestJobHistoryWithoutStore(t *testing.T) {
	env := newTestEnv(t, 0)
	env.manager.SetHistory(nil)

	resp := env.do(t, http.MethodGet, "/api/jobs/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
