package async

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/waypoint/errors"
)

type accuracyFilter struct {
	max float64
}

func (f *accuracyFilter) Run(ctx context.Context, job *Job) error { return nil }

func testCatalog() *Catalog {
	c := NewCatalog()
	c.Register(JobType{
		Name:     "FilterLargeAccuracy",
		Category: Exclusive,
		Params: []ParamSpec{
			{Name: "max_accuracy", Type: ParamFloat},
		},
		Build: func(p Params) (Runner, error) {
			return &accuracyFilter{max: p.Float("max_accuracy")}, nil
		},
	})
	c.Register(JobType{
		Name:     "Import",
		Category: Named("import"),
		Params: []ParamSpec{
			{Name: "import_id", Type: ParamString},
			{Name: "source", Type: ParamString},
			{Name: "batch_size", Type: ParamInt, Optional: true},
			{Name: "dry_run", Type: ParamBool, Optional: true},
		},
		Build: func(p Params) (Runner, error) {
			return RunnerFunc(func(context.Context, *Job) error { return nil }), nil
		},
	})
	c.Register(JobType{
		Name:     "Vacuum",
		Category: Exclusive,
		Global:   true,
		Build: func(p Params) (Runner, error) {
			return RunnerFunc(func(context.Context, *Job) error { return nil }), nil
		},
	})
	return c
}

func TestCatalogBuildConvertsParameters(t *testing.T) {
	c := testCatalog()

	job, err := c.Build("FilterLargeAccuracy", map[string]interface{}{"max_accuracy": "55.5"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "FilterLargeAccuracy", job.Type())
	assert.Equal(t, "alice", job.UserID())
	assert.Equal(t, Exclusive, job.Category())
	assert.Equal(t, JobStateQueued, job.State())
	assert.Equal(t, 55.5, job.runner.(*accuracyFilter).max)
}

func TestCatalogValidateTypes(t *testing.T) {
	c := testCatalog()

	_, params, err := c.Validate("Import", map[string]interface{}{
		"import_id":  "imp-1",
		"source":     "overland.json",
		"batch_size": json.Number("250"),
		"dry_run":    "true",
		"unexpected": 1,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "imp-1", params.String("import_id"))
	assert.Equal(t, int64(250), params.Int("batch_size"))
	assert.True(t, params.Bool("dry_run"))
	assert.False(t, params.Has("unexpected"))

	_, params, err = c.Validate("Import", map[string]interface{}{"import_id": "imp-2", "source": "x"}, "alice")
	require.NoError(t, err)
	assert.False(t, params.Has("batch_size"))
	assert.Equal(t, int64(0), params.Int("batch_size"))
}

func TestCatalogRejections(t *testing.T) {
	c := testCatalog()

	tests := []struct {
		name   string
		job    string
		params map[string]interface{}
		user   string
		kind   ParamErrorKind
	}{
		{name: "unknown type", job: "Teleport", user: "alice", kind: ParamErrUnknownType},
		{name: "missing user", job: "FilterLargeAccuracy", params: map[string]interface{}{"max_accuracy": 5.0}, kind: ParamErrMissingUser},
		{name: "missing parameter", job: "Import", params: map[string]interface{}{"import_id": "x"}, user: "alice", kind: ParamErrMissing},
		{name: "null parameter", job: "Import", params: map[string]interface{}{"import_id": "x", "source": nil}, user: "alice", kind: ParamErrMissing},
		{name: "string for float", job: "FilterLargeAccuracy", params: map[string]interface{}{"max_accuracy": "wide"}, user: "alice", kind: ParamErrInvalidType},
		{name: "number for string", job: "Import", params: map[string]interface{}{"import_id": 7.0, "source": "x"}, user: "alice", kind: ParamErrInvalidType},
		{name: "fraction for int", job: "Import", params: map[string]interface{}{"import_id": "x", "source": "y", "batch_size": 2.5}, user: "alice", kind: ParamErrInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Build(tt.job, tt.params, tt.user)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidRequestError(err), "validation errors unwrap to ErrInvalidRequest")

			var pe *ParamError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.kind, pe.Kind)
			assert.NotEmpty(t, pe.Error())
		})
	}
}

func TestGlobalTypeDropsOwner(t *testing.T) {
	c := testCatalog()

	job, err := c.Build("Vacuum", nil, "")
	require.NoError(t, err)
	assert.True(t, job.IsGlobal())

	job, err = c.Build("Vacuum", nil, "alice")
	require.NoError(t, err)
	assert.True(t, job.IsGlobal())
}

func TestCatalogDescribe(t *testing.T) {
	descriptors := testCatalog().Describe()
	require.Len(t, descriptors, 3)

	assert.Equal(t, "FilterLargeAccuracy", descriptors[0].Name)
	assert.Equal(t, "exclusive", descriptors[0].Category)
	assert.Equal(t, []ParamSpec{{Name: "max_accuracy", Type: ParamFloat}}, descriptors[0].Params)

	assert.Equal(t, "Import", descriptors[1].Name)
	assert.Equal(t, "named:import", descriptors[1].Category)

	assert.Equal(t, "Vacuum", descriptors[2].Name)
	assert.NotNil(t, descriptors[2].Params)
}

func TestCatalogRegisterPanics(t *testing.T) {
	c := testCatalog()
	build := func(Params) (Runner, error) { return nil, nil }

	assert.Panics(t, func() { c.Register(JobType{Name: "Import", Build: build}) }, "duplicate")
	assert.Panics(t, func() { c.Register(JobType{Build: build}) }, "empty name")
	assert.Panics(t, func() { c.Register(JobType{Name: "NoBuilder"}) }, "nil builder")
}

func TestSubmitThroughManager(t *testing.T) {
	m := NewManager(ManagerConfig{Workers: 0}, testCatalog(), createTestLogger())

	job, err := m.Submit("FilterLargeAccuracy", map[string]interface{}{"max_accuracy": 30}, "alice")
	require.NoError(t, err)
	assert.True(t, m.HasPending("alice", "FilterLargeAccuracy"))

	got, ok := m.Get(job.ID())
	require.True(t, ok)
	assert.Same(t, job, got)

	_, err = m.Submit("FilterLargeAccuracy", map[string]interface{}{}, "alice")
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Len(t, m.ListJobs(), 1, "rejected requests never reach the queue")
}
