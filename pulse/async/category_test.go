package async

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runningJob(userID string, cat Category) *Job {
	return NewJob("test", userID, cat, RunnerFunc(nil))
}

func TestAdmit(t *testing.T) {
	tests := []struct {
		name      string
		candidate *Job
		running   []*Job
		want      bool
	}{
		{
			name:      "none is always admissible",
			candidate: runningJob("alice", None),
			running:   []*Job{runningJob("alice", Exclusive)},
			want:      true,
		},
		{
			name:      "named blocked by same name for same user",
			candidate: runningJob("alice", Named("statistics")),
			running:   []*Job{runningJob("alice", Named("statistics"))},
			want:      false,
		},
		{
			name:      "named allowed for a different user",
			candidate: runningJob("alice", Named("statistics")),
			running:   []*Job{runningJob("bob", Named("statistics"))},
			want:      true,
		},
		{
			name:      "different names coexist",
			candidate: runningJob("alice", Named("geocoding")),
			running:   []*Job{runningJob("alice", Named("statistics"))},
			want:      true,
		},
		{
			name:      "global named conflicts with every user",
			candidate: runningJob("", Named("statistics")),
			running:   []*Job{runningJob("bob", Named("statistics"))},
			want:      false,
		},
		{
			name:      "running global named blocks user named",
			candidate: runningJob("alice", Named("statistics")),
			running:   []*Job{runningJob("", Named("statistics"))},
			want:      false,
		},
		{
			name:      "running exclusive blocks categorized anywhere",
			candidate: runningJob("alice", Named("geocoding")),
			running:   []*Job{runningJob("bob", Exclusive)},
			want:      false,
		},
		{
			name:      "exclusive blocked by categorized job of same user",
			candidate: runningJob("alice", Exclusive),
			running:   []*Job{runningJob("alice", Named("speed"))},
			want:      false,
		},
		{
			name:      "exclusive ignores uncategorized jobs",
			candidate: runningJob("alice", Exclusive),
			running:   []*Job{runningJob("alice", None), runningJob("bob", None)},
			want:      true,
		},
		{
			name:      "exclusive allowed beside another user's named job",
			candidate: runningJob("alice", Exclusive),
			running:   []*Job{runningJob("bob", Named("statistics"))},
			want:      true,
		},
		{
			name:      "global exclusive needs no categorized job at all",
			candidate: runningJob("", Exclusive),
			running:   []*Job{runningJob("bob", Named("statistics"))},
			want:      false,
		},
		{
			name:      "empty running set admits exclusive",
			candidate: runningJob("alice", Exclusive),
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Admit(tt.candidate, tt.running))
		})
	}
}

func TestCategoryStringRoundTrip(t *testing.T) {
	for _, c := range []Category{None, Exclusive, Named("geocoding")} {
		parsed, err := ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	_, err := ParseCategory("named:")
	assert.Error(t, err)
	_, err = ParseCategory("sometimes")
	assert.Error(t, err)
}
