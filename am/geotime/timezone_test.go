package geotime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimezone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Europe/Amsterdam", "Europe/Amsterdam"},
		{"europe/berlin", "Europe/Berlin"},
		{"america/new_york", "America/New_York"},
		{"PST", "America/Los_Angeles"},
		{"cet", "Europe/Berlin"},
		{"Tokyo", "Asia/Tokyo"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			actual, err := NormalizeTimezone(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestNormalizeTimezoneRejectsUnknown(t *testing.T) {
	_, err := NormalizeTimezone("Atlantis/Lost_City")
	assert.Error(t, err)

	_, err = NormalizeTimezone("  ")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	loc, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = Resolve("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = Resolve("europe/paris")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", loc.String())

	loc, err = Resolve("local")
	require.NoError(t, err)
	assert.NotNil(t, loc)
}
