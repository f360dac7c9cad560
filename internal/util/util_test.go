package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.5, 0, 1))
	assert.Equal(t, 1.0, Clamp(1.5, 0, 1))
	assert.Equal(t, 0.25, Clamp(0.25, 0, 1))
}

func TestLerp(t *testing.T) {
	assert.InDelta(t, 0.95, Lerp(0.9, 1.0, 0.5), 1e-9)
	assert.Equal(t, 1.0, Lerp(0.9, 1.0, 2))
}

func TestPtr(t *testing.T) {
	p := Ptr(4.5)
	assert.Equal(t, 4.5, *p)

	*p = 1
	assert.NotSame(t, p, Ptr(4.5), "each call returns a fresh pointer")
}
