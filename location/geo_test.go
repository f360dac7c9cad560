package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	t.Run("same point", func(t *testing.T) {
		assert.Equal(t, 0.0, Haversine(48.8566, 2.3522, 48.8566, 2.3522))
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		// 2*pi*R/360
		assert.InDelta(t, 111195.08, Haversine(0, 0, 1, 0), 0.01)
	})

	t.Run("berlin to paris", func(t *testing.T) {
		d := Haversine(52.5200, 13.4050, 48.8566, 2.3522)
		assert.InDelta(t, 877_500, d, 1_500)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Haversine(35.6762, 139.6503, -33.8688, 151.2093)
		b := Haversine(-33.8688, 151.2093, 35.6762, 139.6503)
		assert.InDelta(t, a, b, 1e-6)
	})

	t.Run("antipodes", func(t *testing.T) {
		assert.InDelta(t, 3.14159265*EarthRadiusMeters, Haversine(0, 0, 0, 180), 1)
	})
}

func TestPointHelpers(t *testing.T) {
	p := Point{Latitude: 0, Longitude: 0}
	q := Point{Latitude: 0, Longitude: 1}
	assert.True(t, p.IsZeroIsland())
	assert.False(t, q.IsZeroIsland())
	assert.InDelta(t, Haversine(0, 0, 0, 1), p.DistanceTo(q), 1e-9)
}
