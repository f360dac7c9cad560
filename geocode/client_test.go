package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/waypoint/am"
	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/internal/httpclient"
	"github.com/teranos/waypoint/pulse/budget"
)

const berlinResponse = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "properties": {"country": "Germany", "city": "Berlin", "state": "Berlin", "postcode": "10117", "street": "Unter den Linden", "housenumber": "77"}},
		{"type": "Feature", "properties": {"country": "Germany", "city": "Potsdam"}}
	]
}`

func newTestClient(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = srv.URL
	c, err := NewWithHTTP(cfg, httpclient.WrapClient(srv.Client()), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return c
}

func TestReverseSendsCoordinatesAndKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "52.5163", r.URL.Query().Get("lat"))
		assert.Equal(t, "13.3777", r.URL.Query().Get("lon"))
		assert.Equal(t, "secret", r.Header.Get(APIKeyHeader))
		assert.Equal(t, httpclient.DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(berlinResponse))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{APIKey: "secret"})
	resp, err := c.Reverse(context.Background(), 52.5163, 13.3777)
	require.NoError(t, err)

	addr := resp.Address()
	require.NotNil(t, addr)
	assert.Equal(t, "Germany", addr.Country)
	assert.Equal(t, "Berlin", addr.City, "first feature wins")
	assert.Equal(t, "10117", addr.PostalCode)
	assert.Equal(t, "Unter den Linden", addr.Street)
	assert.Equal(t, "77", addr.StreetNumber)
}

func TestReverseWithoutKeyOmitsHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(APIKeyHeader))
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, Config{}).Reverse(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Nil(t, resp.Address(), "no feature means no address")
}

func TestReverseProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, Config{}).Reverse(context.Background(), 1, 2)
	require.Error(t, err)

	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.True(t, statusErr.Retryable())
}

func TestReverseRespectsDailyQuota(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{DailyQuota: 2})
	ctx := context.Background()

	_, err := c.Reverse(ctx, 1, 1)
	require.NoError(t, err)
	_, err = c.Reverse(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, c.QuotaRemaining())

	_, err = c.Reverse(ctx, 1, 1)
	assert.True(t, errors.Is(err, budget.ErrQuotaExceeded))
	assert.Equal(t, int32(2), calls.Load(), "rejected calls never reach the provider")
}

func TestReversePacingHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{RequestsPerSecond: 0.01})
	_, err := c.Reverse(context.Background(), 1, 1)
	require.NoError(t, err, "burst allows the first call")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Reverse(ctx, 1, 1)
	assert.Error(t, err)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://photon.example"}, nil)
	require.Error(t, err)
	assert.Contains(t, errors.FlattenHints(err), "geocoding.host")
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(am.GeocodingConfig{
		Host:           "photon.example:2322",
		HTTPS:          false,
		APIKey:         "k",
		TimeoutSeconds: 3,
		DailyQuota:     1000,
	})
	assert.Equal(t, "http://photon.example:2322", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 1000, cfg.DailyQuota)
}
