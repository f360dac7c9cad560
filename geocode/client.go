// Package geocode is a client for Photon-compatible reverse geocoding providers.
package geocode

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/waypoint/am"
	"github.com/teranos/waypoint/errors"
	"github.com/teranos/waypoint/internal/httpclient"
	"github.com/teranos/waypoint/logger"
	"github.com/teranos/waypoint/pulse/budget"
)

// APIKeyHeader carries the provider API key when one is configured
const APIKeyHeader = "X-API-Key"

// Reverser resolves a coordinate to a provider response
type Reverser interface {
	Reverse(ctx context.Context, lat, lon float64) (*Response, error)
}

// Config configures a Client
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 = unpaced
	DailyQuota        int     // 0 = unlimited
	BlockPrivateIP    bool
}

// ConfigFrom converts the geocoding section of the application config
func ConfigFrom(g am.GeocodingConfig) Config {
	return Config{
		BaseURL:           g.BaseURL(),
		APIKey:            g.APIKey,
		Timeout:           time.Duration(g.TimeoutSeconds) * time.Second,
		RequestsPerSecond: g.RequestsPerSecond,
		DailyQuota:        g.DailyQuota,
		BlockPrivateIP:    g.BlockPrivateIP,
	}
}

// Client issues one GET /reverse per coordinate, paced per second and capped per day
type Client struct {
	http    *httpclient.SaferClient
	baseURL string
	apiKey  string
	pace    *rate.Limiter
	quota   *budget.Limiter
	logger  *zap.SugaredLogger
}

// New creates a client with its own guarded HTTP client
func New(cfg Config, log *zap.SugaredLogger) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := httpclient.New(httpclient.Options{
		Timeout:        timeout,
		BlockPrivateIP: cfg.BlockPrivateIP,
	})
	return NewWithHTTP(cfg, hc, log)
}

// NewWithHTTP creates a client over an existing SaferClient
func NewWithHTTP(cfg Config, hc *httpclient.SaferClient, log *zap.SugaredLogger) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := hc.ValidateURL(base); err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "invalid geocoding provider URL"),
			"check geocoding.host and geocoding.https in waypoint.toml")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	pace := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		pace = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		http:    hc,
		baseURL: base,
		apiKey:  cfg.APIKey,
		pace:    pace,
		quota:   budget.NewLimiter(cfg.DailyQuota, 24*time.Hour),
		logger:  log.Named("geocode"),
	}, nil
}

// Reverse looks up the address at (lat, lon).
// Quota exhaustion is reported as an error wrapping budget.ErrQuotaExceeded.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Response, error) {
	if err := c.pace.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "geocoding rate limiter")
	}
	if err := c.quota.Allow(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	target := c.baseURL + "/reverse?" + q.Encode()

	var header http.Header
	if c.apiKey != "" {
		header = http.Header{APIKeyHeader: []string{c.apiKey}}
	}

	var resp Response
	if err := c.http.GetJSON(ctx, target, header, &resp); err != nil {
		return nil, errors.Wrapf(err, "reverse geocode %.6f,%.6f", lat, lon)
	}

	c.logger.Debugw("Reverse geocoded",
		"lat", lat,
		"lon", lon,
		logger.FieldCount, len(resp.Features))
	return &resp, nil
}

// QuotaRemaining returns calls left in the daily window, or -1 when unlimited
func (c *Client) QuotaRemaining() int {
	_, remaining := c.quota.Stats()
	return remaining
}
