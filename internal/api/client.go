// Package api is the HTTP client of the downtime persistence service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"planboard/internal/clash"
	"planboard/internal/daterange"
	"planboard/internal/dataset"
	"planboard/internal/downtime"
	"planboard/internal/metrics"
	"planboard/internal/model"
)

var (
	// ErrStatus wraps non-2xx responses.
	ErrStatus = errors.New("api: unexpected status")
	// ErrSuperseded is returned by a request cancelled by an identical newer one.
	ErrSuperseded = errors.New("api: superseded by a newer identical request")
)

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RatePerSecond limits outbound requests; zero disables the limit.
	RatePerSecond float64
	Burst         int
}

// Client calls the downtime persistence API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration

	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	cancel     context.CancelFunc
	superseded bool
}

// NewClient constructs a client.
func NewClient(opts Options, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     logger,
		inflight:   make(map[string]*flight),
	}
}

// UseRedisCache configures optional Redis caching for schedule reads.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// ListDowntimes returns the downtimes of a resource touching window.
func (c *Client) ListDowntimes(ctx context.Context, resourceID int64, window daterange.DateRange) ([]*downtime.Downtime, error) {
	endpoint := fmt.Sprintf("%s/api/v1/resources/%d/downtimes?%s", c.baseURL, resourceID, windowQuery(window))
	var wrap struct {
		Downtimes []DowntimePayload `json:"downtimes"`
	}
	if err := c.send(ctx, "list_downtimes", http.MethodGet, endpoint, nil, &wrap); err != nil {
		return nil, err
	}
	out := make([]*downtime.Downtime, 0, len(wrap.Downtimes))
	for _, p := range wrap.Downtimes {
		d, err := p.Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// CreateDowntime stores d and applies resolution to its clashing bookings.
func (c *Client) CreateDowntime(ctx context.Context, d *downtime.Downtime, resolution clash.Resolution) (*downtime.Downtime, error) {
	endpoint := fmt.Sprintf("%s/api/v1/downtimes", c.baseURL)
	body := CreateDowntimeRequest{Downtime: EncodeDowntime(d), Resolution: string(resolution)}
	var resp DowntimePayload
	if err := c.send(ctx, "create_downtime", http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}
	c.invalidate(ctx, d.ResourceIDs)
	return resp.Decode()
}

// UpdateDowntime replaces a stored downtime.
func (c *Client) UpdateDowntime(ctx context.Context, d *downtime.Downtime) (*downtime.Downtime, error) {
	endpoint := fmt.Sprintf("%s/api/v1/downtimes/%d", c.baseURL, d.ID)
	var resp DowntimePayload
	if err := c.send(ctx, "update_downtime", http.MethodPut, endpoint, EncodeDowntime(d), &resp); err != nil {
		return nil, err
	}
	c.invalidate(ctx, d.ResourceIDs)
	return resp.Decode()
}

// DeleteDowntime removes a stored downtime.
func (c *Client) DeleteDowntime(ctx context.Context, id int64, resourceIDs []int64) error {
	endpoint := fmt.Sprintf("%s/api/v1/downtimes/%d", c.baseURL, id)
	if err := c.send(ctx, "delete_downtime", http.MethodDelete, endpoint, nil, nil); err != nil {
		return err
	}
	c.invalidate(ctx, resourceIDs)
	return nil
}

// Clashes asks the server which bookings proposed would clash with.
func (c *Client) Clashes(ctx context.Context, proposed *downtime.Downtime) ([]model.Clash, error) {
	endpoint := fmt.Sprintf("%s/api/v1/downtimes/clashes", c.baseURL)
	var wrap struct {
		Clashes []ClashPayload `json:"clashes"`
	}
	if err := c.send(ctx, "clashes", http.MethodPost, endpoint, EncodeDowntime(proposed), &wrap); err != nil {
		return nil, err
	}
	out := make([]model.Clash, 0, len(wrap.Clashes))
	for _, p := range wrap.Clashes {
		cl, err := p.Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
	return out, nil
}

// GetSchedule fetches a resource's schedule data for window, through the
// Redis cache when one is configured.
func (c *Client) GetSchedule(ctx context.Context, resourceID int64, window daterange.DateRange) (*SchedulePayload, error) {
	endpoint := fmt.Sprintf("%s/api/v1/resources/%d/schedule?%s", c.baseURL, resourceID, windowQuery(window))
	cacheKey := fmt.Sprintf("%s%s", scheduleKeyPrefix(resourceID), window)
	var resp SchedulePayload

	if c.readCache(ctx, cacheKey, &resp) {
		metrics.IncScheduleCache(true)
		return &resp, nil
	}
	metrics.IncScheduleCache(false)

	if err := c.send(ctx, "get_schedule", http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, resp)
	return &resp, nil
}

// LoadSnapshot implements dataset.Loader.
func (c *Client) LoadSnapshot(ctx context.Context, resourceID int64, window daterange.DateRange) (dataset.Snapshot, error) {
	payload, err := c.GetSchedule(ctx, resourceID, window)
	if err != nil {
		return dataset.Snapshot{}, err
	}
	return payload.Decode()
}

// HealthCheck checks if the API is available.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/healthz", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %w: %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

func windowQuery(window daterange.DateRange) string {
	q := url.Values{}
	q.Set("from", window.Start.Format(daterange.Layout))
	q.Set("to", window.End.Format(daterange.Layout))
	return q.Encode()
}

func scheduleKeyPrefix(resourceID int64) string {
	return fmt.Sprintf("schedule:%d:", resourceID)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

// invalidate drops cached schedules of the given resources.
func (c *Client) invalidate(ctx context.Context, resourceIDs []int64) {
	if c.redis == nil {
		return
	}
	for _, id := range resourceIDs {
		iter := c.redis.Scan(ctx, 0, scheduleKeyPrefix(id)+"*", 100).Iterator()
		for iter.Next(ctx) {
			_ = c.redis.Del(ctx, iter.Val()).Err()
		}
		if err := iter.Err(); err != nil {
			c.logger.Warn().Err(err).Int64("resource_id", id).Msg("schedule cache invalidation failed")
		}
	}
}

// track registers a request under key and cancels an older identical one.
func (c *Client) track(ctx context.Context, key string) (context.Context, *flight, func()) {
	ctx, cancel := context.WithCancel(ctx)
	f := &flight{cancel: cancel}

	c.mu.Lock()
	if prev, ok := c.inflight[key]; ok {
		prev.superseded = true
		prev.cancel()
	}
	c.inflight[key] = f
	c.mu.Unlock()

	return ctx, f, func() {
		c.mu.Lock()
		if c.inflight[key] == f {
			delete(c.inflight, key)
		}
		c.mu.Unlock()
		cancel()
	}
}

func (c *Client) isSuperseded(f *flight) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return f.superseded
}

func (c *Client) send(ctx context.Context, operation, method, endpoint string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = data
	}

	ctx, f, done := c.track(ctx, method+" "+endpoint+" "+string(payload))
	defer done()

	err := c.do(ctx, method, endpoint, payload, out)
	switch {
	case err == nil:
		metrics.IncAPIRequest(operation, "ok")
	case c.isSuperseded(f):
		metrics.IncAPIRequest(operation, "superseded")
		return fmt.Errorf("%s: %w", operation, ErrSuperseded)
	default:
		metrics.IncAPIRequest(operation, "error")
		c.logger.Error().Err(err).Str("operation", operation).Str("method", method).Msg("api request failed")
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
}
