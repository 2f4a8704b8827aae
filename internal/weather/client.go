package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"

	"outfitcast/internal/config"
	"outfitcast/internal/logging"
	"outfitcast/internal/metrics"
)

var (
	// ErrProviderRejected is returned when the provider answers with an error document.
	ErrProviderRejected = errors.New("weather provider rejected request")
	// ErrProviderUnreachable wraps transport failures. They are not retried.
	ErrProviderUnreachable = errors.New("weather provider unreachable")
)

// Provider returns hourly forecasts for a location.
type Provider interface {
	Forecast(ctx context.Context, location string) (*Forecast, error)
}

// Forecast is the filtered hourly forecast for one location.
type Forecast struct {
	Location string
	Days     []Day
}

// Day holds one forecast day as field-major series.
type Day struct {
	Date   string
	Fields []string
	Values map[string][]float32
}

// Matrix returns the day as an hour-major 24xF matrix.
func (d Day) Matrix() ([][]float32, error) {
	return ReshapeFields(d.Fields, d.Values)
}

// Today returns the first forecast day as a 24xF matrix.
func (f *Forecast) Today() ([][]float32, error) {
	if f == nil || len(f.Days) == 0 {
		return nil, errors.New("forecast has no days")
	}
	return f.Days[0].Matrix()
}

type cached struct {
	at time.Time
	fc *Forecast
}

// Client calls the forecast endpoint of a weatherapi.com compatible provider.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
	cache       *lru.Cache
	ttl         time.Duration
	now         func() time.Time
}

// NewClient builds a client from the weather section of the config.
func NewClient(cfg config.WeatherConfig) (*Client, error) {
	c := &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		httpClient:  &http.Client{Timeout: time.Duration(orDefault(cfg.TimeoutSec, 15)) * time.Second},
		limiter:     newLimiter(cfg.RPS, cfg.Burst),
		maxAttempts: orDefault(cfg.MaxAttempts, 5),
		baseBackoff: time.Duration(orDefault(cfg.BackoffMS, 500)) * time.Millisecond,
		ttl:         time.Duration(cfg.CacheTTLMin) * time.Minute,
		now:         time.Now,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New(cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

// Forecast fetches today's hourly forecast for location.
func (c *Client) Forecast(ctx context.Context, location string) (*Forecast, error) {
	if location == "" {
		return nil, errors.New("empty location")
	}
	if fc, ok := c.lookup(location); ok {
		metrics.WeatherRequests.WithLabelValues("cache").Inc()
		return fc, nil
	}
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", location)
	q.Set("days", "1")
	q.Set("aqi", "no")
	q.Set("alerts", "no")
	u := c.baseURL + "/forecast.json?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	metrics.WeatherRequests.WithLabelValues("api").Inc()
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Location struct {
			Name string `json:"name"`
		} `json:"location"`
		Forecast struct {
			ForecastDay []struct {
				Date string            `json:"date"`
				Hour []json.RawMessage `json:"hour"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("weather api status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("decode forecast: %w", err)
	}
	if raw.Error != nil {
		return nil, fmt.Errorf("%w: %d %s", ErrProviderRejected, raw.Error.Code, raw.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("weather api status %d", resp.StatusCode)
	}

	fc := &Forecast{Location: raw.Location.Name}
	for _, d := range raw.Forecast.ForecastDay {
		fields, values, err := hourlySeries(d.Hour)
		if err != nil {
			return nil, fmt.Errorf("forecast day %s: %w", d.Date, err)
		}
		fc.Days = append(fc.Days, Day{Date: d.Date, Fields: fields, Values: values})
	}
	if c.cache != nil {
		c.cache.Add(location, cached{at: c.now(), fc: fc})
	}
	logging.Debug("weather_forecast", map[string]any{"location": location, "days": len(fc.Days)})
	return fc, nil
}

func (c *Client) lookup(location string) (*Forecast, bool) {
	if c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(location)
	if !ok {
		return nil, false
	}
	e := v.(cached)
	if c.ttl > 0 && c.now().Sub(e.at) > c.ttl {
		c.cache.Remove(location)
		return nil, false
	}
	return e.fc, true
}

// doWithRetry retries 429 and 5xx answers with exponential backoff, honouring
// Retry-After. Transport errors return at once.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncAPIRetry("/forecast.json")
		}
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
		}
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return resp, nil
		}
		lastErr = fmt.Errorf("weather api status %d", resp.StatusCode)
		wait := retryAfter(resp.Header.Get("Retry-After"), backoff)
		_ = resp.Body.Close()
		// jitter +/-20%
		if jitter := time.Duration(float64(wait) * 0.2); jitter > 0 {
			wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func retryAfter(h string, def time.Duration) time.Duration {
	if h == "" {
		return def
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return def
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 10
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
