package worldbank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/storm-impact-report/internal/domain"
	"github.com/couchcryptid/storm-impact-report/internal/observability"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public World Bank API v2 root.
	DefaultBaseURL = "https://api.worldbank.org/v2"

	defaultPerPage    = 1000
	defaultBackoff    = 500 * time.Millisecond
	defaultMaxBackoff = 8 * time.Second
)

// Endpoint labels for metrics and logs.
const (
	endpointIndicators = "indicators"
	endpointCountry    = "country"
	endpointSeries     = "series"
)

// Config tunes the client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	PerPage           int
}

// Client implements domain.IndicatorProvider using the World Bank API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	perPage    int
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a World Bank API client.
func NewClient(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = defaultPerPage
	}
	limit, burst := rate.Inf, 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:    rate.NewLimiter(limit, burst),
		perPage:    cfg.PerPage,
		maxRetries: max(0, cfg.MaxRetries),
		backoff:    defaultBackoff,
		maxBackoff: defaultMaxBackoff,
		metrics:    metrics,
		logger:     logger,
	}
}

// ListIndicators returns the full series catalogue of a source.
func (c *Client) ListIndicators(ctx context.Context, sourceID int) ([]domain.Indicator, error) {
	var out []domain.Indicator
	for page := 1; ; page++ {
		params := url.Values{
			"source":   {strconv.Itoa(sourceID)},
			"format":   {"json"},
			"per_page": {strconv.Itoa(c.perPage)},
			"page":     {strconv.Itoa(page)},
		}
		var items []indicatorItem
		meta, err := c.getList(ctx, endpointIndicators, c.baseURL+"/indicator?"+params.Encode(), &items)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			out = append(out, domain.Indicator{Code: it.ID, Name: strings.TrimSpace(it.Name)})
		}
		if int(meta.Page) >= int(meta.Pages) {
			return out, nil
		}
	}
}

// LookupCountry resolves an ISO3 code to the provider's country record.
func (c *Client) LookupCountry(ctx context.Context, code string) (domain.Country, error) {
	u := fmt.Sprintf("%s/country/%s?format=json", c.baseURL, url.PathEscape(code))
	var items []countryItem
	if _, err := c.getList(ctx, endpointCountry, u, &items); err != nil {
		return domain.Country{}, err
	}
	if len(items) == 0 {
		return domain.Country{}, fmt.Errorf("country %s not found", code)
	}
	return domain.Country{Code: items[0].ID, Name: items[0].Name}, nil
}

// FetchObservations returns every yearly value of the given series for one
// country. Null values are reported as NaN.
func (c *Client) FetchObservations(ctx context.Context, sourceID int, country string, codes []string) ([]domain.Observation, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	escaped := make([]string, len(codes))
	for i, code := range codes {
		escaped[i] = url.PathEscape(code)
	}
	base := fmt.Sprintf("%s/sources/%d/country/%s/series/%s/time/all",
		c.baseURL, sourceID, url.PathEscape(country), strings.Join(escaped, ";"))

	var out []domain.Observation
	for page := 1; ; page++ {
		params := url.Values{
			"format":   {"json"},
			"per_page": {strconv.Itoa(c.perPage)},
			"page":     {strconv.Itoa(page)},
		}
		body, err := c.get(ctx, endpointSeries, base+"?"+params.Encode())
		if err != nil {
			return nil, err
		}
		var resp seriesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode series response: %w", err)
		}
		if len(resp.Message) > 0 {
			return nil, resp.Message.err()
		}
		sources, err := resp.sources()
		if err != nil {
			return nil, err
		}
		for _, src := range sources {
			for _, d := range src.Data {
				out = append(out, d.observation())
			}
		}
		if int(resp.Page) >= int(resp.Pages) {
			return out, nil
		}
	}
}

// getList fetches a v2 array response of the form [meta, items].
func (c *Client) getList(ctx context.Context, endpoint, fullURL string, items any) (pageMeta, error) {
	body, err := c.get(ctx, endpoint, fullURL)
	if err != nil {
		return pageMeta{}, err
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return pageMeta{}, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if len(parts) == 0 {
		return pageMeta{}, fmt.Errorf("decode %s response: empty array", endpoint)
	}
	var meta pageMeta
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return pageMeta{}, fmt.Errorf("decode %s metadata: %w", endpoint, err)
	}
	if len(meta.Message) > 0 {
		return pageMeta{}, meta.Message.err()
	}
	if len(parts) < 2 || string(parts[1]) == "null" {
		return meta, nil
	}
	if err := json.Unmarshal(parts[1], items); err != nil {
		return pageMeta{}, fmt.Errorf("decode %s items: %w", endpoint, err)
	}
	return meta, nil
}

// get performs a throttled GET, retrying transport errors, 429 and 5xx
// responses with capped exponential backoff.
func (c *Client) get(ctx context.Context, endpoint, fullURL string) ([]byte, error) {
	var lastErr error
	delay := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.ProviderRequests.WithLabelValues(endpoint, "retry").Inc()
			c.logger.Debug("retrying provider request", "endpoint", endpoint, "attempt", attempt, "delay", delay, "error", lastErr)
			if !retry.SleepWithContext(ctx, delay) {
				return nil, ctx.Err()
			}
			delay = retry.NextBackoff(delay, c.maxBackoff)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := c.do(ctx, endpoint, fullURL)
		if err == nil {
			c.metrics.ProviderRequests.WithLabelValues(endpoint, "success").Inc()
			return body, nil
		}
		c.metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		lastErr = err
		if !retryable || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, endpoint, fullURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ProviderDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, true, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("world bank API error: status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, false, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// World Bank API response types.

// flexInt decodes integers the API sometimes sends as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("decode integer %s: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

type apiMessages []struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (m apiMessages) err() error {
	parts := make([]string, 0, len(m))
	for _, msg := range m {
		parts = append(parts, fmt.Sprintf("%s: %s", msg.Key, msg.Value))
	}
	return errors.New("world bank API message: " + strings.Join(parts, "; "))
}

type pageMeta struct {
	Page    flexInt     `json:"page"`
	Pages   flexInt     `json:"pages"`
	Total   flexInt     `json:"total"`
	Message apiMessages `json:"message"`
}

type indicatorItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type countryItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type seriesResponse struct {
	Page    flexInt         `json:"page"`
	Pages   flexInt         `json:"pages"`
	Total   flexInt         `json:"total"`
	Source  json.RawMessage `json:"source"`
	Message apiMessages     `json:"message"`
}

type seriesSource struct {
	ID   string      `json:"id"`
	Data []dataPoint `json:"data"`
}

// sources decodes the "source" field, which is an object for a single
// source and an array otherwise.
func (r seriesResponse) sources() ([]seriesSource, error) {
	raw := strings.TrimSpace(string(r.Source))
	switch {
	case raw == "" || raw == "null":
		return nil, nil
	case strings.HasPrefix(raw, "["):
		var out []seriesSource
		if err := json.Unmarshal(r.Source, &out); err != nil {
			return nil, fmt.Errorf("decode series source: %w", err)
		}
		return out, nil
	default:
		var one seriesSource
		if err := json.Unmarshal(r.Source, &one); err != nil {
			return nil, fmt.Errorf("decode series source: %w", err)
		}
		return []seriesSource{one}, nil
	}
}

type dataPoint struct {
	Variable []struct {
		Concept string `json:"concept"`
		ID      string `json:"id"`
		Value   string `json:"value"`
	} `json:"variable"`
	Value *float64 `json:"value"`
}

func (d dataPoint) observation() domain.Observation {
	o := domain.Observation{Value: math.NaN()}
	if d.Value != nil {
		o.Value = *d.Value
	}
	for _, v := range d.Variable {
		switch strings.ToLower(v.Concept) {
		case "series":
			o.IndicatorCode = v.ID
		case "time":
			o.TimeLabel = v.ID
		}
	}
	return o
}
