package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/golang-sql/civil"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/config"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/observability"
)

const (
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Client implements pipeline.WeatherFetcher using the Open-Meteo historical
// weather archive API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	startDate  civil.Date
	endDate    civil.Date
	hourly     []string
	backoff    time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an archive client for the configured date window and
// hourly variables.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.WeatherTimeout,
		},
		baseURL:   cfg.WeatherBaseURL,
		startDate: cfg.WeatherStartDate,
		endDate:   cfg.WeatherEndDate,
		hourly:    cfg.WeatherHourlyVars,
		backoff:   initialBackoff,
		metrics:   metrics,
		logger:    logger,
	}
}

// FetchHourly returns the market's hourly observations as a table with a
// "time" column followed by one column per requested variable. Null readings
// are empty cells.
func (c *Client) FetchHourly(ctx context.Context, m domain.Market) (domain.Table, error) {
	lat, okLat := m.Lat.Get()
	lon, okLon := m.Lon.Get()
	if !okLat || !okLon {
		return domain.Table{}, fmt.Errorf("market %s has no coordinates", m.Market)
	}

	tz := m.Timezone
	if tz == "" {
		tz = "auto"
	}
	params := url.Values{
		"latitude":        {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude":       {strconv.FormatFloat(lon, 'f', -1, 64)},
		"start_date":      {c.startDate.String()},
		"end_date":        {c.endDate.String()},
		"hourly":          {strings.Join(c.hourly, ",")},
		"timezone":        {tz},
		"wind_speed_unit": {"ms"},
	}

	resp, err := c.fetchWithRetry(ctx, c.baseURL+"?"+params.Encode(), m.Market)
	if err != nil {
		return domain.Table{}, err
	}

	t, err := c.toTable(resp)
	if err != nil {
		return domain.Table{}, fmt.Errorf("market %s: %w", m.Market, err)
	}
	c.logger.Debug("archive response decoded", "market", m.Market, "rows", t.Len(), "timezone", resp.Timezone)
	return t, nil
}

// fetchWithRetry retries server errors, rate limiting and transport failures
// with exponential backoff.
func (c *Client) fetchWithRetry(ctx context.Context, fullURL, market string) (response, error) {
	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		start := time.Now()
		resp, err := c.doRequest(ctx, fullURL)
		c.metrics.WeatherAPIDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			c.metrics.WeatherAPIRequests.WithLabelValues("success").Inc()
			return resp, nil
		}
		c.metrics.WeatherAPIRequests.WithLabelValues("error").Inc()

		if attempt == maxAttempts || !retryable(err) || ctx.Err() != nil {
			return response{}, err
		}
		c.logger.Warn("archive request failed, retrying",
			"market", market, "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return response{}, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// statusError is a non-200 API response.
type statusError struct {
	code int
	body []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("open-meteo API error: status %d: %s", e.code, e.body)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= http.StatusInternalServerError
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("archive request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return response{}, &statusError{code: resp.StatusCode, body: body}
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (c *Client) toTable(resp response) (domain.Table, error) {
	var times []string
	raw, ok := resp.Hourly["time"]
	if !ok {
		return domain.Table{}, fmt.Errorf("response has no hourly time axis")
	}
	if err := json.Unmarshal(raw, &times); err != nil {
		return domain.Table{}, fmt.Errorf("decode hourly time: %w", err)
	}

	series := make([][]*float64, len(c.hourly))
	for i, name := range c.hourly {
		raw, ok := resp.Hourly[name]
		if !ok {
			return domain.Table{}, fmt.Errorf("response has no hourly %s", name)
		}
		if err := json.Unmarshal(raw, &series[i]); err != nil {
			return domain.Table{}, fmt.Errorf("decode hourly %s: %w", name, err)
		}
		if len(series[i]) != len(times) {
			return domain.Table{}, fmt.Errorf("hourly %s has %d values for %d timestamps", name, len(series[i]), len(times))
		}
	}

	t := domain.Table{Columns: append([]string{"time"}, c.hourly...)}
	t.Rows = make([][]string, len(times))
	for r, ts := range times {
		row := make([]string, 0, len(t.Columns))
		row = append(row, ts)
		for _, s := range series {
			if s[r] == nil {
				row = append(row, "")
				continue
			}
			row = append(row, domain.FormatFloat(*s[r]))
		}
		t.Rows[r] = row
	}
	return t, nil
}

// Open-Meteo API response types.

type response struct {
	Latitude    float64                    `json:"latitude"`
	Longitude   float64                    `json:"longitude"`
	Timezone    string                     `json:"timezone"`
	HourlyUnits map[string]string          `json:"hourly_units"`
	Hourly      map[string]json.RawMessage `json:"hourly"`
}
