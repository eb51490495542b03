// Package pricesource fetches daily and intraday prices from the Yahoo Finance chart API.
package pricesource

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rewired-gh/bandwatch/internal/logger"
	"github.com/rewired-gh/bandwatch/internal/models"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
)

// ErrDataUnavailable means the provider has no usable data for the request.
var ErrDataUnavailable = models.ErrDataUnavailable

// ClientConfig holds tuning parameters for the chart client.
type ClientConfig struct {
	MaxRetries       int
	RetryDelayBase   time.Duration
	UserAgent        string
	IntradayInterval string
}

// Client provides access to the chart API.
type Client struct {
	baseURL    string
	httpClient *fasthttp.Client
	timeout    time.Duration
	config     ClientConfig
}

// NewClient creates a new chart client.
func NewClient(baseURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; bandwatch/1.0)"
	}
	if cfg.IntradayInterval == "" {
		cfg.IntradayInterval = "1m"
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 90 * time.Second,
		},
		timeout: timeout,
		config:  cfg,
	}
}

// HistoricalCloses returns up to lookbackDays daily closes, oldest first.
// Adjusted closes are used when the provider supplies them.
func (c *Client) HistoricalCloses(ctx context.Context, symbol string, lookbackDays int) ([]models.Bar, error) {
	body, err := c.fetchChart(ctx, symbol, fmt.Sprintf("%dd", lookbackDays), "1d")
	if err != nil {
		return nil, err
	}
	bars, err := parseChart(body, true)
	if err != nil {
		return nil, fmt.Errorf("%s history: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s history: %w", symbol, ErrDataUnavailable)
	}
	return bars, nil
}

// LatestTick returns the previous session's close and the most recent intraday price.
func (c *Client) LatestTick(ctx context.Context, symbol string) (models.Tick, error) {
	dailyBody, err := c.fetchChart(ctx, symbol, "2d", "1d")
	if err != nil {
		return models.Tick{}, err
	}
	daily, err := parseChart(dailyBody, false)
	if err != nil {
		return models.Tick{}, fmt.Errorf("%s daily: %w", symbol, err)
	}
	if len(daily) < 2 {
		return models.Tick{}, fmt.Errorf("%s daily: %d closes, need 2: %w", symbol, len(daily), ErrDataUnavailable)
	}

	intradayBody, err := c.fetchChart(ctx, symbol, "1d", c.config.IntradayInterval)
	if err != nil {
		return models.Tick{}, err
	}
	intraday, err := parseChart(intradayBody, false)
	if err != nil {
		return models.Tick{}, fmt.Errorf("%s intraday: %w", symbol, err)
	}
	if len(intraday) == 0 {
		return models.Tick{}, fmt.Errorf("%s intraday: no prices yet: %w", symbol, ErrDataUnavailable)
	}

	return models.Tick{
		PreviousClose: daily[len(daily)-2].Close,
		CurrentPrice:  intraday[len(intraday)-1].Close,
	}, nil
}

// parseChart extracts bars with a non-null close from a chart response.
func parseChart(body []byte, preferAdjusted bool) ([]models.Bar, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid chart response")
	}
	root := gjson.ParseBytes(body)
	chart := root.Get("chart")
	if !chart.Exists() {
		return nil, fmt.Errorf("unexpected chart response format")
	}
	if e := chart.Get("error"); e.Exists() && e.Type != gjson.Null {
		return nil, fmt.Errorf("%w: %s", ErrDataUnavailable, e.Get("description").String())
	}

	result := chart.Get("result.0")
	if !result.Exists() {
		return nil, ErrDataUnavailable
	}

	timestamps := result.Get("timestamp").Array()
	closes := result.Get("indicators.quote.0.close").Array()
	if preferAdjusted {
		if adj := result.Get("indicators.adjclose.0.adjclose"); adj.IsArray() {
			closes = adj.Array()
		}
	}

	bars := make([]models.Bar, 0, len(closes))
	for i, v := range closes {
		if v.Type != gjson.Number {
			continue
		}
		var date time.Time
		if i < len(timestamps) {
			date = time.Unix(timestamps[i].Int(), 0).UTC()
		}
		bars = append(bars, models.Bar{Date: date, Close: v.Float()})
	}
	return bars, nil
}

func (c *Client) chartURL(symbol, rangeParam, interval string) string {
	q := url.Values{}
	q.Set("range", rangeParam)
	q.Set("interval", interval)
	return c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + q.Encode()
}

// fetchChart performs the request with linear-backoff retry on transport and server errors.
func (c *Client) fetchChart(ctx context.Context, symbol, rangeParam, interval string) ([]byte, error) {
	uri := c.chartURL(symbol, rangeParam, interval)
	var lastErr error

	for i := 0; i < c.config.MaxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 {
			if err := sleepCtx(ctx, c.config.RetryDelayBase*time.Duration(i)); err != nil {
				return nil, err
			}
		}

		status, body, err := c.do(uri)
		if err != nil {
			lastErr = err
			logger.Debug("Chart request for %s failed (attempt %d/%d): %v", symbol, i+1, c.config.MaxRetries, err)
			continue
		}

		switch {
		case status == fasthttp.StatusOK:
			return body, nil
		case status == fasthttp.StatusNotFound:
			return nil, fmt.Errorf("%s: %w", symbol, ErrDataUnavailable)
		case status >= 500 || status == fasthttp.StatusTooManyRequests:
			lastErr = fmt.Errorf("server error: %d", status)
			continue
		default:
			return nil, fmt.Errorf("%s: unexpected status %d", symbol, status)
		}
	}

	return nil, fmt.Errorf("%s: max retries exceeded: %w", symbol, lastErr)
}

func (c *Client) do(uri string) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	req.Header.SetUserAgent(c.config.UserAgent)

	if err := c.httpClient.DoTimeout(req, resp, c.timeout); err != nil {
		return 0, nil, err
	}
	// resp is released on return, so the body must be copied.
	body := append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), body, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
