package ratelimits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
)

// DefaultTimeout bounds a single discovery request when ctx has no deadline
const DefaultTimeout = 10 * time.Second

var (
	// ErrUnexpectedStatus is returned when the endpoint answers with a non-200 status
	ErrUnexpectedStatus = errors.New("unexpected status from rate limit endpoint")

	// ErrMalformedResponse is returned when the body does not describe a rate limit
	ErrMalformedResponse = errors.New("malformed rate limit response")

	intervalPattern = regexp.MustCompile(`^(\d+)([smh])$`)
)

// keyInfoResponse is the body returned by the key information endpoint
type keyInfoResponse struct {
	Data struct {
		RateLimit *struct {
			Requests float64 `json:"requests"`
			Interval string  `json:"interval"`
		} `json:"rate_limit"`
	} `json:"data"`
}

// Client fetches the current request allowance over HTTP.
type Client struct {
	url     string
	apiKey  string
	timeout time.Duration
	http    *fasthttp.Client
	logger  *slog.Logger
}

// NewClient creates a discovery client for the given endpoint. The API key
// is sent as a bearer token when non-empty.
func NewClient(url, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		url:     url,
		apiKey:  apiKey,
		timeout: DefaultTimeout,
		http: &fasthttp.Client{
			Name:                "deckgen",
			ReadTimeout:         DefaultTimeout,
			WriteTimeout:        DefaultTimeout,
			MaxIdleConnDuration: time.Minute,
		},
		logger: logger.With("component", "rate_limit_client"),
	}
}

// RequestsPerSecond asks the endpoint for the current allowance and returns
// max(1, floor(requests / interval seconds)). It matches task.RateFetcher.
func (c *Client) RequestsPerSecond(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if c.apiKey != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.apiKey)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return 0, fmt.Errorf("failed to fetch rate limit: %w", err)
	}

	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return 0, fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
	}

	rps, err := parseResponse(resp.Body())
	if err != nil {
		return 0, err
	}

	c.logger.DebugContext(ctx, "fetched rate limit", "requests_per_second", rps)
	return rps, nil
}

func parseResponse(body []byte) (float64, error) {
	var info keyInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if info.Data.RateLimit == nil {
		return 0, fmt.Errorf("%w: missing rate_limit", ErrMalformedResponse)
	}

	return RequestsPerSecond(info.Data.RateLimit.Requests, ParseInterval(info.Data.RateLimit.Interval)), nil
}

// ParseInterval converts strings like "10s", "5m" or "1h" into a duration.
// Anything else, including a zero count, is treated as one second.
func ParseInterval(interval string) time.Duration {
	match := intervalPattern.FindStringSubmatch(interval)
	if match == nil {
		return time.Second
	}

	value, err := strconv.Atoi(match[1])
	if err != nil || value == 0 {
		return time.Second
	}

	switch match[2] {
	case "m":
		return time.Duration(value) * time.Minute
	case "h":
		return time.Duration(value) * time.Hour
	default:
		return time.Duration(value) * time.Second
	}
}

// RequestsPerSecond converts an allowance into a whole-number ceiling of at least 1.
func RequestsPerSecond(requests float64, interval time.Duration) float64 {
	if interval <= 0 {
		interval = time.Second
	}
	return math.Max(1, math.Floor(requests/interval.Seconds()))
}
