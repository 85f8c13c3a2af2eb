package mcstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/serverlist/internal/adapter/metrics"
	"github.com/pscheid92/serverlist/internal/domain"
	"github.com/pscheid92/serverlist/internal/platform/version"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// DefaultBaseURL is the public status API, version 2.
const DefaultBaseURL = "https://api.mcsrvstat.us/2"

// ErrBreakerOpen reports that outbound status checks are being short-circuited.
var ErrBreakerOpen = errors.New("status api circuit breaker open")

const (
	breakerFailureThreshold = 5
	breakerOpenDuration     = 30 * time.Second
)

type apiResponse struct {
	Online  bool `json:"online"`
	Players *struct {
		Online int `json:"online"`
		Max    int `json:"max"`
	} `json:"players"`
	Version string `json:"version"`
	MOTD    *struct {
		Clean []string `json:"clean"`
	} `json:"motd"`
}

// Checker queries the public status API. Every check is a fresh request;
// only identical checks that are in flight at the same time share one.
type Checker struct {
	baseURL string
	client  *http.Client
	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.StatusMetrics
}

type Option func(*Checker)

// WithHTTPClient replaces the default client. No timeout is configured by default.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) { c.client = client }
}

func WithMetrics(m *metrics.StatusMetrics) Option {
	return func(c *Checker) { c.metrics = m }
}

var _ domain.StatusChecker = (*Checker)(nil)

func NewChecker(baseURL string, opts ...Option) *Checker {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Checker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "status-api",
		Timeout: breakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			if c.metrics != nil {
				c.metrics.BreakerState.Set(stateToFloat(to))
			}
		},
	})
	return c
}

// Healthy fails while the circuit breaker is open.
func (c *Checker) Healthy(context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return ErrBreakerOpen
	}
	return nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Check returns the server's live status. Failures of any kind, including an open
// circuit breaker, yield the offline default.
func (c *Checker) Check(ctx context.Context, host string, port int, bedrock bool) domain.StatusResult {
	if port <= 0 {
		port = domain.DefaultPort
	}
	url := c.baseURL + "/" + host + ":" + strconv.Itoa(port)
	if bedrock {
		url += "?bedrock=true"
	}

	// Flights are detached from the caller. A canceled caller stops waiting but
	// never fails the flight or counts against the breaker.
	flight := context.WithoutCancel(ctx)
	ch := c.group.DoChan(url, func() (any, error) {
		return c.breaker.Execute(func() (any, error) {
			return c.fetch(flight, url)
		})
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		slog.DebugContext(ctx, "Status check abandoned", "host", host, "port", port, "error", ctx.Err())
		c.observe("canceled")
		return domain.OfflineStatus()
	}
	if res.Shared {
		c.observeCollapsed()
	}

	v, err := res.Val, res.Err
	if err != nil {
		result := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "breaker_open"
		}
		slog.DebugContext(ctx, "Status check failed", "host", host, "port", port, "error", err)
		c.observe(result)
		return domain.OfflineStatus()
	}

	status := v.(domain.StatusResult)
	if status.Online {
		c.observe("online")
	} else {
		c.observe("offline")
	}
	return status
}

func (c *Checker) fetch(ctx context.Context, url string) (domain.StatusResult, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.CheckDuration.Observe(time.Since(start).Seconds())
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.StatusResult{}, fmt.Errorf("%w: build request: %w", domain.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.StatusResult{}, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.StatusResult{}, fmt.Errorf("%w: unexpected status %d", domain.ErrTransport, resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.StatusResult{}, fmt.Errorf("%w: decode response: %w", domain.ErrTransport, err)
	}

	return body.toResult(), nil
}

func (r apiResponse) toResult() domain.StatusResult {
	result := domain.StatusResult{
		Online:  r.Online,
		Version: r.Version,
	}
	if r.Players != nil {
		result.Players = r.Players.Online
		result.MaxPlayers = r.Players.Max
	}
	if r.MOTD != nil {
		result.MOTD = strings.Join(r.MOTD.Clean, " ")
	}
	return result
}

func (c *Checker) observe(result string) {
	if c.metrics != nil {
		c.metrics.Checks.WithLabelValues(result).Inc()
	}
}

func (c *Checker) observeCollapsed() {
	if c.metrics != nil {
		c.metrics.Collapsed.Inc()
	}
}
