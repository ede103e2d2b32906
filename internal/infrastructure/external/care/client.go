// Package care implements the client of the CARE student API, the academic
// record system that reports per-subject attendance by registration number.
package care

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/care-attendance/attendance-bot/internal/domain/attendance"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultBaseURL is the CARE student app endpoint.
const DefaultBaseURL = "https://3xlmsxcyn0.execute-api.ap-south-1.amazonaws.com/Prod/CRM-StudentApp"

// ClientConfig contains configuration for the CARE API client.
type ClientConfig struct {
	// BaseURL is the full endpoint URL; requests are POSTed to it.
	BaseURL string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RateLimiterConfig spaces out requests.
	RateLimiterConfig RateLimiterConfig

	// Breaker guards the endpoint. Nil uses circuitbreaker.CareAPIBreaker.
	Breaker *circuitbreaker.CircuitBreaker

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return ClientConfig{
		BaseURL:           baseURL,
		Timeout:           15 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements attendance.Client against the CARE API.
// Failed calls are not retried; the monitor tries again next cycle.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	logger      *slog.Logger
}

// NewClient creates a new CARE API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	breaker := config.Breaker
	if breaker == nil {
		logger := config.Logger
		breaker = circuitbreaker.CareAPIBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
	}

	return &Client{
		config:      config,
		httpClient:  httpClient,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		breaker:     breaker,
		logger:      config.Logger,
	}
}

// Fetch returns the per-subject attendance of reg. Rows without a subject code
// or with an unparsable percentage are skipped. An empty report is returned
// as shared.ErrNoAttendanceData.
func (c *Client) Fetch(ctx context.Context, reg student.RegistrationNumber) (attendance.Reading, error) {
	var resp AttendanceResponseDTO

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := c.rateLimiter.Allow(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		return c.doRequest(ctx, AttendanceRequestDTO{
			RegisterNum: reg.String(),
			Function:    FunctionStudentAttendance,
		}, &resp)
	})
	if err != nil {
		return nil, shared.WrapError("attendance", "Fetch", shared.ErrDataProvider, "care request failed", err)
	}

	reading := make(attendance.Reading, len(resp.Result.Attendance))
	for _, row := range resp.Result.Attendance {
		if row.SubCode == "" {
			continue
		}
		pct, ok := row.Percent()
		if !ok {
			c.logger.Debug("skipping unparsable attendance row", "registration_number", reg, "sub_code", row.SubCode)
			continue
		}
		reading[row.SubCode] = pct
	}

	if len(reading) == 0 {
		return nil, shared.ErrNoAttendanceData
	}
	return reading, nil
}

// APIError is a non-2xx answer from the CARE API.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("care api: status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) doRequest(ctx context.Context, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 200)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// IsAPIError reports whether err carries a CARE status code.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
