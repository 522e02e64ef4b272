// Package gateway talks to the external optimization service.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"routeops/internal/models"
)

const (
	DefaultHealthTimeout = 5 * time.Second
	DefaultSolveTimeout  = 120 * time.Second
)

// Client is the optimization service as seen by the rest of the system
type Client interface {
	// Health reports whether the service answered {"status":"ok"}. It never fails.
	Health(ctx context.Context) bool
	Solve(ctx context.Context, req models.SolveRequest) (*models.SolveResponse, error)
	BaseURL() string
}

// ErrorKind classifies a failed request
type ErrorKind string

const (
	KindNetwork         ErrorKind = "network"
	KindServer          ErrorKind = "server"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindTimeout         ErrorKind = "timeout"
	KindUnknown         ErrorKind = "unknown"
)

// ErrCancelled is returned when the caller cancelled the request. It is not
// meant to be shown to the user.
var ErrCancelled = errors.New("request cancelled")

// ErrRequestFailed is returned when a solve request does not produce a usable answer
type ErrRequestFailed struct {
	Kind       ErrorKind
	StatusCode int
	// ServerMessage is the message or error field of a JSON error body, if any
	ServerMessage string
	Reason        string
}

func (e *ErrRequestFailed) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("solve request failed (%s, HTTP %d): %s", e.Kind, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("solve request failed (%s): %s", e.Kind, e.Reason)
}

// Config configures the HTTP client
type Config struct {
	BaseURL       string
	HealthTimeout time.Duration
	SolveTimeout  time.Duration
	HTTPClient    *http.Client
}

type httpClient struct {
	baseURL       string
	healthTimeout time.Duration
	solveTimeout  time.Duration
	httpClient    *http.Client
}

type healthResponse struct {
	Status string `json:"status"`
}

// errorBody holds the fields a failed solve may explain itself in, read in
// this order
type errorBody struct {
	Detail  any    `json:"detail"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// New creates a client for the service at cfg.BaseURL. A trailing slash on the
// base URL is ignored. Zero timeouts fall back to the defaults.
func New(cfg Config) Client {
	c := &httpClient{
		baseURL:       NormalizeBaseURL(cfg.BaseURL),
		healthTimeout: cfg.HealthTimeout,
		solveTimeout:  cfg.SolveTimeout,
		httpClient:    cfg.HTTPClient,
	}
	if c.healthTimeout <= 0 {
		c.healthTimeout = DefaultHealthTimeout
	}
	if c.solveTimeout <= 0 {
		c.solveTimeout = DefaultSolveTimeout
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

// NormalizeBaseURL trims whitespace and a single trailing slash
func NormalizeBaseURL(raw string) string {
	return strings.TrimSuffix(strings.TrimSpace(raw), "/")
}

func (c *httpClient) BaseURL() string {
	return c.baseURL
}

func (c *httpClient) Health(ctx context.Context) bool {
	if c.baseURL == "" {
		log.Printf("[GATEWAY] Health skipped: no base URL configured")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		log.Printf("[ERROR] Failed to create health request: err=%v", err)
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[GATEWAY] Health probe failed: err=%v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[GATEWAY] Health probe returned non-OK status: status=%d", resp.StatusCode)
		return false
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Printf("[GATEWAY] Health probe returned invalid body: err=%v", err)
		return false
	}

	return body.Status == models.StatusOK
}

func (c *httpClient) Solve(ctx context.Context, solveReq models.SolveRequest) (*models.SolveResponse, error) {
	if c.baseURL == "" {
		// Without a base URL there is no host to resolve a relative path against
		log.Printf("[ERROR] Solve attempted without a base URL")
		return nil, &ErrRequestFailed{Kind: KindNetwork, Reason: "no base URL configured"}
	}

	payload, err := json.Marshal(solveReq)
	if err != nil {
		return nil, &ErrRequestFailed{Kind: KindUnknown, Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, c.solveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/solve", bytes.NewReader(payload))
	if err != nil {
		log.Printf("[ERROR] Failed to create solve request: err=%v", err)
		return nil, &ErrRequestFailed{Kind: KindUnknown, Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	log.Printf("[GATEWAY] Solve request: stops=%d vehicles=%d capacity=%d metric=%s objective=%s",
		len(solveReq.Stops), solveReq.Vehicles, solveReq.Capacity, solveReq.DistanceMetric, solveReq.Objective)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[ERROR] Solve API error: status=%d body=%s", resp.StatusCode, truncate(string(body), 512))
		return nil, &ErrRequestFailed{
			Kind:          KindServer,
			StatusCode:    resp.StatusCode,
			ServerMessage: serverMessage(body),
			Reason:        fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	var solveResp models.SolveResponse
	if err := json.Unmarshal(body, &solveResp); err != nil {
		log.Printf("[ERROR] Failed to decode solve response: err=%v", err)
		return nil, &ErrRequestFailed{Kind: KindInvalidResponse, Reason: err.Error()}
	}
	if solveResp.Status != models.StatusOK {
		log.Printf("[ERROR] Solve response has unexpected status: status=%q", solveResp.Status)
		return nil, &ErrRequestFailed{Kind: KindInvalidResponse, Reason: fmt.Sprintf("status %q", solveResp.Status)}
	}

	log.Printf("[GATEWAY] Solve response: routes=%d served=%d unserved=%d duration=%v",
		len(solveResp.Routes), solveResp.Summary.StopsServed, len(solveResp.UnservedStopIDs), time.Since(start))
	return &solveResp, nil
}

// transportError maps a failure below HTTP to cancellation, timeout or network
func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		log.Printf("[GATEWAY] Solve request cancelled")
		return ErrCancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		log.Printf("[ERROR] Solve request timed out: err=%v", err)
		return &ErrRequestFailed{Kind: KindTimeout, Reason: err.Error()}
	default:
		log.Printf("[ERROR] Solve request failed: err=%v", err)
		return &ErrRequestFailed{Kind: KindNetwork, Reason: err.Error()}
	}
}

func serverMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if s, ok := eb.Detail.(string); ok && s != "" {
		return s
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
