// Package compute talks to the external measure-computation service.
package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"polarlab/api/internal/measure"
)

// DefaultTimeout bounds one compute round-trip.
const DefaultTimeout = 30 * time.Second

// ErrMisaligned is returned when the service answers with a different number
// of results than measures requested.
var ErrMisaligned = errors.New("compute: response not aligned with request")

// Computer evaluates measures for a distribution. Results are aligned with
// configs and named by measure.Name.
type Computer interface {
	Compute(ctx context.Context, x, weights []float64, configs []measure.Config) ([]measure.Result, error)
}

// StatusError reports a non-2xx answer. The whole call failed; no partial
// results are available.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("compute: HTTP %d: %s", e.StatusCode, e.Body)
}

// Client is the HTTP implementation of Computer.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a client for the service at baseURL. A non-positive
// timeout selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("compute"),
	}
}

type computeRequest struct {
	X        []float64        `json:"x"`
	Weights  []float64        `json:"weights"`
	Measures []measure.Config `json:"measures"`
}

type computeResult struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
	Error *string  `json:"error"`
}

type computeResponse struct {
	Measures []computeResult `json:"measures"`
}

// Compute posts one request for all configs. The service's own result names
// are not used as identity: result i is renamed to measure.Name(configs[i]).
func (c *Client) Compute(ctx context.Context, x, weights []float64, configs []measure.Config) ([]measure.Result, error) {
	payload := computeRequest{X: x, Weights: weights, Measures: make([]measure.Config, len(configs))}
	for i, cfg := range configs {
		if cfg.Params == nil {
			cfg.Params = measure.Params{}
		}
		payload.Measures[i] = cfg
	}

	var resp computeResponse
	if err := c.do(ctx, http.MethodPost, "/compute", payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Measures) != len(configs) {
		return nil, fmt.Errorf("%w: requested %d, got %d", ErrMisaligned, len(configs), len(resp.Measures))
	}

	out := make([]measure.Result, len(configs))
	for i, r := range resp.Measures {
		res := measure.Result{Name: measure.Name(configs[i]), Value: r.Value}
		if r.Error != nil && *r.Error != "" {
			res.Error = *r.Error
		}
		if res.Name != r.Name {
			c.logger.Debug("renamed result", zap.String("service", r.Name), zap.String("canonical", res.Name))
		}
		out[i] = res
	}
	return out, nil
}

// AlienationFunctions lists the alienation keys the service accepts.
func (c *Client) AlienationFunctions(ctx context.Context) ([]string, error) {
	var keys []string
	if err := c.do(ctx, http.MethodGet, "/alienation-functions", nil, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("compute: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("compute: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("compute: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("compute: read response: %w", err)
	}
	c.logger.Debug("service call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("compute: unmarshal response: %w", err)
	}
	return nil
}
