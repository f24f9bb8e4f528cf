// Package workerclient is the typed HTTP client for the worker fleet.
//
// It speaks the two-endpoint worker contract: POST /api/generate for
// inference and GET /health for liveness. Errors are classified into
// the closed worker-error taxonomy with the worker name attached;
// retry policy lives with the caller, never here.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/s2intelligence/ninefold-gateway/internal/adapter/observability"
	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

// Client issues calls against workers resolved by host and catalogue
// port. Safe for concurrent use.
type Client struct {
	host  string
	httpc *http.Client
}

// New constructs a client. timeout bounds a single generate call when
// the caller's context carries no tighter deadline.
func New(host string, timeout time.Duration) *Client {
	return &Client{
		host: host,
		httpc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type generateRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type generateResponse struct {
	Text string         `json:"text"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Generate sends a prompt to one worker and returns its reply with the
// measured latency.
func (c *Client) Generate(ctx context.Context, w domain.Worker, prompt string, maxTokens int) (domain.Generation, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt, MaxTokens: maxTokens})
	if err != nil {
		return domain.Generation{}, fmt.Errorf("op=workerclient.Generate: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/api/generate", c.host, w.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.Generation{}, fmt.Errorf("op=workerclient.Generate: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	outcome := "ok"
	defer func() { observability.ObserveWorkerCall(w.Name, outcome, time.Since(start)) }()

	resp, err := c.httpc.Do(req)
	if err != nil {
		outcome = "transport_error"
		return domain.Generation{}, classify(w.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		outcome = "http_error"
		return domain.Generation{}, &domain.WorkerError{Worker: w.Name, Kind: domain.WorkerErrHTTP, Status: resp.StatusCode}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		outcome = "malformed"
		return domain.Generation{}, &domain.WorkerError{Worker: w.Name, Kind: domain.WorkerErrMalformed, Detail: err.Error()}
	}

	return domain.Generation{
		Text:      out.Text,
		LatencyMS: time.Since(start).Milliseconds(),
		Meta:      out.Meta,
	}, nil
}

type healthResponse struct {
	Status         string  `json:"status"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	RequestsServed int64   `json:"requests_served"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryMB       float64 `json:"memory_mb"`
	GPUMemoryMB    float64 `json:"gpu_memory_mb"`
	ErrorCount     int64   `json:"error_count"`
}

// Probe implements domain.HealthProber against GET /health.
func (c *Client) Probe(ctx context.Context, w domain.Worker) (domain.WorkerStatus, error) {
	url := fmt.Sprintf("http://%s:%d/health", c.host, w.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.WorkerStatus{}, fmt.Errorf("op=workerclient.Probe: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return domain.WorkerStatus{}, classify(w.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.WorkerStatus{}, &domain.WorkerError{Worker: w.Name, Kind: domain.WorkerErrHTTP, Status: resp.StatusCode}
	}

	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return domain.WorkerStatus{}, &domain.WorkerError{Worker: w.Name, Kind: domain.WorkerErrMalformed, Detail: err.Error()}
	}

	return domain.WorkerStatus{
		ResponseTimeMS: h.ResponseTimeMS,
		RequestsServed: h.RequestsServed,
		UptimeSeconds:  h.UptimeSeconds,
		ErrorCount:     h.ErrorCount,
		CPUPercent:     h.CPUPercent,
		MemoryMB:       h.MemoryMB,
		GPUMemoryMB:    h.GPUMemoryMB,
	}, nil
}

// classify maps transport errors onto the worker-error taxonomy.
func classify(worker string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.WorkerError{Worker: worker, Kind: domain.WorkerErrTimeout, Detail: err.Error()}
	case isTimeout(err):
		return &domain.WorkerError{Worker: worker, Kind: domain.WorkerErrTimeout, Detail: err.Error()}
	default:
		return &domain.WorkerError{Worker: worker, Kind: domain.WorkerErrUnreachable, Detail: err.Error()}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
