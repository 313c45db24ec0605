// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resona Contributors

// Package extractor talks to the audio feature extraction sidecar. The
// sidecar downloads a track from its source URL, runs signal analysis, and
// returns a unit-normalized feature vector. Everything downstream treats the
// extractor as a black box behind the Extractor interface.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	resonaerr "github.com/resona-dev/resona/pkg/errors"
)

// Extractor produces a feature vector for the audio at the given URL.
type Extractor interface {
	Extract(ctx context.Context, url string) ([]float32, error)
}

// normTolerance is how far the L2 norm of a returned vector may drift from
// 1.0 before the response is rejected as malformed. Drift within tolerance
// is renormalized away so stored vectors are exactly unit length.
const normTolerance = 1e-3

// DefaultTimeout bounds a single extraction request. Feature extraction
// downloads and analyzes full audio files, so this is deliberately generous.
const DefaultTimeout = 120 * time.Second

// Client is an HTTP Extractor for the analysis sidecar.
type Client struct {
	endpoint string
	dims     int
	http     *http.Client
	health   *HealthTracker
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger used for request outcomes.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates an extractor client for the sidecar at endpoint that
// expects dims-dimensional vectors.
func NewClient(endpoint string, dims int, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, resonaerr.New(resonaerr.CodeConfigValidateInvalidValue,
			"extractor endpoint must not be empty")
	}
	if dims <= 0 {
		return nil, resonaerr.Errorf(resonaerr.CodeConfigValidateInvalidValue,
			"vector dimensions must be positive, got %d", dims)
	}

	c := &Client{
		endpoint: endpoint,
		dims:     dims,
		http:     &http.Client{Timeout: DefaultTimeout},
		health:   NewHealthTracker(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type extractRequest struct {
	URL string `json:"url"`
}

type extractResponse struct {
	Features []float32 `json:"features"`
}

// Extract requests feature analysis for url from the sidecar. The returned
// vector is validated for dimension and unit norm.
func (c *Client) Extract(ctx context.Context, url string) ([]float32, error) {
	body, err := json.Marshal(extractRequest{URL: url})
	if err != nil {
		return nil, resonaerr.Wrap(err, resonaerr.CodeExtractorUpstreamFailure,
			"encoding extraction request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, resonaerr.Wrap(err, resonaerr.CodeExtractorUpstreamFailure,
			"building extraction request", resonaerr.FieldURL(url))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.health.RecordFailure()
		code := resonaerr.CodeExtractorUpstreamFailure
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			code = resonaerr.CodeExtractorTimeout
		}
		c.logger.Warn("extraction request failed",
			"url", url, "error", err, "elapsed", time.Since(start))
		return nil, resonaerr.Wrap(err, code,
			"calling extraction service", resonaerr.FieldURL(url))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		c.health.RecordFailure()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("extraction service returned error",
			"url", url, "status", resp.StatusCode)
		return nil, resonaerr.Errorf(resonaerr.CodeExtractorUpstreamFailure,
			"extraction service returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.health.RecordFailure()
		return nil, resonaerr.Wrap(err, resonaerr.CodeExtractorResponseInvalid,
			"decoding extraction response", resonaerr.FieldURL(url))
	}

	vector, err := validateVector(out.Features, c.dims)
	if err != nil {
		c.health.RecordFailure()
		return nil, err
	}

	c.health.RecordSuccess()
	c.logger.Debug("extraction completed",
		"url", url, "dimensions", len(vector), "elapsed", time.Since(start))
	return vector, nil
}

// Health returns a snapshot of the sidecar's observed health.
func (c *Client) Health() *HealthTracker {
	return c.health
}

// validateVector checks dimension and unit norm, renormalizing drift within
// tolerance. NaN and Inf components are rejected outright.
func validateVector(v []float32, dims int) ([]float32, error) {
	if len(v) != dims {
		return nil, resonaerr.Errorf(resonaerr.CodeExtractorResponseInvalid,
			"extraction service returned %d-dimensional vector, expected %d", len(v), dims)
	}

	var sumSq float64
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, resonaerr.Errorf(resonaerr.CodeExtractorResponseInvalid,
				"extraction service returned non-finite component at index %d", i)
		}
		sumSq += f * f
	}

	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1) > normTolerance {
		return nil, resonaerr.Errorf(resonaerr.CodeExtractorResponseInvalid,
			"extraction service returned vector with L2 norm %.6f, expected 1.0", norm)
	}

	if norm != 1 {
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = float32(float64(x) / norm)
		}
		return out, nil
	}
	return v, nil
}

func isClientTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
