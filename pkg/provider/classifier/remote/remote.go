// Package remote provides a classifier backed by an HTTP inference server.
//
// The server owns the feature transform and the trained model. For every
// cycle the conditioned sample block is POSTed as JSON to <base>/classify:
//
//	{"model": "traffic-v3", "sample_rate": 16000, "samples": [0.01, -0.02, ...]}
//
// and the server answers with the per-class scores:
//
//	{"scores": [0.02, 0.91, 0.05, 0.02]}
//
// Scores decode into the Classifier's score type, so a server emitting
// quantized integers can be used with an int64 stream directly.
//
// Example usage:
//
//	c, err := remote.New[float32]("http://localhost:8088", 4,
//	    remote.WithModel("traffic-v3"), remote.WithTimeout(200*time.Millisecond))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	scores, err := c.Classify(ctx, block)
package remote

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

	"github.com/MrWong99/trafficear/pkg/provider/classifier"
	"github.com/MrWong99/trafficear/pkg/types"
)

// DefaultBaseURL is the default base URL of a locally running inference
// server.
const DefaultBaseURL = "http://localhost:8088"

// Classifier implements classifier.Classifier over HTTP.
//
// Classifier is safe for concurrent use.
type Classifier[S types.Score] struct {
	baseURL    string
	classes    int
	model      string
	sampleRate int
	httpClient *http.Client
}

type config struct {
	timeout    time.Duration
	model      string
	sampleRate int
	client     *http.Client
}

// Option is a functional option for Classifier.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout. A zero or negative value means
// no timeout (the default). Ignored when WithHTTPClient is used.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithModel names the model the server should use. Empty lets the server
// pick its default.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithSampleRate forwards the block sample rate so the server can configure
// its feature front-end.
func WithSampleRate(hz int) Option {
	return func(c *config) { c.sampleRate = hz }
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.client = hc }
}

// New constructs a remote Classifier producing numClasses scores per block.
// An empty baseURL selects DefaultBaseURL; a trailing slash is stripped.
func New[S types.Score](baseURL string, numClasses int, opts ...Option) (*Classifier[S], error) {
	if numClasses <= 0 {
		return nil, fmt.Errorf("remote classifier: class count %d must be positive: %w", numClasses, types.ErrInvalidConfiguration)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	hc := cfg.client
	if hc == nil {
		hc = &http.Client{}
		if cfg.timeout > 0 {
			hc.Timeout = cfg.timeout
		}
	}

	return &Classifier[S]{
		baseURL:    baseURL,
		classes:    numClasses,
		model:      cfg.model,
		sampleRate: cfg.sampleRate,
		httpClient: hc,
	}, nil
}

type classifyRequest struct {
	Model      string    `json:"model,omitempty"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Samples    []float32 `json:"samples"`
}

type classifyResponse[S types.Score] struct {
	Scores []S    `json:"scores"`
	Error  string `json:"error,omitempty"`
}

// Classify implements classifier.Classifier.
//
// Returns an error if the request fails, the server answers with a non-200
// status, the response cannot be decoded, the score vector has the wrong
// length, or ctx is cancelled.
func (c *Classifier[S]) Classify(ctx context.Context, block []float32) ([]S, error) {
	body, err := json.Marshal(classifyRequest{
		Model:      c.model,
		SampleRate: c.sampleRate,
		Samples:    block,
	})
	if err != nil {
		return nil, fmt.Errorf("remote classifier: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote classifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote classifier: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("remote classifier: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result classifyResponse[S]
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("remote classifier: decode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("remote classifier: server error: %s", result.Error)
	}
	if len(result.Scores) != c.classes {
		return nil, fmt.Errorf("remote classifier: got %d scores, want %d", len(result.Scores), c.classes)
	}
	return result.Scores, nil
}

// NumClasses implements classifier.Classifier.
func (c *Classifier[S]) NumClasses() int { return c.classes }

// Ping checks that the inference server is reachable by issuing GET
// <base>/healthz. Any 2xx status counts as healthy.
func (c *Classifier[S]) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("remote classifier: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote classifier: ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New("remote classifier: ping: status " + resp.Status)
	}
	return nil
}

// Ensure Classifier implements classifier.Classifier at compile time.
var (
	_ classifier.Classifier[float32] = (*Classifier[float32])(nil)
	_ classifier.Classifier[int64]   = (*Classifier[int64])(nil)
)
