// Package llm is a stateless HTTP adapter over an Ollama-compatible local
// LLM runtime: availability probing, non-streaming generation, and reply
// parsing/validation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
)

// ErrUpstream wraps any non-2xx response or transport failure talking to
// the LLM runtime.
var ErrUpstream = errors.New("upstream error")

// GenerateOptions mirrors the Ollama /api/generate options object.
type GenerateOptions struct {
	Temperature float64
	TopP        float64
	NumPredict  int
}

// DefaultGenerateOptions matches spec §6's stated defaults.
func DefaultGenerateOptions(maxTokens int) GenerateOptions {
	return GenerateOptions{Temperature: 0.3, TopP: 0.9, NumPredict: maxTokens}
}

// Client talks to the LLM runtime over HTTP. It carries no per-task state;
// every call is self-contained given a model name.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	availMu    sync.Mutex
	availCache map[string]availEntry
	availTTL   time.Duration
}

type availEntry struct {
	available bool
	checkedAt time.Time
}

// Option configures a Client at construction.
type Option func(*Client)

// WithLogger overrides the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithAvailabilityTTL overrides the availability-cache window (spec §4.2:
// "MAY be cached for a short window (<=30s)").
func WithAvailabilityTTL(d time.Duration) Option {
	return func(c *Client) { c.availTTL = d }
}

// New builds a Client for the given base URL (e.g. "http://localhost:11434").
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
		availCache: make(map[string]availEntry),
		availTTL:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// IsAvailable reports whether model is currently servable. It fails closed:
// any transport error is treated as unavailable.
func (c *Client) IsAvailable(ctx context.Context, model string) bool {
	c.availMu.Lock()
	if entry, ok := c.availCache[model]; ok && time.Since(entry.checkedAt) < c.availTTL {
		c.availMu.Unlock()
		return entry.available
	}
	c.availMu.Unlock()

	available := c.probeViaTags(ctx, model) || c.probeViaGenerate(ctx, model)

	c.availMu.Lock()
	c.availCache[model] = availEntry{available: available, checkedAt: time.Now()}
	c.availMu.Unlock()

	return available
}

func (c *Client) probeViaTags(ctx context.Context, model string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req = req.WithContext(probeCtx)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	for _, m := range tags.Models {
		if m.Name == model {
			return true
		}
	}
	return false
}

func (c *Client) probeViaGenerate(ctx context.Context, model string) bool {
	body, err := json.Marshal(map[string]any{
		"model":  model,
		"prompt": "test",
		"stream": false,
	})
	if err != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate sends a non-streaming generation request and returns the
// parsed reply map (see ParseReply).
func (c *Client) Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": opts.Temperature,
			"top_p":       opts.TopP,
			"num_predict": opts.NumPredict,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, string(respBody))
	}

	var gen generateResponse
	if err := json.Unmarshal(respBody, &gen); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrUpstream, err)
	}

	reply := ParseReply(gen.Response)
	c.logger.Debug("llm generate", "model", model, "bytes", len(gen.Response))
	return reply, nil
}

// Validate reports whether reply carries every field required for
// taskType (spec §4.1).
func Validate(reply map[string]any, taskType models.TaskType) bool {
	for _, field := range taskType.RequiredFields() {
		v, ok := reply[field]
		if !ok {
			return false
		}
		if s, isString := v.(string); isString && s == "" {
			return false
		}
	}
	return true
}
