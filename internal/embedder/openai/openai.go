// Package openai is an Embedder backed by the OpenAI embeddings API,
// trimmed from the teacher's multi-surface client down to just the
// embedding call: no text/image/video generation, no conversations
// API, no temperature-fallback learning. The retry/backoff and typed
// HTTP error handling are kept.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/qrvid/corpus/internal/platform/corerr"
	"github.com/qrvid/corpus/internal/platform/ctxutil"
	"github.com/qrvid/corpus/internal/platform/httpx"
	"github.com/qrvid/corpus/internal/platform/logger"
)

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
}

// ConfigFromEnv mirrors the teacher's OPENAI_* env conventions.
func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:   strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Model:     strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL")),
		Dimension: 1536,
		Timeout:   30 * time.Second,
		MaxRetries: 4,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_EMBED_DIMENSION")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Dimension = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Timeout = time.Duration(parsed) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_MAX_RETRIES")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			cfg.MaxRetries = parsed
		}
	}
	return cfg
}

type Client struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, corerr.Config("openai_embedder", "logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, corerr.Config("openai_embedder", "missing API key")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		log:     log.With("service", "openai_embedder"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *Client) Dimension() int { return c.cfg.Dimension }

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	input := strings.TrimSpace(text)
	if input == "" {
		input = " "
	}

	req := embeddingsRequest{Model: c.cfg.Model, Input: []string{input}}
	var resp embeddingsResponse
	if err := c.do(ctx, http.MethodPost, "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, corerr.Embedder("openai_embedder", "embeddings response contained no data", nil)
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, f := range raw {
		vec[i] = float32(f)
	}
	return vec, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	backoff := 1 * time.Second
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out != nil {
				if uErr := json.Unmarshal(raw, out); uErr != nil {
					return corerr.Embedder("openai_embedder", "decode response", uErr)
				}
			}
			return nil
		}
		lastErr = err

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return corerr.Embedder("openai_embedder", "embeddings request failed", err)
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)
		c.log.Warn("openai embeddings request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return corerr.Embedder("openai_embedder", "embeddings request failed", lastErr)
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("openai embeddings http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

func (c *Client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}
