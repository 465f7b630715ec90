// Package upstream talks to the remote metadata/download API: POST /metadata
// resolves a video URL, POST /download streams its audio, GET /ping wakes the
// service up.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/audio-queue/internal/queue/models"
)

const maxErrorBody = 512

type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a whole metadata or ping exchange. For downloads it only
	// bounds the wait for response headers; the audio stream itself runs as
	// long as the caller's context allows.
	Timeout time.Duration
	// HTTPClient overrides the default client. Its transport then decides the
	// header timeout for downloads.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type metadataResponse struct {
	Status bool                  `json:"status"`
	Data   *models.VideoMetadata `json:"data"`
}

type urlRequest struct {
	URL string `json:"url"`
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("upstream base url is empty")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("upstream base url %q is not absolute", cfg.BaseURL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.Timeout
		hc = &http.Client{Transport: transport}
	}

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    hc,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.With().Str("component", "upstream").Logger(),
	}, nil
}

// FetchMetadata returns (nil, nil) when the service answers without data.
func (c *Client) FetchMetadata(ctx context.Context, videoURL string) (*models.VideoMetadata, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, "metadata", urlRequest{URL: videoURL})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out metadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if out.Data == nil {
		c.logger.Debug().Str("url", videoURL).Bool("status", out.Status).Msg("metadata without data")
		return nil, nil
	}
	return out.Data, nil
}

// DownloadMedia streams the audio for videoURL. The caller closes the body.
// Only ctx limits how long the stream may take.
func (c *Client) DownloadMedia(ctx context.Context, videoURL string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodPost, "download", urlRequest{URL: videoURL})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "ping", nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// do sends the request and returns the response only for 2xx statuses.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	return resp, nil
}
