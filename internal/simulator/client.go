package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"binwatch/internal/models"
)

// Client is the simulator's view of the service
type Client interface {
	// PostLevel submits a reading and returns the HTTP status code
	PostLevel(ctx context.Context, bin models.BinName, level int) (int, error)
	// FetchPaused reads the shared pause flag
	FetchPaused(ctx context.Context) (bool, error)
}

type levelPayload struct {
	Level int `json:"level"`
}

// HTTPClient talks to the service over its JSON API
type HTTPClient struct {
	client        *resty.Client
	postTimeout   time.Duration
	configTimeout time.Duration
}

// NewHTTPClient creates a client for the service at baseURL
func NewHTTPClient(baseURL string, postTimeout, configTimeout time.Duration) *HTTPClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")

	return &HTTPClient{
		client:        client,
		postTimeout:   postTimeout,
		configTimeout: configTimeout,
	}
}

// PostLevel posts {"level": n} to /update_level/{bin}. Any HTTP response
// counts as delivered; only transport errors are returned.
func (c *HTTPClient) PostLevel(ctx context.Context, bin models.BinName, level int) (int, error) {
	ctx, cancel := withTimeout(ctx, c.postTimeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetPathParam("bin", string(bin)).
		SetBody(levelPayload{Level: level}).
		Post("/update_level/{bin}")
	if err != nil {
		return 0, fmt.Errorf("post level for %s: %w", bin, err)
	}
	return resp.StatusCode(), nil
}

// FetchPaused reads GET /config. Non-2xx replies and bad bodies are errors so
// the caller can keep its previous flag.
func (c *HTTPClient) FetchPaused(ctx context.Context) (bool, error) {
	ctx, cancel := withTimeout(ctx, c.configTimeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		Get("/config")
	if err != nil {
		return false, fmt.Errorf("fetch config: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("fetch config: unexpected status %s", resp.Status())
	}

	var body map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(resp.Body()))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return false, fmt.Errorf("decode config: %w", err)
	}
	return models.Truthy(body[models.SettingSimulatorPaused]), nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
