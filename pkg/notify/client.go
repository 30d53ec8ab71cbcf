package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CallbackClient is the worker-side half of the notification protocol: it
// posts a finished prediction id to the front end's results endpoint. The
// call is fire and forget; the persisted result stays the source of truth
// if it fails.
type CallbackClient struct {
	baseURL string
	client  *http.Client
}

// NewCallbackClient creates a client for the given front-end base URL.
func NewCallbackClient(baseURL string) *CallbackClient {
	return &CallbackClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts predictionId to the results endpoint.
func (c *CallbackClient) Notify(ctx context.Context, predictionID string) error {
	u := fmt.Sprintf("%s/results?predictionId=%s", c.baseURL, url.QueryEscape(predictionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build callback request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback to %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}
