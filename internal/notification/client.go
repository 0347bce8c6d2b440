// Package notification delivers user-facing notifications through an
// external facade API and answers permission queries against it.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"go.uber.org/zap"
)

// permissionCacheTTL bounds how long a permission answer is reused. Reminder
// polls would otherwise hit the facade once per trip per tick.
const permissionCacheTTL = time.Minute

// Client is a client for the notification facade API. It implements the
// store.Notifier contract.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client

	mu           sync.Mutex
	granted      bool
	permCachedAt time.Time
}

// ClientOption is a function that configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a new notification client.
func NewClient(apiURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RequestPermission reports whether notification delivery is currently
// permitted. A denial is returned as (false, nil); the error return is for
// transport failures only. Answers are cached briefly.
func (c *Client) RequestPermission(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if time.Since(c.permCachedAt) < permissionCacheTTL {
		granted := c.granted
		c.mu.Unlock()
		return granted, nil
	}
	c.mu.Unlock()

	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.apiURL+"/permission", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("failed to query permission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("permission query failed with status %d", resp.StatusCode)
	}

	var permResp PermissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&permResp); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	c.mu.Lock()
	c.granted = permResp.Granted
	c.permCachedAt = time.Now()
	c.mu.Unlock()

	return permResp.Granted, nil
}

// Notify sends one notification through the facade. The tag is the dedupe
// key; callers reuse a stable tag per logical notification stream.
func (c *Client) Notify(ctx context.Context, title, body, tag string) error {
	if title == "" {
		return fmt.Errorf("title is required")
	}

	jsonData, err := json.Marshal(Request{Title: title, Body: body, Tag: tag})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.apiURL+"/notify", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var notifResp Response
	if err := json.NewDecoder(resp.Body).Decode(&notifResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if notifResp.Error != "" {
			return fmt.Errorf("notification failed with status %d: %s", resp.StatusCode, notifResp.Error)
		}
		return fmt.Errorf("notification failed with status %d", resp.StatusCode)
	}

	return nil
}

// LogNotifier writes notifications to the application log instead of
// delivering them. It always reports permission as granted. Used when no
// facade API is configured, typically local single-process deployments.
type LogNotifier struct {
	log *zap.SugaredLogger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.GetLogger().Named("notifications")}
}

func (n *LogNotifier) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (n *LogNotifier) Notify(ctx context.Context, title, body, tag string) error {
	n.log.Infow("Notification", "title", title, "body", body, "tag", tag)
	return nil
}
