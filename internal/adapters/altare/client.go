package altare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bnema/afk-farmer/internal/domain"
	"github.com/bnema/afk-farmer/internal/ports"
)

const (
	DefaultBaseURL  = "https://api.altare.sh"
	DefaultTimeout  = 15 * time.Second
	DefaultAttempts = 5

	maxErrorBody = 200
	siteOrigin   = "https://altare.sh"
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// RejectionError is returned when the API answers with a status outside
// the accepted set.
type RejectionError struct {
	StatusCode int
	Body       string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Attempts   int
	Backoff    domain.ExponentialBackoff
	HTTPClient *http.Client
	Clock      ports.Clock
}

type Client struct {
	baseURL  string
	timeout  time.Duration
	attempts int
	backoff  domain.ExponentialBackoff
	http     *http.Client
	clock    ports.Clock
}

var _ ports.RewardAPI = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Backoff == (domain.ExponentialBackoff{}) {
		cfg.Backoff = domain.ExponentialBackoff{Base: 3 * time.Second, Max: 60 * time.Second}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		timeout:  cfg.Timeout,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
		http:     cfg.HTTPClient,
		clock:    cfg.Clock,
	}
}

func (c *Client) Stop(ctx context.Context, credential, tenantID string) error {
	return c.postAFK(ctx, credential, tenantID, "stop")
}

func (c *Client) Start(ctx context.Context, credential, tenantID string) error {
	return c.postAFK(ctx, credential, tenantID, "start")
}

func (c *Client) Heartbeat(ctx context.Context, credential, tenantID string) error {
	return c.postAFK(ctx, credential, tenantID, "heartbeat")
}

type tenantItem struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
}

// DetectTenant returns the identifier of the first tenant visible to the
// credential.
func (c *Client) DetectTenant(ctx context.Context, credential string) (string, error) {
	var tenantID string

	err := c.do(ctx, func(ctx context.Context) error {
		status, body, err := c.send(ctx, http.MethodGet, c.baseURL+"/api/tenants", credential, nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return &RejectionError{StatusCode: status, Body: truncate(body)}
		}

		items, err := decodeTenants(body)
		if err != nil {
			return fmt.Errorf("decode tenants: %w", err)
		}
		if len(items) == 0 {
			return domain.ErrTenantNotFound
		}

		tenantID = strings.TrimSpace(items[0].ID)
		if tenantID == "" {
			tenantID = strings.TrimSpace(items[0].TenantID)
		}
		if tenantID == "" {
			return domain.ErrTenantNotFound
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return tenantID, nil
}

func decodeTenants(body []byte) ([]tenantItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []tenantItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var wrapped struct {
		Items []tenantItem `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}

	return wrapped.Items, nil
}

func (c *Client) postAFK(ctx context.Context, credential, tenantID, action string) error {
	endpoint := fmt.Sprintf("%s/api/tenants/%s/rewards/afk/%s", c.baseURL, url.PathEscape(tenantID), action)

	return c.do(ctx, func(ctx context.Context) error {
		status, body, err := c.send(ctx, http.MethodPost, endpoint, credential, []byte("{}"))
		if err != nil {
			return err
		}
		if !accepted(status) {
			return &RejectionError{StatusCode: status, Body: truncate(body)}
		}

		return nil
	})
}

func (c *Client) send(ctx context.Context, method, endpoint, credential string, payload []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Authorization", credential)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Origin", siteOrigin)
	request.Header.Set("Referer", siteOrigin+"/billing/rewards/afk")
	request.Header.Set("User-Agent", userAgent)

	response, err := c.http.Do(request)
	if err != nil {
		return 0, nil, transient(fmt.Errorf("perform request: %w", err))
	}
	defer response.Body.Close()

	data, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return 0, nil, transient(fmt.Errorf("read response: %w", err))
	}

	return response.StatusCode, data, nil
}

func accepted(status int) bool {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return true
	default:
		return false
	}
}

// truncate cuts the body to maxErrorBody bytes without splitting a rune.
func truncate(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= maxErrorBody {
		return text
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

var errTransient = errors.New("transient request failure")

type transientError struct {
	err error
}

func transient(err error) error {
	return &transientError{err: err}
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

func (e *transientError) Is(target error) bool { return target == errTransient }
