package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/afk-farmer/internal/application"
	"github.com/bnema/afk-farmer/internal/domain"
)

// Client talks to a running admin server.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) List(ctx context.Context) ([]application.Snapshot, error) {
	var out []application.Snapshot
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, ref string) (application.Snapshot, error) {
	var out application.Snapshot
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(ref), nil, http.StatusOK, &out); err != nil {
		return application.Snapshot{}, fmt.Errorf("get session: %w", err)
	}
	return out, nil
}

func (c *Client) Add(ctx context.Context, credential, actor string) (AddResponse, error) {
	var out AddResponse
	body := addRequest{Credential: credential, Actor: actor}
	if err := c.do(ctx, http.MethodPost, "/sessions", body, http.StatusCreated, &out); err != nil {
		return AddResponse{}, fmt.Errorf("add session: %w", err)
	}
	return out, nil
}

func (c *Client) Remove(ctx context.Context, ref string) error {
	if err := c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(ref), nil, http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func (c *Client) Restart(ctx context.Context, ref string) error {
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(ref)+"/restart", nil, http.StatusAccepted, nil); err != nil {
		return fmt.Errorf("restart session: %w", err)
	}
	return nil
}

func (c *Client) Stop(ctx context.Context, ref string) error {
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(ref)+"/stop", nil, http.StatusAccepted, nil); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != want {
		return responseError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// responseError maps an admin error reply back onto the domain sentinels.
func responseError(status int, raw []byte) error {
	var payload ErrorResponse
	message := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		message = payload.Error
	}

	var sentinel error
	switch status {
	case http.StatusNotFound:
		sentinel = domain.ErrSessionNotFound
	case http.StatusConflict:
		sentinel = domain.ErrSessionExists
		if strings.Contains(message, domain.ErrAmbiguousSession.Error()) {
			sentinel = domain.ErrAmbiguousSession
		}
	case http.StatusUnprocessableEntity:
		sentinel = domain.ErrTenantNotFound
	case http.StatusBadRequest:
		sentinel = domain.ErrInvalidCredential
	}
	if sentinel != nil {
		return fmt.Errorf("%w (HTTP %d: %s)", sentinel, status, message)
	}
	return fmt.Errorf("HTTP %d: %s", status, message)
}
