package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrUnavailable     = errors.New("payment provider unavailable")
)

type Config struct {
	BaseURL string
	APIKey  string
}

// Client talks to the payment provider's REST API. It is used only for
// the synchronous status fallback; the push channel arrives over the
// webhook and never goes through here.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type SessionStatus struct {
	SessionID   string `json:"id"`
	Status      string `json:"status"`
	PaymentID   string `json:"payment_id"`
	AmountMinor int    `json:"amount_minor"`
	Currency    string `json:"currency"`
}

func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("provider base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("provider api key is required")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
	}, nil
}

// SessionStatus fetches the current state of a checkout session. Any
// transport or 5xx failure maps to ErrUnavailable so callers can treat
// it as retryable without inspecting the response.
func (c *Client) SessionStatus(ctx context.Context, sessionToken string) (SessionStatus, error) {
	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" {
		return SessionStatus{}, fmt.Errorf("session token is required")
	}

	endpoint := c.baseURL + "/v1/checkout/sessions/" + url.PathEscape(sessionToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return SessionStatus{}, fmt.Errorf("build session status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SessionStatus{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return SessionStatus{}, ErrSessionNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return SessionStatus{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return SessionStatus{}, fmt.Errorf("session status request failed: status %d", resp.StatusCode)
	}

	var status SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return SessionStatus{}, fmt.Errorf("decode session status response: %w", err)
	}

	return status, nil
}
