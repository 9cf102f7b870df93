package statusclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hollowscan/internal/domain"
	"hollowscan/internal/infra/metrics"
)

// Client запрашивает статус привязки и премиума у бэкенда.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Option настраивает клиент.
type Option func(*Client)

// WithHTTPClient подменяет http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout задаёт таймаут запросов.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// New создаёт клиент статуса.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

var _ domain.LinkStatusClient = (*Client)(nil)

type statusResponse struct {
	Success         bool       `json:"success"`
	Detail          string     `json:"detail"`
	TelegramLinked  bool       `json:"telegram_linked"`
	TelegramPremium bool       `json:"telegram_premium"`
	AccountPremium  bool       `json:"account_premium"`
	PremiumUntil    *time.Time `json:"premium_until"`
}

// Status возвращает серверный снимок премиум-статуса пользователя.
func (c *Client) Status(ctx context.Context, userID int64) (domain.PremiumState, error) {
	endpoint := c.baseURL.ResolveReference(&url.URL{Path: fmt.Sprintf("/v1/users/%d/status", userID)})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return domain.PremiumState{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("statusclient", "status", "users", start, err)
	if err != nil {
		return domain.PremiumState{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.PremiumState{}, fmt.Errorf("status request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.PremiumState{}, fmt.Errorf("decode response: %w", err)
	}
	if !body.Success {
		return domain.PremiumState{}, fmt.Errorf("status request rejected: %s", body.Detail)
	}
	return domain.PremiumState{
		AccountPremium:  body.AccountPremium,
		TelegramLinked:  body.TelegramLinked,
		TelegramPremium: body.TelegramPremium,
		PremiumUntil:    body.PremiumUntil,
	}, nil
}
