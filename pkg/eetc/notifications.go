package eetc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultNotificationsURL is the production Notifications Manager base URL.
const DefaultNotificationsURL = "https://eetc-notifications-manager-148296566920.us-east1.run.app"

// NotificationsClient talks to the EETC Notifications Manager API.
type NotificationsClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NotificationsClientOption customises a NotificationsClient.
type NotificationsClientOption func(*NotificationsClient)

// WithNotificationsBaseURL overrides the Notifications Manager base URL.
func WithNotificationsBaseURL(baseURL string) NotificationsClientOption {
	return func(c *NotificationsClient) { c.baseURL = baseURL }
}

// NewNotificationsClient creates a NotificationsClient authenticated with
// the given API key.
func NewNotificationsClient(apiKey string, opts ...NotificationsClientOption) *NotificationsClient {
	c := &NotificationsClient{
		apiKey:     apiKey,
		baseURL:    DefaultNotificationsURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendTradeUpdateToTelegram sends a trade update message to the Telegram
// channel. The message should carry the relevant trade details: symbol,
// action, quantity and price.
func (c *NotificationsClient) SendTradeUpdateToTelegram(ctx context.Context, msg string) error {
	body, err := json.Marshal(map[string]string{"message": msg})
	if err != nil {
		return fmt.Errorf("eetc: encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/telegram/send_trade_update", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("eetc: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("eetc: sending trade update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("eetc: sending trade update: unexpected status %d", resp.StatusCode)
	}
	return nil
}
