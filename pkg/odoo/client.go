// Package odoo posts confirmed payments to the Odoo payment webhook.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	paymentPath             = "api/webhook/payment"
	webhookKeyHeader        = "X-Odoo-Webhook-Key"
	responseReadLimit int64 = 4096
	defaultTimeout          = 10 * time.Second
)

var (
	errBaseURLRequired    = errors.New("odoo base url is required")
	errWebhookKeyRequired = errors.New("odoo webhook key is required")
)

// Client talks to the Odoo payment webhook endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	webhookKey string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

func NewClient(baseURL, webhookKey string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimSpace(baseURL)
	if trimmedURL == "" {
		return nil, errBaseURLRequired
	}
	trimmedKey := strings.TrimSpace(webhookKey)
	if trimmedKey == "" {
		return nil, errWebhookKeyRequired
	}

	client := &Client{
		baseURL:    trimmedURL,
		webhookKey: trimmedKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// PaymentData is the account.payment record Odoo creates.
type PaymentData struct {
	Amount           string `json:"amount"`
	CurrencyID       int    `json:"currency_id"`
	PartnerID        *int   `json:"partner_id,omitempty"`
	PartnerName      string `json:"partner_name,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`
	PaymentDate      string `json:"payment_date"`
	PaymentType      string `json:"payment_type"`
	JournalID        int    `json:"journal_id"`
	PaymentMethodID  int    `json:"payment_method_id"`
	State            string `json:"state"`
	Communication    string `json:"communication,omitempty"`
}

// WebhookResponse is Odoo's answer to a payment post.
type WebhookResponse struct {
	Success   bool   `json:"success"`
	PaymentID *int   `json:"payment_id"`
	Message   string `json:"message"`
	Error     string `json:"error"`
}

// StatusError is returned for non-2xx responses that carry no decodable body.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("odoo responded %d: %s", e.StatusCode, e.Body)
}

// SendPayment posts the payment. Transport failures and 5xx answers return an
// error; a decoded body is returned as-is so the caller can inspect Success.
func (c *Client) SendPayment(ctx context.Context, payment PaymentData) (*WebhookResponse, error) {
	payload, err := json.Marshal(payment)
	if err != nil {
		return nil, fmt.Errorf("marshal payment: %w", err)
	}

	url := fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), paymentPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(webhookKeyHeader, c.webhookKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute payment request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return nil, fmt.Errorf("read payment response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out WebhookResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &WebhookResponse{Error: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}, nil
		}
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		out.Success = false
		if out.Error == "" {
			out.Error = fmt.Sprintf("status %d", resp.StatusCode)
		}
	}
	return &out, nil
}
