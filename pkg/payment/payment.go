// Package payment talks to the hosted checkout provider.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// ErrNotConfigured is returned when no provider URL is set.
var ErrNotConfigured = errors.New("payment provider is not configured")

// StatusPaid is the provider's status for a settled session.
const StatusPaid = "paid"

// LineItem is one priced line shown on the hosted page.
type LineItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// SessionRequest asks the provider for a hosted checkout page.
type SessionRequest struct {
	Reference  string            `json:"reference"`
	Currency   string            `json:"currency"`
	Amount     decimal.Decimal   `json:"amount"`
	LineItems  []LineItem        `json:"lineItems"`
	SuccessURL string            `json:"successUrl"`
	CancelURL  string            `json:"cancelUrl"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Session is the provider's view of a checkout session.
type Session struct {
	ID            string          `json:"id"`
	URL           string          `json:"url"`
	PaymentStatus string          `json:"paymentStatus"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// Paid reports whether the session settled.
func (s *Session) Paid() bool {
	return s.PaymentStatus == StatusPaid
}

// Gateway creates and verifies hosted checkout sessions.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}

// Config holds provider settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is a Gateway over the provider's JSON API.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg}
}

func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if c.cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agent := fiber.Post(c.cfg.BaseURL+"/v1/checkout/sessions").
		Set(fiber.HeaderAuthorization, "Bearer "+c.cfg.APIKey).
		Timeout(c.cfg.Timeout).
		JSON(req)
	return c.do(agent, "create checkout session")
}

func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	if c.cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agent := fiber.Get(c.cfg.BaseURL+"/v1/checkout/sessions/"+id).
		Set(fiber.HeaderAuthorization, "Bearer "+c.cfg.APIKey).
		Timeout(c.cfg.Timeout)
	return c.do(agent, "get checkout session")
}

func (c *Client) do(agent *fiber.Agent, op string) (*Session, error) {
	var session Session
	code, body, errs := agent.Struct(&session)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to %s: %w", op, errors.Join(errs...))
	}
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("failed to %s: provider returned %d: %s", op, code, truncate(body, 200))
	}
	if session.ID == "" {
		return nil, fmt.Errorf("failed to %s: provider returned no session id", op)
	}
	return &session, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
