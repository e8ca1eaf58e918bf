// Package razorpay implements the payment gateway port against the Razorpay
// Orders API.
package razorpay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Strob0t/TenantForge/internal/domain/payment"
	"github.com/Strob0t/TenantForge/internal/port/paymentgateway"
	"github.com/Strob0t/TenantForge/internal/resilience"
)

// ErrRejected marks a 4xx answer: the request was bad, the API is healthy.
var ErrRejected = errors.New("razorpay rejected request")

// Config configures the client. KeySecret is read per request so that a
// vault reload rotates it.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret func() string
	Timeout   time.Duration
	Breaker   *resilience.Breaker
	// Bulkhead caps concurrent order calls. Nil means unbounded.
	Bulkhead *resilience.Bulkhead
}

// Client talks to Razorpay over HTTPS with basic auth.
type Client struct {
	http     *resty.Client
	keyID    string
	secret   func() string
	breaker  *resilience.Breaker
	bulkhead *resilience.Bulkhead
}

var _ paymentgateway.Gateway = (*Client)(nil)

// New creates a client. Order creation is not retried at this layer: the
// caller's request deadline and the breaker bound the damage instead.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: hc, keyID: cfg.KeyID, secret: cfg.KeySecret, breaker: cfg.Breaker, bulkhead: cfg.Bulkhead}
}

// NewBreaker returns a breaker that ignores ErrRejected.
func NewBreaker(maxFailures int, timeout time.Duration) *resilience.Breaker {
	return resilience.NewBreaker(maxFailures, timeout, resilience.WithFailureFilter(func(err error) bool {
		return !errors.Is(err, ErrRejected)
	}))
}

// KeyID is the public key handed to the checkout widget.
func (c *Client) KeyID() string { return c.keyID }

type orderBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResult struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder opens an order. Errors are returned unwrapped by domain
// sentinels; the registrar decides how to classify them.
func (c *Client) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
	var out *payment.Order
	call := func() error {
		var res orderResult
		var apiErr apiError
		resp, err := c.http.R().
			SetContext(ctx).
			SetBasicAuth(c.keyID, c.secret()).
			SetBody(orderBody{Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Notes: req.Notes}).
			SetResult(&res).
			SetError(&apiErr).
			Post("/v1/orders")
		if err != nil {
			return fmt.Errorf("razorpay create order: %w", err)
		}
		if resp.IsError() {
			return statusError(resp.StatusCode(), apiErr)
		}
		if res.ID == "" {
			return fmt.Errorf("razorpay create order: empty order id (status %d)", resp.StatusCode())
		}
		out = &payment.Order{ID: res.ID, Amount: res.Amount, Currency: res.Currency, Status: res.Status}
		return nil
	}

	err := c.bulkhead.Run(ctx, func() error {
		if c.breaker != nil {
			return c.breaker.Execute(call)
		}
		return call()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func statusError(code int, e apiError) error {
	msg := e.Error.Description
	if msg == "" {
		msg = http.StatusText(code)
	}
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %d %s: %s", ErrRejected, code, e.Error.Code, msg)
	}
	return fmt.Errorf("razorpay create order: status %d: %s", code, msg)
}
