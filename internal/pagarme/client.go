// Package pagarme is a minimal client for the Pagar.me core API, limited to
// creating PIX orders.
package pagarme

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pix_telegram_bot/internal/jsonvalue"
	"pix_telegram_bot/internal/logging"
)

const (
	// RequestTimeout bounds a single order creation round trip.
	RequestTimeout = 30 * time.Second

	// MaxDescriptionLength is the provider limit for item descriptions.
	MaxDescriptionLength = 255

	// PlaceholderCustomerName is sent when only an email is known.
	PlaceholderCustomerName = "Cliente"

	paymentMethodPix = "pix"
	ordersPath       = "/orders"
	requestIDHeader  = "X-Request-Id"
	maxLoggedBody    = 600
)

// HTTPError reports a non-2xx answer from the provider.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("pagarme returned HTTP %d: %s", e.StatusCode, e.Body)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client creates PIX orders against a Pagar.me compatible API.
type Client struct {
	baseURL   string
	secretKey string
	http      httpDoer
	logger    *logrus.Entry
	newID     func() string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(doer httpDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client for baseURL authenticated with secretKey.
func NewClient(baseURL, secretKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, errors.New("pagarme secret key is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("pagarme api base url is required")
	}

	c := &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secretKey: secretKey,
		http:      &http.Client{Timeout: RequestTimeout},
		logger:    logging.Logger(),
		newID:     func() string { return uuid.NewString() },
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// OrderRequest is the caller facing input for a PIX order.
type OrderRequest struct {
	AmountCents   int64
	Description   string
	CustomerEmail string
}

type orderItem struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type orderPayment struct {
	PaymentMethod string `json:"payment_method"`
}

type orderCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type orderPayload struct {
	Items    []orderItem    `json:"items"`
	Payments []orderPayment `json:"payments"`
	Customer *orderCustomer `json:"customer,omitempty"`
}

func buildPayload(req OrderRequest) orderPayload {
	payload := orderPayload{
		Items: []orderItem{{
			Amount:      req.AmountCents,
			Description: logging.Truncate(req.Description, MaxDescriptionLength),
			Quantity:    1,
		}},
		Payments: []orderPayment{{PaymentMethod: paymentMethodPix}},
	}

	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		payload.Customer = &orderCustomer{Name: PlaceholderCustomerName, Email: email}
	}

	return payload
}

// AuthorizationHeader returns the Basic credential for secretKey with an empty password.
func AuthorizationHeader(secretKey string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(secretKey+":"))
}

// CreatePixOrder posts a single-item PIX order and returns the decoded response.
// Non-2xx answers are returned as *HTTPError; the call is never retried.
func (c *Client) CreatePixOrder(ctx context.Context, req OrderRequest) (jsonvalue.Value, error) {
	if c == nil || c.http == nil {
		return jsonvalue.Value{}, errors.New("pagarme client is not initialized")
	}
	if ctx == nil {
		return jsonvalue.Value{}, errors.New("context is required")
	}
	if req.AmountCents < 0 {
		return jsonvalue.Value{}, errors.New("amount must not be negative")
	}

	body, err := json.Marshal(buildPayload(req))
	if err != nil {
		return jsonvalue.Value{}, fmt.Errorf("encode order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ordersPath, bytes.NewReader(body))
	if err != nil {
		return jsonvalue.Value{}, fmt.Errorf("build order request: %w", err)
	}

	requestID := c.newID()
	httpReq.Header.Set("Authorization", AuthorizationHeader(c.secretKey))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, requestID)

	logger := c.logger.WithFields(logging.Fields{
		"event":        "pagarme_order",
		"request_id":   requestID,
		"amount_cents": req.AmountCents,
	})

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		logger.WithError(err).Warn("pagarme request failed")
		return jsonvalue.Value{}, fmt.Errorf("create pix order: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return jsonvalue.Value{}, fmt.Errorf("read order response: %w", err)
	}

	logger = logger.WithFields(logging.Fields{
		"status":      resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.WithField("body", logging.Truncate(string(raw), maxLoggedBody)).Warn("pagarme rejected order")
		return jsonvalue.Value{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	order, err := jsonvalue.Decode(bytes.NewReader(raw))
	if err != nil {
		return jsonvalue.Value{}, fmt.Errorf("decode order response: %w", err)
	}
	if order.Kind() != jsonvalue.Object {
		return jsonvalue.Value{}, fmt.Errorf("decode order response: expected object, got %s", order.Kind())
	}

	logger.Info("pagarme order created")

	return order, nil
}
