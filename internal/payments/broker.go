package payments

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

	"github.com/angelmondragon/pickup-orders/pkg/config"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
	"github.com/angelmondragon/pickup-orders/pkg/metrics"
)

const (
	defaultBaseURL              = "https://api.razorpay.com"
	defaultTimeout              = 10 * time.Second
	ordersPath                  = "/v1/orders"
	responseBodyReadLimit int64 = 1024
)

// Gateway creates payment intents with the external gateway.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	KeyID() string
}

// IntentRequest is the amount to collect plus reconciliation notes.
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Intent is the gateway-side order that the client completes checkout against.
type Intent struct {
	ID          string
	AmountMinor int64
	Currency    string
	Status      string
}

// Broker talks to a Razorpay-compatible orders API.
type Broker struct {
	httpClient    *http.Client
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	metrics       *metrics.OrderMetrics
}

// Option configures optional broker behavior.
type Option func(*Broker)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Broker) {
		if client != nil {
			b.httpClient = client
		}
	}
}

// WithMetrics records gateway latency by outcome.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

// NewBroker builds the broker. Missing credentials are not an error here so the
// cash path keeps working; CreateIntent reports them instead.
func NewBroker(cfg config.GatewayConfig, opts ...Option) *Broker {
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > defaultTimeout {
		timeout = defaultTimeout
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	broker := &Broker{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		keyID:         strings.TrimSpace(cfg.KeyID),
		keySecret:     strings.TrimSpace(cfg.KeySecret),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(broker)
		}
	}
	return broker
}

// KeyID is the public key handed to checkout clients.
func (b *Broker) KeyID() string {
	return b.keyID
}

// SigningSecret is the shared webhook secret.
func (b *Broker) SigningSecret() string {
	return b.webhookSecret
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateIntent posts a new gateway order. Configuration problems are fatal;
// transport failures, 429 and 5xx are reported as retryable but never retried here.
func (b *Broker) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if b.keyID == "" || b.keySecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayConfig, "payment gateway credentials are not configured")
	}
	if req.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent amount must be positive")
	}

	payload, err := json.Marshal(createOrderRequest{
		Amount:   req.AmountMinor,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal intent request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+ordersPath, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayConfig, err, "build intent request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(b.keyID, b.keySecret)

	started := time.Now()
	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		b.metrics.ObserveGateway("transport_error", time.Since(started))
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "payment gateway unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		code := classifyStatus(resp.StatusCode)
		b.metrics.ObserveGateway(outcomeFor(code), time.Since(started))
		return nil, pkgerrors.Wrap(code, cause, "payment gateway rejected intent").
			WithDetails(map[string]any{"gateway_status": resp.StatusCode})
	}

	var apiResp createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		b.metrics.ObserveGateway("transport_error", time.Since(started))
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "decode intent response")
	}
	if apiResp.ID == "" {
		b.metrics.ObserveGateway("transport_error", time.Since(started))
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, errors.New("empty intent id"), "decode intent response")
	}
	b.metrics.ObserveGateway("ok", time.Since(started))

	return &Intent{
		ID:          apiResp.ID,
		AmountMinor: apiResp.Amount,
		Currency:    apiResp.Currency,
		Status:      apiResp.Status,
	}, nil
}

func classifyStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return pkgerrors.CodeGatewayUnavailable
	default:
		return pkgerrors.CodeGatewayConfig
	}
}

func outcomeFor(code pkgerrors.Code) string {
	if code == pkgerrors.CodeGatewayConfig {
		return "rejected"
	}
	return "unavailable"
}
