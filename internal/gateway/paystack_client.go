package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/telemetry"
)

const DefaultCallTimeout = 10 * time.Second

type PaystackConfig struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	Timeout     time.Duration
}

// PaystackClient calls the Paystack transaction API. Every call passes through
// the circuit breaker and is bounded by the configured timeout; nothing is retried.
type PaystackClient struct {
	httpClient  *http.Client
	breaker     *CircuitBreaker
	baseURL     string
	secretKey   string
	callbackURL string
	timeout     time.Duration
}

type InitializeRequest struct {
	Email       string
	AmountMinor int64
	Reference   string
	CallbackURL string
}

type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type VerifyResult struct {
	Reference       string
	Status          string
	AmountMinor     int64
	Currency        string
	GatewayResponse string
	Channel         string
	PaidAt          *time.Time
}

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initializePayload struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Reference       string     `json:"reference"`
	Status          string     `json:"status"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	GatewayResponse string     `json:"gateway_response"`
	Channel         string     `json:"channel"`
	PaidAt          *time.Time `json:"paid_at"`
}

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("paystack responded with status %d: %s", e.StatusCode, e.Body)
}

func NewPaystackClient(config PaystackConfig, breaker *CircuitBreaker) *PaystackClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &PaystackClient{
		httpClient:  &http.Client{Timeout: timeout},
		breaker:     breaker,
		baseURL:     config.BaseURL,
		secretKey:   config.SecretKey,
		callbackURL: config.CallbackURL,
		timeout:     timeout,
	}
}

// Initialize creates a transaction and returns the checkout URL.
// A provider response with status=false yields models.ErrProviderRejected.
func (c *PaystackClient) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "paystack.initialize")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", req.Reference))

	callback := req.CallbackURL
	if callback == "" {
		callback = c.callbackURL
	}
	payload := initializePayload{
		Email:       req.Email,
		Amount:      req.AmountMinor,
		Reference:   req.Reference,
		CallbackURL: callback,
	}

	var resp envelope[initializeData]
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, "/transaction/initialize", payload, &resp)
	})
	c.observe("initialize", err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if !resp.Status {
		err := fmt.Errorf("%w: %s", models.ErrProviderRejected, resp.Message)
		telemetry.RecordError(span, err)
		return nil, err
	}

	return &InitializeResult{
		AuthorizationURL: resp.Data.AuthorizationURL,
		AccessCode:       resp.Data.AccessCode,
		Reference:        resp.Data.Reference,
	}, nil
}

// Verify returns the provider's current view of a transaction. A declined
// payment is a successful call whose Status is not "success".
func (c *PaystackClient) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "paystack.verify")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", reference))

	var resp envelope[verifyData]
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &resp)
	})
	c.observe("verify", err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if !resp.Status {
		err := fmt.Errorf("%w: %s", models.ErrProviderRejected, resp.Message)
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("payment.provider_status", resp.Data.Status))
	return &VerifyResult{
		Reference:       resp.Data.Reference,
		Status:          resp.Data.Status,
		AmountMinor:     resp.Data.Amount,
		Currency:        resp.Data.Currency,
		GatewayResponse: resp.Data.GatewayResponse,
		Channel:         resp.Data.Channel,
		PaidAt:          resp.Data.PaidAt,
	}, nil
}

func (c *PaystackClient) Snapshot() Snapshot {
	return c.breaker.Snapshot()
}

func (c *PaystackClient) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paystack request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read paystack response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode paystack response: %w", err)
	}
	return nil
}

func (c *PaystackClient) observe(operation string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, models.ErrGatewayUnavailable):
		outcome = "rejected_open"
	default:
		outcome = "error"
		telemetry.Logger.Warn("Paystack call failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
	telemetry.GatewayRequests.WithLabelValues(operation, outcome).Inc()
}
