// Package notification delivers sale emails through an HTTP email service.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prohmpiriya/ticket-storefront/pkg/breaker"
	"github.com/prohmpiriya/ticket-storefront/pkg/retry"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrUnknownKind is returned for an event kind without a template
var ErrUnknownKind = errors.New("no email template for kind")

// templates maps a sale event kind to the email service template
var templates = map[string]string{
	"created":   "sale-created",
	"confirmed": "sale-confirmed",
	"expired":   "sale-expired",
	"cancelled": "sale-cancelled",
	"reminder":  "sale-payment-reminder",
}

// EmailSender sends a templated email for a sale
type EmailSender interface {
	Send(ctx context.Context, kind, saleCode, to string) error
}

// HTTPEmailSenderConfig configures HTTPEmailSender
type HTTPEmailSenderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Breaker *breaker.Config
}

// SendRequest is the body posted to the email service
type SendRequest struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Data     map[string]string `json:"data"`
	// IdempotencyKey lets the email service drop redelivered messages
	IdempotencyKey string `json:"idempotency_key"`
}

// SendResponse is the email service reply
type SendResponse struct {
	MessageID string `json:"message_id"`
}

// HTTPEmailSender posts to the email service's /v1/send endpoint
type HTTPEmailSender struct {
	client *resty.Client
	cb     *gobreaker.CircuitBreaker
}

// NewHTTPEmailSender creates a new HTTPEmailSender
func NewHTTPEmailSender(cfg *HTTPEmailSenderConfig) (*HTTPEmailSender, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("email service url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	bc := cfg.Breaker
	if bc == nil {
		bc = breaker.DefaultConfig("email-service")
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &HTTPEmailSender{client: client, cb: breaker.New(bc)}, nil
}

// Send delivers one email. Client errors are permanent; server errors and
// an open breaker can be retried.
func (s *HTTPEmailSender) Send(ctx context.Context, kind, saleCode, to string) error {
	ctx, span := telemetry.StartSpan(ctx, "notification.email.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("kind", kind),
		attribute.String("sale_code", saleCode),
	)

	template, ok := templates[kind]
	if !ok {
		return retry.Permanent(fmt.Errorf("%w: %s", ErrUnknownKind, kind))
	}
	if to == "" {
		return retry.Permanent(fmt.Errorf("recipient is required"))
	}

	body := &SendRequest{
		Template:       template,
		To:             to,
		Data:           map[string]string{"sale_code": saleCode},
		IdempotencyKey: kind + ":" + saleCode,
	}

	resp, err := breaker.Execute(s.cb, func() (*resty.Response, error) {
		resp, err := s.client.R().
			SetContext(ctx).
			SetHeaders(telemetry.InjectMap(ctx)).
			SetBody(body).
			SetResult(&SendResponse{}).
			Post("/v1/send")
		if err != nil {
			return nil, err
		}
		// only server-side failures count against the breaker
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, fmt.Errorf("email service returned %d", resp.StatusCode())
		}
		return resp, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}

	if resp.IsError() {
		err := fmt.Errorf("email service rejected %s email: %d %s", kind, resp.StatusCode(), resp.String())
		span.SetStatus(codes.Error, err.Error())
		if resp.StatusCode() == http.StatusTooManyRequests {
			return err
		}
		return retry.Permanent(err)
	}

	if result, ok := resp.Result().(*SendResponse); ok {
		span.SetAttributes(attribute.String("message_id", result.MessageID))
	}
	return nil
}

var _ EmailSender = (*HTTPEmailSender)(nil)
