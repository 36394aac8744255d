package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/dto"
	"github.com/prohmpiriya/ticket-storefront/internal/service"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"github.com/prohmpiriya/ticket-storefront/pkg/response"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// SignatureHeader carries "sha256=<hex hmac of the raw body>"
	SignatureHeader = "X-Signature"
	signaturePrefix = "sha256="
	maxWebhookBody  = 64 << 10
)

// WebhookHandler receives payment gateway callbacks
type WebhookHandler struct {
	transitions         service.TransitionService
	secret              []byte
	stripeWebhookSecret string
}

// NewWebhookHandler creates a new WebhookHandler. An empty stripe secret
// disables the Stripe endpoint.
func NewWebhookHandler(transitions service.TransitionService, secret, stripeWebhookSecret string) *WebhookHandler {
	return &WebhookHandler{
		transitions:         transitions,
		secret:              []byte(secret),
		stripeWebhookSecret: stripeWebhookSecret,
	}
}

// Sign returns the signature header value for body
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) verify(body []byte, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) || len(h.secret) == 0 {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// HandlePaymentCallback handles POST /webhooks/payments
func (h *WebhookHandler) HandlePaymentCallback(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.webhook.payment")
	defer span.End()
	log := logger.Get()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, err)
		return
	}

	if !h.verify(body, c.GetHeader(SignatureHeader)) {
		log.WarnContext(ctx, "Rejected payment callback with bad signature")
		response.Unauthorized(c, "invalid signature")
		return
	}

	var req dto.PaymentCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		badRequest(c, err)
		return
	}
	span.SetAttributes(
		attribute.String("sale_code", req.SaleCode),
		attribute.String("status", req.Status),
		attribute.String("event_id", req.EventID),
	)

	if req.SaleCode == "" {
		handleError(c, domain.NewValidationError("sale_code", "is required"))
		return
	}
	target := domain.PaymentStatus(req.Status)
	if target != domain.PaymentStatusConfirmed && target != domain.PaymentStatusExpired {
		handleError(c, domain.NewValidationError("status", "must be confirmed or expired"))
		return
	}

	sale, err := h.transitions.Transition(ctx, req.SaleCode, target)
	if err != nil {
		log.WarnContext(ctx, "Payment callback not applied",
			zap.String("sale_code", req.SaleCode),
			zap.String("status", req.Status),
			zap.Error(err),
		)
		handleError(c, err)
		return
	}

	log.InfoContext(ctx, "Payment callback applied",
		zap.String("sale_code", sale.Code),
		zap.String("payment_status", string(sale.PaymentStatus)),
	)
	c.JSON(http.StatusOK, dto.PaymentCallbackResponse{
		Received: true,
		SaleCode: sale.Code,
		Status:   string(sale.PaymentStatus),
	})
}

// HandleStripeWebhook handles POST /webhooks/stripe. A succeeded payment
// intent confirms the sale named in its metadata.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.webhook.stripe")
	defer span.End()
	log := logger.Get()

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, err)
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		response.BadRequest(c, "missing Stripe-Signature header")
		return
	}

	event, err := webhook.ConstructEvent(payload, sigHeader, h.stripeWebhookSecret)
	if err != nil {
		log.WarnContext(ctx, "Failed to verify Stripe webhook signature", zap.Error(err))
		response.BadRequest(c, "invalid signature")
		return
	}
	span.SetAttributes(attribute.String("event_type", string(event.Type)))

	if event.Type != "payment_intent.succeeded" {
		c.JSON(http.StatusOK, dto.PaymentCallbackResponse{Received: true})
		return
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		badRequest(c, err)
		return
	}
	code := intent.Metadata["sale_code"]
	if code == "" {
		c.JSON(http.StatusOK, dto.PaymentCallbackResponse{Received: true})
		return
	}

	sale, err := h.transitions.Transition(ctx, code, domain.PaymentStatusConfirmed)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, dto.PaymentCallbackResponse{Received: true, SaleCode: sale.Code, Status: string(sale.PaymentStatus)})
	case errors.Is(err, domain.ErrNotFound):
		// declined card purchases are never persisted
		log.InfoContext(ctx, "Stripe payment for unknown sale", zap.String("sale_code", code))
		c.JSON(http.StatusOK, dto.PaymentCallbackResponse{Received: true, SaleCode: code})
	default:
		handleError(c, err)
	}
}
