package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/dto"
	"github.com/prohmpiriya/ticket-storefront/internal/service"
	"github.com/prohmpiriya/ticket-storefront/pkg/response"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SaleHandler handles sale HTTP requests
type SaleHandler struct {
	purchases   service.PurchaseService
	transitions service.TransitionService
}

// NewSaleHandler creates a new sale handler
func NewSaleHandler(purchases service.PurchaseService, transitions service.TransitionService) *SaleHandler {
	return &SaleHandler{
		purchases:   purchases,
		transitions: transitions,
	}
}

// CreateSale handles POST /sales
func (h *SaleHandler) CreateSale(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.sale.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		badRequest(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("ticket_type_id", req.TicketTypeID),
		attribute.Int("quantity", req.Quantity),
		attribute.String("payment_method", req.PaymentMethod),
	)

	sale, err := h.purchases.Purchase(ctx, req.ToPurchaseRequest())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("sale_code", sale.Code))
	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.SaleFromDomain(sale))
}

// GetSale handles GET /sales/:code
func (h *SaleHandler) GetSale(c *gin.Context) {
	sale, err := h.purchases.GetSale(c.Request.Context(), c.Param("code"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.SaleFromDomain(sale))
}

// ConfirmSale handles POST /sales/:code/confirm
func (h *SaleHandler) ConfirmSale(c *gin.Context) {
	h.transition(c, "handler.sale.confirm", domain.PaymentStatusConfirmed)
}

// ExpireSale handles POST /sales/:code/expire
func (h *SaleHandler) ExpireSale(c *gin.Context) {
	h.transition(c, "handler.sale.expire", domain.PaymentStatusExpired)
}

// CancelSale handles POST /sales/:code/cancel
func (h *SaleHandler) CancelSale(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.sale.cancel")
	defer span.End()

	code := c.Param("code")
	span.SetAttributes(attribute.String("sale_code", code))

	sale, err := h.transitions.Cancel(ctx, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}
	response.Success(c, dto.SaleFromDomain(sale))
}

func (h *SaleHandler) transition(c *gin.Context, spanName string, target domain.PaymentStatus) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), spanName)
	defer span.End()

	code := c.Param("code")
	span.SetAttributes(attribute.String("sale_code", code))

	sale, err := h.transitions.Transition(ctx, code, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}
	response.Success(c, dto.SaleFromDomain(sale))
}
