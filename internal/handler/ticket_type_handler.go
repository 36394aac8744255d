package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/ticket-storefront/internal/dto"
	"github.com/prohmpiriya/ticket-storefront/internal/service"
	"github.com/prohmpiriya/ticket-storefront/pkg/response"
)

// TicketTypeHandler handles ticket type catalog requests
type TicketTypeHandler struct {
	service service.TicketTypeService
}

// NewTicketTypeHandler creates a new ticket type handler
func NewTicketTypeHandler(svc service.TicketTypeService) *TicketTypeHandler {
	return &TicketTypeHandler{service: svc}
}

// Create handles POST /ticket-types
func (h *TicketTypeHandler) Create(c *gin.Context) {
	var req dto.CreateTicketTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tt, err := h.service.Create(c.Request.Context(), req.ToDomain())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, dto.TicketTypeFromDomain(tt))
}

// Get handles GET /ticket-types/:id
func (h *TicketTypeHandler) Get(c *gin.Context) {
	tt, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.TicketTypeFromDomain(tt))
}

// ListByEvent handles GET /events/:event_id/ticket-types
func (h *TicketTypeHandler) ListByEvent(c *gin.Context) {
	list, err := h.service.ListByEvent(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.TicketTypesFromDomain(list))
}

// Update handles PUT /ticket-types/:id
func (h *TicketTypeHandler) Update(c *gin.Context) {
	var req dto.UpdateTicketTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tt, err := h.service.Update(c.Request.Context(), c.Param("id"), req.ToUpdate())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.TicketTypeFromDomain(tt))
}

// Delete handles DELETE /ticket-types/:id
func (h *TicketTypeHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.NoContent(c)
}
