package rest

import (
	"errors"
	"net/http"

	"github.com/aluware/blocklager/internal/intake"
	"github.com/aluware/blocklager/internal/scheduler"
	"github.com/aluware/blocklager/internal/types"
	"github.com/aluware/blocklager/internal/yard"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// listPendingOrders returns the queued orders in dispatch order.
func (s *Server) listPendingOrders(c *gin.Context) {
	orders := s.lm.Scheduler().QueueSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

func (s *Server) getCurrentOrder(c *gin.Context) {
	o, ok := s.lm.Scheduler().CurrentOrder()
	if !ok {
		c.JSON(http.StatusNotFound,
			types.NewErrorResponse("NO_ACTIVE_ORDER", "No order is being processed", nil))
		return
	}
	c.JSON(http.StatusOK, o)
}

// cancelOrder removes a pending order from the queue. Orders already
// handed to the crane cannot be cancelled.
func (s *Server) cancelOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest,
			types.NewErrorResponse("INVALID_ORDER_ID", "Order ID must be a UUID", c.Param("id")))
		return
	}

	if err := s.lm.Scheduler().Cancel(c.Request.Context(), id); err != nil {
		if errors.Is(err, scheduler.ErrNotPending) {
			c.JSON(http.StatusConflict,
				types.NewErrorResponse("NOT_CANCELLABLE", "Order is not pending", err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError,
			types.NewErrorResponse("CANCEL_FAILED", "Failed to cancel order", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": id})
}

// submitStorageRequest takes a saw-origin pickup request and creates
// the transport order that will store the ingot.
func (s *Server) submitStorageRequest(c *gin.Context) {
	var req intake.StorageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest,
			types.NewErrorResponse("INVALID_REQUEST", "Invalid storage request", err.Error()))
		return
	}

	o, err := s.lm.Intake().SubmitStorageRequest(c.Request.Context(), req)
	if err != nil {
		s.writeIntakeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, o)
}

type calloffRequest struct {
	IngotNo string `json:"ingot_no" binding:"required"`
}

// submitCalloff requests delivery of a stored ingot to a loading yard.
func (s *Server) submitCalloff(c *gin.Context) {
	var req calloffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest,
			types.NewErrorResponse("INVALID_REQUEST", "Invalid calloff", err.Error()))
		return
	}

	o, err := s.lm.Intake().HandleCalloff(c.Request.Context(), req.IngotNo)
	if err != nil {
		s.writeIntakeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, o)
}

type relocationRequest struct {
	IngotNo  string `json:"ingot_no" binding:"required"`
	ToYardNo string `json:"to_yard_no" binding:"required"`
}

// submitRelocation moves an ingot to an operator-chosen slot.
func (s *Server) submitRelocation(c *gin.Context) {
	var req relocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest,
			types.NewErrorResponse("INVALID_REQUEST", "Invalid relocation", err.Error()))
		return
	}

	o, err := s.lm.Intake().SubmitRelocation(c.Request.Context(), req.IngotNo, req.ToYardNo)
	if err != nil {
		s.writeIntakeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, o)
}

// writeIntakeError maps intake sentinels onto HTTP statuses.
func (s *Server) writeIntakeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, intake.ErrValidation):
		c.JSON(http.StatusBadRequest,
			types.NewErrorResponse("VALIDATION_FAILED", "Request validation failed", err.Error()))
	case errors.Is(err, intake.ErrDuplicateIngot):
		c.JSON(http.StatusConflict,
			types.NewErrorResponse("DUPLICATE_INGOT", "Ingot number already registered", err.Error()))
	case errors.Is(err, intake.ErrProductRestricted):
		c.JSON(http.StatusUnprocessableEntity,
			types.NewErrorResponse("PRODUCT_RESTRICTED", "Product is restricted", err.Error()))
	case errors.Is(err, intake.ErrIngotNotFound):
		c.JSON(http.StatusNotFound,
			types.NewErrorResponse("INGOT_NOT_FOUND", "Ingot not found", err.Error()))
	case errors.Is(err, intake.ErrIngotNotReachable):
		c.JSON(http.StatusConflict,
			types.NewErrorResponse("INGOT_NOT_REACHABLE", "Ingot is not on top of its pile", err.Error()))
	case errors.Is(err, yard.ErrAllocationExhausted):
		c.JSON(http.StatusConflict,
			types.NewErrorResponse("NO_FREE_SLOT", "No eligible stockyard available", err.Error()))
	case errors.Is(err, yard.ErrNotFound):
		c.JSON(http.StatusNotFound,
			types.NewErrorResponse("YARD_NOT_FOUND", "Stockyard not found", err.Error()))
	case errors.Is(err, yard.ErrPileFull):
		c.JSON(http.StatusConflict,
			types.NewErrorResponse("PILE_FULL", "Destination pile is full", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError,
			types.NewErrorResponse("INTERNAL_ERROR", "Failed to process request", err.Error()))
	}
}
