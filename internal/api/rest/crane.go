package rest

import (
	"net/http"
	"time"

	"github.com/aluware/blocklager/internal/crane"
	"github.com/aluware/blocklager/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) getCraneMode(c *gin.Context) {
	mode := s.lm.CraneGateway().Mode()
	c.JSON(http.StatusOK, gin.H{
		"mode":      mode,
		"wire_code": mode.WireCode(),
	})
}

type setModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// setCraneMode switches between automatic, manual and semi-automatic
// control. Accepts the long name or the one-letter telegram code.
func (s *Server) setCraneMode(c *gin.Context) {
	var req setModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest,
			types.NewErrorResponse("INVALID_REQUEST", "Invalid mode request", err.Error()))
		return
	}

	mode := crane.CraneMode(req.Mode)
	switch mode {
	case crane.ModeAutomatic, crane.ModeManual, crane.ModeSemiAutomatic:
	default:
		parsed, err := crane.ParseCraneMode(req.Mode)
		if err != nil {
			c.JSON(http.StatusBadRequest,
				types.NewErrorResponse("INVALID_MODE", "Unknown crane mode", req.Mode))
			return
		}
		mode = parsed
	}

	s.lm.CraneGateway().SetMode(mode)
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

type feedbackRequest struct {
	Kind      string `json:"kind" binding:"required"`
	OrderID   string `json:"order_id"`
	FaultCode string `json:"fault_code"`
}

// postCraneFeedback injects a feedback telegram. Used by the PLC
// bridge and by operators simulating crane responses during
// commissioning.
func (s *Server) postCraneFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest,
			types.NewErrorResponse("INVALID_REQUEST", "Invalid feedback", err.Error()))
		return
	}

	kind := crane.FeedbackKind(req.Kind)
	switch kind {
	case crane.FeedbackPickConfirmed, crane.FeedbackDropConfirmed,
		crane.FeedbackFault, crane.FeedbackInterlockOpened, crane.FeedbackInterlockCleared:
	default:
		c.JSON(http.StatusBadRequest,
			types.NewErrorResponse("INVALID_FEEDBACK_KIND", "Unknown feedback kind", req.Kind))
		return
	}

	fb := crane.Feedback{
		Kind:      kind,
		FaultCode: req.FaultCode,
		At:        time.Now(),
	}
	if req.OrderID != "" {
		id, err := uuid.Parse(req.OrderID)
		if err != nil {
			c.JSON(http.StatusBadRequest,
				types.NewErrorResponse("INVALID_ORDER_ID", "Order ID must be a UUID", req.OrderID))
			return
		}
		fb.OrderID = id
	}

	s.lm.CraneGateway().OnFeedback(fb)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// parkCrane sends the crane to its parking position.
func (s *Server) parkCrane(c *gin.Context) {
	if err := s.lm.CraneGateway().Park(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway,
			types.NewErrorResponse("PARK_FAILED", "Failed to send park command", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"parked": true})
}
