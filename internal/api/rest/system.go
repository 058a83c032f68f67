package rest

import (
	"context"
	"net/http"

	"github.com/aluware/blocklager/internal/types"
	"github.com/gin-gonic/gin"
)

type restrictionRequest struct {
	Restricted bool `json:"restricted"`
}

// setProductRestriction toggles the storage restriction for a product.
// Restricted products are rejected at intake.
func (s *Server) setProductRestriction(c *gin.Context) {
	var req restrictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest,
			types.NewErrorResponse("INVALID_REQUEST", "Invalid restriction request", err.Error()))
		return
	}

	productNo := c.Param("productNo")
	s.lm.Intake().SetProductRestriction(productNo, req.Restricted)

	c.JSON(http.StatusOK, gin.H{
		"product_no": productNo,
		"restricted": req.Restricted,
	})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

func (s *Server) shutdown(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Shutdown initiated",
	})

	// Trigger shutdown in background
	go func() {
		ctx := context.Background()
		s.lm.Shutdown(ctx)
	}()
}
