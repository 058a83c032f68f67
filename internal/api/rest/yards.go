package rest

import (
	"errors"
	"net/http"

	"github.com/aluware/blocklager/internal/intake"
	"github.com/aluware/blocklager/internal/layout"
	"github.com/aluware/blocklager/internal/types"
	"github.com/aluware/blocklager/internal/yard"
	"github.com/gin-gonic/gin"
)

// listYards returns every stockyard with its current pile count.
func (s *Server) listYards(c *gin.Context) {
	index := s.lm.Index()

	slots := index.List()
	out := make([]gin.H, 0, len(slots))
	for _, slot := range slots {
		count, _ := index.Count(slot.ID)
		out = append(out, gin.H{
			"stockyard":  slot,
			"pile_count": count,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"yards": out,
		"count": len(out),
	})
}

// exportYards renders the current layout as a YAML document.
func (s *Server) exportYards(c *gin.Context) {
	data, err := layout.ExportYAML("yard-layout", s.lm.Index())
	if err != nil {
		c.JSON(http.StatusInternalServerError,
			types.NewErrorResponse("EXPORT_FAILED", "Failed to export layout", err.Error()))
		return
	}

	c.Header("Content-Disposition", "attachment; filename=yard-layout.yaml")
	c.Data(http.StatusOK, "application/x-yaml", data)
}

func (s *Server) getYard(c *gin.Context) {
	slot, err := s.lm.Index().GetByNumber(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusNotFound,
			types.NewErrorResponse("YARD_NOT_FOUND", "Stockyard not found", c.Param("number")))
		return
	}

	count, _ := s.lm.Index().Count(slot.ID)
	c.JSON(http.StatusOK, gin.H{
		"stockyard":  slot,
		"pile_count": count,
	})
}

// getYardPile returns the pile contents bottom to top.
func (s *Server) getYardPile(c *gin.Context) {
	index := s.lm.Index()

	slot, err := index.GetByNumber(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusNotFound,
			types.NewErrorResponse("YARD_NOT_FOUND", "Stockyard not found", c.Param("number")))
		return
	}

	ingots, err := index.PileContents(slot.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError,
			types.NewErrorResponse("PILE_READ_FAILED", "Failed to read pile", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"yard_number": slot.YardNumber,
		"ingots":      ingots,
		"count":       len(ingots),
	})
}

type mergeRequest struct {
	YardNumberA string `json:"yard_number_a" binding:"required"`
	YardNumberB string `json:"yard_number_b" binding:"required"`
}

// mergeYards joins two adjacent empty short slots into one long slot.
func (s *Server) mergeYards(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest,
			types.NewErrorResponse("INVALID_REQUEST", "Invalid merge request", err.Error()))
		return
	}

	index := s.lm.Index()

	a, err := index.GetByNumber(req.YardNumberA)
	if err != nil {
		c.JSON(http.StatusNotFound,
			types.NewErrorResponse("YARD_NOT_FOUND", "Stockyard not found", req.YardNumberA))
		return
	}
	b, err := index.GetByNumber(req.YardNumberB)
	if err != nil {
		c.JSON(http.StatusNotFound,
			types.NewErrorResponse("YARD_NOT_FOUND", "Stockyard not found", req.YardNumberB))
		return
	}

	merged, err := s.lm.MergeYards(c.Request.Context(), a.ID, b.ID)
	if err != nil {
		if errors.Is(err, yard.ErrNotEligible) {
			c.JSON(http.StatusConflict,
				types.NewErrorResponse("MERGE_NOT_ELIGIBLE", "Slots cannot be merged", err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError,
			types.NewErrorResponse("MERGE_FAILED", "Failed to merge slots", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"merged":   merged,
		"absorbed": req.YardNumberB,
	})
}

func (s *Server) canSplitYard(c *gin.Context) {
	slot, err := s.lm.Index().GetByNumber(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusNotFound,
			types.NewErrorResponse("YARD_NOT_FOUND", "Stockyard not found", c.Param("number")))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"yard_number": slot.YardNumber,
		"can_split":   s.lm.Index().CanSplit(slot.ID),
	})
}

// splitYard divides an empty long slot back into two short slots.
func (s *Server) splitYard(c *gin.Context) {
	index := s.lm.Index()

	slot, err := index.GetByNumber(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusNotFound,
			types.NewErrorResponse("YARD_NOT_FOUND", "Stockyard not found", c.Param("number")))
		return
	}

	halves, err := s.lm.SplitYard(c.Request.Context(), slot.ID)
	if err != nil {
		if errors.Is(err, yard.ErrNotEligible) {
			c.JSON(http.StatusConflict,
				types.NewErrorResponse("SPLIT_NOT_ELIGIBLE", "Slot cannot be split", err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError,
			types.NewErrorResponse("SPLIT_FAILED", "Failed to split slot", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"halves": halves,
	})
}

// getIngot resolves a single ingot by its business number.
func (s *Server) getIngot(c *gin.Context) {
	ing, err := s.lm.Intake().Ingot(c.Param("ingotNo"))
	if err != nil {
		c.JSON(http.StatusNotFound,
			types.NewErrorResponse("INGOT_NOT_FOUND", "Ingot not found", c.Param("ingotNo")))
		return
	}

	c.JSON(http.StatusOK, ing)
}

// updateIngot patches the operator-mutable flags of an ingot.
func (s *Server) updateIngot(c *gin.Context) {
	var upd intake.IngotUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest,
			types.NewErrorResponse("INVALID_REQUEST", "Invalid ingot update", err.Error()))
		return
	}

	ing, err := s.lm.Intake().UpdateIngotFlags(c.Request.Context(), c.Param("ingotNo"), upd)
	if err != nil {
		c.JSON(http.StatusNotFound,
			types.NewErrorResponse("INGOT_NOT_FOUND", "Ingot not found", c.Param("ingotNo")))
		return
	}

	c.JSON(http.StatusOK, ing)
}
