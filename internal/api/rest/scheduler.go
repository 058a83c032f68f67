package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) getSchedulerStatus(c *gin.Context) {
	sched := s.lm.Scheduler()
	blocked, reason := sched.IsBlocked()

	status := gin.H{
		"auto_processing": sched.IsEnabled(),
		"processing":      sched.IsProcessing(),
		"blocked":         blocked,
		"pending_orders":  sched.PendingOrderCount(),
		"saw_queue_len":   sched.SawQueue().Len(),
	}
	if blocked {
		status["blocked_reason"] = reason
	}
	if o, ok := sched.CurrentOrder(); ok {
		status["current_order"] = o
	}

	c.JSON(http.StatusOK, status)
}

// startScheduler enables automatic order processing.
func (s *Server) startScheduler(c *gin.Context) {
	s.lm.Scheduler().Start()
	c.JSON(http.StatusOK, gin.H{"auto_processing": true})
}

// stopScheduler stops dispatching new orders. An order already in
// flight keeps running to completion.
func (s *Server) stopScheduler(c *gin.Context) {
	s.lm.Scheduler().Stop()
	c.JSON(http.StatusOK, gin.H{"auto_processing": false})
}

// clearBlocked acknowledges a fault and lets the scheduler dispatch
// again after the operator has cleared the physical situation.
func (s *Server) clearBlocked(c *gin.Context) {
	s.lm.Scheduler().ClearBlocked()
	c.JSON(http.StatusOK, gin.H{"blocked": false})
}

func (s *Server) emergencyStop(c *gin.Context) {
	s.lm.Scheduler().EmergencyStop()
	c.JSON(http.StatusOK, gin.H{"emergency_stop": true})
}

func (s *Server) getSawQueue(c *gin.Context) {
	ingots := s.lm.Scheduler().SawQueue().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"ingots": ingots,
		"count":  len(ingots),
	})
}

// clearSawQueue drops every staged saw ingot and cancels the pending
// orders that reference them.
func (s *Server) clearSawQueue(c *gin.Context) {
	removed := s.lm.Scheduler().ClearSawQueue(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
