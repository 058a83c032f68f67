package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aluware/blocklager/internal/api/websocket"
	"github.com/aluware/blocklager/internal/config"
	"github.com/aluware/blocklager/internal/interfaces"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	router *gin.Engine
	lm     interfaces.LifecycleManager
	logger *zap.Logger
	server *http.Server
	wsHub  *websocket.Hub
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.Default(),
		lm:     lm,
		logger: logger,
		wsHub:  wsHub,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== STOCKYARDS ====================
		yards := v1.Group("/yards")
		{
			yards.GET("", s.listYards)
			yards.GET("/export", s.exportYards)
			yards.POST("/merge", s.mergeYards)
			yards.GET("/:number", s.getYard)
			yards.GET("/:number/pile", s.getYardPile)
			yards.GET("/:number/can-split", s.canSplitYard)
			yards.POST("/:number/split", s.splitYard)
		}

		// ==================== INGOTS ====================
		ingots := v1.Group("/ingots")
		{
			ingots.GET("/:ingotNo", s.getIngot)
			ingots.PATCH("/:ingotNo", s.updateIngot)
		}

		// ==================== TRANSPORT ORDERS ====================
		orders := v1.Group("/orders")
		{
			orders.GET("", s.listPendingOrders)
			orders.GET("/current", s.getCurrentOrder)
			orders.POST("/:id/cancel", s.cancelOrder)
			orders.POST("/storage-requests", s.submitStorageRequest)
			orders.POST("/calloffs", s.submitCalloff)
			orders.POST("/relocations", s.submitRelocation)
		}

		// ==================== SCHEDULER ====================
		sched := v1.Group("/scheduler")
		{
			sched.GET("/status", s.getSchedulerStatus)
			sched.POST("/start", s.startScheduler)
			sched.POST("/stop", s.stopScheduler)
			sched.POST("/clear-blocked", s.clearBlocked)
			sched.POST("/emergency-stop", s.emergencyStop)
			sched.GET("/saw-queue", s.getSawQueue)
			sched.POST("/saw-queue/clear", s.clearSawQueue)
		}

		// ==================== CRANE ====================
		craneGroup := v1.Group("/crane")
		{
			craneGroup.GET("/mode", s.getCraneMode)
			craneGroup.POST("/mode", s.setCraneMode)
			craneGroup.POST("/feedback", s.postCraneFeedback)
			craneGroup.POST("/park", s.parkCrane)
		}

		// ==================== PRODUCTS ====================
		products := v1.Group("/products")
		{
			products.PUT("/:productNo/restriction", s.setProductRestriction)
		}

		// ==================== SYSTEM ====================
		system := v1.Group("/system")
		{
			system.GET("/status", s.getSystemStatus)
			system.POST("/shutdown", s.shutdown)
		}

		// ==================== WEBSOCKET ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
