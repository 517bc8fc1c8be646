// Package api provides the REST server for the lending engine: catalog and
// dashboard reads, checkout/return/waitlist actions, borrower notifications,
// and the administrative simulated-date and catalog surfaces.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lendarr/lendarr/internal/auth"
	"github.com/lendarr/lendarr/internal/clock"
	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/eventbus"
	"github.com/lendarr/lendarr/internal/logger"
	"github.com/lendarr/lendarr/internal/metrics"
	"github.com/lendarr/lendarr/internal/services"
)

type RESTServer struct {
	router     *gin.Engine
	httpServer *http.Server
	repo       *db.Repository
	clk        *clock.SimClock
	checkouts  *services.CheckoutService
	waitlists  *services.WaitlistService
	holds      *services.HoldService
	simulation *services.SimulationService
	resolver   *auth.Resolver
	bus        eventbus.Publisher
	metrics    *metrics.MetricsService
	startTime  time.Time
}

// ServerDeps contains all dependencies required for the REST server.
type ServerDeps struct {
	Repo       *db.Repository
	Clock      *clock.SimClock
	Checkouts  *services.CheckoutService
	Waitlists  *services.WaitlistService
	Holds      *services.HoldService
	Simulation *services.SimulationService
	Bus        eventbus.Publisher
	Metrics    *metrics.MetricsService
}

func NewRESTServer(deps ServerDeps) *RESTServer {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Request ID middleware for correlation/tracing
	r.Use(func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	})

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		reqID := c.GetString("request_id")
		logger.Errorf("[PANIC RECOVERY] request_id=%s path=%s method=%s error=%v",
			reqID, c.Request.URL.Path, c.Request.Method, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":      "Internal server error",
			"request_id": reqID,
		})
	}))

	s := &RESTServer{
		router:     r,
		repo:       deps.Repo,
		clk:        deps.Clock,
		checkouts:  deps.Checkouts,
		waitlists:  deps.Waitlists,
		holds:      deps.Holds,
		simulation: deps.Simulation,
		resolver:   auth.NewResolver(),
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		startTime:  time.Now(),
	}

	s.setupRoutes()

	return s
}

func (s *RESTServer) setupRoutes() {
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		protected := api.Group("")
		protected.Use(s.authMiddleware())
		{
			protected.GET("/books", s.listBooks)
			protected.GET("/books/:id", s.getBook)
			protected.POST("/books/:id/checkout", s.checkoutBook)
			protected.POST("/books/:id/waitlist", s.joinWaitlist)
			protected.DELETE("/books/:id/waitlist", s.leaveWaitlist)

			protected.POST("/checkouts/:id/return", s.returnCheckout)

			protected.GET("/dashboard", s.getDashboard)

			protected.GET("/notifications", s.listNotifications)
			protected.POST("/notifications/:id/read", s.markNotificationRead)

			admin := protected.Group("/admin")
			admin.Use(s.requireStaff())
			{
				admin.GET("/simulated-date", s.getSimulatedDate)
				admin.POST("/simulated-date", s.setSimulatedDate)
				admin.DELETE("/simulated-date", s.clearSimulatedDate)

				admin.PATCH("/checkouts/:id", s.patchCheckout)

				admin.GET("/auto-returns", s.getAutoReturns)
				admin.PUT("/auto-returns", s.putAutoReturns)

				admin.POST("/books", s.createBook)
				admin.PATCH("/books/:id", s.patchBook)
			}
		}
	}
}

func (s *RESTServer) handleHealth(c *gin.Context) {
	if err := s.repo.DB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"version": "dev",
	})
}

func (s *RESTServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *RESTServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

const borrowerKey = "borrower"

func (s *RESTServer) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-API-Key")
		if token == "" {
			token = c.GetHeader("Authorization")
			if len(token) > 7 && token[:7] == "Bearer " {
				token = token[7:]
			}
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authentication token provided"})
			c.Abort()
			return
		}

		hashes, err := db.ListBorrowerKeyHashes(s.repo.DB)
		if err != nil {
			respondAuthError(c, err)
			c.Abort()
			return
		}

		borrowerID, ok := s.resolver.Resolve(token, hashes)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		borrower, err := db.GetBorrower(s.repo.DB, borrowerID)
		if err != nil {
			respondAuthError(c, err)
			c.Abort()
			return
		}

		c.Set(borrowerKey, borrower)
		c.Next()
	}
}

// requireStaff gates the admin surface to librarian and admin tiers.
func (s *RESTServer) requireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		borrower := currentBorrower(c)
		if borrower == nil || !borrower.Tier.IsStaff() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Staff access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentBorrower(c *gin.Context) *domain.Borrower {
	v, ok := c.Get(borrowerKey)
	if !ok {
		return nil
	}
	borrower, ok := v.(*domain.Borrower)
	if !ok {
		return nil
	}
	return borrower
}

// pathID parses the :id path parameter.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrMsgInvalidID})
		return 0, false
	}
	return id, true
}
