package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lendarr/lendarr/internal/domain"
)

func (s *RESTServer) getSimulatedDate(c *gin.Context) {
	resp := gin.H{
		"realDate":     s.clk.RealNow(),
		"isSimulating": false,
	}
	if sim := s.clk.Simulated(); sim != nil {
		resp["simulatedDate"] = sim
		resp["isSimulating"] = true
	}
	c.JSON(http.StatusOK, resp)
}

// parseSimDate accepts a full timestamp or a bare calendar date. A bare
// date means noon UTC of that day, so day-granularity comparisons are
// unambiguous on both sides of it.
func parseSimDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be RFC3339 or YYYY-MM-DD")
	}
	return t.Add(12 * time.Hour), nil
}

func (s *RESTServer) setSimulatedDate(c *gin.Context) {
	var req struct {
		Date *string `json:"date"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	// A null date resumes real time without discarding the simulation
	// window; DELETE is the full reset.
	if req.Date == nil {
		result, err := s.simulation.ResumeRealTime(currentBorrower(c).Name)
		if err != nil {
			respondServiceError(c, "Simulation", err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	target, err := parseSimDate(*req.Date)
	if err != nil {
		respondBadRequest(c, err, true)
		return
	}

	result, err := s.simulation.SetSimulatedDate(target, currentBorrower(c).Name)
	if err != nil {
		respondServiceError(c, "Simulation", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *RESTServer) clearSimulatedDate(c *gin.Context) {
	result, err := s.simulation.ClearSimulation(currentBorrower(c).Name)
	if err != nil {
		respondServiceError(c, "Simulation", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *RESTServer) patchCheckout(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Action     string `json:"action" binding:"required"`
		ExtendDays int    `json:"extend_days"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	switch req.Action {
	case "return":
		if err := s.checkouts.Return(id); err != nil {
			respondServiceError(c, "Checkout", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Checkout returned"})

	case "extend":
		checkout, err := s.checkouts.Extend(id, req.ExtendDays)
		if err != nil {
			respondServiceError(c, "Checkout", err)
			return
		}
		c.JSON(http.StatusOK, checkout)

	case "mark_overdue":
		if err := s.checkouts.MarkOverdue(id); err != nil {
			respondServiceError(c, "Checkout", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Checkout marked overdue"})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be return, extend or mark_overdue"})
	}
}

func (s *RESTServer) getAutoReturns(c *gin.Context) {
	tuples, err := s.simulation.AutoReturns()
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, tuples)
}

func (s *RESTServer) putAutoReturns(c *gin.Context) {
	var req struct {
		AutoReturns []domain.AutoReturn `json:"auto_returns"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	if err := s.simulation.ConfigureAutoReturns(req.AutoReturns); err != nil {
		respondServiceError(c, "Checkout", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(req.AutoReturns)})
}
