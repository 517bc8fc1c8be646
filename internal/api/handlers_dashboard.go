package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/logger"
)

// getDashboard is the main borrower view. Loading it drives the lazy
// lifecycle pass: expired holds advance and pending due-soon/overdue
// notifications are generated before the response is assembled, so the
// state it shows is always current at the effective date.
func (s *RESTServer) getDashboard(c *gin.Context) {
	borrower := currentBorrower(c)
	now := s.clk.Now()

	if _, err := s.holds.AdvanceAll(); err != nil {
		logger.Warnf("API: dashboard hold advancement failed: %v", err)
	}
	if _, err := s.simulation.GenerateNotifications(); err != nil {
		logger.Warnf("API: dashboard notification pass failed: %v", err)
	}

	checkouts, err := db.ListCheckoutsForBorrower(s.repo.DB, borrower.ID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	policy := domain.PolicyFor(borrower.Tier)
	loans := make([]gin.H, 0, len(checkouts))
	for _, checkout := range checkouts {
		entry := gin.H{
			"checkout":     checkout,
			"lateFeeCents": s.checkouts.LateFeeCents(checkout, borrower.Tier),
		}
		if checkout.Status != domain.CheckoutReturned {
			entry["isOverdue"] = domain.IsOverdue(checkout.DueDate, now)
			entry["isDueSoon"] = domain.IsDueSoon(checkout.DueDate, now, s.dueSoonDays())
		}
		if book, err := db.GetBook(s.repo.DB, checkout.BookID); err == nil {
			entry["book"] = book
		}
		loans = append(loans, entry)
	}

	notifications, err := db.ListNotificationsForBorrower(s.repo.DB, borrower.ID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	unread := 0
	for _, n := range notifications {
		if !n.Read {
			unread++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"borrower":            borrower,
		"effectiveDate":       now,
		"isSimulating":        s.clk.Simulated() != nil,
		"loanDays":            policy.LoanDays,
		"checkouts":           loans,
		"unreadNotifications": unread,
	})
}

// dueSoonDays reads the configured lookahead; the simulation service owns
// the canonical value but the dashboard needs it for display flags.
func (s *RESTServer) dueSoonDays() int {
	return s.simulation.DueSoonDays()
}

func (s *RESTServer) listNotifications(c *gin.Context) {
	borrower := currentBorrower(c)

	notifications, err := db.ListNotificationsForBorrower(s.repo.DB, borrower.ID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

func (s *RESTServer) markNotificationRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := db.MarkNotificationRead(s.repo.DB, id, currentBorrower(c).ID); err != nil {
		respondServiceError(c, "Notification", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked read"})
}
