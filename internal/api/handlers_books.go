package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/logger"
)

func (s *RESTServer) listBooks(c *gin.Context) {
	books, err := db.ListBooks(s.repo.DB)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	out := make([]gin.H, 0, len(books))
	for _, book := range books {
		waiting, err := db.CountOpenForBook(s.repo.DB, book.ID)
		if err != nil {
			respondDatabaseError(c, err)
			return
		}
		out = append(out, gin.H{
			"book":          book,
			"waitlistCount": waiting,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *RESTServer) getBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	// A read is the trigger for lazy hold advancement.
	if err := s.holds.AdvanceBook(id); err != nil && !errors.Is(err, db.ErrNotFound) {
		logger.Warnf("API: failed to advance book %d: %v", id, err)
	}

	book, err := db.GetBook(s.repo.DB, id)
	if err != nil {
		respondServiceError(c, "Book", err)
		return
	}

	entries, err := s.waitlists.EntriesForBook(id)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	borrower := currentBorrower(c)
	eligible, reason, err := s.holds.CanCheckout(s.repo.DB, book, borrower)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	resp := gin.H{
		"book":          book,
		"waitlist":      entries,
		"canCheckout":   eligible,
		"checkoutBlock": reason,
	}

	if checkout, err := db.GetActiveCheckoutForBook(s.repo.DB, id); err == nil {
		resp["dueDate"] = checkout.DueDate
		if borrower.Tier.IsStaff() || checkout.BorrowerID == borrower.ID {
			resp["activeCheckout"] = checkout
		}
	} else if !errors.Is(err, db.ErrNotFound) {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *RESTServer) checkoutBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	borrower := currentBorrower(c)

	checkout, err := s.checkouts.Checkout(id, borrower)
	if err != nil {
		respondServiceError(c, "Book", err)
		return
	}
	c.JSON(http.StatusCreated, checkout)
}

func (s *RESTServer) returnCheckout(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	borrower := currentBorrower(c)

	checkout, err := db.GetCheckout(s.repo.DB, id)
	if err != nil {
		respondServiceError(c, "Checkout", err)
		return
	}
	if checkout.BorrowerID != borrower.ID && !borrower.Tier.IsStaff() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your checkout"})
		return
	}

	if err := s.checkouts.Return(id); err != nil {
		respondServiceError(c, "Checkout", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Book returned"})
}

func (s *RESTServer) joinWaitlist(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	entry, err := s.waitlists.Join(id, currentBorrower(c))
	if err != nil {
		respondServiceError(c, "Book", err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *RESTServer) leaveWaitlist(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.waitlists.Leave(id, currentBorrower(c).ID); err != nil {
		respondServiceError(c, "Waitlist entry", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left waitlist"})
}

func (s *RESTServer) createBook(c *gin.Context) {
	var req struct {
		Title  string `json:"title" binding:"required"`
		Author string `json:"author"`
		ISBN   string `json:"isbn"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	book := &domain.Book{
		Title:  req.Title,
		Author: req.Author,
		ISBN:   req.ISBN,
		Status: domain.BookAvailable,
	}
	id, err := db.InsertBook(s.repo.DB, book)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	book.ID = id
	c.JSON(http.StatusCreated, book)
}

func (s *RESTServer) patchBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Status domain.BookStatus `json:"status" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	book, err := db.GetBook(s.repo.DB, id)
	if err != nil {
		respondServiceError(c, "Book", err)
		return
	}

	// Deactivation is allowed from any state; reactivation only brings an
	// inactive book back into circulation. Other transitions belong to the
	// lifecycle engine, not the admin surface.
	switch req.Status {
	case domain.BookInactive:
	case domain.BookAvailable:
		if book.Status != domain.BookInactive {
			c.JSON(http.StatusConflict, gin.H{"error": "only inactive books can be reactivated"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be inactive or available"})
		return
	}

	if err := db.UpdateBookStatus(s.repo.DB, id, req.Status, nil); err != nil {
		respondDatabaseError(c, err)
		return
	}
	book.Status = req.Status
	book.HoldUntil = nil

	if s.bus != nil && req.Status == domain.BookInactive {
		if err := s.bus.Publish(domain.Event{
			AggregateType: "book",
			AggregateID:   fmt.Sprintf("%d", id),
			EventType:     domain.EventBookDeactivated,
			Actor:         currentBorrower(c).Name,
		}); err != nil {
			logger.Debugf("API: failed to publish deactivation event: %v", err)
		}
	}
	c.JSON(http.StatusOK, book)
}
