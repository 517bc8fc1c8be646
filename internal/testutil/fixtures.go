package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
)

// CreateBorrower inserts a borrower and returns it.
func CreateBorrower(t *testing.T, repo *db.Repository, name string, tier domain.Tier) *domain.Borrower {
	t.Helper()
	b := &domain.Borrower{Name: name, Email: name + "@example.com", Tier: tier}
	id, err := db.InsertBorrower(repo.DB, b, "")
	require.NoError(t, err)
	b.ID = id
	return b
}

// CreateBook inserts a book in the given status and returns it.
func CreateBook(t *testing.T, repo *db.Repository, title string, status domain.BookStatus, holdUntil *time.Time) *domain.Book {
	t.Helper()
	b := &domain.Book{Title: title, Author: "Test Author", Status: domain.BookAvailable}
	id, err := db.InsertBook(repo.DB, b)
	require.NoError(t, err)
	b.ID = id
	if status != domain.BookAvailable || holdUntil != nil {
		require.NoError(t, db.UpdateBookStatus(repo.DB, id, status, holdUntil))
		b.Status = status
		b.HoldUntil = holdUntil
	}
	return b
}

// CreateCheckout inserts a checkout and returns it.
func CreateCheckout(t *testing.T, repo *db.Repository, book *domain.Book, borrower *domain.Borrower, checkedOutAt, dueDate time.Time) *domain.Checkout {
	t.Helper()
	c := &domain.Checkout{
		BookID:       book.ID,
		BorrowerID:   borrower.ID,
		Status:       domain.CheckoutActive,
		CheckedOutAt: checkedOutAt,
		DueDate:      dueDate,
	}
	id, err := db.InsertCheckout(repo.DB, c)
	require.NoError(t, err)
	c.ID = id
	return c
}

// JoinWaitlist inserts a waiting entry at the next position for the book.
func JoinWaitlist(t *testing.T, repo *db.Repository, book *domain.Book, borrower *domain.Borrower) *domain.WaitlistEntry {
	t.Helper()
	pos, err := db.NextWaitlistPosition(repo.DB, book.ID)
	require.NoError(t, err)
	e := &domain.WaitlistEntry{
		BookID:     book.ID,
		BorrowerID: borrower.ID,
		Status:     domain.WaitlistWaiting,
		Position:   pos,
		IsPriority: borrower.Tier.IsPriority(),
	}
	id, err := db.InsertWaitlistEntry(repo.DB, e)
	require.NoError(t, err)
	e.ID = id
	return e
}
