package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lendarr/lendarr/internal/domain"
)

const checkoutColumns = "id, book_id, borrower_id, status, checked_out_at, due_date, returned_at"

func scanCheckout(row interface{ Scan(...interface{}) error }) (*domain.Checkout, error) {
	var c domain.Checkout
	var checkedOutAt, dueDate string
	var returnedAt sql.NullString
	if err := row.Scan(&c.ID, &c.BookID, &c.BorrowerID, &c.Status, &checkedOutAt, &dueDate, &returnedAt); err != nil {
		return nil, err
	}
	var err error
	if c.CheckedOutAt, err = ParseTime(checkedOutAt); err != nil {
		return nil, err
	}
	if c.DueDate, err = ParseTime(dueDate); err != nil {
		return nil, err
	}
	if c.ReturnedAt, err = ScanNullTime(returnedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCheckouts(rows *sql.Rows) ([]*domain.Checkout, error) {
	defer rows.Close()
	var checkouts []*domain.Checkout
	for rows.Next() {
		c, err := scanCheckout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkout: %w", err)
		}
		checkouts = append(checkouts, c)
	}
	return checkouts, rows.Err()
}

// GetCheckout fetches a checkout by id.
func GetCheckout(q Queryer, id int64) (*domain.Checkout, error) {
	row := q.QueryRow("SELECT "+checkoutColumns+" FROM checkouts WHERE id = ?", id)
	c, err := scanCheckout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkout %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout %d: %w", id, err)
	}
	return c, nil
}

// GetActiveCheckoutForBook returns the book's non-returned checkout, or
// ErrNotFound if the book is not out.
func GetActiveCheckoutForBook(q Queryer, bookID int64) (*domain.Checkout, error) {
	row := q.QueryRow("SELECT "+checkoutColumns+" FROM checkouts WHERE book_id = ? AND status != ?",
		bookID, domain.CheckoutReturned)
	c, err := scanCheckout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active checkout for book %d: %w", bookID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active checkout for book %d: %w", bookID, err)
	}
	return c, nil
}

// ListOpenCheckouts returns all non-returned checkouts, oldest first.
func ListOpenCheckouts(q Queryer) ([]*domain.Checkout, error) {
	rows, err := q.Query("SELECT "+checkoutColumns+" FROM checkouts WHERE status != ? ORDER BY checked_out_at, id",
		domain.CheckoutReturned)
	if err != nil {
		return nil, fmt.Errorf("failed to list open checkouts: %w", err)
	}
	return collectCheckouts(rows)
}

// ListCheckoutsForBorrower returns a borrower's checkouts, newest first.
func ListCheckoutsForBorrower(q Queryer, borrowerID int64) ([]*domain.Checkout, error) {
	rows, err := q.Query("SELECT "+checkoutColumns+" FROM checkouts WHERE borrower_id = ? ORDER BY checked_out_at DESC, id DESC",
		borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkouts for borrower %d: %w", borrowerID, err)
	}
	return collectCheckouts(rows)
}

// CountOverdueForBorrower counts the borrower's open checkouts whose due
// date has passed at now. Counts by live date comparison, not by the
// persisted overdue status, so a stale active row still blocks.
func CountOverdueForBorrower(q Queryer, borrowerID int64, now time.Time) (int, error) {
	// Day granularity: a checkout blocks only once its due date's calendar
	// day is fully past.
	var count int
	err := q.QueryRow(
		"SELECT COUNT(*) FROM checkouts WHERE borrower_id = ? AND status != ? AND date(due_date) < date(?)",
		borrowerID, domain.CheckoutReturned, FormatTime(now)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count overdue checkouts for borrower %d: %w", borrowerID, err)
	}
	return count, nil
}

// InsertCheckout creates a checkout and returns its id.
func InsertCheckout(q Queryer, c *domain.Checkout) (int64, error) {
	if c.Status == "" {
		c.Status = domain.CheckoutActive
	}
	res, err := q.Exec(
		"INSERT INTO checkouts (book_id, borrower_id, status, checked_out_at, due_date, returned_at) VALUES (?, ?, ?, ?, ?, ?)",
		c.BookID, c.BorrowerID, c.Status, FormatTime(c.CheckedOutAt), FormatTime(c.DueDate), NullTime(c.ReturnedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert checkout: %w", err)
	}
	return res.LastInsertId()
}

// UpdateCheckoutStatus sets a checkout's status and returned_at in one
// write. returnedAt must be non-nil exactly when status is returned.
func UpdateCheckoutStatus(q Queryer, id int64, status domain.CheckoutStatus, returnedAt *time.Time) error {
	if (status == domain.CheckoutReturned) == (returnedAt == nil) {
		return fmt.Errorf("checkout %d: status %s inconsistent with returned_at", id, status)
	}
	res, err := q.Exec("UPDATE checkouts SET status = ?, returned_at = ? WHERE id = ?",
		status, NullTime(returnedAt), id)
	if err != nil {
		return fmt.Errorf("failed to update checkout %d status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("checkout %d: %w", id, ErrNotFound)
	}
	return nil
}

// RevertOverdueCheckouts flips every overdue checkout back to active.
// Used on simulation clear; genuinely overdue checkouts are re-derived by
// the next notification pass.
func RevertOverdueCheckouts(q Queryer) (int64, error) {
	res, err := q.Exec("UPDATE checkouts SET status = ? WHERE status = ?",
		domain.CheckoutActive, domain.CheckoutOverdue)
	if err != nil {
		return 0, fmt.Errorf("failed to revert overdue checkouts: %w", err)
	}
	return res.RowsAffected()
}

// UpdateCheckoutDueDate moves a checkout's due date (admin extension).
func UpdateCheckoutDueDate(q Queryer, id int64, dueDate time.Time) error {
	res, err := q.Exec("UPDATE checkouts SET due_date = ? WHERE id = ?", FormatTime(dueDate), id)
	if err != nil {
		return fmt.Errorf("failed to update checkout %d due date: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("checkout %d: %w", id, ErrNotFound)
	}
	return nil
}
