package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lendarr/lendarr/internal/clock"
	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/eventbus"
	"github.com/lendarr/lendarr/internal/logger"
	"github.com/lendarr/lendarr/internal/notifier"
)

// CheckoutService performs checkouts and returns, computes due dates and
// late fees from the tier policy table, and applies the admin overrides.
type CheckoutService struct {
	repo    *db.Repository
	clk     clock.Clock
	emitter notifier.Emitter
	bus     eventbus.Publisher
	holds   *HoldService
	locks   *BookLocks
}

// NewCheckoutService creates a CheckoutService.
func NewCheckoutService(repo *db.Repository, clk clock.Clock, emitter notifier.Emitter, bus eventbus.Publisher, holds *HoldService, locks *BookLocks) *CheckoutService {
	return &CheckoutService{repo: repo, clk: clk, emitter: emitter, bus: bus, holds: holds, locks: locks}
}

// Checkout loans a book to a borrower. The borrower must be eligible under
// the hold rules and have no blocking overdue checkouts. The due date is
// the effective now plus the tier's loan period.
func (s *CheckoutService) Checkout(bookID int64, borrower *domain.Borrower) (*domain.Checkout, error) {
	unlock := s.locks.Lock(bookID)
	defer unlock()

	now := s.clk.Now()
	policy := domain.PolicyFor(borrower.Tier)

	var checkout *domain.Checkout
	var events []domain.Event
	err := s.repo.Tx(func(tx *sql.Tx) error {
		book, err := db.GetBook(tx, bookID)
		if err != nil {
			return err
		}

		eligible, reason, err := s.holds.CanCheckout(tx, book, borrower)
		if err != nil {
			return err
		}
		if !eligible {
			return fmt.Errorf("%s: %w", reason, ErrConflict)
		}

		overdueCount, err := db.CountOverdueForBorrower(tx, borrower.ID, now)
		if err != nil {
			return err
		}
		if overdueCount > 0 {
			return fmt.Errorf("borrower has %d overdue checkout(s): %w", overdueCount, ErrConflict)
		}

		checkout = &domain.Checkout{
			BookID:       bookID,
			BorrowerID:   borrower.ID,
			Status:       domain.CheckoutActive,
			CheckedOutAt: now,
			DueDate:      now.AddDate(0, 0, policy.LoanDays),
		}
		id, err := db.InsertCheckout(tx, checkout)
		if err != nil {
			return err
		}
		checkout.ID = id

		if err := db.UpdateBookStatus(tx, bookID, domain.BookCheckedOut, nil); err != nil {
			return err
		}

		// A claimed hold consumes the borrower's waitlist entry.
		if entry, err := db.GetOpenEntryForBorrower(tx, bookID, borrower.ID); err == nil {
			if err := db.UpdateWaitlistEntryStatus(tx, entry.ID, domain.WaitlistExpired, entry.NotifiedAt, entry.ExpiresAt); err != nil {
				return err
			}
		} else if !errors.Is(err, db.ErrNotFound) {
			return err
		}

		n := &domain.Notification{
			BorrowerID: borrower.ID,
			Type:       domain.NotifyCheckoutConfirmed,
			Title:      fmt.Sprintf("Checked out %q", book.Title),
			Message:    fmt.Sprintf("Due back %s.", checkout.DueDate.Format("Jan 2, 2006")),
			BookID:     &bookID,
		}
		if err := s.emitter.Create(tx, n, now); err != nil {
			logger.Warnf("Checkout: failed to create confirmation notification: %v", err)
		} else {
			events = append(events, notificationEvent(n))
		}

		events = append(events, domain.Event{
			AggregateType: "book",
			AggregateID:   fmt.Sprintf("%d", bookID),
			EventType:     domain.EventBookCheckedOut,
			EventData: map[string]interface{}{
				"borrower_id": borrower.ID,
				"checkout_id": checkout.ID,
				"due_date":    db.FormatTime(checkout.DueDate),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishAll(s.bus, events)
	return checkout, nil
}

// Return marks a checkout returned at the effective now.
func (s *CheckoutService) Return(checkoutID int64) error {
	return s.ReturnAt(checkoutID, s.clk.Now())
}

// ReturnAt marks a checkout returned at the given instant, then settles the
// book's next state from its waitlist. The simulation controller passes the
// configured auto-return instant here instead of now.
func (s *CheckoutService) ReturnAt(checkoutID int64, at time.Time) error {
	checkout, err := db.GetCheckout(s.repo.DB, checkoutID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(checkout.BookID)
	defer unlock()

	var events []domain.Event
	err = s.repo.Tx(func(tx *sql.Tx) error {
		checkout, err := db.GetCheckout(tx, checkoutID)
		if err != nil {
			return err
		}
		if checkout.Status == domain.CheckoutReturned {
			return fmt.Errorf("checkout %d already returned: %w", checkoutID, ErrConflict)
		}

		if err := db.UpdateCheckoutStatus(tx, checkoutID, domain.CheckoutReturned, &at); err != nil {
			return err
		}

		book, err := db.GetBook(tx, checkout.BookID)
		if err != nil {
			return err
		}

		settleEvents, err := s.holds.settleReturnedBook(tx, book, at)
		if err != nil {
			return err
		}
		events = append(events, settleEvents...)

		n := &domain.Notification{
			BorrowerID: checkout.BorrowerID,
			Type:       domain.NotifyBookReturned,
			Title:      fmt.Sprintf("Returned %q", book.Title),
			BookID:     &book.ID,
		}
		if err := s.emitter.Create(tx, n, at); err != nil {
			logger.Warnf("Return: failed to create return notification: %v", err)
		} else {
			events = append(events, notificationEvent(n))
		}

		events = append(events, domain.Event{
			AggregateType: "book",
			AggregateID:   fmt.Sprintf("%d", checkout.BookID),
			EventType:     domain.EventBookReturned,
			EventData: map[string]interface{}{
				"borrower_id": checkout.BorrowerID,
				"checkout_id": checkoutID,
				"returned_at": db.FormatTime(at),
			},
		})
		return nil
	})
	if err != nil {
		return err
	}

	publishAll(s.bus, events)
	return nil
}

// Extend pushes a checkout's due date out by the given number of days
// (admin override). Extending a returned checkout is a conflict.
func (s *CheckoutService) Extend(checkoutID int64, days int) (*domain.Checkout, error) {
	if days <= 0 {
		days = 7
	}

	var checkout *domain.Checkout
	err := s.repo.Tx(func(tx *sql.Tx) error {
		var err error
		checkout, err = db.GetCheckout(tx, checkoutID)
		if err != nil {
			return err
		}
		if checkout.Status == domain.CheckoutReturned {
			return fmt.Errorf("checkout %d already returned: %w", checkoutID, ErrConflict)
		}

		checkout.DueDate = checkout.DueDate.AddDate(0, 0, days)
		if err := db.UpdateCheckoutDueDate(tx, checkoutID, checkout.DueDate); err != nil {
			return err
		}

		// An extension can move an overdue checkout back into good standing.
		if checkout.Status == domain.CheckoutOverdue && !domain.IsOverdue(checkout.DueDate, s.clk.Now()) {
			if err := db.UpdateCheckoutStatus(tx, checkoutID, domain.CheckoutActive, nil); err != nil {
				return err
			}
			checkout.Status = domain.CheckoutActive
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishAll(s.bus, []domain.Event{{
		AggregateType: "checkout",
		AggregateID:   fmt.Sprintf("%d", checkoutID),
		EventType:     domain.EventCheckoutExtended,
		EventData: map[string]interface{}{
			"days":     days,
			"due_date": db.FormatTime(checkout.DueDate),
		},
	}})
	return checkout, nil
}

// MarkOverdue flips a checkout to overdue (admin override). The regular
// overdue flip happens in the simulation controller's notification pass.
func (s *CheckoutService) MarkOverdue(checkoutID int64) error {
	err := s.repo.Tx(func(tx *sql.Tx) error {
		checkout, err := db.GetCheckout(tx, checkoutID)
		if err != nil {
			return err
		}
		if checkout.Status == domain.CheckoutReturned {
			return fmt.Errorf("checkout %d already returned: %w", checkoutID, ErrConflict)
		}
		if checkout.Status == domain.CheckoutOverdue {
			return nil
		}
		return db.UpdateCheckoutStatus(tx, checkoutID, domain.CheckoutOverdue, nil)
	})
	if err != nil {
		return err
	}

	publishAll(s.bus, []domain.Event{{
		AggregateType: "checkout",
		AggregateID:   fmt.Sprintf("%d", checkoutID),
		EventType:     domain.EventCheckoutOverdue,
		EventData:     map[string]interface{}{"manual": true},
	}})
	return nil
}

// LateFeeCents returns the checkout's current late fee for display. Nothing
// is persisted: the fee is always derived from dates.
func (s *CheckoutService) LateFeeCents(checkout *domain.Checkout, tier domain.Tier) int {
	if checkout.Status == domain.CheckoutReturned {
		if checkout.ReturnedAt == nil {
			return 0
		}
		return domain.LateFeeCents(checkout.DueDate, *checkout.ReturnedAt, domain.PolicyFor(tier))
	}
	return domain.LateFeeCents(checkout.DueDate, s.clk.Now(), domain.PolicyFor(tier))
}
