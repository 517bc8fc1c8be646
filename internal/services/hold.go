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

// HoldService advances books through their hold sub-states. There is no
// background timer: AdvanceAll runs lazily inside the request that loads a
// dashboard or book page, and the simulation controller drives the same
// code when the effective clock moves.
type HoldService struct {
	repo    *db.Repository
	clk     clock.Clock
	emitter notifier.Emitter
	bus     eventbus.Publisher
	locks   *BookLocks
}

// NewHoldService creates a HoldService.
func NewHoldService(repo *db.Repository, clk clock.Clock, emitter notifier.Emitter, bus eventbus.Publisher, locks *BookLocks) *HoldService {
	return &HoldService{repo: repo, clk: clk, emitter: emitter, bus: bus, locks: locks}
}

// claimWindow returns how long a notified entry stays claimable: priority
// entries get the premium claim window, standard entries the standard one.
func claimWindow(isPriority bool) time.Duration {
	if isPriority {
		return time.Duration(domain.PolicyFor(domain.TierPremium).ClaimWindowHours) * time.Hour
	}
	return time.Duration(domain.PolicyFor(domain.TierStandard).ClaimWindowHours) * time.Hour
}

// notifyAvailable marks the entry notified with its tier's claim window and
// optionally emits a waitlist_available notification. Returns the emitted
// events.
func (h *HoldService) notifyAvailable(tx *sql.Tx, entry *domain.WaitlistEntry, book *domain.Book, now time.Time, sendNotification bool) ([]domain.Event, error) {
	expiresAt := now.Add(claimWindow(entry.IsPriority))
	if err := db.UpdateWaitlistEntryStatus(tx, entry.ID, domain.WaitlistNotified, &now, &expiresAt); err != nil {
		return nil, err
	}

	events := []domain.Event{{
		AggregateType: "book",
		AggregateID:   fmt.Sprintf("%d", book.ID),
		EventType:     domain.EventWaitlistPromoted,
		EventData: map[string]interface{}{
			"borrower_id": entry.BorrowerID,
			"is_priority": entry.IsPriority,
		},
	}}

	if sendNotification {
		n := &domain.Notification{
			BorrowerID: entry.BorrowerID,
			Type:       domain.NotifyWaitlistAvailable,
			Title:      fmt.Sprintf("%q is available for you", book.Title),
			Message:    fmt.Sprintf("Your hold on %q can be claimed until %s.", book.Title, expiresAt.Format("Jan 2, 2006 15:04")),
			BookID:     &book.ID,
		}
		if err := h.emitter.Create(tx, n, now); err != nil {
			logger.Warnf("Hold: failed to notify borrower %d for book %d: %v", entry.BorrowerID, book.ID, err)
		} else {
			events = append(events, notificationEvent(n))
		}
	}
	return events, nil
}

func notificationEvent(n *domain.Notification) domain.Event {
	return domain.Event{
		AggregateType: "notification",
		AggregateID:   fmt.Sprintf("%d", n.ID),
		EventType:     domain.EventNotificationCreated,
		EventData: map[string]interface{}{
			"borrower_id": n.BorrowerID,
			"type":        string(n.Type),
		},
	}
}

// settleReturnedBook decides a just-returned book's next state from its
// waitlist and applies it. With no waiters the book goes straight to
// available. When the most senior waiter is priority-tier the book enters
// the premium hold phase and every priority waiter is notified; otherwise
// it enters the open waitlist phase and every waiter is notified. Runs
// inside the caller's transaction; returned events are published by the
// caller after commit.
func (h *HoldService) settleReturnedBook(tx *sql.Tx, book *domain.Book, now time.Time) ([]domain.Event, error) {
	waiting, err := db.ListWaitingForBook(tx, book.ID)
	if err != nil {
		return nil, err
	}

	if len(waiting) == 0 {
		if err := db.UpdateBookStatus(tx, book.ID, domain.BookAvailable, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}

	holdUntil := now.Add(domain.HoldWindow)
	var events []domain.Event

	if waiting[0].IsPriority {
		// Premium phase: priority waiters get first claim.
		if err := db.UpdateBookStatus(tx, book.ID, domain.BookOnHoldPremium, &holdUntil); err != nil {
			return nil, err
		}
		events = append(events, domain.Event{
			AggregateType: "book",
			AggregateID:   fmt.Sprintf("%d", book.ID),
			EventType:     domain.EventHoldEntered,
			EventData:     map[string]interface{}{"phase": "premium"},
		})
		for _, entry := range waiting {
			if !entry.IsPriority {
				continue
			}
			evs, err := h.notifyAvailable(tx, entry, book, now, true)
			if err != nil {
				return nil, err
			}
			events = append(events, evs...)
		}
		return events, nil
	}

	// No priority waiters: open waitlist phase, everyone is notified.
	if err := db.UpdateBookStatus(tx, book.ID, domain.BookOnHoldWaitlist, &holdUntil); err != nil {
		return nil, err
	}
	events = append(events, domain.Event{
		AggregateType: "book",
		AggregateID:   fmt.Sprintf("%d", book.ID),
		EventType:     domain.EventHoldEntered,
		EventData:     map[string]interface{}{"phase": "waitlist"},
	})
	for _, entry := range waiting {
		evs, err := h.notifyAvailable(tx, entry, book, now, true)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

// advanceLocked applies the expired-hold transition to one book inside the
// caller's transaction. Does nothing when the book is not in a hold state
// or its window has not passed.
func (h *HoldService) advanceLocked(tx *sql.Tx, book *domain.Book, now time.Time) ([]domain.Event, error) {
	if !book.Status.OnHold() || book.HoldUntil == nil || book.HoldUntil.After(now) {
		return nil, nil
	}

	switch book.Status {
	case domain.BookOnHoldPremium:
		return h.expirePremiumHold(tx, book, now)
	case domain.BookOnHoldWaitlist:
		// Open waitlist window passed: the book becomes available
		// unconditionally. Still-notified entries keep their own expiry.
		if err := db.UpdateBookStatus(tx, book.ID, domain.BookAvailable, nil); err != nil {
			return nil, err
		}
		return []domain.Event{{
			AggregateType: "book",
			AggregateID:   fmt.Sprintf("%d", book.ID),
			EventType:     domain.EventHoldExpired,
			EventData:     map[string]interface{}{"phase": "waitlist"},
		}}, nil
	}
	return nil, nil
}

// expirePremiumHold handles an unclaimed premium window: every still-waiting
// entry is marked notified with its tier's claim window, but only
// non-priority borrowers get a fresh notification, because priority
// borrowers were already notified when the premium phase began. The book
// moves to the open waitlist phase with a new window. With no waiting
// entries the book goes straight to available.
func (h *HoldService) expirePremiumHold(tx *sql.Tx, book *domain.Book, now time.Time) ([]domain.Event, error) {
	events := []domain.Event{{
		AggregateType: "book",
		AggregateID:   fmt.Sprintf("%d", book.ID),
		EventType:     domain.EventHoldExpired,
		EventData:     map[string]interface{}{"phase": "premium"},
	}}

	waiting, err := db.ListWaitingForBook(tx, book.ID)
	if err != nil {
		return nil, err
	}

	if len(waiting) == 0 {
		if err := db.UpdateBookStatus(tx, book.ID, domain.BookAvailable, nil); err != nil {
			return nil, err
		}
		return events, nil
	}

	holdUntil := now.Add(domain.HoldWindow)
	if err := db.UpdateBookStatus(tx, book.ID, domain.BookOnHoldWaitlist, &holdUntil); err != nil {
		return nil, err
	}
	events = append(events, domain.Event{
		AggregateType: "book",
		AggregateID:   fmt.Sprintf("%d", book.ID),
		EventType:     domain.EventHoldEntered,
		EventData:     map[string]interface{}{"phase": "waitlist"},
	})

	for _, entry := range waiting {
		evs, err := h.notifyAvailable(tx, entry, book, now, !entry.IsPriority)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

// AdvanceBook runs the expired-hold transition for one book, serialized on
// the book's lock.
func (h *HoldService) AdvanceBook(bookID int64) error {
	unlock := h.locks.Lock(bookID)
	defer unlock()

	now := h.clk.Now()
	var events []domain.Event
	err := h.repo.Tx(func(tx *sql.Tx) error {
		book, err := db.GetBook(tx, bookID)
		if err != nil {
			return err
		}
		events, err = h.advanceLocked(tx, book, now)
		return err
	})
	if err != nil {
		return err
	}
	publishAll(h.bus, events)
	return nil
}

// AdvanceAll expires stale notified waitlist entries, then advances every
// book whose hold window has passed. Per-book failures are logged, not
// propagated: one stuck book must not block the rest. Returns the number of
// books advanced.
func (h *HoldService) AdvanceAll() (int, error) {
	now := h.clk.Now()

	if n, err := db.ExpireNotifiedEntries(h.repo.DB, now); err != nil {
		logger.Warnf("Hold: failed to expire notified entries: %v", err)
	} else if n > 0 {
		logger.Debugf("Hold: expired %d stale waitlist entries", n)
	}

	books, err := db.ListBooksWithExpiredHolds(h.repo.DB, now)
	if err != nil {
		return 0, err
	}

	advanced := 0
	for _, book := range books {
		if err := h.AdvanceBook(book.ID); err != nil {
			logger.Errorf("Hold: failed to advance book %d: %v", book.ID, err)
			continue
		}
		advanced++
	}
	return advanced, nil
}

// CanCheckout applies the eligibility rule for a borrower against a book's
// current status. The returned reason is user-facing and only meaningful
// when eligible is false.
func (h *HoldService) CanCheckout(q db.Queryer, book *domain.Book, borrower *domain.Borrower) (eligible bool, reason string, err error) {
	switch book.Status {
	case domain.BookAvailable:
		return true, "", nil

	case domain.BookCheckedOut:
		return false, "book is currently checked out", nil

	case domain.BookInactive:
		return false, "book is not in circulation", nil

	case domain.BookOnHoldPremium:
		entry, err := db.GetOpenEntryForBorrower(q, book.ID, borrower.ID)
		if errors.Is(err, db.ErrNotFound) {
			return false, "book is on hold for its waitlist", nil
		}
		if err != nil {
			return false, "", err
		}
		if !entry.IsPriority {
			until := ""
			if book.HoldUntil != nil {
				until = book.HoldUntil.Format("Jan 2, 2006 15:04")
			}
			return false, fmt.Sprintf("premium hold window until %s", until), nil
		}
		return true, "", nil

	case domain.BookOnHoldWaitlist:
		_, err := db.GetOpenEntryForBorrower(q, book.ID, borrower.ID)
		if errors.Is(err, db.ErrNotFound) {
			return false, "book is on hold for its waitlist", nil
		}
		if err != nil {
			return false, "", err
		}
		return true, "", nil
	}
	return false, fmt.Sprintf("unknown book status %s", book.Status), nil
}
