package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lendarr/lendarr/internal/clock"
	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/eventbus"
)

// WaitlistService manages joining and leaving waitlists. Queue ordering is
// always (is_priority desc, position asc) and lives in the db layer's
// ranked queries; this service never re-sorts.
type WaitlistService struct {
	repo  *db.Repository
	clk   clock.Clock
	bus   eventbus.Publisher
	locks *BookLocks
}

// NewWaitlistService creates a WaitlistService.
func NewWaitlistService(repo *db.Repository, clk clock.Clock, bus eventbus.Publisher, locks *BookLocks) *WaitlistService {
	return &WaitlistService{repo: repo, clk: clk, bus: bus, locks: locks}
}

// Join adds the borrower to a book's waitlist. The book must be
// unavailable: joining a waitlist for an available book is a conflict, as
// is joining twice.
func (s *WaitlistService) Join(bookID int64, borrower *domain.Borrower) (*domain.WaitlistEntry, error) {
	unlock := s.locks.Lock(bookID)
	defer unlock()

	var entry *domain.WaitlistEntry
	err := s.repo.Tx(func(tx *sql.Tx) error {
		book, err := db.GetBook(tx, bookID)
		if err != nil {
			return err
		}
		switch book.Status {
		case domain.BookAvailable:
			return fmt.Errorf("book %q is available for checkout: %w", book.Title, ErrConflict)
		case domain.BookInactive:
			return fmt.Errorf("book %q is inactive: %w", book.Title, ErrConflict)
		}

		if _, err := db.GetOpenEntryForBorrower(tx, bookID, borrower.ID); err == nil {
			return fmt.Errorf("already on the waitlist for book %d: %w", bookID, ErrConflict)
		} else if !errors.Is(err, db.ErrNotFound) {
			return err
		}

		position, err := db.NextWaitlistPosition(tx, bookID)
		if err != nil {
			return err
		}

		entry = &domain.WaitlistEntry{
			BookID:     bookID,
			BorrowerID: borrower.ID,
			Status:     domain.WaitlistWaiting,
			Position:   position,
			IsPriority: borrower.Tier.IsPriority(),
		}
		id, err := db.InsertWaitlistEntry(tx, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishAll(s.bus, []domain.Event{{
		AggregateType: "book",
		AggregateID:   fmt.Sprintf("%d", bookID),
		EventType:     domain.EventWaitlistJoined,
		EventData: map[string]interface{}{
			"borrower_id": borrower.ID,
			"position":    entry.Position,
			"is_priority": entry.IsPriority,
		},
	}})
	return entry, nil
}

// Leave removes the borrower's open entry from a book's waitlist by marking
// it expired. Waitlist rows are never deleted.
func (s *WaitlistService) Leave(bookID, borrowerID int64) error {
	unlock := s.locks.Lock(bookID)
	defer unlock()

	err := s.repo.Tx(func(tx *sql.Tx) error {
		entry, err := db.GetOpenEntryForBorrower(tx, bookID, borrowerID)
		if err != nil {
			return err
		}
		return db.UpdateWaitlistEntryStatus(tx, entry.ID, domain.WaitlistExpired, entry.NotifiedAt, entry.ExpiresAt)
	})
	if err != nil {
		return err
	}

	publishAll(s.bus, []domain.Event{{
		AggregateType: "book",
		AggregateID:   fmt.Sprintf("%d", bookID),
		EventType:     domain.EventWaitlistLeft,
		EventData:     map[string]interface{}{"borrower_id": borrowerID},
	}})
	return nil
}

// EntriesForBook returns the book's waiting and notified entries in queue order.
func (s *WaitlistService) EntriesForBook(bookID int64) ([]*domain.WaitlistEntry, error) {
	return db.ListOpenForBook(s.repo.DB, bookID)
}
