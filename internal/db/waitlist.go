package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lendarr/lendarr/internal/domain"
)

const waitlistColumns = "id, book_id, borrower_id, status, position, is_priority, notified_at, expires_at, created_at"

func scanWaitlistEntry(row interface{ Scan(...interface{}) error }) (*domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	var notifiedAt, expiresAt sql.NullString
	var createdAt string
	if err := row.Scan(&e.ID, &e.BookID, &e.BorrowerID, &e.Status, &e.Position, &e.IsPriority,
		&notifiedAt, &expiresAt, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if e.NotifiedAt, err = ScanNullTime(notifiedAt); err != nil {
		return nil, err
	}
	if e.ExpiresAt, err = ScanNullTime(expiresAt); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func collectWaitlistEntries(rows *sql.Rows) ([]*domain.WaitlistEntry, error) {
	defer rows.Close()
	var entries []*domain.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// rankedOrder is the sole tie-break used everywhere a waitlist is evaluated:
// priority entries first, then ascending position.
const rankedOrder = " ORDER BY is_priority DESC, position ASC, id ASC"

// ListWaitingForBook returns the book's waiting entries in ranked order.
func ListWaitingForBook(q Queryer, bookID int64) ([]*domain.WaitlistEntry, error) {
	rows, err := q.Query("SELECT "+waitlistColumns+" FROM waitlist WHERE book_id = ? AND status = ?"+rankedOrder,
		bookID, domain.WaitlistWaiting)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting entries for book %d: %w", bookID, err)
	}
	return collectWaitlistEntries(rows)
}

// ListOpenForBook returns the book's waiting and notified entries in ranked order.
func ListOpenForBook(q Queryer, bookID int64) ([]*domain.WaitlistEntry, error) {
	rows, err := q.Query("SELECT "+waitlistColumns+" FROM waitlist WHERE book_id = ? AND status IN (?, ?)"+rankedOrder,
		bookID, domain.WaitlistWaiting, domain.WaitlistNotified)
	if err != nil {
		return nil, fmt.Errorf("failed to list open entries for book %d: %w", bookID, err)
	}
	return collectWaitlistEntries(rows)
}

// GetOpenEntryForBorrower returns the borrower's waiting or notified entry
// for the book, or ErrNotFound.
func GetOpenEntryForBorrower(q Queryer, bookID, borrowerID int64) (*domain.WaitlistEntry, error) {
	row := q.QueryRow("SELECT "+waitlistColumns+" FROM waitlist WHERE book_id = ? AND borrower_id = ? AND status IN (?, ?)",
		bookID, borrowerID, domain.WaitlistWaiting, domain.WaitlistNotified)
	e, err := scanWaitlistEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("waitlist entry for book %d borrower %d: %w", bookID, borrowerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry for book %d borrower %d: %w", bookID, borrowerID, err)
	}
	return e, nil
}

// CountOpenForBook returns the number of waiting and notified entries for a book.
func CountOpenForBook(q Queryer, bookID int64) (int, error) {
	var count int
	err := q.QueryRow("SELECT COUNT(*) FROM waitlist WHERE book_id = ? AND status IN (?, ?)",
		bookID, domain.WaitlistWaiting, domain.WaitlistNotified).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count waitlist for book %d: %w", bookID, err)
	}
	return count, nil
}

// NextWaitlistPosition returns max(position)+1 among the book's non-expired entries.
func NextWaitlistPosition(q Queryer, bookID int64) (int, error) {
	var position int
	err := q.QueryRow("SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist WHERE book_id = ? AND status != ?",
		bookID, domain.WaitlistExpired).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("failed to compute waitlist position for book %d: %w", bookID, err)
	}
	return position, nil
}

// InsertWaitlistEntry creates an entry and returns its id.
func InsertWaitlistEntry(q Queryer, e *domain.WaitlistEntry) (int64, error) {
	if e.Status == "" {
		e.Status = domain.WaitlistWaiting
	}
	res, err := q.Exec(
		"INSERT INTO waitlist (book_id, borrower_id, status, position, is_priority, notified_at, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.BookID, e.BorrowerID, e.Status, e.Position, e.IsPriority,
		NullTime(e.NotifiedAt), NullTime(e.ExpiresAt), FormatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to insert waitlist entry: %w", err)
	}
	return res.LastInsertId()
}

// UpdateWaitlistEntryStatus sets an entry's status together with its
// notified_at/expires_at window. Passing nils clears the window (the
// waiting-state shape).
func UpdateWaitlistEntryStatus(q Queryer, id int64, status domain.WaitlistStatus, notifiedAt, expiresAt *time.Time) error {
	res, err := q.Exec("UPDATE waitlist SET status = ?, notified_at = ?, expires_at = ? WHERE id = ?",
		status, NullTime(notifiedAt), NullTime(expiresAt), id)
	if err != nil {
		return fmt.Errorf("failed to update waitlist entry %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("waitlist entry %d: %w", id, ErrNotFound)
	}
	return nil
}

// RevertNotifiedForBook flips the book's notified entries back to waiting,
// clearing their windows. Used when a simulated return is unwound.
func RevertNotifiedForBook(q Queryer, bookID int64) (int64, error) {
	res, err := q.Exec("UPDATE waitlist SET status = ?, notified_at = NULL, expires_at = NULL WHERE book_id = ? AND status = ?",
		domain.WaitlistWaiting, bookID, domain.WaitlistNotified)
	if err != nil {
		return 0, fmt.Errorf("failed to revert notified entries for book %d: %w", bookID, err)
	}
	return res.RowsAffected()
}

// ExpireNotifiedEntries marks notified entries whose claim window has passed
// at now as expired. Returns the number of entries expired.
func ExpireNotifiedEntries(q Queryer, now time.Time) (int64, error) {
	res, err := q.Exec("UPDATE waitlist SET status = ? WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?",
		domain.WaitlistExpired, domain.WaitlistNotified, FormatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to expire notified entries: %w", err)
	}
	return res.RowsAffected()
}
