package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lendarr/lendarr/internal/domain"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

const bookColumns = "id, title, author, isbn, status, hold_until, created_at"

func scanBook(row interface{ Scan(...interface{}) error }) (*domain.Book, error) {
	var b domain.Book
	var holdUntil sql.NullString
	var createdAt string
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Status, &holdUntil, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if b.HoldUntil, err = ScanNullTime(holdUntil); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBook fetches a book by id.
func GetBook(q Queryer, id int64) (*domain.Book, error) {
	row := q.QueryRow("SELECT "+bookColumns+" FROM books WHERE id = ?", id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book %d: %w", id, err)
	}
	return b, nil
}

// ListBooks returns all books ordered by title.
func ListBooks(q Queryer) ([]*domain.Book, error) {
	rows, err := q.Query("SELECT " + bookColumns + " FROM books ORDER BY title, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// ListBooksWithExpiredHolds returns books in a hold state whose hold window
// has passed at now. This is the working set of the lazy transition sweep.
func ListBooksWithExpiredHolds(q Queryer, now time.Time) ([]*domain.Book, error) {
	rows, err := q.Query(
		"SELECT "+bookColumns+" FROM books WHERE status IN (?, ?) AND hold_until IS NOT NULL AND hold_until <= ?",
		domain.BookOnHoldPremium, domain.BookOnHoldWaitlist, FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list books with expired holds: %w", err)
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// InsertBook creates a catalog entry and returns its id.
func InsertBook(q Queryer, b *domain.Book) (int64, error) {
	if b.Status == "" {
		b.Status = domain.BookAvailable
	}
	res, err := q.Exec(
		"INSERT INTO books (title, author, isbn, status, hold_until, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		b.Title, b.Author, b.ISBN, b.Status, NullTime(b.HoldUntil), FormatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to insert book: %w", err)
	}
	return res.LastInsertId()
}

// UpdateBookStatus sets a book's status and hold window in one write.
// holdUntil must be non-nil exactly when status is a hold state.
func UpdateBookStatus(q Queryer, id int64, status domain.BookStatus, holdUntil *time.Time) error {
	if status.OnHold() == (holdUntil == nil) {
		return fmt.Errorf("book %d: status %s requires hold_until=%v", id, status, status.OnHold())
	}
	res, err := q.Exec("UPDATE books SET status = ?, hold_until = ? WHERE id = ?",
		status, NullTime(holdUntil), id)
	if err != nil {
		return fmt.Errorf("failed to update book %d status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	return nil
}
