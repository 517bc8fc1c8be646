package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lendarr/lendarr/internal/domain"
)

const notificationColumns = "id, borrower_id, type, title, message, book_id, read, created_at"

func scanNotification(row interface{ Scan(...interface{}) error }) (*domain.Notification, error) {
	var n domain.Notification
	var bookID sql.NullInt64
	var createdAt string
	if err := row.Scan(&n.ID, &n.BorrowerID, &n.Type, &n.Title, &n.Message, &bookID, &n.Read, &createdAt); err != nil {
		return nil, err
	}
	if bookID.Valid {
		n.BookID = &bookID.Int64
	}
	var err error
	if n.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// InsertNotification appends a notification record and returns its id.
func InsertNotification(q Queryer, n *domain.Notification, at time.Time) (int64, error) {
	var bookID interface{}
	if n.BookID != nil {
		bookID = *n.BookID
	}
	res, err := q.Exec(
		"INSERT INTO notifications (borrower_id, type, title, message, book_id, read, created_at) VALUES (?, ?, ?, ?, ?, 0, ?)",
		n.BorrowerID, n.Type, n.Title, n.Message, bookID, FormatTime(at))
	if err != nil {
		return 0, fmt.Errorf("failed to insert notification: %w", err)
	}
	return res.LastInsertId()
}

// NotificationExists reports whether a notification of the given type
// already exists for the (borrower, book) pair. This is the idempotence
// check that keeps simulation replay from duplicating notifications.
func NotificationExists(q Queryer, borrowerID int64, bookID *int64, typ domain.NotificationType) (bool, error) {
	var count int
	var err error
	if bookID != nil {
		err = q.QueryRow("SELECT COUNT(*) FROM notifications WHERE borrower_id = ? AND book_id = ? AND type = ?",
			borrowerID, *bookID, typ).Scan(&count)
	} else {
		err = q.QueryRow("SELECT COUNT(*) FROM notifications WHERE borrower_id = ? AND book_id IS NULL AND type = ?",
			borrowerID, typ).Scan(&count)
	}
	if err != nil {
		return false, fmt.Errorf("failed notification existence check: %w", err)
	}
	return count > 0, nil
}

// ListNotificationsForBorrower returns a borrower's notifications, newest first.
func ListNotificationsForBorrower(q Queryer, borrowerID int64) ([]*domain.Notification, error) {
	rows, err := q.Query("SELECT "+notificationColumns+" FROM notifications WHERE borrower_id = ? ORDER BY created_at DESC, id DESC",
		borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for borrower %d: %w", borrowerID, err)
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead flags a borrower's notification as read.
func MarkNotificationRead(q Queryer, id, borrowerID int64) error {
	res, err := q.Exec("UPDATE notifications SET read = 1 WHERE id = ? AND borrower_id = ?", id, borrowerID)
	if err != nil {
		return fmt.Errorf("failed to mark notification %d read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteNotificationsByTypesSince bulk-deletes notifications of the given
// types created at or after since. Used only by simulation revert.
func DeleteNotificationsByTypesSince(q Queryer, types []domain.NotificationType, since time.Time) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(types)), ",")
	args := make([]interface{}, 0, len(types)+1)
	for _, t := range types {
		args = append(args, t)
	}
	args = append(args, FormatTime(since))

	res, err := q.Exec("DELETE FROM notifications WHERE type IN ("+placeholders+") AND created_at >= ?", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete simulated notifications: %w", err)
	}
	return res.RowsAffected()
}
