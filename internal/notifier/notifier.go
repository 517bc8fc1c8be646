// Package notifier persists user-facing notifications as a side effect of
// lifecycle transitions. Creation is fire-and-forget for callers: failures
// are logged, never propagated into the primary operation. When a push URL
// is configured, each notification is additionally sent externally via
// shoutrrr, best effort.
package notifier

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/logger"
)

// Emitter is the notification interface lifecycle services depend on.
type Emitter interface {
	// Create persists a notification dated at the given instant. Errors are
	// returned for callers that need them (the simulation controller counts
	// failures) but are safe to ignore.
	Create(q db.Queryer, n *domain.Notification, at time.Time) error
	// Exists reports whether a notification of this type already exists for
	// the (borrower, book) pair.
	Exists(q db.Queryer, borrowerID int64, bookID *int64, typ domain.NotificationType) (bool, error)
}

// Notifier is the production Emitter. It does not publish lifecycle events
// itself: callers publish NotificationCreated after their transaction
// commits, so the event write never contends with an open transaction.
type Notifier struct {
	db *sql.DB
}

var _ Emitter = (*Notifier)(nil)

// NewNotifier creates a Notifier backed by the given database handle.
func NewNotifier(database *sql.DB) *Notifier {
	return &Notifier{db: database}
}

// Create persists the notification and triggers the external push.
func (n *Notifier) Create(q db.Queryer, notification *domain.Notification, at time.Time) error {
	id, err := db.InsertNotification(q, notification, at)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	notification.ID = id
	notification.CreatedAt = at

	n.pushExternal(notification)
	return nil
}

// Exists implements the idempotence check used before emitting.
func (n *Notifier) Exists(q db.Queryer, borrowerID int64, bookID *int64, typ domain.NotificationType) (bool, error) {
	return db.NotificationExists(q, borrowerID, bookID, typ)
}

// pushExternal sends the notification through shoutrrr if a push URL is
// configured. Push failures are logged and never affect the caller.
func (n *Notifier) pushExternal(notification *domain.Notification) {
	pushURL, err := db.GetSetting(n.db, db.SettingPushURL)
	if errors.Is(err, db.ErrNotFound) || pushURL == "" {
		return
	}
	if err != nil {
		logger.Debugf("Notifier: failed to read push URL: %v", err)
		return
	}

	message := notification.Title
	if notification.Message != "" {
		message = notification.Title + "\n" + notification.Message
	}

	go func() {
		if err := shoutrrr.Send(pushURL, message); err != nil {
			logger.Warnf("Notifier: external push failed: %v", err)
		} else {
			logger.Debugf("Notifier: pushed %s externally", notification.Type)
		}
	}()
}
