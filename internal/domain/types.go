// Package domain holds the core types of the book lifecycle engine: entity
// models, status enumerations, the tier policy table, and the pure date
// arithmetic every lifecycle decision is built on.
package domain

import "time"

// BookStatus is the lifecycle state of a book.
type BookStatus string

const (
	BookAvailable      BookStatus = "available"
	BookCheckedOut     BookStatus = "checked_out"
	BookOnHoldPremium  BookStatus = "on_hold_premium"
	BookOnHoldWaitlist BookStatus = "on_hold_waitlist"
	BookInactive       BookStatus = "inactive"
)

// OnHold reports whether the status is one of the two hold states.
// Book.HoldUntil is non-nil exactly when this is true.
func (s BookStatus) OnHold() bool {
	return s == BookOnHoldPremium || s == BookOnHoldWaitlist
}

// CheckoutStatus is the lifecycle state of a checkout.
type CheckoutStatus string

const (
	CheckoutActive   CheckoutStatus = "active"
	CheckoutOverdue  CheckoutStatus = "overdue"
	CheckoutReturned CheckoutStatus = "returned"
)

// WaitlistStatus is the lifecycle state of a waitlist entry.
type WaitlistStatus string

const (
	WaitlistWaiting  WaitlistStatus = "waiting"
	WaitlistNotified WaitlistStatus = "notified"
	WaitlistExpired  WaitlistStatus = "expired"
)

// Tier is a borrower's membership class.
type Tier string

const (
	TierStandard  Tier = "standard"
	TierPremium   Tier = "premium"
	TierLibrarian Tier = "librarian"
	TierAdmin     Tier = "admin"
)

// IsPriority reports whether the tier gets first access during a hold
// window and the longer claim window.
func (t Tier) IsPriority() bool {
	return t == TierPremium || t == TierLibrarian || t == TierAdmin
}

// IsStaff reports whether the tier may use the administrative API surface.
func (t Tier) IsStaff() bool {
	return t == TierLibrarian || t == TierAdmin
}

// Book is a catalog entry.
type Book struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Author    string     `json:"author"`
	ISBN      string     `json:"isbn"`
	Status    BookStatus `json:"status"`
	HoldUntil *time.Time `json:"hold_until,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Checkout records a loan. Never deleted; ReturnedAt is non-nil exactly
// when Status is returned.
type Checkout struct {
	ID           int64          `json:"id"`
	BookID       int64          `json:"book_id"`
	BorrowerID   int64          `json:"borrower_id"`
	Status       CheckoutStatus `json:"status"`
	CheckedOutAt time.Time      `json:"checked_out_at"`
	DueDate      time.Time      `json:"due_date"`
	ReturnedAt   *time.Time     `json:"returned_at,omitempty"`
}

// WaitlistEntry is a borrower's place in line for a book. Ordering among
// waiting entries for a book is (IsPriority desc, Position asc).
type WaitlistEntry struct {
	ID         int64          `json:"id"`
	BookID     int64          `json:"book_id"`
	BorrowerID int64          `json:"borrower_id"`
	Status     WaitlistStatus `json:"status"`
	Position   int            `json:"position"`
	IsPriority bool           `json:"is_priority"`
	NotifiedAt *time.Time     `json:"notified_at,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Borrower is a library member.
type Borrower struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Tier      Tier      `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationType classifies user-facing notifications.
type NotificationType string

const (
	NotifyCheckoutConfirmed NotificationType = "checkout_confirmed"
	NotifyBookReturned      NotificationType = "book_returned"
	NotifyDueSoon           NotificationType = "due_soon"
	NotifyOverdue           NotificationType = "overdue"
	NotifyWaitlistAvailable NotificationType = "waitlist_available"
	NotifyHoldExpired       NotificationType = "hold_expired"
)

// SimulatedNotificationTypes are the types generated by the simulation
// controller's replay pass; these are the ones deleted when a simulation
// window is reverted.
var SimulatedNotificationTypes = []NotificationType{
	NotifyDueSoon,
	NotifyOverdue,
	NotifyBookReturned,
	NotifyWaitlistAvailable,
}

// Notification is an append-only user-facing event record.
type Notification struct {
	ID         int64            `json:"id"`
	BorrowerID int64            `json:"borrower_id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	BookID     *int64           `json:"book_id,omitempty"`
	Read       bool             `json:"read"`
	CreatedAt  time.Time        `json:"created_at"`
}

// AutoReturn is a configured instant at which the simulation controller
// should mark a specific checkout returned. OriginalStatus and AppliedAt
// make the operation exactly reversible.
type AutoReturn struct {
	CheckoutID     int64          `json:"checkout_id"`
	BookID         int64          `json:"book_id"`
	ReturnDate     time.Time      `json:"return_date"`
	OriginalStatus CheckoutStatus `json:"original_status"`
	AppliedAt      *time.Time     `json:"applied_at,omitempty"`
}
