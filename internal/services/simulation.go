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

// SimulationService lets an operator move the effective clock and have the
// derived state (overdue flips, due-soon notices, waitlist promotions,
// auto-returns) replay or unwind deterministically. Every per-entity step
// is isolated: a failure on one checkout or book is logged and counted
// against, never aborting the rest of the pass.
type SimulationService struct {
	repo        *db.Repository
	clk         *clock.SimClock
	emitter     notifier.Emitter
	bus         eventbus.Publisher
	checkouts   *CheckoutService
	holds       *HoldService
	locks       *BookLocks
	dueSoonDays int
}

// NewSimulationService creates a SimulationService.
func NewSimulationService(repo *db.Repository, clk *clock.SimClock, emitter notifier.Emitter, bus eventbus.Publisher, checkouts *CheckoutService, holds *HoldService, locks *BookLocks, dueSoonDays int) *SimulationService {
	if dueSoonDays <= 0 {
		dueSoonDays = domain.DefaultDueSoonThresholdDays
	}
	return &SimulationService{
		repo:        repo,
		clk:         clk,
		emitter:     emitter,
		bus:         bus,
		checkouts:   checkouts,
		holds:       holds,
		locks:       locks,
		dueSoonDays: dueSoonDays,
	}
}

// AdvanceResult reports what a simulated-date change touched.
type AdvanceResult struct {
	NotificationsGenerated int `json:"notificationsGenerated"`
	AutoReturnsProcessed   int `json:"autoReturnsProcessed"`
	AutoReturnsReverted    int `json:"autoReturnsReverted"`
}

// ClearResult reports what a simulation reset touched.
type ClearResult struct {
	NotificationsDeleted int64 `json:"notificationsDeleted"`
	AutoReturnsReverted  int   `json:"autoReturnsReverted"`
}

// SetSimulatedDate persists the simulated instant and replays its
// consequences: auto-returns whose configured instant is now in the future
// are unwound, auto-returns whose instant has been reached are applied,
// expired holds advance, and the idempotent notification pass runs.
// Replaying the same instant twice produces no new notifications and no
// status changes.
func (s *SimulationService) SetSimulatedDate(target time.Time, actor string) (*AdvanceResult, error) {
	// Record the real start of the simulation window once, before the
	// first override takes effect.
	if _, err := db.GetSetting(s.repo.DB, db.SettingSimulationStartedAt); errors.Is(err, db.ErrNotFound) {
		if err := db.SetSetting(s.repo.DB, db.SettingSimulationStartedAt, db.FormatTime(s.clk.RealNow())); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := s.clk.Set(&target, actor); err != nil {
		return nil, err
	}

	result := &AdvanceResult{}
	result.AutoReturnsReverted = s.revertAutoReturns(&target)
	result.AutoReturnsProcessed = s.processAutoReturns(target)

	if _, err := s.holds.AdvanceAll(); err != nil {
		logger.Errorf("Simulation: hold advancement failed: %v", err)
	}

	generated, err := s.GenerateNotifications()
	if err != nil {
		logger.Errorf("Simulation: notification pass failed: %v", err)
	}
	result.NotificationsGenerated = generated

	publishAll(s.bus, []domain.Event{{
		AggregateType: "simulation",
		AggregateID:   "clock",
		EventType:     domain.EventSimulationAdvanced,
		EventData:     map[string]interface{}{"target": db.FormatTime(target)},
		Actor:         actor,
	}})

	logger.Infof("Simulation: advanced to %s (%d notifications, %d auto-returns applied, %d reverted)",
		target.Format(time.RFC3339), result.NotificationsGenerated, result.AutoReturnsProcessed, result.AutoReturnsReverted)
	return result, nil
}

// ResumeRealTime clears the simulated instant and unwinds every applied
// auto-return, then re-runs the hold and notification passes at real time.
// Unlike ClearSimulation it keeps the simulation window's notifications and
// its recorded start, so a later full reset still knows what to wipe.
func (s *SimulationService) ResumeRealTime(actor string) (*AdvanceResult, error) {
	if err := s.clk.Set(nil, actor); err != nil {
		return nil, err
	}

	result := &AdvanceResult{}
	result.AutoReturnsReverted = s.revertAutoReturns(nil)

	if _, err := s.holds.AdvanceAll(); err != nil {
		logger.Errorf("Simulation: hold advancement failed: %v", err)
	}

	generated, err := s.GenerateNotifications()
	if err != nil {
		logger.Errorf("Simulation: notification pass failed: %v", err)
	}
	result.NotificationsGenerated = generated

	publishAll(s.bus, []domain.Event{{
		AggregateType: "simulation",
		AggregateID:   "clock",
		EventType:     domain.EventSimulationAdvanced,
		EventData:     map[string]interface{}{"target": nil},
		Actor:         actor,
	}})

	logger.Infof("Simulation: resumed real time (%d notifications, %d auto-returns reverted)",
		result.NotificationsGenerated, result.AutoReturnsReverted)
	return result, nil
}

// ClearSimulation returns the clock to real time, unwinds every applied
// auto-return, deletes the notifications created inside the simulation
// window, and flips overdue checkouts back to active so the next lazy pass
// re-derives genuine state.
func (s *SimulationService) ClearSimulation(actor string) (*ClearResult, error) {
	var windowStart *time.Time
	if raw, err := db.GetSetting(s.repo.DB, db.SettingSimulationStartedAt); err == nil {
		if t, perr := db.ParseTime(raw); perr == nil {
			windowStart = &t
		} else {
			logger.Warnf("Simulation: unreadable window start %q: %v", raw, perr)
		}
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	if err := s.clk.Set(nil, actor); err != nil {
		return nil, err
	}

	result := &ClearResult{}
	result.AutoReturnsReverted = s.revertAutoReturns(nil)

	if windowStart != nil {
		deleted, err := db.DeleteNotificationsByTypesSince(s.repo.DB, domain.SimulatedNotificationTypes, *windowStart)
		if err != nil {
			logger.Errorf("Simulation: failed to delete window notifications: %v", err)
		}
		result.NotificationsDeleted = deleted
	}

	if n, err := db.RevertOverdueCheckouts(s.repo.DB); err != nil {
		logger.Errorf("Simulation: failed to revert overdue checkouts: %v", err)
	} else if n > 0 {
		logger.Debugf("Simulation: reverted %d overdue checkouts to active", n)
	}

	if err := db.DeleteSetting(s.repo.DB, db.SettingSimulationStartedAt); err != nil {
		logger.Warnf("Simulation: failed to clear window start: %v", err)
	}

	publishAll(s.bus, []domain.Event{{
		AggregateType: "simulation",
		AggregateID:   "clock",
		EventType:     domain.EventSimulationCleared,
		EventData: map[string]interface{}{
			"notifications_deleted": result.NotificationsDeleted,
			"auto_returns_reverted": result.AutoReturnsReverted,
		},
		Actor: actor,
	}})

	logger.Infof("Simulation: cleared (%d notifications deleted, %d auto-returns reverted)",
		result.NotificationsDeleted, result.AutoReturnsReverted)
	return result, nil
}

// GenerateNotifications scans every open checkout at the effective now and
// emits overdue and due-soon notifications that do not already exist for
// the (borrower, book) pair, flipping newly overdue checkouts to overdue.
// The existence checks make the pass idempotent. Returns the number of
// notifications created.
func (s *SimulationService) GenerateNotifications() (int, error) {
	now := s.clk.Now()

	checkouts, err := db.ListOpenCheckouts(s.repo.DB)
	if err != nil {
		return 0, err
	}

	generated := 0
	for _, c := range checkouts {
		n, err := s.noticeForCheckout(c.ID, now)
		if err != nil {
			logger.Errorf("Simulation: notification pass failed for checkout %d: %v", c.ID, err)
			continue
		}
		generated += n
	}
	return generated, nil
}

// noticeForCheckout runs the notification step for one checkout in its own
// transaction.
func (s *SimulationService) noticeForCheckout(checkoutID int64, now time.Time) (int, error) {
	created := 0
	var events []domain.Event
	err := s.repo.Tx(func(tx *sql.Tx) error {
		c, err := db.GetCheckout(tx, checkoutID)
		if err != nil {
			return err
		}
		if c.Status == domain.CheckoutReturned {
			return nil
		}

		book, err := db.GetBook(tx, c.BookID)
		if err != nil {
			return err
		}

		switch {
		case domain.IsOverdue(c.DueDate, now):
			exists, err := s.emitter.Exists(tx, c.BorrowerID, &c.BookID, domain.NotifyOverdue)
			if err != nil {
				return err
			}
			if !exists {
				n := &domain.Notification{
					BorrowerID: c.BorrowerID,
					Type:       domain.NotifyOverdue,
					Title:      fmt.Sprintf("%q is overdue", book.Title),
					Message:    fmt.Sprintf("Due %s, %d day(s) overdue.", c.DueDate.Format("Jan 2, 2006"), domain.DaysOverdue(c.DueDate, now)),
					BookID:     &c.BookID,
				}
				if err := s.emitter.Create(tx, n, now); err != nil {
					return err
				}
				created++
				events = append(events, notificationEvent(n))
			}
			if c.Status == domain.CheckoutActive {
				if err := db.UpdateCheckoutStatus(tx, c.ID, domain.CheckoutOverdue, nil); err != nil {
					return err
				}
				events = append(events, domain.Event{
					AggregateType: "checkout",
					AggregateID:   fmt.Sprintf("%d", c.ID),
					EventType:     domain.EventCheckoutOverdue,
					EventData:     map[string]interface{}{"due_date": db.FormatTime(c.DueDate)},
				})
			}

		case domain.IsDueSoon(c.DueDate, now, s.dueSoonDays) && c.Status == domain.CheckoutActive:
			exists, err := s.emitter.Exists(tx, c.BorrowerID, &c.BookID, domain.NotifyDueSoon)
			if err != nil {
				return err
			}
			if !exists {
				n := &domain.Notification{
					BorrowerID: c.BorrowerID,
					Type:       domain.NotifyDueSoon,
					Title:      fmt.Sprintf("%q is due soon", book.Title),
					Message:    fmt.Sprintf("Due %s.", c.DueDate.Format("Jan 2, 2006")),
					BookID:     &c.BookID,
				}
				if err := s.emitter.Create(tx, n, now); err != nil {
					return err
				}
				created++
				events = append(events, notificationEvent(n))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	publishAll(s.bus, events)
	return created, nil
}

// processAutoReturns applies every configured tuple whose return instant
// has been reached at target, performing a full return (including waitlist
// promotion) dated at the configured instant. Already-returned checkouts
// are skipped, which keeps replay idempotent.
func (s *SimulationService) processAutoReturns(target time.Time) int {
	tuples, err := db.GetAutoReturns(s.repo.DB)
	if err != nil {
		logger.Errorf("Simulation: failed to load auto-return tuples: %v", err)
		return 0
	}

	processed := 0
	changed := false
	for i := range tuples {
		tp := &tuples[i]
		if target.Before(tp.ReturnDate) {
			continue
		}

		checkout, err := db.GetCheckout(s.repo.DB, tp.CheckoutID)
		if err != nil {
			logger.Errorf("Simulation: auto-return checkout %d unavailable: %v", tp.CheckoutID, err)
			continue
		}
		if checkout.Status == domain.CheckoutReturned {
			continue
		}

		if err := s.checkouts.ReturnAt(tp.CheckoutID, tp.ReturnDate); err != nil {
			logger.Errorf("Simulation: auto-return of checkout %d failed: %v", tp.CheckoutID, err)
			continue
		}

		appliedAt := s.clk.RealNow()
		tp.AppliedAt = &appliedAt
		changed = true
		processed++

		publishAll(s.bus, []domain.Event{{
			AggregateType: "checkout",
			AggregateID:   fmt.Sprintf("%d", tp.CheckoutID),
			EventType:     domain.EventAutoReturnApplied,
			EventData:     map[string]interface{}{"return_date": db.FormatTime(tp.ReturnDate)},
		}})
	}

	if changed {
		if err := db.SetAutoReturns(s.repo.DB, tuples); err != nil {
			logger.Errorf("Simulation: failed to persist auto-return state: %v", err)
		}
	}
	return processed
}

// revertAutoReturns unwinds applied tuples whose return instant lies after
// target (nil target unwinds all): the checkout gets its original status
// back, the book returns to checked_out, and the book's notified waitlist
// entries revert to waiting.
func (s *SimulationService) revertAutoReturns(target *time.Time) int {
	tuples, err := db.GetAutoReturns(s.repo.DB)
	if err != nil {
		logger.Errorf("Simulation: failed to load auto-return tuples: %v", err)
		return 0
	}

	reverted := 0
	changed := false
	for i := range tuples {
		tp := &tuples[i]
		if tp.AppliedAt == nil {
			continue
		}
		if target != nil && !target.Before(tp.ReturnDate) {
			continue
		}

		if err := s.revertOne(tp); err != nil {
			logger.Errorf("Simulation: failed to revert auto-return of checkout %d: %v", tp.CheckoutID, err)
			continue
		}

		tp.AppliedAt = nil
		changed = true
		reverted++

		publishAll(s.bus, []domain.Event{{
			AggregateType: "checkout",
			AggregateID:   fmt.Sprintf("%d", tp.CheckoutID),
			EventType:     domain.EventAutoReturnReverted,
			EventData:     map[string]interface{}{"return_date": db.FormatTime(tp.ReturnDate)},
		}})
	}

	if changed {
		if err := db.SetAutoReturns(s.repo.DB, tuples); err != nil {
			logger.Errorf("Simulation: failed to persist auto-return state: %v", err)
		}
	}
	return reverted
}

func (s *SimulationService) revertOne(tp *domain.AutoReturn) error {
	unlock := s.locks.Lock(tp.BookID)
	defer unlock()

	return s.repo.Tx(func(tx *sql.Tx) error {
		checkout, err := db.GetCheckout(tx, tp.CheckoutID)
		if err != nil {
			return err
		}
		if checkout.Status != domain.CheckoutReturned {
			// Already unwound, or never actually returned.
			return nil
		}

		if err := db.UpdateCheckoutStatus(tx, tp.CheckoutID, tp.OriginalStatus, nil); err != nil {
			return err
		}
		if err := db.UpdateBookStatus(tx, tp.BookID, domain.BookCheckedOut, nil); err != nil {
			return err
		}
		if n, err := db.RevertNotifiedForBook(tx, tp.BookID); err != nil {
			return err
		} else if n > 0 {
			logger.Debugf("Simulation: reverted %d notified waitlist entries for book %d", n, tp.BookID)
		}
		return nil
	})
}

// ConfigureAutoReturns replaces the tuple list, preserving the applied
// marker of tuples that survive the edit so an active simulation keeps its
// revert bookkeeping.
func (s *SimulationService) ConfigureAutoReturns(tuples []domain.AutoReturn) error {
	existing, err := db.GetAutoReturns(s.repo.DB)
	if err != nil {
		return err
	}
	appliedBy := make(map[int64]*time.Time, len(existing))
	for i := range existing {
		appliedBy[existing[i].CheckoutID] = existing[i].AppliedAt
	}

	for i := range tuples {
		tp := &tuples[i]
		checkout, err := db.GetCheckout(s.repo.DB, tp.CheckoutID)
		if err != nil {
			return err
		}
		if checkout.BookID != tp.BookID {
			return fmt.Errorf("auto-return tuple for checkout %d names book %d, checkout is for book %d: %w",
				tp.CheckoutID, tp.BookID, checkout.BookID, ErrConflict)
		}
		if tp.OriginalStatus == "" {
			tp.OriginalStatus = checkout.Status
		}
		tp.AppliedAt = appliedBy[tp.CheckoutID]
	}

	return db.SetAutoReturns(s.repo.DB, tuples)
}

// DueSoonDays returns the configured due-soon lookahead.
func (s *SimulationService) DueSoonDays() int {
	return s.dueSoonDays
}

// AutoReturns returns the configured tuple list.
func (s *SimulationService) AutoReturns() ([]domain.AutoReturn, error) {
	return db.GetAutoReturns(s.repo.DB)
}
