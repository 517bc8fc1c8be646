// Package services implements the book lifecycle engine: checkout and
// return with tier policies, the hold state machine with priority
// waitlists, and the simulation controller that replays and reverts
// lifecycle consequences of moving the effective clock.
//
// Every multi-step transition acquires the book's lock and runs inside a
// single transaction. Lifecycle events are collected during the transaction
// and published only after commit, so event-bus writes never contend with
// the open transaction.
package services

import (
	"errors"

	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/eventbus"
	"github.com/lendarr/lendarr/internal/logger"
)

// ErrConflict marks a request that names an entity whose current status
// forbids the action (returning a returned checkout, checking out an
// ineligible book). The API layer maps it to 409.
var ErrConflict = errors.New("conflict")

// publishAll sends collected events to the bus, best effort.
func publishAll(bus eventbus.Publisher, events []domain.Event) {
	if bus == nil {
		return
	}
	for _, e := range events {
		if err := bus.Publish(e); err != nil {
			logger.Debugf("Failed to publish %s event: %v", e.EventType, err)
		}
	}
}
