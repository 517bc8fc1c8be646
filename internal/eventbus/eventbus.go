// Package eventbus persists lifecycle audit events and fans them out to
// in-memory subscribers (metrics, tests). The database row is the source of
// truth; in-memory delivery is best effort.
package eventbus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lendarr/lendarr/internal/db"
	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/logger"
)

// Publisher defines the interface for publishing events.
// This interface enables testing with mock implementations.
type Publisher interface {
	Publish(event domain.Event) error
	Subscribe(eventType domain.EventType, handler func(domain.Event))
}

// Ensure EventBus implements Publisher
var _ Publisher = (*EventBus)(nil)

type EventBus struct {
	db          *sql.DB
	subscribers map[domain.EventType][]chan domain.Event
	mu          sync.RWMutex
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewEventBus(database *sql.DB) *EventBus {
	return &EventBus{
		db:          database,
		subscribers: make(map[domain.EventType][]chan domain.Event),
		stopChan:    make(chan struct{}),
	}
}

func (eb *EventBus) Publish(event domain.Event) error {
	logger.Debugf("EventBus: publishing %s (aggregate %s/%s)", event.EventType, event.AggregateType, event.AggregateID)

	eventDataJSON, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	res, err := db.ExecWithRetry(eb.db, `
        INSERT INTO lifecycle_events (aggregate_type, aggregate_id, event_type, event_data, actor, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `, event.AggregateType, event.AggregateID, event.EventType, eventDataJSON, event.Actor, db.FormatTime(event.CreatedAt))

	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if subscribers, ok := eb.subscribers[event.EventType]; ok {
		for _, ch := range subscribers {
			select {
			case ch <- event:
			default:
				// Non-blocking, drop if buffer full to prevent blocking the publisher
			}
		}
	}

	return nil
}

// Subscribe registers a handler for an event type. Each handler runs on its
// own goroutine until Shutdown.
func (eb *EventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan domain.Event, 100)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)

	eb.wg.Add(1)
	go func() {
		defer eb.wg.Done()
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				handler(event)
			case <-eb.stopChan:
				return
			}
		}
	}()
}

// Shutdown stops delivery goroutines. Pending buffered events are dropped.
func (eb *EventBus) Shutdown() {
	close(eb.stopChan)
	eb.wg.Wait()
}
