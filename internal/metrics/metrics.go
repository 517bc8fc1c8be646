// Package metrics exposes Prometheus metrics for the lifecycle engine, fed
// by the event bus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/eventbus"
)

// MetricsService exposes Prometheus metrics for Lendarr.
type MetricsService struct {
	eventBus eventbus.Publisher

	// Counters
	checkoutsTotal      prometheus.Counter
	returnsTotal        prometheus.Counter
	overdueTotal        prometheus.Counter
	holdsEntered        *prometheus.CounterVec
	holdsExpired        *prometheus.CounterVec
	waitlistPromotions  prometheus.Counter
	notificationsTotal  *prometheus.CounterVec
	simulationAdvances  prometheus.Counter
	autoReturnsApplied  prometheus.Counter
	autoReturnsReverted prometheus.Counter
}

// NewMetricsService creates and registers Prometheus metrics.
func NewMetricsService(eb eventbus.Publisher) *MetricsService {
	m := &MetricsService{
		eventBus: eb,

		checkoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lendarr_checkouts_total",
			Help: "Total number of checkouts created",
		}),
		returnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lendarr_returns_total",
			Help: "Total number of book returns",
		}),
		overdueTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lendarr_checkouts_overdue_total",
			Help: "Total number of checkouts flipped to overdue",
		}),
		holdsEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lendarr_holds_entered_total",
			Help: "Total number of hold windows entered by phase",
		}, []string{"phase"}),
		holdsExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lendarr_holds_expired_total",
			Help: "Total number of hold windows expired by phase",
		}, []string{"phase"}),
		waitlistPromotions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lendarr_waitlist_promotions_total",
			Help: "Total number of waitlist entries promoted to notified",
		}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lendarr_notifications_total",
			Help: "Total number of notifications created by type",
		}, []string{"type"}),
		simulationAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lendarr_simulation_advances_total",
			Help: "Total number of simulated date changes",
		}),
		autoReturnsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lendarr_auto_returns_applied_total",
			Help: "Total number of auto-returns applied by the simulation controller",
		}),
		autoReturnsReverted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lendarr_auto_returns_reverted_total",
			Help: "Total number of auto-returns reverted by the simulation controller",
		}),
	}

	prometheus.MustRegister(
		m.checkoutsTotal,
		m.returnsTotal,
		m.overdueTotal,
		m.holdsEntered,
		m.holdsExpired,
		m.waitlistPromotions,
		m.notificationsTotal,
		m.simulationAdvances,
		m.autoReturnsApplied,
		m.autoReturnsReverted,
	)

	m.subscribe()
	return m
}

func (m *MetricsService) subscribe() {
	m.eventBus.Subscribe(domain.EventBookCheckedOut, func(domain.Event) {
		m.checkoutsTotal.Inc()
	})
	m.eventBus.Subscribe(domain.EventBookReturned, func(domain.Event) {
		m.returnsTotal.Inc()
	})
	m.eventBus.Subscribe(domain.EventCheckoutOverdue, func(domain.Event) {
		m.overdueTotal.Inc()
	})
	m.eventBus.Subscribe(domain.EventHoldEntered, func(e domain.Event) {
		phase, _ := e.GetString("phase")
		m.holdsEntered.WithLabelValues(phase).Inc()
	})
	m.eventBus.Subscribe(domain.EventHoldExpired, func(e domain.Event) {
		phase, _ := e.GetString("phase")
		m.holdsExpired.WithLabelValues(phase).Inc()
	})
	m.eventBus.Subscribe(domain.EventWaitlistPromoted, func(domain.Event) {
		m.waitlistPromotions.Inc()
	})
	m.eventBus.Subscribe(domain.EventNotificationCreated, func(e domain.Event) {
		typ, _ := e.GetString("type")
		m.notificationsTotal.WithLabelValues(typ).Inc()
	})
	m.eventBus.Subscribe(domain.EventSimulationAdvanced, func(domain.Event) {
		m.simulationAdvances.Inc()
	})
	m.eventBus.Subscribe(domain.EventAutoReturnApplied, func(domain.Event) {
		m.autoReturnsApplied.Inc()
	})
	m.eventBus.Subscribe(domain.EventAutoReturnReverted, func(domain.Event) {
		m.autoReturnsReverted.Inc()
	})
}

// Handler returns the Prometheus scrape handler.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.Handler()
}
