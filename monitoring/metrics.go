package monitoring

import (
	"context"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	seatLockOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_lock_operations_total",
			Help: "Seat lock operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	paymentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Payment state transitions",
		},
		[]string{"from", "to"},
	)

	issuanceAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_issuance_attempts_total",
			Help: "Ticket issuance attempts by outcome",
		},
		[]string{"outcome"},
	)

	dueTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticket_tasks_pending_total",
			Help: "Outstanding ticket generation tasks",
		},
	)

	verifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of the verify commit including retries",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

type Monitor struct {
	db *dbx.DB
}

func NewMonitor(db *dbx.DB) *Monitor {
	return &Monitor{db: db}
}

// CollectTaskBacklog polls the task table on an interval until ctx is
// cancelled. Run it from the bootstrap, not from a service.
func (m *Monitor) CollectTaskBacklog(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var count int
			err := m.db.NewQuery("SELECT COUNT(*) FROM ticket_tasks WHERE status = 'pending'").Row(&count)
			if err == nil {
				dueTasks.Set(float64(count))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) TrackLockOperation(operation, outcome string) {
	seatLockOps.WithLabelValues(operation, outcome).Inc()
}

func (m *Monitor) TrackPaymentTransition(from, to string) {
	paymentTransitions.WithLabelValues(from, to).Inc()
}

func (m *Monitor) TrackIssuance(outcome string) {
	issuanceAttempts.WithLabelValues(outcome).Inc()
}

func (m *Monitor) TrackVerifyDuration(d time.Duration) {
	verifyDuration.Observe(d.Seconds())
}
