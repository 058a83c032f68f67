package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersPending tracks the queue backlog per priority lane.
	OrdersPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blocklager_orders_pending",
		Help: "Transport orders waiting for dispatch, per priority lane",
	}, []string{"lane"})

	// OrdersProcessedTotal counts finished orders by terminal status.
	OrdersProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blocklager_orders_processed_total",
		Help: "Transport orders that reached a terminal status",
	}, []string{"status"})

	// SchedulerBlocked is 1 while the scheduler refuses to dispatch
	// because the last fault left the ingot in the gripper.
	SchedulerBlocked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blocklager_scheduler_blocked",
		Help: "1 while the scheduler is in the blocked recovery state",
	})

	// OrderDuration measures dispatch-to-terminal time.
	OrderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blocklager_order_duration_seconds",
		Help:    "Time from dispatch to terminal status per order",
		Buckets: prometheus.DefBuckets,
	})

	// CraneFeedbackTotal counts feedback telegrams by kind.
	CraneFeedbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blocklager_crane_feedback_total",
		Help: "Crane feedback telegrams received, by kind",
	}, []string{"kind"})
)
