package points

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// метрики

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_operations_total",
			Help: "Кол-во операций с баллами",
		},
		[]string{"operation", "result"},
	)

	lockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "points_lock_wait_seconds",
			Help:    "Ожидание блокировки счета",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	accountLocksGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "points_account_locks",
			Help: "Кол-во созданных блокировок счетов",
		},
	)
)
