package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "questlog"

var (
	// operationDuration 核心操作耗时
	// Labels: op (register_play, delete_play, confirm_day, unlock_node, ...), outcome (ok 或错误 kind)
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "core",
		Name:      "operation_duration_seconds",
		Help:      "Latency of progression core operations",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"op", "outcome"})

	// operationTotal 核心操作计数
	operationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "core",
		Name:      "operations_total",
		Help:      "Total progression core operations by outcome",
	}, []string{"op", "outcome"})

	// spSpent 解锁消耗的 SP
	spSpent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "unlock",
		Name:      "sp_spent_total",
		Help:      "Total skill points spent on node unlocks",
	})

	// spFolded 确认时计入余额的 SP
	spFolded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "confirm",
		Name:      "sp_folded_total",
		Help:      "Total skill points credited by day confirmation",
	})

	// txRetries 事务因 SQLite 忙而重试
	txRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "tx_retries_total",
		Help:      "Transaction retries caused by busy/locked database",
	}, []string{"op"})

	// rankChanges 称号变化通知
	rankChanges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rank",
		Name:      "changes_total",
		Help:      "Seasonal title changes detected after play registration",
	})
)

// ObserveOperation 记录一次核心操作
func ObserveOperation(op, outcome string, started time.Time) {
	operationDuration.WithLabelValues(op, outcome).Observe(time.Since(started).Seconds())
	operationTotal.WithLabelValues(op, outcome).Inc()
}

func AddSPSpent(n int64) {
	if n > 0 {
		spSpent.Add(float64(n))
	}
}

func AddSPFolded(n int64) {
	if n > 0 {
		spFolded.Add(float64(n))
	}
}

func IncTxRetry(op string) {
	txRetries.WithLabelValues(op).Inc()
}

func IncRankChange() {
	rankChanges.Inc()
}
