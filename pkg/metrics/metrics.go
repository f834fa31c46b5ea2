package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics (§4.1)
	StoreFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphd_store_flush_duration_seconds",
			Help:    "Time taken to flush a memtable to a sorted file",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreCompactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphd_store_compaction_duration_seconds",
			Help:    "Time taken to complete one compaction pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreMemtableBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphd_store_memtable_bytes",
			Help: "Current memtable size in bytes",
		},
	)

	StoreMemtableEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphd_store_memtable_entries",
			Help: "Current number of entries in the memtable",
		},
	)

	StoreSSTablesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graphd_store_sstables_total",
			Help: "Number of sorted files, by level",
		},
		[]string{"level"},
	)

	StoreBloomFalsePositiveRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphd_store_bloom_false_positive_rate",
			Help: "Cumulative bloom filter false-positive rate across all sorted files since open",
		},
	)

	// MVCC metrics (§3.1, §4.2)
	MVCCCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphd_mvcc_commit_duration_seconds",
			Help:    "Time taken by Txn.Commit, including conflict detection",
			Buckets: prometheus.DefBuckets,
		},
	)

	MVCCCommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphd_mvcc_commits_total",
			Help: "Total number of transactions committed",
		},
	)

	MVCCConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphd_mvcc_conflicts_total",
			Help: "Total number of transactions rejected by first-committer-wins conflict detection",
		},
	)

	// Planner metrics (§4.4)
	PlannerPlanCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphd_planner_plan_cache_hits_total",
			Help: "Total number of Lower calls served from the plan cache",
		},
	)

	PlannerPlanCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphd_planner_plan_cache_misses_total",
			Help: "Total number of Lower calls that recomputed and froze a new physical plan",
		},
	)

	// Rewrite metrics (§4.5)
	RewriteStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphd_rewrite_strategy_steps_total",
			Help: "Total number of rule applications committed during strategy execution, by rule name",
		},
		[]string{"rule"},
	)

	RewriteRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphd_rewrite_strategy_runs_total",
			Help: "Total number of top-level Rewriter.Run calls, by outcome",
		},
		[]string{"outcome"}, // "committed" or "rolled_back"
	)
)

func init() {
	prometheus.MustRegister(
		StoreFlushDuration,
		StoreCompactionDuration,
		StoreMemtableBytes,
		StoreMemtableEntries,
		StoreSSTablesTotal,
		StoreBloomFalsePositiveRate,
		MVCCCommitDuration,
		MVCCCommitsTotal,
		MVCCConflictsTotal,
		PlannerPlanCacheHitsTotal,
		PlannerPlanCacheMissesTotal,
		RewriteStepsTotal,
		RewriteRunsTotal,
	)
}

// Handler returns the Prometheus scrape handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times a single in-flight operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time since the timer started to
// histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
