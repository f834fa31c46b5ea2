/*
Package metrics provides graphd's Prometheus instrumentation and component
health registry.

# Architecture

Two instrumentation styles are used, chosen per metric:

  - Direct instrumentation: a layer that already imports this package
    (pkg/mvcc, pkg/planner, pkg/rewrite) calls Inc/Observe at the point an
    event happens (a commit, a cache hit, a rule application). This is the
    only way to capture a duration distribution or an exact event count.

  - Polling: Collector wraps a *pkg/store.Store and copies its Stats()
    snapshot into gauges every 15 seconds. pkg/store cannot import this
    package directly (Collector already depends on pkg/store, and a
    reverse edge would cycle); instead pkg/store exposes Stats() and two
    optional duration hooks (SetFlushHook, SetCompactionHook) that the
    process wiring registers against StoreFlushDuration/
    StoreCompactionDuration.

# Metrics Catalog

Store (§4.1):

	graphd_store_flush_duration_seconds       histogram
	graphd_store_compaction_duration_seconds  histogram
	graphd_store_memtable_bytes               gauge,  polled
	graphd_store_memtable_entries             gauge,  polled
	graphd_store_sstables_total{level}        gauge,  polled
	graphd_store_bloom_false_positive_rate    gauge,  polled (bloomFalsePositives / bloomProbes since open)

MVCC (§3.1, §4.2):

	graphd_mvcc_commit_duration_seconds  histogram
	graphd_mvcc_commits_total            counter
	graphd_mvcc_conflicts_total          counter

Planner (§4.4):

	graphd_planner_plan_cache_hits_total    counter
	graphd_planner_plan_cache_misses_total  counter

Rewrite (§4.5):

	graphd_rewrite_strategy_steps_total{rule}  counter
	graphd_rewrite_strategy_runs_total{outcome} counter, outcome is "committed" or "rolled_back"

# Usage

Direct instrumentation at an operation's call site:

	timer := metrics.NewTimer()
	snap, err := txn.Commit()
	metrics.MVCCCommitsTotal.Inc()
	timer.ObserveDuration(metrics.MVCCCommitDuration)

Wiring the store's polled gauges and duration hooks at process start:

	st, _ := store.Open(cfg)
	st.SetFlushHook(func(d time.Duration) { metrics.StoreFlushDuration.Observe(d.Seconds()) })
	st.SetCompactionHook(func(d time.Duration) { metrics.StoreCompactionDuration.Observe(d.Seconds()) })
	collector := metrics.NewCollector(st)
	collector.Start()
	defer collector.Stop()

Exposing the scrape endpoint and health checks:

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
	http.HandleFunc("/live", metrics.LivenessHandler())

# Health Registry

RegisterComponent/UpdateComponent record a named component's health;
GetHealth reports "unhealthy" if any registered component is unhealthy.
GetReadiness additionally requires "store", "mvcc", and "catalog" to be
registered and healthy — the three a read or write request can't proceed
without — reporting "not_ready" if any is missing or unhealthy.
*/
package metrics
