// Package main is graphd's command-line entry point: a single-binary
// embedded graph engine, the way the teacher's cmd/warren is a single
// binary fronting an embedded cluster manager. Unlike warren, graphd has
// no cluster/client split — every subcommand opens the on-disk engine
// directly.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/graphd/graphd/pkg/catalog"
	"github.com/graphd/graphd/pkg/config"
	"github.com/graphd/graphd/pkg/log"
	"github.com/graphd/graphd/pkg/metrics"
	"github.com/graphd/graphd/pkg/mvcc"
	"github.com/graphd/graphd/pkg/store"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "graphd",
	Short: "graphd - an embedded graph database engine",
	Long: `graphd is a graph database engine combining an LSM-tree storage
layer, MVCC commit-DAG versioning, a columnar graph view, a cost-based
query planner and Volcano executor, and a Double-Pushout graph-rewriting
engine, all in a single embeddable process.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"graphd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("data-dir", "./graphd-data", "Data directory for engine state")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(statsCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// engine bundles the four durable handles every subcommand needs: the
// LSM store, the catalog registry, the commit log, and the MVCC engine
// wrapping the store and commit log.
type engine struct {
	store   *store.Store
	catalog *catalog.Store
	commits *mvcc.CommitLog
	mvcc    *mvcc.Engine
}

func openEngine(dataDir string) (*engine, error) {
	cfg := config.Default(dataDir)
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	cat, err := catalog.Open(dataDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	commits, err := mvcc.OpenCommitLog(dataDir)
	if err != nil {
		cat.Close()
		st.Close()
		return nil, fmt.Errorf("open commit log: %w", err)
	}
	return &engine{
		store:   st,
		catalog: cat,
		commits: commits,
		mvcc:    mvcc.NewEngine(st, commits),
	}, nil
}

func (e *engine) Close() error {
	var first error
	if err := e.commits.Close(); err != nil && first == nil {
		first = err
	}
	if err := e.catalog.Close(); err != nil && first == nil {
		first = err
	}
	if err := e.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with metrics and health endpoints exposed",
	Long: `serve opens the engine at --data-dir and blocks, exposing
Prometheus metrics and health/readiness/liveness probes over HTTP until
it receives SIGINT or SIGTERM.

This binary embeds the engine only — it does not expose a query
transport; embedding callers link against pkg/executor and pkg/rewrite
directly. serve exists for standalone operation (metrics scraping and
health checks) when the engine runs as its
own process rather than linked into a host application.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		eng, err := openEngine(dataDir)
		if err != nil {
			return err
		}

		eng.store.SetFlushHook(func(d time.Duration) {
			metrics.StoreFlushDuration.Observe(d.Seconds())
		})
		eng.store.SetCompactionHook(func(d time.Duration) {
			metrics.StoreCompactionDuration.Observe(d.Seconds())
		})

		collector := metrics.NewCollector(eng.store)
		collector.Start()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("store", true, "open")
		metrics.RegisterComponent("mvcc", true, "open")
		metrics.RegisterComponent("catalog", true, "open")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())

		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()

		log.Logger.Info().Str("data_dir", dataDir).Str("metrics_addr", metricsAddr).Msg("graphd serving")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Logger.Info().Msg("shutting down")
		case err := <-errCh:
			log.Logger.Error().Err(err).Msg("serve error")
		}

		collector.Stop()
		if err := srv.Close(); err != nil {
			log.Logger.Warn().Err(err).Msg("metrics server close")
		}
		if err := eng.Close(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Logger.Info().Msg("shutdown complete")
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Force one compaction pass over the store and exit",
	Long: `compact opens the store at --data-dir, forces a flush of the
active memtable and one compaction pass (§4.1's level-tiered merge), and
exits. Useful for reclaiming disk space or shrinking the L0 file count
outside of the size-triggered flush and compaction Put/Delete run inline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		cfg := config.Default(dataDir)
		st, err := store.Open(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		before := st.Stats()
		if err := st.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		if err := st.Compact(); err != nil {
			return fmt.Errorf("compact: %w", err)
		}
		after := st.Stats()

		fmt.Printf("compaction complete\n")
		fmt.Printf("  levels before: %v\n", before.LevelCounts)
		fmt.Printf("  levels after:  %v\n", after.LevelCounts)
		return nil
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim space held by superseded data",
	Long: `gc forces the same flush-then-compact pass as "compact". Blob
refcount collection (§4.1's "deletion deferred until refcount hits zero"
for pkg/store/blob) is not yet wired to this command: it needs a
refcounted blobmeta bucket in pkg/catalog that tracks property-value
blob references across patches, which pkg/mvcc's patch-apply path does
not populate yet — see DESIGN.md's open-questions section.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		cfg := config.Default(dataDir)
		st, err := store.Open(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		if err := st.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		if err := st.Compact(); err != nil {
			return fmt.Errorf("compact: %w", err)
		}
		fmt.Println("gc complete (flush + compaction pass)")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store and catalog statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")

		cfg := config.Default(dataDir)
		st, err := store.Open(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		cat, err := catalog.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer cat.Close()

		stats := st.Stats()
		fmt.Println("Store:")
		fmt.Printf("  memtable:   %d entries, %d bytes\n", stats.MemtableEntries, stats.MemtableBytes)
		fmt.Printf("  levels:     %v\n", stats.LevelCounts)
		if stats.BloomProbes > 0 {
			rate := float64(stats.BloomFalsePositives) / float64(stats.BloomProbes)
			fmt.Printf("  bloom:      %d probes, %.4f%% false-positive rate\n", stats.BloomProbes, rate*100)
		}

		catSnap, err := cat.Load()
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		rules, err := cat.ListRules()
		if err != nil {
			return fmt.Errorf("list rules: %w", err)
		}
		fmt.Println("Catalog:")
		fmt.Printf("  labels:      %d\n", len(catSnap.Labels))
		fmt.Printf("  edge labels: %d\n", len(catSnap.EdgeLabels))
		fmt.Printf("  indexes:     %d\n", len(catSnap.Indexes))
		fmt.Printf("  invariants:  %d\n", len(catSnap.Invariants))
		fmt.Printf("  rules:       %d\n", len(rules))
		return nil
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics/health HTTP server")
}
