package metrics

import (
	"strconv"
	"time"

	"github.com/graphd/graphd/pkg/store"
)

// Collector polls a *store.Store on a ticker and pushes its point-in-time
// shape into the gauges that can't be observed at the instant they change
// (memtable size, per-level file counts, bloom false-positive rate):
// mirrors the teacher's ticker-driven metrics collector, polling the
// store directly rather than a cluster manager.
type Collector struct {
	store  *store.Store
	stopCh chan struct{}
}

// NewCollector wires a store into a Collector.
func NewCollector(st *store.Store) *Collector {
	return &Collector{store: st, stopCh: make(chan struct{})}
}

// Start begins polling every 15 seconds, collecting once immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts polling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	stats := c.store.Stats()

	StoreMemtableBytes.Set(float64(stats.MemtableBytes))
	StoreMemtableEntries.Set(float64(stats.MemtableEntries))

	for level, count := range stats.LevelCounts {
		StoreSSTablesTotal.WithLabelValues(strconv.Itoa(level)).Set(float64(count))
	}

	if stats.BloomProbes > 0 {
		rate := float64(stats.BloomFalsePositives) / float64(stats.BloomProbes)
		StoreBloomFalsePositiveRate.Set(rate)
	}
}
