// Package gc implements the background collector: it periodically
// recomputes the GC snapshot, prunes version chains below any possible
// reader, unlinks orphaned chains from the maps, and sweeps stale index
// entries whose backing versions are gone.
package gc

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/infgeoax/memgraph/internal/accessor"
	"github.com/infgeoax/memgraph/internal/gid"
	"github.com/infgeoax/memgraph/internal/index"
	"github.com/infgeoax/memgraph/internal/mvstore"
	"github.com/infgeoax/memgraph/internal/nameid"
	"github.com/infgeoax/memgraph/internal/values"
)

// DefaultInterval is how often the collector runs when not configured.
const DefaultInterval = time.Second

// Collector owns the GC goroutine. It is a joinable handle: Start spawns
// the loop, Stop signals it and waits for it to exit.
type Collector struct {
	storage  *accessor.Storage
	interval time.Duration
	log      zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a collector over storage running every interval.
func New(storage *accessor.Storage, interval time.Duration, log zerolog.Logger) *Collector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Collector{
		storage:  storage,
		interval: interval,
		log:      log.With().Str("component", "gc").Logger(),
		stop:     make(chan struct{}),
	}
}

// Start launches the background loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.Collect()
			}
		}
	}()
}

// Stop signals the loop and waits for it to exit.
func (c *Collector) Stop() {
	close(c.stop)
	c.wg.Wait()
}

// Collect runs one collection pass and returns the number of versions
// pruned. Failures here are logged, never surfaced: background GC must
// not take down foreground work.
func (c *Collector) Collect() int {
	engine := c.storage.Engine()
	snap := engine.GlobalGcSnapshot()
	clog := engine.CommitLog()

	pruned := 0
	c.storage.Vertices().Range(func(list *mvstore.VertexList) bool {
		pruned += list.Prune(snap, clog)
		if list.Orphaned() {
			c.storage.Vertices().Delete(list.Gid())
		}
		return true
	})
	c.storage.Edges().Range(func(list *mvstore.EdgeList) bool {
		pruned += list.Prune(snap, clog)
		if list.Orphaned() {
			c.storage.Edges().Delete(list.Gid())
		}
		return true
	})

	cleaned := c.cleanIndexes()
	reclaimed := c.storage.PropIndexes().Reclaim(snap)

	if pruned > 0 || cleaned > 0 || reclaimed > 0 {
		c.log.Debug().
			Int("pruned", pruned).
			Int("index_entries", cleaned).
			Int("retired_indexes", reclaimed).
			Msg("collection pass")
	}
	return pruned
}

// cleanIndexes removes label and label-property entries whose backing
// chain is gone, or none of whose remaining versions still carries the
// indexed label/value. Chains were pruned first, so a raw walk over the
// surviving versions is the ground truth.
func (c *Collector) cleanIndexes() int {
	removed := 0
	vertices := c.storage.Vertices()

	labelIdx := c.storage.LabelIndex()
	labelIdx.ForEachLabel(func(label nameid.Id) bool {
		var stale []gid.Gid
		labelIdx.ForEach(label, func(g gid.Gid) bool {
			list, ok := vertices.Find(g)
			if !ok || list.Orphaned() || !anyVersionHasLabel(list, label) {
				stale = append(stale, g)
			}
			return true
		})
		for _, g := range stale {
			labelIdx.Remove(label, g)
			removed++
		}
		return true
	})

	c.storage.PropIndexes().ForEach(func(key index.Key, idx *index.PropIndex) bool {
		var stale []index.Entry
		idx.ForEach(func(e index.Entry) bool {
			list, ok := vertices.Find(e.Gid)
			if !ok || list.Orphaned() || !anyVersionHasValue(list, key, e.Value) {
				stale = append(stale, e)
			}
			return true
		})
		for _, e := range stale {
			idx.Remove(e.Value, e.Gid)
			removed++
		}
		return true
	})
	return removed
}

func anyVersionHasLabel(list *mvstore.VertexList, label nameid.Id) bool {
	for v := list.Head(); v != nil; v = v.Next() {
		if v.Record().HasLabel(label) {
			return true
		}
	}
	return false
}

func anyVersionHasValue(list *mvstore.VertexList, key index.Key, value values.Value) bool {
	for v := list.Head(); v != nil; v = v.Next() {
		rec := v.Record()
		if rec.HasLabel(key.Label) && values.Equal(rec.Property(key.Property), value) {
			return true
		}
	}
	return false
}
