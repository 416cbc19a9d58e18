// Package metrics exposes world counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeusync/substrate/internal/core/world"
)

const namespace = "substrate"

// Source yields the latest world statistics. It is called on every scrape.
type Source interface {
	Stats() world.Stats
}

type SourceFunc func() world.Stats

func (f SourceFunc) Stats() world.Stats { return f() }

type metric struct {
	name    string
	help    string
	counter bool
	value   func(world.Stats) float64
}

var metrics = []metric{
	{"tick", "Number of the next tick to run.", false, func(s world.Stats) float64 { return float64(s.Tick) }},
	{"tick_duration_seconds", "Wall time of the last completed tick.", false, func(s world.Stats) float64 { return s.LastTick.Seconds() }},
	{"ticks_total", "Completed ticks.", true, func(s world.Stats) float64 { return float64(s.Ticks) }},
	{"entities", "Live entities, including those pending deletion.", false, func(s world.Stats) float64 { return float64(s.Entities) }},
	{"entities_pending_deletion", "Entities queued for removal.", false, func(s world.Stats) float64 { return float64(s.PendingDeletion) }},
	{"entities_spawned_total", "Entities spawned.", true, func(s world.Stats) float64 { return float64(s.Spawned) }},
	{"entities_reaped_total", "Entities removed at the end of a tick.", true, func(s world.Stats) float64 { return float64(s.Reaped) }},
	{"spawn_failures_total", "Spawns refused because the registry was full.", true, func(s world.Stats) float64 { return float64(s.SpawnFailures) }},
	{"replicated_changes_total", "Entity change sets handed to the replicator.", true, func(s world.Stats) float64 { return float64(s.Replicated) }},
	{"replication_errors_total", "Ticks whose replication failed.", true, func(s world.Stats) float64 { return float64(s.ReplicationErrors) }},

	{"transform_abs_recomputes_total", "Lazy absolute transform recomputations.", true, func(s world.Stats) float64 { return float64(s.Transform.AbsTransformRecomputes) }},
	{"velocity_abs_recomputes_total", "Lazy absolute velocity recomputations.", true, func(s world.Stats) float64 { return float64(s.Transform.AbsVelocityRecomputes) }},
	{"geometry_rejected_total", "Pose or velocity mutations rejected as invalid.", true, func(s world.Stats) float64 { return float64(s.Transform.Rejected) }},

	{"visibility_recomputes_total", "Cluster list recomputations.", true, func(s world.Stats) float64 { return float64(s.Visibility.Recomputes) }},
	{"visibility_queries_total", "PVS visibility queries.", true, func(s world.Stats) float64 { return float64(s.Visibility.Queries) }},
	{"visibility_headnode_fallbacks_total", "Recomputations that fell back to a head node.", true, func(s world.Stats) float64 { return float64(s.Visibility.HeadNodeFallbacks) }},

	{"touch_links", "Open touch links.", false, func(s world.Stats) float64 { return float64(s.Touch.Links) }},
	{"touch_starts_total", "Start touch events raised.", true, func(s world.Stats) float64 { return float64(s.Touch.Starts) }},
	{"touch_ends_total", "End touch events raised.", true, func(s world.Stats) float64 { return float64(s.Touch.Ends) }},
	{"touch_dropped_total", "Touch events dropped for a dead receiver.", true, func(s world.Stats) float64 { return float64(s.Touch.Dropped) }},

	{"ground_links", "Entities standing on another entity.", false, func(s world.Stats) float64 { return float64(s.Ground.Links) }},
	{"ground_woken_total", "Resting entities woken.", true, func(s world.Stats) float64 { return float64(s.Ground.Woken) }},

	{"think_listed", "Entities on the SimThink list.", false, func(s world.Stats) float64 { return float64(s.Think.Listed) }},
	{"think_dispatched_total", "Think callbacks run.", true, func(s world.Stats) float64 { return float64(s.Think.Dispatched) }},
	{"think_starvations_total", "Think contexts left unscheduled after running.", true, func(s world.Stats) float64 { return float64(s.Think.Starvations) }},

	{"netstate_dirty", "Entities with unreplicated changes.", false, func(s world.Stats) float64 { return float64(s.Network.Dirty) }},
	{"netstate_slots_in_use", "Shared change info slots in use.", false, func(s world.Stats) float64 { return float64(s.Network.SlotsInUse) }},
	{"netstate_degraded_total", "Partial change lists degraded to full changes.", true, func(s world.Stats) float64 { return float64(s.Network.Degraded) }},
}

// Register adds a collector per world statistic to reg, defaulting to the
// global registry when reg is nil.
func Register(reg prometheus.Registerer, src Source) error {
	if src == nil {
		return ErrNoSource
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var errs []error
	for _, m := range metrics {
		value := m.value
		fn := func() float64 { return value(src.Stats()) }

		var c prometheus.Collector
		if m.counter {
			c = prometheus.NewCounterFunc(prometheus.CounterOpts{Namespace: namespace, Name: m.name, Help: m.help}, fn)
		} else {
			c = prometheus.NewGaugeFunc(prometheus.GaugeOpts{Namespace: namespace, Name: m.name, Help: m.help}, fn)
		}
		if err := reg.Register(c); err != nil {
			errs = append(errs, fmt.Errorf("register %s_%s: %w", namespace, m.name, err))
		}
	}
	return errors.Join(errs...)
}

// Handler serves the metrics in g, defaulting to the global gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var ErrNoSource = errors.New("metrics source is nil")
