package world

import (
	"time"

	"github.com/zeusync/substrate/internal/core/ground"
	"github.com/zeusync/substrate/internal/core/netstate"
	"github.com/zeusync/substrate/internal/core/think"
	"github.com/zeusync/substrate/internal/core/touch"
	"github.com/zeusync/substrate/internal/core/transform"
	"github.com/zeusync/substrate/internal/core/visibility"
)

type counters struct {
	ticks             uint64
	spawned           uint64
	spawnFailures     uint64
	reaped            uint64
	replicated        uint64
	replicationErrors uint64
}

// Stats is a point-in-time copy of world and subsystem counters, taken at the
// end of every tick.
type Stats struct {
	Tick              int64
	Ticks             uint64
	LastTick          time.Duration
	Entities          int
	PendingDeletion   int
	Spawned           uint64
	SpawnFailures     uint64
	Reaped            uint64
	Replicated        uint64
	ReplicationErrors uint64

	Transform  transform.Stats
	Visibility visibility.Stats
	Touch      touch.Stats
	Ground     ground.Stats
	Think      think.Stats
	Network    netstate.Stats
}

// Stats returns the snapshot of the last completed tick. Safe for concurrent use.
func (w *World) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot
}

func (w *World) publishStats(elapsed time.Duration) {
	st := Stats{
		Tick:              w.clock.Tick,
		Ticks:             w.counters.ticks,
		LastTick:          elapsed,
		Entities:          w.registry.Count(),
		PendingDeletion:   w.registry.PendingCount(),
		Spawned:           w.counters.spawned,
		SpawnFailures:     w.counters.spawnFailures,
		Reaped:            w.counters.reaped,
		Replicated:        w.counters.replicated,
		ReplicationErrors: w.counters.replicationErrors,
		Transform:         w.hierarchy.Stats(),
		Visibility:        w.vis.Stats(),
		Touch:             w.touch.Stats(),
		Ground:            w.ground.Stats(),
		Think:             w.think.Stats(),
		Network:           w.net.Stats(),
	}
	w.mu.Lock()
	w.snapshot = st
	w.mu.Unlock()
}
