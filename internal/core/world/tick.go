package world

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/events/bus"
	"github.com/zeusync/substrate/internal/core/netstate"
	"github.com/zeusync/substrate/internal/core/observability/log"
)

// Tick runs one simulation step:
//
//	movement, think, untouch check, touch flush, ground wake, ground notices,
//	replication, deletion reaping, clock advance.
//
// A replication failure keeps the changes pending for the next tick and is
// returned after the rest of the step has completed.
func (w *World) Tick(ctx context.Context) error {
	tick := w.clock.Tick
	start := time.Now()
	ctx, span := w.tracer.Start(ctx, "world.tick",
		trace.WithAttributes(attribute.Int64("tick", tick)))
	defer span.End()

	if w.movement != nil {
		w.movement(ctx, w, w.clock.Interval)
	}

	thinks := w.think.Run(tick)
	w.touch.CheckUntouch()
	touches := w.touch.Flush()
	woken := w.wakeMoved()
	notices := w.flushGround()

	replicated, err := w.replicate(ctx)
	if err != nil {
		w.counters.replicationErrors++
		span.RecordError(err)
		span.SetStatus(codes.Error, "replication failed")
		w.logger.WithContext(ctx).Warn("replication failed", log.Int64("tick", tick), log.Error(err))
		err = fmt.Errorf("replicate tick %d: %w", tick, err)
	}

	reaped := w.registry.Reap(w.unlink)
	w.counters.reaped += uint64(reaped)
	w.clock.Advance()
	w.counters.ticks++

	span.SetAttributes(
		attribute.Int("thinks", thinks),
		attribute.Int("touch_events", touches),
		attribute.Int("woken", woken),
		attribute.Int("ground_notices", notices),
		attribute.Int("replicated", replicated),
		attribute.Int("reaped", reaped),
	)
	w.publishStats(time.Since(start))
	return err
}

// wakeMoved wakes everything resting on entities that moved this tick.
func (w *World) wakeMoved() int {
	if len(w.moved) == 0 {
		return 0
	}
	ids := make([]entity.ID, 0, len(w.moved))
	for id := range w.moved {
		ids = append(ids, id)
	}
	clear(w.moved)
	sort.Slice(ids, func(i, j int) bool { return ids[i].Index() < ids[j].Index() })

	n := 0
	for _, id := range ids {
		n += w.ground.WakeResting(id)
	}
	return n
}

type groundNotice struct {
	id      entity.ID
	former  entity.ID
	removed bool
}

// flushGround delivers queued ground notices to the bus and to ground
// handlers. Notices raised by handlers join the queue and are delivered by the
// same call. Notices for entities that are gone are dropped.
func (w *World) flushGround() int {
	n := 0
	for len(w.notices) > 0 {
		batch := w.notices
		w.notices = nil
		for _, nt := range batch {
			if !w.registry.IsAlive(nt.id) {
				continue
			}
			n++
			if nt.removed {
				w.publish(bus.GroundRemoved, bus.GroundRemovedData{Entity: nt.id, Former: nt.former, Tick: w.clock.Tick})
				if m := w.lookup(nt.id); m != nil && m.ground != nil {
					m.ground.GroundRemoved(nt.id, nt.former)
				}
				continue
			}

			w.think.Wake(nt.id)
			w.publish(bus.EntityWoken, bus.EntityWokenData{Entity: nt.id, Tick: w.clock.Tick})
			if m := w.lookup(nt.id); m != nil && m.ground != nil {
				m.ground.Woken(nt.id)
			}
		}
	}
	return n
}

// replicate hands this tick's changes to the replicator. It is called every
// tick, with an empty batch when nothing changed, so viewers that moved still
// get their view refreshed.
func (w *World) replicate(ctx context.Context) (int, error) {
	w.markSpun()
	dirty := w.net.Dirty()
	changes := make([]netstate.Change, 0, len(dirty))
	for _, id := range dirty {
		st, ok := w.State(id)
		if !ok {
			continue
		}
		changes = append(changes, netstate.Change{ChangeSet: w.net.Changes(id), State: st})
	}

	if w.replicator != nil {
		if err := w.replicator.Replicate(ctx, changes); err != nil {
			return 0, err
		}
	}
	for _, id := range dirty {
		w.net.ClearAfterReplication(id)
	}
	w.counters.replicated += uint64(len(changes))
	return len(changes), nil
}

// markSpun marks the velocity field of every descendant of an entity whose
// velocity or angles changed. Children pull parent velocity lazily, so the
// invalidation walk never reaches them for a velocity change.
func (w *World) markSpun() {
	if len(w.spun) == 0 {
		return
	}
	var stack []entity.ID
	for id := range w.spun {
		stack = append(stack, w.hierarchy.Children(id)...)
	}
	clear(w.spun)

	seen := make(map[entity.ID]struct{}, len(stack))
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		w.net.MarkFieldChanged(id, netstate.VelocityOffset)
		stack = append(stack, w.hierarchy.Children(id)...)
	}
}

// unlink detaches id from every subsystem before its slot is freed. Ground
// goes first so dependents wake while the hierarchy still holds their pose.
func (w *World) unlink(id entity.ID) {
	w.ground.Remove(id)
	w.touch.Remove(id)
	w.think.Remove(id)
	w.hierarchy.Remove(id)
	w.vis.Remove(id)
	w.net.Remove(id)
	delete(w.moved, id)
	delete(w.spun, id)
	if m := w.lookup(id); m != nil {
		*m = meta{}
	}

	w.logger.Debug("entity reaped", log.Stringer("entity", id))
	w.publish(bus.EntityDestroyed, bus.EntityDestroyedData{Entity: id, Tick: w.clock.Tick})
}
