package world

import (
	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/netstate"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/internal/core/think"
	"github.com/zeusync/substrate/internal/core/touch"
	"github.com/zeusync/substrate/internal/core/visibility"
	"github.com/zeusync/substrate/pkg/vmath"
)

// SpawnParams describes a new entity. Origin, Angles and Velocity are in world
// space; with a Parent set the entity is attached keeping that pose.
type SpawnParams struct {
	Origin     vmath.Vec3
	Angles     vmath.Angles
	Velocity   vmath.Vec3
	Parent     entity.ID
	Attachment uint8

	// Mins and Maxs bound the entity in its own frame. Entities without
	// bounds are never visible.
	Mins      vmath.Vec3
	Maxs      vmath.Vec3
	HasBounds bool

	Static bool
	Flags  uint32

	// Touch decides which contacts reach Handler. The zero Profile is neither
	// solid nor a trigger, so its links never fire StartTouch or EndTouch.
	Touch   touch.Profile
	Handler touch.Handler

	// Ground hears when the entity loses its support or is woken by a moving
	// or vanishing support.
	Ground GroundHandler

	// Thinker is bound to the default context and scheduled at ThinkAt when
	// ThinkAt is not negative.
	Thinker    think.Thinker
	ThinkAt    float64
	Simulating bool
}

// GroundHandler receives support notices. Calls are made at the ground flush
// point of a tick, never from inside a ground table operation, so handlers may
// set or clear ground links and destroy entities.
type GroundHandler interface {
	GroundRemoved(self, former entity.ID)
	Woken(self entity.ID)
}

// GroundFuncs adapts plain functions to GroundHandler. Nil members are skipped.
type GroundFuncs struct {
	OnRemoved func(self, former entity.ID)
	OnWoken   func(self entity.ID)
}

func (g GroundFuncs) GroundRemoved(self, former entity.ID) {
	if g.OnRemoved != nil {
		g.OnRemoved(self, former)
	}
}

func (g GroundFuncs) Woken(self entity.ID) {
	if g.OnWoken != nil {
		g.OnWoken(self)
	}
}

// Snapshot is the save/restore view of one entity.
type Snapshot struct {
	ID            entity.ID
	Parent        entity.ID
	Attachment    uint8
	LocalOrigin   vmath.Vec3
	LocalAngles   vmath.Angles
	LocalVelocity vmath.Vec3
	Ground        entity.ID
	Static        bool
	Flags         uint32
	Pending       bool
}

// Spawn creates and registers an entity with every subsystem. It returns
// entity.Invalid when the registry is full.
func (w *World) Spawn(p SpawnParams) entity.ID {
	id, err := w.registry.Create()
	if err != nil {
		w.counters.spawnFailures++
		w.logger.Warn("cannot spawn entity", log.Error(err), log.Int("live", w.registry.Count()))
		return entity.Invalid
	}

	index := int(id.Index())
	for len(w.meta) <= index {
		w.meta = append(w.meta, meta{})
	}
	w.meta[index] = meta{id: id, mins: p.Mins, maxs: p.Maxs, hasBounds: p.HasBounds, flags: p.Flags, ground: p.Ground}

	w.net.Add(id)
	w.vis.Add(id)
	w.hierarchy.Add(id)
	w.touch.Add(id, p.Touch, p.Handler)
	w.ground.Add(id)
	w.think.Add(id)

	h := w.hierarchy
	h.SetLocalOrigin(id, p.Origin)
	h.SetLocalAngles(id, p.Angles)
	h.SetLocalVelocity(id, p.Velocity)
	if p.Static {
		h.SetMovable(id, false)
	}
	if p.Parent.IsValid() && !h.SetParent(id, p.Parent, p.Attachment) {
		w.logger.Warn("spawned entity left unparented",
			log.Stringer("entity", id), log.Stringer("parent", p.Parent))
	}

	if p.Thinker != nil {
		w.think.SetThink(id, p.Thinker)
		if p.ThinkAt >= 0 {
			w.think.SetNextThink(id, p.ThinkAt, "")
		}
	}
	if p.Simulating {
		w.think.SetSimulating(id, true)
	}

	w.counters.spawned++
	w.logger.Debug("entity spawned", log.Stringer("entity", id))
	return id
}

// Destroy queues id for removal at the end of the current tick. Repeated calls
// are harmless.
func (w *World) Destroy(id entity.ID) bool {
	return w.registry.MarkForDeletion(id)
}

func (w *World) Alive(id entity.ID) bool {
	return w.registry.IsAlive(id)
}

// Pending reports whether id is queued for removal.
func (w *World) Pending(id entity.ID) bool {
	return w.registry.IsMarkedForDeletion(id)
}

func (w *World) Count() int {
	return w.registry.Count()
}

// SetBounds replaces the local bounding box of id.
func (w *World) SetBounds(id entity.ID, mins, maxs vmath.Vec3) bool {
	m := w.lookup(id)
	if m == nil || !w.Alive(id) {
		return false
	}
	m.mins, m.maxs, m.hasBounds = mins, maxs, true
	w.vis.MarkDirty(id)
	return true
}

// AbsBounds returns the world-space box around id.
func (w *World) AbsBounds(id entity.ID) (vmath.Vec3, vmath.Vec3, bool) {
	return w.bounds(id)
}

func (w *World) SetFlags(id entity.ID, flags uint32) bool {
	m := w.lookup(id)
	if m == nil || !w.Alive(id) {
		return false
	}
	if m.flags != flags {
		m.flags = flags
		w.net.MarkFieldChanged(id, netstate.FlagsOffset)
	}
	return true
}

func (w *World) Flags(id entity.ID) uint32 {
	if m := w.lookup(id); m != nil {
		return m.flags
	}
	return 0
}

// NetworkStateChanged records a change of the replicated field at offset.
func (w *World) NetworkStateChanged(id entity.ID, offset uintptr) bool {
	return w.net.MarkFieldChanged(id, offset)
}

// State builds the replicated state of id from current absolute values.
func (w *World) State(id entity.ID) (netstate.State, bool) {
	if !w.Alive(id) {
		return netstate.State{}, false
	}
	h := w.hierarchy
	return netstate.State{
		Origin:     h.AbsOrigin(id),
		Angles:     h.AbsAngles(id),
		Velocity:   h.AbsVelocity(id),
		Parent:     h.Parent(id),
		Attachment: int(h.Attachment(id)),
		Ground:     w.ground.Ground(id),
		Solidity:   h.Solidity(id),
		Flags:      w.Flags(id),
	}, true
}

// States visits the replicated state of every live entity in index order.
func (w *World) States(fn func(id entity.ID, state netstate.State) bool) {
	w.registry.Each(func(id entity.ID) bool {
		st, _ := w.State(id)
		return fn(id, st)
	})
}

// Enumerate visits live entities in stable index order, including those
// pending deletion, until fn returns false.
func (w *World) Enumerate(fn func(Snapshot) bool) {
	h := w.hierarchy
	w.registry.Each(func(id entity.ID) bool {
		return fn(Snapshot{
			ID:            id,
			Parent:        h.Parent(id),
			Attachment:    h.Attachment(id),
			LocalOrigin:   h.LocalOrigin(id),
			LocalAngles:   h.LocalAngles(id),
			LocalVelocity: h.LocalVelocity(id),
			Ground:        w.ground.Ground(id),
			Static:        !h.Movable(id),
			Flags:         w.Flags(id),
			Pending:       w.registry.IsMarkedForDeletion(id),
		})
	})
}

// IsInPVS reports whether id can be seen from a viewer with the given PVS and
// areas.
func (w *World) IsInPVS(id entity.ID, pvs visibility.PVS, areas []int) bool {
	return w.vis.IsVisible(id, pvs, areas)
}

// TouchOverlaps runs a touch pass for id against every bounded entity whose
// world box overlaps its own.
func (w *World) TouchOverlaps(id entity.ID) int {
	mins, maxs, ok := w.bounds(id)
	if !ok {
		return 0
	}
	var overlaps []entity.ID
	for i := range w.meta {
		other := w.meta[i].id
		if other == id || !w.Alive(other) {
			continue
		}
		omins, omaxs, ok := w.bounds(other)
		if ok && vmath.BoxesOverlap(mins, maxs, omins, omaxs) {
			overlaps = append(overlaps, other)
		}
	}
	w.touch.Resolve(id, overlaps)
	return len(overlaps)
}

func (w *World) bounds(id entity.ID) (vmath.Vec3, vmath.Vec3, bool) {
	m := w.lookup(id)
	if m == nil || !m.hasBounds || !w.Alive(id) {
		return vmath.Vec3{}, vmath.Vec3{}, false
	}
	mins, maxs := vmath.TransformAABB(w.hierarchy.EntityToWorld(id), m.mins, m.maxs)
	return mins, maxs, true
}
