package world

import (
	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/events/bus"
	"github.com/zeusync/substrate/internal/core/netstate"
	"github.com/zeusync/substrate/internal/core/transform"
)

// hooks fans subsystem notifications out to the rest of the world.
type hooks struct {
	w *World
}

// TransformChanged runs inside the invalidation walk, so it only records.
func (h *hooks) TransformChanged(id entity.ID, flags transform.ChangeFlags) {
	w := h.w
	if flags&(transform.PositionChanged|transform.AnglesChanged) != 0 {
		w.vis.MarkDirty(id)
		w.net.MarkFieldChanged(id, netstate.OriginOffset)
		if flags&transform.AnglesChanged != 0 {
			w.net.MarkFieldChanged(id, netstate.AnglesOffset)
		}
		w.moved[id] = struct{}{}
	}
	if flags&transform.VelocityChanged != 0 {
		w.net.MarkFieldChanged(id, netstate.VelocityOffset)
	}
	if flags&(transform.VelocityChanged|transform.AnglesChanged) != 0 {
		w.spun[id] = struct{}{}
	}
}

func (h *hooks) BeforeParentChange(child, oldParent, newParent entity.ID) {}

func (h *hooks) AfterParentChange(child, oldParent, newParent entity.ID) {
	h.w.net.MarkFieldChanged(child, netstate.ParentOffset)
	h.w.net.MarkFieldChanged(child, netstate.AttachmentOffset)
}

func (h *hooks) SolidityChanged(id entity.ID, from, to transform.Solidity) {
	h.w.net.MarkFieldChanged(id, netstate.SolidityOffset)
}

func (h *hooks) GroundAcquired(id, ground entity.ID) {
	h.w.net.MarkFieldChanged(id, netstate.GroundOffset)
}

// GroundRemoved runs inside a ground table operation, so the notice is queued.
func (h *hooks) GroundRemoved(id, former entity.ID) {
	h.w.net.MarkFieldChanged(id, netstate.GroundOffset)
	h.w.notices = append(h.w.notices, groundNotice{id: id, former: former, removed: true})
}

// Woken puts a resting entity back on the SimThink list and queues the notice.
func (h *hooks) Woken(id entity.ID) {
	h.w.think.SetSimulating(id, true)
	h.w.notices = append(h.w.notices, groundNotice{id: id})
}

func (h *hooks) rejected(id entity.ID, field string, value any) {
	h.w.publish(bus.RejectedGeometry, bus.RejectedGeometryData{Entity: id, Field: field, Value: value})
}

func (h *hooks) starved(id entity.ID, context string, tick int64) {
	h.w.publish(bus.ThinkStarved, bus.ThinkStarvedData{Entity: id, Context: context, Tick: tick})
}
