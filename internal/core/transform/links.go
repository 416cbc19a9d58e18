package transform

import (
	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/pkg/vmath"
)

// InvalidatePhysicsRecursive marks id and its subtree stale for the given change.
func (h *Hierarchy) InvalidatePhysicsRecursive(id entity.ID, flags ChangeFlags) bool {
	n := h.lookup(id)
	if n == nil {
		return false
	}
	h.invalidate(n, flags)
	return true
}

func (h *Hierarchy) invalidate(n *node, flags ChangeFlags) {
	var dirty DirtyBits
	if flags&VelocityChanged != 0 {
		dirty |= DirtyAbsVelocity
	}
	if flags&(PositionChanged|AnglesChanged) != 0 {
		dirty |= DirtyAbsTransform
	}

	// velocity is pulled by children through velGen, never pushed
	forward := flags & PositionChanged
	if flags&AnglesChanged != 0 {
		forward |= PositionChanged | VelocityChanged
	}

	attachedOnly := false
	if flags&AnimationChanged != 0 {
		attachedOnly = flags&(PositionChanged|AnglesChanged|VelocityChanged) == 0
		forward = PositionChanged | AnglesChanged | VelocityChanged
	}

	n.dirty |= dirty
	if dirty != 0 && h.listener != nil {
		h.listener.TransformChanged(n.id, flags)
	}

	if forward == 0 {
		return
	}
	for _, childID := range n.children {
		c := h.lookup(childID)
		if c == nil {
			continue
		}
		if attachedOnly && c.attachment == 0 {
			continue
		}
		h.invalidate(c, forward)
	}
}

// SetParent links child under parent, optionally at a named attachment. The
// child's world pose and velocity are preserved. A zero parent detaches.
func (h *Hierarchy) SetParent(child, parent entity.ID, attachment uint8) bool {
	n := h.lookup(child)
	if n == nil {
		return false
	}

	var p *node
	if parent.IsValid() {
		p = h.lookup(parent)
		if p == nil {
			h.logger.Debug("parent is not alive", log.Stringer("entity", child), log.Stringer("parent", parent))
			return false
		}
		if parent == child || h.IsDescendant(parent, child) {
			h.logger.Warn("refusing cyclic parent link", log.Stringer("entity", child), log.Stringer("parent", parent))
			return false
		}
	} else {
		attachment = 0
	}

	if n.parent == parent && n.attachment == attachment {
		return true
	}

	h.resolveTransform(n)
	h.resolveVelocity(n)
	absOrigin, absAngles, absVelocity := n.absOrigin, n.absAngles, n.absVelocity
	frame := n.frame

	oldParent := n.parent
	if h.hook != nil {
		h.hook.BeforeParentChange(child, oldParent, parent)
	}

	h.unlink(n)
	if p != nil {
		n.parent = parent
		n.attachment = attachment
		p.children = append(p.children, child)
	}

	h.invalidate(n, PositionChanged|AnglesChanged|VelocityChanged)
	h.relocalize(n, p, frame, absOrigin, absAngles, absVelocity)

	if h.hook != nil {
		h.hook.AfterParentChange(child, oldParent, parent)
	}
	h.refreshSolidity(n)
	return true
}

func (h *Hierarchy) ClearParent(child entity.ID) bool {
	return h.SetParent(child, entity.Invalid, 0)
}

func (h *Hierarchy) unlink(n *node) {
	if p := h.lookup(n.parent); p != nil {
		for i, c := range p.children {
			if c == n.id {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}
	n.parent = entity.Invalid
	n.attachment = 0
}

// relocalize stores the local pose that reproduces the given world pose under
// the current parent of n.
func (h *Hierarchy) relocalize(n, p *node, world vmath.Matrix3x4, origin vmath.Vec3, angles vmath.Angles, velocity vmath.Vec3) {
	if p == nil {
		n.localOrigin = origin
		n.localAngles = angles
		n.localVelocity = velocity
		return
	}

	local := vmath.ConcatTransforms(vmath.InvertAffine(h.parentToWorld(n, p)), world)
	n.localOrigin = vmath.Origin(local)
	n.localAngles = vmath.MatrixAngles(local)

	h.resolveVelocity(p)
	n.localVelocity = vmath.IRotate(velocity.Sub(p.absVelocity), p.frame)
}

func (h *Hierarchy) Parent(id entity.ID) entity.ID {
	if n := h.lookup(id); n != nil {
		return n.parent
	}
	return entity.Invalid
}

func (h *Hierarchy) Attachment(id entity.ID) uint8 {
	if n := h.lookup(id); n != nil {
		return n.attachment
	}
	return 0
}

// Children returns a copy of the child list of id in link order.
func (h *Hierarchy) Children(id entity.ID) []entity.ID {
	n := h.lookup(id)
	if n == nil || len(n.children) == 0 {
		return nil
	}
	return append([]entity.ID(nil), n.children...)
}

// Root returns the ultimate ancestor of id, or id itself when it has no parent.
func (h *Hierarchy) Root(id entity.ID) entity.ID {
	n := h.lookup(id)
	if n == nil {
		return entity.Invalid
	}
	for {
		p := h.lookup(n.parent)
		if p == nil {
			return n.id
		}
		n = p
	}
}

// IsDescendant reports whether id sits anywhere below ancestor.
func (h *Hierarchy) IsDescendant(id, ancestor entity.ID) bool {
	n := h.lookup(id)
	for n != nil {
		if n.parent == ancestor && ancestor.IsValid() {
			return true
		}
		n = h.lookup(n.parent)
	}
	return false
}

// SetMovable flags whether id can move at all. Subtrees rooted at a non-movable
// entity are classified static.
func (h *Hierarchy) SetMovable(id entity.ID, movable bool) bool {
	n := h.lookup(id)
	if n == nil {
		return false
	}
	if n.movable == movable {
		return true
	}
	n.movable = movable
	h.refreshSolidity(n)
	return true
}

func (h *Hierarchy) Movable(id entity.ID) bool {
	n := h.lookup(id)
	return n != nil && n.movable
}

func (h *Hierarchy) Solidity(id entity.ID) Solidity {
	if n := h.lookup(id); n != nil {
		return n.solidity
	}
	return SolidityDynamic
}

func (h *Hierarchy) refreshSolidity(n *node) {
	root := h.lookup(h.Root(n.id))
	if root == nil {
		return
	}
	want := SolidityDynamic
	if !root.movable {
		want = SolidityStatic
	}
	h.applySolidity(n, want)
}

func (h *Hierarchy) applySolidity(n *node, want Solidity) {
	if n.solidity != want {
		from := n.solidity
		n.solidity = want
		if h.hook != nil {
			h.hook.SolidityChanged(n.id, from, want)
		}
	}
	for _, childID := range n.children {
		if c := h.lookup(childID); c != nil {
			h.applySolidity(c, want)
		}
	}
}
