package transform

import (
	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/pkg/vmath"
)

func (h *Hierarchy) SetLocalOrigin(id entity.ID, origin vmath.Vec3) bool {
	n := h.lookup(id)
	if n == nil {
		return false
	}
	if !h.limits.OriginOK(origin) {
		return h.reject(id, "local_origin", origin)
	}
	if n.localOrigin == origin {
		return true
	}
	h.invalidate(n, PositionChanged)
	n.localOrigin = origin
	return true
}

func (h *Hierarchy) SetLocalAngles(id entity.ID, angles vmath.Angles) bool {
	n := h.lookup(id)
	if n == nil {
		return false
	}
	if !h.limits.AnglesOK(angles) {
		return h.reject(id, "local_angles", angles)
	}
	if n.localAngles == angles {
		return true
	}
	h.invalidate(n, AnglesChanged)
	n.localAngles = angles
	return true
}

func (h *Hierarchy) SetLocalVelocity(id entity.ID, velocity vmath.Vec3) bool {
	n := h.lookup(id)
	if n == nil {
		return false
	}
	if !h.limits.VelocityOK(velocity) {
		return h.reject(id, "local_velocity", velocity)
	}
	if n.localVelocity == velocity {
		return true
	}
	h.invalidate(n, VelocityChanged)
	n.localVelocity = velocity
	return true
}

func (h *Hierarchy) LocalOrigin(id entity.ID) vmath.Vec3 {
	if n := h.lookup(id); n != nil {
		return n.localOrigin
	}
	return vmath.Vec3{}
}

func (h *Hierarchy) LocalAngles(id entity.ID) vmath.Angles {
	if n := h.lookup(id); n != nil {
		return n.localAngles
	}
	return vmath.Angles{}
}

func (h *Hierarchy) LocalVelocity(id entity.ID) vmath.Vec3 {
	if n := h.lookup(id); n != nil {
		return n.localVelocity
	}
	return vmath.Vec3{}
}

func (h *Hierarchy) AbsOrigin(id entity.ID) vmath.Vec3 {
	n := h.lookup(id)
	if n == nil {
		return vmath.Vec3{}
	}
	h.resolveTransform(n)
	return n.absOrigin
}

func (h *Hierarchy) AbsAngles(id entity.ID) vmath.Angles {
	n := h.lookup(id)
	if n == nil {
		return vmath.Angles{}
	}
	h.resolveTransform(n)
	return n.absAngles
}

func (h *Hierarchy) AbsVelocity(id entity.ID) vmath.Vec3 {
	n := h.lookup(id)
	if n == nil {
		return vmath.Vec3{}
	}
	h.resolveVelocity(n)
	return n.absVelocity
}

// EntityToWorld returns the cached entity-to-world frame of id.
func (h *Hierarchy) EntityToWorld(id entity.ID) vmath.Matrix3x4 {
	n := h.lookup(id)
	if n == nil {
		return vmath.Identity()
	}
	h.resolveTransform(n)
	return n.frame
}

// SetAbsOrigin moves id to a world position, storing the equivalent local
// origin relative to the current parent frame.
func (h *Hierarchy) SetAbsOrigin(id entity.ID, origin vmath.Vec3) bool {
	n := h.lookup(id)
	if n == nil {
		return false
	}
	if !h.limits.OriginOK(origin) {
		return h.reject(id, "abs_origin", origin)
	}

	h.resolveTransform(n)
	if n.absOrigin == origin {
		return true
	}

	local := origin
	if p := h.parentNode(n); p != nil {
		local = vmath.ITransformPoint(origin, h.parentToWorld(n, p))
	}

	h.invalidate(n, PositionChanged)
	// the rotation part of the frame is still valid, only the translation moved
	n.dirty &^= DirtyAbsTransform
	n.absOrigin = origin
	n.frame = vmath.SetOrigin(n.frame, origin)
	n.localOrigin = local
	return true
}

// SetAbsAngles orients id in world space, storing the equivalent local angles.
func (h *Hierarchy) SetAbsAngles(id entity.ID, angles vmath.Angles) bool {
	n := h.lookup(id)
	if n == nil {
		return false
	}
	if !h.limits.AnglesOK(angles) {
		return h.reject(id, "abs_angles", angles)
	}

	h.resolveTransform(n)
	if n.absAngles == angles {
		return true
	}

	frame := vmath.AngleMatrix(angles, n.absOrigin)
	local := angles
	if p := h.parentNode(n); p != nil {
		worldToParent := vmath.InvertAffine(h.parentToWorld(n, p))
		local = vmath.MatrixAngles(vmath.ConcatTransforms(worldToParent, frame))
	}

	h.invalidate(n, AnglesChanged)
	n.dirty &^= DirtyAbsTransform
	n.absAngles = angles
	n.frame = frame
	n.localAngles = local
	return true
}

// SetAbsVelocity sets the world velocity of id. The stored local velocity is
// relative to the parent's frame and excludes the parent's own velocity.
func (h *Hierarchy) SetAbsVelocity(id entity.ID, velocity vmath.Vec3) bool {
	n := h.lookup(id)
	if n == nil {
		return false
	}
	if !h.limits.VelocityOK(velocity) {
		return h.reject(id, "abs_velocity", velocity)
	}

	h.resolveVelocity(n)
	if n.absVelocity == velocity {
		return true
	}

	local := velocity
	p := h.parentNode(n)
	if p != nil {
		h.resolveVelocity(p)
		h.resolveTransform(p)
		local = vmath.IRotate(velocity.Sub(p.absVelocity), p.frame)
	}

	h.invalidate(n, VelocityChanged)
	n.dirty &^= DirtyAbsVelocity
	n.absVelocity = velocity
	n.localVelocity = local
	n.velGen++
	if p != nil {
		n.parentVelGen = p.velGen
	}
	return true
}

// resolveTransform recomputes abs origin, angles and frame of n if stale. The
// parent chain is always resolved first.
func (h *Hierarchy) resolveTransform(n *node) {
	if n.dirty&DirtyAbsTransform == 0 {
		return
	}

	local := vmath.AngleMatrix(n.localAngles, n.localOrigin)
	p := h.parentNode(n)
	if p == nil {
		n.frame = local
		n.absOrigin = n.localOrigin
		n.absAngles = n.localAngles
	} else {
		n.frame = vmath.ConcatTransforms(h.parentToWorld(n, p), local)
		n.absOrigin = vmath.Origin(n.frame)
		if n.localAngles.IsZero() && n.attachment == 0 {
			n.absAngles = p.absAngles
		} else {
			n.absAngles = vmath.MatrixAngles(n.frame)
		}
	}

	n.dirty &^= DirtyAbsTransform
	h.stats.AbsTransformRecomputes++
}

// resolveVelocity recomputes the abs velocity of n when n is dirty or when its
// parent's velocity generation moved since the last composition.
func (h *Hierarchy) resolveVelocity(n *node) {
	p := h.parentNode(n)
	if p == nil {
		if n.dirty&DirtyAbsVelocity == 0 {
			return
		}
		n.absVelocity = n.localVelocity
	} else {
		h.resolveVelocity(p)
		if n.dirty&DirtyAbsVelocity == 0 && n.parentVelGen == p.velGen {
			return
		}
		h.resolveTransform(p)
		n.absVelocity = vmath.Rotate(n.localVelocity, p.frame).Add(p.absVelocity)
		n.parentVelGen = p.velGen
	}

	n.dirty &^= DirtyAbsVelocity
	n.velGen++
	h.stats.AbsVelocityRecomputes++
}

// parentToWorld returns the frame n is expressed in: the parent's frame, or its
// attachment frame when n hangs off a named attachment.
func (h *Hierarchy) parentToWorld(n, p *node) vmath.Matrix3x4 {
	h.resolveTransform(p)
	if n.attachment == 0 {
		return p.frame
	}
	if h.resolver != nil {
		if frame, ok := h.resolver.AttachmentToWorld(p.id, n.attachment, p.frame); ok {
			return frame
		}
	}
	h.logger.Debug("attachment frame unavailable, using parent frame",
		log.Stringer("entity", n.id), log.Stringer("parent", p.id), log.Int("attachment", int(n.attachment)))
	return p.frame
}
