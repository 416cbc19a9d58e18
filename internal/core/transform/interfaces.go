package transform

import (
	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/pkg/vmath"
)

// Listener observes invalidation. It runs in the middle of a recursive walk and
// must not mutate the hierarchy; recording the id for later work is fine.
type Listener interface {
	TransformChanged(id entity.ID, flags ChangeFlags)
}

// ParentHook is told about parenthood transitions so owners can release or
// acquire resources tied to a parent. Unlike Listener it may read the hierarchy.
type ParentHook interface {
	BeforeParentChange(child, oldParent, newParent entity.ID)
	AfterParentChange(child, oldParent, newParent entity.ID)
	SolidityChanged(id entity.ID, from, to Solidity)
}

// AttachmentResolver maps a named attachment point on a parent's skeleton to a
// world frame, given the parent's own entity-to-world frame.
type AttachmentResolver interface {
	AttachmentToWorld(parent entity.ID, attachment uint8, parentToWorld vmath.Matrix3x4) (vmath.Matrix3x4, bool)
}

// RejectHandler receives every dropped mutation.
type RejectHandler func(id entity.ID, field string, value any)

type ListenerFunc func(id entity.ID, flags ChangeFlags)

func (f ListenerFunc) TransformChanged(id entity.ID, flags ChangeFlags) {
	f(id, flags)
}
