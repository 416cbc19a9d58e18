package transform

import (
	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/pkg/vmath"
)

// Hierarchy is the transform forest of one world. Nodes live in a dense slice
// indexed by entity slot, and parent/child links are entity IDs validated on
// every access. Not safe for concurrent use.
type Hierarchy struct {
	nodes []*node

	live     entity.Liveness
	listener Listener
	hook     ParentHook
	resolver AttachmentResolver
	onReject RejectHandler
	limits   vmath.Limits
	logger   log.Log

	stats Stats
}

type node struct {
	id entity.ID

	localOrigin   vmath.Vec3
	localAngles   vmath.Angles
	localVelocity vmath.Vec3

	absOrigin   vmath.Vec3
	absAngles   vmath.Angles
	absVelocity vmath.Vec3
	frame       vmath.Matrix3x4

	parent     entity.ID
	children   []entity.ID
	attachment uint8

	dirty DirtyBits
	// velGen advances on every abs velocity recomputation; children compare it
	// with parentVelGen to notice a parent velocity change that was not pushed.
	velGen       uint64
	parentVelGen uint64

	movable  bool
	solidity Solidity
}

type Stats struct {
	Nodes                  int
	AbsTransformRecomputes uint64
	AbsVelocityRecomputes  uint64
	Rejected               uint64
}

type Option func(*Hierarchy)

func WithLiveness(live entity.Liveness) Option {
	return func(h *Hierarchy) { h.live = live }
}

func WithListener(listener Listener) Option {
	return func(h *Hierarchy) { h.listener = listener }
}

func WithParentHook(hook ParentHook) Option {
	return func(h *Hierarchy) { h.hook = hook }
}

func WithAttachmentResolver(resolver AttachmentResolver) Option {
	return func(h *Hierarchy) { h.resolver = resolver }
}

func WithRejectHandler(fn RejectHandler) Option {
	return func(h *Hierarchy) { h.onReject = fn }
}

func WithLimits(limits vmath.Limits) Option {
	return func(h *Hierarchy) { h.limits = limits }
}

func WithLogger(logger log.Log) Option {
	return func(h *Hierarchy) { h.logger = logger }
}

func NewHierarchy(opts ...Option) *Hierarchy {
	h := &Hierarchy{
		limits: vmath.DefaultLimits(),
		logger: log.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(log.String("component", "transform"))
	return h
}

// Add creates an identity node for id at the world origin.
func (h *Hierarchy) Add(id entity.ID) bool {
	if !id.IsValid() {
		return false
	}
	index := int(id.Index())
	for len(h.nodes) <= index {
		h.nodes = append(h.nodes, nil)
	}
	if h.nodes[index] != nil {
		if h.nodes[index].id == id {
			return false
		}
		h.logger.Warn("replacing stale transform node",
			log.Stringer("stale", h.nodes[index].id), log.Stringer("entity", id))
		h.stats.Nodes--
	}

	h.nodes[index] = &node{
		id:      id,
		frame:   vmath.Identity(),
		dirty:   DirtyAbsTransform | DirtyAbsVelocity,
		movable: true,
	}
	h.stats.Nodes++
	return true
}

// Remove unlinks id from its parent and detaches every child. Children keep
// their world pose.
func (h *Hierarchy) Remove(id entity.ID) bool {
	n := h.lookup(id)
	if n == nil {
		return false
	}

	children := append([]entity.ID(nil), n.children...)
	for _, child := range children {
		h.ClearParent(child)
	}
	if n.parent.IsValid() {
		h.ClearParent(id)
	}

	h.nodes[id.Index()] = nil
	h.stats.Nodes--
	return true
}

func (h *Hierarchy) Has(id entity.ID) bool {
	return h.lookup(id) != nil
}

func (h *Hierarchy) Stats() Stats {
	return h.stats
}

// Dirty exposes the raw dirty bits of id.
func (h *Hierarchy) Dirty(id entity.ID) DirtyBits {
	if n := h.lookup(id); n != nil {
		return n.dirty
	}
	return 0
}

func (h *Hierarchy) lookup(id entity.ID) *node {
	index := int(id.Index())
	if !id.IsValid() || index >= len(h.nodes) {
		return nil
	}
	n := h.nodes[index]
	if n == nil || n.id != id {
		return nil
	}
	if h.live != nil && !h.live.IsAlive(id) {
		return nil
	}
	return n
}

// parentNode returns the live parent of n. A dangling parent link is cut.
func (h *Hierarchy) parentNode(n *node) *node {
	if !n.parent.IsValid() {
		return nil
	}
	p := h.lookup(n.parent)
	if p == nil {
		h.logger.Warn("dropping dangling parent link",
			log.Stringer("entity", n.id), log.Stringer("parent", n.parent))
		n.parent = entity.Invalid
		n.attachment = 0
		n.dirty |= DirtyAbsTransform | DirtyAbsVelocity
	}
	return p
}

func (h *Hierarchy) reject(id entity.ID, field string, value any) bool {
	h.stats.Rejected++
	h.logger.Warn("rejected invalid geometry",
		log.Stringer("entity", id), log.String("field", field), log.Any("value", value))
	if h.onReject != nil {
		h.onReject(id, field, value)
	}
	return false
}
