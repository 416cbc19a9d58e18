package netstate

import (
	"context"

	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/observability/log"
)

const (
	// DefaultMaxChangeOffsets is how many distinct field offsets one entity can
	// record before it degrades to a full change.
	DefaultMaxChangeOffsets = 19
	// DefaultMaxChangeInfos is the world-wide number of entities that may hold
	// a partial change list at once.
	DefaultMaxChangeInfos = 100
)

type Flags uint8

const (
	Changed Flags = 1 << iota
	FullChanged
)

// ChangeSet is what changed on one entity since it was last replicated.
type ChangeSet struct {
	ID      entity.ID
	Full    bool
	Offsets []uintptr
}

// Change pairs a change set with the entity's current replicated state.
type Change struct {
	ChangeSet
	State State
}

// Replicator ships changes to remote peers. Encoding is its own business.
type Replicator interface {
	Replicate(ctx context.Context, changes []Change) error
}

type ReplicatorFunc func(ctx context.Context, changes []Change) error

func (f ReplicatorFunc) Replicate(ctx context.Context, changes []Change) error {
	return f(ctx, changes)
}

type Stats struct {
	Entities   int
	Dirty      int
	SlotsInUse int
	FieldMarks uint64
	FullMarks  uint64
	Degraded   uint64
	Cleared    uint64
}

type record struct {
	id      entity.ID
	flags   Flags
	offsets []uintptr
	slot    bool
}

// Tracker holds per-entity change flags and offset lists.
type Tracker struct {
	records    []*record
	maxOffsets int
	maxInfos   int
	slots      int
	dirty      int
	logger     log.Log
	stats      Stats
}

type Option func(*Tracker)

func WithMaxChangeOffsets(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxOffsets = n
		}
	}
}

// WithMaxChangeInfos sets the shared slot budget. Zero or less removes the budget.
func WithMaxChangeInfos(n int) Option {
	return func(t *Tracker) { t.maxInfos = n }
}

func WithLogger(logger log.Log) Option {
	return func(t *Tracker) { t.logger = logger }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		maxOffsets: DefaultMaxChangeOffsets,
		maxInfos:   DefaultMaxChangeInfos,
		logger:     log.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(log.String("component", "netstate"))
	return t
}

func (t *Tracker) Add(id entity.ID) bool {
	if !id.IsValid() {
		return false
	}
	index := int(id.Index())
	for len(t.records) <= index {
		t.records = append(t.records, nil)
	}
	if r := t.records[index]; r != nil && r.id == id {
		return false
	}
	// a new entity has never been sent, so the first replication is full
	t.records[index] = &record{id: id, flags: Changed | FullChanged}
	t.dirty++
	t.stats.Entities++
	return true
}

func (t *Tracker) Remove(id entity.ID) bool {
	r := t.record(id)
	if r == nil {
		return false
	}
	t.reset(r)
	t.records[id.Index()] = nil
	t.stats.Entities--
	return true
}

// MarkFieldChanged records a change of the field at offset. The change is never
// lost: when the entity's list or the shared slot budget is exhausted the
// entity is marked fully changed instead.
func (t *Tracker) MarkFieldChanged(id entity.ID, offset uintptr) bool {
	r := t.record(id)
	if r == nil {
		return false
	}
	t.stats.FieldMarks++
	t.setChanged(r)
	if r.flags&FullChanged != 0 {
		return true
	}
	for _, off := range r.offsets {
		if off == offset {
			return true
		}
	}

	if !r.slot {
		if t.maxInfos > 0 && t.slots >= t.maxInfos {
			t.degrade(r, "change info slots exhausted")
			return true
		}
		r.slot = true
		t.slots++
	}
	if len(r.offsets) >= t.maxOffsets {
		t.degrade(r, "change offset list full")
		return true
	}
	r.offsets = append(r.offsets, offset)
	return true
}

// MarkChanged flags the whole entity as changed.
func (t *Tracker) MarkChanged(id entity.ID) bool {
	r := t.record(id)
	if r == nil {
		return false
	}
	t.stats.FullMarks++
	t.setChanged(r)
	t.toFull(r)
	return true
}

func (t *Tracker) IsChanged(id entity.ID) bool {
	r := t.record(id)
	return r != nil && r.flags&Changed != 0
}

func (t *Tracker) Flags(id entity.ID) Flags {
	if r := t.record(id); r != nil {
		return r.flags
	}
	return 0
}

// Changes returns a copy of the pending changes of id.
func (t *Tracker) Changes(id entity.ID) ChangeSet {
	r := t.record(id)
	if r == nil {
		return ChangeSet{}
	}
	return ChangeSet{
		ID:      id,
		Full:    r.flags&FullChanged != 0,
		Offsets: append([]uintptr(nil), r.offsets...),
	}
}

// Dirty lists changed entities in ascending index order.
func (t *Tracker) Dirty() []entity.ID {
	if t.dirty == 0 {
		return nil
	}
	out := make([]entity.ID, 0, t.dirty)
	for _, r := range t.records {
		if r != nil && r.flags&Changed != 0 {
			out = append(out, r.id)
		}
	}
	return out
}

func (t *Tracker) ClearAfterReplication(id entity.ID) bool {
	r := t.record(id)
	if r == nil {
		return false
	}
	if r.flags&Changed != 0 {
		t.stats.Cleared++
	}
	t.reset(r)
	return true
}

func (t *Tracker) ClearAll() {
	for _, r := range t.records {
		if r != nil && r.flags&Changed != 0 {
			t.stats.Cleared++
			t.reset(r)
		}
	}
}

func (t *Tracker) Stats() Stats {
	st := t.stats
	st.Dirty = t.dirty
	st.SlotsInUse = t.slots
	return st
}

func (t *Tracker) setChanged(r *record) {
	if r.flags&Changed == 0 {
		r.flags |= Changed
		t.dirty++
	}
}

func (t *Tracker) degrade(r *record, reason string) {
	t.stats.Degraded++
	t.logger.Debug("degrading to full change",
		log.Stringer("entity", r.id), log.String("reason", reason), log.Int("offsets", len(r.offsets)))
	t.toFull(r)
}

func (t *Tracker) toFull(r *record) {
	r.flags |= FullChanged
	r.offsets = r.offsets[:0]
	t.releaseSlot(r)
}

func (t *Tracker) reset(r *record) {
	if r.flags&Changed != 0 {
		t.dirty--
	}
	r.flags = 0
	r.offsets = r.offsets[:0]
	t.releaseSlot(r)
}

func (t *Tracker) releaseSlot(r *record) {
	if r.slot {
		r.slot = false
		t.slots--
	}
}

func (t *Tracker) record(id entity.ID) *record {
	index := int(id.Index())
	if !id.IsValid() || index >= len(t.records) {
		return nil
	}
	if r := t.records[index]; r != nil && r.id == id {
		return r
	}
	return nil
}
