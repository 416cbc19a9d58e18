// Package ground tracks which entity each entity is standing on. Links are set
// explicitly by movement code; nothing here is derived from overlap tests.
package ground

import (
	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/observability/log"
)

type Listener interface {
	GroundAcquired(id, ground entity.ID)
	// GroundRemoved fires exactly once for every link that is cleared.
	GroundRemoved(id, former entity.ID)
	Woken(id entity.ID)
}

type Stats struct {
	Links    int
	Acquired uint64
	Removed  uint64
	Woken    uint64
}

type record struct {
	id        entity.ID
	ground    entity.ID
	supported []entity.ID
}

type Table struct {
	records  []*record
	live     entity.Liveness
	listener Listener
	logger   log.Log
	stats    Stats
}

type Option func(*Table)

func WithLiveness(live entity.Liveness) Option {
	return func(t *Table) { t.live = live }
}

func WithListener(listener Listener) Option {
	return func(t *Table) { t.listener = listener }
}

func WithLogger(logger log.Log) Option {
	return func(t *Table) { t.logger = logger }
}

func NewTable(opts ...Option) *Table {
	t := &Table{logger: log.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(log.String("component", "ground"))
	return t
}

func (t *Table) Add(id entity.ID) bool {
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
	t.records[index] = &record{id: id}
	return true
}

// SetGround makes id rest on ground, replacing any previous support. Passing
// entity.Invalid clears the link.
func (t *Table) SetGround(id, ground entity.ID) bool {
	r := t.record(id)
	if r == nil {
		return false
	}
	if r.ground == ground {
		return true
	}

	var g *record
	if ground.IsValid() {
		if ground == id {
			t.logger.Debug("entity cannot stand on itself", log.Stringer("entity", id))
			return false
		}
		if g = t.record(ground); g == nil {
			t.logger.Debug("ground entity is not alive", log.Stringer("entity", id), log.Stringer("ground", ground))
			return false
		}
	}

	former := r.ground
	t.unlink(r)
	if g != nil {
		r.ground = ground
		g.supported = append(g.supported, id)
		t.stats.Links++
	}

	if former.IsValid() {
		t.notifyRemoved(id, former)
	}
	if g != nil {
		t.stats.Acquired++
		if t.listener != nil {
			t.listener.GroundAcquired(id, ground)
		}
	}
	return true
}

func (t *Table) ClearGround(id entity.ID) bool {
	return t.SetGround(id, entity.Invalid)
}

func (t *Table) Ground(id entity.ID) entity.ID {
	if r := t.record(id); r != nil {
		return r.ground
	}
	return entity.Invalid
}

func (t *Table) OnGround(id entity.ID) bool {
	return t.Ground(id).IsValid()
}

// Supported returns a copy of the entities resting directly on id.
func (t *Table) Supported(id entity.ID) []entity.ID {
	r := t.record(id)
	if r == nil || len(r.supported) == 0 {
		return nil
	}
	return append([]entity.ID(nil), r.supported...)
}

// WakeResting wakes everything resting on id, directly or through a chain of
// supports. It returns the number of entities woken.
func (t *Table) WakeResting(id entity.ID) int {
	r := t.record(id)
	if r == nil {
		return 0
	}
	visited := map[entity.ID]bool{id: true}
	n := 0
	for _, dep := range append([]entity.ID(nil), r.supported...) {
		n += t.wake(dep, visited)
	}
	return n
}

// Remove drops id from the table. Every entity that stood on id loses its
// ground and is woken along with whatever rests on it.
func (t *Table) Remove(id entity.ID) bool {
	r := t.record(id)
	if r == nil {
		return false
	}

	t.unlink(r)
	dependents := r.supported
	r.supported = nil
	t.records[id.Index()] = nil

	for _, dep := range dependents {
		d := t.record(dep)
		if d == nil || d.ground != id {
			continue
		}
		d.ground = entity.Invalid
		t.stats.Links--
		t.notifyRemoved(dep, id)
	}

	visited := map[entity.ID]bool{id: true}
	for _, dep := range dependents {
		t.wake(dep, visited)
	}
	return true
}

func (t *Table) Stats() Stats {
	return t.stats
}

func (t *Table) wake(id entity.ID, visited map[entity.ID]bool) int {
	if visited[id] {
		return 0
	}
	visited[id] = true
	r := t.record(id)
	if r == nil {
		return 0
	}

	t.stats.Woken++
	if t.listener != nil {
		t.listener.Woken(id)
	}
	n := 1
	for _, dep := range append([]entity.ID(nil), r.supported...) {
		n += t.wake(dep, visited)
	}
	return n
}

func (t *Table) unlink(r *record) {
	if !r.ground.IsValid() {
		return
	}
	if g := t.record(r.ground); g != nil {
		for i, s := range g.supported {
			if s == r.id {
				g.supported = append(g.supported[:i], g.supported[i+1:]...)
				break
			}
		}
	}
	r.ground = entity.Invalid
	t.stats.Links--
}

func (t *Table) notifyRemoved(id, former entity.ID) {
	t.stats.Removed++
	if t.listener != nil {
		t.listener.GroundRemoved(id, former)
	}
}

func (t *Table) record(id entity.ID) *record {
	index := int(id.Index())
	if !id.IsValid() || index >= len(t.records) {
		return nil
	}
	r := t.records[index]
	if r == nil || r.id != id {
		return nil
	}
	if t.live != nil && !t.live.IsAlive(id) {
		return nil
	}
	return r
}
