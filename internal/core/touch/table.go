package touch

import (
	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/observability/log"
)

// Profile is the collision character of an entity as far as touch filtering
// is concerned.
type Profile struct {
	Solid          bool
	Trigger        bool
	VolumeContents bool
	DontTouch      bool
}

// shouldTouch reports whether a new contact makes this entity receive StartTouch.
func (p Profile) shouldTouch() bool {
	return (p.Solid && !p.VolumeContents) || p.Trigger
}

type Handler interface {
	StartTouch(self, other entity.ID)
	EndTouch(self, other entity.ID)
}

// HandlerFuncs adapts plain functions to Handler. Nil members are skipped.
type HandlerFuncs struct {
	OnStart func(self, other entity.ID)
	OnEnd   func(self, other entity.ID)
}

func (h HandlerFuncs) StartTouch(self, other entity.ID) {
	if h.OnStart != nil {
		h.OnStart(self, other)
	}
}

func (h HandlerFuncs) EndTouch(self, other entity.ID) {
	if h.OnEnd != nil {
		h.OnEnd(self, other)
	}
}

// Relations exposes the direct parent of an entity; parent/child pairs never touch.
type Relations interface {
	Parent(id entity.ID) entity.ID
}

type EventKind uint8

const (
	StartTouch EventKind = iota + 1
	EndTouch
)

func (k EventKind) String() string {
	if k == StartTouch {
		return "start_touch"
	}
	return "end_touch"
}

type Event struct {
	Kind  EventKind
	Self  entity.ID
	Other entity.ID
}

type Stats struct {
	Links      int
	Starts     uint64
	Ends       uint64
	Passes     uint64
	Dropped    uint64
	Dispatched uint64
}

// eventDriven marks links owned by explicit begin/end calls; the stamp pass
// never closes them.
const eventDriven = -1

type link struct {
	other   entity.ID
	stamp   int64
	started bool
}

type record struct {
	id       entity.ID
	profile  Profile
	handler  Handler
	stamp    int64
	links    []link
	enrolled bool
}

// Table tracks touch links of one world. Not safe for concurrent use.
type Table struct {
	records []*record
	checks  []entity.ID

	life      entity.Lifecycle
	relations Relations
	logger    log.Log

	buffer   bool
	pending  []Event
	holds    int
	flushing bool

	stats Stats
}

type Option func(*Table)

func WithLifecycle(life entity.Lifecycle) Option {
	return func(t *Table) { t.life = life }
}

func WithRelations(relations Relations) Option {
	return func(t *Table) { t.relations = relations }
}

func WithLogger(logger log.Log) Option {
	return func(t *Table) { t.logger = logger }
}

// WithBuffering defers every dispatch to Flush.
func WithBuffering(enabled bool) Option {
	return func(t *Table) { t.buffer = enabled }
}

func NewTable(opts ...Option) *Table {
	t := &Table{logger: log.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(log.String("component", "touch"))
	return t
}

func (t *Table) Add(id entity.ID, profile Profile, handler Handler) bool {
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
	t.records[index] = &record{id: id, profile: profile, handler: handler}
	return true
}

func (t *Table) SetProfile(id entity.ID, profile Profile) bool {
	r := t.record(id)
	if r == nil {
		return false
	}
	r.profile = profile
	return true
}

func (t *Table) Profile(id entity.ID) (Profile, bool) {
	r := t.record(id)
	if r == nil {
		return Profile{}, false
	}
	return r.profile, true
}

func (t *Table) SetHandler(id entity.ID, handler Handler) bool {
	r := t.record(id)
	if r == nil {
		return false
	}
	r.handler = handler
	return true
}

func (t *Table) Buffering() bool {
	return t.buffer
}

// SetBuffering toggles deferred dispatch. Turning it off flushes the queue.
func (t *Table) SetBuffering(enabled bool) {
	t.buffer = enabled
	if !enabled {
		t.Flush()
	}
}

func (t *Table) Stats() Stats {
	return t.stats
}

// BeginPass starts a detection pass for id: links not confirmed before the
// next CheckUntouch are closed.
func (t *Table) BeginPass(id entity.ID) bool {
	r := t.record(id)
	if r == nil {
		return false
	}
	r.stamp++
	if !r.enrolled {
		r.enrolled = true
		t.checks = append(t.checks, id)
	}
	t.stats.Passes++
	return true
}

// MarkTouching records an overlap between a and b in both directions.
func (t *Table) MarkTouching(a, b entity.ID) {
	t.hold()
	t.mark(a, b, false)
	t.mark(b, a, false)
	t.release()
}

// Resolve runs a full pass for id against the overlaps found this tick and
// closes stale links immediately.
func (t *Table) Resolve(id entity.ID, overlaps []entity.ID) {
	if !t.BeginPass(id) {
		return
	}
	t.hold()
	for _, other := range overlaps {
		t.mark(id, other, false)
		t.mark(other, id, false)
	}
	if r := t.record(id); r != nil {
		r.enrolled = false
		t.untouch(r)
	}
	t.release()
}

// CheckUntouch closes every stale link on the entities that ran a pass.
func (t *Table) CheckUntouch() {
	checks := t.checks
	t.checks = nil

	t.hold()
	for _, id := range checks {
		r := t.record(id)
		if r == nil || !r.enrolled {
			continue
		}
		r.enrolled = false
		t.untouch(r)
	}
	t.release()
}

// BeginEventTouch links a and b outside of any detection pass. Such links
// stay until EndEventTouch or removal.
func (t *Table) BeginEventTouch(a, b entity.ID) {
	t.hold()
	t.mark(a, b, true)
	t.mark(b, a, true)
	t.release()
}

func (t *Table) EndEventTouch(a, b entity.ID) {
	t.hold()
	if r := t.record(a); r != nil {
		t.closeLink(r, b, true)
	}
	t.release()
}

func (t *Table) IsTouching(a, b entity.ID) bool {
	r := t.record(a)
	return r != nil && r.find(b) >= 0
}

// Touching returns a copy of the partners of id in link order.
func (t *Table) Touching(id entity.ID) []entity.ID {
	r := t.record(id)
	if r == nil || len(r.links) == 0 {
		return nil
	}
	out := make([]entity.ID, len(r.links))
	for i, l := range r.links {
		out[i] = l.other
	}
	return out
}

// Remove closes every link of id. Partners receive EndTouch, id does not.
func (t *Table) Remove(id entity.ID) bool {
	r := t.record(id)
	if r == nil {
		return false
	}

	t.hold()
	links := append([]link(nil), r.links...)
	for _, l := range links {
		if o := t.record(l.other); o != nil {
			t.dropLink(o, id, true)
		}
	}
	t.stats.Links -= len(r.links)
	r.links = nil
	t.records[id.Index()] = nil
	t.release()
	return true
}

func (t *Table) mark(self, other entity.ID, event bool) {
	if self == other {
		return
	}
	rs, ro := t.record(self), t.record(other)
	if rs == nil || ro == nil {
		return
	}
	if t.relations != nil && (t.relations.Parent(self) == other || t.relations.Parent(other) == self) {
		return
	}
	if rs.profile.DontTouch || ro.profile.DontTouch {
		return
	}
	if rs.profile.Trigger && ro.profile.Trigger && !rs.profile.Solid && !ro.profile.Solid {
		return
	}
	if t.life != nil && (t.life.IsMarkedForDeletion(self) || t.life.IsMarkedForDeletion(other)) {
		return
	}

	stamp := rs.stamp
	if event {
		stamp = eventDriven
	}

	if i := rs.find(other); i >= 0 {
		if rs.links[i].stamp != eventDriven || event {
			rs.links[i].stamp = stamp
		}
		return
	}

	l := link{other: other, stamp: stamp}
	if rs.profile.shouldTouch() && !ro.profile.Trigger {
		l.started = true
		t.emit(Event{Kind: StartTouch, Self: self, Other: other})
	}
	rs.links = append(rs.links, l)
	t.stats.Links++
}

func (t *Table) untouch(r *record) {
	links := append([]link(nil), r.links...)
	for _, l := range links {
		if l.stamp == eventDriven || l.stamp == r.stamp {
			continue
		}
		t.closeLink(r, l.other, true)
	}
}

// closeLink removes the link self->other and, when mirror is set, the reverse
// link as well.
func (t *Table) closeLink(r *record, other entity.ID, mirror bool) {
	t.dropLink(r, other, true)
	if !mirror {
		return
	}
	if o := t.record(other); o != nil {
		t.dropLink(o, r.id, true)
	}
}

func (t *Table) dropLink(r *record, other entity.ID, notify bool) {
	i := r.find(other)
	if i < 0 {
		return
	}
	l := r.links[i]
	r.links = append(r.links[:i], r.links[i+1:]...)
	t.stats.Links--
	if notify && l.started {
		t.emit(Event{Kind: EndTouch, Self: r.id, Other: other})
	}
}

func (t *Table) record(id entity.ID) *record {
	index := int(id.Index())
	if !id.IsValid() || index >= len(t.records) {
		return nil
	}
	if r := t.records[index]; r != nil && r.id == id {
		return r
	}
	return nil
}

func (r *record) find(other entity.ID) int {
	for i, l := range r.links {
		if l.other == other {
			return i
		}
	}
	return -1
}
