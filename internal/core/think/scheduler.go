package think

import (
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/observability/log"
)

// Call describes one dispatch to a Thinker.
type Call struct {
	Context string
	Tick    int64
	Time    float64
}

// Thinker is a per-context callback. It must re-arm its own context with
// SetNextThink if it wants to run again.
type Thinker interface {
	Think(id entity.ID, call Call)
}

type ThinkerFunc func(id entity.ID, call Call)

func (f ThinkerFunc) Think(id entity.ID, call Call) {
	f(id, call)
}

// StarvationHandler is told when a context ran and was left unscheduled.
type StarvationHandler func(id entity.ID, context string, tick int64)

type Stats struct {
	Entities      int
	Listed        int
	Dispatched    uint64
	Starvations   uint64
	ListedChanges uint64
}

// Starvation describes a context that fired and was never re-armed.
type Starvation struct {
	ID        entity.ID
	Context   string
	LastThink float64
}

type thinkContext struct {
	key     uint64
	name    string
	thinker Thinker
	next    int64
	last    int64
	fired   bool
}

func (c *thinkContext) armed() bool {
	return c.next != NeverThink
}

type schedule struct {
	id         entity.ID
	def        thinkContext
	named      []*thinkContext
	simulating bool
	listed     bool
}

func (s *schedule) armed() bool {
	if s.def.armed() {
		return true
	}
	for _, c := range s.named {
		if c.armed() {
			return true
		}
	}
	return false
}

func (s *schedule) context(name string) *thinkContext {
	if name == "" {
		return &s.def
	}
	key := xxhash.Sum64String(name)
	for _, c := range s.named {
		if c.key == key && c.name == name {
			return c
		}
	}
	return nil
}

// Scheduler runs per-entity think contexts for one world. Only entities on the
// SimThink list are visited by Run.
type Scheduler struct {
	clock    *Clock
	life     entity.Lifecycle
	logger   log.Log
	onStarve StarvationHandler

	entries []*schedule
	list    map[entity.ID]struct{}

	stats Stats
}

type Option func(*Scheduler)

func WithLifecycle(life entity.Lifecycle) Option {
	return func(s *Scheduler) { s.life = life }
}

func WithLogger(logger log.Log) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func WithStarvationHandler(fn StarvationHandler) Option {
	return func(s *Scheduler) { s.onStarve = fn }
}

func NewScheduler(clock *Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clock,
		logger: log.NewNop(),
		list:   make(map[entity.ID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(log.String("component", "think"))
	return s
}

func (s *Scheduler) Add(id entity.ID) bool {
	if !id.IsValid() {
		return false
	}
	index := int(id.Index())
	for len(s.entries) <= index {
		s.entries = append(s.entries, nil)
	}
	if e := s.entries[index]; e != nil && e.id == id {
		return false
	}
	s.entries[index] = &schedule{
		id:  id,
		def: thinkContext{next: NeverThink, last: NeverThink},
	}
	s.stats.Entities++
	return true
}

func (s *Scheduler) Remove(id entity.ID) bool {
	e := s.entry(id)
	if e == nil {
		return false
	}
	s.setListed(e, false)
	s.entries[id.Index()] = nil
	s.stats.Entities--
	return true
}

// SetThink binds the default context callback. It does not schedule it.
func (s *Scheduler) SetThink(id entity.ID, thinker Thinker) bool {
	e := s.entry(id)
	if e == nil {
		return false
	}
	e.def.thinker = thinker
	return true
}

// SetContextThink binds thinker to the named context and schedules it at time.
// The context is registered on first use.
func (s *Scheduler) SetContextThink(id entity.ID, name string, thinker Thinker, time float64) bool {
	e := s.entry(id)
	if e == nil {
		return false
	}
	c := s.register(e, name)
	c.thinker = thinker
	c.next = s.clock.TimeToTicks(time)
	s.refresh(e)
	return true
}

// SetNextThink schedules the named context; a negative time unschedules it.
// An unknown name registers a context without a callback.
func (s *Scheduler) SetNextThink(id entity.ID, time float64, name string) bool {
	e := s.entry(id)
	if e == nil {
		return false
	}
	c := s.register(e, name)
	c.next = s.clock.TimeToTicks(time)
	s.refresh(e)
	return true
}

// NextThink returns the scheduled time of a context, or -1 when unscheduled.
func (s *Scheduler) NextThink(id entity.ID, name string) float64 {
	return s.clock.TickToTime(s.NextThinkTick(id, name))
}

func (s *Scheduler) NextThinkTick(id entity.ID, name string) int64 {
	e := s.entry(id)
	if e == nil {
		return NeverThink
	}
	if c := e.context(name); c != nil {
		return c.next
	}
	return NeverThink
}

// LastThink returns the time a context last ran, or -1 if it never ran.
func (s *Scheduler) LastThink(id entity.ID, name string) float64 {
	e := s.entry(id)
	if e == nil {
		return -1
	}
	if c := e.context(name); c != nil {
		return s.clock.TickToTime(c.last)
	}
	return -1
}

// UnregisterContext drops a named context. The default context cannot be removed.
func (s *Scheduler) UnregisterContext(id entity.ID, name string) bool {
	e := s.entry(id)
	if e == nil || name == "" {
		return false
	}
	key := xxhash.Sum64String(name)
	for i, c := range e.named {
		if c.key == key && c.name == name {
			e.named = append(e.named[:i], e.named[i+1:]...)
			s.refresh(e)
			return true
		}
	}
	return false
}

// Contexts lists the registered context names of id, default first.
func (s *Scheduler) Contexts(id entity.ID) []string {
	e := s.entry(id)
	if e == nil {
		return nil
	}
	names := []string{""}
	for _, c := range e.named {
		names = append(names, c.name)
	}
	return names
}

// SetSimulating keeps id on the SimThink list even without armed contexts.
func (s *Scheduler) SetSimulating(id entity.ID, simulating bool) bool {
	e := s.entry(id)
	if e == nil {
		return false
	}
	e.simulating = simulating
	s.refresh(e)
	return true
}

// Wake arms the default context for the current tick when it has a callback
// and is not already scheduled. It reports whether a think was scheduled.
func (s *Scheduler) Wake(id entity.ID) bool {
	e := s.entry(id)
	if e == nil || e.def.thinker == nil || e.def.armed() {
		return false
	}
	e.def.next = s.clock.Tick
	s.refresh(e)
	return true
}

func (s *Scheduler) Listed(id entity.ID) bool {
	e := s.entry(id)
	return e != nil && e.listed
}

func (s *Scheduler) Stats() Stats {
	st := s.stats
	st.Listed = len(s.list)
	return st
}

// Run dispatches every due context of every listed entity. Entities run in
// slot order, contexts in registration order with the default one first.
func (s *Scheduler) Run(tick int64) int {
	ids := make([]entity.ID, 0, len(s.list))
	for id := range s.list {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Index() < ids[j].Index() })

	n := 0
	for _, id := range ids {
		e := s.entry(id)
		if e == nil || !s.runnable(id) {
			continue
		}
		ran, alive := s.runContext(e, &e.def, tick)
		n += ran
		if !alive {
			continue
		}
		named := append([]*thinkContext(nil), e.named...)
		for _, c := range named {
			if e.context(c.name) != c {
				continue
			}
			ran, alive = s.runContext(e, c, tick)
			n += ran
			if !alive {
				break
			}
		}
	}
	return n
}

// Starved lists contexts that ran and were not scheduled again.
func (s *Scheduler) Starved() []Starvation {
	var out []Starvation
	for _, e := range s.entries {
		if e == nil {
			continue
		}
		if e.def.fired && !e.def.armed() && e.def.thinker != nil {
			out = append(out, Starvation{ID: e.id, LastThink: s.clock.TickToTime(e.def.last)})
		}
		for _, c := range e.named {
			if c.fired && !c.armed() && c.thinker != nil {
				out = append(out, Starvation{ID: e.id, Context: c.name, LastThink: s.clock.TickToTime(c.last)})
			}
		}
	}
	return out
}

func (s *Scheduler) runContext(e *schedule, c *thinkContext, tick int64) (int, bool) {
	if !c.armed() || c.next > tick {
		return 0, true
	}

	c.next = NeverThink
	c.last = tick
	c.fired = true

	ran := 0
	if c.thinker != nil {
		c.thinker.Think(e.id, Call{Context: c.name, Tick: tick, Time: s.clock.TickToTime(tick)})
		s.stats.Dispatched++
		ran = 1
	}

	// the callback may have removed the entity or even the context itself
	if s.entry(e.id) != e || !s.runnable(e.id) {
		return ran, false
	}
	if !c.armed() && c.thinker != nil {
		s.stats.Starvations++
		s.logger.Debug("think context was not rescheduled",
			log.Stringer("entity", e.id), log.String("context", c.name), log.Int64("tick", tick))
		if s.onStarve != nil {
			s.onStarve(e.id, c.name, tick)
		}
	}
	s.refresh(e)
	return ran, true
}

func (s *Scheduler) runnable(id entity.ID) bool {
	if s.life == nil {
		return true
	}
	return s.life.IsAlive(id) && !s.life.IsMarkedForDeletion(id)
}

func (s *Scheduler) register(e *schedule, name string) *thinkContext {
	if c := e.context(name); c != nil {
		return c
	}
	c := &thinkContext{
		key:  xxhash.Sum64String(name),
		name: name,
		next: NeverThink,
		last: NeverThink,
	}
	e.named = append(e.named, c)
	return c
}

func (s *Scheduler) refresh(e *schedule) {
	s.setListed(e, e.simulating || e.armed())
}

func (s *Scheduler) setListed(e *schedule, listed bool) {
	if e.listed == listed {
		return
	}
	e.listed = listed
	s.stats.ListedChanges++
	if listed {
		s.list[e.id] = struct{}{}
	} else {
		delete(s.list, e.id)
	}
}

func (s *Scheduler) entry(id entity.ID) *schedule {
	index := int(id.Index())
	if !id.IsValid() || index >= len(s.entries) {
		return nil
	}
	if e := s.entries[index]; e != nil && e.id == id {
		return e
	}
	return nil
}
