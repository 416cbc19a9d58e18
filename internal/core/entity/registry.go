package entity

// Registry is the dense entity arena. It is owned by one simulation world and
// is not safe for concurrent use.
type Registry struct {
	slots    []slot
	free     []uint32
	pending  []ID
	alive    int
	capacity int
}

type slot struct {
	serial uint32
	alive  bool
	doomed bool
}

// NewRegistry creates an arena that holds at most capacity live entities.
// A capacity <= 0 means unbounded.
func NewRegistry(capacity int) *Registry {
	return &Registry{capacity: capacity}
}

// Create allocates a fresh ID, reusing the oldest free slot first so serials
// advance slowly.
func (r *Registry) Create() (ID, error) {
	if r.capacity > 0 && r.alive >= r.capacity {
		return Invalid, ErrRegistryFull
	}

	var index uint32
	if len(r.free) > 0 {
		index = r.free[0]
		r.free = r.free[1:]
	} else {
		// slot 0 stays unused so that no live ID can ever equal Invalid
		if len(r.slots) == 0 {
			r.slots = append(r.slots, slot{})
		}
		index = uint32(len(r.slots))
		r.slots = append(r.slots, slot{serial: 1})
	}

	s := &r.slots[index]
	s.alive = true
	s.doomed = false
	r.alive++
	return NewID(index, s.serial), nil
}

func (r *Registry) IsAlive(id ID) bool {
	s := r.slot(id)
	return s != nil && s.alive
}

func (r *Registry) IsMarkedForDeletion(id ID) bool {
	s := r.slot(id)
	return s != nil && s.alive && s.doomed
}

// MarkForDeletion queues id to be reaped. It reports whether the entity was
// queued by this call.
func (r *Registry) MarkForDeletion(id ID) bool {
	s := r.slot(id)
	if s == nil || !s.alive || s.doomed {
		return false
	}
	s.doomed = true
	r.pending = append(r.pending, id)
	return true
}

func (r *Registry) PendingCount() int {
	return len(r.pending)
}

// Reap runs unlink for every entity queued for deletion, in queue order, then
// frees its slot. Entities queued by unlink itself are reaped in the same call.
func (r *Registry) Reap(unlink func(ID)) int {
	n := 0
	for len(r.pending) > 0 {
		batch := r.pending
		r.pending = nil
		for _, id := range batch {
			if !r.IsAlive(id) {
				continue
			}
			if unlink != nil {
				unlink(id)
			}
			r.release(id)
			n++
		}
	}
	return n
}

func (r *Registry) release(id ID) {
	s := &r.slots[id.Index()]
	s.alive = false
	s.doomed = false
	s.serial++
	if s.serial == 0 {
		s.serial = 1
	}
	r.alive--
	r.free = append(r.free, id.Index())
}

// Count returns the number of live entities, including those pending deletion.
func (r *Registry) Count() int {
	return r.alive
}

// Lookup resolves a slot index to the ID currently living there.
func (r *Registry) Lookup(index uint32) (ID, bool) {
	if int(index) >= len(r.slots) || index == 0 {
		return Invalid, false
	}
	s := r.slots[index]
	if !s.alive {
		return Invalid, false
	}
	return NewID(index, s.serial), true
}

// Each visits live entities in ascending slot order until fn returns false.
func (r *Registry) Each(fn func(ID) bool) {
	for i := 1; i < len(r.slots); i++ {
		s := r.slots[i]
		if !s.alive {
			continue
		}
		if !fn(NewID(uint32(i), s.serial)) {
			return
		}
	}
}

func (r *Registry) slot(id ID) *slot {
	index := id.Index()
	if id == Invalid || index == 0 || int(index) >= len(r.slots) {
		return nil
	}
	s := &r.slots[index]
	if s.serial != id.Serial() {
		return nil
	}
	return s
}
