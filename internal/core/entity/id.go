package entity

import "fmt"

// ID is a generational handle into the entity arena: the low 32 bits are the
// slot index, the high 32 bits the slot's serial at allocation time. The zero ID
// is never handed out and means "no entity".
type ID uint64

const Invalid ID = 0

func NewID(index, serial uint32) ID {
	return ID(uint64(serial)<<32 | uint64(index))
}

func (id ID) Index() uint32 {
	return uint32(id)
}

func (id ID) Serial() uint32 {
	return uint32(id >> 32)
}

func (id ID) IsValid() bool {
	return id != Invalid
}

func (id ID) String() string {
	if id == Invalid {
		return "none"
	}
	return fmt.Sprintf("%d#%d", id.Index(), id.Serial())
}

// Liveness is the single source of truth other subsystems consult before they
// dereference an ID.
type Liveness interface {
	IsAlive(id ID) bool
}

// Lifecycle adds the pending-deletion state to Liveness.
type Lifecycle interface {
	Liveness
	IsMarkedForDeletion(id ID) bool
}
