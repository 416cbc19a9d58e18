package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreateAndReuse(t *testing.T) {
	r := NewRegistry(0)

	a, err := r.Create()
	require.NoError(t, err)
	b, err := r.Create()
	require.NoError(t, err)

	assert.True(t, a.IsValid())
	assert.NotEqual(t, a, b)
	assert.True(t, r.IsAlive(a))
	assert.Equal(t, 2, r.Count())

	require.True(t, r.MarkForDeletion(a))
	assert.True(t, r.IsAlive(a), "deletion is deferred until reap")
	assert.True(t, r.IsMarkedForDeletion(a))
	assert.False(t, r.MarkForDeletion(a), "second mark is a no-op")

	var reaped []ID
	assert.Equal(t, 1, r.Reap(func(id ID) { reaped = append(reaped, id) }))
	assert.Equal(t, []ID{a}, reaped)
	assert.False(t, r.IsAlive(a))

	c, err := r.Create()
	require.NoError(t, err)
	assert.Equal(t, a.Index(), c.Index(), "freed slot is reused")
	assert.NotEqual(t, a.Serial(), c.Serial())
	assert.False(t, r.IsAlive(a), "stale handle stays dead after reuse")
	assert.True(t, r.IsAlive(c))
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry(1)
	_, err := r.Create()
	require.NoError(t, err)

	_, err = r.Create()
	assert.ErrorIs(t, err, ErrRegistryFull)
}

func TestRegistryReapCascades(t *testing.T) {
	r := NewRegistry(0)
	parent, _ := r.Create()
	child, _ := r.Create()

	r.MarkForDeletion(parent)
	n := r.Reap(func(id ID) {
		if id == parent {
			r.MarkForDeletion(child)
		}
	})

	assert.Equal(t, 2, n)
	assert.False(t, r.IsAlive(parent))
	assert.False(t, r.IsAlive(child))
	assert.Zero(t, r.PendingCount())
}

func TestRegistryEachIsOrdered(t *testing.T) {
	r := NewRegistry(0)
	var ids []ID
	for i := 0; i < 5; i++ {
		id, _ := r.Create()
		ids = append(ids, id)
	}
	r.MarkForDeletion(ids[2])
	r.Reap(nil)

	var seen []ID
	r.Each(func(id ID) bool {
		seen = append(seen, id)
		return true
	})
	assert.Equal(t, []ID{ids[0], ids[1], ids[3], ids[4]}, seen)

	got, ok := r.Lookup(ids[3].Index())
	assert.True(t, ok)
	assert.Equal(t, ids[3], got)

	_, ok = r.Lookup(ids[2].Index())
	assert.False(t, ok)
}

func TestInvalidID(t *testing.T) {
	r := NewRegistry(0)
	assert.False(t, r.IsAlive(Invalid))
	assert.False(t, r.MarkForDeletion(Invalid))
	assert.Equal(t, "none", Invalid.String())
	assert.Equal(t, "3#7", NewID(3, 7).String())
}
