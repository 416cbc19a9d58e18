package touch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/substrate/internal/core/entity"
)

type recorder struct {
	events []Event
}

func (r *recorder) handler() HandlerFuncs {
	return HandlerFuncs{
		OnStart: func(self, other entity.ID) {
			r.events = append(r.events, Event{Kind: StartTouch, Self: self, Other: other})
		},
		OnEnd: func(self, other entity.ID) {
			r.events = append(r.events, Event{Kind: EndTouch, Self: self, Other: other})
		},
	}
}

func (r *recorder) take() []Event {
	out := r.events
	r.events = nil
	return out
}

var solid = Profile{Solid: true}

func TestTouchLifecycle(t *testing.T) {
	rec := &recorder{}
	tbl := NewTable()
	a, b := entity.NewID(1, 1), entity.NewID(2, 1)
	require.True(t, tbl.Add(a, solid, rec.handler()))
	require.True(t, tbl.Add(b, solid, rec.handler()))

	ticks := []bool{true, true, false, false}
	var perTick [][]Event
	for _, overlapping := range ticks {
		var overlaps []entity.ID
		if overlapping {
			overlaps = []entity.ID{b}
		}
		tbl.Resolve(a, overlaps)
		perTick = append(perTick, rec.take())
	}

	assert.Equal(t, []Event{
		{Kind: StartTouch, Self: a, Other: b},
		{Kind: StartTouch, Self: b, Other: a},
	}, perTick[0])
	assert.Empty(t, perTick[1])
	assert.Equal(t, []Event{
		{Kind: EndTouch, Self: a, Other: b},
		{Kind: EndTouch, Self: b, Other: a},
	}, perTick[2])
	assert.Empty(t, perTick[3])
	assert.Zero(t, tbl.Stats().Links)
}

func TestCheckUntouchAfterSeparatePasses(t *testing.T) {
	rec := &recorder{}
	tbl := NewTable()
	a, b := entity.NewID(1, 1), entity.NewID(2, 1)
	tbl.Add(a, solid, rec.handler())
	tbl.Add(b, solid, rec.handler())

	tbl.BeginPass(a)
	tbl.BeginPass(b)
	tbl.MarkTouching(a, b)
	tbl.CheckUntouch()
	assert.Len(t, rec.take(), 2)
	assert.True(t, tbl.IsTouching(a, b))
	assert.True(t, tbl.IsTouching(b, a))

	tbl.BeginPass(a)
	tbl.BeginPass(b)
	tbl.MarkTouching(b, a)
	tbl.CheckUntouch()
	assert.Empty(t, rec.take(), "contact confirmed from either side")

	tbl.BeginPass(b)
	tbl.CheckUntouch()
	assert.Equal(t, []Event{
		{Kind: EndTouch, Self: b, Other: a},
		{Kind: EndTouch, Self: a, Other: b},
	}, rec.take())
}

func TestTouchFilters(t *testing.T) {
	parents := parentMap{}
	tbl := NewTable(WithRelations(parents))
	rec := &recorder{}

	ids := make([]entity.ID, 6)
	for i := range ids {
		ids[i] = entity.NewID(uint32(i+1), 1)
	}
	body, child, trigger, trigger2, ghost, water := ids[0], ids[1], ids[2], ids[3], ids[4], ids[5]
	parents[child] = body

	tbl.Add(body, solid, rec.handler())
	tbl.Add(child, solid, rec.handler())
	tbl.Add(trigger, Profile{Trigger: true}, rec.handler())
	tbl.Add(trigger2, Profile{Trigger: true}, rec.handler())
	tbl.Add(ghost, Profile{Solid: true, DontTouch: true}, rec.handler())
	tbl.Add(water, Profile{Solid: true, VolumeContents: true}, rec.handler())

	tbl.MarkTouching(body, body)
	tbl.MarkTouching(body, child)
	tbl.MarkTouching(trigger, trigger2)
	tbl.MarkTouching(body, ghost)
	assert.Empty(t, rec.take())
	assert.Empty(t, tbl.Touching(body))

	// only the trigger hears about a solid entering it
	tbl.MarkTouching(body, trigger)
	assert.Equal(t, []Event{{Kind: StartTouch, Self: trigger, Other: body}}, rec.take())
	assert.True(t, tbl.IsTouching(body, trigger), "link exists even without a callback")

	// volume contents are linked silently, the solid side still hears about it
	tbl.MarkTouching(water, body)
	assert.Equal(t, []Event{{Kind: StartTouch, Self: body, Other: water}}, rec.take())

	tbl.BeginPass(body)
	tbl.CheckUntouch()
	events := rec.take()
	assert.ElementsMatch(t, []Event{
		{Kind: EndTouch, Self: trigger, Other: body},
		{Kind: EndTouch, Self: body, Other: water},
	}, events, "EndTouch mirrors only the StartTouch calls that fired")
}

type parentMap map[entity.ID]entity.ID

func (p parentMap) Parent(id entity.ID) entity.ID { return p[id] }

type lifecycle struct {
	dead   map[entity.ID]bool
	doomed map[entity.ID]bool
}

func (l lifecycle) IsAlive(id entity.ID) bool             { return !l.dead[id] }
func (l lifecycle) IsMarkedForDeletion(id entity.ID) bool { return l.doomed[id] }

func TestPendingDeletionDoesNotTouch(t *testing.T) {
	life := lifecycle{dead: map[entity.ID]bool{}, doomed: map[entity.ID]bool{}}
	tbl := NewTable(WithLifecycle(life))
	rec := &recorder{}
	a, b := entity.NewID(1, 1), entity.NewID(2, 1)
	tbl.Add(a, solid, rec.handler())
	tbl.Add(b, solid, rec.handler())

	life.doomed[b] = true
	tbl.MarkTouching(a, b)
	assert.Empty(t, rec.take())
	assert.False(t, tbl.IsTouching(a, b))
}

func TestBufferedDispatch(t *testing.T) {
	tbl := NewTable(WithBuffering(true))
	rec := &recorder{}
	a, b, c := entity.NewID(1, 1), entity.NewID(2, 1), entity.NewID(3, 1)
	tbl.Add(b, solid, rec.handler())
	tbl.Add(c, solid, rec.handler())

	var order []string
	// a handler that raises new touches while the queue is being flushed
	tbl.Add(a, solid, HandlerFuncs{
		OnStart: func(self, other entity.ID) {
			order = append(order, "a:"+other.String())
			if other == b {
				tbl.MarkTouching(a, c)
				assert.Equal(t, 2, tbl.Pending(), "nested events are queued, not dispatched")
			}
		},
	})

	tbl.MarkTouching(a, b)
	assert.Empty(t, order, "nothing dispatched before flush")
	assert.Equal(t, 2, tbl.Pending())

	n := tbl.Flush()
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"a:2#1", "a:3#1"}, order)
	assert.Equal(t, []Event{
		{Kind: StartTouch, Self: b, Other: a},
		{Kind: StartTouch, Self: c, Other: a},
	}, rec.take())
	assert.Zero(t, tbl.Pending())
}

func TestDispatchChecksLivenessOfReceiver(t *testing.T) {
	life := lifecycle{dead: map[entity.ID]bool{}, doomed: map[entity.ID]bool{}}
	tbl := NewTable(WithBuffering(true), WithLifecycle(life))
	rec := &recorder{}
	a, b := entity.NewID(1, 1), entity.NewID(2, 1)
	tbl.Add(a, solid, rec.handler())
	tbl.Add(b, solid, rec.handler())

	tbl.MarkTouching(a, b)
	life.dead[a] = true
	assert.Equal(t, 1, tbl.Flush())
	assert.Equal(t, []Event{{Kind: StartTouch, Self: b, Other: a}}, rec.take())
	assert.Equal(t, uint64(1), tbl.Stats().Dropped)
}

func TestRemoveNotifiesPartnersOnly(t *testing.T) {
	rec := &recorder{}
	tbl := NewTable()
	a, b, c := entity.NewID(1, 1), entity.NewID(2, 1), entity.NewID(3, 1)
	tbl.Add(a, solid, rec.handler())
	tbl.Add(b, solid, rec.handler())
	tbl.Add(c, solid, rec.handler())
	tbl.MarkTouching(a, b)
	tbl.MarkTouching(a, c)
	rec.take()

	require.True(t, tbl.Remove(a))
	assert.Equal(t, []Event{
		{Kind: EndTouch, Self: b, Other: a},
		{Kind: EndTouch, Self: c, Other: a},
	}, rec.take())
	assert.Empty(t, tbl.Touching(b))
	assert.Zero(t, tbl.Stats().Links)
	assert.False(t, tbl.Remove(a))
}

func TestEventDrivenLinksSurviveStampPass(t *testing.T) {
	rec := &recorder{}
	tbl := NewTable()
	a, b := entity.NewID(1, 1), entity.NewID(2, 1)
	tbl.Add(a, solid, rec.handler())
	tbl.Add(b, solid, rec.handler())

	tbl.BeginEventTouch(a, b)
	assert.Len(t, rec.take(), 2)

	tbl.Resolve(a, nil)
	tbl.Resolve(b, nil)
	assert.Empty(t, rec.take())
	assert.True(t, tbl.IsTouching(a, b))

	// a regular overlap report does not downgrade the link
	tbl.Resolve(a, []entity.ID{b})
	tbl.Resolve(a, nil)
	assert.True(t, tbl.IsTouching(a, b))

	tbl.EndEventTouch(a, b)
	assert.Equal(t, []Event{
		{Kind: EndTouch, Self: a, Other: b},
		{Kind: EndTouch, Self: b, Other: a},
	}, rec.take())
	assert.False(t, tbl.IsTouching(b, a))
}
