package visibility

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/pkg/vmath"
)

// corridor is four 100 unit cells along x: cells 0-1 are area 1, cells 2-3 are
// area 2, joined by a closed door.
func corridor(t *testing.T) *GridLevel {
	t.Helper()
	g, err := NewGridLevel(GridConfig{
		CellSize:   100,
		Cells:      [3]int{4, 1, 1},
		ViewRadius: 150,
		Areas:      []AreaConfig{{ID: 2, Min: [3]int{2, 0, 0}, Max: [3]int{3, 0, 0}}},
		Portals:    []PortalConfig{{Name: "door", A: 1, B: 2}},
	})
	require.NoError(t, err)
	return g
}

type boxes map[entity.ID][2]vmath.Vec3

func (b boxes) bounds(id entity.ID) (vmath.Vec3, vmath.Vec3, bool) {
	box, ok := b[id]
	return box[0], box[1], ok
}

func cube(center vmath.Vec3, half float64) [2]vmath.Vec3 {
	h := vmath.Vec3{half, half, half}
	return [2]vmath.Vec3{center.Sub(h), center.Add(h)}
}

func viewer(t *testing.T, g *GridLevel, x float64) (PVS, []int) {
	t.Helper()
	pvs, areas, ok := g.ViewerPVS(vmath.Vec3{x, 50, 50})
	require.True(t, ok)
	return pvs, areas
}

func TestAreaGateBlocksClosedDoor(t *testing.T) {
	g := corridor(t)
	id := entity.NewID(1, 1)
	b := boxes{id: cube(vmath.Vec3{150, 50, 50}, 10)}
	tr := NewTracker(g, b.bounds)
	tr.Add(id)

	pvs, areas := viewer(t, g, 250)
	require.True(t, pvs.Has(1), "cluster 1 is within view radius")
	assert.Equal(t, []int{2}, areas)
	assert.False(t, tr.IsVisible(id, pvs, areas), "closed door hides the other area")

	require.True(t, g.SetPortalOpen("door", true))
	assert.True(t, tr.IsVisible(id, pvs, areas))

	pvs, areas = viewer(t, g, 50)
	assert.True(t, tr.IsVisible(id, pvs, areas))
	assert.False(t, tr.IsVisible(id, pvs, nil), "no viewer areas means nothing connects")
}

func TestRecomputeIsLazy(t *testing.T) {
	g := corridor(t)
	id := entity.NewID(1, 1)
	b := boxes{id: cube(vmath.Vec3{50, 50, 50}, 10)}
	tr := NewTracker(g, b.bounds)
	tr.Add(id)

	info, ok := tr.Info(id)
	require.True(t, ok)
	assert.Equal(t, []int{0}, info.Clusters)
	assert.Equal(t, uint64(1), tr.Stats().Recomputes)

	b[id] = cube(vmath.Vec3{350, 50, 50}, 10)
	tr.MarkDirty(id)
	tr.MarkDirty(id)
	assert.True(t, tr.IsDirty(id))
	assert.Equal(t, uint64(1), tr.Stats().Recomputes, "marking does not recompute")

	pvs, areas := viewer(t, g, 350)
	assert.True(t, tr.IsVisible(id, pvs, areas))
	assert.True(t, tr.IsVisible(id, pvs, areas))
	assert.Equal(t, uint64(2), tr.Stats().Recomputes)

	info, _ = tr.Info(id)
	assert.Equal(t, []int{3}, info.Clusters)
	assert.Equal(t, 2, info.Area)
}

func TestStraddlingEntityUsesBothAreas(t *testing.T) {
	g := corridor(t)
	id := entity.NewID(1, 1)
	b := boxes{id: {vmath.Vec3{120, 40, 40}, vmath.Vec3{280, 60, 60}}}
	tr := NewTracker(g, b.bounds)
	tr.Add(id)

	info, _ := tr.Info(id)
	assert.Equal(t, []int{1, 2}, info.Clusters)
	assert.Equal(t, 1, info.Area)
	assert.Equal(t, 2, info.Area2)

	pvs, areas := viewer(t, g, 350)
	assert.True(t, tr.IsVisible(id, pvs, areas), "the second area connects even with the door closed")
}

func TestHeadNodeFallback(t *testing.T) {
	g := corridor(t)
	require.True(t, g.SetPortalOpen("door", true))
	id := entity.NewID(1, 1)
	b := boxes{id: {vmath.Vec3{10, 40, 40}, vmath.Vec3{390, 60, 60}}}

	t.Run("too many clusters", func(t *testing.T) {
		tr := NewTracker(g, b.bounds, WithLimits(0, 2))
		tr.Add(id)
		info, _ := tr.Info(id)
		assert.True(t, info.UsesHeadNode())
		assert.Equal(t, -1, info.ClusterCount)
		assert.Empty(t, info.Clusters)
		assert.Equal(t, uint64(1), tr.Stats().HeadNodeFallbacks)

		pvs, areas := viewer(t, g, 350)
		assert.True(t, tr.IsVisible(id, pvs, areas))
		assert.False(t, tr.IsVisible(id, NewPVS(g.ClusterCount()), areas))
	})

	t.Run("too many leafs", func(t *testing.T) {
		tr := NewTracker(g, b.bounds, WithLimits(2, 0))
		tr.Add(id)
		info, _ := tr.Info(id)
		assert.True(t, info.UsesHeadNode())
	})
}

func TestThirdAreaIsReported(t *testing.T) {
	g, err := NewGridLevel(GridConfig{
		CellSize: 100,
		Cells:    [3]int{3, 1, 1},
		Areas: []AreaConfig{
			{ID: 2, Min: [3]int{1, 0, 0}, Max: [3]int{1, 0, 0}},
			{ID: 3, Min: [3]int{2, 0, 0}, Max: [3]int{2, 0, 0}},
		},
	})
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	id := entity.NewID(1, 1)
	b := boxes{id: {vmath.Vec3{10, 10, 10}, vmath.Vec3{290, 90, 90}}}
	tr := NewTracker(g, b.bounds, WithLogger(log.NewWithCore(core)))
	tr.Add(id)

	info, _ := tr.Info(id)
	assert.Equal(t, 1, info.Area)
	assert.Equal(t, 2, info.Area2)
	assert.Equal(t, 1, logs.FilterMessage("entity straddles more than two areas").Len())
}

func TestUnknownOrBoundlessEntityIsInvisible(t *testing.T) {
	g := corridor(t)
	id := entity.NewID(1, 1)
	tr := NewTracker(g, boxes{}.bounds)
	tr.Add(id)

	pvs, areas := viewer(t, g, 50)
	assert.False(t, tr.IsVisible(id, pvs, areas))
	assert.False(t, tr.IsVisible(entity.NewID(5, 1), pvs, areas))

	tr.Remove(id)
	_, ok := tr.Info(id)
	assert.False(t, ok)
}

func TestPVSBits(t *testing.T) {
	p := NewPVS(20)
	assert.Len(t, p, 3)
	p.Set(0)
	p.Set(9)
	p.Set(19)
	p.Set(200)
	assert.True(t, p.Has(9))
	assert.False(t, p.Has(8))
	assert.False(t, p.Has(-1))
	assert.Equal(t, 3, p.Count())
	p.Clear()
	assert.Zero(t, p.Count())
}

func TestGridBoxLeafs(t *testing.T) {
	g := corridor(t)

	leafs, top := g.BoxLeafs(vmath.Vec3{120, 0, 0}, vmath.Vec3{280, 100, 100}, 128)
	assert.Equal(t, []int{1, 2}, leafs)
	assert.Equal(t, 0, top)

	leafs, top = g.BoxLeafs(vmath.Vec3{310, 0, 0}, vmath.Vec3{320, 10, 10}, 128)
	assert.Equal(t, []int{3}, leafs)
	assert.Less(t, top, 0, "a box inside one cell descends to the leaf")

	leafs, _ = g.BoxLeafs(vmath.Vec3{100, 0, 0}, vmath.Vec3{100, 10, 10}, 128)
	assert.Equal(t, []int{1}, leafs, "a point on a split plane belongs to the upper cell")

	leafs, _ = g.BoxLeafs(vmath.Vec3{900, 0, 0}, vmath.Vec3{950, 10, 10}, 128)
	assert.Empty(t, leafs)

	leafs, _ = g.BoxLeafs(vmath.Vec3{0, 0, 0}, vmath.Vec3{399, 99, 99}, 3)
	assert.Len(t, leafs, 3)
}

func TestLoadGrid(t *testing.T) {
	doc := `
origin: [0, 0, 0]
cell_size: 64
cells: [2, 2, 1]
view_radius: 0
areas:
  - id: 4
    min: [1, 0, 0]
    max: [1, 1, 0]
portals:
  - name: hatch
    a: 1
    b: 4
    open: true
solid:
  - [0, 1, 0]
`
	cfg, err := LoadGrid(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 64.0, cfg.CellSize)

	g, err := NewGridLevel(cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, g.LeafArea(1))
	assert.Equal(t, -1, g.LeafCluster(2), "solid cell has no cluster")
	assert.True(t, g.AreasConnected(1, 4))
	assert.True(t, g.PortalOpen("hatch"))

	_, _, ok := g.ViewerPVS(vmath.Vec3{10, 70, 10})
	assert.False(t, ok, "viewer inside a solid cell")

	pvs, areas, ok := g.ViewerPVS(vmath.Vec3{10, 10, 10})
	require.True(t, ok)
	assert.Equal(t, []int{1}, areas)
	assert.Equal(t, 3, pvs.Count(), "unbounded radius sees every open cell")
}

func TestGridValidation(t *testing.T) {
	_, err := NewGridLevel(GridConfig{CellSize: 0, Cells: [3]int{1, 1, 1}})
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = NewGridLevel(GridConfig{CellSize: 10, Cells: [3]int{1, 1, 1},
		Portals: []PortalConfig{{Name: "x", A: 1, B: 9}}})
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = LoadGrid(strings.NewReader("bogus_key: 1\n"))
	assert.Error(t, err)
}
