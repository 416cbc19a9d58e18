package visibility

import (
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/substrate/pkg/vmath"
)

const DefaultArea = 1

// GridConfig describes an axis aligned level made of cubic cells. Every cell is
// one leaf and one cluster. Cells not covered by an area block belong to
// DefaultArea; solid cells belong to no area and no cluster.
type GridConfig struct {
	Origin     [3]float64     `yaml:"origin" json:"origin"`
	CellSize   float64        `yaml:"cell_size" json:"cell_size"`
	Cells      [3]int         `yaml:"cells" json:"cells"`
	ViewRadius float64        `yaml:"view_radius" json:"view_radius"`
	Areas      []AreaConfig   `yaml:"areas" json:"areas"`
	Portals    []PortalConfig `yaml:"portals" json:"portals"`
	Solid      [][3]int       `yaml:"solid" json:"solid"`
}

// AreaConfig assigns the inclusive cell range [Min, Max] to area ID.
type AreaConfig struct {
	ID  int    `yaml:"id" json:"id"`
	Min [3]int `yaml:"min" json:"min"`
	Max [3]int `yaml:"max" json:"max"`
}

// PortalConfig joins two areas while open, like a door between rooms.
type PortalConfig struct {
	Name string `yaml:"name" json:"name"`
	A    int    `yaml:"a" json:"a"`
	B    int    `yaml:"b" json:"b"`
	Open bool   `yaml:"open" json:"open"`
}

func DefaultGridConfig() GridConfig {
	return GridConfig{
		Origin:     [3]float64{-1024, -1024, -256},
		CellSize:   256,
		Cells:      [3]int{8, 8, 2},
		ViewRadius: 1024,
	}
}

func (c GridConfig) Validate() error {
	if c.CellSize <= 0 || math.IsNaN(c.CellSize) || math.IsInf(c.CellSize, 0) {
		return fmt.Errorf("%w: cell_size must be positive", ErrInvalidGrid)
	}
	for axis, n := range c.Cells {
		if n < 1 {
			return fmt.Errorf("%w: cells[%d] must be at least 1", ErrInvalidGrid, axis)
		}
	}
	known := map[int]bool{DefaultArea: true}
	for _, a := range c.Areas {
		if a.ID < 1 {
			return fmt.Errorf("%w: area id %d must be positive", ErrInvalidGrid, a.ID)
		}
		if !c.inside(a.Min) || !c.inside(a.Max) {
			return fmt.Errorf("%w: area %d is outside the grid", ErrInvalidGrid, a.ID)
		}
		known[a.ID] = true
	}
	for _, p := range c.Portals {
		if !known[p.A] || !known[p.B] {
			return fmt.Errorf("%w: portal %q joins unknown areas %d and %d", ErrInvalidGrid, p.Name, p.A, p.B)
		}
	}
	for _, cell := range c.Solid {
		if !c.inside(cell) {
			return fmt.Errorf("%w: solid cell %v is outside the grid", ErrInvalidGrid, cell)
		}
	}
	return nil
}

func (c GridConfig) inside(cell [3]int) bool {
	for axis := 0; axis < 3; axis++ {
		if cell[axis] < 0 || cell[axis] >= c.Cells[axis] {
			return false
		}
	}
	return true
}

// LoadGrid decodes a YAML level document.
func LoadGrid(r io.Reader) (GridConfig, error) {
	cfg := DefaultGridConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return GridConfig{}, fmt.Errorf("decode level: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return GridConfig{}, err
	}
	return cfg, nil
}

func LoadGridFile(path string) (GridConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return GridConfig{}, fmt.Errorf("open level %s: %w", path, err)
	}
	defer f.Close()
	return LoadGrid(f)
}

// GridLevel implements Level over a GridConfig. Node references follow the
// usual BSP encoding: n >= 0 is an internal node, n < 0 is leaf -(n+1).
type GridLevel struct {
	origin     vmath.Vec3
	cellSize   float64
	dims       [3]int
	viewRadius float64

	areaOf []int
	nodes  []gridNode
	root   int

	portals []PortalConfig
	flood   map[int]int
}

type gridNode struct {
	axis     int
	split    float64
	children [2]int
}

func NewGridLevel(cfg GridConfig) (*GridLevel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &GridLevel{
		origin:     vmath.Vec3(cfg.Origin),
		cellSize:   cfg.CellSize,
		dims:       cfg.Cells,
		viewRadius: cfg.ViewRadius,
		portals:    append([]PortalConfig(nil), cfg.Portals...),
	}

	g.areaOf = make([]int, cfg.Cells[0]*cfg.Cells[1]*cfg.Cells[2])
	for i := range g.areaOf {
		g.areaOf[i] = DefaultArea
	}
	for _, a := range cfg.Areas {
		for z := a.Min[2]; z <= a.Max[2]; z++ {
			for y := a.Min[1]; y <= a.Max[1]; y++ {
				for x := a.Min[0]; x <= a.Max[0]; x++ {
					g.areaOf[g.leafIndex(x, y, z)] = a.ID
				}
			}
		}
	}
	for _, cell := range cfg.Solid {
		g.areaOf[g.leafIndex(cell[0], cell[1], cell[2])] = 0
	}

	g.root = g.build([3]int{}, cfg.Cells)
	g.reflood()
	return g, nil
}

// build splits the cell range [lo, hi) along its longest axis until a single
// cell remains, returning the node reference of the subtree.
func (g *GridLevel) build(lo, hi [3]int) int {
	axis, span := 0, 0
	for a := 0; a < 3; a++ {
		if s := hi[a] - lo[a]; s > span {
			axis, span = a, s
		}
	}
	if span <= 1 {
		return -(g.leafIndex(lo[0], lo[1], lo[2]) + 1)
	}

	mid := lo[axis] + span/2
	index := len(g.nodes)
	g.nodes = append(g.nodes, gridNode{
		axis:  axis,
		split: g.origin[axis] + float64(mid)*g.cellSize,
	})

	leftHi, rightLo := hi, lo
	leftHi[axis] = mid
	rightLo[axis] = mid
	left := g.build(lo, leftHi)
	right := g.build(rightLo, hi)
	g.nodes[index].children = [2]int{left, right}
	return index
}

func (g *GridLevel) leafIndex(x, y, z int) int {
	return x + g.dims[0]*(y+g.dims[1]*z)
}

func (g *GridLevel) leafCell(leaf int) [3]int {
	x := leaf % g.dims[0]
	y := (leaf / g.dims[0]) % g.dims[1]
	z := leaf / (g.dims[0] * g.dims[1])
	return [3]int{x, y, z}
}

func (g *GridLevel) Bounds() (vmath.Vec3, vmath.Vec3) {
	maxs := g.origin
	for axis := 0; axis < 3; axis++ {
		maxs[axis] += float64(g.dims[axis]) * g.cellSize
	}
	return g.origin, maxs
}

func (g *GridLevel) BoxLeafs(mins, maxs vmath.Vec3, max int) ([]int, int) {
	lo, hi := g.Bounds()
	if !vmath.BoxesOverlap(mins, maxs, lo, hi) {
		return nil, g.root
	}

	top := g.root
	for top >= 0 {
		n := g.nodes[top]
		left, right := sides(n, mins, maxs)
		if left && right {
			break
		}
		if left {
			top = n.children[0]
		} else {
			top = n.children[1]
		}
	}

	var leafs []int
	g.collect(top, mins, maxs, max, &leafs)
	return leafs, top
}

func (g *GridLevel) collect(ref int, mins, maxs vmath.Vec3, max int, out *[]int) {
	if len(*out) >= max {
		return
	}
	if ref < 0 {
		*out = append(*out, -(ref + 1))
		return
	}
	n := g.nodes[ref]
	left, right := sides(n, mins, maxs)
	if left {
		g.collect(n.children[0], mins, maxs, max, out)
	}
	if right {
		g.collect(n.children[1], mins, maxs, max, out)
	}
}

func sides(n gridNode, mins, maxs vmath.Vec3) (left, right bool) {
	left = mins[n.axis] < n.split
	right = maxs[n.axis] > n.split || mins[n.axis] >= n.split
	return left, right
}

func (g *GridLevel) LeafCluster(leaf int) int {
	if leaf < 0 || leaf >= len(g.areaOf) || g.areaOf[leaf] == 0 {
		return -1
	}
	return leaf
}

func (g *GridLevel) LeafArea(leaf int) int {
	if leaf < 0 || leaf >= len(g.areaOf) {
		return 0
	}
	return g.areaOf[leaf]
}

func (g *GridLevel) ClusterCount() int {
	return len(g.areaOf)
}

func (g *GridLevel) AreasConnected(a, b int) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	if a == b {
		return true
	}
	fa, okA := g.flood[a]
	fb, okB := g.flood[b]
	return okA && okB && fa == fb
}

func (g *GridLevel) HeadNodeVisible(ref int, pvs PVS) bool {
	if ref < 0 {
		return pvs.Has(g.LeafCluster(-(ref + 1)))
	}
	if ref >= len(g.nodes) {
		return false
	}
	n := g.nodes[ref]
	return g.HeadNodeVisible(n.children[0], pvs) || g.HeadNodeVisible(n.children[1], pvs)
}

// SetPortalOpen opens or closes every portal with the given name.
func (g *GridLevel) SetPortalOpen(name string, open bool) bool {
	found := false
	for i := range g.portals {
		if g.portals[i].Name == name {
			g.portals[i].Open = open
			found = true
		}
	}
	if found {
		g.reflood()
	}
	return found
}

func (g *GridLevel) PortalOpen(name string) bool {
	for _, p := range g.portals {
		if p.Name == name {
			return p.Open
		}
	}
	return false
}

func (g *GridLevel) reflood() {
	parent := make(map[int]int)
	for _, a := range g.areaOf {
		if a != 0 {
			parent[a] = a
		}
	}
	var find func(int) int
	find = func(a int) int {
		for parent[a] != a {
			parent[a] = parent[parent[a]]
			a = parent[a]
		}
		return a
	}
	for _, p := range g.portals {
		if !p.Open {
			continue
		}
		if _, ok := parent[p.A]; !ok {
			continue
		}
		if _, ok := parent[p.B]; !ok {
			continue
		}
		ra, rb := find(p.A), find(p.B)
		if ra != rb {
			parent[ra] = rb
		}
	}

	g.flood = make(map[int]int, len(parent))
	for a := range parent {
		g.flood[a] = find(a)
	}
}

// LeafAt returns the leaf containing point.
func (g *GridLevel) LeafAt(point vmath.Vec3) (int, bool) {
	var cell [3]int
	for axis := 0; axis < 3; axis++ {
		c := int(math.Floor((point[axis] - g.origin[axis]) / g.cellSize))
		if c < 0 || c >= g.dims[axis] {
			return 0, false
		}
		cell[axis] = c
	}
	return g.leafIndex(cell[0], cell[1], cell[2]), true
}

// CellCenter returns the world-space center of the cell at x, y, z.
func (g *GridLevel) CellCenter(x, y, z int) vmath.Vec3 {
	return vmath.Vec3{
		g.origin[0] + (float64(x)+0.5)*g.cellSize,
		g.origin[1] + (float64(y)+0.5)*g.cellSize,
		g.origin[2] + (float64(z)+0.5)*g.cellSize,
	}
}

// ViewerPVS builds the visible cluster set and area list of a viewer standing
// at point: every open cell whose center is within the view radius.
func (g *GridLevel) ViewerPVS(point vmath.Vec3) (PVS, []int, bool) {
	leaf, ok := g.LeafAt(point)
	if !ok || g.areaOf[leaf] == 0 {
		return nil, nil, false
	}

	pvs := NewPVS(g.ClusterCount())
	here := g.leafCell(leaf)
	center := g.CellCenter(here[0], here[1], here[2])
	for i := range g.areaOf {
		if g.areaOf[i] == 0 {
			continue
		}
		if g.viewRadius > 0 {
			c := g.leafCell(i)
			if g.CellCenter(c[0], c[1], c[2]).Sub(center).Len() > g.viewRadius {
				continue
			}
		}
		pvs.Set(i)
	}
	return pvs, []int{g.areaOf[leaf]}, true
}
