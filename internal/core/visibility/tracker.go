package visibility

import (
	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/pkg/vmath"
)

const (
	DefaultMaxLeafs    = 128
	DefaultMaxClusters = 64
)

// Level is the static geometry the tracker queries. Leaf and node numbering is
// owned by the implementation.
type Level interface {
	// BoxLeafs lists up to max leafs touched by the box and the deepest node
	// that still contains the whole box.
	BoxLeafs(mins, maxs vmath.Vec3, max int) (leafs []int, topNode int)
	LeafCluster(leaf int) int
	LeafArea(leaf int) int
	AreasConnected(a, b int) bool
	HeadNodeVisible(node int, pvs PVS) bool
	ClusterCount() int
}

// BoundsFunc returns the world-space surrounding box of an entity.
type BoundsFunc func(id entity.ID) (mins, maxs vmath.Vec3, ok bool)

// Info is the cached visibility footprint of one entity. HeadNode is only
// meaningful when ClusterCount is negative.
type Info struct {
	Clusters     []int
	ClusterCount int
	HeadNode     int
	Area         int
	Area2        int
}

func (i Info) UsesHeadNode() bool {
	return i.ClusterCount < 0
}

type Stats struct {
	Entries           int
	Recomputes        uint64
	Queries           uint64
	HeadNodeFallbacks uint64
}

type Tracker struct {
	level       Level
	bounds      BoundsFunc
	maxLeafs    int
	maxClusters int
	logger      log.Log

	entries []*entry
	stats   Stats
}

type entry struct {
	id    entity.ID
	info  Info
	dirty bool
}

type Option func(*Tracker)

func WithLimits(maxLeafs, maxClusters int) Option {
	return func(t *Tracker) {
		if maxLeafs > 0 {
			t.maxLeafs = maxLeafs
		}
		if maxClusters > 0 {
			t.maxClusters = maxClusters
		}
	}
}

func WithLogger(logger log.Log) Option {
	return func(t *Tracker) { t.logger = logger }
}

func NewTracker(level Level, bounds BoundsFunc, opts ...Option) *Tracker {
	t := &Tracker{
		level:       level,
		bounds:      bounds,
		maxLeafs:    DefaultMaxLeafs,
		maxClusters: DefaultMaxClusters,
		logger:      log.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(log.String("component", "visibility"))
	return t
}

func (t *Tracker) Add(id entity.ID) {
	index := int(id.Index())
	for len(t.entries) <= index {
		t.entries = append(t.entries, nil)
	}
	if t.entries[index] == nil {
		t.stats.Entries++
	}
	t.entries[index] = &entry{id: id, dirty: true}
}

func (t *Tracker) Remove(id entity.ID) {
	if e := t.entry(id); e != nil {
		t.entries[id.Index()] = nil
		t.stats.Entries--
	}
}

// MarkDirty only flags the entry; the cluster query runs on the next read.
func (t *Tracker) MarkDirty(id entity.ID) {
	if e := t.entry(id); e != nil {
		e.dirty = true
	}
}

func (t *Tracker) IsDirty(id entity.ID) bool {
	e := t.entry(id)
	return e != nil && e.dirty
}

func (t *Tracker) Info(id entity.ID) (Info, bool) {
	e := t.entry(id)
	if e == nil {
		return Info{}, false
	}
	t.refresh(e)
	info := e.info
	info.Clusters = append([]int(nil), e.info.Clusters...)
	return info, true
}

// IsVisible gates on area connectivity first, then tests the head node or the
// cluster bits against pvs.
func (t *Tracker) IsVisible(id entity.ID, pvs PVS, areas []int) bool {
	e := t.entry(id)
	if e == nil {
		return false
	}
	t.stats.Queries++
	t.refresh(e)

	if !t.areaConnected(e.info, areas) {
		return false
	}

	if e.info.UsesHeadNode() {
		return t.level.HeadNodeVisible(e.info.HeadNode, pvs)
	}
	for _, cluster := range e.info.Clusters {
		if pvs.Has(cluster) {
			return true
		}
	}
	return false
}

func (t *Tracker) Stats() Stats {
	return t.stats
}

func (t *Tracker) areaConnected(info Info, areas []int) bool {
	for _, area := range areas {
		if t.level.AreasConnected(area, info.Area) {
			return true
		}
		if info.Area2 != 0 && t.level.AreasConnected(area, info.Area2) {
			return true
		}
	}
	return false
}

func (t *Tracker) refresh(e *entry) {
	if !e.dirty {
		return
	}
	e.dirty = false
	t.stats.Recomputes++

	info := Info{Clusters: e.info.Clusters[:0]}
	mins, maxs, ok := t.bounds(e.id)
	if !ok {
		e.info = info
		return
	}

	leafs, topNode := t.level.BoxLeafs(mins, maxs, t.maxLeafs)
	for _, leaf := range leafs {
		area := t.level.LeafArea(leaf)
		if area == 0 {
			continue
		}
		switch {
		case info.Area == 0 || info.Area == area:
			info.Area = area
		case info.Area2 == 0 || info.Area2 == area:
			info.Area2 = area
		default:
			t.logger.Debug("entity straddles more than two areas",
				log.Stringer("entity", e.id), log.Int("area", info.Area), log.Int("area2", info.Area2), log.Int("extra", area))
		}
	}

	if len(leafs) >= t.maxLeafs {
		t.useHeadNode(&info, topNode)
		e.info = info
		return
	}

	for _, leaf := range leafs {
		cluster := t.level.LeafCluster(leaf)
		if cluster < 0 || containsInt(info.Clusters, cluster) {
			continue
		}
		if len(info.Clusters) == t.maxClusters {
			t.useHeadNode(&info, topNode)
			break
		}
		info.Clusters = append(info.Clusters, cluster)
	}
	if !info.UsesHeadNode() {
		info.ClusterCount = len(info.Clusters)
	}
	e.info = info
}

func (t *Tracker) useHeadNode(info *Info, topNode int) {
	info.Clusters = info.Clusters[:0]
	info.ClusterCount = -1
	info.HeadNode = topNode
	t.stats.HeadNodeFallbacks++
}

func (t *Tracker) entry(id entity.ID) *entry {
	index := int(id.Index())
	if !id.IsValid() || index >= len(t.entries) {
		return nil
	}
	if e := t.entries[index]; e != nil && e.id == id {
		return e
	}
	return nil
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
