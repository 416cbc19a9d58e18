package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/netstate"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/internal/core/visibility"
	"github.com/zeusync/substrate/pkg/generic"
	"github.com/zeusync/substrate/pkg/vmath"
)

// Source is the world as the hub sees it. It is only called from Replicate,
// on the simulation goroutine.
type Source interface {
	CurrentTick() int64
	Alive(id entity.ID) bool
	IsInPVS(id entity.ID, pvs visibility.PVS, areas []int) bool
	States(fn func(id entity.ID, state netstate.State) bool)
}

// Viewpoint builds the PVS and area list of a point in the level.
type Viewpoint interface {
	ViewerPVS(point vmath.Vec3) (visibility.PVS, []int, bool)
}

// Frame is one replication message sent to a viewer. Reset tells the viewer
// to forget everything it knows before applying the frame.
type Frame struct {
	Tick     int64          `json:"tick"`
	Reset    bool           `json:"reset,omitempty"`
	Entities []EntityUpdate `json:"entities,omitempty"`
	Left     []entity.ID    `json:"left,omitempty"`
}

func (f Frame) empty() bool {
	return !f.Reset && len(f.Entities) == 0 && len(f.Left) == 0
}

// EntityUpdate carries the state of one entity. Fields lists what changed
// when the update is partial.
type EntityUpdate struct {
	ID     entity.ID      `json:"id"`
	Full   bool           `json:"full"`
	Fields []string       `json:"fields,omitempty"`
	State  netstate.State `json:"state"`
}

// ClientMessage is what viewers send upstream.
type ClientMessage struct {
	Type   string     `json:"type"`
	Origin vmath.Vec3 `json:"origin"`
}

const MessageMove = "move"

type HubStats struct {
	Viewers int
	Frames  uint64
	Dropped uint64
}

// Hub fans replicated changes out to connected viewers, gated by each
// viewer's PVS. It implements netstate.Replicator.
type Hub struct {
	source     Source
	view       Viewpoint
	schema     *netstate.Schema
	sendBuffer int
	logger     log.Log
	buffers    *generic.Pool[*bytes.Buffer]

	mu      sync.RWMutex
	viewers map[string]*Viewer

	frames  atomic.Uint64
	dropped atomic.Uint64
}

// Viewer is one connected websocket client.
type Viewer struct {
	id   string
	send chan []byte

	mu     sync.Mutex
	origin vmath.Vec3
	rescan bool
	reset  bool

	// known is only touched from Replicate.
	known map[entity.ID]struct{}
}

func (v *Viewer) ID() string { return v.id }

func (v *Viewer) position() vmath.Vec3 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.origin
}

func NewHub(source Source, view Viewpoint, sendBuffer int, logger log.Log) *Hub {
	if logger == nil {
		logger = log.NewNop()
	}
	if sendBuffer <= 0 {
		sendBuffer = 1
	}
	return &Hub{
		source:     source,
		view:       view,
		schema:     netstate.StateSchema,
		sendBuffer: sendBuffer,
		logger:     logger.With(log.String("component", "hub")),
		viewers:    make(map[string]*Viewer),
		buffers:    generic.NewHotPool(newFrameBuffer, (*bytes.Buffer).Reset, sendBuffer),
	}
}

// newFrameBuffer backs the encode pool, pre-filled with one buffer per frame a
// viewer can have queued.
func newFrameBuffer() *bytes.Buffer { return new(bytes.Buffer) }

// Join registers a viewer at origin. Its first frame is a full snapshot of
// what it can see.
func (h *Hub) Join(origin vmath.Vec3) *Viewer {
	v := &Viewer{
		id:     uuid.NewString(),
		send:   make(chan []byte, h.sendBuffer),
		origin: origin,
		rescan: true,
		known:  make(map[entity.ID]struct{}),
	}
	h.mu.Lock()
	h.viewers[v.id] = v
	n := len(h.viewers)
	h.mu.Unlock()

	h.logger.Info("viewer joined", log.String("viewer", v.id), log.Int("viewers", n))
	return v
}

// Leave unregisters v and closes its send channel. Safe to call twice.
func (h *Hub) Leave(v *Viewer) {
	h.mu.Lock()
	if _, ok := h.viewers[v.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.viewers, v.id)
	close(v.send)
	n := len(h.viewers)
	h.mu.Unlock()

	h.logger.Info("viewer left", log.String("viewer", v.id), log.Int("viewers", n))
}

// Move updates the viewer position; the next frame rescans visibility.
func (h *Hub) Move(v *Viewer, origin vmath.Vec3) {
	v.mu.Lock()
	v.origin = origin
	v.rescan = true
	v.mu.Unlock()
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.RLock()
	viewers := make([]*Viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.RUnlock()

	for _, v := range viewers {
		h.Leave(v)
	}
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.viewers)
	h.mu.RUnlock()
	return HubStats{Viewers: n, Frames: h.frames.Load(), Dropped: h.dropped.Load()}
}

// Replicate builds and queues one frame per viewer. A viewer whose buffer is
// full loses the frame and is resynchronized from scratch on the next call.
func (h *Hub) Replicate(ctx context.Context, changes []netstate.Change) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.viewers) == 0 {
		return nil
	}

	tick := h.source.CurrentTick()
	for _, v := range h.viewers {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := h.frame(v, tick, changes)
		if f.empty() {
			continue
		}
		data, err := h.encodeFrame(f)
		if err != nil {
			return fmt.Errorf("encode frame for viewer %s: %w", v.id, err)
		}

		select {
		case v.send <- data:
			h.frames.Add(1)
		default:
			h.dropped.Add(1)
			v.mu.Lock()
			v.rescan = true
			v.reset = true
			v.mu.Unlock()
			h.logger.Warn("viewer send buffer full, frame dropped",
				log.String("viewer", v.id), log.Int64("tick", tick))
		}
	}
	return nil
}

func (h *Hub) frame(v *Viewer, tick int64, changes []netstate.Change) Frame {
	v.mu.Lock()
	origin, rescan, reset := v.origin, v.rescan, v.reset
	v.rescan, v.reset = false, false
	v.mu.Unlock()

	f := Frame{Tick: tick, Reset: reset}
	if reset {
		clear(v.known)
	}

	pvs, areas, ok := h.view.ViewerPVS(origin)
	if !ok {
		for id := range v.known {
			f.Left = append(f.Left, id)
		}
		clear(v.known)
		sortIDs(f.Left)
		return f
	}

	if rescan {
		h.rescan(v, &f, pvs, areas, changes)
	} else {
		h.apply(v, &f, pvs, areas, changes)
	}
	sortIDs(f.Left)
	return f
}

// rescan compares every live entity against the viewer's PVS.
func (h *Hub) rescan(v *Viewer, f *Frame, pvs visibility.PVS, areas []int, changes []netstate.Change) {
	changed := make(map[entity.ID]int, len(changes))
	for i, c := range changes {
		changed[c.ID] = i
	}

	visible := make(map[entity.ID]struct{})
	h.source.States(func(id entity.ID, st netstate.State) bool {
		if !h.source.IsInPVS(id, pvs, areas) {
			return true
		}
		visible[id] = struct{}{}
		if _, known := v.known[id]; !known {
			v.known[id] = struct{}{}
			f.Entities = append(f.Entities, EntityUpdate{ID: id, Full: true, State: st})
		} else if i, ok := changed[id]; ok {
			f.Entities = append(f.Entities, h.update(changes[i]))
		}
		return true
	})

	for id := range v.known {
		if _, ok := visible[id]; !ok {
			delete(v.known, id)
			f.Left = append(f.Left, id)
		}
	}
}

// apply only looks at changed entities, plus known ones that died.
func (h *Hub) apply(v *Viewer, f *Frame, pvs visibility.PVS, areas []int, changes []netstate.Change) {
	for _, c := range changes {
		_, known := v.known[c.ID]
		switch {
		case h.source.IsInPVS(c.ID, pvs, areas):
			if known {
				f.Entities = append(f.Entities, h.update(c))
				continue
			}
			v.known[c.ID] = struct{}{}
			f.Entities = append(f.Entities, EntityUpdate{ID: c.ID, Full: true, State: c.State})
		case known:
			delete(v.known, c.ID)
			f.Left = append(f.Left, c.ID)
		}
	}

	for id := range v.known {
		if !h.source.Alive(id) {
			delete(v.known, id)
			f.Left = append(f.Left, id)
		}
	}
}

func (h *Hub) update(c netstate.Change) EntityUpdate {
	u := EntityUpdate{ID: c.ID, Full: c.Full, State: c.State}
	if !c.Full {
		u.Fields = h.schema.Names(c.ChangeSet)
	}
	return u
}

func (h *Hub) encodeFrame(f Frame) ([]byte, error) {
	buf := h.buffers.Get()
	defer h.buffers.Put(buf)
	if err := json.NewEncoder(buf).Encode(f); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

func sortIDs(ids []entity.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
