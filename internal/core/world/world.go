// Package world owns the entity registry and every bookkeeping subsystem of
// one simulation, and drives them through the per-tick pipeline.
//
// A World is driven by a single goroutine. Only Stats is safe to call from
// other goroutines.
package world

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/zeusync/substrate/internal/config"
	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/events/bus"
	"github.com/zeusync/substrate/internal/core/ground"
	"github.com/zeusync/substrate/internal/core/netstate"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/internal/core/think"
	"github.com/zeusync/substrate/internal/core/touch"
	"github.com/zeusync/substrate/internal/core/transform"
	"github.com/zeusync/substrate/internal/core/visibility"
	"github.com/zeusync/substrate/pkg/vmath"
)

const tracerName = "github.com/zeusync/substrate/internal/core/world"

// MovementFunc is the physics step run at the start of every tick. It moves
// entities and reports touch and ground contacts through the world.
type MovementFunc func(ctx context.Context, w *World, dt float64)

type World struct {
	id     uuid.UUID
	cfg    config.World
	logger log.Log
	tracer trace.Tracer

	bus        bus.EventBus
	replicator netstate.Replicator
	movement   MovementFunc
	resolver   transform.AttachmentResolver

	clock     *think.Clock
	registry  *entity.Registry
	hierarchy *transform.Hierarchy
	vis       *visibility.Tracker
	touch     *touch.Table
	ground    *ground.Table
	think     *think.Scheduler
	net       *netstate.Tracker

	meta  []meta
	moved map[entity.ID]struct{}
	// spun holds roots of subtrees whose descendants' abs velocity may have
	// changed without being invalidated.
	spun map[entity.ID]struct{}
	// notices are ground events waiting for the flush point.
	notices []groundNotice

	counters counters

	mu       sync.Mutex
	snapshot Stats
}

// meta is per-entity data that belongs to no subsystem.
type meta struct {
	id        entity.ID
	mins      vmath.Vec3
	maxs      vmath.Vec3
	hasBounds bool
	flags     uint32
	ground    GroundHandler
}

type Option func(*World)

func WithLogger(logger log.Log) Option {
	return func(w *World) { w.logger = logger }
}

// WithBus publishes diagnostics and lifecycle notices on b.
func WithBus(b bus.EventBus) Option {
	return func(w *World) { w.bus = b }
}

func WithReplicator(r netstate.Replicator) Option {
	return func(w *World) { w.replicator = r }
}

// SetReplicator replaces the replicator for later ticks. Replicators that
// read back from the world are built after it and attached here.
func (w *World) SetReplicator(r netstate.Replicator) { w.replicator = r }

func WithMovement(fn MovementFunc) Option {
	return func(w *World) { w.movement = fn }
}

func WithAttachmentResolver(r transform.AttachmentResolver) Option {
	return func(w *World) { w.resolver = r }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(w *World) { w.tracer = tracer }
}

// New builds a world over a static level.
func New(cfg config.World, level visibility.Level, opts ...Option) (*World, error) {
	if level == nil {
		return nil, ErrNoLevel
	}
	if cfg.TickInterval <= 0 {
		return nil, ErrInvalidTickInterval
	}

	w := &World{
		id:     uuid.New(),
		cfg:    cfg,
		logger: log.NewNop(),
		moved:  make(map[entity.ID]struct{}),
		spun:   make(map[entity.ID]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.tracer == nil {
		w.tracer = otel.Tracer(tracerName)
	}
	w.logger = w.logger.With(log.Stringer("world", w.id))

	w.clock = think.NewClock(cfg.TickSeconds())
	w.registry = entity.NewRegistry(cfg.Capacity)

	hooks := &hooks{w: w}
	hopts := []transform.Option{
		transform.WithLiveness(w.registry),
		transform.WithListener(hooks),
		transform.WithParentHook(hooks),
		transform.WithRejectHandler(hooks.rejected),
		transform.WithLimits(cfg.Limits),
		transform.WithLogger(w.logger),
	}
	if w.resolver != nil {
		hopts = append(hopts, transform.WithAttachmentResolver(w.resolver))
	}
	w.hierarchy = transform.NewHierarchy(hopts...)

	w.vis = visibility.NewTracker(level, w.bounds,
		visibility.WithLimits(cfg.MaxVisLeafs, cfg.MaxVisClusters),
		visibility.WithLogger(w.logger))
	w.touch = touch.NewTable(
		touch.WithLifecycle(w.registry),
		touch.WithRelations(w.hierarchy),
		touch.WithBuffering(cfg.TouchBuffering),
		touch.WithLogger(w.logger))
	w.ground = ground.NewTable(
		ground.WithLiveness(w.registry),
		ground.WithListener(hooks),
		ground.WithLogger(w.logger))
	w.think = think.NewScheduler(w.clock,
		think.WithLifecycle(w.registry),
		think.WithStarvationHandler(hooks.starved),
		think.WithLogger(w.logger))
	w.net = netstate.NewTracker(
		netstate.WithMaxChangeOffsets(cfg.MaxChangeOffsets),
		netstate.WithMaxChangeInfos(cfg.MaxChangeInfos),
		netstate.WithLogger(w.logger))

	w.publishStats(0)
	w.logger.Info("world created",
		log.Float64("tick_interval", w.clock.Interval), log.Int("capacity", cfg.Capacity))
	return w, nil
}

func (w *World) ID() uuid.UUID { return w.id }

// CurrentTick is the number of the next tick to run.
func (w *World) CurrentTick() int64 { return w.clock.Tick }

// Now is the simulation time of the next tick.
func (w *World) Now() float64 { return w.clock.Now() }

func (w *World) Interval() float64 { return w.clock.Interval }

func (w *World) Transforms() *transform.Hierarchy { return w.hierarchy }
func (w *World) Visibility() *visibility.Tracker  { return w.vis }
func (w *World) Touch() *touch.Table               { return w.touch }
func (w *World) Ground() *ground.Table             { return w.ground }
func (w *World) Think() *think.Scheduler           { return w.think }
func (w *World) Network() *netstate.Tracker        { return w.net }

func (w *World) publish(eventType string, data any) {
	if w.bus == nil {
		return
	}
	if err := w.bus.Publish(bus.NewEvent(eventType, "world", data)); err != nil {
		w.logger.Warn("event handler failed", log.String("event", eventType), log.Error(err))
	}
}

func (w *World) lookup(id entity.ID) *meta {
	index := int(id.Index())
	if !id.IsValid() || index >= len(w.meta) || w.meta[index].id != id {
		return nil
	}
	return &w.meta[index]
}
