package bus

import (
	"time"

	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/observability/log"
)

// Event types published by the world.
const (
	RejectedGeometry = "diagnostic.rejected_geometry"
	ThinkStarved     = "diagnostic.think_starved"
	EntityDestroyed  = "entity.destroyed"
	GroundRemoved    = "entity.ground_removed"
	EntityWoken      = "entity.woken"
)

// RejectedGeometryData is the payload of RejectedGeometry.
type RejectedGeometryData struct {
	Entity entity.ID
	Field  string
	Value  any
}

// ThinkStarvedData is the payload of ThinkStarved.
type ThinkStarvedData struct {
	Entity  entity.ID
	Context string
	Tick    int64
}

// EntityDestroyedData is the payload of EntityDestroyed.
type EntityDestroyedData struct {
	Entity entity.ID
	Tick   int64
}

// GroundRemovedData is the payload of GroundRemoved.
type GroundRemovedData struct {
	Entity entity.ID
	Former entity.ID
	Tick   int64
}

// EntityWokenData is the payload of EntityWoken.
type EntityWokenData struct {
	Entity entity.ID
	Tick   int64
}

// LogObserver writes failed deliveries as warnings and everything else at debug.
type LogObserver struct {
	Logger log.Log
}

func (o LogObserver) OnDelivered(event Event, handlers int, err error, elapsed time.Duration) {
	fields := []log.Field{
		log.String("event", event.Type),
		log.String("source", event.Source),
		log.Int("handlers", handlers),
		log.Duration("elapsed", elapsed),
	}
	if err != nil {
		o.Logger.Warn("event handler failed", append(fields, log.Error(err))...)
		return
	}
	o.Logger.Debug("event delivered", fields...)
}
