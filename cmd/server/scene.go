package main

import (
	"math"

	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/internal/core/think"
	"github.com/zeusync/substrate/internal/core/touch"
	"github.com/zeusync/substrate/internal/core/world"
	"github.com/zeusync/substrate/pkg/vmath"
)

const (
	platformSwing  = 400.0
	platformPeriod = 8.0
	platformThink  = 0.1
)

// scene is a small demo: a swinging platform carrying a beacon, a crate
// resting on it and a trigger volume the platform sweeps through.
type scene struct {
	platform entity.ID
	beacon   entity.ID
	crate    entity.ID
	trigger  entity.ID
}

func bounded(half float64, p world.SpawnParams) world.SpawnParams {
	p.Mins = vmath.Vec3{-half, -half, -half}
	p.Maxs = vmath.Vec3{half, half, half}
	p.HasBounds = true
	return p
}

func spawnScene(w *world.World, logger log.Log) scene {
	var s scene

	s.platform = w.Spawn(bounded(32, world.SpawnParams{
		Touch: touch.Profile{Solid: true},
		Thinker: think.ThinkerFunc(func(id entity.ID, call think.Call) {
			x := platformSwing * math.Sin(2*math.Pi*call.Time/platformPeriod)
			w.Transforms().SetAbsOrigin(id, vmath.Vec3{x, 0, 0})
			w.TouchOverlaps(id)
			w.Think().SetNextThink(id, call.Time+platformThink, call.Context)
		}),
	}))

	s.beacon = w.Spawn(bounded(4, world.SpawnParams{
		Origin: vmath.Vec3{0, 0, 64},
		Parent: s.platform,
	}))

	s.crate = w.Spawn(bounded(8, world.SpawnParams{
		Origin: vmath.Vec3{0, 0, 40},
		Touch:  touch.Profile{Solid: true},
		Ground: world.GroundFuncs{
			OnRemoved: func(self, former entity.ID) {
				logger.Info("crate lost its support", log.Stringer("crate", self), log.Stringer("former", former))
			},
			OnWoken: func(self entity.ID) {
				logger.Debug("crate woken", log.Stringer("crate", self))
			},
		},
	}))
	w.Ground().SetGround(s.crate, s.platform)

	s.trigger = w.Spawn(bounded(64, world.SpawnParams{
		Origin:  vmath.Vec3{300, 0, 0},
		Static:  true,
		Touch:   touch.Profile{Trigger: true},
		Handler: touch.HandlerFuncs{
			OnStart: func(self, other entity.ID) {
				logger.Info("trigger entered", log.Stringer("trigger", self), log.Stringer("entity", other))
			},
			OnEnd: func(self, other entity.ID) {
				logger.Info("trigger left", log.Stringer("trigger", self), log.Stringer("entity", other))
			},
		},
	}))

	logger.Info("demo scene spawned", log.Int("entities", w.Count()))
	return s
}
