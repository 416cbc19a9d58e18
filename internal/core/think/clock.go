package think

import "math"

// NeverThink is the tick value of a context that is not scheduled.
const NeverThink int64 = -1

// Clock converts between simulation seconds and ticks.
type Clock struct {
	Interval float64
	Tick     int64
}

func NewClock(interval float64) *Clock {
	return &Clock{Interval: interval}
}

// Now returns the simulation time of the current tick.
func (c *Clock) Now() float64 {
	return c.TickToTime(c.Tick)
}

// tickEpsilon absorbs float error when t sits on a tick boundary.
const tickEpsilon = 1e-6

// TimeToTicks returns the first tick whose time is not before t, so a think
// never fires early. A negative time means never.
func (c *Clock) TimeToTicks(t float64) int64 {
	if t < 0 {
		return NeverThink
	}
	return int64(math.Ceil(t/c.Interval - tickEpsilon))
}

func (c *Clock) TickToTime(tick int64) float64 {
	if tick < 0 {
		return -1
	}
	return float64(tick) * c.Interval
}

func (c *Clock) Advance() int64 {
	c.Tick++
	return c.Tick
}
