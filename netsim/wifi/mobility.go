// SPDX-License-Identifier: GPL-3.0-or-later

package wifi

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rbmk-project/netscen/netsim/engine"
)

// Vector is a position in meters.
type Vector struct {
	X, Y float64
}

// Distance returns the euclidean distance between two positions.
func (v Vector) Distance(other Vector) float64 {
	return math.Hypot(v.X-other.X, v.Y-other.Y)
}

// Mobility tells where a node is.
//
// Implementations may assume that Position is invoked with
// non-decreasing times.
type Mobility interface {
	Position(now time.Duration) Vector
}

// ConstantPosition is a [Mobility] that never moves.
type ConstantPosition struct {
	Pos Vector
}

var _ Mobility = ConstantPosition{}

// Position implements [Mobility].
func (cp ConstantPosition) Position(time.Duration) Vector {
	return cp.Pos
}

// GridAllocator places nodes on a rectangular grid.
type GridAllocator struct {
	// MinX is the x coordinate of the first position.
	MinX float64

	// MinY is the y coordinate of the first position.
	MinY float64

	// DeltaX is the distance between columns.
	DeltaX float64

	// DeltaY is the distance between rows.
	DeltaY float64

	// GridWidth is the number of positions per row (or column).
	GridWidth int

	// RowFirst fills rows before columns.
	RowFirst bool
}

// DefaultGridAllocator returns the allocator used for Wi-Fi nodes.
func DefaultGridAllocator() GridAllocator {
	return GridAllocator{
		MinX:      0,
		MinY:      0,
		DeltaX:    5,
		DeltaY:    10,
		GridWidth: 3,
		RowFirst:  true,
	}
}

// Position returns the position of the index-th node.
func (g GridAllocator) Position(index int) Vector {
	width := max(g.GridWidth, 1)
	major, minor := index%width, index/width
	if g.RowFirst {
		return Vector{
			X: g.MinX + float64(major)*g.DeltaX,
			Y: g.MinY + float64(minor)*g.DeltaY,
		}
	}
	return Vector{
		X: g.MinX + float64(minor)*g.DeltaX,
		Y: g.MinY + float64(major)*g.DeltaY,
	}
}

// Bounds is a rectangle.
type Bounds struct {
	MinX, MaxX, MinY, MaxY float64
}

// DefaultBounds returns the random walk area used for Wi-Fi stations.
func DefaultBounds() Bounds {
	return Bounds{MinX: -50, MaxX: 50, MinY: -50, MaxY: 50}
}

// RandomWalk is a [Mobility] that picks a random direction and speed
// at fixed intervals and rebounds on the bounds.
//
// Construct using [NewRandomWalk].
type RandomWalk struct {
	bounds   Bounds
	interval time.Duration
	pos      Vector
	rng      *rand.Rand
	segStart time.Duration
	speed    engine.Uniform
	vel      Vector
}

var _ Mobility = &RandomWalk{}

// NewRandomWalk creates a new [*RandomWalk] starting at start.
func NewRandomWalk(start Vector, bounds Bounds, speed engine.Uniform,
	interval time.Duration, rng *rand.Rand) *RandomWalk {
	rw := &RandomWalk{
		bounds:   bounds,
		interval: interval,
		pos:      start,
		rng:      rng,
		speed:    speed,
	}
	rw.pickVelocity()
	return rw
}

// pickVelocity draws a new direction and speed.
func (rw *RandomWalk) pickVelocity() {
	speed := rw.speed.Sample(rw.rng)
	direction := rw.rng.Float64() * 2 * math.Pi
	rw.vel = Vector{X: speed * math.Cos(direction), Y: speed * math.Sin(direction)}
}

// advance returns where the walker is after elapsed from the segment start.
func (rw *RandomWalk) advance(elapsed time.Duration) Vector {
	sec := elapsed.Seconds()
	return Vector{
		X: fold(rw.pos.X+rw.vel.X*sec, rw.bounds.MinX, rw.bounds.MaxX),
		Y: fold(rw.pos.Y+rw.vel.Y*sec, rw.bounds.MinY, rw.bounds.MaxY),
	}
}

// Position implements [Mobility].
func (rw *RandomWalk) Position(now time.Duration) Vector {
	for rw.interval > 0 && now >= rw.segStart+rw.interval {
		rw.pos = rw.advance(rw.interval)
		rw.segStart += rw.interval
		rw.pickVelocity()
	}
	return rw.advance(now - rw.segStart)
}

// fold reflects x into [lo, hi] as if it bounced on the edges.
func fold(x, lo, hi float64) float64 {
	span := hi - lo
	if span <= 0 {
		return lo
	}
	period := 2 * span
	m := math.Mod(x-lo, period)
	if m < 0 {
		m += period
	}
	if m > span {
		return lo + period - m
	}
	return lo + m
}
