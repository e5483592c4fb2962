// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"hash/fnv"
	"math/rand/v2"
)

// Streams hands out independent, named pseudo-random streams.
//
// Each stream depends only on (seed, run, name), so creating streams
// in a different order or in another [*Simulator] in the same process
// does not change the values they produce.
type Streams struct {
	seed uint64
	run  uint64
}

// NewStreams creates a new [*Streams].
func NewStreams(seed, run uint64) *Streams {
	return &Streams{seed: seed, run: run}
}

// Stream returns the named stream.
func (s *Streams) Stream(name string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewPCG(s.seed, h.Sum64()^mix(s.run)))
}

// mix spreads the bits of the run number (splitmix64 finalizer).
func mix(v uint64) uint64 {
	v += 0x9e3779b97f4a7c15
	v = (v ^ (v >> 30)) * 0xbf58476d1ce4e5b9
	v = (v ^ (v >> 27)) * 0x94d049bb133111eb
	return v ^ (v >> 31)
}

// Uniform is a uniform random variable over [Min, Max).
type Uniform struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max" validate:"gtefield=Min"`
}

// Sample draws a value from the given stream.
func (u Uniform) Sample(r *rand.Rand) float64 {
	return u.Min + r.Float64()*(u.Max-u.Min)
}
