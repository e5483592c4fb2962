// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package errmodel implements receive error models for network devices.

All models implement the [netdev.ErrorModel] interface and are attached
to exactly one device, corrupting frames on its receive path.

# Rate Error Model

The [*RateErrorModel] type draws a value from its own uniform random
variable for every frame and compares it against the probability
that the frame is corrupted given the configured rate and unit:

- [UnitPacket]: the frame is corrupted when U < rate;

- [UnitByte]: the frame is corrupted when U < 1 - (1 - rate)^bytes;

- [UnitBit]: the frame is corrupted when U < 1 - (1 - rate)^bits.

With the default unit (bytes) and a random variable bounded away from
zero, a small rate may never corrupt anything: this is expected.
*/
package errmodel

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/packet"
)

// Unit is the unit a [*RateErrorModel] rate applies to.
type Unit int

const (
	// UnitByte applies the rate to each byte.
	UnitByte = Unit(iota)

	// UnitBit applies the rate to each bit.
	UnitBit

	// UnitPacket applies the rate to each frame.
	UnitPacket
)

// String returns the string representation of the unit.
func (u Unit) String() string {
	switch u {
	case UnitBit:
		return "bit"
	case UnitPacket:
		return "packet"
	default:
		return "byte"
	}
}

// ErrInvalidUnit indicates an unknown unit name.
var ErrInvalidUnit = errors.New("invalid error model unit")

// ParseUnit parses a unit name.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "byte":
		return UnitByte, nil
	case "bit":
		return UnitBit, nil
	case "packet":
		return UnitPacket, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, s)
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (u *Unit) UnmarshalText(data []byte) error {
	value, err := ParseUnit(string(data))
	if err != nil {
		return err
	}
	*u = value
	return nil
}

// RateErrorModel corrupts frames according to a rate.
//
// Construct using [NewRateErrorModel].
type RateErrorModel struct {
	// ranvar is the random variable compared against the rate.
	ranvar engine.Uniform

	// rate is the error rate per unit.
	rate float64

	// rng is the model random stream.
	rng *rand.Rand

	// unit is the rate unit.
	unit Unit
}

var _ netdev.ErrorModel = &RateErrorModel{}

// NewRateErrorModel creates a new [*RateErrorModel] drawing from
// the given random stream.
func NewRateErrorModel(rate float64, unit Unit, ranvar engine.Uniform, rng *rand.Rand) *RateErrorModel {
	return &RateErrorModel{
		ranvar: ranvar,
		rate:   rate,
		rng:    rng,
		unit:   unit,
	}
}

// Rate returns the configured rate.
func (m *RateErrorModel) Rate() float64 {
	return m.rate
}

// Unit returns the configured unit.
func (m *RateErrorModel) Unit() Unit {
	return m.unit
}

// Probability returns the probability that a frame of the
// given size in bytes is corrupted.
func (m *RateErrorModel) Probability(size int) float64 {
	switch m.unit {
	case UnitPacket:
		return m.rate
	case UnitBit:
		return 1 - math.Pow(1-m.rate, float64(size)*8)
	default:
		return 1 - math.Pow(1-m.rate, float64(size))
	}
}

// Filter implements [netdev.ErrorModel].
func (m *RateErrorModel) Filter(frame *netdev.Frame) packet.Target {
	if m.ranvar.Sample(m.rng) < m.Probability(frame.Size()) {
		return packet.DROP
	}
	return packet.ACCEPT
}
