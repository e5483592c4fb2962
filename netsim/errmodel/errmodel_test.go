// SPDX-License-Identifier: GPL-3.0-or-later

package errmodel_test

import (
	"net/netip"
	"testing"

	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/errmodel"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFrame(payload int) *netdev.Frame {
	return &netdev.Frame{
		LinkType: packet.LinkPPP,
		Packet: &packet.Packet{
			SrcAddr:     netip.MustParseAddr("10.1.1.1"),
			DstAddr:     netip.MustParseAddr("10.1.1.2"),
			IPProtocol:  packet.IPProtocolUDP,
			PayloadSize: payload,
		},
	}
}

func dropRatio(m *errmodel.RateErrorModel, frame *netdev.Frame, n int) float64 {
	drops := 0
	for i := 0; i < n; i++ {
		if m.Filter(frame) == packet.DROP {
			drops++
		}
	}
	return float64(drops) / float64(n)
}

func TestRateErrorModel(t *testing.T) {
	streams := engine.NewStreams(1, 1)

	t.Run("packet unit drops at the configured rate", func(t *testing.T) {
		m := errmodel.NewRateErrorModel(0.25, errmodel.UnitPacket, engine.Uniform{Min: 0, Max: 1}, streams.Stream("packet"))
		assert.InDelta(t, 0.25, dropRatio(m, newFrame(100), 20000), 0.02)
	})

	t.Run("byte unit depends on the frame size", func(t *testing.T) {
		m := errmodel.NewRateErrorModel(0.001, errmodel.UnitByte, engine.Uniform{Min: 0, Max: 1}, streams.Stream("byte"))
		frame := newFrame(970)
		require.Equal(t, 1000, frame.Size())
		assert.InDelta(t, 0.6323, m.Probability(1000), 0.001)
		assert.InDelta(t, 0.6323, dropRatio(m, frame, 20000), 0.02)
	})

	t.Run("bit unit is stricter than byte unit", func(t *testing.T) {
		bits := errmodel.NewRateErrorModel(0.0001, errmodel.UnitBit, engine.Uniform{Min: 0, Max: 1}, streams.Stream("bit"))
		bytes := errmodel.NewRateErrorModel(0.0001, errmodel.UnitByte, engine.Uniform{Min: 0, Max: 1}, streams.Stream("bit"))
		assert.Greater(t, bits.Probability(100), bytes.Probability(100))
	})

	t.Run("a random variable above the probability never drops", func(t *testing.T) {
		m := errmodel.NewRateErrorModel(0.001, errmodel.UnitByte, engine.Uniform{Min: 0.8, Max: 1.0}, streams.Stream("default"))
		assert.Equal(t, 0.0, dropRatio(m, newFrame(1024), 1000))
	})

	t.Run("zero rate never drops", func(t *testing.T) {
		m := errmodel.NewRateErrorModel(0, errmodel.UnitPacket, engine.Uniform{Min: 0, Max: 1}, streams.Stream("zero"))
		assert.Equal(t, 0.0, dropRatio(m, newFrame(1024), 1000))
	})

	t.Run("same stream same decisions", func(t *testing.T) {
		decisions := func() []packet.Target {
			m := errmodel.NewRateErrorModel(0.5, errmodel.UnitPacket, engine.Uniform{Min: 0, Max: 1},
				engine.NewStreams(4, 2).Stream("receiver"))
			var out []packet.Target
			for i := 0; i < 50; i++ {
				out = append(out, m.Filter(newFrame(10)))
			}
			return out
		}
		assert.Equal(t, decisions(), decisions())
	})
}

func TestParseUnit(t *testing.T) {
	for input, want := range map[string]errmodel.Unit{
		"":       errmodel.UnitByte,
		"byte":   errmodel.UnitByte,
		"BIT":    errmodel.UnitBit,
		"packet": errmodel.UnitPacket,
	} {
		got, err := errmodel.ParseUnit(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := errmodel.ParseUnit("frame")
	assert.ErrorIs(t, err, errmodel.ErrInvalidUnit)
}
