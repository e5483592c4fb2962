// SPDX-License-Identifier: GPL-3.0-or-later

package link_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/link"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPacket(size int) *packet.Packet {
	return &packet.Packet{
		TTL:         packet.DefaultTTL,
		SrcAddr:     netip.MustParseAddr("10.1.1.1"),
		DstAddr:     netip.MustParseAddr("10.1.1.2"),
		IPProtocol:  packet.IPProtocolUDP,
		PayloadSize: size,
	}
}

func TestLink(t *testing.T) {
	setup := func() (*engine.Simulator, *netdev.Device, *netdev.Device, *link.Link) {
		sim := engine.New(1, 1)
		var macs netdev.MACAllocator
		left := netdev.New(sim, 0, 0, macs.Next(), packet.LinkPPP)
		right := netdev.New(sim, 1, 0, macs.Next(), packet.LinkPPP)
		lnk := link.New(sim, left, right, 1_000_000, netdev.Delay(50*time.Millisecond))
		return sim, left, right, lnk
	}

	t.Run("delivery after tx time plus delay", func(t *testing.T) {
		sim, left, right, _ := setup()
		var arrivals []time.Duration
		right.SetReceiveCallback(func(*netdev.Device, *packet.Packet) {
			arrivals = append(arrivals, sim.Now())
		})

		// 2 (ppp) + 20 (ipv4) + 8 (udp) + 970 = 1000 bytes = 8ms at 1Mbps.
		left.Send(newPacket(970), right.MAC())
		left.Send(newPacket(970), right.MAC())
		require.NoError(t, sim.Run(context.Background(), time.Second))

		assert.Equal(t, []time.Duration{
			58 * time.Millisecond,
			66 * time.Millisecond,
		}, arrivals)
	})

	t.Run("the link is full duplex", func(t *testing.T) {
		sim, left, right, _ := setup()
		var leftAt, rightAt time.Duration
		left.SetReceiveCallback(func(*netdev.Device, *packet.Packet) { leftAt = sim.Now() })
		right.SetReceiveCallback(func(*netdev.Device, *packet.Packet) { rightAt = sim.Now() })

		left.Send(newPacket(970), right.MAC())
		right.Send(newPacket(970), left.MAC())
		require.NoError(t, sim.Run(context.Background(), time.Second))

		assert.Equal(t, 58*time.Millisecond, leftAt)
		assert.Equal(t, 58*time.Millisecond, rightAt)
	})

	t.Run("peer lookup", func(t *testing.T) {
		sim, left, right, lnk := setup()
		peer, err := lnk.Peer(left)
		require.NoError(t, err)
		assert.Same(t, right, peer)

		var macs netdev.MACAllocator
		stranger := netdev.New(sim, 2, 0, macs.Next(), packet.LinkPPP)
		_, err = lnk.Peer(stranger)
		assert.ErrorIs(t, err, link.ErrNotAttached)
	})
}
