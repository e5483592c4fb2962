// SPDX-License-Identifier: GPL-3.0-or-later

package netstack_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/link"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/netstack"
	"github.com/rbmk-project/netscen/netsim/packet"
	"github.com/rbmk-project/netscen/netsim/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain is a line of stacks connected by point-to-point links, where
// the i-th link uses the 10.1.<i+1>.0/24 prefix.
type chain struct {
	sim    *engine.Simulator
	stacks []*netstack.Stack
	links  []*link.Link
}

func newChain(t *testing.T, n int) *chain {
	t.Helper()
	sim := engine.New(1, 1)
	uids := &packet.UIDAllocator{}
	var macs netdev.MACAllocator
	c := &chain{sim: sim}
	for i := 0; i < n; i++ {
		c.stacks = append(c.stacks, netstack.New(sim, i, uids))
	}
	var segments []router.Segment
	for i := 0; i+1 < n; i++ {
		left := c.stacks[i].NewDevice(macs.Next(), packet.LinkPPP)
		right := c.stacks[i+1].NewDevice(macs.Next(), packet.LinkPPP)
		c.links = append(c.links, link.New(sim, left, right, 5_000_000, netdev.Delay(2*time.Millisecond)))
		base := netip.AddrFrom4([4]byte{10, 1, byte(i + 1), 0})
		lp := netip.PrefixFrom(base.Next(), 24)
		rp := netip.PrefixFrom(base.Next().Next(), 24)
		require.NoError(t, c.stacks[i].SetAddress(left, lp))
		require.NoError(t, c.stacks[i+1].SetAddress(right, rp))
		segments = append(segments, router.Segment{
			{Node: i, Index: left.Index(), Addr: lp.Addr(), Prefix: lp, MAC: left.MAC()},
			{Node: i + 1, Index: right.Index(), Addr: rp.Addr(), Prefix: rp, MAC: right.MAC()},
		})
	}
	tables, neighbors := router.Compute(segments)
	for i, stack := range c.stacks {
		stack.SetRoutes(tables[i], neighbors)
	}
	return c
}

func (c *chain) run(t *testing.T, stop time.Duration) {
	t.Helper()
	require.NoError(t, c.sim.Run(context.Background(), stop))
}

// dropNth drops the data frames whose ordinal is listed.
type dropNth struct {
	count int
	drop  map[int]bool
}

func (d *dropNth) Filter(frame *netdev.Frame) packet.Target {
	if frame.Packet.PayloadSize <= 0 {
		return packet.ACCEPT
	}
	d.count++
	if d.drop[d.count] {
		return packet.DROP
	}
	return packet.ACCEPT
}

func TestUDP(t *testing.T) {
	t.Run("datagrams are forwarded across routers", func(t *testing.T) {
		c := newChain(t, 3)
		server, err := c.stacks[2].ListenUDP(netip.MustParseAddrPort("0.0.0.0:9"))
		require.NoError(t, err)
		var from netip.AddrPort
		var size int
		server.SetReceiveCallback(func(_ *netstack.UDPConn, src netip.AddrPort, n int) {
			from, size = src, n
		})
		var ttl uint8
		c.stacks[2].Interfaces()[0].Device.Subscribe(func(ev *netdev.TraceEvent) {
			if ev.Kind == netdev.TraceReceive {
				ttl = ev.Frame.Packet.TTL
			}
		})

		client, err := c.stacks[0].DialUDP(netip.MustParseAddrPort("10.1.2.2:9"))
		require.NoError(t, err)
		require.NoError(t, client.Send(1024))
		c.run(t, time.Second)

		assert.Equal(t, 1024, size)
		assert.Equal(t, netip.MustParseAddrPort("10.1.1.1:49152"), from)
		assert.Equal(t, uint8(packet.DefaultTTL-1), ttl)
	})

	t.Run("echo", func(t *testing.T) {
		c := newChain(t, 2)
		server, err := c.stacks[1].ListenUDP(netip.MustParseAddrPort("0.0.0.0:9"))
		require.NoError(t, err)
		server.SetReceiveCallback(func(conn *netstack.UDPConn, src netip.AddrPort, n int) {
			assert.NoError(t, conn.SendTo(n, src))
		})

		client, err := c.stacks[0].DialUDP(netip.MustParseAddrPort("10.1.1.2:9"))
		require.NoError(t, err)
		echoed := 0
		client.SetReceiveCallback(func(_ *netstack.UDPConn, _ netip.AddrPort, n int) { echoed += n })
		require.NoError(t, client.Send(512))
		c.run(t, time.Second)

		assert.Equal(t, 512, echoed)
		assert.Equal(t, "10.1.1.1:49152", client.LocalAddr().String())
		assert.Equal(t, "udp", client.RemoteAddr().Network())
	})

	t.Run("errors", func(t *testing.T) {
		c := newChain(t, 2)
		_, err := c.stacks[0].ListenUDP(netip.MustParseAddrPort("10.9.9.9:9"))
		assert.ErrorIs(t, err, netstack.EADDRNOTAVAIL)

		_, err = c.stacks[0].DialUDP(netip.MustParseAddrPort("192.168.1.1:9"))
		assert.ErrorIs(t, err, netstack.EHOSTUNREACH)

		_, err = c.stacks[0].ListenUDP(netip.MustParseAddrPort("0.0.0.0:9"))
		require.NoError(t, err)
		_, err = c.stacks[0].ListenUDP(netip.MustParseAddrPort("0.0.0.0:9"))
		assert.ErrorIs(t, err, netstack.EADDRINUSE)

		unconnected, err := c.stacks[0].ListenUDP(netip.AddrPort{})
		require.NoError(t, err)
		assert.ErrorIs(t, unconnected.Send(10), netstack.ENOTCONN)
		require.NoError(t, unconnected.Close())
	})
}

func TestTCP(t *testing.T) {
	// transfer sends size bytes from stacks[0] to the last stack and
	// returns the bytes received and the close errors.
	transfer := func(t *testing.T, c *chain, size int, stop time.Duration) (int, []error) {
		t.Helper()
		last := c.stacks[len(c.stacks)-1]
		listener, err := last.ListenTCP(netip.MustParseAddrPort("0.0.0.0:8080"))
		require.NoError(t, err)
		received := 0
		var closeErrs []error
		listener.SetAcceptCallback(func(conn *netstack.TCPConn) {
			conn.SetReceiveCallback(func(_ *netstack.TCPConn, n int) { received += n })
			conn.SetCloseCallback(func(_ *netstack.TCPConn, err error) { closeErrs = append(closeErrs, err) })
		})

		raddr := netip.AddrPortFrom(last.Addresses()[0], 8080)
		client, err := c.stacks[0].DialTCP(raddr)
		require.NoError(t, err)
		client.SetConnectCallback(func(conn *netstack.TCPConn) {
			assert.True(t, conn.Established())
		})
		client.SetCloseCallback(func(_ *netstack.TCPConn, err error) { closeErrs = append(closeErrs, err) })
		require.NoError(t, client.Send(size))
		require.NoError(t, client.Close())

		c.run(t, stop)
		assert.True(t, client.Closed())
		return received, closeErrs
	}

	t.Run("delivers every byte and closes", func(t *testing.T) {
		c := newChain(t, 3)
		received, errs := transfer(t, c, 100_000, 30*time.Second)
		assert.Equal(t, 100_000, received)
		assert.Equal(t, []error{nil, nil}, errs)
	})

	t.Run("recovers from losses", func(t *testing.T) {
		c := newChain(t, 2)
		dev := c.stacks[1].Interfaces()[0].Device
		dev.SetReceiveErrorModel(&dropNth{drop: map[int]bool{5: true, 6: true, 20: true}})
		var drops int
		dev.Subscribe(func(ev *netdev.TraceEvent) {
			if ev.Kind == netdev.TracePhyRxDrop {
				drops++
			}
		})
		received, errs := transfer(t, c, 20_000, 60*time.Second)
		assert.Equal(t, 20_000, received)
		assert.Equal(t, 3, drops)
		assert.Equal(t, []error{nil, nil}, errs)
	})

	t.Run("connection refused", func(t *testing.T) {
		c := newChain(t, 2)
		client, err := c.stacks[0].DialTCP(netip.MustParseAddrPort("10.1.1.2:8080"))
		require.NoError(t, err)
		var closeErr error
		client.SetCloseCallback(func(_ *netstack.TCPConn, err error) { closeErr = err })
		c.run(t, 5*time.Second)
		assert.ErrorIs(t, closeErr, netstack.ECONNREFUSED)
		assert.True(t, client.Closed())
	})

	t.Run("unreachable peers time out", func(t *testing.T) {
		c := newChain(t, 2)
		c.stacks[1].Interfaces()[0].Device.SetReceiveErrorModel(&dropAll{})
		client, err := c.stacks[0].DialTCP(netip.MustParseAddrPort("10.1.1.2:8080"))
		require.NoError(t, err)
		var closeErr error
		client.SetCloseCallback(func(_ *netstack.TCPConn, err error) { closeErr = err })
		c.run(t, 200*time.Second)
		assert.ErrorIs(t, closeErr, netstack.ETIMEDOUT)
	})

	t.Run("the send buffer is bounded", func(t *testing.T) {
		c := newChain(t, 2)
		client, err := c.stacks[0].DialTCP(netip.MustParseAddrPort("10.1.1.2:8080"))
		require.NoError(t, err)
		require.NoError(t, client.Send(netstack.TCPSendBuffer))
		assert.Equal(t, netstack.TCPSendBuffer, client.Buffered())
		assert.ErrorIs(t, client.Send(1), netstack.ENOBUFS)
		assert.ErrorIs(t, client.Send(0), netstack.EINVAL)
		require.NoError(t, client.Close())
		assert.ErrorIs(t, client.Send(1), netstack.ENOTCONN)
	})
}

// dropAll drops every frame.
type dropAll struct{}

func (*dropAll) Filter(*netdev.Frame) packet.Target {
	return packet.DROP
}
