// SPDX-License-Identifier: GPL-3.0-or-later

package apps_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rbmk-project/netscen/netsim/apps"
	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/link"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/netstack"
	"github.com/rbmk-project/netscen/netsim/packet"
	"github.com/rbmk-project/netscen/netsim/router"
	"github.com/rbmk-project/netscen/netsim/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPair returns two stacks, 10.1.1.1 and 10.1.1.2, connected
// by a 5Mbps point-to-point link with 2ms delay.
func newPair(t *testing.T) (*engine.Simulator, *netstack.Stack, *netstack.Stack) {
	t.Helper()
	sim := engine.New(1, 1)
	uids := &packet.UIDAllocator{}
	var macs netdev.MACAllocator
	left, right := netstack.New(sim, 0, uids), netstack.New(sim, 1, uids)
	ldev := left.NewDevice(macs.Next(), packet.LinkPPP)
	rdev := right.NewDevice(macs.Next(), packet.LinkPPP)
	link.New(sim, ldev, rdev, 5_000_000, netdev.Delay(2*time.Millisecond))
	lp := netip.MustParsePrefix("10.1.1.1/24")
	rp := netip.MustParsePrefix("10.1.1.2/24")
	require.NoError(t, left.SetAddress(ldev, lp))
	require.NoError(t, right.SetAddress(rdev, rp))
	tables, neighbors := router.Compute([]router.Segment{{
		{Node: 0, Index: ldev.Index(), Addr: lp.Addr(), Prefix: lp, MAC: ldev.MAC()},
		{Node: 1, Index: rdev.Index(), Addr: rp.Addr(), Prefix: rp, MAC: rdev.MAC()},
	}})
	left.SetRoutes(tables[0], neighbors)
	right.SetRoutes(tables[1], neighbors)
	return sim, left, right
}

func TestUDPEcho(t *testing.T) {
	sim, left, right := newPair(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	metrics, err := trace.NewMetrics(nil)
	require.NoError(t, err)

	server := &apps.UDPEchoServer{Stack: right, Port: apps.DefaultEchoPort, Logger: logger, Metrics: metrics}
	client := &apps.UDPEchoClient{
		Stack:      left,
		Remote:     netip.MustParseAddrPort("10.1.1.2:9"),
		MaxPackets: 3,
		Interval:   apps.DefaultEchoInterval,
		PacketSize: 1024,
		Logger:     logger,
		Metrics:    metrics,
	}
	apps.Install(sim, logger, server, time.Second, 11*time.Second)
	apps.Install(sim, logger, client, 2*time.Second, 10*time.Second)
	require.NoError(t, sim.Run(context.Background(), 11*time.Second))

	assert.Equal(t, apps.Stats{PacketsSent: 3, BytesSent: 3072, PacketsReceived: 3, BytesReceived: 3072}, client.Stats())
	assert.Equal(t, apps.Stats{PacketsSent: 3, BytesSent: 3072, PacketsReceived: 3, BytesReceived: 3072}, server.Stats())
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.AppPackets.WithLabelValues("echo-client", "rx")))
	assert.Contains(t, logs.String(), "msg=\"client sent\" bytes=1024 peer=10.1.1.2 port=9 t=2s")
	assert.Contains(t, logs.String(), "msg=\"server received\" bytes=1024 peer=10.1.1.1 port=49152")
}

func TestOnOff(t *testing.T) {
	t.Run("tcp into a packet sink", func(t *testing.T) {
		sim, left, right := newPair(t)
		sink := &apps.PacketSink{
			Stack:    right,
			Protocol: packet.IPProtocolTCP,
			Local:    netip.MustParseAddrPort("0.0.0.0:8080"),
		}
		source := &apps.OnOff{
			Stack:      left,
			Protocol:   packet.IPProtocolTCP,
			Remote:     netip.MustParseAddrPort("10.1.1.2:8080"),
			OnTime:     apps.DefaultOnTime,
			OffTime:    apps.DefaultOffTime,
			PacketSize: apps.DefaultPacketSize,
			DataRate:   apps.DefaultDataRate,
		}
		apps.Install(sim, nil, sink, time.Second, 11*time.Second)
		apps.Install(sim, nil, source, 2*time.Second, 10*time.Second)
		require.NoError(t, sim.Run(context.Background(), 11*time.Second))

		// Four on periods of about 122 packets each, the last one
		// cut short by the stop time.
		stats := source.Stats()
		assert.InDelta(t, 488, stats.PacketsSent, 4)
		assert.Equal(t, stats.PacketsSent*apps.DefaultPacketSize, stats.BytesSent)
		assert.Equal(t, stats.BytesSent, sink.TotalRx())
	})

	t.Run("udp into a packet sink", func(t *testing.T) {
		sim, left, right := newPair(t)
		sink := &apps.PacketSink{
			Stack:    right,
			Protocol: packet.IPProtocolUDP,
			Local:    netip.MustParseAddrPort("0.0.0.0:8080"),
		}
		source := &apps.OnOff{
			Stack:      left,
			Protocol:   packet.IPProtocolUDP,
			Remote:     netip.MustParseAddrPort("10.1.1.2:8080"),
			OnTime:     time.Second,
			OffTime:    time.Second,
			PacketSize: 875,
			DataRate:   1_000_000,
		}
		apps.Install(sim, nil, sink, 0, 5*time.Second)
		apps.Install(sim, nil, source, 0, 4500*time.Millisecond)
		require.NoError(t, sim.Run(context.Background(), 5*time.Second))

		// One packet every 7ms during [1s, 2s) and [3s, 4s). The 6ms
		// paced when the first period ends are credited to the second.
		assert.Equal(t, 142+143, source.Stats().PacketsSent)
		assert.Equal(t, 285*875, sink.TotalRx())
		assert.Equal(t, 285, sink.Stats().PacketsReceived)
	})

	t.Run("max bytes", func(t *testing.T) {
		sim, left, _ := newPair(t)
		source := &apps.OnOff{
			Stack:      left,
			Protocol:   packet.IPProtocolUDP,
			Remote:     netip.MustParseAddrPort("10.1.1.2:8080"),
			OnTime:     time.Second,
			OffTime:    0,
			PacketSize: 100,
			DataRate:   80_000,
			MaxBytes:   1000,
		}
		apps.Install(sim, nil, source, 0, 5*time.Second)
		require.NoError(t, sim.Run(context.Background(), 5*time.Second))
		assert.Equal(t, 10, source.Stats().PacketsSent)
	})

	t.Run("invalid settings", func(t *testing.T) {
		_, left, _ := newPair(t)
		source := &apps.OnOff{Stack: left, Protocol: packet.IPProtocolTCP, PacketSize: 0, DataRate: 1}
		assert.ErrorIs(t, source.Start(), netstack.EINVAL)
		source = &apps.OnOff{Stack: left, Protocol: packet.IPProtocol(42), PacketSize: 1, DataRate: 1}
		assert.ErrorIs(t, source.Start(), netstack.EINVAL)
		source.Stop()
	})
}

func TestInstall(t *testing.T) {
	sim, _, right := newPair(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	first := &apps.UDPEchoServer{Stack: right, Port: 9}
	second := &apps.UDPEchoServer{Stack: right, Port: 9}
	apps.Install(sim, logger, first, time.Second, 3*time.Second)
	apps.Install(sim, logger, second, 2*time.Second, 3*time.Second)
	require.NoError(t, sim.Run(context.Background(), 4*time.Second))

	assert.Contains(t, logs.String(), "msg=appStart app=echo-server t=1s")
	assert.Contains(t, logs.String(), "msg=appStartFailed app=echo-server")
	assert.Contains(t, logs.String(), "errClass=EADDRINUSE")
	assert.Contains(t, logs.String(), "msg=appStop app=echo-server t=3s")
}
