// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/rbmk-project/netscen/netsim/apps"
	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/packet"
	"github.com/rbmk-project/netscen/netsim/trace"
)

// Well-known ports of the installed applications.
const (
	SinkPort = 8080
	EchoPort = apps.DefaultEchoPort
)

// Applications contains the applications installed on a [*Topology].
type Applications struct {
	// Source is the on/off source or the echo client.
	Source apps.Application

	// Sink is the packet sink or the echo server.
	Sink apps.Application

	// Remote is the address the source sends to.
	Remote netip.AddrPort
}

// errNoSinkAddress indicates that the sink device has no address.
var errNoSinkAddress = errors.New("sink device has no address")

// InstallApplications installs the source on the last node of the
// sender segment and the sink on the last node of the receiver
// segment, and schedules both. The sink address is looked up from
// the sink device, not from the assignment order.
func InstallApplications(sim *engine.Simulator, t *Topology, addrs *Addressing, cfg *Config,
	sched Schedule, logger *slog.Logger, metrics *trace.Metrics) (*Applications, error) {
	sourceNode, _ := t.SourceNode()
	sinkNode, sinkDev := t.SinkNode()
	sinkAddr, found := addrs.Address(sinkDev)
	if !found {
		return nil, fmt.Errorf("netsim: %w", errNoSinkAddress)
	}

	out := &Applications{}
	switch cfg.Variant.Transport {
	case TransportTCP:
		out.Remote = netip.AddrPortFrom(sinkAddr, SinkPort)
		out.Sink = &apps.PacketSink{
			Stack:    sinkNode,
			Protocol: packet.IPProtocolTCP,
			Local:    netip.AddrPortFrom(netip.IPv4Unspecified(), SinkPort),
			Logger:   logger,
			Metrics:  metrics,
		}
		out.Source = &apps.OnOff{
			Stack:      sourceNode,
			Protocol:   packet.IPProtocolTCP,
			Remote:     out.Remote,
			OnTime:     cfg.Sender.OnTime,
			OffTime:    cfg.Sender.OffTime,
			PacketSize: cfg.Sender.PacketSize,
			DataRate:   cfg.Sender.DataRate,
			Logger:     logger,
			Metrics:    metrics,
		}

	case TransportUDP:
		count, err := PacketCount(cfg.Seconds)
		if err != nil {
			return nil, fmt.Errorf("netsim: %w", err)
		}
		out.Remote = netip.AddrPortFrom(sinkAddr, EchoPort)
		out.Sink = &apps.UDPEchoServer{
			Stack:   sinkNode,
			Port:    EchoPort,
			Logger:  logger,
			Metrics: metrics,
		}
		out.Source = &apps.UDPEchoClient{
			Stack:      sourceNode,
			Remote:     out.Remote,
			MaxPackets: count,
			Interval:   cfg.Sender.Interval,
			PacketSize: cfg.Sender.PacketSize,
			Logger:     logger,
			Metrics:    metrics,
		}

	default:
		return nil, fmt.Errorf("netsim: %w: transport %s", ErrUnknownVariant, cfg.Variant.Transport)
	}

	apps.Install(sim, logger, out.Sink, sched.SinkStart, sched.SinkStop)
	apps.Install(sim, logger, out.Source, sched.SourceStart, sched.SourceStop)
	return out, nil
}
