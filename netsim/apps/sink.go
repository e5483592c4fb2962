// SPDX-License-Identifier: GPL-3.0-or-later

package apps

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/rbmk-project/netscen/netsim/netstack"
	"github.com/rbmk-project/netscen/netsim/packet"
	"github.com/rbmk-project/netscen/netsim/trace"
)

// PacketSink consumes the traffic sent to its address.
type PacketSink struct {
	// Stack is the node stack.
	Stack *netstack.Stack

	// Protocol is either [packet.IPProtocolTCP] or [packet.IPProtocolUDP].
	Protocol packet.IPProtocol

	// Local is the listening address.
	Local netip.AddrPort

	// Logger is the optional logger.
	Logger *slog.Logger

	// Metrics is the optional metrics collector.
	Metrics *trace.Metrics

	// accepted contains the accepted TCP connections still open.
	accepted map[*netstack.TCPConn]bool

	// counters tracks what has been received.
	counters counters

	// closeSocket closes the listening socket.
	closeSocket func()

	// running is true between Start and Stop.
	running bool
}

var _ Application = &PacketSink{}

// Name implements [Application].
func (ps *PacketSink) Name() string {
	return "sink"
}

// Stats implements [Application].
func (ps *PacketSink) Stats() Stats {
	return ps.counters.stats
}

// TotalRx returns the total bytes received.
func (ps *PacketSink) TotalRx() int {
	return ps.counters.stats.BytesReceived
}

// Start implements [Application].
func (ps *PacketSink) Start() error {
	if ps.running {
		return nil
	}
	ps.counters = counters{app: ps.Name(), metrics: ps.Metrics}
	switch ps.Protocol {
	case packet.IPProtocolTCP:
		listener, err := ps.Stack.ListenTCP(ps.Local)
		if err != nil {
			return fmt.Errorf("apps: sink: %w", err)
		}
		ps.accepted = make(map[*netstack.TCPConn]bool)
		listener.SetAcceptCallback(ps.accept)
		ps.closeSocket = func() { _ = listener.Close() }

	case packet.IPProtocolUDP:
		conn, err := ps.Stack.ListenUDP(ps.Local)
		if err != nil {
			return fmt.Errorf("apps: sink: %w", err)
		}
		conn.SetReceiveCallback(func(_ *netstack.UDPConn, from netip.AddrPort, size int) {
			ps.received(from.String(), size)
		})
		ps.closeSocket = func() { _ = conn.Close() }

	default:
		return fmt.Errorf("apps: sink: %w", netstack.EINVAL)
	}
	ps.running = true
	return nil
}

func (ps *PacketSink) accept(conn *netstack.TCPConn) {
	ps.accepted[conn] = true
	from := conn.RemoteAddr().String()
	if ps.Logger != nil {
		ps.Logger.Debug("sinkAccept", slog.String("from", from), slog.Duration("t", ps.Stack.Simulator().Now()))
	}
	conn.SetReceiveCallback(func(_ *netstack.TCPConn, size int) {
		ps.received(from, size)
	})
	conn.SetCloseCallback(func(conn *netstack.TCPConn, err error) {
		delete(ps.accepted, conn)
		if err != nil {
			logError(ps.Logger, "sinkConnClosed", ps.Name(), err, ps.Stack.Simulator().Now())
		}
	})
}

func (ps *PacketSink) received(from string, size int) {
	ps.counters.received(size)
	if ps.Logger != nil {
		ps.Logger.Debug(
			"sinkReceived",
			slog.Int("bytes", size),
			slog.String("from", from),
			slog.Int("totalRx", ps.counters.stats.BytesReceived),
			slog.Duration("t", ps.Stack.Simulator().Now()),
		)
	}
}

// Stop implements [Application]. It closes the listening
// socket and the accepted connections.
func (ps *PacketSink) Stop() {
	if !ps.running {
		return
	}
	ps.running = false
	ps.closeSocket()
	for conn := range ps.accepted {
		_ = conn.Close()
	}
}
