// SPDX-License-Identifier: GPL-3.0-or-later

package apps

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/netstack"
	"github.com/rbmk-project/netscen/netsim/trace"
)

// Default echo settings.
const (
	DefaultEchoPort     = 9
	DefaultEchoInterval = time.Second
)

// UDPEchoServer sends every datagram it receives back to the sender.
type UDPEchoServer struct {
	// Stack is the node stack.
	Stack *netstack.Stack

	// Port is the listening port.
	Port uint16

	// Logger is the optional logger.
	Logger *slog.Logger

	// Metrics is the optional metrics collector.
	Metrics *trace.Metrics

	// conn is the listening socket.
	conn *netstack.UDPConn

	// counters tracks the traffic.
	counters counters
}

var _ Application = &UDPEchoServer{}

// Name implements [Application].
func (s *UDPEchoServer) Name() string {
	return "echo-server"
}

// Stats implements [Application].
func (s *UDPEchoServer) Stats() Stats {
	return s.counters.stats
}

// Start implements [Application].
func (s *UDPEchoServer) Start() error {
	if s.conn != nil {
		return nil
	}
	conn, err := s.Stack.ListenUDP(netip.AddrPortFrom(netip.IPv4Unspecified(), s.Port))
	if err != nil {
		return fmt.Errorf("apps: echo server: %w", err)
	}
	s.counters = counters{app: s.Name(), metrics: s.Metrics}
	conn.SetReceiveCallback(s.echo)
	s.conn = conn
	return nil
}

func (s *UDPEchoServer) echo(conn *netstack.UDPConn, from netip.AddrPort, size int) {
	now := s.Stack.Simulator().Now()
	s.counters.received(size)
	s.log("server received", size, from, now)
	if err := conn.SendTo(size, from); err != nil {
		logError(s.Logger, "echoServerSendFailed", s.Name(), err, now)
		return
	}
	s.counters.sent(size)
	s.log("server sent", size, from, now)
}

func (s *UDPEchoServer) log(msg string, size int, peer netip.AddrPort, now time.Duration) {
	if s.Logger != nil {
		s.Logger.Info(
			msg,
			slog.Int("bytes", size),
			slog.String("peer", peer.Addr().String()),
			slog.Int("port", int(peer.Port())),
			slog.Duration("t", now),
		)
	}
}

// Stop implements [Application].
func (s *UDPEchoServer) Stop() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// UDPEchoClient sends MaxPackets datagrams, one every Interval, and
// counts the echoed replies.
type UDPEchoClient struct {
	// Stack is the node stack.
	Stack *netstack.Stack

	// Remote is the echo server address.
	Remote netip.AddrPort

	// MaxPackets is the number of datagrams to send.
	MaxPackets int

	// Interval is the time between datagrams.
	Interval time.Duration

	// PacketSize is the payload size of each datagram.
	PacketSize int

	// Logger is the optional logger.
	Logger *slog.Logger

	// Metrics is the optional metrics collector.
	Metrics *trace.Metrics

	// conn is the connected socket.
	conn *netstack.UDPConn

	// counters tracks the traffic.
	counters counters

	// attempts is the number of send attempts.
	attempts int

	// timer is the next send event.
	timer *engine.Timer
}

var _ Application = &UDPEchoClient{}

// Name implements [Application].
func (c *UDPEchoClient) Name() string {
	return "echo-client"
}

// Stats implements [Application].
func (c *UDPEchoClient) Stats() Stats {
	return c.counters.stats
}

// Start implements [Application].
func (c *UDPEchoClient) Start() error {
	if c.conn != nil {
		return nil
	}
	if c.PacketSize < 0 || c.MaxPackets < 0 {
		return fmt.Errorf("apps: echo client: %w", netstack.EINVAL)
	}
	conn, err := c.Stack.DialUDP(c.Remote)
	if err != nil {
		return fmt.Errorf("apps: echo client: %w", err)
	}
	c.counters = counters{app: c.Name(), metrics: c.Metrics}
	c.attempts = 0
	conn.SetReceiveCallback(func(_ *netstack.UDPConn, from netip.AddrPort, size int) {
		c.counters.received(size)
		c.log("client received", size, from)
	})
	c.conn = conn
	c.timer = c.Stack.Simulator().Schedule(0, c.send)
	return nil
}

func (c *UDPEchoClient) send() {
	if c.attempts >= c.MaxPackets {
		return
	}
	c.attempts++
	if err := c.conn.Send(c.PacketSize); err != nil {
		logError(c.Logger, "echoClientSendFailed", c.Name(), err, c.Stack.Simulator().Now())
	} else {
		c.counters.sent(c.PacketSize)
		c.log("client sent", c.PacketSize, c.Remote)
	}
	if c.attempts < c.MaxPackets {
		c.timer = c.Stack.Simulator().Schedule(c.Interval, c.send)
	}
}

func (c *UDPEchoClient) log(msg string, size int, peer netip.AddrPort) {
	if c.Logger != nil {
		c.Logger.Info(
			msg,
			slog.Int("bytes", size),
			slog.String("peer", peer.Addr().String()),
			slog.Int("port", int(peer.Port())),
			slog.Duration("t", c.Stack.Simulator().Now()),
		)
	}
}

// Stop implements [Application].
func (c *UDPEchoClient) Stop() {
	c.timer.Cancel()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
