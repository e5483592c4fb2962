//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// UDP sockets.
//

package netstack

import (
	"net"
	"net/netip"

	"github.com/rbmk-project/netscen/netsim/packet"
)

// UDPReceiveFunc is invoked for each datagram a [*UDPConn] receives.
type UDPReceiveFunc func(conn *UDPConn, from netip.AddrPort, size int)

// UDPConn is a UDP socket.
//
// The zero value is invalid; construct using [*Stack.ListenUDP]
// or [*Stack.DialUDP].
type UDPConn struct {
	addr   PortAddr
	closed bool
	rx     UDPReceiveFunc
	stack  *Stack
}

// ListenUDP opens a UDP socket bound to laddr. An unspecified address
// binds all the interfaces and a zero port picks an ephemeral port.
func (ns *Stack) ListenUDP(laddr netip.AddrPort) (*UDPConn, error) {
	local, err := ns.bind(packet.IPProtocolUDP, laddr)
	if err != nil {
		return nil, err
	}
	return ns.newUDPConn(PortAddr{LocalAddr: local, Protocol: packet.IPProtocolUDP})
}

// DialUDP opens a UDP socket connected to raddr.
func (ns *Stack) DialUDP(raddr netip.AddrPort) (*UDPConn, error) {
	local, err := ns.connect(packet.IPProtocolUDP, raddr)
	if err != nil {
		return nil, err
	}
	return ns.newUDPConn(PortAddr{LocalAddr: local, Protocol: packet.IPProtocolUDP, RemoteAddr: raddr})
}

// newUDPConn registers a new [*UDPConn].
func (ns *Stack) newUDPConn(addr PortAddr) (*UDPConn, error) {
	conn := &UDPConn{addr: addr, stack: ns}
	if err := ns.openPort(addr, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// SetReceiveCallback sets the function receiving datagrams.
func (c *UDPConn) SetReceiveCallback(fn UDPReceiveFunc) {
	c.rx = fn
}

// LocalAddr returns the local address.
func (c *UDPConn) LocalAddr() net.Addr {
	return &Addr{c.addr.LocalAddr, c.addr.Protocol}
}

// RemoteAddr returns the remote address.
func (c *UDPConn) RemoteAddr() net.Addr {
	return &Addr{c.addr.RemoteAddr, c.addr.Protocol}
}

// Send sends a datagram of the given payload size to the connected peer.
func (c *UDPConn) Send(size int) error {
	if !c.addr.RemoteAddr.IsValid() {
		return ENOTCONN
	}
	return c.SendTo(size, c.addr.RemoteAddr)
}

// SendTo sends a datagram of the given payload size to raddr.
func (c *UDPConn) SendTo(size int, raddr netip.AddrPort) error {
	if c.closed {
		return net.ErrClosed
	}
	if size < 0 || !raddr.IsValid() {
		return EINVAL
	}
	src := c.addr.LocalAddr.Addr()
	if src.IsUnspecified() {
		addr, err := c.stack.sourceAddr(raddr.Addr())
		if err != nil {
			return err
		}
		src = addr
	}
	return c.stack.output(&packet.Packet{
		SrcAddr:     src,
		DstAddr:     raddr.Addr(),
		IPProtocol:  packet.IPProtocolUDP,
		SrcPort:     c.addr.LocalAddr.Port(),
		DstPort:     raddr.Port(),
		PayloadSize: size,
	})
}

// Close closes the socket.
func (c *UDPConn) Close() error {
	if !c.closed {
		c.closed = true
		c.stack.closePort(c.addr)
	}
	return nil
}

// deliver implements endpoint.
//
// Connected sockets discard datagrams from other peers.
func (c *UDPConn) deliver(pkt *packet.Packet) {
	from := netip.AddrPortFrom(pkt.SrcAddr, pkt.SrcPort)
	if c.addr.RemoteAddr.IsValid() && from != c.addr.RemoteAddr {
		return
	}
	if c.rx != nil {
		c.rx(c, from, pkt.PayloadSize)
	}
}
