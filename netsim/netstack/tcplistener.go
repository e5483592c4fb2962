//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// TCP listener.
//

package netstack

import (
	"net"
	"net/netip"

	"github.com/rbmk-project/netscen/netsim/packet"
)

// TCPListener is a TCP listener.
//
// The zero value is invalid; construct using [*Stack.ListenTCP].
type TCPListener struct {
	addr     PortAddr
	closed   bool
	onAccept func(conn *TCPConn)
	stack    *Stack
}

// ListenTCP opens a TCP listener bound to laddr. An unspecified
// address binds all the interfaces.
func (ns *Stack) ListenTCP(laddr netip.AddrPort) (*TCPListener, error) {
	local, err := ns.bind(packet.IPProtocolTCP, laddr)
	if err != nil {
		return nil, err
	}
	tl := &TCPListener{
		addr:  PortAddr{LocalAddr: local, Protocol: packet.IPProtocolTCP},
		stack: ns,
	}
	if err := ns.openPort(tl.addr, tl); err != nil {
		return nil, err
	}
	return tl, nil
}

// SetAcceptCallback sets the function invoked for each
// connection completing the handshake.
func (tl *TCPListener) SetAcceptCallback(fn func(conn *TCPConn)) {
	tl.onAccept = fn
}

// Addr returns the listening address.
func (tl *TCPListener) Addr() net.Addr {
	return &Addr{tl.addr.LocalAddr, tl.addr.Protocol}
}

// Close stops accepting connections. Accepted connections
// are not affected.
func (tl *TCPListener) Close() error {
	if !tl.closed {
		tl.closed = true
		tl.stack.closePort(tl.addr)
	}
	return nil
}

// deliver implements endpoint.
//
// Segments reaching the listener belong to no connection: a SYN
// opens a new one and anything else is reset.
func (tl *TCPListener) deliver(pkt *packet.Packet) {
	if pkt.Flags&(packet.TCPFlagSYN|packet.TCPFlagACK) != packet.TCPFlagSYN {
		if pkt.Flags&packet.TCPFlagRST == 0 {
			tl.stack.reset(pkt)
		}
		return
	}
	laddr := netip.AddrPortFrom(pkt.DstAddr, pkt.DstPort)
	raddr := netip.AddrPortFrom(pkt.SrcAddr, pkt.SrcPort)
	conn, err := tl.stack.newTCPConn(PortAddr{LocalAddr: laddr, Protocol: packet.IPProtocolTCP, RemoteAddr: raddr})
	if err != nil {
		return
	}
	conn.listener = tl
	conn.state = tcpSynReceived
	conn.rcvNxt = pkt.Seq + 1
	conn.sendSegment(packet.TCPFlagSYN|packet.TCPFlagACK, conn.iss, 0)
	conn.advance(1)
	conn.armTimer()
}

// accept hands an established connection to the application.
func (tl *TCPListener) accept(conn *TCPConn) {
	if tl.onAccept != nil {
		tl.onAccept(conn)
	}
}
