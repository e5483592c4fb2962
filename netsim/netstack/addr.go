//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Port addresses.
//

package netstack

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/rbmk-project/netscen/netsim/packet"
)

// PortAddr is the address of an open port.
type PortAddr struct {
	// LocalAddr is the local address. This field must
	// always have valid address and port.
	LocalAddr netip.AddrPort

	// Protocol is the port protocol.
	Protocol packet.IPProtocol

	// RemoteAddr is the remote address. This field
	// may be zero for non-connected ports.
	RemoteAddr netip.AddrPort
}

// String returns the string representation of the [PortAddr].
func (pa PortAddr) String() string {
	raddr := pa.RemoteAddr.String()
	if !pa.RemoteAddr.IsValid() {
		raddr = "*:*"
	}
	return fmt.Sprintf("%s -> %s %s", pa.LocalAddr, raddr, pa.Protocol)
}

// Addr represents a TCP/UDP address.
type Addr struct {
	// AddrPort is the endpoint address and port.
	AddrPort netip.AddrPort

	// Protocol is the endpoint protocol.
	Protocol packet.IPProtocol
}

// Ensure [*Addr] implements [net.Addr].
var _ net.Addr = &Addr{}

// Network implements [net.Addr].
func (sa *Addr) Network() string {
	return sa.Protocol.String()
}

// String implements [net.Addr].
func (sa *Addr) String() string {
	return sa.AddrPort.String()
}
