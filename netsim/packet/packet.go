// SPDX-License-Identifier: GPL-3.0-or-later

// Package packet contains [*Packet] and the related definitions.
package packet

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// IPProtocol is the protocol number of an IP packet.
type IPProtocol uint8

// String returns the string representation of the IP protocol.
func (p IPProtocol) String() string {
	switch p {
	case IPProtocolTCP:
		return "tcp"

	case IPProtocolUDP:
		return "udp"

	default:
		return "unknown"
	}
}

// HeaderSize returns the transport header size in bytes.
func (p IPProtocol) HeaderSize() int {
	switch p {
	case IPProtocolTCP:
		return TCPHeaderSize
	case IPProtocolUDP:
		return UDPHeaderSize
	default:
		return 0
	}
}

const (
	// IPProtocolTCP is the TCP protocol number.
	IPProtocolTCP = 6

	// IPProtocolUDP is the UDP protocol number.
	IPProtocolUDP = 17
)

const (
	// IPv4HeaderSize is the size of an IPv4 header without options.
	IPv4HeaderSize = 20

	// TCPHeaderSize is the size of a TCP header without options.
	TCPHeaderSize = 20

	// UDPHeaderSize is the size of a UDP header.
	UDPHeaderSize = 8

	// DefaultTTL is the TTL of newly created packets.
	DefaultTTL = 64
)

// TCPFlags is a set of TCP flags.
type TCPFlags uint8

// String returns the string representation of the TCP flags.
func (flags TCPFlags) String() string {
	var builder strings.Builder
	for _, entry := range []struct {
		flag TCPFlags
		name string
	}{
		{TCPFlagFIN, "F"},
		{TCPFlagSYN, "S"},
		{TCPFlagRST, "R"},
		{TCPFlagPSH, "P"},
		{TCPFlagACK, "A"},
	} {
		if flags&entry.flag != 0 {
			builder.WriteString(entry.name)
		} else {
			builder.WriteString(".")
		}
	}
	return builder.String()
}

const (
	// TCPFlagFIN is the FIN flag.
	TCPFlagFIN = 1

	// TCPFlagSYN is the SYN flag.
	TCPFlagSYN = 2

	// TCPFlagRST is the RST flag.
	TCPFlagRST = 4

	// TCPFlagPSH is the PSH flag.
	TCPFlagPSH = 8

	// TCPFlagACK is the ACK flag.
	TCPFlagACK = 16
)

// Packet is a network packet.
//
// The payload is usually virtual: only PayloadSize bytes are accounted
// for and zero bytes are synthesized when the packet is serialized.
type Packet struct {
	// UID uniquely identifies the packet within a simulation.
	UID uint64

	// TTL is the time to live.
	TTL uint8

	// SrcAddr is the source address.
	SrcAddr netip.Addr

	// DstAddr is the destination address.
	DstAddr netip.Addr

	// IPProtocol is the protocol number.
	IPProtocol IPProtocol

	// SrcPort is the source port.
	SrcPort uint16

	// DstPort is the destination port.
	DstPort uint16

	// Flags contains the TCP flags.
	Flags TCPFlags

	// Seq is the TCP sequence number.
	Seq uint32

	// Ack is the TCP acknowledgement number.
	Ack uint32

	// Window is the TCP receive window.
	Window uint16

	// PayloadSize is the payload length in bytes.
	PayloadSize int
}

// Size returns the size of the IP datagram in bytes.
func (p *Packet) Size() int {
	return IPv4HeaderSize + p.IPProtocol.HeaderSize() + p.PayloadSize
}

// Clone returns a shallow copy of the packet.
func (p *Packet) Clone() *Packet {
	pc := *p
	return &pc
}

// String returns the string representation of the packet.
func (p *Packet) String() string {
	switch p.IPProtocol {
	case IPProtocolTCP:
		return p.stringTCP()
	default:
		return p.stringOtherwise()
	}
}

// stringOtherwise returns the string representation of the packet for non-TCP protocols.
func (p *Packet) stringOtherwise() string {
	return fmt.Sprintf(
		"%s -> %s %s uid=%d length=%d",
		net.JoinHostPort(p.SrcAddr.String(), fmt.Sprintf("%d", p.SrcPort)),
		net.JoinHostPort(p.DstAddr.String(), fmt.Sprintf("%d", p.DstPort)),
		p.IPProtocol.String(),
		p.UID,
		p.PayloadSize,
	)
}

// stringTCP returns the string representation of the packet for TCP protocol.
func (p *Packet) stringTCP() string {
	return fmt.Sprintf(
		"%s -> %s %s uid=%d flags=%s seq=%d ack=%d length=%d",
		net.JoinHostPort(p.SrcAddr.String(), fmt.Sprintf("%d", p.SrcPort)),
		net.JoinHostPort(p.DstAddr.String(), fmt.Sprintf("%d", p.DstPort)),
		p.IPProtocol.String(),
		p.UID,
		p.Flags.String(),
		p.Seq,
		p.Ack,
		p.PayloadSize,
	)
}

// Target is the verdict of a receive error model.
type Target int

const (
	// ACCEPT lets the packet through.
	ACCEPT = Target(iota)

	// DROP discards the packet.
	DROP
)

// String returns the string representation of the target.
func (t Target) String() string {
	if t == DROP {
		return "DROP"
	}
	return "ACCEPT"
}

// UIDAllocator hands out packet UIDs.
//
// The zero value is ready to use and the first UID is zero.
type UIDAllocator struct {
	next uint64
}

// Next returns the next UID.
func (a *UIDAllocator) Next() uint64 {
	uid := a.next
	a.next++
	return uid
}
