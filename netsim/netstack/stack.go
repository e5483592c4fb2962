// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netstack implements the IPv4 stack of a simulated node.

A [*Stack] owns the node devices, forwards packets it is not the
destination of, and demuxes the others to UDP and TCP endpoints.

Everything runs on the simulator goroutine, therefore nothing in
this package is goroutine safe.

The errors returned are the same [syscall.Errno] the kernel would
return in similar cases (we use the [x/sys] repository to pull
system-dependent error values).
*/
package netstack

import (
	"errors"
	"log/slog"
	"math"
	"net"
	"net/netip"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/packet"
	"github.com/rbmk-project/netscen/netsim/router"
)

// Interface is an addressed device of a [*Stack].
type Interface struct {
	// Device is the network device.
	Device *netdev.Device

	// Prefix is the interface address and the on-link prefix length.
	//
	// The zero value means the interface is not addressed yet.
	Prefix netip.Prefix
}

// Addr returns the interface address.
func (iface *Interface) Addr() netip.Addr {
	return iface.Prefix.Addr()
}

// endpoint receives the packets demuxed to a port.
type endpoint interface {
	deliver(pkt *packet.Packet)
}

// Stack models the network stack of a node.
//
// Construct using [New].
type Stack struct {
	// Logger is the optional logger. A nil logger means no logging.
	Logger *slog.Logger

	// id is the node id.
	id int

	// ifaces contains the interfaces in device index order.
	ifaces []*Interface

	// neighbors resolves next hops to hardware addresses.
	neighbors *router.Neighbors

	// nextport tracks the next available ephemeral port.
	nextport map[packet.IPProtocol]uint16

	// ports contains the open ports.
	ports map[PortAddr]endpoint

	// sim is the simulator.
	sim *engine.Simulator

	// table is the forwarding table.
	table *router.Table

	// uids allocates packet UIDs.
	uids *packet.UIDAllocator
}

// firstEphemeralPort is the first port handed out to unbound sockets.
const firstEphemeralPort = 49152

// New creates a new [*Stack] for the given node id. The UID allocator
// is shared by all the stacks of a simulation.
func New(sim *engine.Simulator, id int, uids *packet.UIDAllocator) *Stack {
	return &Stack{
		id:        id,
		neighbors: &router.Neighbors{},
		nextport: map[packet.IPProtocol]uint16{
			packet.IPProtocolTCP: firstEphemeralPort,
			packet.IPProtocolUDP: firstEphemeralPort,
		},
		ports: map[PortAddr]endpoint{},
		sim:   sim,
		table: &router.Table{},
		uids:  uids,
	}
}

// ID returns the node id.
func (ns *Stack) ID() int {
	return ns.id
}

// Simulator returns the simulator driving the stack.
func (ns *Stack) Simulator() *engine.Simulator {
	return ns.sim
}

// NewDevice creates a device owned by this node, using the next
// device index, and wires its receive path to the stack.
func (ns *Stack) NewDevice(mac net.HardwareAddr, lt packet.LinkType) *netdev.Device {
	dev := netdev.New(ns.sim, ns.id, len(ns.ifaces), mac, lt)
	dev.SetReceiveCallback(ns.receive)
	ns.ifaces = append(ns.ifaces, &Interface{Device: dev})
	return dev
}

// Interfaces returns the node interfaces in device index order.
func (ns *Stack) Interfaces() []*Interface {
	return append([]*Interface{}, ns.ifaces...)
}

// Interface returns the interface of the given device.
func (ns *Stack) Interface(dev *netdev.Device) (*Interface, bool) {
	for _, iface := range ns.ifaces {
		if iface.Device == dev {
			return iface, true
		}
	}
	return nil, false
}

// SetAddress assigns an address and on-link prefix to a device.
func (ns *Stack) SetAddress(dev *netdev.Device, prefix netip.Prefix) error {
	iface, ok := ns.Interface(dev)
	if !ok || !prefix.IsValid() {
		return EINVAL
	}
	iface.Prefix = prefix
	return nil
}

// Addresses returns the addresses of the addressed interfaces.
func (ns *Stack) Addresses() []netip.Addr {
	var addrs []netip.Addr
	for _, iface := range ns.ifaces {
		if iface.Prefix.IsValid() {
			addrs = append(addrs, iface.Addr())
		}
	}
	return addrs
}

// SetRoutes installs the forwarding table and the neighbor map.
func (ns *Stack) SetRoutes(table *router.Table, neighbors *router.Neighbors) {
	ns.table = table
	ns.neighbors = neighbors
}

// Routes returns the forwarding table.
func (ns *Stack) Routes() *router.Table {
	return ns.table
}

// isLocalAddr returns true if the address is local to the stack.
func (ns *Stack) isLocalAddr(addr netip.Addr) bool {
	for _, iface := range ns.ifaces {
		if iface.Prefix.IsValid() && iface.Addr() == addr {
			return true
		}
	}
	return false
}

// sourceAddr returns the address of the interface used to reach dst.
func (ns *Stack) sourceAddr(dst netip.Addr) (netip.Addr, error) {
	route, err := ns.table.Lookup(dst)
	if err != nil {
		return netip.Addr{}, EHOSTUNREACH
	}
	iface := ns.ifaces[route.Index]
	if !iface.Prefix.IsValid() {
		return netip.Addr{}, EADDRNOTAVAIL
	}
	return iface.Addr(), nil
}

// output sends a locally generated packet.
func (ns *Stack) output(pkt *packet.Packet) error {
	pkt.UID = ns.uids.Next()
	if pkt.TTL == 0 {
		pkt.TTL = packet.DefaultTTL
	}
	return ns.transmit(pkt)
}

// transmit routes the packet and hands it to the outgoing device.
func (ns *Stack) transmit(pkt *packet.Packet) error {
	route, err := ns.table.Lookup(pkt.DstAddr)
	if err != nil {
		ns.logDrop("netstackNoRoute", pkt, EHOSTUNREACH)
		return EHOSTUNREACH
	}
	nextHop := pkt.DstAddr
	if route.Gateway.IsValid() {
		nextHop = route.Gateway
	}
	mac, found := ns.neighbors.Lookup(nextHop)
	if !found {
		ns.logDrop("netstackNoNeighbor", pkt, EHOSTUNREACH)
		return EHOSTUNREACH
	}
	if !ns.ifaces[route.Index].Device.Send(pkt, mac) {
		ns.logDrop("netstackQueueFull", pkt, ENOBUFS)
		return ENOBUFS
	}
	return nil
}

// receive is the receive callback of all the node devices.
func (ns *Stack) receive(_ *netdev.Device, pkt *packet.Packet) {
	if ns.isLocalAddr(pkt.DstAddr) {
		ns.demux(pkt)
		return
	}
	ns.forward(pkt)
}

// errTTLExceeded is the reason for dropping expired packets.
var errTTLExceeded = errors.New("TTL exceeded in transit")

// forward forwards a packet not addressed to this node.
func (ns *Stack) forward(pkt *packet.Packet) {
	if pkt.TTL <= 1 {
		ns.logDrop("netstackTTLExceeded", pkt, errTTLExceeded)
		return
	}
	pkt.TTL--
	if ns.Logger != nil {
		ns.Logger.Debug(
			"netstackForward",
			slog.Int("node", ns.id),
			slog.String("packet", pkt.String()),
			slog.Duration("t", ns.sim.Now()),
		)
	}
	_ = ns.transmit(pkt)
}

// logDrop logs a packet discarded by the stack.
func (ns *Stack) logDrop(msg string, pkt *packet.Packet, err error) {
	if ns.Logger != nil {
		ns.Logger.Debug(
			msg,
			slog.Int("node", ns.id),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("packet", pkt.String()),
			slog.Duration("t", ns.sim.Now()),
		)
	}
}

// demux demuxes a single incoming [*packet.Packet] to the proper port.
func (ns *Stack) demux(pkt *packet.Packet) {
	if ep := ns.findPort(pkt); ep != nil {
		ep.deliver(pkt)
		return
	}
	ns.logDrop("netstackPortUnreachable", pkt, ECONNREFUSED)
	if pkt.IPProtocol == packet.IPProtocolTCP && pkt.Flags&packet.TCPFlagRST == 0 {
		ns.reset(pkt)
	}
}

// reset answers a TCP segment for a closed port with RST.
func (ns *Stack) reset(pkt *packet.Packet) {
	rst := &packet.Packet{
		SrcAddr:    pkt.DstAddr,
		DstAddr:    pkt.SrcAddr,
		IPProtocol: packet.IPProtocolTCP,
		SrcPort:    pkt.DstPort,
		DstPort:    pkt.SrcPort,
		Flags:      packet.TCPFlagRST | packet.TCPFlagACK,
		Seq:        pkt.Ack,
		Ack:        pkt.Seq + uint32(pkt.PayloadSize),
	}
	if pkt.Flags&(packet.TCPFlagSYN|packet.TCPFlagFIN) != 0 {
		rst.Ack++
	}
	_ = ns.output(rst)
}

// findPort finds a port using the given packet.
//
// The algorithm is as follows:
//
// 1. first try using the five tuple.
//
// 2. if not found, try using the three tuple, where
// the remote address is invalid.
//
// 3. if not found, use a five tuple where the
// local IP address is unspecified.
//
// 4. if not found, use a three tuple where the
// the remote address is invalid, and the IP local
// address is unspecified.
//
// 5. otherwise, return nil.
func (ns *Stack) findPort(pkt *packet.Packet) endpoint {
	local := netip.AddrPortFrom(pkt.DstAddr, pkt.DstPort)
	remote := netip.AddrPortFrom(pkt.SrcAddr, pkt.SrcPort)
	unspec := netip.AddrPortFrom(netip.IPv4Unspecified(), pkt.DstPort)
	for _, addr := range []PortAddr{
		{LocalAddr: local, Protocol: pkt.IPProtocol, RemoteAddr: remote},
		{LocalAddr: local, Protocol: pkt.IPProtocol},
		{LocalAddr: unspec, Protocol: pkt.IPProtocol, RemoteAddr: remote},
		{LocalAddr: unspec, Protocol: pkt.IPProtocol},
	} {
		if ep := ns.ports[addr]; ep != nil {
			return ep
		}
	}
	return nil
}

// newEphemeralPortNumber returns the next free local port.
func (ns *Stack) newEphemeralPortNumber(protocol packet.IPProtocol) (uint16, error) {
	if ns.nextport[protocol] >= math.MaxUint16 {
		return 0, EADDRINUSE
	}
	port := ns.nextport[protocol]
	ns.nextport[protocol] = port + 1
	return port, nil
}

// bind resolves the local address of a listening port.
func (ns *Stack) bind(protocol packet.IPProtocol, laddr netip.AddrPort) (netip.AddrPort, error) {
	if !laddr.Addr().IsValid() {
		laddr = netip.AddrPortFrom(netip.IPv4Unspecified(), laddr.Port())
	}
	if !laddr.Addr().IsUnspecified() && !ns.isLocalAddr(laddr.Addr()) {
		return netip.AddrPort{}, EADDRNOTAVAIL
	}
	if laddr.Port() <= 0 {
		lport, err := ns.newEphemeralPortNumber(protocol)
		if err != nil {
			return netip.AddrPort{}, err
		}
		laddr = netip.AddrPortFrom(laddr.Addr(), lport)
	}
	return laddr, nil
}

// connect resolves the local address of a port connected to raddr.
func (ns *Stack) connect(protocol packet.IPProtocol, raddr netip.AddrPort) (netip.AddrPort, error) {
	if !raddr.Addr().IsValid() || raddr.Addr().IsUnspecified() || raddr.Port() <= 0 {
		return netip.AddrPort{}, EINVAL
	}
	src, err := ns.sourceAddr(raddr.Addr())
	if err != nil {
		return netip.AddrPort{}, err
	}
	lport, err := ns.newEphemeralPortNumber(protocol)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(src, lport), nil
}

// openPort registers an endpoint for the given address.
func (ns *Stack) openPort(addr PortAddr, ep endpoint) error {
	if _, found := ns.ports[addr]; found {
		return EADDRINUSE
	}
	if ns.Logger != nil {
		ns.Logger.Debug("netstackOpen", slog.Int("node", ns.id), slog.String("port", addr.String()))
	}
	ns.ports[addr] = ep
	return nil
}

// closePort removes the endpoint for the given address.
func (ns *Stack) closePort(addr PortAddr) {
	if ns.Logger != nil {
		ns.Logger.Debug("netstackClose", slog.Int("node", ns.id), slog.String("port", addr.String()))
	}
	delete(ns.ports, addr)
}
