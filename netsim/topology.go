// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/rbmk-project/netscen/netsim/csma"
	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/link"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/netstack"
	"github.com/rbmk-project/netscen/netsim/packet"
	"github.com/rbmk-project/netscen/netsim/wifi"
)

// Segment is a group of devices sharing a link or channel.
//
// Nodes and Devices are parallel and in group order: the gateway,
// which is the node shared with the inter-segment link, comes first.
type Segment struct {
	// Name names the segment in trace file names.
	Name string

	// Medium is the segment medium.
	Medium Medium

	// Block is the address block of the segment.
	Block netip.Prefix

	// Nodes contains the member nodes.
	Nodes []*netstack.Stack

	// Devices contains the member devices.
	Devices []*netdev.Device
}

// Gateway returns the gateway node of the segment.
func (s *Segment) Gateway() *netstack.Stack {
	return s.Nodes[0]
}

// Last returns the last node of the segment and its device.
func (s *Segment) Last() (*netstack.Stack, *netdev.Device) {
	return s.Nodes[len(s.Nodes)-1], s.Devices[len(s.Devices)-1]
}

// add appends a member.
func (s *Segment) add(node *netstack.Stack, dev *netdev.Device) {
	s.Nodes = append(s.Nodes, node)
	s.Devices = append(s.Devices, dev)
}

// The fixed address blocks, in assignment order.
var (
	InterBlock    = netip.MustParsePrefix("10.1.1.0/24")
	SenderBlock   = netip.MustParsePrefix("10.1.2.0/24")
	ReceiverBlock = netip.MustParsePrefix("10.1.3.0/24")
)

// Topology contains the nodes and devices of a scenario.
//
// Construct using [BuildTopology].
type Topology struct {
	// Nodes contains all nodes indexed by id.
	Nodes []*netstack.Stack

	// Inter is the inter-segment point-to-point link segment.
	Inter *Segment

	// Sender is the sender segment, nil in the point-to-point variants.
	Sender *Segment

	// Receiver is the receiver segment, nil in the point-to-point variants.
	Receiver *Segment

	// Link is the inter-segment link.
	Link *link.Link

	// Wifi is the Wi-Fi channel, nil unless the sender medium is Wi-Fi.
	Wifi *wifi.Channel

	// macs allocates hardware addresses.
	macs netdev.MACAllocator

	// sim is the simulator.
	sim *engine.Simulator

	// uids allocates packet identifiers.
	uids *packet.UIDAllocator

	// logger is the optional logger.
	logger *slog.Logger
}

// BuildTopology creates the nodes, devices and channels described by cfg.
//
// Node ids are assigned in creation order: the two inter-segment
// nodes first, then the sender segment extra nodes, then the
// receiver segment extra nodes.
func BuildTopology(sim *engine.Simulator, cfg *Config, logger *slog.Logger) (*Topology, error) {
	t := &Topology{sim: sim, uids: &packet.UIDAllocator{}, logger: logger}

	left, right := t.newNode(), t.newNode()
	ldev := left.NewDevice(t.macs.Next(), packet.LinkPPP)
	rdev := right.NewDevice(t.macs.Next(), packet.LinkPPP)
	t.Link = link.New(sim, ldev, rdev, cfg.P2P.DataRate, cfg.P2P.Delay)
	t.Inter = &Segment{Name: "p2p", Medium: MediumP2P, Block: InterBlock}
	t.Inter.add(left, ldev)
	t.Inter.add(right, rdev)

	switch cfg.Variant.Medium {
	case MediumP2P:
		return t, nil
	case MediumCSMA:
		t.Sender = t.buildCSMA("csmaSender", SenderBlock, left, &cfg.CSMA)
	case MediumWifi:
		t.Sender = t.buildWifi(left, &cfg.Wifi)
	default:
		return nil, fmt.Errorf("netsim: %w: medium %s", ErrUnknownVariant, cfg.Variant.Medium)
	}
	t.Receiver = t.buildCSMA("csmaReceiver", ReceiverBlock, right, &cfg.CSMA)
	return t, nil
}

// newNode creates the next node.
func (t *Topology) newNode() *netstack.Stack {
	node := netstack.New(t.sim, len(t.Nodes), t.uids)
	node.Logger = t.logger
	t.Nodes = append(t.Nodes, node)
	return node
}

// buildCSMA creates a CSMA segment with the gateway and cfg.Number extra nodes.
func (t *Topology) buildCSMA(name string, block netip.Prefix, gateway *netstack.Stack, cfg *CSMAConfig) *Segment {
	seg := &Segment{Name: name, Medium: MediumCSMA, Block: block}
	ch := csma.New(t.sim, cfg.DataRate, cfg.Delay)
	members := []*netstack.Stack{gateway}
	for range cfg.Number {
		members = append(members, t.newNode())
	}
	for _, node := range members {
		dev := node.NewDevice(t.macs.Next(), packet.LinkEthernet)
		ch.Attach(dev)
		seg.add(node, dev)
	}
	return seg
}

// buildWifi creates the Wi-Fi segment with the gateway as access point
// and cfg.Number stations. Stations take the first grid positions and
// walk randomly, the access point takes the next one and stays put.
func (t *Topology) buildWifi(gateway *netstack.Stack, cfg *WifiConfig) *Segment {
	seg := &Segment{Name: "wifiSender", Medium: MediumWifi, Block: SenderBlock}
	t.Wifi = wifi.New(t.sim, cfg.DataRate)
	grid := wifi.DefaultGridAllocator()

	ap := gateway.NewDevice(t.macs.Next(), packet.LinkWifi)
	t.Wifi.AddAccessPoint(ap, cfg.SSID, wifi.ConstantPosition{Pos: grid.Position(cfg.Number)})
	seg.add(gateway, ap)

	for idx := range cfg.Number {
		node := t.newNode()
		dev := node.NewDevice(t.macs.Next(), packet.LinkWifi)
		rng := t.sim.Streams().Stream(fmt.Sprintf("wifi/walk/%d", node.ID()))
		walk := wifi.NewRandomWalk(grid.Position(idx), wifi.DefaultBounds(), cfg.Speed, cfg.WalkInterval, rng)
		t.Wifi.AddStation(dev, cfg.SSID, walk)
		seg.add(node, dev)
	}
	return seg
}

// Segments returns the existing segments in address assignment order.
func (t *Topology) Segments() []*Segment {
	out := []*Segment{t.Inter}
	if t.Sender != nil {
		out = append(out, t.Sender)
	}
	if t.Receiver != nil {
		out = append(out, t.Receiver)
	}
	return out
}

// SourceNode returns the node running the traffic source and the
// device it sends through: the last node of the sender segment.
func (t *Topology) SourceNode() (*netstack.Stack, *netdev.Device) {
	if t.Sender == nil {
		return t.Inter.Nodes[0], t.Inter.Devices[0]
	}
	return t.Sender.Last()
}

// SinkNode returns the node running the sink and the device it
// receives through: the last node of the receiver segment.
func (t *Topology) SinkNode() (*netstack.Stack, *netdev.Device) {
	if t.Receiver == nil {
		return t.Inter.Nodes[1], t.Inter.Devices[1]
	}
	return t.Receiver.Last()
}

// Devices returns all devices in node order.
func (t *Topology) Devices() []*netdev.Device {
	var out []*netdev.Device
	for _, node := range t.Nodes {
		for _, iface := range node.Interfaces() {
			out = append(out, iface.Device)
		}
	}
	return out
}
