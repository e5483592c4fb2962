// SPDX-License-Identifier: GPL-3.0-or-later

// Package router computes static shortest-hop routes over a topology
// and provides the per-node forwarding tables.
package router

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
)

// Interface is an addressed device as seen by the route computation.
type Interface struct {
	// Node is the owning node id.
	Node int

	// Index is the device index within the node.
	Index int

	// Addr is the interface address.
	Addr netip.Addr

	// Prefix is the on-link prefix.
	Prefix netip.Prefix

	// MAC is the device hardware address.
	MAC net.HardwareAddr
}

// Segment is a set of interfaces sharing a link.
type Segment []Interface

// Route is a forwarding table entry.
type Route struct {
	// Prefix is the destination prefix.
	Prefix netip.Prefix

	// Index is the outgoing device index.
	Index int

	// Gateway is the next hop or the zero value for on-link routes.
	Gateway netip.Addr
}

// String returns the string representation of the route.
func (r Route) String() string {
	if !r.Gateway.IsValid() {
		return fmt.Sprintf("%s dev %d", r.Prefix, r.Index)
	}
	return fmt.Sprintf("%s via %s dev %d", r.Prefix, r.Gateway, r.Index)
}

// Table is a forwarding table.
//
// The zero value is ready to use.
type Table struct {
	routes []Route
}

// ErrNoRoute indicates there is no route to a destination.
var ErrNoRoute = errors.New("no route to host")

// Add adds a route to the table.
func (t *Table) Add(route Route) {
	t.routes = append(t.routes, route)
}

// Routes returns a copy of the table entries.
func (t *Table) Routes() []Route {
	return slices.Clone(t.routes)
}

// Lookup returns the longest-prefix-match route for the destination.
func (t *Table) Lookup(dst netip.Addr) (Route, error) {
	var (
		best  Route
		found bool
	)
	for _, route := range t.routes {
		if !route.Prefix.Contains(dst) {
			continue
		}
		if !found || route.Prefix.Bits() > best.Prefix.Bits() {
			best, found = route, true
		}
	}
	if !found {
		return Route{}, fmt.Errorf("%w: %s", ErrNoRoute, dst)
	}
	return best, nil
}

// Neighbors maps on-link addresses to hardware addresses.
//
// The zero value is ready to use.
type Neighbors struct {
	entries map[netip.Addr]net.HardwareAddr
}

// Add records the hardware address of an interface address.
func (n *Neighbors) Add(addr netip.Addr, mac net.HardwareAddr) {
	if n.entries == nil {
		n.entries = make(map[netip.Addr]net.HardwareAddr)
	}
	n.entries[addr] = mac
}

// Lookup returns the hardware address for the given address.
func (n *Neighbors) Lookup(addr netip.Addr) (net.HardwareAddr, bool) {
	mac, ok := n.entries[addr]
	return mac, ok
}

// hop is how a node reaches another one: through one of its
// interfaces toward a neighbor's interface.
type hop struct {
	local  Interface
	remote Interface
}

// Compute returns the forwarding tables of all the nodes appearing in
// the segments, keyed by node id, together with the neighbor map.
//
// Every node gets an on-link route for each of its segments and a
// route through the first hop of a shortest-hop path for every other
// segment. Ties are broken by segment order, then by interface order.
func Compute(segments []Segment) (map[int]*Table, *Neighbors) {
	neighbors := &Neighbors{}
	adjacency := make(map[int][]hop)
	var nodes []int
	for _, seg := range segments {
		for _, a := range seg {
			neighbors.Add(a.Addr, a.MAC)
			if !slices.Contains(nodes, a.Node) {
				nodes = append(nodes, a.Node)
			}
			for _, b := range seg {
				if a.Node != b.Node {
					adjacency[a.Node] = append(adjacency[a.Node], hop{local: a, remote: b})
				}
			}
		}
	}

	tables := make(map[int]*Table)
	for _, src := range nodes {
		table := &Table{}
		first := firstHops(src, adjacency)
		for _, seg := range segments {
			if local, ok := onLink(src, seg); ok {
				table.Add(Route{Prefix: local.Prefix.Masked(), Index: local.Index})
				continue
			}
			if len(seg) <= 0 {
				continue
			}
			// Reach the segment through the closest member.
			best, bestDist := hop{}, -1
			for _, member := range seg {
				h, ok := first[member.Node]
				if !ok {
					continue
				}
				dist := h.dist
				if bestDist < 0 || dist < bestDist {
					best, bestDist = h.hop, dist
				}
			}
			if bestDist < 0 {
				continue
			}
			table.Add(Route{
				Prefix:  seg[0].Prefix.Masked(),
				Index:   best.local.Index,
				Gateway: best.remote.Addr,
			})
		}
		tables[src] = table
	}
	return tables, neighbors
}

// onLink returns the interface of node on the segment, if any.
func onLink(node int, seg Segment) (Interface, bool) {
	for _, iface := range seg {
		if iface.Node == node {
			return iface, true
		}
	}
	return Interface{}, false
}

// reach is the first hop toward a node and the hop count.
type reach struct {
	hop  hop
	dist int
}

// firstHops runs a breadth-first search from src and returns, for
// every reachable node, the first hop of a shortest path.
func firstHops(src int, adjacency map[int][]hop) map[int]reach {
	result := map[int]reach{}
	visited := map[int]bool{src: true}
	queue := []int{src}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, h := range adjacency[node] {
			next := h.remote.Node
			if visited[next] {
				continue
			}
			visited[next] = true
			r := reach{hop: h, dist: 1}
			if node != src {
				r = reach{hop: result[node].hop, dist: result[node].dist + 1}
			}
			result[next] = r
			queue = append(queue, next)
		}
	}
	return result
}
