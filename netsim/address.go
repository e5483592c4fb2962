// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/rbmk-project/netscen/netipx"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/router"
)

// ErrAddressExhausted indicates that a segment has more devices
// than its address block has hosts.
var ErrAddressExhausted = errors.New("address block exhausted")

// ErrOverlappingBlocks indicates that two segments share addresses.
var ErrOverlappingBlocks = errors.New("overlapping address blocks")

// Addressing contains the addresses assigned to a [*Topology].
//
// Construct using [AssignAddresses].
type Addressing struct {
	// addrs maps each device to its address.
	addrs map[*netdev.Device]netip.Prefix
}

// AssignAddresses assigns one address per device, segment after segment,
// handing out the hosts of each block in group order. Then it computes
// the shortest-hop routes and installs them on every node.
func AssignAddresses(t *Topology) (*Addressing, error) {
	segments := t.Segments()
	var blocks []netip.Prefix
	for _, seg := range segments {
		blocks = append(blocks, seg.Block)
	}
	if p, q, found := netipx.Overlaps(blocks...); found {
		return nil, fmt.Errorf("netsim: %w: %s and %s", ErrOverlappingBlocks, p, q)
	}

	a := &Addressing{addrs: make(map[*netdev.Device]netip.Prefix)}
	var rsegs []router.Segment
	for _, seg := range segments {
		alloc, err := netipx.NewAllocator(seg.Block)
		if err != nil {
			return nil, fmt.Errorf("netsim: %s: %w", seg.Name, err)
		}
		var rseg router.Segment
		for idx, dev := range seg.Devices {
			prefix, err := alloc.Next()
			if err != nil {
				return nil, fmt.Errorf("netsim: %s: %w: %d devices, %d hosts",
					seg.Name, ErrAddressExhausted, len(seg.Devices), netipx.Hosts(seg.Block))
			}
			node := seg.Nodes[idx]
			if err := node.SetAddress(dev, prefix); err != nil {
				return nil, fmt.Errorf("netsim: %s: %w", seg.Name, err)
			}
			a.addrs[dev] = prefix
			rseg = append(rseg, router.Interface{
				Node:   node.ID(),
				Index:  dev.Index(),
				Addr:   prefix.Addr(),
				Prefix: prefix,
				MAC:    dev.MAC(),
			})
		}
		rsegs = append(rsegs, rseg)
	}

	tables, neighbors := router.Compute(rsegs)
	for _, node := range t.Nodes {
		table, found := tables[node.ID()]
		if !found {
			table = &router.Table{}
		}
		node.SetRoutes(table, neighbors)
	}
	return a, nil
}

// Address returns the address of the given device.
func (a *Addressing) Address(dev *netdev.Device) (netip.Addr, bool) {
	prefix, found := a.addrs[dev]
	return prefix.Addr(), found
}

// Prefix returns the address of the given device with its prefix length.
func (a *Addressing) Prefix(dev *netdev.Device) (netip.Prefix, bool) {
	prefix, found := a.addrs[dev]
	return prefix, found
}
