// SPDX-License-Identifier: GPL-3.0-or-later

// Package netipx contains [net/netip] extensions.
package netipx

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrExhausted indicates that a prefix has no more host addresses.
var ErrExhausted = errors.New("no available host addresses")

// Allocator hands out the host addresses of an IPv4 prefix in
// ascending order, skipping the network and broadcast addresses.
//
// Construct using [NewAllocator].
type Allocator struct {
	// next is the next address to hand out.
	next netip.Addr

	// prefix is the managed prefix.
	prefix netip.Prefix
}

// NewAllocator creates a new [*Allocator] for the given IPv4 prefix,
// which is masked first, so 10.1.1.7/24 manages 10.1.1.0/24.
func NewAllocator(prefix netip.Prefix) (*Allocator, error) {
	if !prefix.IsValid() || !prefix.Addr().Is4() {
		return nil, fmt.Errorf("netipx: %s: not an IPv4 prefix", prefix)
	}
	if prefix.Bits() > 30 {
		return nil, fmt.Errorf("netipx: %s: %w", prefix, ErrExhausted)
	}
	prefix = prefix.Masked()
	return &Allocator{next: prefix.Addr().Next(), prefix: prefix}, nil
}

// Prefix returns the managed prefix.
func (a *Allocator) Prefix() netip.Prefix {
	return a.prefix
}

// Next returns the next host address as a prefix carrying the
// managed prefix length, e.g. 10.1.1.1/24.
func (a *Allocator) Next() (netip.Prefix, error) {
	addr := a.next
	if !a.prefix.Contains(addr) || addr == Broadcast(a.prefix) {
		return netip.Prefix{}, fmt.Errorf("netipx: %s: %w", a.prefix, ErrExhausted)
	}
	a.next = addr.Next()
	return netip.PrefixFrom(addr, a.prefix.Bits()), nil
}

// Hosts returns the number of host addresses of an IPv4 prefix.
func Hosts(prefix netip.Prefix) int {
	bits := 32 - prefix.Bits()
	if bits < 2 {
		return 0
	}
	return 1<<bits - 2
}

// Broadcast returns the broadcast address of an IPv4 prefix.
func Broadcast(prefix netip.Prefix) netip.Addr {
	b := prefix.Masked().Addr().As4()
	hostBits := 32 - prefix.Bits()
	for i := 3; i >= 0 && hostBits > 0; i-- {
		n := min(hostBits, 8)
		b[i] |= byte(1<<n - 1)
		hostBits -= n
	}
	return netip.AddrFrom4(b)
}

// Overlaps returns the first pair of overlapping prefixes, if any.
func Overlaps(prefixes ...netip.Prefix) (netip.Prefix, netip.Prefix, bool) {
	for i, p := range prefixes {
		for _, q := range prefixes[i+1:] {
			if p.Overlaps(q) {
				return p, q, true
			}
		}
	}
	return netip.Prefix{}, netip.Prefix{}, false
}
