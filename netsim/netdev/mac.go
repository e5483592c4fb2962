// SPDX-License-Identifier: GPL-3.0-or-later

package netdev

import (
	"encoding/binary"
	"net"
)

// Broadcast is the broadcast hardware address.
var Broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// MACAllocator hands out sequential hardware addresses starting
// from 00:00:00:00:00:01.
//
// The zero value is ready to use. Use one allocator per scenario so
// that addresses do not depend on other scenarios in the process.
type MACAllocator struct {
	last uint64
}

// Next returns the next hardware address.
func (a *MACAllocator) Next() net.HardwareAddr {
	a.last++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], a.last)
	return net.HardwareAddr(append([]byte{}, buf[2:]...))
}
