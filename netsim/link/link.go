// SPDX-License-Identifier: GPL-3.0-or-later

// Package link models a point-to-point network link.
package link

import (
	"errors"
	"time"

	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/netdev"
)

// Link models a full-duplex link between two [*netdev.Device].
//
// The zero value is not ready to use; construct using [New].
type Link struct {
	// devs contains the two endpoints.
	devs [2]*netdev.Device

	// rate is the link data rate.
	rate netdev.DataRate

	// delay is the propagation delay.
	delay time.Duration

	// sim is the simulator.
	sim *engine.Simulator
}

// ErrNotAttached indicates a device is not an endpoint of the link.
var ErrNotAttached = errors.New("device not attached to link")

// New creates a new [*Link] between left and right, attaching
// both devices to it.
func New(sim *engine.Simulator, left, right *netdev.Device, rate netdev.DataRate, delay netdev.Delay) *Link {
	lnk := &Link{
		devs:  [2]*netdev.Device{left, right},
		rate:  rate,
		delay: delay.Duration(),
		sim:   sim,
	}
	left.SetChannel(lnk)
	right.SetChannel(lnk)
	return lnk
}

// Devices returns the two endpoints.
func (lnk *Link) Devices() [2]*netdev.Device {
	return lnk.devs
}

// Peer returns the endpoint opposite to dev.
func (lnk *Link) Peer(dev *netdev.Device) (*netdev.Device, error) {
	switch dev {
	case lnk.devs[0]:
		return lnk.devs[1], nil
	case lnk.devs[1]:
		return lnk.devs[0], nil
	default:
		return nil, ErrNotAttached
	}
}

// Transmit implements [netdev.Channel].
//
// The sender is busy for the serialization time and the peer receives
// the frame once the last bit has propagated.
func (lnk *Link) Transmit(src *netdev.Device, frame *netdev.Frame, done func()) {
	peer, err := lnk.Peer(src)
	if err != nil {
		done()
		return
	}
	src.Emit(netdev.TraceTransmit, frame)
	txTime := lnk.rate.TxTime(frame.Size())
	lnk.sim.Schedule(txTime, done)
	lnk.sim.Schedule(txTime+lnk.delay, func() {
		peer.Receive(frame)
	})
}
