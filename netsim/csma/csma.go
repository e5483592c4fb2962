// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package csma models a shared Ethernet bus.

Devices defer while the bus is busy and transmit as soon as it becomes
idle, in the order they asked. There is no collision detection nor
backoff: the bus serializes transmissions. Every frame reaches every
other attached device, which filters on the destination address.
*/
package csma

import (
	"time"

	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/netdev"
)

// Channel is the shared bus.
//
// The zero value is not ready to use; construct using [New].
type Channel struct {
	// busyUntil is when the bus becomes idle.
	busyUntil time.Duration

	// delay is the propagation delay.
	delay time.Duration

	// devs contains the attached devices in attach order.
	devs []*netdev.Device

	// rate is the bus data rate.
	rate netdev.DataRate

	// sim is the simulator.
	sim *engine.Simulator
}

// New creates a new [*Channel].
func New(sim *engine.Simulator, rate netdev.DataRate, delay netdev.Delay) *Channel {
	return &Channel{
		delay: delay.Duration(),
		rate:  rate,
		sim:   sim,
	}
}

// Attach attaches a device to the bus.
func (ch *Channel) Attach(dev *netdev.Device) {
	ch.devs = append(ch.devs, dev)
	dev.SetChannel(ch)
}

// Devices returns the attached devices in attach order.
func (ch *Channel) Devices() []*netdev.Device {
	return append([]*netdev.Device{}, ch.devs...)
}

// Busy returns whether a frame is occupying the bus.
func (ch *Channel) Busy() bool {
	return ch.sim.Now() < ch.busyUntil
}

// Transmit implements [netdev.Channel].
func (ch *Channel) Transmit(src *netdev.Device, frame *netdev.Frame, done func()) {
	start := max(ch.sim.Now(), ch.busyUntil)
	txTime := ch.rate.TxTime(frame.Size())
	ch.busyUntil = start + txTime + ch.delay
	ch.sim.ScheduleAt(start, func() {
		src.Emit(netdev.TraceTransmit, frame)
	})
	ch.sim.ScheduleAt(start+txTime, done)
	ch.sim.ScheduleAt(start+txTime+ch.delay, func() {
		for _, dev := range ch.devs {
			if dev != src {
				dev.Receive(frame)
			}
		}
	})
}
