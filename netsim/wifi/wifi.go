// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package wifi models an infrastructure IEEE 802.11 basic service set.

Stations associate with the access point advertising the same SSID
and only exchange frames within their own service set. The PHY runs
at a single fixed rate and the medium serializes transmissions; the
propagation delay follows the distance between the nodes, which move
according to their [Mobility].
*/
package wifi

import (
	"errors"
	"time"

	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/packet"
)

// DefaultSSID is the default service set identifier.
const DefaultSSID = "ns-3-ssid"

// DefaultRate is the fixed PHY rate.
const DefaultRate = netdev.DataRate(54_000_000)

// speedOfLight is the propagation speed in m/s.
const speedOfLight = 299_792_458.0

// Role is the role of a device in the service set.
type Role int

const (
	// RoleStation is a client station.
	RoleStation = Role(iota)

	// RoleAccessPoint is the access point.
	RoleAccessPoint
)

// ErrUnknownDevice indicates the device is not attached to the channel.
var ErrUnknownDevice = errors.New("device not attached to wifi channel")

// member is a device attached to the [*Channel].
type member struct {
	dev      *netdev.Device
	mobility Mobility
	role     Role
	ssid     string
}

// Channel is the shared wireless medium.
//
// The zero value is not ready to use; construct using [New].
type Channel struct {
	// busyUntil is when the medium becomes idle.
	busyUntil time.Duration

	// members contains the attached devices in attach order.
	members []*member

	// rate is the PHY rate.
	rate netdev.DataRate

	// sim is the simulator.
	sim *engine.Simulator
}

// New creates a new [*Channel] with the given PHY rate.
func New(sim *engine.Simulator, rate netdev.DataRate) *Channel {
	return &Channel{rate: rate, sim: sim}
}

// AddAccessPoint attaches an access point advertising ssid.
func (ch *Channel) AddAccessPoint(dev *netdev.Device, ssid string, mob Mobility) {
	ch.attach(&member{dev: dev, mobility: mob, role: RoleAccessPoint, ssid: ssid})
}

// AddStation attaches a station looking for ssid.
func (ch *Channel) AddStation(dev *netdev.Device, ssid string, mob Mobility) {
	ch.attach(&member{dev: dev, mobility: mob, role: RoleStation, ssid: ssid})
}

// attach adds the member and binds the device to the channel.
func (ch *Channel) attach(m *member) {
	ch.members = append(ch.members, m)
	m.dev.SetChannel(ch)
}

// find returns the member owning dev.
func (ch *Channel) find(dev *netdev.Device) (*member, error) {
	for _, m := range ch.members {
		if m.dev == dev {
			return m, nil
		}
	}
	return nil, ErrUnknownDevice
}

// Associated returns whether the device belongs to a service set,
// which, for a station, requires an access point with the same SSID.
func (ch *Channel) Associated(dev *netdev.Device) bool {
	m, err := ch.find(dev)
	if err != nil {
		return false
	}
	return ch.associated(m)
}

// associated implements [*Channel.Associated].
func (ch *Channel) associated(m *member) bool {
	if m.role == RoleAccessPoint {
		return true
	}
	for _, other := range ch.members {
		if other.role == RoleAccessPoint && other.ssid == m.ssid {
			return true
		}
	}
	return false
}

// Position returns the position of the device at the current time.
func (ch *Channel) Position(dev *netdev.Device) (Vector, error) {
	m, err := ch.find(dev)
	if err != nil {
		return Vector{}, err
	}
	return m.mobility.Position(ch.sim.Now()), nil
}

// address sets the BSSID and the direction of a frame sent by m.
func (ch *Channel) address(m *member, frame *netdev.Frame) {
	if m.role == RoleAccessPoint {
		frame.BSSID, frame.DS = m.dev.MAC(), packet.DSFromAP
		return
	}
	for _, other := range ch.members {
		if other.role == RoleAccessPoint && other.ssid == m.ssid {
			frame.BSSID, frame.DS = other.dev.MAC(), packet.DSToAP
			return
		}
	}
}

// Transmit implements [netdev.Channel].
//
// Frames from devices outside any service set never leave the device.
func (ch *Channel) Transmit(src *netdev.Device, frame *netdev.Frame, done func()) {
	sender, err := ch.find(src)
	if err != nil || !ch.associated(sender) {
		ch.sim.Schedule(0, done)
		return
	}
	ch.address(sender, frame)
	start := max(ch.sim.Now(), ch.busyUntil)
	txTime := ch.rate.TxTime(frame.Size())
	ch.busyUntil = start + txTime
	ch.sim.ScheduleAt(start, func() {
		src.Emit(netdev.TraceTransmit, frame)
	})
	ch.sim.ScheduleAt(start+txTime, done)
	ch.sim.ScheduleAt(start+txTime, func() {
		from := sender.mobility.Position(ch.sim.Now())
		for _, m := range ch.members {
			if m == sender || m.ssid != sender.ssid || !ch.associated(m) {
				continue
			}
			to := m.mobility.Position(ch.sim.Now())
			delay := time.Duration(from.Distance(to) / speedOfLight * float64(time.Second))
			ch.sim.Schedule(delay, func() {
				m.dev.Receive(frame)
			})
		}
	})
}
