// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netdev models network devices attached to a shared or
point-to-point [Channel].

A [*Device] owns a drop-tail transmit queue and hands one [*Frame] at
a time to its [Channel], which decides when the frame reaches the
other devices. On reception the device applies the optional receive
[ErrorModel], then delivers frames addressed to it (or broadcast) to
the receive callback.

Every step emits a [*TraceEvent] to the subscribers, which is how
captures, ascii traces, drop recording, and metrics observe a device.
*/
package netdev

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/packet"
)

// Frame is a [*packet.Packet] travelling over a link.
type Frame struct {
	// Src is the source hardware address.
	Src net.HardwareAddr

	// Dst is the destination hardware address.
	Dst net.HardwareAddr

	// LinkType is the framing in use.
	LinkType packet.LinkType

	// BSSID is the access point address of 802.11 frames.
	BSSID net.HardwareAddr

	// DS is the distribution system direction of 802.11 frames.
	DS packet.DSDirection

	// Packet is the encapsulated IP packet.
	Packet *packet.Packet
}

// Size returns the size of the frame in bytes, link overhead included.
func (f *Frame) Size() int {
	return f.Packet.Size() + f.LinkType.Overhead()
}

// Header returns the link-layer addressing of the frame.
func (f *Frame) Header() packet.LinkHeader {
	return packet.LinkHeader{Src: f.Src, Dst: f.Dst, BSSID: f.BSSID, DS: f.DS}
}

// Encode serializes the frame for captures.
func (f *Frame) Encode() ([]byte, error) {
	return packet.Encode(f.LinkType, f.Header(), f.Packet)
}

// Channel is the medium a [*Device] transmits on.
type Channel interface {
	// Transmit puts the frame on the medium and invokes done once
	// the device is allowed to transmit the next frame.
	Transmit(src *Device, frame *Frame, done func())
}

// ErrorModel decides whether a received frame is corrupted.
type ErrorModel interface {
	Filter(frame *Frame) packet.Target
}

// ReceiveFunc is invoked for each frame a device accepts.
type ReceiveFunc func(dev *Device, pkt *packet.Packet)

// Device is a network device.
//
// Construct using [New].
type Device struct {
	// channel is the attached medium.
	channel Channel

	// errorModel is the optional receive error model.
	errorModel ErrorModel

	// index is the device index within the node.
	index int

	// linkType is the device framing.
	linkType packet.LinkType

	// mac is the device hardware address.
	mac net.HardwareAddr

	// node is the owning node id.
	node int

	// queue is the transmit queue.
	queue *Queue

	// rx is the receive callback.
	rx ReceiveFunc

	// sim is the simulator.
	sim *engine.Simulator

	// subscribers receive the trace events.
	subscribers []func(ev *TraceEvent)

	// txBusy is true while the channel holds one of our frames.
	txBusy bool
}

// DefaultQueueSize is the default transmit queue size in packets.
const DefaultQueueSize = 100

// New creates a new [*Device] with a [DefaultQueueSize] queue.
func New(sim *engine.Simulator, node, index int, mac net.HardwareAddr, lt packet.LinkType) *Device {
	return &Device{
		index:    index,
		linkType: lt,
		mac:      mac,
		node:     node,
		queue:    NewQueue(DefaultQueueSize),
		sim:      sim,
	}
}

// Node returns the owning node id.
func (d *Device) Node() int {
	return d.node
}

// Index returns the device index within the node.
func (d *Device) Index() int {
	return d.index
}

// MAC returns the hardware address.
func (d *Device) MAC() net.HardwareAddr {
	return d.mac
}

// LinkType returns the device framing.
func (d *Device) LinkType() packet.LinkType {
	return d.linkType
}

// Name returns the "<node>-<index>" device name used in file names.
func (d *Device) Name() string {
	return fmt.Sprintf("%d-%d", d.node, d.index)
}

// Path returns the device path used in ascii traces.
func (d *Device) Path() string {
	return fmt.Sprintf("/NodeList/%d/DeviceList/%d", d.node, d.index)
}

// Now returns the current simulated time.
func (d *Device) Now() time.Duration {
	return d.sim.Now()
}

// Simulator returns the simulator driving the device.
func (d *Device) Simulator() *engine.Simulator {
	return d.sim
}

// SetChannel attaches the device to a channel. Channels call this
// method from their own attach functions.
func (d *Device) SetChannel(ch Channel) {
	d.channel = ch
}

// SetReceiveCallback sets the function receiving accepted packets.
func (d *Device) SetReceiveCallback(fn ReceiveFunc) {
	d.rx = fn
}

// SetReceiveErrorModel sets the receive error model. A nil
// model lets every frame through.
func (d *Device) SetReceiveErrorModel(em ErrorModel) {
	d.errorModel = em
}

// Subscribe registers a trace event subscriber.
func (d *Device) Subscribe(fn func(ev *TraceEvent)) {
	d.subscribers = append(d.subscribers, fn)
}

// Emit delivers a trace event to the subscribers.
func (d *Device) Emit(kind TraceKind, frame *Frame) {
	if len(d.subscribers) <= 0 {
		return
	}
	ev := &TraceEvent{Kind: kind, Time: d.sim.Now(), Device: d, Frame: frame}
	for _, fn := range d.subscribers {
		fn(ev)
	}
}

// Send enqueues the packet for transmission to the given hardware
// address and returns false if the queue dropped it.
func (d *Device) Send(pkt *packet.Packet, dst net.HardwareAddr) bool {
	frame := &Frame{Src: d.mac, Dst: dst, LinkType: d.linkType, Packet: pkt}
	if !d.queue.Enqueue(frame) {
		d.Emit(TraceQueueDrop, frame)
		return false
	}
	d.Emit(TraceEnqueue, frame)
	d.transmitNext()
	return true
}

// transmitNext hands the head of the queue to the channel.
func (d *Device) transmitNext() {
	if d.txBusy || d.channel == nil {
		return
	}
	frame, ok := d.queue.Dequeue()
	if !ok {
		return
	}
	d.txBusy = true
	d.Emit(TraceDequeue, frame)
	d.channel.Transmit(d, frame, func() {
		d.txBusy = false
		d.transmitNext()
	})
}

// Receive is invoked by the channel when a frame arrives.
func (d *Device) Receive(frame *Frame) {
	if d.errorModel != nil && d.errorModel.Filter(frame) == packet.DROP {
		d.Emit(TracePhyRxDrop, frame)
		return
	}
	d.Emit(TraceSniff, frame)
	if !bytes.Equal(frame.Dst, d.mac) && !bytes.Equal(frame.Dst, Broadcast) {
		return
	}
	d.Emit(TraceReceive, frame)
	if d.rx != nil {
		d.rx(d, frame.Packet.Clone())
	}
}

// QueueLen returns the number of frames waiting for transmission.
func (d *Device) QueueLen() int {
	return d.queue.Len()
}
