// SPDX-License-Identifier: GPL-3.0-or-later

package netdev

import "time"

// TraceKind is the kind of a [*TraceEvent].
type TraceKind int

const (
	// TraceEnqueue is a frame entering the transmit queue.
	TraceEnqueue = TraceKind(iota)

	// TraceDequeue is a frame leaving the transmit queue.
	TraceDequeue

	// TraceQueueDrop is a frame dropped by a full transmit queue.
	TraceQueueDrop

	// TraceTransmit is a frame starting to go out on the medium.
	TraceTransmit

	// TracePhyRxDrop is a frame discarded by the receive error model.
	TracePhyRxDrop

	// TraceSniff is any frame seen on the medium, regardless of
	// its destination address.
	TraceSniff

	// TraceReceive is a frame accepted by the device.
	TraceReceive
)

// String returns the string representation of the trace kind.
func (k TraceKind) String() string {
	switch k {
	case TraceEnqueue:
		return "enqueue"
	case TraceDequeue:
		return "dequeue"
	case TraceQueueDrop:
		return "queue_drop"
	case TraceTransmit:
		return "transmit"
	case TracePhyRxDrop:
		return "phy_rx_drop"
	case TraceSniff:
		return "sniff"
	case TraceReceive:
		return "receive"
	default:
		return "unknown"
	}
}

// TraceEvent is emitted by a [*Device].
type TraceEvent struct {
	// Kind is the event kind.
	Kind TraceKind

	// Time is the simulated time of the event.
	Time time.Duration

	// Device is the emitting device.
	Device *Device

	// Frame is the frame involved.
	Frame *Frame
}
