// SPDX-License-Identifier: GPL-3.0-or-later

package trace

import (
	"log/slog"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/netscen/netsim/netdev"
)

// Role tells where an error model sits in the topology.
type Role int

const (
	// RoleReceiver is the error model on the sink device.
	RoleReceiver = Role(iota)

	// RoleInter is an error model on the inter-segment link.
	RoleInter
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RoleReceiver:
		return "receiver"
	case RoleInter:
		return "inter"
	default:
		return "unknown"
	}
}

// logMessage returns the message logged for each drop.
func (r Role) logMessage() string {
	switch r {
	case RoleReceiver:
		return "ReceiverRxDrop"
	default:
		return "InterRxDrop"
	}
}

// DropEvent describes a frame discarded by a receive error model.
type DropEvent struct {
	// Role is the role of the device.
	Role Role

	// Time is the simulated time of the drop.
	Time time.Duration

	// Device is the device name.
	Device string

	// UID is the packet unique identifier.
	UID uint64

	// Size is the frame size in bytes.
	Size int
}

// DropRecorder collects the drop events of the devices registered
// with it. It logs every drop and optionally writes the dropped
// frames to a pcap stream.
//
// Construct using [NewDropRecorder].
type DropRecorder struct {
	// Logger is the optional logger.
	Logger *slog.Logger

	// events contains the recorded events.
	events []DropEvent

	// metrics is the optional metrics collector.
	metrics *Metrics

	// pcap is the optional capture.
	pcap *PcapWriter
}

// NewDropRecorder creates a new [*DropRecorder]. Both pcap and
// metrics may be nil.
func NewDropRecorder(logger *slog.Logger, pcap *PcapWriter, metrics *Metrics) *DropRecorder {
	return &DropRecorder{Logger: logger, metrics: metrics, pcap: pcap}
}

// Register records the receive drops of the given device with the given role.
func (dr *DropRecorder) Register(dev *netdev.Device, role Role) {
	dev.Subscribe(func(ev *netdev.TraceEvent) {
		if ev.Kind == netdev.TracePhyRxDrop {
			dr.record(ev, role)
		}
	})
}

func (dr *DropRecorder) record(ev *netdev.TraceEvent, role Role) {
	dr.events = append(dr.events, DropEvent{
		Role:   role,
		Time:   ev.Time,
		Device: ev.Device.Name(),
		UID:    ev.Frame.Packet.UID,
		Size:   ev.Frame.Size(),
	})
	if dr.Logger != nil {
		dr.Logger.Warn(
			role.logMessage(),
			slog.String("at", formatSeconds(ev.Time)),
			slog.String("device", ev.Device.Name()),
			slog.Uint64("uid", ev.Frame.Packet.UID),
		)
	}
	dr.metrics.ObserveDrop(role)
	if dr.pcap != nil {
		if err := dr.pcap.WriteFrame(ev.Time, ev.Frame); err != nil && dr.Logger != nil {
			dr.Logger.Warn("dropCaptureFailed", slog.Any("err", err), slog.String("errClass", errclass.New(err)))
		}
	}
}

// Events returns the recorded events in simulated time order.
func (dr *DropRecorder) Events() []DropEvent {
	return dr.events
}

// Count returns the number of drops recorded for the given role.
func (dr *DropRecorder) Count(role Role) int {
	var count int
	for _, ev := range dr.events {
		if ev.Role == role {
			count++
		}
	}
	return count
}
