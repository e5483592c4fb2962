// SPDX-License-Identifier: GPL-3.0-or-later

package trace

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rbmk-project/netscen/netsim/netdev"
)

// Direction is the direction of application traffic.
type Direction string

const (
	// DirectionTx is traffic sent by an application.
	DirectionTx = Direction("tx")

	// DirectionRx is traffic received by an application.
	DirectionRx = Direction("rx")
)

// Metrics bundles the Prometheus metrics of a scenario run.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	// gatherer collects the registered metrics for [*Metrics.WriteToTextfile].
	gatherer prometheus.Gatherer

	// DeviceEvents counts the device trace events by device and kind.
	DeviceEvents *prometheus.CounterVec

	// Drops counts the dropped frames by role.
	Drops *prometheus.CounterVec

	// AppPackets counts the application packets by app and direction.
	AppPackets *prometheus.CounterVec

	// AppBytes counts the application bytes by app and direction.
	AppBytes *prometheus.CounterVec
}

// NewMetrics registers the scenario metrics against the provided
// registerer, defaulting to a private registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	m := &Metrics{gatherer: gatherer}

	var err error
	m.DeviceEvents, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "netscen_device_events_total",
		Help: "Device trace events, labeled by device (node-index) and event kind.",
	}, "device", "event")
	if err != nil {
		return nil, err
	}
	m.Drops, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "netscen_drops_total",
		Help: "Frames discarded by receive error models, labeled by role.",
	}, "role")
	if err != nil {
		return nil, err
	}
	m.AppPackets, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "netscen_app_packets_total",
		Help: "Application packets, labeled by application and direction.",
	}, "app", "direction")
	if err != nil {
		return nil, err
	}
	m.AppBytes, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "netscen_app_bytes_total",
		Help: "Application payload bytes, labeled by application and direction.",
	}, "app", "direction")
	if err != nil {
		return nil, err
	}
	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("trace: collector %s already registered with incompatible type", opts.Name)
		}
		return nil, err
	}
	return vec, nil
}

// Attach counts the trace events of the given device.
func (m *Metrics) Attach(dev *netdev.Device) {
	if m == nil {
		return
	}
	name := dev.Name()
	dev.Subscribe(func(ev *netdev.TraceEvent) {
		m.DeviceEvents.WithLabelValues(name, ev.Kind.String()).Inc()
	})
}

// ObserveDrop counts a drop for the given role.
func (m *Metrics) ObserveDrop(role Role) {
	if m == nil {
		return
	}
	m.Drops.WithLabelValues(role.String()).Inc()
}

// ObserveApp counts an application packet of the given size.
func (m *Metrics) ObserveApp(app string, dir Direction, size int) {
	if m == nil {
		return
	}
	m.AppPackets.WithLabelValues(app, string(dir)).Inc()
	m.AppBytes.WithLabelValues(app, string(dir)).Add(float64(size))
}

// WriteToTextfile writes the metrics to the named file using
// the text exposition format.
func (m *Metrics) WriteToTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("trace: cannot write metrics: %w", err)
	}
	return nil
}
