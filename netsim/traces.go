// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/packet"
	"github.com/rbmk-project/netscen/netsim/trace"
)

// Traces contains the trace recorders attached to a [*Topology].
type Traces struct {
	// Drops records the receive drops.
	Drops *trace.DropRecorder

	// Files contains the open trace files.
	Files trace.Files

	// captures contains the per-device pcap writers.
	captures []*trace.PcapWriter
}

// HookTraces registers the drop recorder and, when tracing is enabled,
// creates the capture files inside cfg.OutDir:
//
//   - <name>_drop.pcap with every dropped frame, PPP framed;
//
//   - <name>-<node>-<device>.pcap for the source device and, in the UDP
//     variants, for the sink device;
//
//   - <name>_<segment>.tr ascii traces in the UDP variants.
//
// When tracing is disabled no file is created and drops are only logged.
func HookTraces(t *Topology, cfg *Config, logger *slog.Logger, metrics *trace.Metrics) (*Traces, error) {
	traces := &Traces{}
	if !cfg.Tracing {
		traces.Drops = trace.NewDropRecorder(logger, nil, metrics)
		registerDrops(t, traces.Drops)
		return traces, nil
	}
	if err := traces.hook(t, cfg, logger, metrics); err != nil {
		_ = traces.Files.Close()
		return nil, err
	}
	return traces, nil
}

func (traces *Traces) hook(t *Topology, cfg *Config, logger *slog.Logger, metrics *trace.Metrics) error {
	name := cfg.Name()
	w, err := traces.Files.CreateBuffered(filepath.Join(cfg.OutDir, name+"_drop.pcap"))
	if err != nil {
		return err
	}
	dropCapture, err := trace.NewPcapWriter(w, packet.LinkPPP)
	if err != nil {
		return err
	}
	traces.Drops = trace.NewDropRecorder(logger, dropCapture, metrics)
	registerDrops(t, traces.Drops)

	_, sourceDev := t.SourceNode()
	captured := []*netdev.Device{sourceDev}
	if cfg.Variant.Transport == TransportUDP {
		_, sinkDev := t.SinkNode()
		captured = append(captured, sinkDev)
	}
	for _, dev := range captured {
		path := filepath.Join(cfg.OutDir, fmt.Sprintf("%s-%d-%d.pcap", name, dev.Node(), dev.Index()))
		w, err := traces.Files.CreateBuffered(path)
		if err != nil {
			return err
		}
		capture, err := trace.NewPcapWriter(w, dev.LinkType())
		if err != nil {
			return err
		}
		capture.Logger = logger
		capture.Attach(dev)
		traces.captures = append(traces.captures, capture)
	}

	if cfg.Variant.Transport != TransportUDP {
		return nil
	}
	for _, seg := range t.Segments() {
		fp, err := traces.Files.Create(filepath.Join(cfg.OutDir, fmt.Sprintf("%s_%s.tr", name, seg.Name)))
		if err != nil {
			return err
		}
		ascii := trace.NewAsciiWriter(fp)
		traces.Files.Add(ascii)
		for _, dev := range seg.Devices {
			ascii.Attach(dev)
		}
	}
	return nil
}

// registerDrops registers the devices carrying error models.
func registerDrops(t *Topology, dr *trace.DropRecorder) {
	_, sinkDev := t.SinkNode()
	dr.Register(sinkDev, trace.RoleReceiver)
	if t.Sender == nil {
		return
	}
	for _, dev := range t.Inter.Devices {
		dr.Register(dev, trace.RoleInter)
	}
}

// Close flushes and closes the trace files. The returned error also
// includes the first write error of each device capture.
func (traces *Traces) Close() error {
	var errv []error
	for _, capture := range traces.captures {
		if err := capture.Err(); err != nil {
			errv = append(errv, err)
		}
	}
	traces.captures = nil
	errv = append(errv, traces.Files.Close())
	return errors.Join(errv...)
}
