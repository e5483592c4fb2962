// SPDX-License-Identifier: GPL-3.0-or-later

package trace

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/packet"
)

// Snaplen is the snapshot length written in the pcap headers.
const Snaplen = 65535

// epoch is the wall clock time corresponding to the simulation start.
var epoch = time.Unix(0, 0).UTC()

// PcapWriter writes frames to a pcap stream using a fixed link type.
//
// Construct using [NewPcapWriter].
type PcapWriter struct {
	// Logger is the optional logger reporting the first capture failure.
	Logger *slog.Logger

	// err is the first write error.
	err error

	// frames counts the frames written.
	frames int

	// linkType is the link type of the stream.
	linkType packet.LinkType

	// w is the underlying pcap writer.
	w *pcapgo.Writer
}

// NewPcapWriter writes the pcap file header to w and returns a writer
// for frames using the given link type.
func NewPcapWriter(w io.Writer, lt packet.LinkType) (*PcapWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(Snaplen, lt.PcapLinkType()); err != nil {
		return nil, fmt.Errorf("trace: cannot write pcap header: %w", err)
	}
	return &PcapWriter{linkType: lt, w: pw}, nil
}

// WriteFrame writes the frame as seen at the given simulated time. The
// frame is re-encoded using the link type of the writer, so frames
// captured off any medium can go into the same stream.
func (pw *PcapWriter) WriteFrame(t time.Duration, frame *netdev.Frame) error {
	data, err := packet.Encode(pw.linkType, frame.Header(), frame.Packet)
	if err != nil {
		return pw.fail(err)
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     epoch.Add(t),
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := pw.w.WritePacket(ci, data); err != nil {
		return pw.fail(err)
	}
	pw.frames++
	return nil
}

func (pw *PcapWriter) fail(err error) error {
	err = fmt.Errorf("trace: cannot write frame: %w", err)
	if pw.err == nil {
		pw.err = err
	}
	return err
}

// Attach records the frames the device transmits and every frame it
// sees on the medium, like a promiscuous capture. Write errors are
// available through [*PcapWriter.Err] and the first one is logged.
func (pw *PcapWriter) Attach(dev *netdev.Device) {
	dev.Subscribe(func(ev *netdev.TraceEvent) {
		switch ev.Kind {
		case netdev.TraceTransmit, netdev.TraceSniff:
			hadErr := pw.err != nil
			if err := pw.WriteFrame(ev.Time, ev.Frame); err != nil && !hadErr && pw.Logger != nil {
				pw.Logger.Warn(
					"captureFailed",
					slog.String("device", dev.Name()),
					slog.Any("err", err),
					slog.String("errClass", errclass.New(err)),
				)
			}
		}
	})
}

// Frames returns the number of frames written.
func (pw *PcapWriter) Frames() int {
	return pw.frames
}

// Err returns the first error that occurred while writing.
func (pw *PcapWriter) Err() error {
	return pw.err
}
