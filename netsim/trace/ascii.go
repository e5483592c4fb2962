// SPDX-License-Identifier: GPL-3.0-or-later

package trace

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/rbmk-project/netscen/netsim/netdev"
)

// AsciiWriter writes one line per device event:
//
//	r 2.018000 /NodeList/1/DeviceList/0/MacRx <packet>
//
// where the first column is one of '+' (enqueue), '-' (dequeue),
// 'd' (drop) and 'r' (receive).
//
// Construct using [NewAsciiWriter].
type AsciiWriter struct {
	// err is the first write error.
	err error

	// lines counts the lines written.
	lines int

	// w buffers the output.
	w *bufio.Writer
}

// NewAsciiWriter creates a new [*AsciiWriter] writing to w.
func NewAsciiWriter(w io.Writer) *AsciiWriter {
	return &AsciiWriter{w: bufio.NewWriter(w)}
}

// Attach writes the events of the given device.
func (aw *AsciiWriter) Attach(dev *netdev.Device) {
	dev.Subscribe(aw.write)
}

// asciiEvents maps the recorded event kinds to their marker and path suffix.
var asciiEvents = map[netdev.TraceKind]struct {
	marker byte
	suffix string
}{
	netdev.TraceEnqueue:   {'+', "/TxQueue/Enqueue"},
	netdev.TraceDequeue:   {'-', "/TxQueue/Dequeue"},
	netdev.TraceQueueDrop: {'d', "/TxQueue/Drop"},
	netdev.TracePhyRxDrop: {'d', "/PhyRxDrop"},
	netdev.TraceReceive:   {'r', "/MacRx"},
}

func (aw *AsciiWriter) write(ev *netdev.TraceEvent) {
	entry, found := asciiEvents[ev.Kind]
	if !found || aw.err != nil {
		return
	}
	_, err := fmt.Fprintf(aw.w, "%c %s %s%s %s\n", entry.marker, formatSeconds(ev.Time),
		ev.Device.Path(), entry.suffix, ev.Frame.Packet)
	if err != nil {
		aw.err = err
		return
	}
	aw.lines++
}

// formatSeconds formats a simulated time as seconds with microsecond precision.
func formatSeconds(t time.Duration) string {
	return fmt.Sprintf("%.6f", t.Seconds())
}

// Lines returns the number of lines written.
func (aw *AsciiWriter) Lines() int {
	return aw.lines
}

// Close flushes the buffered lines. It does not close
// the underlying writer.
func (aw *AsciiWriter) Close() error {
	if err := aw.w.Flush(); err != nil && aw.err == nil {
		aw.err = err
	}
	return aw.err
}
