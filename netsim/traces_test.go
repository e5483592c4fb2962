// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/packet"
	"github.com/rbmk-project/netscen/netsim/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// headerOnlyWriter accepts the pcap file header and fails afterwards.
type headerOnlyWriter struct {
	writes int
}

func (w *headerOnlyWriter) Write(data []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, errors.New("disk full")
	}
	return len(data), nil
}

// closeRecorder records whether it was closed.
type closeRecorder struct {
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestTracesCloseReportsCaptureErrors(t *testing.T) {
	var macs netdev.MACAllocator
	capture, err := trace.NewPcapWriter(&headerOnlyWriter{}, packet.LinkPPP)
	require.NoError(t, err)
	frame := &netdev.Frame{
		Src:      macs.Next(),
		Dst:      macs.Next(),
		LinkType: packet.LinkPPP,
		Packet: &packet.Packet{
			UID:         1,
			TTL:         packet.DefaultTTL,
			SrcAddr:     netip.MustParseAddr("10.1.1.1"),
			DstAddr:     netip.MustParseAddr("10.1.1.2"),
			IPProtocol:  packet.IPProtocolUDP,
			SrcPort:     49152,
			DstPort:     9,
			PayloadSize: 64,
		},
	}
	require.Error(t, capture.WriteFrame(0, frame))

	file := &closeRecorder{}
	traces := &Traces{captures: []*trace.PcapWriter{capture}}
	traces.Files.Add(file)

	err = traces.Close()
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, file.closed)
	assert.NoError(t, traces.Close())
}
