// SPDX-License-Identifier: GPL-3.0-or-later

package apps

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/netstack"
	"github.com/rbmk-project/netscen/netsim/packet"
	"github.com/rbmk-project/netscen/netsim/trace"
)

// Default [*OnOff] settings.
const (
	DefaultOnTime     = time.Second
	DefaultOffTime    = time.Second
	DefaultPacketSize = 1024
	DefaultDataRate   = netdev.DataRate(1_000_000)
)

// OnOff alternates between an on period, when it sends packets at
// a constant bit rate, and an off period, when it is silent. The
// first on period starts after one off period.
//
// With TCP the periods only begin once the connection is established.
type OnOff struct {
	// Stack is the node stack.
	Stack *netstack.Stack

	// Protocol is either [packet.IPProtocolTCP] or [packet.IPProtocolUDP].
	Protocol packet.IPProtocol

	// Remote is the destination address.
	Remote netip.AddrPort

	// OnTime is the duration of the on period.
	OnTime time.Duration

	// OffTime is the duration of the off period.
	OffTime time.Duration

	// PacketSize is the payload size of each packet.
	PacketSize int

	// DataRate is the sending rate during the on period.
	DataRate netdev.DataRate

	// MaxBytes stops sending after this many bytes. Zero means no limit.
	MaxBytes int

	// Logger is the optional logger.
	Logger *slog.Logger

	// Metrics is the optional metrics collector.
	Metrics *trace.Metrics

	// counters tracks what has been sent.
	counters counters

	// lastStart is the time of the last transmission or on period start.
	lastStart time.Duration

	// pending is true when a packet could not be sent and must be retried.
	pending bool

	// residualBits are the bits credited when an on period ends
	// while a packet was being paced.
	residualBits uint64

	// sendTimer, startTimer and stopTimer are the scheduled events.
	sendTimer, startTimer, stopTimer *engine.Timer

	// send writes a packet to the socket.
	send func(size int) error

	// closeSocket closes the socket.
	closeSocket func()

	// running is true between Start and Stop.
	running bool
}

var _ Application = &OnOff{}

// Name implements [Application].
func (o *OnOff) Name() string {
	return "onoff"
}

// Stats implements [Application].
func (o *OnOff) Stats() Stats {
	return o.counters.stats
}

// Start implements [Application].
func (o *OnOff) Start() error {
	if o.running {
		return nil
	}
	if o.PacketSize <= 0 || o.DataRate <= 0 {
		return fmt.Errorf("apps: onoff: %w", netstack.EINVAL)
	}
	o.counters = counters{app: o.Name(), metrics: o.Metrics}
	switch o.Protocol {
	case packet.IPProtocolTCP:
		conn, err := o.Stack.DialTCP(o.Remote)
		if err != nil {
			return fmt.Errorf("apps: onoff: %w", err)
		}
		conn.SetConnectCallback(func(*netstack.TCPConn) {
			if o.running {
				o.scheduleStart()
			}
		})
		conn.SetCloseCallback(func(_ *netstack.TCPConn, err error) {
			if err != nil {
				logError(o.Logger, "onOffConnClosed", o.Name(), err, o.now())
				o.cancel()
			}
		})
		o.send = conn.Send
		o.closeSocket = func() { _ = conn.Close() }

	case packet.IPProtocolUDP:
		conn, err := o.Stack.DialUDP(o.Remote)
		if err != nil {
			return fmt.Errorf("apps: onoff: %w", err)
		}
		o.send = conn.Send
		o.closeSocket = func() { _ = conn.Close() }

	default:
		return fmt.Errorf("apps: onoff: %w", netstack.EINVAL)
	}
	o.running = true
	if o.Protocol == packet.IPProtocolUDP {
		o.scheduleStart()
	}
	return nil
}

// Stop implements [Application].
func (o *OnOff) Stop() {
	if !o.running {
		return
	}
	o.running = false
	o.cancel()
	o.closeSocket()
}

func (o *OnOff) now() time.Duration {
	return o.Stack.Simulator().Now()
}

func (o *OnOff) scheduleStart() {
	o.startTimer = o.Stack.Simulator().Schedule(o.OffTime, o.startSending)
}

func (o *OnOff) startSending() {
	o.lastStart = o.now()
	o.scheduleNextTx()
	o.stopTimer = o.Stack.Simulator().Schedule(o.OnTime, o.stopSending)
}

func (o *OnOff) stopSending() {
	o.cancel()
	o.scheduleStart()
}

// cancel cancels the pending events, crediting the bits paced so far.
func (o *OnOff) cancel() {
	if o.sendTimer.Pending() {
		elapsed := o.now() - o.lastStart
		o.residualBits += uint64(elapsed.Seconds() * float64(o.DataRate))
	}
	o.sendTimer.Cancel()
	o.startTimer.Cancel()
	o.stopTimer.Cancel()
}

func (o *OnOff) scheduleNextTx() {
	if o.MaxBytes > 0 && o.counters.stats.BytesSent >= o.MaxBytes {
		o.stopTimer.Cancel()
		return
	}
	bits := uint64(o.PacketSize) * 8
	if o.residualBits < bits {
		bits -= o.residualBits
	} else {
		bits = 0
	}
	delay := time.Duration(float64(bits) / float64(o.DataRate) * float64(time.Second))
	o.sendTimer = o.Stack.Simulator().Schedule(delay, o.sendPacket)
}

func (o *OnOff) sendPacket() {
	if err := o.send(o.PacketSize); err != nil {
		if !o.pending {
			logError(o.Logger, "onOffSendFailed", o.Name(), err, o.now())
		}
		o.pending = true
	} else {
		o.pending = false
		o.counters.sent(o.PacketSize)
		if o.Logger != nil {
			o.Logger.Debug(
				"onOffSent",
				slog.Int("bytes", o.PacketSize),
				slog.String("to", o.Remote.String()),
				slog.Duration("t", o.now()),
			)
		}
	}
	o.residualBits = 0
	o.lastStart = o.now()
	o.scheduleNextTx()
}
