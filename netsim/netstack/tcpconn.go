//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// TCP connections.
//

package netstack

import (
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/packet"
)

// TCP model parameters. The model has a fixed window and no congestion
// control, retransmits go-back-N on timeout, and carries no options.
const (
	// TCPMSS is the maximum segment size.
	TCPMSS = 536

	// TCPWindow is the advertised and honoured window.
	TCPWindow = 65535

	// TCPSendBuffer is the send buffer size in bytes.
	TCPSendBuffer = 131072

	// TCPInitialRTO is the initial retransmission timeout.
	TCPInitialRTO = time.Second

	// TCPMaxRTO is the retransmission timeout upper bound.
	TCPMaxRTO = 60 * time.Second

	// TCPMaxRetries is the number of consecutive timeouts after
	// which the connection is aborted.
	TCPMaxRetries = 6
)

// tcpState is the state of a [*TCPConn].
type tcpState int

const (
	tcpSynSent = tcpState(iota)
	tcpSynReceived
	tcpEstablished
	tcpClosed
)

// String returns the string representation of the state.
func (s tcpState) String() string {
	switch s {
	case tcpSynSent:
		return "SYN_SENT"
	case tcpSynReceived:
		return "SYN_RECEIVED"
	case tcpEstablished:
		return "ESTABLISHED"
	default:
		return "CLOSED"
	}
}

// seqLT returns whether a precedes b in sequence space.
func seqLT(a, b uint32) bool {
	return int32(a-b) < 0
}

// seqLE returns whether a precedes or equals b in sequence space.
func seqLE(a, b uint32) bool {
	return int32(a-b) <= 0
}

// TCPConn is a TCP connection.
//
// The zero value is invalid; construct using [*Stack.DialTCP] or
// accept connections using a [*TCPListener].
type TCPConn struct {
	// addr is the local and remote address of the connection.
	addr PortAddr

	// closing is set once either side asked to close.
	closing bool

	// finAcked is set once the peer acknowledged our FIN.
	finAcked bool

	// finSent is set while our FIN is outstanding.
	finSent bool

	// finSeq is the sequence number of our FIN.
	finSeq uint32

	// iss is the initial send sequence number.
	iss uint32

	// listener is the listener that accepted the connection, if any.
	listener *TCPListener

	// onClose is the optional close callback.
	onClose func(conn *TCPConn, err error)

	// onConn is the optional connect callback.
	onConn func(conn *TCPConn)

	// onRecv is the optional callback for in-order payload.
	onRecv func(conn *TCPConn, size int)

	// peerFin is set once the peer FIN was received in order.
	peerFin bool

	// rcvNxt is the next sequence number expected from the peer.
	rcvNxt uint32

	// retries counts consecutive retransmission timeouts.
	retries int

	// rto is the current retransmission timeout.
	rto time.Duration

	// sndEnd is one past the last byte queued by the application.
	sndEnd uint32

	// sndMax is the highest sequence number sent so far.
	sndMax uint32

	// sndNxt is the next sequence number to send.
	sndNxt uint32

	// sndUna is the oldest unacknowledged sequence number.
	sndUna uint32

	// stack is the owning stack.
	stack *Stack

	// state is the connection state.
	state tcpState

	// timer is the pending retransmission timer, if any.
	timer *engine.Timer
}

// DialTCP opens a TCP connection to raddr and starts the handshake.
//
// The connect callback fires once the connection is established. Data
// passed to [*TCPConn.Send] before then is buffered.
func (ns *Stack) DialTCP(raddr netip.AddrPort) (*TCPConn, error) {
	local, err := ns.connect(packet.IPProtocolTCP, raddr)
	if err != nil {
		return nil, err
	}
	conn, err := ns.newTCPConn(PortAddr{LocalAddr: local, Protocol: packet.IPProtocolTCP, RemoteAddr: raddr})
	if err != nil {
		return nil, err
	}
	conn.state = tcpSynSent
	conn.sendSegment(packet.TCPFlagSYN, conn.iss, 0)
	conn.advance(1)
	conn.armTimer()
	return conn, nil
}

// newTCPConn registers a new [*TCPConn].
func (ns *Stack) newTCPConn(addr PortAddr) (*TCPConn, error) {
	conn := &TCPConn{
		addr:  addr,
		rto:   TCPInitialRTO,
		stack: ns,
	}
	conn.sndUna = conn.iss
	conn.sndNxt = conn.iss
	conn.sndMax = conn.iss
	conn.sndEnd = conn.iss + 1
	if err := ns.openPort(addr, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// SetConnectCallback sets the function invoked when the connection
// is established.
func (c *TCPConn) SetConnectCallback(fn func(conn *TCPConn)) {
	c.onConn = fn
}

// SetReceiveCallback sets the function invoked for in-order data.
func (c *TCPConn) SetReceiveCallback(fn func(conn *TCPConn, size int)) {
	c.onRecv = fn
}

// SetCloseCallback sets the function invoked when the connection is
// closed. The error is nil for an orderly close.
func (c *TCPConn) SetCloseCallback(fn func(conn *TCPConn, err error)) {
	c.onClose = fn
}

// LocalAddr returns the local address.
func (c *TCPConn) LocalAddr() net.Addr {
	return &Addr{c.addr.LocalAddr, c.addr.Protocol}
}

// RemoteAddr returns the remote address.
func (c *TCPConn) RemoteAddr() net.Addr {
	return &Addr{c.addr.RemoteAddr, c.addr.Protocol}
}

// Established returns whether the handshake completed and the
// connection is not closed yet.
func (c *TCPConn) Established() bool {
	return c.state == tcpEstablished
}

// Closed returns whether the connection is closed.
func (c *TCPConn) Closed() bool {
	return c.state == tcpClosed
}

// Buffered returns the bytes written but not acknowledged yet.
func (c *TCPConn) Buffered() int {
	base := c.sndUna + c.synInFlight()
	if !seqLT(base, c.sndEnd) {
		return 0
	}
	return int(c.sndEnd - base)
}

// synInFlight is one while our SYN is not acknowledged.
func (c *TCPConn) synInFlight() uint32 {
	if c.state == tcpSynSent || c.state == tcpSynReceived {
		return 1
	}
	return 0
}

// Send queues size bytes for transmission.
//
// Returns [ENOTCONN] after close and [ENOBUFS] when the send
// buffer cannot hold the whole write.
func (c *TCPConn) Send(size int) error {
	if c.state == tcpClosed || c.closing {
		return ENOTCONN
	}
	if size <= 0 {
		return EINVAL
	}
	if c.Buffered()+size > TCPSendBuffer {
		return ENOBUFS
	}
	c.sndEnd += uint32(size)
	c.trySend()
	return nil
}

// Close starts an orderly close: the FIN follows the buffered data,
// after the handshake completes if it is still in progress.
func (c *TCPConn) Close() error {
	if c.state == tcpClosed || c.closing {
		return nil
	}
	c.closing = true
	c.trySend()
	return nil
}

// Abort closes the connection without sending anything else.
func (c *TCPConn) Abort() {
	c.finish(nil)
}

// sendSegment emits a segment with the given flags.
func (c *TCPConn) sendSegment(flags packet.TCPFlags, seq uint32, size int) {
	pkt := &packet.Packet{
		SrcAddr:     c.addr.LocalAddr.Addr(),
		DstAddr:     c.addr.RemoteAddr.Addr(),
		IPProtocol:  packet.IPProtocolTCP,
		SrcPort:     c.addr.LocalAddr.Port(),
		DstPort:     c.addr.RemoteAddr.Port(),
		Flags:       flags,
		Seq:         seq,
		Window:      TCPWindow,
		PayloadSize: size,
	}
	if flags&packet.TCPFlagACK != 0 {
		pkt.Ack = c.rcvNxt
	}
	_ = c.stack.output(pkt)
}

// sendAck acknowledges everything received in order.
func (c *TCPConn) sendAck() {
	c.sendSegment(packet.TCPFlagACK, c.sndNxt, 0)
}

// trySend transmits as much buffered data as the window allows,
// followed by the FIN once closing and drained.
func (c *TCPConn) trySend() {
	if c.state != tcpEstablished {
		return
	}
	for seqLT(c.sndNxt, c.sndEnd) {
		inflight := c.sndNxt - c.sndUna
		if inflight >= TCPWindow {
			return
		}
		size := min(uint32(TCPMSS), c.sndEnd-c.sndNxt, TCPWindow-inflight)
		c.sendSegment(packet.TCPFlagACK, c.sndNxt, int(size))
		c.advance(size)
		c.armTimer()
	}
	if c.closing && !c.finSent && c.sndNxt == c.sndEnd {
		c.finSeq = c.sndNxt
		c.finSent = true
		c.sendSegment(packet.TCPFlagFIN|packet.TCPFlagACK, c.finSeq, 0)
		c.advance(1)
		c.armTimer()
	}
}

// advance moves the next sequence number forward after sending.
func (c *TCPConn) advance(n uint32) {
	c.sndNxt += n
	if seqLT(c.sndMax, c.sndNxt) {
		c.sndMax = c.sndNxt
	}
}

// armTimer starts the retransmission timer unless it is running.
func (c *TCPConn) armTimer() {
	if c.timer.Pending() {
		return
	}
	c.timer = c.stack.sim.Schedule(c.rto, c.onTimeout)
}

// restartTimer restarts the retransmission timer when data is
// outstanding and stops it otherwise.
func (c *TCPConn) restartTimer() {
	c.timer.Cancel()
	c.timer = nil
	if c.sndUna != c.sndMax {
		c.armTimer()
	}
}

// onTimeout handles the expiration of the retransmission timer.
func (c *TCPConn) onTimeout() {
	c.timer = nil
	c.retries++
	if c.retries > TCPMaxRetries {
		c.finish(ETIMEDOUT)
		return
	}
	c.rto = min(2*c.rto, TCPMaxRTO)
	if c.stack.Logger != nil {
		c.stack.Logger.Debug(
			"tcpRetransmit",
			slog.String("conn", c.addr.String()),
			slog.String("state", c.state.String()),
			slog.Int("retries", c.retries),
			slog.Duration("rto", c.rto),
			slog.Duration("t", c.stack.sim.Now()),
		)
	}
	switch c.state {
	case tcpSynSent:
		c.sendSegment(packet.TCPFlagSYN, c.iss, 0)
		c.armTimer()
	case tcpSynReceived:
		c.sendSegment(packet.TCPFlagSYN|packet.TCPFlagACK, c.iss, 0)
		c.armTimer()
	case tcpEstablished:
		c.sndNxt = c.sndUna
		if c.finSent && !c.finAcked {
			c.finSent = false
		}
		c.trySend()
	}
}

// deliver implements endpoint.
func (c *TCPConn) deliver(pkt *packet.Packet) {
	if c.state == tcpClosed {
		return
	}
	if pkt.Flags&packet.TCPFlagRST != 0 {
		err := error(ECONNRESET)
		if c.state == tcpSynSent {
			err = ECONNREFUSED
		}
		c.finish(err)
		return
	}

	switch c.state {
	case tcpSynSent:
		if pkt.Flags&(packet.TCPFlagSYN|packet.TCPFlagACK) != packet.TCPFlagSYN|packet.TCPFlagACK ||
			pkt.Ack != c.iss+1 {
			return
		}
		c.rcvNxt = pkt.Seq + 1
		c.establish(pkt.Ack)
		c.sendAck()
		if c.onConn != nil {
			c.onConn(c)
		}
		c.trySend()
		return

	case tcpSynReceived:
		if pkt.Flags&packet.TCPFlagSYN != 0 {
			c.sendSegment(packet.TCPFlagSYN|packet.TCPFlagACK, c.iss, 0)
			return
		}
		if pkt.Flags&packet.TCPFlagACK == 0 || pkt.Ack != c.iss+1 {
			return
		}
		c.establish(pkt.Ack)
		if c.listener != nil {
			c.listener.accept(c)
		}
	}

	// Our ACK of the SYN|ACK got lost and the peer retransmitted it.
	if pkt.Flags&packet.TCPFlagSYN != 0 {
		c.sendAck()
		return
	}
	if pkt.Flags&packet.TCPFlagACK != 0 {
		c.processAck(pkt.Ack)
	}
	if c.state != tcpClosed {
		c.processData(pkt)
	}
}

// establish completes the handshake.
func (c *TCPConn) establish(ack uint32) {
	c.state = tcpEstablished
	c.sndUna = ack
	c.retries = 0
	c.rto = TCPInitialRTO
	c.restartTimer()
}

// processAck handles a cumulative acknowledgement.
//
// After a go-back-N rewind, acknowledgements for segments sent before
// the timeout may cover data beyond the rewound send pointer.
func (c *TCPConn) processAck(ack uint32) {
	if !seqLT(c.sndUna, ack) || !seqLE(ack, c.sndMax) {
		return
	}
	c.sndUna = ack
	if seqLT(c.sndNxt, ack) {
		c.sndNxt = ack
	}
	c.retries = 0
	c.rto = TCPInitialRTO
	if c.finSent && ack == c.finSeq+1 {
		c.finAcked = true
	}
	c.restartTimer()
	c.trySend()
	c.maybeFinish()
}

// processData handles the payload and FIN of an incoming segment.
//
// Out-of-order segments are discarded and answered with a
// duplicate acknowledgement.
func (c *TCPConn) processData(pkt *packet.Packet) {
	fin := pkt.Flags&packet.TCPFlagFIN != 0
	if pkt.PayloadSize <= 0 && !fin {
		return
	}
	if pkt.Seq != c.rcvNxt || (c.peerFin && pkt.PayloadSize > 0) {
		c.sendAck()
		return
	}
	if pkt.PayloadSize > 0 {
		c.rcvNxt += uint32(pkt.PayloadSize)
		if c.onRecv != nil {
			c.onRecv(c, pkt.PayloadSize)
		}
	}
	if fin {
		c.rcvNxt++
		c.peerFin = true
	}
	c.sendAck()
	if fin && !c.closing {
		// Close our side as well once the buffered data is out.
		c.closing = true
		c.trySend()
	}
	c.maybeFinish()
}

// maybeFinish closes the connection once both FINs are acknowledged.
func (c *TCPConn) maybeFinish() {
	if c.finAcked && c.peerFin {
		c.finish(nil)
	}
}

// finish moves the connection to the closed state.
func (c *TCPConn) finish(err error) {
	if c.state == tcpClosed {
		return
	}
	c.state = tcpClosed
	c.timer.Cancel()
	c.timer = nil
	c.stack.closePort(c.addr)
	if err != nil && c.stack.Logger != nil {
		c.stack.Logger.Info(
			"tcpAbort",
			slog.String("conn", c.addr.String()),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.Duration("t", c.stack.sim.Now()),
		)
	}
	if c.onClose != nil {
		c.onClose(c, err)
	}
}
