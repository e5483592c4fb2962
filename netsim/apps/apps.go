// SPDX-License-Identifier: GPL-3.0-or-later

// Package apps contains the traffic applications installed on the
// simulated nodes: an on/off source, a packet sink, and a UDP echo
// client and server.
//
// Applications run inside the simulator callbacks. Use [Install] to
// schedule their start and stop times.
package apps

import (
	"log/slog"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/trace"
)

// Application is a traffic application bound to a node.
type Application interface {
	// Name returns the application name used in logs and metrics.
	Name() string

	// Start starts the application.
	Start() error

	// Stop stops the application. Stopping twice is a no-op.
	Stop()

	// Stats returns the application counters.
	Stats() Stats
}

// Stats contains the counters of an [Application].
type Stats struct {
	// PacketsSent is the number of packets sent.
	PacketsSent int

	// BytesSent is the number of payload bytes sent.
	BytesSent int

	// PacketsReceived is the number of packets received.
	PacketsReceived int

	// BytesReceived is the number of payload bytes received.
	BytesReceived int
}

// Install schedules the application to start and stop at the
// given simulated times. A failure to start is logged.
func Install(sim *engine.Simulator, logger *slog.Logger, app Application, start, stop time.Duration) {
	sim.ScheduleAt(start, func() {
		err := app.Start()
		if logger == nil {
			return
		}
		if err != nil {
			logger.Warn(
				"appStartFailed",
				slog.String("app", app.Name()),
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
				slog.Duration("t", sim.Now()),
			)
			return
		}
		logger.Debug("appStart", slog.String("app", app.Name()), slog.Duration("t", sim.Now()))
	})
	sim.ScheduleAt(stop, func() {
		app.Stop()
		if logger != nil {
			logger.Debug("appStop", slog.String("app", app.Name()), slog.Duration("t", sim.Now()))
		}
	})
}

// counters updates [Stats] and mirrors them to the metrics.
type counters struct {
	// app is the app label of the metrics.
	app string

	// metrics is the optional metrics sink.
	metrics *trace.Metrics

	// stats contains the running totals.
	stats Stats
}

func (c *counters) sent(size int) {
	c.stats.PacketsSent++
	c.stats.BytesSent += size
	c.metrics.ObserveApp(c.app, trace.DirectionTx, size)
}

func (c *counters) received(size int) {
	c.stats.PacketsReceived++
	c.stats.BytesReceived += size
	c.metrics.ObserveApp(c.app, trace.DirectionRx, size)
}

// logError logs a socket error at info level.
func logError(logger *slog.Logger, msg, app string, err error, now time.Duration) {
	if logger == nil {
		return
	}
	logger.Info(
		msg,
		slog.String("app", app),
		slog.Any("err", err),
		slog.String("errClass", errclass.New(err)),
		slog.Duration("t", now),
	)
}
