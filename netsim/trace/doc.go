// SPDX-License-Identifier: GPL-3.0-or-later

// Package trace records what happens on the simulated devices: pcap
// captures, ascii event traces, receive drops, and Prometheus
// counters.
package trace
