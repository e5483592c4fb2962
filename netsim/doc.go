// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netsim assembles and runs parameterized network scenarios on
top of a discrete-event simulator.

# Usage and Features

A scenario sends traffic from a sender node to a receiver node across
a point-to-point link. The [Variant] selects the sender access medium
(the bare link, a CSMA bus, or a Wi-Fi network) and the transport
(on/off TCP into a packet sink, or UDP echo). In the CSMA and Wi-Fi
variants the receiver sits on a CSMA bus as well.

Build a configuration with [DefaultConfig], adjust it, and pass it to
[New], which runs the assembly pipeline:

1. [BuildTopology] creates nodes, devices, and channels;

2. [AssignAddresses] hands out the 10.1.1.0/24 (link), 10.1.2.0/24
(sender segment), and 10.1.3.0/24 (receiver segment) addresses and
installs shortest-hop routes;

3. [InstallApplications] installs the source and sink and schedules
them in [2s, seconds] and [1s, seconds+1] respectively;

4. [InjectFaults] attaches rate error models to the receive path of
the sink device and of both ends of the link;

5. [HookTraces] records drops and, when tracing, writes pcap and ascii
traces under the output directory.

Then [*Scenario.Run] runs the simulation and returns a [*Result].

The simulation is single threaded: all the callbacks run on the
simulator loop. Randomness comes from named streams derived from the
configured seed and run number, so the same configuration always
produces the same drops.

# Subpackages

The engine subpackage wraps the event scheduler. The netdev, link,
csma, and wifi subpackages model devices and media. The netstack
subpackage implements IPv4 forwarding with minimal UDP and TCP, whose
errors are the [syscall.Errno] values the kernel would return. The
apps, errmodel, and trace subpackages provide applications, error
models, and recorders.
*/
package netsim
