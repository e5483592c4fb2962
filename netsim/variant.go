// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"errors"
	"fmt"

	"github.com/rbmk-project/common/runtimex"
)

// Medium is the access medium of the sender side.
type Medium int

const (
	// MediumP2P is a bare point-to-point link between sender and receiver.
	MediumP2P = Medium(iota)

	// MediumCSMA puts the sender on a CSMA bus.
	MediumCSMA

	// MediumWifi puts the sender on a Wi-Fi infrastructure network.
	MediumWifi
)

// String returns the string representation of the medium.
func (m Medium) String() string {
	switch m {
	case MediumP2P:
		return "p2p"
	case MediumCSMA:
		return "csma"
	case MediumWifi:
		return "wifi"
	default:
		return "unknown"
	}
}

// Transport is the transport protocol of the traffic.
type Transport int

const (
	// TransportTCP is on/off traffic into a packet sink.
	TransportTCP = Transport(iota)

	// TransportUDP is UDP echo traffic.
	TransportUDP
)

// String returns the string representation of the transport.
func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// Variant selects the scenario to assemble.
type Variant struct {
	// Medium is the sender access medium.
	Medium Medium

	// Transport is the transport protocol.
	Transport Transport
}

// ErrUnknownVariant indicates that a variant name is not recognized.
var ErrUnknownVariant = errors.New("unknown scenario variant")

// Variants returns all the supported variants.
func Variants() []Variant {
	var out []Variant
	for _, m := range []Medium{MediumP2P, MediumCSMA, MediumWifi} {
		for _, t := range []Transport{TransportTCP, TransportUDP} {
			out = append(out, Variant{Medium: m, Transport: t})
		}
	}
	return out
}

// Name returns the scenario name, which is also the trace file prefix.
func (v Variant) Name() string {
	switch v.Medium {
	case MediumP2P:
		return fmt.Sprintf("sender_p2p_receiver_%s", v.Transport)
	default:
		return fmt.Sprintf("sender_%s_p2p_csma_receiver_%s", v.Medium, v.Transport)
	}
}

// String implements [fmt.Stringer].
func (v Variant) String() string {
	return v.Name()
}

// ParseVariant parses a scenario name returned by [Variant.Name].
func ParseVariant(name string) (Variant, error) {
	for _, v := range Variants() {
		if v.Name() == name {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

// MustParseVariant is like [ParseVariant] but panics on error.
func MustParseVariant(name string) Variant {
	return runtimex.Try1(ParseVariant(name))
}

// MarshalText implements [encoding.TextMarshaler].
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.Name()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (v *Variant) UnmarshalText(data []byte) error {
	parsed, err := ParseVariant(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
