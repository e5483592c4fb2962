// SPDX-License-Identifier: GPL-3.0-or-later

package netdev

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DataRate is a link data rate in bits per second.
//
// The text form is a number followed by an optional unit among
// bps, kbps, Mbps, and Gbps (e.g., "5Mbps").
type DataRate uint64

// ErrInvalidDataRate indicates that a data rate string cannot be parsed.
var ErrInvalidDataRate = errors.New("invalid data rate")

// dataRateUnits maps lowercase unit suffixes to multipliers. Longer
// suffixes come first so "kbps" is not parsed as "bps".
var dataRateUnits = []struct {
	suffix string
	mult   uint64
}{
	{"gbps", 1_000_000_000},
	{"mbps", 1_000_000},
	{"kbps", 1_000},
	{"bps", 1},
}

// ParseDataRate parses a [DataRate] from its text form.
func ParseDataRate(s string) (DataRate, error) {
	value := strings.TrimSpace(s)
	mult := uint64(1)
	lower := strings.ToLower(value)
	for _, unit := range dataRateUnits {
		if strings.HasSuffix(lower, unit.suffix) {
			value = value[:len(value)-len(unit.suffix)]
			mult = unit.mult
			break
		}
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || num <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDataRate, s)
	}
	return DataRate(num * float64(mult)), nil
}

// String returns the text form of the data rate using the largest
// unit dividing it exactly.
func (r DataRate) String() string {
	for _, unit := range dataRateUnits {
		if r != 0 && uint64(r)%unit.mult == 0 {
			name := strings.Replace(unit.suffix, "bps", "", 1)
			if name != "" && name != "k" {
				name = strings.ToUpper(name)
			}
			return fmt.Sprintf("%d%sbps", uint64(r)/unit.mult, name)
		}
	}
	return fmt.Sprintf("%dbps", uint64(r))
}

// TxTime returns the time required to serialize the given number of bytes.
func (r DataRate) TxTime(bytes int) time.Duration {
	if r == 0 {
		return 0
	}
	bits := uint64(bytes) * 8
	return time.Duration(bits * uint64(time.Second) / uint64(r))
}

// MarshalText implements [encoding.TextMarshaler].
func (r DataRate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (r *DataRate) UnmarshalText(data []byte) error {
	value, err := ParseDataRate(string(data))
	if err != nil {
		return err
	}
	*r = value
	return nil
}

// Delay is a propagation delay.
//
// The text form is either a [time.Duration] string (e.g., "50ms") or a
// bare integer number of nanoseconds (e.g., "6560").
type Delay time.Duration

// ErrInvalidDelay indicates that a delay string cannot be parsed.
var ErrInvalidDelay = errors.New("invalid delay")

// ParseDelay parses a [Delay] from its text form.
func ParseDelay(s string) (Delay, error) {
	value := strings.TrimSpace(s)
	if ns, err := strconv.ParseInt(value, 10, 64); err == nil && ns >= 0 {
		return Delay(ns), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, s)
	}
	return Delay(d), nil
}

// Duration returns the delay as a [time.Duration].
func (d Delay) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the text form of the delay.
func (d Delay) String() string {
	return time.Duration(d).String()
}

// MarshalText implements [encoding.TextMarshaler].
func (d Delay) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Delay) UnmarshalText(data []byte) error {
	value, err := ParseDelay(string(data))
	if err != nil {
		return err
	}
	*d = value
	return nil
}
