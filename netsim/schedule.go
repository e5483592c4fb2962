// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrPacketCount indicates that the run is too short to send any packet.
var ErrPacketCount = errors.New("run too short: seconds must be at least 2")

// ErrSecondsRange indicates that the run length is not finite or its
// sink stop time does not fit a [time.Duration].
var ErrSecondsRange = errors.New("seconds out of range")

// MaxSeconds is the longest run whose sink stop time, one second after
// the nominal end, still fits a [time.Duration].
const MaxSeconds = float64(math.MaxInt64/int64(time.Second) - 1)

// checkSeconds validates the run length shared by [PacketCount] and [NewSchedule].
func checkSeconds(seconds float64) error {
	switch {
	case math.IsNaN(seconds) || seconds < 2:
		return fmt.Errorf("%w (got %g)", ErrPacketCount, seconds)
	case math.IsInf(seconds, 0) || seconds > MaxSeconds:
		return fmt.Errorf("%w: must be at most %g (got %g)", ErrSecondsRange, MaxSeconds, seconds)
	}
	return nil
}

// PacketCount returns the number of echo requests for a run of the
// given length, which is floor(seconds) - 1.
func PacketCount(seconds float64) (int, error) {
	if err := checkSeconds(seconds); err != nil {
		return 0, err
	}
	return int(math.Floor(seconds)) - 1, nil
}

// Schedule contains the start and stop times of the applications.
type Schedule struct {
	// SinkStart and SinkStop bound the sink or echo server.
	SinkStart, SinkStop time.Duration

	// SourceStart and SourceStop bound the source or echo client.
	SourceStart, SourceStop time.Duration
}

// NewSchedule returns the application schedule for a run of the given
// length: the sink runs in [1s, seconds+1] and the source in [2s, seconds].
func NewSchedule(seconds float64) (Schedule, error) {
	if err := checkSeconds(seconds); err != nil {
		return Schedule{}, err
	}
	nominal := secondsToDuration(seconds)
	return Schedule{
		SinkStart:   time.Second,
		SinkStop:    nominal + time.Second,
		SourceStart: 2 * time.Second,
		SourceStop:  nominal,
	}, nil
}

// End returns the time at which the run ends.
func (s Schedule) End() time.Duration {
	return s.SinkStop
}

// secondsToDuration converts seconds to a [time.Duration] rounding
// to the nearest nanosecond.
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds * float64(time.Second)))
}
