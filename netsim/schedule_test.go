// SPDX-License-Identifier: GPL-3.0-or-later

package netsim_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rbmk-project/netscen/netsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketCount(t *testing.T) {
	cases := []struct {
		seconds float64
		count   int
	}{
		{2, 1},
		{2.9, 1},
		{3, 2},
		{10, 9},
		{10.5, 9},
		{1e7, 9_999_999},
		{1e9, 999_999_999},
		{netsim.MaxSeconds, 9_223_372_034},
	}
	for _, tc := range cases {
		count, err := netsim.PacketCount(tc.seconds)
		require.NoError(t, err)
		assert.Equal(t, tc.count, count, "seconds=%g", tc.seconds)
	}

	for _, seconds := range []float64{-1, 0, 1, 1.999, math.NaN()} {
		_, err := netsim.PacketCount(seconds)
		assert.ErrorIs(t, err, netsim.ErrPacketCount, "seconds=%g", seconds)
		_, err = netsim.NewSchedule(seconds)
		assert.ErrorIs(t, err, netsim.ErrPacketCount, "seconds=%g", seconds)
	}

	for _, seconds := range []float64{1e10, netsim.MaxSeconds + 1, math.MaxFloat64, math.Inf(1)} {
		_, err := netsim.PacketCount(seconds)
		assert.ErrorIs(t, err, netsim.ErrSecondsRange, "seconds=%g", seconds)
		_, err = netsim.NewSchedule(seconds)
		assert.ErrorIs(t, err, netsim.ErrSecondsRange, "seconds=%g", seconds)
	}

	_, err := netsim.NewSchedule(math.Inf(-1))
	assert.ErrorIs(t, err, netsim.ErrPacketCount)
}

func TestNewSchedule(t *testing.T) {
	sched, err := netsim.NewSchedule(10)
	require.NoError(t, err)
	assert.Equal(t, netsim.Schedule{
		SinkStart:   time.Second,
		SinkStop:    11 * time.Second,
		SourceStart: 2 * time.Second,
		SourceStop:  10 * time.Second,
	}, sched)
	assert.Equal(t, 11*time.Second, sched.End())

	sched, err = netsim.NewSchedule(netsim.MaxSeconds)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(9_223_372_035)*time.Second, sched.SourceStop)
	assert.Equal(t, time.Duration(9_223_372_036)*time.Second, sched.SinkStop)
	assert.Less(t, sched.SourceStop, sched.SinkStop)
}

func TestScheduleProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("packet count is floor(seconds) - 1", prop.ForAll(
		func(seconds float64) bool {
			count, err := netsim.PacketCount(seconds)
			return err == nil && count == int(math.Floor(seconds))-1 && count >= 1
		},
		gen.Float64Range(2, netsim.MaxSeconds),
	))

	properties.Property("the source runs inside the sink window", prop.ForAll(
		func(seconds float64) bool {
			sched, err := netsim.NewSchedule(seconds)
			if err != nil {
				return false
			}
			return sched.SinkStart < sched.SourceStart &&
				sched.SourceStart < sched.SourceStop &&
				sched.SourceStop < sched.SinkStop &&
				sched.End() == sched.SinkStop
		},
		gen.Float64Range(2.001, netsim.MaxSeconds),
	))

	properties.Property("short runs are rejected", prop.ForAll(
		func(seconds float64) bool {
			_, err := netsim.PacketCount(seconds)
			return err != nil
		},
		gen.Float64Range(-1e6, 1.999),
	))

	properties.Property("runs whose stop time overflows are rejected", prop.ForAll(
		func(seconds float64) bool {
			_, err := netsim.NewSchedule(seconds)
			return errors.Is(err, netsim.ErrSecondsRange)
		},
		gen.Float64Range(netsim.MaxSeconds+1, math.MaxFloat64/2),
	))

	properties.TestingRun(t)
}
