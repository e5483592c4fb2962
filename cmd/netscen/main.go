// SPDX-License-Identifier: GPL-3.0-or-later

// Command netscen assembles and runs one of the network scenarios.
//
// Usage:
//
//	netscen [-variant name] [-config file.yaml] [flags]
//
// The configuration starts from the defaults of the selected variant,
// then the optional YAML file is overlaid, then the flags given on the
// command line are applied. The exit code is 0 on success, 1 when the
// scenario cannot be assembled or run, and 2 on invalid flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/rbmk-project/netscen/netsim"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// defaultVariant is the variant used when -variant is not given.
var defaultVariant = netsim.Variant{Medium: netsim.MediumCSMA, Transport: netsim.TransportUDP}

// options contains the flags that do not map to a config field.
type options struct {
	config string
}

// newFlagSet creates the flag set binding every config field to cfg.
func newFlagSet(cfg *netsim.Config, opts *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("netscen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.config, "config", "", "YAML configuration file")
	fs.TextVar(&cfg.Variant, "variant", cfg.Variant, "scenario variant")
	fs.StringVar(&cfg.Verbose, "verbose", cfg.Verbose, "log verbosity: all, info, or none")
	fs.BoolVar(&cfg.Tracing, "tracing", cfg.Tracing, "enable tracing")
	fs.Var((*runLength)(&cfg.Seconds), "seconds", "simulation duration seconds")
	fs.StringVar(&cfg.OutDir, "outdir", cfg.OutDir, "trace files directory")
	fs.StringVar(&cfg.Metrics, "metrics", cfg.Metrics, "write the metrics to this file")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	fs.Uint64Var(&cfg.Run, "run", cfg.Run, "random run number")

	fs.TextVar(&cfg.P2P.DataRate, "p2pDataRate", cfg.P2P.DataRate, "point to point data rate")
	fs.TextVar(&cfg.P2P.Delay, "p2pDelay", cfg.P2P.Delay, "point to point delay")
	fs.IntVar(&cfg.CSMA.Number, "csmaNumber", cfg.CSMA.Number, "csma nodes number")
	fs.TextVar(&cfg.CSMA.DataRate, "csmaDataRate", cfg.CSMA.DataRate, "csma data rate")
	fs.TextVar(&cfg.CSMA.Delay, "csmaDelay", cfg.CSMA.Delay, "csma delay, nanoseconds or duration")
	fs.IntVar(&cfg.Wifi.Number, "wifiNumber", cfg.Wifi.Number, "wifi stations number")

	fs.Var((*seconds)(&cfg.Sender.OnTime), "senderOnTime", "sender on time, seconds or duration")
	fs.Var((*seconds)(&cfg.Sender.OffTime), "senderOffTime", "sender off time, seconds or duration")
	fs.IntVar(&cfg.Sender.PacketSize, "senderPacketSize", cfg.Sender.PacketSize, "send packet size")
	fs.TextVar(&cfg.Sender.DataRate, "senderDataRate", cfg.Sender.DataRate, "send data rate")
	fs.Var((*seconds)(&cfg.Sender.Interval), "senderInterval", "echo interval, seconds or duration")

	fs.Float64Var(&cfg.Receiver.RanVar.Min, "receiverRanVarMin", cfg.Receiver.RanVar.Min, "receiver ranvar min")
	fs.Float64Var(&cfg.Receiver.RanVar.Max, "receiverRanVarMax", cfg.Receiver.RanVar.Max, "receiver ranvar max")
	fs.Float64Var(&cfg.Receiver.Rate, "receiverErrorRate", cfg.Receiver.Rate, "rate in receiver error model")
	fs.TextVar(&cfg.Receiver.Unit, "receiverErrorUnit", cfg.Receiver.Unit, "unit in receiver error model")
	fs.Float64Var(&cfg.Inter.RanVar.Min, "interRanVarMin", cfg.Inter.RanVar.Min, "inter ranvar min")
	fs.Float64Var(&cfg.Inter.RanVar.Max, "interRanVarMax", cfg.Inter.RanVar.Max, "inter ranvar max")
	fs.Float64Var(&cfg.Inter.Rate, "interErrorRate", cfg.Inter.Rate, "rate in inter error model")
	fs.TextVar(&cfg.Inter.Unit, "interErrorUnit", cfg.Inter.Unit, "unit in inter error model")
	return fs
}

// runLength is a float64 flag accepting only finite seconds.
type runLength float64

var _ flag.Value = new(runLength)

// String implements [flag.Value].
func (r *runLength) String() string {
	return strconv.FormatFloat(float64(*r), 'g', -1, 64)
}

// Set implements [flag.Value].
func (r *runLength) Set(value string) error {
	sec, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return fmt.Errorf("invalid run length %q", value)
	}
	*r = runLength(sec)
	return nil
}

// maxDurationSeconds is the largest bare seconds value fitting a [time.Duration].
const maxDurationSeconds = float64(math.MaxInt64 / int64(time.Second))

// seconds is a [time.Duration] flag also accepting bare seconds.
type seconds time.Duration

var _ flag.Value = new(seconds)

// String implements [flag.Value].
func (s *seconds) String() string {
	return time.Duration(*s).String()
}

// Set implements [flag.Value].
func (s *seconds) Set(value string) error {
	if sec, err := strconv.ParseFloat(value, 64); err == nil {
		if math.IsNaN(sec) || sec < 0 || sec > maxDurationSeconds {
			return fmt.Errorf("invalid duration %q", value)
		}
		*s = seconds(time.Duration(math.Round(sec * float64(time.Second))))
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value)
	}
	*s = seconds(d)
	return nil
}

// loadConfig builds the configuration from args. The first parse only
// selects the variant and the YAML file; the explicitly set flags are
// then replayed on top of the variant defaults and the YAML overlay.
func loadConfig(args []string, stderr io.Writer) (*netsim.Config, error) {
	var opts options
	parsed := netsim.DefaultConfig(defaultVariant)
	fs := newFlagSet(parsed, &opts, stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg := netsim.DefaultConfig(parsed.Variant)
	if opts.config != "" {
		if err := cfg.LoadYAML(opts.config); err != nil {
			return nil, &configError{err}
		}
	}
	replay := newFlagSet(cfg, &options{}, io.Discard)
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err == nil {
			err = replay.Set(f.Name, f.Value.String())
		}
	})
	if err != nil {
		return nil, &configError{err}
	}
	return cfg, nil
}

// configError marks errors occurring after the flags have been parsed.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

// newLogger returns the logger for the given verbosity.
func newLogger(verbose string, stderr io.Writer) *slog.Logger {
	level := slog.LevelWarn
	switch verbose {
	case "all":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(args, stderr)
	var cerr *configError
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, &cerr):
		fmt.Fprintf(stderr, "netscen: %s\n", err)
		return 1
	case err != nil:
		fmt.Fprintf(stderr, "netscen: %s\n", err)
		return 2
	}

	logger := newLogger(cfg.Verbose, stderr)
	scenario, err := netsim.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "netscen: %s\n", err)
		return 1
	}
	defer scenario.Close()

	result, err := scenario.Run(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "netscen: %s\n", err)
		return 1
	}
	printResult(stdout, result)
	return 0
}

func printResult(w io.Writer, r *netsim.Result) {
	fmt.Fprintf(w, "scenario: %s\n", r.Name)
	fmt.Fprintf(w, "run: %s\n", r.RunID)
	fmt.Fprintf(w, "end: %s\n", r.End)
	fmt.Fprintf(w, "source: sent %d packets (%d bytes), received %d packets (%d bytes)\n",
		r.Source.PacketsSent, r.Source.BytesSent, r.Source.PacketsReceived, r.Source.BytesReceived)
	fmt.Fprintf(w, "sink: received %d packets (%d bytes), sent %d packets (%d bytes)\n",
		r.Sink.PacketsReceived, r.Sink.BytesReceived, r.Sink.PacketsSent, r.Sink.BytesSent)
	fmt.Fprintf(w, "drops: receiver=%d inter=%d\n", r.ReceiverDrops, r.InterDrops)
	for _, path := range r.Files {
		fmt.Fprintf(w, "file: %s\n", path)
	}
}
