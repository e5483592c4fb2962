// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/netscen/netsim/apps"
	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/trace"
	"gopkg.in/yaml.v3"
)

// Scenario is an assembled scenario ready to run.
//
// The assembly is a linear pipeline: [BuildTopology], [AssignAddresses],
// [InstallApplications], [InjectFaults], and [HookTraces]. It draws no
// random numbers, so two scenarios built from the same configuration
// behave identically.
//
// Construct using [New] or [MustNew].
type Scenario struct {
	// Addressing contains the assigned addresses.
	Addressing *Addressing

	// Applications contains the installed applications.
	Applications *Applications

	// Config is the scenario configuration.
	Config *Config

	// Faults contains the error models.
	Faults *Faults

	// ID is derived from the configuration.
	ID uuid.UUID

	// Metrics contains the scenario metrics.
	Metrics *trace.Metrics

	// Schedule is the application schedule.
	Schedule Schedule

	// Topology contains the nodes and devices.
	Topology *Topology

	// Traces contains the trace recorders.
	Traces *Traces

	// logger is the optional logger.
	logger *slog.Logger

	// ran is true once Run has been invoked.
	ran bool

	// sim is the simulator.
	sim *engine.Simulator
}

// ErrAlreadyRan indicates that [*Scenario.Run] was invoked twice.
var ErrAlreadyRan = errors.New("scenario already ran")

// runNamespace is the namespace of the run identifiers.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/rbmk-project/netscen"))

// New validates the configuration and assembles the scenario. The
// logger may be nil. Remember to invoke Close to release the trace files.
func New(cfg *Config, logger *slog.Logger) (*Scenario, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sched, err := NewSchedule(cfg.Seconds)
	if err != nil {
		return nil, fmt.Errorf("netsim: %w", err)
	}
	id, err := RunID(cfg)
	if err != nil {
		return nil, err
	}
	metrics, err := trace.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	s := &Scenario{
		Config:   cfg,
		ID:       id,
		Metrics:  metrics,
		Schedule: sched,
		logger:   logger,
		sim:      engine.New(cfg.Seed, cfg.Run),
	}

	s.logInfo("buildTopology")
	if s.Topology, err = BuildTopology(s.sim, cfg, logger); err != nil {
		return nil, err
	}
	for _, dev := range s.Topology.Devices() {
		metrics.Attach(dev)
	}

	s.logInfo("assignAddresses")
	if s.Addressing, err = AssignAddresses(s.Topology); err != nil {
		return nil, err
	}

	s.logInfo("installApplications")
	s.Applications, err = InstallApplications(s.sim, s.Topology, s.Addressing, cfg, sched, logger, metrics)
	if err != nil {
		return nil, err
	}

	s.logInfo("injectFaults")
	s.Faults = InjectFaults(s.sim, s.Topology, cfg)

	s.logInfo("hookTraces", slog.Bool("tracing", cfg.Tracing))
	if s.Traces, err = HookTraces(s.Topology, cfg, logger, metrics); err != nil {
		return nil, err
	}
	return s, nil
}

// MustNew is like [New] but panics on error.
func MustNew(cfg *Config, logger *slog.Logger) *Scenario {
	return runtimex.Try1(New(cfg, logger))
}

// RunID returns the identifier of a run of the given configuration.
func RunID(cfg *Config) (uuid.UUID, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("netsim: cannot serialize config: %w", err)
	}
	return uuid.NewSHA1(runNamespace, data), nil
}

func (s *Scenario) logInfo(msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Info(msg, append([]any{slog.String("scenario", s.Config.Name())}, attrs...)...)
	}
}

// Simulator returns the simulator driving the scenario.
func (s *Scenario) Simulator() *engine.Simulator {
	return s.sim
}

// Result summarizes a run.
type Result struct {
	// RunID identifies the run.
	RunID uuid.UUID

	// Name is the scenario name.
	Name string

	// End is the simulated time at which the run ended.
	End time.Duration

	// Source contains the source counters.
	Source apps.Stats

	// Sink contains the sink counters.
	Sink apps.Stats

	// ReceiverDrops is the number of drops on the sink device.
	ReceiverDrops int

	// InterDrops is the number of drops on the inter-segment link.
	InterDrops int

	// Drops contains all the drop events in time order.
	Drops []trace.DropEvent

	// Files contains the paths of the written files.
	Files []string
}

// Run runs the simulation until the sink stops, then flushes the trace
// files and writes the metrics file, if configured. The context is only
// checked before the simulation starts.
func (s *Scenario) Run(ctx context.Context) (*Result, error) {
	if s.ran {
		return nil, ErrAlreadyRan
	}
	s.ran = true
	s.logInfo("runStart", slog.Duration("until", s.Schedule.End()))
	if err := s.sim.Run(ctx, s.Schedule.End()); err != nil {
		return nil, fmt.Errorf("netsim: %w", err)
	}
	if err := s.Traces.Close(); err != nil {
		return nil, fmt.Errorf("netsim: cannot flush traces: %w", err)
	}

	drops := s.Traces.Drops
	result := &Result{
		RunID:         s.ID,
		Name:          s.Config.Name(),
		End:           s.sim.Now(),
		Source:        s.Applications.Source.Stats(),
		Sink:          s.Applications.Sink.Stats(),
		ReceiverDrops: drops.Count(trace.RoleReceiver),
		InterDrops:    drops.Count(trace.RoleInter),
		Drops:         drops.Events(),
		Files:         s.Traces.Files.Paths(),
	}
	if path := s.Config.Metrics; path != "" {
		if err := s.Metrics.WriteToTextfile(path); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, path)
	}
	s.logInfo(
		"runDone",
		slog.Int("sourcePackets", result.Source.PacketsSent),
		slog.Int("sinkBytes", result.Sink.BytesReceived),
		slog.Int("receiverDrops", result.ReceiverDrops),
		slog.Int("interDrops", result.InterDrops),
	)
	return result, nil
}

// Close releases the resources associated with the scenario.
func (s *Scenario) Close() error {
	return s.Traces.Close()
}
