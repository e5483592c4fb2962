// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rbmk-project/netscen/netsim/apps"
	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/errmodel"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/rbmk-project/netscen/netsim/wifi"
	"gopkg.in/yaml.v3"
)

// LinkConfig configures a point-to-point link.
type LinkConfig struct {
	// DataRate is the link rate.
	DataRate netdev.DataRate `yaml:"dataRate" validate:"gt=0"`

	// Delay is the propagation delay.
	Delay netdev.Delay `yaml:"delay" validate:"gte=0"`
}

// CSMAConfig configures the CSMA segments.
type CSMAConfig struct {
	// Number is the number of nodes added to the gateway.
	Number int `yaml:"number" validate:"gte=1"`

	// DataRate is the channel rate.
	DataRate netdev.DataRate `yaml:"dataRate" validate:"gt=0"`

	// Delay is the channel propagation delay.
	Delay netdev.Delay `yaml:"delay" validate:"gte=0"`
}

// WifiConfig configures the Wi-Fi segment.
type WifiConfig struct {
	// Number is the number of stations.
	Number int `yaml:"number" validate:"gte=1"`

	// SSID is the network name shared by stations and access point.
	SSID string `yaml:"ssid" validate:"required"`

	// DataRate is the PHY rate.
	DataRate netdev.DataRate `yaml:"dataRate" validate:"gt=0"`

	// Speed is the station speed in m/s.
	Speed engine.Uniform `yaml:"speed"`

	// WalkInterval is how often stations pick a new direction.
	WalkInterval time.Duration `yaml:"walkInterval" validate:"gt=0"`
}

// SenderConfig configures the traffic source.
type SenderConfig struct {
	// OnTime is the on period of the on/off source.
	OnTime time.Duration `yaml:"onTime" validate:"gte=0"`

	// OffTime is the off period of the on/off source.
	OffTime time.Duration `yaml:"offTime" validate:"gte=0"`

	// PacketSize is the payload size of each packet.
	PacketSize int `yaml:"packetSize" validate:"gt=0,lte=65000"`

	// DataRate is the rate of the on/off source.
	DataRate netdev.DataRate `yaml:"dataRate" validate:"gt=0"`

	// Interval is the time between echo requests.
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
}

// ErrorModelConfig configures a rate error model.
type ErrorModelConfig struct {
	// RanVar is the random variable compared against the drop probability.
	RanVar engine.Uniform `yaml:"ranVar"`

	// Rate is the error rate.
	Rate float64 `yaml:"rate" validate:"gte=0,lte=1"`

	// Unit is the unit the rate applies to.
	Unit errmodel.Unit `yaml:"unit"`
}

// Config contains the scenario configuration.
//
// Use [DefaultConfig] to obtain a valid configuration.
type Config struct {
	// Variant selects the scenario.
	Variant Variant `yaml:"variant"`

	// Verbose is the log verbosity: "all", "info", or anything else.
	Verbose string `yaml:"verbose"`

	// Tracing enables the trace files.
	Tracing bool `yaml:"tracing"`

	// Seconds is the nominal run length, at most [MaxSeconds].
	Seconds float64 `yaml:"seconds" validate:"gt=0,lte=9223372035"`

	// OutDir is the trace files directory.
	OutDir string `yaml:"outdir" validate:"required"`

	// Metrics is the optional path of the metrics text file.
	Metrics string `yaml:"metrics"`

	// Seed and Run select the random streams.
	Seed uint64 `yaml:"seed"`
	Run  uint64 `yaml:"run"`

	// P2P configures the inter-segment link.
	P2P LinkConfig `yaml:"p2p"`

	// CSMA configures the CSMA segments.
	CSMA CSMAConfig `yaml:"csma"`

	// Wifi configures the Wi-Fi segment.
	Wifi WifiConfig `yaml:"wifi"`

	// Sender configures the traffic source.
	Sender SenderConfig `yaml:"sender"`

	// Receiver configures the error model on the sink device.
	Receiver ErrorModelConfig `yaml:"receiver"`

	// Inter configures the error models on both ends of the
	// inter-segment link.
	Inter ErrorModelConfig `yaml:"inter"`
}

// DefaultOutDir is the default trace files directory.
const DefaultOutDir = "scratch"

// DefaultConfig returns the default configuration of a variant.
// Tracing is enabled by default for the TCP variants only.
func DefaultConfig(v Variant) *Config {
	lossy := ErrorModelConfig{
		RanVar: engine.Uniform{Min: 0.8, Max: 1.0},
		Rate:   0.001,
		Unit:   errmodel.UnitByte,
	}
	return &Config{
		Variant: v,
		Verbose: "all",
		Tracing: v.Transport == TransportTCP,
		Seconds: 10,
		OutDir:  DefaultOutDir,
		Seed:    1,
		Run:     1,
		P2P: LinkConfig{
			DataRate: 5_000_000,
			Delay:    netdev.Delay(50 * time.Millisecond),
		},
		CSMA: CSMAConfig{
			Number:   3,
			DataRate: 100_000_000,
			Delay:    netdev.Delay(6560 * time.Nanosecond),
		},
		Wifi: WifiConfig{
			Number:       3,
			SSID:         wifi.DefaultSSID,
			DataRate:     wifi.DefaultRate,
			Speed:        engine.Uniform{Min: 2, Max: 4},
			WalkInterval: time.Second,
		},
		Sender: SenderConfig{
			OnTime:     apps.DefaultOnTime,
			OffTime:    apps.DefaultOffTime,
			PacketSize: apps.DefaultPacketSize,
			DataRate:   apps.DefaultDataRate,
			Interval:   apps.DefaultEchoInterval,
		},
		Receiver: lossy,
		Inter:    lossy,
	}
}

// validate is the shared validator instance.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate returns an error if the configuration is not valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("netsim: invalid config: %w", err)
	}
	return nil
}

// LoadYAML overlays the YAML file at path onto the configuration.
// Keys missing from the file keep their current value.
func (c *Config) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("netsim: cannot read config: %w", err)
	}
	return c.UnmarshalYAMLBytes(data)
}

// UnmarshalYAMLBytes overlays the given YAML document onto the configuration.
func (c *Config) UnmarshalYAMLBytes(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("netsim: cannot parse config: %w", err)
	}
	return nil
}

// Name returns the scenario name.
func (c *Config) Name() string {
	return c.Variant.Name()
}
