// SPDX-License-Identifier: GPL-3.0-or-later

package netsim_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbmk-project/netscen/netsim"
	"github.com/rbmk-project/netscen/netsim/engine"
	"github.com/rbmk-project/netscen/netsim/errmodel"
	"github.com/rbmk-project/netscen/netsim/netdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	for _, v := range netsim.Variants() {
		t.Run(v.Name(), func(t *testing.T) {
			cfg := netsim.DefaultConfig(v)
			require.NoError(t, cfg.Validate())
			assert.Equal(t, v.Transport == netsim.TransportTCP, cfg.Tracing)
			assert.Equal(t, "all", cfg.Verbose)
			assert.Equal(t, 10.0, cfg.Seconds)
			assert.Equal(t, netdev.DataRate(5_000_000), cfg.P2P.DataRate)
			assert.Equal(t, netdev.Delay(50*time.Millisecond), cfg.P2P.Delay)
			assert.Equal(t, 3, cfg.CSMA.Number)
			assert.Equal(t, netdev.Delay(6560), cfg.CSMA.Delay)
			assert.Equal(t, 3, cfg.Wifi.Number)
			assert.Equal(t, 1024, cfg.Sender.PacketSize)
			assert.Equal(t, engine.Uniform{Min: 0.8, Max: 1.0}, cfg.Receiver.RanVar)
			assert.Equal(t, 0.001, cfg.Inter.Rate)
			assert.Equal(t, v.Name(), cfg.Name())
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(cfg *netsim.Config)
	}{
		{"zero seconds", func(cfg *netsim.Config) { cfg.Seconds = 0 }},
		{"nan seconds", func(cfg *netsim.Config) { cfg.Seconds = math.NaN() }},
		{"infinite seconds", func(cfg *netsim.Config) { cfg.Seconds = math.Inf(1) }},
		{"overflowing seconds", func(cfg *netsim.Config) { cfg.Seconds = 1e10 }},
		{"empty outdir", func(cfg *netsim.Config) { cfg.OutDir = "" }},
		{"zero link rate", func(cfg *netsim.Config) { cfg.P2P.DataRate = 0 }},
		{"negative delay", func(cfg *netsim.Config) { cfg.CSMA.Delay = -1 }},
		{"no csma nodes", func(cfg *netsim.Config) { cfg.CSMA.Number = 0 }},
		{"no stations", func(cfg *netsim.Config) { cfg.Wifi.Number = 0 }},
		{"empty ssid", func(cfg *netsim.Config) { cfg.Wifi.SSID = "" }},
		{"oversized packets", func(cfg *netsim.Config) { cfg.Sender.PacketSize = 70000 }},
		{"zero interval", func(cfg *netsim.Config) { cfg.Sender.Interval = 0 }},
		{"rate above one", func(cfg *netsim.Config) { cfg.Receiver.Rate = 1.5 }},
		{"negative rate", func(cfg *netsim.Config) { cfg.Inter.Rate = -0.1 }},
		{"inverted range", func(cfg *netsim.Config) { cfg.Inter.RanVar = engine.Uniform{Min: 1, Max: 0.5} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := netsim.DefaultConfig(netsim.MustParseVariant("sender_csma_p2p_csma_receiver_udp"))
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("longest run", func(t *testing.T) {
		cfg := netsim.DefaultConfig(netsim.MustParseVariant("sender_csma_p2p_csma_receiver_udp"))
		cfg.Seconds = netsim.MaxSeconds
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfigYAML(t *testing.T) {
	t.Run("overlay keeps missing keys", func(t *testing.T) {
		cfg := netsim.DefaultConfig(netsim.Variant{})
		doc := []byte(`
variant: sender_wifi_p2p_csma_receiver_udp
seconds: 5.5
p2p:
  dataRate: 10Mbps
  delay: 2ms
csma:
  delay: 6560
sender:
  interval: 500ms
receiver:
  unit: packet
  rate: 0.5
  ranVar: {min: 0, max: 1}
`)
		require.NoError(t, cfg.UnmarshalYAMLBytes(doc))
		assert.Equal(t, netsim.Variant{Medium: netsim.MediumWifi, Transport: netsim.TransportUDP}, cfg.Variant)
		assert.Equal(t, 5.5, cfg.Seconds)
		assert.Equal(t, netdev.DataRate(10_000_000), cfg.P2P.DataRate)
		assert.Equal(t, netdev.Delay(2*time.Millisecond), cfg.P2P.Delay)
		assert.Equal(t, netdev.Delay(6560), cfg.CSMA.Delay)
		assert.Equal(t, netdev.DataRate(100_000_000), cfg.CSMA.DataRate)
		assert.Equal(t, 500*time.Millisecond, cfg.Sender.Interval)
		assert.Equal(t, errmodel.UnitPacket, cfg.Receiver.Unit)
		assert.Equal(t, engine.Uniform{Min: 0, Max: 1}, cfg.Receiver.RanVar)
		assert.Equal(t, 0.001, cfg.Inter.Rate)

		// The variant is overridden but the defaults are not recomputed.
		assert.True(t, cfg.Tracing)
		require.NoError(t, cfg.Validate())
	})

	t.Run("load from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scenario.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tracing: false\nwifi: {number: 7}\n"), 0600))
		cfg := netsim.DefaultConfig(netsim.Variant{})
		require.NoError(t, cfg.LoadYAML(path))
		assert.False(t, cfg.Tracing)
		assert.Equal(t, 7, cfg.Wifi.Number)
	})

	t.Run("errors", func(t *testing.T) {
		cfg := netsim.DefaultConfig(netsim.Variant{})
		assert.ErrorIs(t, cfg.UnmarshalYAMLBytes([]byte("variant: sender_bus_receiver_tcp")), netsim.ErrUnknownVariant)
		assert.ErrorIs(t, cfg.UnmarshalYAMLBytes([]byte("p2p: {dataRate: fast}")), netdev.ErrInvalidDataRate)
		assert.ErrorIs(t, cfg.UnmarshalYAMLBytes([]byte("inter: {unit: word}")), errmodel.ErrInvalidUnit)
		assert.ErrorIs(t, cfg.LoadYAML(filepath.Join(t.TempDir(), "missing.yaml")), os.ErrNotExist)
	})
}

func TestVariant(t *testing.T) {
	names := []string{
		"sender_p2p_receiver_tcp",
		"sender_p2p_receiver_udp",
		"sender_csma_p2p_csma_receiver_tcp",
		"sender_csma_p2p_csma_receiver_udp",
		"sender_wifi_p2p_csma_receiver_tcp",
		"sender_wifi_p2p_csma_receiver_udp",
	}
	var got []string
	for _, v := range netsim.Variants() {
		got = append(got, v.String())
		parsed, err := netsim.ParseVariant(v.Name())
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}
	assert.Equal(t, names, got)

	_, err := netsim.ParseVariant("sender_lte_receiver_tcp")
	assert.ErrorIs(t, err, netsim.ErrUnknownVariant)
	assert.Panics(t, func() { netsim.MustParseVariant("") })
	assert.Equal(t, "unknown", netsim.Medium(42).String())
	assert.Equal(t, "unknown", netsim.Transport(42).String())
}
