// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/rbmk-project/netscen/netsim"
	"github.com/rbmk-project/netscen/netsim/errmodel"
	"github.com/rogpeppe/go-internal/testscript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"netscen": func() { os.Exit(run(os.Args[1:], os.Stdout, os.Stderr)) },
	})
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{Dir: "testdata"})
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(nil, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, netsim.DefaultConfig(defaultVariant), cfg)
	})

	t.Run("flags override the variant defaults", func(t *testing.T) {
		cfg, err := loadConfig([]string{
			"-variant", "sender_p2p_receiver_tcp",
			"-csmaDelay", "7000",
			"-p2pDataRate", "10Mbps",
			"-senderOnTime", "0.5",
			"-senderOffTime", "250ms",
			"-interRanVarMax", "0.9",
			"-receiverErrorUnit", "packet",
		}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, netsim.MustParseVariant("sender_p2p_receiver_tcp"), cfg.Variant)
		assert.True(t, cfg.Tracing)
		assert.Equal(t, netsim.Delay(7000), cfg.CSMA.Delay)
		assert.Equal(t, netsim.DataRate(10_000_000), cfg.P2P.DataRate)
		assert.Equal(t, 500*time.Millisecond, cfg.Sender.OnTime)
		assert.Equal(t, 250*time.Millisecond, cfg.Sender.OffTime)
		assert.Equal(t, 0.8, cfg.Inter.RanVar.Min)
		assert.Equal(t, 0.9, cfg.Inter.RanVar.Max)
		assert.Equal(t, errmodel.UnitPacket, cfg.Receiver.Unit)
	})

	t.Run("flags override the config file", func(t *testing.T) {
		path := t.TempDir() + "/netscen.yaml"
		require.NoError(t, os.WriteFile(path, []byte("seconds: 3\nseed: 7\n"), 0600))
		cfg, err := loadConfig([]string{"-config", path, "-seed", "9"}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, 3.0, cfg.Seconds)
		assert.Equal(t, uint64(9), cfg.Seed)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := loadConfig([]string{"-variant", "nope"}, &bytes.Buffer{})
		assert.Error(t, err)
		_, err = loadConfig([]string{"-senderOnTime", "soon"}, &bytes.Buffer{})
		assert.Error(t, err)
		_, err = loadConfig([]string{"-seconds", "inf"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "invalid run length")
		_, err = loadConfig([]string{"-seconds", "NaN"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "invalid run length")
		_, err = loadConfig([]string{"-senderOnTime", "+Inf"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "invalid duration")
		_, err = loadConfig([]string{"-senderOffTime", "1e10"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "invalid duration")
		_, err = loadConfig([]string{"extra"}, &bytes.Buffer{})
		assert.Error(t, err)
		_, err = loadConfig([]string{"-config", t.TempDir() + "/missing.yaml"}, &bytes.Buffer{})
		var cerr *configError
		assert.ErrorAs(t, err, &cerr)
	})
}

func TestRunRejectsOverflowingSeconds(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-seconds", "1e10", "-verbose", "none", "-outdir", t.TempDir()}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "invalid config")
	assert.Empty(t, stdout.String())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger("all", &buf).Debug("debug")
	newLogger("info", &buf).Debug("hidden")
	newLogger("info", &buf).Info("info")
	newLogger("false", &buf).Info("hidden")
	newLogger("false", &buf).Warn("warn")
	assert.Contains(t, buf.String(), "msg=debug")
	assert.Contains(t, buf.String(), "msg=info")
	assert.Contains(t, buf.String(), "msg=warn")
	assert.NotContains(t, buf.String(), "hidden")
}
