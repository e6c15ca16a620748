package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/hew-outdoor/core"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Radius != 65 || cfg.PHY != "ac" || cfg.PacketSize != 1472 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestDecodeOverlaysDefaults(t *testing.T) {
	doc := `
simulation_time: 30s
layers: 3
stations: 5
bulk: 2
phy: ax
bulk_traffic:
  off_mean: 2s
`
	cfg, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if cfg.SimulationTime != 30*time.Second || cfg.Layers != 3 || cfg.Stations != 5 || cfg.Bulk != 2 || cfg.PHY != "ax" {
		t.Fatalf("decoded config = %+v", cfg)
	}
	if cfg.BulkTraffic.OffMean != 2*time.Second || cfg.BulkTraffic.OnTime != time.Second {
		t.Fatalf("bulk traffic = %+v, want off_mean=2s with default on_time", cfg.BulkTraffic)
	}
	if cfg.Warmup != time.Second || cfg.Radius != 65 {
		t.Fatalf("defaults not kept: warmup=%v radius=%v", cfg.Warmup, cfg.Radius)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	if _, err := Decode(strings.NewReader("layer: 3\n")); err == nil {
		t.Fatalf("expected unknown key to fail")
	}
}

func TestDecodeEmpty(t *testing.T) {
	cfg, err := Decode(strings.NewReader("  \n"))
	if err != nil {
		t.Fatalf("Decode(empty) error: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Decode(empty) = %+v, want defaults", cfg)
	}
}

func TestLoadAndMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Layers = 4
	cfg.Seed = 99
	data, err := Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got != cfg {
		t.Fatalf("Load = %+v, want %+v", got, cfg)
	}
}

func TestRegisterFlags(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	err := fs.Parse([]string{"-layers=3", "-stations=5", "-bulk=1", "-phy=n", "-simulationTime=20s", "-rts", "-seed=7"})
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Layers != 3 || cfg.Stations != 5 || cfg.Bulk != 1 || cfg.PHY != "n" || cfg.SimulationTime != 20*time.Second || !cfg.RTSCTS || cfg.Seed != 7 {
		t.Fatalf("flags not applied: %+v", cfg)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Scenario)
		want   error
	}{
		"negative layers":     {func(c *Scenario) { c.Layers = -1 }, core.ErrInvalidArgument},
		"bulk above stations": {func(c *Scenario) { c.Stations = 2; c.Bulk = 3 }, core.ErrInvalidArgument},
		"warmup at end":       {func(c *Scenario) { c.Warmup = c.SimulationTime }, core.ErrInvalidArgument},
		"unknown phy":         {func(c *Scenario) { c.PHY = "b" }, core.ErrInvalidArgument},
		"bad base":            {func(c *Scenario) { c.AddressBase = "10.1.0.0" }, core.ErrInvalidArgument},
		"too many stations":   {func(c *Scenario) { c.Stations = 300 }, core.ErrCapacityExceeded},
		"unknown scatter":     {func(c *Scenario) { c.Scatter = "grid" }, core.ErrInvalidArgument},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}
