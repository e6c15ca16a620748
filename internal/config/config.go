// Package config holds the run-wide scenario parameters. Values come from
// Default(), optionally overlaid by a YAML file, then by command-line flags.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/hew-outdoor/core"
)

// Scenario is the complete configuration of one outdoor scenario run.
type Scenario struct {
	SimulationTime time.Duration `yaml:"simulation_time"`
	Warmup         time.Duration `yaml:"warmup"`

	Layers   int     `yaml:"layers"`
	Stations int     `yaml:"stations"`
	Bulk     int     `yaml:"bulk"`
	Radius   float64 `yaml:"radius"` // h: half the AP spacing, metres
	Scatter  string  `yaml:"scatter"`

	PHY          string `yaml:"phy"`
	ChannelWidth int    `yaml:"channel_width"` // 0 keeps the PHY default
	RTSCTS       bool   `yaml:"rts"`

	OfferedLoadMbps float64 `yaml:"load"`
	PacketSize      int     `yaml:"packet_size"`
	BulkTraffic     Bulk    `yaml:"bulk_traffic"`

	AddressBase string `yaml:"address_base"`
	Seed        uint64 `yaml:"seed"`

	Debug   bool   `yaml:"debug"`
	Tracing bool   `yaml:"tracing"`
	Pcap    bool   `yaml:"pcap"`
	Results string `yaml:"results"` // flow-stat CSV path; empty disables
}

// Bulk parameterises the on/off bulk sources.
type Bulk struct {
	OnTime     time.Duration `yaml:"on_time"`
	OffMean    time.Duration `yaml:"off_mean"`
	OffBound   time.Duration `yaml:"off_bound"`
	PacketSize int           `yaml:"packet_size"`
	RateMbps   float64       `yaml:"rate"`
}

// Default returns the parameters of the reference outdoor scenario.
func Default() Scenario {
	b := core.DefaultBulkConfig()
	return Scenario{
		SimulationTime:  10 * time.Second,
		Warmup:          time.Second,
		Layers:          1,
		Stations:        1,
		Bulk:            0,
		Radius:          65,
		Scatter:         core.ScatterPolar.String(),
		PHY:             "ac",
		OfferedLoadMbps: 1,
		PacketSize:      1472,
		BulkTraffic: Bulk{
			OnTime:     b.OnTime,
			OffMean:    b.OffMean,
			OffBound:   b.OffBound,
			PacketSize: b.PacketSizeBytes,
			RateMbps:   b.DataRateMbps,
		},
		AddressBase: core.DefaultAddressBase.String(),
		Seed:        1,
	}
}

// Load overlays the YAML file at path onto Default().
func Load(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("open scenario config %q: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode overlays the YAML document read from r onto Default(). Unknown keys
// are rejected.
func Decode(r io.Reader) (Scenario, error) {
	cfg := Default()
	data, err := io.ReadAll(r)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario config: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Scenario{}, fmt.Errorf("decode scenario config: %w", err)
	}
	return cfg, nil
}

// Marshal renders cfg as YAML, e.g. to store alongside results.
func Marshal(cfg Scenario) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// RegisterFlags binds every option to fs, using the current values of cfg
// as defaults. Parse fs after calling this.
func (cfg *Scenario) RegisterFlags(fs *flag.FlagSet) {
	fs.DurationVar(&cfg.SimulationTime, "simulationTime", cfg.SimulationTime, "simulation time")
	fs.DurationVar(&cfg.Warmup, "warmup", cfg.Warmup, "warm-up before traffic sources start")
	fs.IntVar(&cfg.Layers, "layers", cfg.Layers, "number of layers in the hex grid")
	fs.IntVar(&cfg.Stations, "stations", cfg.Stations, "number of stations in each cell")
	fs.IntVar(&cfg.Bulk, "bulk", cfg.Bulk, "number of bulk (FTP-like) stations in each cell")
	fs.Float64Var(&cfg.Radius, "radius", cfg.Radius, "cell radius h in metres (half the AP spacing)")
	fs.StringVar(&cfg.Scatter, "scatter", cfg.Scatter, "station placement: polar or uniform-area")
	fs.StringVar(&cfg.PHY, "phy", cfg.PHY, "802.11 PHY: n, ac or ax")
	fs.IntVar(&cfg.ChannelWidth, "channelWidth", cfg.ChannelWidth, "channel width in MHz (0 = PHY default)")
	fs.BoolVar(&cfg.RTSCTS, "rts", cfg.RTSCTS, "enable RTS/CTS")
	fs.Float64Var(&cfg.OfferedLoadMbps, "load", cfg.OfferedLoadMbps, "offered load per constant-rate station [Mb/s]")
	fs.IntVar(&cfg.PacketSize, "packetSize", cfg.PacketSize, "constant-rate packet size [bytes]")
	fs.StringVar(&cfg.AddressBase, "addressBase", cfg.AddressBase, "IPv4 /16 that cell subnets are carved from")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed for placement and start jitter")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging and position dumps")
	fs.BoolVar(&cfg.Tracing, "tracing", cfg.Tracing, "enable OpenTelemetry tracing of the build")
	fs.BoolVar(&cfg.Pcap, "pcap", cfg.Pcap, "ask the engine to capture packets")
	fs.StringVar(&cfg.Results, "results", cfg.Results, "append flow statistics to this CSV file")
}

// Validate checks cross-field constraints. Errors wrap the core sentinels so
// callers can tell configuration errors from everything else.
func (cfg Scenario) Validate() error {
	if _, err := core.CellCount(cfg.Layers); err != nil {
		return err
	}
	if cfg.Stations < 0 {
		return fmt.Errorf("%w: stations must be >= 0, got %d", core.ErrInvalidArgument, cfg.Stations)
	}
	if cfg.Stations > core.MaxStationsPerCell {
		return fmt.Errorf("%w: %d stations per cell, at most %d are addressable", core.ErrCapacityExceeded, cfg.Stations, core.MaxStationsPerCell)
	}
	if cfg.Bulk < 0 || cfg.Bulk > cfg.Stations {
		return fmt.Errorf("%w: bulk count %d outside [0, %d]", core.ErrInvalidArgument, cfg.Bulk, cfg.Stations)
	}
	if _, err := core.ParseScatterStrategy(cfg.Scatter); err != nil {
		return err
	}
	if _, err := cfg.Radio(); err != nil {
		return err
	}
	if _, err := cfg.Prefix(); err != nil {
		return err
	}
	return cfg.Traffic().Validate()
}

// Traffic returns the scheduler parameters.
func (cfg Scenario) Traffic() core.TrafficConfig {
	return core.TrafficConfig{
		Warmup:          cfg.Warmup,
		Duration:        cfg.SimulationTime,
		OfferedLoadMbps: cfg.OfferedLoadMbps,
		PacketSizeBytes: cfg.PacketSize,
		Bulk: core.BulkConfig{
			OnTime:          cfg.BulkTraffic.OnTime,
			OffMean:         cfg.BulkTraffic.OffMean,
			OffBound:        cfg.BulkTraffic.OffBound,
			PacketSizeBytes: cfg.BulkTraffic.PacketSize,
			DataRateMbps:    cfg.BulkTraffic.RateMbps,
		},
	}
}

// Radio returns the PHY/MAC setup.
func (cfg Scenario) Radio() (core.RadioProfile, error) {
	return core.NewRadioProfile(cfg.PHY, cfg.ChannelWidth, cfg.RTSCTS, cfg.Pcap)
}

// Prefix parses AddressBase.
func (cfg Scenario) Prefix() (netip.Prefix, error) {
	p, err := netip.ParsePrefix(cfg.AddressBase)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: address base %q: %v", core.ErrInvalidArgument, cfg.AddressBase, err)
	}
	return p, nil
}

// ScatterStrategy parses Scatter.
func (cfg Scenario) ScatterStrategy() (core.ScatterStrategy, error) {
	return core.ParseScatterStrategy(cfg.Scatter)
}
