// Command hew-outdoor generates an outdoor HEW WLAN scenario (hexagonal AP
// grid, scattered stations, per-cell subnets and upstream flows), plays it
// back on the in-memory engine and reports per-flow results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/hew-outdoor/core"
	"github.com/signalsfoundry/hew-outdoor/internal/config"
	"github.com/signalsfoundry/hew-outdoor/internal/flowstats"
	"github.com/signalsfoundry/hew-outdoor/internal/logging"
	"github.com/signalsfoundry/hew-outdoor/internal/observability"
	"github.com/signalsfoundry/hew-outdoor/internal/scenario"
	"github.com/signalsfoundry/hew-outdoor/model"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	cfg         config.Scenario
	configPath  string
	metricsOut  string
	printConfig bool
	tick        time.Duration
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	opts := options{cfg: config.Default()}
	fs := flag.NewFlagSet("hew-outdoor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts.cfg.RegisterFlags(fs)
	fs.StringVar(&opts.configPath, "config", "", "YAML scenario file; flags given on the command line override it")
	fs.StringVar(&opts.metricsOut, "metrics-out", "", "write Prometheus metrics to this textfile after the run")
	fs.BoolVar(&opts.printConfig, "print-config", false, "print the effective configuration as YAML and exit")
	fs.DurationVar(&opts.tick, "tick", 100*time.Millisecond, "playback step of the in-memory engine")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.configPath == "" {
		return opts, nil
	}

	fileCfg, err := config.Load(opts.configPath)
	if err != nil {
		return opts, err
	}
	overlay := flag.NewFlagSet("overlay", flag.ContinueOnError)
	overlay.SetOutput(io.Discard)
	fileCfg.RegisterFlags(overlay)
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if overlay.Lookup(f.Name) == nil || setErr != nil {
			return
		}
		setErr = overlay.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return opts, setErr
	}
	opts.cfg = fileCfg
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "hew-outdoor: %v\n", err)
		return exitConfig
	}
	cfg := opts.cfg

	if opts.printConfig {
		data, err := config.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(stderr, "hew-outdoor: %v\n", err)
			return exitFailed
		}
		_, _ = stdout.Write(data)
		return exitOK
	}

	base := logging.NewFromEnv(cfg.Debug)
	ctx, log := logging.WithRunLogger(ctx, base)

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(cfg.Tracing), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		return exitFailed
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	collector, err := observability.NewScenarioCollector(prometheus.NewRegistry())
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		return exitFailed
	}
	defer writeMetrics(ctx, collector, opts.metricsOut, log)

	engineOpts := []scenario.RecordingOption{
		scenario.WithTick(opts.tick),
		scenario.WithBurstSeed(cfg.Seed),
		scenario.WithEngineLogger(log),
	}
	if cfg.Results != "" {
		w, err := flowstats.Append(cfg.Results)
		if err != nil {
			log.Error(ctx, "failed to open results file", logging.String("path", cfg.Results), logging.Err(err))
			return exitFailed
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.Warn(ctx, "closing results file failed", logging.Err(err))
			}
		}()
		engineOpts = append(engineOpts, scenario.WithResultsWriter(w))
	}
	eng := scenario.NewRecordingEngine(engineOpts...)

	builder := scenario.NewBuilder(
		scenario.WithLogger(base),
		scenario.WithMetricsRecorder(collector),
	)
	sc, err := builder.Build(ctx, cfg, eng)
	if err != nil {
		log.Error(ctx, "scenario build failed", logging.Err(err))
		if errors.Is(err, core.ErrInvalidArgument) || errors.Is(err, core.ErrCapacityExceeded) {
			return exitConfig
		}
		return exitFailed
	}

	results, err := eng.Run(ctx, cfg.SimulationTime)
	if err != nil {
		log.Error(ctx, "playback failed", logging.Err(err))
		return exitFailed
	}
	recs, err := scenario.Report(ctx, eng, sc, time.Now().UTC(), results)
	if err != nil {
		log.Error(ctx, "recording flow stats failed", logging.Err(err))
		return exitFailed
	}

	printSummary(stdout, sc, recs)
	return exitOK
}

func printSummary(w io.Writer, sc *scenario.Scenario, recs []flowstats.Record) {
	counts := sc.FlowCounts()
	sum := flowstats.Summarize(recs)
	fmt.Fprintf(w, "run %s\n", sc.RunID)
	fmt.Fprintf(w, "cells: %d  stations: %d  phy: %s (%d MHz)\n",
		len(sc.Cells), sc.StationCount(), sc.Radio.PHY.Name, sc.Radio.ChannelWidth)
	fmt.Fprintf(w, "flows: %d bulk, %d constant-rate\n",
		counts[model.TrafficBulk], counts[model.TrafficConstantRate])
	for _, r := range recs {
		fmt.Fprintf(w, "  %-15s -> %-15s %8.3f Mb/s %10.3g s\n", r.Source, r.Destination, r.ThroughputMbps, r.DelaySeconds)
	}
	fmt.Fprintf(w, "total throughput: %.3f Mb/s  mean: %.3f Mb/s  mean delay: %.3g s\n",
		sum.TotalThroughputMbps, sum.MeanThroughputMbps, sum.MeanDelaySeconds)
}

func writeMetrics(ctx context.Context, collector *observability.ScenarioCollector, path string, log logging.Logger) {
	if path == "" {
		return
	}
	if err := collector.WriteTextfile(path); err != nil {
		log.Warn(ctx, "writing metrics textfile failed", logging.String("path", path), logging.Err(err))
	}
}
