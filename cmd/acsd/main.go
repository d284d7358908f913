package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/markus-lassfolk/acsd/pkg/api"
	"github.com/markus-lassfolk/acsd/pkg/logx"
	"github.com/markus-lassfolk/acsd/pkg/metrics"
	"github.com/markus-lassfolk/acsd/pkg/mqtt"
	"github.com/markus-lassfolk/acsd/pkg/pidfile"
	"github.com/markus-lassfolk/acsd/pkg/tracing"
	"github.com/markus-lassfolk/acsd/pkg/uci"
	"github.com/markus-lassfolk/acsd/pkg/wifi"
)

var (
	configPath   = flag.String("config", uci.DefaultConfigPath, "Path to UCI configuration file")
	wirelessPath = flag.String("wireless", uci.DefaultWirelessPath, "Path to the UCI wireless configuration")
	pidPath      = flag.String("pid-file", "/var/run/acsd.pid", "Path to PID file")
	logLevel     = flag.String("log-level", "", "Override log level (trace|debug|info|warn|error)")
	dryRun       = flag.Bool("dry-run", false, "Select channels but do not write them")
	once         = flag.Bool("once", false, "Run one selection on every radio and exit")
	version      = flag.Bool("version", false, "Show version information")
)

const (
	AppName = "acsd"

	onceTimeout     = 2 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// AppVersion is set at build time
var AppVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	effectiveLogLevel := uci.DefaultLogLevel
	if *logLevel != "" {
		effectiveLogLevel = *logLevel
	}
	logger := logx.NewLogger(effectiveLogLevel, AppName)

	if err := run(logger); err != nil {
		logger.Error("acsd failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *logx.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !*once {
		pidFile := pidfile.New(*pidPath)
		if err := pidFile.Create(); err != nil {
			return fmt.Errorf("failed to create PID file %s: %w", *pidPath, err)
		}
		defer func() {
			if err := pidFile.Remove(); err != nil {
				logger.Error("Failed to remove PID file", "error", err)
			}
		}()
	}

	logger.Info("Starting channel selection daemon", "version", AppVersion, "pid", os.Getpid())

	// Fill in missing options before loading so the file documents every knob
	if filepath.Base(*configPath) == uci.DaemonConfig {
		manager := uci.NewConfigManager(uci.NewNativeUCI(filepath.Dir(*configPath), logger), logger)
		if added, err := manager.EnsureRequiredConfig(ctx); err != nil {
			logger.Warn("Failed to ensure required configuration", "error", err)
		} else if len(added) > 0 {
			logger.Info("Added missing configuration options", "options", added)
		}
	}

	cfg, err := uci.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger.SetLevel(cfg.LogLevel)
	if *dryRun {
		cfg.DryRun = true
	}

	if !cfg.Enabled {
		logger.Info("Channel selection disabled in configuration, exiting")
		return nil
	}

	if filepath.Base(*wirelessPath) != uci.WirelessConfig {
		return fmt.Errorf("wireless config must be named %q, got %s", uci.WirelessConfig, *wirelessPath)
	}
	wireless := uci.NewNativeUCI(filepath.Dir(*wirelessPath), logger)
	radios, err := uci.LoadRadios(ctx, wireless)
	if err != nil {
		return fmt.Errorf("failed to load wireless configuration: %w", err)
	}

	validation := uci.NewConfigValidator(logger).Validate(cfg, radios)
	if !validation.Valid {
		return fmt.Errorf("configuration has %d errors", validation.Summary.TotalErrors)
	}

	logger.Info("Configuration loaded",
		"dry_run", cfg.DryRun,
		"reg_domain", cfg.RegDomain,
		"use_dfs", cfg.UseDFS,
		"chan_time_ms", cfg.ChanTimeMS,
		"survey_backend", cfg.SurveyBackend)

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	shutdownTracing, err := tracing.Init(ctx, tracing.ConfigFrom(cfg), logger.With("component", "tracing"))
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer tracing.Shutdown(context.Background(), shutdownTracing, logger)

	mqttClient := mqtt.NewClient(mqtt.ConfigFrom(cfg), logger.With("component", "mqtt"))
	if err := mqttClient.Connect(); err != nil {
		logger.Warn("MQTT unavailable, outcomes will not be published", "error", err)
	}
	mqttClient.Start(ctx)
	defer mqttClient.Disconnect()

	health := api.NewHealthServer(cfg.GRPCListen, logger.With("component", "health"))
	perf := logx.NewPerformanceLogger(logger, 5*time.Second)

	// On the device, commit through the uci tool so LuCI sees the same staging area
	var store uci.Store = wireless
	if *wirelessPath == uci.DefaultWirelessPath {
		if cli := uci.NewUCI(logger); cli.ValidateUCI(ctx) == nil {
			store = cli
		}
	}

	manager := wifi.NewRadioManager(cfg, store, logger,
		wifi.WithObservers(collector, mqttClient, health, tracing.NewCycleTracer(nil)),
		wifi.WithPerformanceLogger(perf))
	if err := manager.Load(radios); err != nil {
		return err
	}
	health.Register(manager.Names()...)

	if *once {
		return runOnce(ctx, manager, logger)
	}

	if err := health.Start(); err != nil {
		return err
	}
	defer health.Stop()

	scheduler := wifi.NewScheduler(manager, logger.With("component", "scheduler"), wifi.SchedulerConfigFrom(cfg))
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	server := api.NewServer(manager, &api.Config{Listen: cfg.HTTPListen, AuthKey: cfg.APIKey},
		logger.With("component", "api"),
		api.WithMetricsHandler(collector.Handler()),
		api.WithScheduler(scheduler))
	if err := server.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if err := server.Stop(stopCtx); err != nil {
			logger.Warn("HTTP API shutdown incomplete", "error", err)
		}
	}()

	// Startup selection, as hostapd does when the interface comes up
	for radio, err := range manager.SelectAll(ctx) {
		logger.Warn("Initial selection did not start", "radio", radio, "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			logger.Info("Received SIGHUP, re-running selection")
			for radio, err := range manager.SelectAll(ctx) {
				logger.Warn("Selection did not start", "radio", radio, "error", err)
			}
			continue
		}

		logger.Info("Received shutdown signal", "signal", sig.String())
		break
	}

	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer waitCancel()
	if err := manager.WaitIdle(waitCtx); err != nil {
		logger.Warn("Shutdown timeout exceeded with selection in progress")
	}
	perf.LogMetrics()
	logger.Info("Graceful shutdown completed")
	return nil
}

// runOnce selects on every radio, waits for the outcomes and fails if any radio did
func runOnce(ctx context.Context, manager *wifi.RadioManager, logger *logx.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, onceTimeout)
	defer cancel()

	failed := manager.SelectAll(ctx)
	for radio, err := range failed {
		logger.Error("Selection did not start", "radio", radio, "error", err)
	}
	if err := manager.WaitIdle(ctx); err != nil {
		return fmt.Errorf("selection did not finish: %w", err)
	}

	for _, st := range manager.Radios() {
		if st.LastOutcome == nil {
			continue
		}
		o := st.LastOutcome
		if !o.Success() {
			failed[st.Name] = o.Err
			fmt.Printf("%s: failed (%s)\n", st.Name, o.Reason)
			continue
		}
		fmt.Printf("%s: channel %d, %d MHz\n", st.Name, o.Channel, o.Bandwidth)
	}

	if len(failed) > 0 {
		return fmt.Errorf("selection failed on %d radio(s)", len(failed))
	}
	return nil
}
