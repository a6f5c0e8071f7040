// Command opcgw runs the OPC tag gateway.
//
// The gateway serves DA servers (through bridge agents, opcda://) and UA
// servers (opc.tcp://) from one process. Each family has its own engine:
// tag registry, subscription groups, connection pool and inactivity reaper.
//
// Usage:
//
//	opcgw [flags]
//
// Flags:
//
//	-config string          Configuration file path (YAML)
//	-log-level string       Log level: debug, info, warn, error (overrides config)
//	-protocol-log string    Append CBOR protocol events to this file (overrides config)
//	-interactive            Enable the operator console
//	-stats-interval dur     Log cache statistics periodically, 0 disables (default 1m)
//
// Examples:
//
//	# Console with debug logging
//	opcgw -interactive -log-level debug
//
//	# Production with protocol capture
//	opcgw -config /etc/opcgw/opcgw.yaml -protocol-log /var/log/opcgw/protocol.glog
//
// Console Commands:
//
//	read <endpoint> <interval> <item>...  - Read items through the cache
//	browse <endpoint> [path]              - Browse the address space
//	status <endpoint>                     - Backend server status
//	disconnect <endpoint>                 - Drop a connection and its tags
//	tags, groups, endpoints, stats, sweep - Inspect the registry
//	discover [ua|da]                      - mDNS discovery
//	quit                                  - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/cmd/opcgw/interactive"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/config"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/discovery"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/engine"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/opcda"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/opcua"
)

// Flags holds the command line.
type Flags struct {
	ConfigFile    string
	LogLevel      string
	ProtocolLog   string
	Interactive   bool
	StatsInterval time.Duration
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Append CBOR protocol events to this file (overrides config)")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable the operator console")
	flag.DurationVar(&flags.StatsInterval, "stats-interval", time.Minute, "Log cache statistics periodically, 0 disables")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "opcgw: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	if flags.ConfigFile != "" {
		loaded, err := config.Load(flags.ConfigFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}
	if flags.ProtocolLog != "" {
		cfg.ProtocolLog = flags.ProtocolLog
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	out := &switchWriter{w: os.Stderr}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("OPC gateway starting", "config", flags.ConfigFile, "log_level", level)

	protocolLogger, closeProtocol, err := setupProtocolLog(cfg, logger)
	if err != nil {
		return err
	}
	defer closeProtocol()

	daConfig, err := cfg.DADriver(logger)
	if err != nil {
		return err
	}
	daEngineConfig := cfg.Engine(opcda.Family, logger)
	daEngineConfig.ProtocolLogger = protocolLogger
	da, err := engine.NewDA(daEngineConfig, engine.WithDAConfig(daConfig))
	if err != nil {
		return fmt.Errorf("DA engine: %w", err)
	}
	defer da.Close()

	uaEngineConfig := cfg.Engine(opcua.Family, logger)
	uaEngineConfig.ProtocolLogger = protocolLogger
	ua, err := engine.NewUA(uaEngineConfig, engine.WithUAConfig(cfg.UADriver(logger)))
	if err != nil {
		return fmt.Errorf("UA engine: %w", err)
	}
	defer ua.Close()

	router := interactive.NewRouter()
	router.Add(opcda.Scheme, da)
	router.Add(opcua.Scheme, ua)

	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{
		BrowseTimeout: cfg.Discovery.Timeout,
		Interface:     cfg.Discovery.Interface,
		Logger:        logger,
	})
	defer browser.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if flags.StatsInterval > 0 {
		go runStatsLoop(ctx, logger, flags.StatsInterval, da, ua)
	}

	if flags.Interactive {
		console, err := interactive.New(router, browser)
		if err != nil {
			return err
		}
		console.DiscoverTimeout = cfg.Discovery.Timeout
		// Route log output through readline to avoid interfering with input
		out.Set(console.Stderr())
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
		// Console quit
	}

	logger.Info("shutting down")
	out.Set(os.Stderr)
	return nil
}

// setupProtocolLog mirrors protocol events into the operational log at
// debug level, plus a CBOR file when configured.
func setupProtocolLog(cfg *config.Config, logger *slog.Logger) (log.Logger, func(), error) {
	adapter := log.NewSlogAdapter(logger)
	if cfg.ProtocolLog == "" {
		if !logger.Enabled(context.Background(), slog.LevelDebug) {
			return nil, func() {}, nil
		}
		return adapter, func() {}, nil
	}

	fl, err := log.NewFileLogger(cfg.ProtocolLog, cfg.CaptureOptions()...)
	if err != nil {
		return nil, nil, fmt.Errorf("protocol log: %w", err)
	}
	logger.Info("protocol capture enabled",
		"path", cfg.ProtocolLog, "max_size", cfg.ProtocolLogMaxSize, "max_backups", cfg.ProtocolLogMaxBackups)
	closer := func() {
		if n := fl.Dropped(); n > 0 {
			logger.Warn("protocol capture dropped events", "count", n)
		}
		if err := fl.Close(); err != nil {
			logger.Warn("protocol log close failed", "error", err)
		}
	}
	return log.NewMultiLogger(adapter, fl), closer, nil
}

func runStatsLoop(ctx context.Context, logger *slog.Logger, interval time.Duration, engines ...*engine.Engine) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, e := range engines {
				s := e.Stats()
				logger.Info("cache statistics",
					"family", e.Family(),
					"calls_per_minute", s.CallsPerMinute,
					"tags", len(e.Tags()),
					"hit_ratio", s.HitRatio(),
					"failures", s.Failures,
					"evictions", s.Evictions)
			}
		}
	}
}

// switchWriter lets the console take over log output after startup.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}
