// Command da-sim runs a simulated DA bridge agent.
//
// The simulator serves an in-memory address space over the DA bridge
// protocol, perturbs numeric items periodically so subscriptions see
// changes, and advertises itself over mDNS (_opcda-bridge._tcp) so
// gateways can discover it.
//
// Usage:
//
//	da-sim [flags]
//
// Flags:
//
//	-listen string      Listen address (default ":4841")
//	-progid string      Comma-separated ProgIDs served (default "OpenPlant.Simulation.1")
//	-space string       Address space file (YAML); built-in demo items if empty
//	-user string        Accepted user name (requires -password)
//	-password string    Shared secret for -user
//	-min-rate duration  Fastest group update rate granted (default 250ms)
//	-tick duration      Value perturbation period, 0 disables (default 1s)
//	-advertise          Advertise over mDNS (default true)
//	-instance string    mDNS instance name (default: host name)
//	-tls-cert string    Serve TLS with this certificate (PEM, requires -tls-key)
//	-tls-key string     Private key for -tls-cert (PEM)
//	-tls-ca string      Require client certificates signed by this CA (PEM)
//	-log-level string   Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Demo plant on the default port
//	da-sim
//
//	# Two ProgIDs with authentication and a custom address space
//	da-sim -progid Sim.A.1,Sim.B.1 -user gateway -password s3cret -space plant.yaml
//
//	# TLS with a lab certificate
//	da-sim -tls-cert agent.pem -tls-key agent.key
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/config"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/dasim"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/discovery"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/transport"
)

// Version is reported in the mDNS TXT record.
const Version = "1.0"

// Flags holds the command line.
type Flags struct {
	Listen    string
	ProgIDs   string
	Space     string
	User      string
	Password  string
	MinRate   time.Duration
	Tick      time.Duration
	Advertise bool
	Instance  string
	TLSCert   string
	TLSKey    string
	TLSCA     string
	LogLevel  string
}

var flags Flags

func init() {
	flag.StringVar(&flags.Listen, "listen", ":4841", "Listen address")
	flag.StringVar(&flags.ProgIDs, "progid", dasim.DefaultProgID, "Comma-separated ProgIDs served")
	flag.StringVar(&flags.Space, "space", "", "Address space file (YAML); built-in demo items if empty")
	flag.StringVar(&flags.User, "user", "", "Accepted user name (requires -password)")
	flag.StringVar(&flags.Password, "password", "", "Shared secret for -user")
	flag.DurationVar(&flags.MinRate, "min-rate", dasim.DefaultMinRate, "Fastest group update rate granted")
	flag.DurationVar(&flags.Tick, "tick", time.Second, "Value perturbation period, 0 disables")
	flag.BoolVar(&flags.Advertise, "advertise", true, "Advertise over mDNS")
	flag.StringVar(&flags.Instance, "instance", "", "mDNS instance name (default: host name)")
	flag.StringVar(&flags.TLSCert, "tls-cert", "", "Serve TLS with this certificate (PEM, requires -tls-key)")
	flag.StringVar(&flags.TLSKey, "tls-key", "", "Private key for -tls-cert (PEM)")
	flag.StringVar(&flags.TLSCA, "tls-ca", "", "Require client certificates signed by this CA (PEM)")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "da-sim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level, err := config.ParseLevel(flags.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	progIDs := splitList(flags.ProgIDs)
	if len(progIDs) == 0 {
		return fmt.Errorf("no ProgID given")
	}

	items := defaultItems()
	if flags.Space != "" {
		items, err = loadSpace(flags.Space)
		if err != nil {
			return err
		}
	}

	users := map[string][]byte{}
	if flags.User != "" {
		if flags.Password == "" {
			return fmt.Errorf("-user requires -password")
		}
		users[flags.User] = []byte(flags.Password)
	}

	tlsConfig, err := serverTLS()
	if err != nil {
		return err
	}

	sim := dasim.New(dasim.Config{
		ProgIDs: progIDs,
		Users:   users,
		MinRate: flags.MinRate,
		TLS:     tlsConfig,
		Logger:  logger,
	})
	populate(sim.Space(), items)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sim.Start(ctx, flags.Listen); err != nil {
		return err
	}
	defer func() { _ = sim.Stop() }()

	for _, id := range progIDs {
		logger.Info("serving", "endpoint", sim.Endpoint(id), "items", len(items), "tls", tlsConfig != nil)
	}

	if flags.Advertise {
		adv, err := advertise(sim, progIDs, logger)
		if err != nil {
			// Still reachable by URL.
			logger.Warn("mDNS advertising unavailable", "error", err)
		} else {
			defer adv.StopAll()
		}
	}

	if flags.Tick > 0 {
		go sim.Run(ctx, flags.Tick)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal", "signal", sig)
	return nil
}

// serverTLS returns nil when no certificate is configured.
func serverTLS() (*tls.Config, error) {
	if flags.TLSCert == "" && flags.TLSKey == "" {
		if flags.TLSCA != "" {
			return nil, fmt.Errorf("-tls-ca requires -tls-cert")
		}
		return nil, nil
	}
	if flags.TLSCert == "" || flags.TLSKey == "" {
		return nil, fmt.Errorf("-tls-cert and -tls-key must be given together")
	}
	cfg, err := transport.TLSFiles{
		CertFile: flags.TLSCert,
		KeyFile:  flags.TLSKey,
		CAFile:   flags.TLSCA,
	}.Load()
	if err != nil {
		return nil, err
	}
	if flags.TLSCA != "" {
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

func advertise(sim *dasim.Simulator, progIDs []string, logger *slog.Logger) (*discovery.MDNSAdvertiser, error) {
	tcp, ok := sim.Addr().(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected listen address %v", sim.Addr())
	}

	instance := flags.Instance
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "da-sim"
		}
		instance = "da-sim-" + strings.Split(host, ".")[0]
	}

	adv := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
		TTL:    discovery.DefaultTTL,
		Logger: logger,
	})
	err := adv.Advertise(discovery.Advertisement{
		Kind:     discovery.KindDABridge,
		Instance: instance,
		Port:     uint16(tcp.Port),
		TXT:      discovery.BridgeTXT(progIDs, "OpenPlant", Version),
	})
	if err != nil {
		return nil, err
	}
	return adv, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
