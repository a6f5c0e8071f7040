package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration

	Logger *slog.Logger
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: DefaultTTL}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindAll when the context carries no deadline.
	// Default: 3 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	Logger *slog.Logger
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{BrowseTimeout: BrowseTimeout}
}

// registration is the part of *zeroconf.Server the advertiser uses.
type registration interface {
	SetText(text []string)
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface, opts ...zeroconf.ServerOption) (registration, error)

type browseFunc func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

func zeroconfBrowse(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
	return zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
}

func zeroconfRegister(instance, service, domain string, port int, text []string, ifaces []net.Interface, opts ...zeroconf.ServerOption) (registration, error) {
	server, err := zeroconf.Register(instance, service, domain, port, text, ifaces, opts...)
	if err != nil {
		return nil, err
	}
	return server, nil
}

// MDNSAdvertiser publishes services using zeroconf.
type MDNSAdvertiser struct {
	config   AdvertiserConfig
	logger   *slog.Logger
	register registerFunc

	mu      sync.Mutex
	servers map[string]registration // keyed by instance name
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MDNSAdvertiser{
		config:   config,
		logger:   logger,
		register: zeroconfRegister,
		servers:  make(map[string]registration),
	}
}

// Advertise starts publishing a service. An existing advertisement with the
// same instance name is replaced.
func (a *MDNSAdvertiser) Advertise(ad Advertisement) error {
	if err := ad.Validate(); err != nil {
		return err
	}
	serviceType, _ := ad.Kind.ServiceType()

	a.mu.Lock()
	defer a.mu.Unlock()

	if old, ok := a.servers[ad.Instance]; ok {
		old.Shutdown()
		delete(a.servers, ad.Instance)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := a.register(
		ad.Instance,
		serviceType,
		Domain,
		int(ad.Port),
		TXTRecordsToStrings(ad.TXT),
		interfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s service: %w", ad.Kind, err)
	}
	a.servers[ad.Instance] = server
	a.logger.Info("advertising service", "instance", ad.Instance, "type", serviceType, "port", ad.Port)
	return nil
}

// Update replaces the TXT records of an active advertisement.
func (a *MDNSAdvertiser) Update(instance string, txt TXTRecordMap) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, ok := a.servers[instance]
	if !ok {
		return fmt.Errorf("discovery: %q not advertised", instance)
	}
	server.SetText(TXTRecordsToStrings(txt))
	return nil
}

// Stop withdraws one advertisement.
func (a *MDNSAdvertiser) Stop(instance string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if server, ok := a.servers[instance]; ok {
		server.Shutdown()
		delete(a.servers, instance)
	}
}

// StopAll withdraws every advertisement.
func (a *MDNSAdvertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, server := range a.servers {
		server.Shutdown()
		delete(a.servers, name)
	}
}

// MDNSBrowser finds services using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
	logger *slog.Logger
	browse browseFunc

	mu      sync.Mutex
	stopped bool
	cancels map[int]context.CancelFunc
	nextID  int
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	return &MDNSBrowser{
		config:  config,
		logger:  logger,
		browse:  zeroconfBrowse,
		cancels: make(map[int]context.CancelFunc),
	}
}

// Browse searches for services of the given kind. Services are aggregated
// by instance name; each instance is emitted once, when first seen. The
// channel is closed when ctx is cancelled or the browser is stopped.
func (b *MDNSBrowser) Browse(ctx context.Context, kind Kind) (<-chan *Service, error) {
	serviceType, err := kind.ServiceType()
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, context.Canceled
	}
	ctx, cancel := context.WithCancel(ctx)
	id := b.nextID
	b.nextID++
	b.cancels[id] = cancel
	b.mu.Unlock()

	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		defer b.release(id)

		agg := newAggregator(kind)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc, isNew := agg.add(entry)
				if !isNew {
					continue
				}
				emit := *svc
				emit.Addresses = slices.Clone(svc.Addresses)
				select {
				case out <- &emit:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				if agg.remove(entry) {
					b.logger.Debug("service gone", "instance", entry.Instance, "type", serviceType)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := b.browse(ctx, serviceType, Domain, entries, removed, b.browserOptions()...); err != nil && ctx.Err() == nil {
			b.logger.Warn("mdns browse failed", "type", serviceType, "error", err)
			cancel()
		}
	}()

	return out, nil
}

// FindAll collects the services of the given kind that answer before ctx
// expires. Without a deadline on ctx the configured BrowseTimeout applies.
// Expiry is not an error: whatever was collected is returned.
func (b *MDNSBrowser) FindAll(ctx context.Context, kind Kind) ([]*Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}

	ch, err := b.Browse(ctx, kind)
	if err != nil {
		return nil, err
	}
	results := []*Service{}
	for svc := range ch {
		results = append(results, svc)
	}
	return results, nil
}

// Stop stops all active browsing operations.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
}

func (b *MDNSBrowser) release(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.cancels[id]; ok {
		cancel()
		delete(b.cancels, id)
	}
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return opts
}

// interfaces returns the network interfaces to use. Returns nil to use all
// interfaces.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// aggregator merges per-interface answers into one Service per instance.
type aggregator struct {
	kind     Kind
	services map[string]*Service
}

func newAggregator(kind Kind) *aggregator {
	return &aggregator{kind: kind, services: make(map[string]*Service)}
}

// add records an answer and reports whether the instance is new.
func (g *aggregator) add(entry *zeroconf.ServiceEntry) (*Service, bool) {
	svc := g.toService(entry)
	if existing, found := g.services[svc.Instance]; found {
		existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
		return existing, false
	}
	g.services[svc.Instance] = svc
	return svc, true
}

// remove drops the entry's addresses and reports whether the instance is gone.
func (g *aggregator) remove(entry *zeroconf.ServiceEntry) bool {
	existing, found := g.services[entry.Instance]
	if !found {
		return false
	}
	existing.Addresses = removeAddresses(existing.Addresses, entry)
	if len(existing.Addresses) == 0 {
		delete(g.services, entry.Instance)
		return true
	}
	return false
}

func (g *aggregator) toService(entry *zeroconf.ServiceEntry) *Service {
	return &Service{
		Kind:      g.kind,
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      uint16(entry.Port),
		Addresses: entryAddresses(entry),
		TXT:       StringsToTXTRecords(entry.Text),
	}
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses removes addresses from a zeroconf entry from the list.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, addr := range entryAddresses(entry) {
		toRemove[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
