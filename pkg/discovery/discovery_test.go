package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(instance, service, host string, port int, text []string, addrs ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, service, Domain)
	e.HostName = host
	e.Port = port
	e.Text = text
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, ip)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, ip)
		}
	}
	return e
}

// scriptedBrowse feeds a fixed sequence of answers and then waits for ctx.
func scriptedBrowse(added []*zeroconf.ServiceEntry, gone []*zeroconf.ServiceEntry) browseFunc {
	return func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
		for _, e := range added {
			select {
			case entries <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		for _, e := range gone {
			select {
			case removed <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

func TestKindServiceType(t *testing.T) {
	st, err := KindUA.ServiceType()
	require.NoError(t, err)
	assert.Equal(t, "_opcua-tcp._tcp", st)

	st, err = KindDABridge.ServiceType()
	require.NoError(t, err)
	assert.Equal(t, "_opcda-bridge._tcp", st)

	_, err = Kind(9).ServiceType()
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, "UNKNOWN", Kind(9).String())
}

func TestTXTRecordsRoundTrip(t *testing.T) {
	txt := BridgeTXT([]string{"Matrikon.OPC.Simulation.1", "Kepware.KEPServerEX.V6"}, "OpenPlant", "1.2")
	strs := TXTRecordsToStrings(txt)
	assert.Equal(t, []string{
		"progid=Matrikon.OPC.Simulation.1,Kepware.KEPServerEX.V6",
		"vendor=OpenPlant",
		"ver=1.2",
	}, strs)

	back := StringsToTXTRecords(append(strs, "flag", ""))
	assert.Equal(t, "OpenPlant", back[TXTKeyVendor])
	assert.Contains(t, back, "flag")
	assert.Equal(t, []string{"Matrikon.OPC.Simulation.1", "Kepware.KEPServerEX.V6"}, back.ProgIDs())
}

func TestServiceEndpoints(t *testing.T) {
	tests := []struct {
		name    string
		svc     Service
		want    []string
		wantErr error
	}{
		{
			name: "ua with path",
			svc:  Service{Kind: KindUA, Host: "plc1.local.", Port: 4840, TXT: TXTRecordMap{TXTKeyPath: "/UA/Server"}},
			want: []string{"opc.tcp://plc1.local:4840/UA/Server"},
		},
		{
			name: "ua without path",
			svc:  Service{Kind: KindUA, Host: "plc1.local.", Port: 4840, TXT: TXTRecordMap{}},
			want: []string{"opc.tcp://plc1.local:4840"},
		},
		{
			name: "ua falls back to address",
			svc:  Service{Kind: KindUA, Port: 4840, Addresses: []string{"fe80::1"}},
			want: []string{"opc.tcp://[fe80::1]:4840"},
		},
		{
			name: "bridge one endpoint per progid",
			svc:  Service{Kind: KindDABridge, Host: "scada.local.", Port: 4841, TXT: BridgeTXT([]string{"A.Server.1", " B.Server.2 "}, "", "")},
			want: []string{"opcda://scada.local:4841/A.Server.1", "opcda://scada.local:4841/B.Server.2"},
		},
		{
			name:    "bridge without progid",
			svc:     Service{Kind: KindDABridge, Host: "scada.local.", Port: 4841, TXT: TXTRecordMap{}},
			wantErr: ErrMissingRequired,
		},
		{
			name:    "unknown kind",
			svc:     Service{Kind: Kind(7), Host: "x", Port: 1},
			wantErr: ErrUnknownKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.svc.Endpoints()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdvertisementValidate(t *testing.T) {
	ok := Advertisement{Kind: KindDABridge, Instance: "da-sim", Port: 4841, TXT: BridgeTXT([]string{"Sim.1"}, "", "")}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Instance = strings.Repeat("x", 64)
	assert.ErrorIs(t, bad.Validate(), ErrInstanceNameTooLong)

	bad = ok
	bad.Instance = "a.b"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInstanceName)

	bad = ok
	bad.Port = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPort)

	bad = ok
	bad.TXT = TXTRecordMap{}
	assert.ErrorIs(t, bad.Validate(), ErrMissingRequired)

	bad = ok
	bad.TXT = TXTRecordMap{TXTKeyProgIDs: strings.Repeat("p", MaxTXTValueLen+1)}
	assert.ErrorIs(t, bad.Validate(), ErrTXTValueTooLong)
}

func TestAggregatorMergesInterfaces(t *testing.T) {
	agg := newAggregator(KindUA)

	svc, isNew := agg.add(entry("plc1", ServiceTypeUA, "plc1.local.", 4840, nil, "192.168.1.10"))
	require.True(t, isNew)
	assert.Equal(t, []string{"192.168.1.10"}, svc.Addresses)

	svc, isNew = agg.add(entry("plc1", ServiceTypeUA, "plc1.local.", 4840, nil, "192.168.1.10", "fe80::10"))
	assert.False(t, isNew)
	assert.Equal(t, []string{"192.168.1.10", "fe80::10"}, svc.Addresses)

	assert.False(t, agg.remove(entry("plc1", ServiceTypeUA, "", 0, nil, "fe80::10")))
	assert.True(t, agg.remove(entry("plc1", ServiceTypeUA, "", 0, nil, "192.168.1.10")))
	assert.False(t, agg.remove(entry("unknown", ServiceTypeUA, "", 0, nil)))

	_, isNew = agg.add(entry("plc1", ServiceTypeUA, "plc1.local.", 4840, nil, "192.168.1.10"))
	assert.True(t, isNew, "instance re-announced after removal")
}

func TestBrowseEmitsEachInstanceOnce(t *testing.T) {
	b := NewMDNSBrowser(DefaultBrowserConfig())
	b.browse = scriptedBrowse([]*zeroconf.ServiceEntry{
		entry("plc1", ServiceTypeUA, "plc1.local.", 4840, []string{"path=UA"}, "10.0.0.1"),
		entry("plc1", ServiceTypeUA, "plc1.local.", 4840, []string{"path=UA"}, "10.0.1.1"),
		entry("plc2", ServiceTypeUA, "plc2.local.", 4840, nil, "10.0.0.2"),
	}, nil)
	defer b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	results, err := b.FindAll(ctx, KindUA)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "plc1", results[0].Instance)
	assert.Equal(t, KindUA, results[0].Kind)
	assert.Equal(t, "UA", results[0].TXT[TXTKeyPath])
	assert.Equal(t, "plc2", results[1].Instance)
}

func TestFindAllTimeout(t *testing.T) {
	b := NewMDNSBrowser(BrowserConfig{BrowseTimeout: 50 * time.Millisecond})
	b.browse = scriptedBrowse(nil, nil)
	defer b.Stop()

	results, err := b.FindAll(context.Background(), KindDABridge)
	assert.NoError(t, err)
	assert.Empty(t, results, "should return empty slice when nothing answers")
}

func TestFindAllContextCancelled(t *testing.T) {
	b := NewMDNSBrowser(DefaultBrowserConfig())
	b.browse = scriptedBrowse(nil, nil)
	defer b.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := b.FindAll(ctx, KindUA)
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func TestBrowseFailureClosesChannel(t *testing.T) {
	b := NewMDNSBrowser(DefaultBrowserConfig())
	b.browse = func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
		return errors.New("no multicast interface")
	}
	defer b.Stop()

	ch, err := b.Browse(context.Background(), KindUA)
	require.NoError(t, err)

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after browse failure")
	}
}

func TestBrowseAfterStop(t *testing.T) {
	b := NewMDNSBrowser(DefaultBrowserConfig())
	b.browse = scriptedBrowse(nil, nil)

	ch, err := b.Browse(context.Background(), KindUA)
	require.NoError(t, err)
	b.Stop()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Stop")
	}

	_, err = b.Browse(context.Background(), KindUA)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = b.Browse(context.Background(), Kind(5))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

type fakeRegistration struct {
	mu       sync.Mutex
	text     []string
	shutdown bool
}

func (r *fakeRegistration) SetText(text []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = text
}

func (r *fakeRegistration) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = true
}

func TestAdvertiserLifecycle(t *testing.T) {
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())

	var regs []*fakeRegistration
	var gotService string
	var gotPort int
	a.register = func(instance, service, domain string, port int, text []string, ifaces []net.Interface, opts ...zeroconf.ServerOption) (registration, error) {
		gotService, gotPort = service, port
		r := &fakeRegistration{text: text}
		regs = append(regs, r)
		return r, nil
	}

	ad := Advertisement{Kind: KindDABridge, Instance: "da-sim", Port: 4841, TXT: BridgeTXT([]string{"Sim.1"}, "OpenPlant", "")}
	require.NoError(t, a.Advertise(ad))
	assert.Equal(t, ServiceTypeDABridge, gotService)
	assert.Equal(t, 4841, gotPort)
	assert.Equal(t, []string{"progid=Sim.1", "vendor=OpenPlant"}, regs[0].text)

	require.NoError(t, a.Update("da-sim", BridgeTXT([]string{"Sim.1", "Sim.2"}, "", "")))
	assert.Equal(t, []string{"progid=Sim.1,Sim.2"}, regs[0].text)
	assert.Error(t, a.Update("other", TXTRecordMap{}))

	// Re-advertising replaces the previous registration.
	require.NoError(t, a.Advertise(ad))
	require.Len(t, regs, 2)
	assert.True(t, regs[0].shutdown)
	assert.False(t, regs[1].shutdown)

	a.Stop("da-sim")
	assert.True(t, regs[1].shutdown)

	require.NoError(t, a.Advertise(ad))
	a.StopAll()
	assert.True(t, regs[2].shutdown)
}

func TestAdvertiserRegisterError(t *testing.T) {
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	a.register = func(instance, service, domain string, port int, text []string, ifaces []net.Interface, opts ...zeroconf.ServerOption) (registration, error) {
		return nil, errors.New("bind failed")
	}

	err := a.Advertise(Advertisement{Kind: KindUA, Instance: "srv", Port: 4840})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind failed")

	err = a.Advertise(Advertisement{Kind: KindDABridge, Instance: "srv", Port: 4841})
	assert.ErrorIs(t, err, ErrMissingRequired)
}
