package opcda_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/dasim"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/opcda"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/transport"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    opcda.Endpoint
		wantErr bool
	}{
		{"with port", "opcda://plc1:5000/Vendor.Server.1", opcda.Endpoint{Address: "plc1:5000", ProgID: "Vendor.Server.1"}, false},
		{"default port", "opcda://10.0.0.7/Sim.1", opcda.Endpoint{Address: "10.0.0.7:4841", ProgID: "Sim.1"}, false},
		{"trailing slash", "opcda://host/Sim.1/", opcda.Endpoint{Address: "host:4841", ProgID: "Sim.1"}, false},
		{"wrong scheme", "opc.tcp://host:4840", opcda.Endpoint{}, true},
		{"no progid", "opcda://host:4841", opcda.Endpoint{}, true},
		{"nested path", "opcda://host/a/b", opcda.Endpoint{}, true},
		{"no host", "opcda:///Sim.1", opcda.Endpoint{}, true},
		{"bad port", "opcda://host:99999/Sim.1", opcda.Endpoint{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := opcda.ParseEndpoint(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, backend.KindProtocolMismatch, backend.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func startSim(t *testing.T, cfg dasim.Config) *dasim.Simulator {
	t.Helper()
	sim := dasim.New(cfg)
	require.NoError(t, sim.Start(context.Background(), "127.0.0.1:0"))
	t.Cleanup(func() { _ = sim.Stop() })
	return sim
}

func dial(t *testing.T, sim *dasim.Simulator, creds backend.Credentials) backend.Session {
	t.Helper()
	d := opcda.NewDriver(opcda.Config{RequestTimeout: 2 * time.Second})
	s, err := d.Dial(context.Background(), sim.Endpoint(dasim.DefaultProgID), creds)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDriverFamily(t *testing.T) {
	d := opcda.NewDriver(opcda.Config{})
	assert.Equal(t, "DA", d.Family())
	assert.NoError(t, d.ValidateEndpoint("opcda://h/P.1"))
	assert.Error(t, d.ValidateEndpoint("http://h/P.1"))
}

func TestBrowseAndRead(t *testing.T) {
	sim := startSim(t, dasim.Config{})
	sim.Space().Put("Line1.Temp", dasim.Item{Value: 21.5, Quality: dasim.QualityGood, Unit: "degC"})
	sim.Space().Put("Line1.Running", dasim.Item{Value: true, Quality: dasim.QualityUncertain})
	sim.Space().Put("Line1.Secret", dasim.Item{Value: int64(1), Quality: dasim.QualityGood, NoRead: true})
	sim.Space().Set("Line2.Count", int64(42))

	s := dial(t, sim, backend.Credentials{})
	ctx := context.Background()

	root, err := s.Browse(ctx, "")
	require.NoError(t, err)
	require.Len(t, root, 2)
	assert.Equal(t, "Line1", root[0].Name)
	assert.True(t, root[0].IsBranch)

	leaves, err := s.Browse(ctx, "Line1")
	require.NoError(t, err)
	require.Len(t, leaves, 3)
	assert.Equal(t, "Line1.Running", leaves[0].ItemID)
	assert.False(t, leaves[1].Readable)
	assert.Equal(t, "degC", leaves[2].Unit)
	assert.Equal(t, "VT_R8", leaves[2].DataType)

	_, err = s.Browse(ctx, "Nope")
	assert.Equal(t, backend.KindNotFound, backend.KindOf(err))

	v, err := s.Read(ctx, "Line1.Temp")
	require.NoError(t, err)
	assert.Equal(t, 21.5, v.Value)
	assert.True(t, v.QualityOK)
	assert.False(t, v.SourceTime.IsZero())
	assert.NotZero(t, v.Seq)

	v, err = s.Read(ctx, "Line1.Running")
	require.NoError(t, err)
	assert.Equal(t, true, v.Value)
	assert.False(t, v.QualityOK)

	v, err = s.Read(ctx, "Line2.Count")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Value)

	_, err = s.Read(ctx, "Line1.Secret")
	assert.Equal(t, backend.KindAccessDenied, backend.KindOf(err))
	_, err = s.Read(ctx, "Missing")
	assert.Equal(t, backend.KindNotFound, backend.KindOf(err))

	require.NoError(t, s.Status(ctx))
	sim.SetState(wire.ServerSuspended)
	assert.Equal(t, backend.KindUnreachable, backend.KindOf(s.Status(ctx)))
}

func TestGroupCallbacks(t *testing.T) {
	sim := startSim(t, dasim.Config{MinRate: 20 * time.Millisecond})
	sim.Space().Set("a", 1.0)
	sim.Space().Set("b", 2.0)

	s := dial(t, sim, backend.Credentials{})
	ctx := context.Background()

	info, err := s.CreateGroup(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, info.Interval)

	var mu sync.Mutex
	got := map[backend.ItemHandle]any{}
	s.Subscribe(info.Handle, func(h backend.ItemHandle, smp backend.Sample) {
		mu.Lock()
		got[h] = smp.Value
		mu.Unlock()
	})

	ha, err := s.AddItem(ctx, info.Handle, "a")
	require.NoError(t, err)
	hb, err := s.AddItem(ctx, info.Handle, "b")
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)

	_, err = s.AddItem(ctx, info.Handle, "missing")
	assert.Equal(t, backend.KindNotFound, backend.KindOf(err))

	// Priming delivers both current values.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got[ha] == 1.0 && got[hb] == 2.0
	}, 2*time.Second, 10*time.Millisecond)

	sim.Space().Set("a", 3.0)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got[ha] == 3.0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.RemoveItem(ctx, info.Handle, ha))
	assert.Equal(t, backend.KindNotFound, backend.KindOf(s.RemoveItem(ctx, info.Handle, ha)))

	assert.Equal(t, 1, sim.Groups())
	require.NoError(t, s.RemoveGroup(ctx, info.Handle))
	assert.Equal(t, 0, sim.Groups())
	assert.Equal(t, backend.KindNotFound, backend.KindOf(s.RemoveGroup(ctx, info.Handle)))
}

func TestAuthentication(t *testing.T) {
	sim := startSim(t, dasim.Config{Users: map[string][]byte{"operator": []byte("s3cret")}})
	d := opcda.NewDriver(opcda.Config{})
	ep := sim.Endpoint(dasim.DefaultProgID)
	ctx := context.Background()

	s, err := d.Dial(ctx, ep, backend.Credentials{User: "operator", Password: "s3cret"})
	require.NoError(t, err)
	_ = s.Close()

	_, err = d.Dial(ctx, ep, backend.Credentials{User: "operator", Password: "wrong"})
	assert.Equal(t, backend.KindAuthRejected, backend.KindOf(err))

	_, err = d.Dial(ctx, ep, backend.Credentials{})
	assert.Equal(t, backend.KindAuthRejected, backend.KindOf(err))
}

func TestUnknownProgID(t *testing.T) {
	sim := startSim(t, dasim.Config{})
	d := opcda.NewDriver(opcda.Config{})

	_, err := d.Dial(context.Background(), sim.Endpoint("Other.Server.1"), backend.Credentials{})
	assert.Equal(t, backend.KindProtocolMismatch, backend.KindOf(err))
}

func TestUnreachable(t *testing.T) {
	sim := startSim(t, dasim.Config{})
	ep := sim.Endpoint(dasim.DefaultProgID)
	require.NoError(t, sim.Stop())

	d := opcda.NewDriver(opcda.Config{})
	_, err := d.Dial(context.Background(), ep, backend.Credentials{})
	assert.Equal(t, backend.KindUnreachable, backend.KindOf(err))
}

func TestDroppedConnectionFailsCalls(t *testing.T) {
	sim := startSim(t, dasim.Config{})
	sim.Space().Set("a", 1.0)
	s := dial(t, sim, backend.Credentials{})

	require.Equal(t, 1, sim.DropConnections())
	require.Eventually(t, func() bool {
		_, err := s.Read(context.Background(), "a")
		return backend.KindOf(err) == backend.KindUnreachable
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDroppedConnectionClosesDone(t *testing.T) {
	sim := startSim(t, dasim.Config{})
	s := dial(t, sim, backend.Credentials{})

	w, ok := s.(backend.Watcher)
	require.True(t, ok)
	select {
	case <-w.Done():
		t.Fatal("done before the connection dropped")
	default:
	}

	require.Equal(t, 1, sim.DropConnections())
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("lost connection not reported")
	}
}

func TestRequestTimeout(t *testing.T) {
	sim := startSim(t, dasim.Config{})
	sim.Space().Set("a", 1.0)
	d := opcda.NewDriver(opcda.Config{
		RequestTimeout: 50 * time.Millisecond,
		KeepAlive:      transport.KeepAliveConfig{PingInterval: time.Hour},
	})
	s, err := d.Dial(context.Background(), sim.Endpoint(dasim.DefaultProgID), backend.Credentials{})
	require.NoError(t, err)
	defer s.Close()

	sim.SetResponseDelay(300 * time.Millisecond)
	_, err = s.Read(context.Background(), "a")
	assert.Equal(t, backend.KindUnreachable, backend.KindOf(err))
}
