package interactive_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Open-Plant/OpenPlantOPC-sub000/cmd/opcgw/interactive"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend/backendtest"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/discovery"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/engine"
)

const ep = "fake://plc1"

type stubDiscoverer struct {
	services map[discovery.Kind][]*discovery.Service
	err      error
}

func (s stubDiscoverer) FindAll(ctx context.Context, kind discovery.Kind) ([]*discovery.Service, error) {
	return s.services[kind], s.err
}

func newConsole(t *testing.T, d interactive.Discoverer) (*interactive.Console, *backendtest.Server, *bytes.Buffer) {
	t.Helper()
	srv := backendtest.NewServer()
	srv.Set("Line1.Temp", 21.5)
	srv.Set("Line1.Count", int64(7))

	eng, err := engine.New(engine.Config{ReaperPeriod: time.Hour}, srv.Driver(), 100*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	router := interactive.NewRouter()
	router.Add("fake", eng)

	var out bytes.Buffer
	return interactive.NewWithWriter(router, d, &out), srv, &out
}

func TestRouter(t *testing.T) {
	srv := backendtest.NewServer()
	eng, err := engine.New(engine.Config{}, srv.Driver(), 100*time.Millisecond)
	require.NoError(t, err)
	defer eng.Close()

	r := interactive.NewRouter()
	r.Add("fake", eng)

	got, err := r.For("FAKE://plc1")
	require.NoError(t, err)
	assert.Same(t, eng, got)

	_, err = r.For("opc.tcp://plc1:4840")
	assert.True(t, errors.Is(err, interactive.ErrNoEngine))

	_, err = r.For("plc1")
	assert.ErrorIs(t, err, interactive.ErrNoEngine)

	assert.Len(t, r.Engines(), 1)
}

func TestReadCommand(t *testing.T) {
	c, srv, out := newConsole(t, nil)
	ctx := context.Background()

	assert.True(t, c.Exec(ctx, "read "+ep+" 1s Line1.Temp Line1.Missing"))
	assert.Equal(t, 1, srv.Dials())
	assert.Contains(t, out.String(), "Line1.Temp")
	assert.Contains(t, out.String(), "21.5")
	assert.Contains(t, out.String(), "GOOD")
	assert.Contains(t, out.String(), "NOT_FOUND")

	out.Reset()
	c.Exec(ctx, "read "+ep+" soon Line1.Temp")
	assert.Contains(t, out.String(), "Invalid interval")

	out.Reset()
	c.Exec(ctx, "read "+ep)
	assert.Contains(t, out.String(), "Usage: read")

	out.Reset()
	c.Exec(ctx, "read opc.tcp://x:4840 1s A")
	assert.Contains(t, out.String(), "no engine")
}

func TestBrowseCommand(t *testing.T) {
	c, _, out := newConsole(t, nil)
	ctx := context.Background()

	c.Exec(ctx, "browse "+ep)
	assert.Contains(t, out.String(), "Line1/")

	out.Reset()
	c.Exec(ctx, "b "+ep+" Line1")
	assert.Contains(t, out.String(), "Count")
	assert.Contains(t, out.String(), "Temp")

	out.Reset()
	c.Exec(ctx, "browse "+ep+" Line1.Temp")
	assert.Contains(t, out.String(), "Browse error")
}

func TestRegistryCommands(t *testing.T) {
	c, _, out := newConsole(t, nil)
	ctx := context.Background()

	c.Exec(ctx, "read "+ep+" 500ms Line1.Temp Line1.Count")

	out.Reset()
	c.Exec(ctx, "tags")
	assert.Contains(t, out.String(), "Line1.Count")
	assert.Contains(t, out.String(), "2 tag(s)")

	out.Reset()
	c.Exec(ctx, "tags fake://other")
	assert.Contains(t, out.String(), "0 tag(s)")

	out.Reset()
	c.Exec(ctx, "groups "+ep)
	assert.Contains(t, out.String(), "500ms")

	out.Reset()
	c.Exec(ctx, "endpoints")
	assert.Contains(t, out.String(), ep)
	assert.Contains(t, out.String(), "FAKE")

	out.Reset()
	c.Exec(ctx, "stats")
	assert.Contains(t, out.String(), "FAKE engine")
	assert.Contains(t, out.String(), "Misses:     2")

	out.Reset()
	c.Exec(ctx, "sweep")
	assert.Contains(t, out.String(), "Evicted 0 tag(s)")

	out.Reset()
	c.Exec(ctx, "status "+ep)
	assert.Contains(t, out.String(), "UP")

	out.Reset()
	c.Exec(ctx, "disconnect "+ep)
	assert.Contains(t, out.String(), "Disconnected")

	out.Reset()
	c.Exec(ctx, "endpoints")
	assert.Contains(t, out.String(), "No endpoints connected")
}

func TestDiscoverCommand(t *testing.T) {
	d := stubDiscoverer{services: map[discovery.Kind][]*discovery.Service{
		discovery.KindUA: {{
			Kind: discovery.KindUA, Instance: "plc1", Host: "plc1.local.", Port: 4840,
			TXT: discovery.TXTRecordMap{discovery.TXTKeyPath: "UA"},
		}},
		discovery.KindDABridge: {{
			Kind: discovery.KindDABridge, Instance: "da-sim", Host: "scada.local.", Port: 4841,
			TXT: discovery.BridgeTXT([]string{"Sim.1"}, "", ""),
		}},
	}}
	c, _, out := newConsole(t, d)
	ctx := context.Background()

	c.Exec(ctx, "discover")
	assert.Contains(t, out.String(), "opc.tcp://plc1.local:4840/UA")
	assert.Contains(t, out.String(), "opcda://scada.local:4841/Sim.1")

	out.Reset()
	c.Exec(ctx, "discover da")
	assert.NotContains(t, out.String(), "opc.tcp://")
	assert.Contains(t, out.String(), "opcda://")

	out.Reset()
	c.Exec(ctx, "discover hart")
	assert.Contains(t, out.String(), "Usage: discover")

	c2, _, out2 := newConsole(t, stubDiscoverer{err: errors.New("no multicast")})
	c2.Exec(ctx, "discover ua")
	assert.Contains(t, out2.String(), "no multicast")

	c3, _, out3 := newConsole(t, nil)
	c3.Exec(ctx, "discover")
	assert.Contains(t, out3.String(), "Discovery disabled")
}

func TestExecGeneral(t *testing.T) {
	c, _, out := newConsole(t, nil)
	ctx := context.Background()

	assert.True(t, c.Exec(ctx, "   "))
	assert.True(t, c.Exec(ctx, "help"))
	assert.Contains(t, out.String(), "OPC Gateway Commands")

	assert.True(t, c.Exec(ctx, "frobnicate"))
	assert.Contains(t, out.String(), "Unknown command: frobnicate")

	assert.False(t, c.Exec(ctx, "quit"))
	assert.Same(t, out, c.Stdout())
}
