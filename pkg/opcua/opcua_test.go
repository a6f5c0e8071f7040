package opcua

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
)

// fakeClient answers browse and read requests from canned data.
type fakeClient struct {
	mu      sync.Mutex
	refs    map[string][]*ua.ReferenceDescription
	values  map[string]*ua.DataValue
	attrs   map[string]map[ua.AttributeID]*ua.DataValue
	readErr error
	closed  bool
	reads   int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		refs:   make(map[string][]*ua.ReferenceDescription),
		values: make(map[string]*ua.DataValue),
		attrs:  make(map[string]map[ua.AttributeID]*ua.DataValue),
	}
}

func (f *fakeClient) Browse(_ context.Context, req *ua.BrowseRequest) (*ua.BrowseResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs, ok := f.refs[req.NodesToBrowse[0].NodeID.String()]
	if !ok {
		return &ua.BrowseResponse{Results: []*ua.BrowseResult{{StatusCode: ua.StatusBadNodeIDUnknown}}}, nil
	}
	return &ua.BrowseResponse{Results: []*ua.BrowseResult{{StatusCode: ua.StatusOK, References: refs}}}, nil
}

func (f *fakeClient) BrowseNext(context.Context, *ua.BrowseNextRequest) (*ua.BrowseNextResponse, error) {
	return &ua.BrowseNextResponse{}, nil
}

func (f *fakeClient) Read(_ context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	resp := &ua.ReadResponse{}
	for _, rv := range req.NodesToRead {
		key := rv.NodeID.String()
		var dv *ua.DataValue
		if rv.AttributeID == ua.AttributeIDValue {
			dv = f.values[key]
		} else if a, ok := f.attrs[key]; ok {
			dv = a[rv.AttributeID]
		}
		if dv == nil {
			dv = &ua.DataValue{Status: ua.StatusBadNodeIDUnknown}
		}
		resp.Results = append(resp.Results, dv)
	}
	return resp, nil
}

func (f *fakeClient) Subscribe(context.Context, *opcua.SubscriptionParameters, chan<- *opcua.PublishNotificationData) (*opcua.Subscription, error) {
	return nil, ua.StatusBadServiceUnsupported
}

func (f *fakeClient) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestSession(t *testing.T, c client) *Session {
	t.Helper()
	life, cancel := context.WithCancel(context.Background())
	s := newSession("opc.tcp://test:4840", c, life, cancel, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func good(v any, ts time.Time) *ua.DataValue {
	return &ua.DataValue{
		EncodingMask:    ua.DataValueValue | ua.DataValueSourceTimestamp,
		Value:           ua.MustVariant(v),
		Status:          ua.StatusOK,
		SourceTimestamp: ts,
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"opc.tcp://plc:4840", false},
		{"opc.tcp://plc:4840/path", false},
		{"opc.tcp://plc", false},
		{"opcda://plc/Sim.1", true},
		{"http://plc:4840", true},
		{"opc.tcp://:4840", true},
		{"opc.tcp://plc:0", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseEndpoint(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, backend.KindProtocolMismatch, backend.KindOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want backend.Kind
	}{
		{"unknown node", ua.StatusBadNodeIDUnknown, backend.KindNotFound},
		{"wrapped unknown node", fmt.Errorf("read: %w", ua.StatusBadNodeIDUnknown), backend.KindNotFound},
		{"access denied", ua.StatusBadUserAccessDenied, backend.KindAccessDenied},
		{"not readable", ua.StatusBadNotReadable, backend.KindAccessDenied},
		{"token rejected", ua.StatusBadIdentityTokenRejected, backend.KindAuthRejected},
		{"untrusted certificate", ua.StatusBadCertificateUntrusted, backend.KindAuthRejected},
		{"policy rejected", ua.StatusBadSecurityPolicyRejected, backend.KindProtocolMismatch},
		{"session closed", ua.StatusBadSessionClosed, backend.KindUnreachable},
		{"timeout", ua.StatusBadTimeout, backend.KindUnreachable},
		{"eof", io.EOF, backend.KindUnreachable},
		{"deadline", context.DeadlineExceeded, backend.KindUnreachable},
		{"net", &net.OpError{Op: "dial", Err: errors.New("refused")}, backend.KindUnreachable},
		{"flattened", errors.New("opcua: dial tcp 10.0.0.1:4840: connect: connection refused"), backend.KindUnreachable},
		{"other status", ua.StatusBadOutOfMemory, backend.KindInternal},
		{"other", errors.New("boom"), backend.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("read", tt.err)
			assert.Equal(t, tt.want, backend.KindOf(err))
			assert.NotEmpty(t, backend.DetailOf(err))
		})
	}

	assert.NoError(t, mapError("read", nil))
	be := backend.Errorf(backend.KindNotFound, "read", "x")
	assert.Same(t, be, mapError("read", be))
}

func TestSelectEndpoint(t *testing.T) {
	none := &ua.EndpointDescription{SecurityPolicyURI: ua.SecurityPolicyURINone, SecurityMode: ua.MessageSecurityModeNone, SecurityLevel: 0}
	sign := &ua.EndpointDescription{SecurityPolicyURI: ua.SecurityPolicyURIBasic256Sha256, SecurityMode: ua.MessageSecurityModeSign, SecurityLevel: 2}
	enc := &ua.EndpointDescription{SecurityPolicyURI: ua.SecurityPolicyURIBasic256Sha256, SecurityMode: ua.MessageSecurityModeSignAndEncrypt, SecurityLevel: 3}
	eps := []*ua.EndpointDescription{none, sign, enc}

	assert.Same(t, enc, selectEndpoint(eps, "", ""))
	assert.Same(t, none, selectEndpoint(eps, "None", ""))
	assert.Same(t, sign, selectEndpoint(eps, "Basic256Sha256", "Sign"))
	assert.Same(t, enc, selectEndpoint(eps, "basic256sha256", "SignAndEncrypt"))
	assert.Same(t, sign, selectEndpoint(eps, "Basic256Sha256", ""))
	assert.Nil(t, selectEndpoint(eps, "Basic128Rsa15", ""))
	assert.Nil(t, selectEndpoint(nil, "", ""))
}

func TestBrowse(t *testing.T) {
	c := newFakeClient()
	objects := ua.NewNumericNodeID(0, id.ObjectsFolder).String()
	line := ua.NewStringNodeID(2, "Line1")
	temp := ua.NewStringNodeID(2, "Line1.Temp")
	c.refs[objects] = []*ua.ReferenceDescription{
		{NodeID: &ua.ExpandedNodeID{NodeID: line}, BrowseName: &ua.QualifiedName{NamespaceIndex: 2, Name: "Line1"}, NodeClass: ua.NodeClassObject},
	}
	c.refs[line.String()] = []*ua.ReferenceDescription{
		{NodeID: &ua.ExpandedNodeID{NodeID: temp}, DisplayName: &ua.LocalizedText{Text: "Temp"}, NodeClass: ua.NodeClassVariable},
	}
	c.attrs[temp.String()] = map[ua.AttributeID]*ua.DataValue{
		ua.AttributeIDDataType:        good(ua.NewNumericNodeID(0, id.Double), time.Time{}),
		ua.AttributeIDUserAccessLevel: good(byte(accessCurrentRead), time.Time{}),
	}
	s := newTestSession(t, c)
	ctx := context.Background()

	root, err := s.Browse(ctx, "")
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.Equal(t, backend.BrowseEntry{Name: "Line1", ItemID: "ns=2;s=Line1", IsBranch: true}, root[0])

	leaves, err := s.Browse(ctx, "ns=2;s=Line1")
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Equal(t, "Temp", leaves[0].Name)
	assert.Equal(t, "Double", leaves[0].DataType)
	assert.True(t, leaves[0].Readable)
	assert.False(t, leaves[0].Writable)

	_, err = s.Browse(ctx, "ns=2;s=Nope")
	assert.Equal(t, backend.KindNotFound, backend.KindOf(err))

	_, err = s.Browse(ctx, "ns=abc;i=1")
	assert.Equal(t, backend.KindNotFound, backend.KindOf(err))
}

func TestRead(t *testing.T) {
	c := newFakeClient()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.values["ns=2;s=Temp"] = good(21.5, ts)
	c.values["ns=2;s=Count"] = good(uint16(7), ts)
	c.values["ns=2;s=Stale"] = &ua.DataValue{Value: ua.MustVariant(1.0), Status: ua.StatusUncertainLastUsableValue, SourceTimestamp: ts}
	c.values["ns=2;s=Secret"] = &ua.DataValue{Status: ua.StatusBadUserAccessDenied}
	s := newTestSession(t, c)
	ctx := context.Background()

	v, err := s.Read(ctx, "ns=2;s=Temp")
	require.NoError(t, err)
	assert.Equal(t, 21.5, v.Value)
	assert.True(t, v.QualityOK)
	assert.Equal(t, ts, v.SourceTime)
	assert.NotZero(t, v.Seq)

	v, err = s.Read(ctx, "ns=2;s=Count")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.Value)

	v, err = s.Read(ctx, "ns=2;s=Stale")
	require.NoError(t, err)
	assert.False(t, v.QualityOK)
	assert.Equal(t, uint32(ua.StatusUncertainLastUsableValue), v.Quality)

	_, err = s.Read(ctx, "ns=2;s=Secret")
	assert.Equal(t, backend.KindAccessDenied, backend.KindOf(err))
	_, err = s.Read(ctx, "ns=2;s=Missing")
	assert.Equal(t, backend.KindNotFound, backend.KindOf(err))

	c.readErr = ua.StatusBadSessionClosed
	_, err = s.Read(ctx, "ns=2;s=Temp")
	assert.Equal(t, backend.KindUnreachable, backend.KindOf(err))
}

func TestStatus(t *testing.T) {
	c := newFakeClient()
	state := ua.NewNumericNodeID(0, id.Server_ServerStatus_State).String()
	s := newTestSession(t, c)
	ctx := context.Background()

	c.values[state] = good(int32(0), time.Time{})
	assert.NoError(t, s.Status(ctx))

	c.values[state] = good(int32(3), time.Time{})
	err := s.Status(ctx)
	assert.Equal(t, backend.KindUnreachable, backend.KindOf(err))
	assert.Contains(t, err.Error(), "SUSPENDED")

	c.values[state] = good("weird", time.Time{})
	assert.Equal(t, backend.KindProtocolMismatch, backend.KindOf(s.Status(ctx)))
}

func TestDispatch(t *testing.T) {
	s := newTestSession(t, newFakeClient())
	g := &uaGroup{items: make(map[backend.ItemHandle]uint32)}

	var got []backend.Sample
	var handles []backend.ItemHandle
	g.push = func(h backend.ItemHandle, smp backend.Sample) {
		handles = append(handles, h)
		got = append(got, smp)
	}

	s.dispatch(g, &ua.DataChangeNotification{MonitoredItems: []*ua.MonitoredItemNotification{
		{ClientHandle: 4, Value: good(true, time.Now())},
		{ClientHandle: 5, Value: &ua.DataValue{Status: ua.StatusBadNoCommunication}},
		{ClientHandle: 6},
	}})
	s.dispatch(g, &ua.StatusChangeNotification{Status: ua.StatusBadTimeout})

	require.Len(t, got, 2)
	assert.Equal(t, []backend.ItemHandle{4, 5}, handles)
	assert.Equal(t, true, got[0].Value)
	assert.True(t, got[0].QualityOK)
	assert.Nil(t, got[1].Value)
	assert.False(t, got[1].QualityOK)
	assert.Equal(t, got[0].Seq, got[1].Seq)
}

func TestGroupCallsOnUnknownHandle(t *testing.T) {
	s := newTestSession(t, newFakeClient())
	ctx := context.Background()

	_, err := s.AddItem(ctx, 9, "ns=2;s=X")
	assert.Equal(t, backend.KindNotFound, backend.KindOf(err))
	assert.Equal(t, backend.KindNotFound, backend.KindOf(s.RemoveItem(ctx, 9, 1)))
	assert.Equal(t, backend.KindNotFound, backend.KindOf(s.RemoveGroup(ctx, 9)))
	s.Subscribe(9, func(backend.ItemHandle, backend.Sample) {})

	_, err = s.CreateGroup(ctx, time.Second)
	assert.Equal(t, backend.KindProtocolMismatch, backend.KindOf(err))
}

func TestDataTypeName(t *testing.T) {
	assert.Equal(t, "Boolean", dataTypeName(ua.NewNumericNodeID(0, id.Boolean)))
	assert.Equal(t, "Int32", dataTypeName(ua.NewNumericNodeID(0, id.Int32)))
	assert.Equal(t, "ns=3;i=3001", dataTypeName(ua.NewNumericNodeID(3, 3001)))
}

func TestCloseCancelsLifetime(t *testing.T) {
	c := newFakeClient()
	life, cancel := context.WithCancel(context.Background())
	s := newSession("opc.tcp://test:4840", c, life, cancel, nil)

	require.NoError(t, s.Close())
	assert.True(t, c.closed)
	assert.Error(t, life.Err())
}

func TestAwait(t *testing.T) {
	assert.NoError(t, await(context.Background(), func() error { return nil }, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	release := make(chan struct{})
	abandoned := make(chan struct{})
	err := await(ctx, func() error { <-release; return nil }, func() { close(abandoned) })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	select {
	case <-abandoned:
	case <-time.After(time.Second):
		t.Fatal("abandon not called")
	}
}

func TestDialUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	d := NewDriver(Config{})
	assert.Equal(t, "UA", d.Family())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = d.Dial(ctx, "opc.tcp://"+addr, backend.Credentials{})
	require.Error(t, err)
	assert.Equal(t, backend.KindUnreachable, backend.KindOf(err))

	_, err = d.Dial(ctx, "opcda://"+addr+"/Sim.1", backend.Credentials{})
	assert.Equal(t, backend.KindProtocolMismatch, backend.KindOf(err))
}
