package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend/mocks"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/subscription"
)

func TestNewGroupAddsFirstMember(t *testing.T) {
	sess := mocks.NewMockSession(t)
	sess.EXPECT().CreateGroup(mock.Anything, time.Second).
		Return(backend.GroupInfo{Handle: 7, Interval: 2 * time.Second}, nil)
	sess.EXPECT().Subscribe(backend.GroupHandle(7), mock.Anything).Return()
	sess.EXPECT().AddItem(mock.Anything, backend.GroupHandle(7), "a").Return(11, nil)

	g, err := subscription.New(context.Background(), subscription.Config{}, sess, time.Second, "a")
	require.NoError(t, err)

	assert.Equal(t, subscription.StateActive, g.State())
	assert.Equal(t, time.Second, g.RequestedInterval())
	assert.Equal(t, 2*time.Second, g.Interval())
	assert.Equal(t, backend.GroupHandle(7), g.Handle())
	assert.Equal(t, []string{"a"}, g.Members())
}

func TestNewGroupReleasedWhenFirstAddFails(t *testing.T) {
	sess := mocks.NewMockSession(t)
	sess.EXPECT().CreateGroup(mock.Anything, time.Second).Return(backend.GroupInfo{Handle: 3}, nil)
	sess.EXPECT().Subscribe(backend.GroupHandle(3), mock.Anything).Return()
	sess.EXPECT().AddItem(mock.Anything, backend.GroupHandle(3), "bad").
		Return(0, backend.Errorf(backend.KindNotFound, "add item", "no such item"))
	sess.EXPECT().RemoveGroup(mock.Anything, backend.GroupHandle(3)).Return(nil).Once()

	g, err := subscription.New(context.Background(), subscription.Config{}, sess, time.Second, "bad")
	require.Error(t, err)
	assert.Nil(t, g)
	assert.Equal(t, backend.KindNotFound, backend.KindOf(err))
}

func TestNewGroupCreateFails(t *testing.T) {
	sess := mocks.NewMockSession(t)
	sess.EXPECT().CreateGroup(mock.Anything, time.Second).
		Return(backend.GroupInfo{}, backend.Errorf(backend.KindUnreachable, "create group", "down"))

	_, err := subscription.New(context.Background(), subscription.Config{}, sess, time.Second, "a")
	assert.Equal(t, backend.KindUnreachable, backend.KindOf(err))
}

func newMockGroup(t *testing.T, limit int) (*subscription.Group, *mocks.MockSession) {
	t.Helper()
	sess := mocks.NewMockSession(t)
	sess.EXPECT().CreateGroup(mock.Anything, time.Second).Return(backend.GroupInfo{Handle: 1, Interval: time.Second}, nil)
	sess.EXPECT().Subscribe(backend.GroupHandle(1), mock.Anything).Return()
	sess.EXPECT().AddItem(mock.Anything, backend.GroupHandle(1), "a").Return(1, nil).Once()

	g, err := subscription.New(context.Background(), subscription.Config{Limit: limit}, sess, time.Second, "a")
	require.NoError(t, err)
	return g, sess
}

func TestAddItemIdempotent(t *testing.T) {
	g, _ := newMockGroup(t, 0)

	// The mock fails the test on a second AddItem call for "a".
	require.NoError(t, g.AddItem(context.Background(), "a"))
	assert.Equal(t, 1, g.Len())
}

func TestAddItemFullGroup(t *testing.T) {
	g, sess := newMockGroup(t, 2)
	sess.EXPECT().AddItem(mock.Anything, backend.GroupHandle(1), "b").Return(2, nil).Once()

	require.NoError(t, g.AddItem(context.Background(), "b"))
	err := g.AddItem(context.Background(), "c")
	assert.ErrorIs(t, err, subscription.ErrGroupFull)
	assert.Equal(t, 2, g.Len())
}

func TestAddItemFailureLeavesGroupUnchanged(t *testing.T) {
	g, sess := newMockGroup(t, 0)
	sess.EXPECT().AddItem(mock.Anything, backend.GroupHandle(1), "b").
		Return(0, backend.Errorf(backend.KindAccessDenied, "add item", "denied"))

	err := g.AddItem(context.Background(), "b")
	assert.Equal(t, backend.KindAccessDenied, backend.KindOf(err))
	assert.Equal(t, []string{"a"}, g.Members())
	assert.Equal(t, subscription.StateActive, g.State())
}

func TestRemoveLastItemDestroysGroup(t *testing.T) {
	g, sess := newMockGroup(t, 0)
	sess.EXPECT().AddItem(mock.Anything, backend.GroupHandle(1), "b").Return(2, nil).Once()
	sess.EXPECT().RemoveItem(mock.Anything, backend.GroupHandle(1), backend.ItemHandle(2)).Return(nil).Once()
	sess.EXPECT().RemoveItem(mock.Anything, backend.GroupHandle(1), backend.ItemHandle(1)).Return(nil).Once()
	sess.EXPECT().RemoveGroup(mock.Anything, backend.GroupHandle(1)).Return(nil).Once()

	ctx := context.Background()
	require.NoError(t, g.AddItem(ctx, "b"))

	destroyed, err := g.RemoveItem(ctx, "b")
	require.NoError(t, err)
	assert.False(t, destroyed)

	// Not a member: no backend call.
	destroyed, err = g.RemoveItem(ctx, "b")
	require.NoError(t, err)
	assert.False(t, destroyed)

	destroyed, err = g.RemoveItem(ctx, "a")
	require.NoError(t, err)
	assert.True(t, destroyed)
	assert.Equal(t, subscription.StateDestroyed, g.State())

	assert.ErrorIs(t, g.AddItem(ctx, "c"), subscription.ErrGroupDestroyed)
}

func TestRemoveItemBackendFailureStillDropsMember(t *testing.T) {
	g, sess := newMockGroup(t, 0)
	down := backend.Errorf(backend.KindUnreachable, "remove item", "down")
	sess.EXPECT().RemoveItem(mock.Anything, backend.GroupHandle(1), backend.ItemHandle(1)).Return(down)
	sess.EXPECT().RemoveGroup(mock.Anything, backend.GroupHandle(1)).Return(down)

	destroyed, err := g.RemoveItem(context.Background(), "a")
	assert.True(t, destroyed)
	assert.True(t, errors.Is(err, down))
	assert.Equal(t, 0, g.Len())
}

func TestPushTranslatesHandles(t *testing.T) {
	var push backend.PushFunc
	type got struct {
		group uint64
		item  string
		value any
	}
	var received []got

	sess := mocks.NewMockSession(t)
	sess.EXPECT().CreateGroup(mock.Anything, time.Second).Return(backend.GroupInfo{Handle: 4, Interval: time.Second}, nil)
	sess.EXPECT().Subscribe(backend.GroupHandle(4), mock.Anything).
		Run(func(_ backend.GroupHandle, fn backend.PushFunc) { push = fn }).Return()
	sess.EXPECT().AddItem(mock.Anything, backend.GroupHandle(4), "a").Return(9, nil)

	cfg := subscription.Config{Sink: func(groupID uint64, itemID string, s backend.Sample) {
		received = append(received, got{groupID, itemID, s.Value})
	}}
	g, err := subscription.New(context.Background(), cfg, sess, time.Second, "a")
	require.NoError(t, err)
	require.NotNil(t, push)

	push(9, backend.Sample{Value: 1.5, QualityOK: true})
	push(99, backend.Sample{Value: 2.5})

	require.Len(t, received, 1)
	assert.Equal(t, got{g.ID, "a", 1.5}, received[0])
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "EMPTY", subscription.StateEmpty.String())
	assert.Equal(t, "ACTIVE", subscription.StateActive.String())
	assert.Equal(t, "DRAINING", subscription.StateDraining.String())
	assert.Equal(t, "DESTROYED", subscription.StateDestroyed.String())
	assert.Equal(t, "UNKNOWN", subscription.State(99).String())
}
