package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend/mocks"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/registry"
)

func TestReaperEvictsAfterThreeIntervals(t *testing.T) {
	f := newFixture(t, registry.Config{}, "a")
	rp := registry.NewReaper(f.reg, 500*time.Millisecond)
	ctx := context.Background()

	f.read(t, "a", time.Second)

	f.clock.Advance(3 * time.Second)
	assert.Equal(t, 0, rp.Sweep(ctx), "exactly 3 intervals is not past the grace window")

	f.clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 1, rp.Sweep(ctx))
	assert.Equal(t, 0, f.reg.Len())
	assert.Equal(t, 0, f.srv.GroupCount())
	assert.Equal(t, uint64(1), f.stats.Evictions.Load())
}

func TestReaperKeepsTagReadRegularly(t *testing.T) {
	f := newFixture(t, registry.Config{}, "a")
	rp := registry.NewReaper(f.reg, 500*time.Millisecond)
	ctx := context.Background()

	f.read(t, "a", time.Second)
	for range 20 {
		f.clock.Advance(900 * time.Millisecond)
		f.read(t, "a", time.Second)
		assert.Equal(t, 0, rp.Sweep(ctx))
	}
	assert.Equal(t, 1, f.reg.Len())
}

func TestReaperFastTagUsesPeriod(t *testing.T) {
	f := newFixture(t, registry.Config{}, "a")
	rp := registry.NewReaper(f.reg, 2*time.Second)
	ctx := context.Background()

	f.read(t, "a", 500*time.Millisecond)

	f.clock.Advance(1900 * time.Millisecond)
	assert.Equal(t, 0, rp.Sweep(ctx))
	f.clock.Advance(200 * time.Millisecond)
	assert.Equal(t, 1, rp.Sweep(ctx))
}

func TestReaperEvictionKeepsSharedGroup(t *testing.T) {
	f := newFixture(t, registry.Config{}, "a", "b")
	rp := registry.NewReaper(f.reg, time.Second)
	ctx := context.Background()

	f.read(t, "a", time.Second)
	f.read(t, "b", time.Second)
	f.clock.Advance(600 * time.Millisecond)
	f.read(t, "b", time.Second)
	f.clock.Advance(600 * time.Millisecond)

	assert.Equal(t, 1, rp.Sweep(ctx))
	assert.Equal(t, 1, f.srv.GroupCount())
	assert.Equal(t, 0, f.srv.Memberships("a"))
	assert.Equal(t, 1, f.srv.Memberships("b"))
}

func TestReaperPeriodFloor(t *testing.T) {
	f := newFixture(t, registry.Config{MinInterval: 250 * time.Millisecond})
	assert.Equal(t, 250*time.Millisecond, registry.NewReaper(f.reg, 10*time.Millisecond).Period())
	assert.Equal(t, registry.DefaultReaperPeriod, registry.NewReaper(f.reg, 0).Period())
}

func TestReaperSkipsBusyTag(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	sess := mocks.NewMockSession(t)
	sess.EXPECT().CreateGroup(mock.Anything, time.Second).Return(backend.GroupInfo{Handle: 1, Interval: time.Second}, nil)
	sess.EXPECT().Subscribe(backend.GroupHandle(1), mock.Anything).Return()
	sess.EXPECT().AddItem(mock.Anything, backend.GroupHandle(1), "a").Return(1, nil)
	sess.EXPECT().Read(mock.Anything, "a").RunAndReturn(func(context.Context, string) (backend.Sample, error) {
		close(entered)
		<-release
		return backend.Sample{Value: 1.0, QualityOK: true, Seq: backend.NextSeq()}, nil
	})

	reg := registry.New(registry.Config{Sessions: static{sess}})
	c := newClock()
	reg.SetClock(c.Now)
	rp := registry.NewReaper(reg, 500*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := reg.EnsureFreshAndGet(context.Background(), ep, "a", time.Second)
		done <- err
	}()
	<-entered

	c.Advance(time.Hour)
	assert.Equal(t, 0, rp.Sweep(context.Background()))

	close(release)
	require.NoError(t, <-done)

	// The read refreshed the request time under the tag lock.
	assert.Equal(t, 0, rp.Sweep(context.Background()))
	assert.Equal(t, 1, reg.Len())
}

func TestReaperStartStop(t *testing.T) {
	f := newFixture(t, registry.Config{MinInterval: 10 * time.Millisecond}, "a")
	rp := registry.NewReaper(f.reg, 10*time.Millisecond)

	f.read(t, "a", 10*time.Millisecond)
	f.clock.Advance(time.Minute)

	rp.Start(context.Background())
	rp.Start(context.Background())
	require.Eventually(t, func() bool { return f.reg.Len() == 0 }, time.Second, 5*time.Millisecond)
	rp.Stop()
	rp.Stop()
}

func TestReaperEvictionRacesWithRead(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	sess := mocks.NewMockSession(t)
	sess.EXPECT().CreateGroup(mock.Anything, time.Second).Return(backend.GroupInfo{Handle: 1, Interval: time.Second}, nil).Once()
	sess.EXPECT().CreateGroup(mock.Anything, time.Second).Return(backend.GroupInfo{Handle: 2, Interval: time.Second}, nil).Once()
	sess.EXPECT().Subscribe(mock.Anything, mock.Anything).Return()
	sess.EXPECT().AddItem(mock.Anything, backend.GroupHandle(1), "a").Return(1, nil).Once()
	sess.EXPECT().AddItem(mock.Anything, backend.GroupHandle(2), "a").Return(2, nil).Once()
	sess.EXPECT().Read(mock.Anything, "a").Return(backend.Sample{Value: 1.0, QualityOK: true, Seq: backend.NextSeq()}, nil)
	sess.EXPECT().RemoveItem(mock.Anything, backend.GroupHandle(1), backend.ItemHandle(1)).
		RunAndReturn(func(context.Context, backend.GroupHandle, backend.ItemHandle) error {
			close(entered)
			<-release
			return nil
		}).Once()
	sess.EXPECT().RemoveGroup(mock.Anything, backend.GroupHandle(1)).Return(nil).Once()

	reg := registry.New(registry.Config{Sessions: static{sess}})
	c := newClock()
	reg.SetClock(c.Now)
	rp := registry.NewReaper(reg, 500*time.Millisecond)
	ctx := context.Background()

	first, err := reg.EnsureFreshAndGet(ctx, ep, "a", time.Second)
	require.NoError(t, err)
	c.Advance(time.Hour)

	swept := make(chan int, 1)
	go func() { swept <- rp.Sweep(ctx) }()
	<-entered

	type result struct {
		tag registry.Tag
		err error
	}
	done := make(chan result, 1)
	go func() {
		tag, err := reg.EnsureFreshAndGet(ctx, ep, "a", time.Second)
		done <- result{tag, err}
	}()

	// The tag is already leaving its group, so the read must not be
	// answered from it.
	select {
	case <-done:
		t.Fatal("read answered from a tag under eviction")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, 1, <-swept)

	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.tag.HasValue)
	assert.NotEqual(t, first.GroupID, res.tag.GroupID)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 0, rp.Sweep(ctx), "the read refreshed the new entry")
}
