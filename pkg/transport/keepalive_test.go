package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepAliveConfig(t *testing.T) {
	config := DefaultKeepAliveConfig()

	if config.PingInterval != DefaultPingInterval {
		t.Errorf("PingInterval = %v, want %v", config.PingInterval, DefaultPingInterval)
	}
	if got, want := config.DetectionDelay(), 95*time.Second; got != want {
		t.Errorf("DetectionDelay = %v, want %v", got, want)
	}

	partial := KeepAliveConfig{PingInterval: time.Second}.withDefaults()
	if partial.PingInterval != time.Second || partial.PongTimeout != DefaultPongTimeout || partial.MaxMissedPongs != DefaultMaxMissedPongs {
		t.Errorf("withDefaults = %+v", partial)
	}
}

func TestKeepAliveSendsPings(t *testing.T) {
	var pingCount atomic.Int32
	var lastSeq atomic.Uint32

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   30 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 100,
	}, func(seq uint32) error {
		pingCount.Add(1)
		lastSeq.Store(seq)
		return nil
	}, nil)

	ka.Start(context.Background())
	defer ka.Stop()

	time.Sleep(100 * time.Millisecond)
	if pingCount.Load() < 2 {
		t.Errorf("expected at least 2 pings, got %d", pingCount.Load())
	}
	if ka.Stats().CurrentSeq != lastSeq.Load() {
		t.Errorf("CurrentSeq = %d, want %d", ka.Stats().CurrentSeq, lastSeq.Load())
	}
}

func TestKeepAliveTimeout(t *testing.T) {
	timedOut := make(chan struct{})

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(uint32) error { return nil }, func() { close(timedOut) })

	ka.Start(context.Background())

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("expected timeout to be called")
	}
	if ka.IsRunning() {
		t.Error("keep-alive should stop itself after timeout")
	}
}

func TestKeepAlivePongResetsMissed(t *testing.T) {
	var timeouts atomic.Int32
	var ka *KeepAlive
	ka = NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    5 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(seq uint32) error {
		// Answer every ping immediately.
		go ka.PongReceived(seq)
		return nil
	}, func() { timeouts.Add(1) })

	ka.Start(context.Background())
	time.Sleep(150 * time.Millisecond)
	ka.Stop()

	if timeouts.Load() != 0 {
		t.Errorf("unexpected timeout with pongs answered")
	}
	stats := ka.Stats()
	if stats.MissedPongs != 0 {
		t.Errorf("MissedPongs = %d, want 0", stats.MissedPongs)
	}
	if stats.LastPongTime.IsZero() {
		t.Error("LastPongTime not recorded")
	}
}

func TestKeepAliveStartStop(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{PingInterval: time.Hour}, func(uint32) error { return nil }, nil)

	if ka.IsRunning() {
		t.Error("should not be running before Start")
	}
	ka.Start(context.Background())
	ka.Start(context.Background())
	if !ka.IsRunning() {
		t.Error("should be running after Start")
	}
	ka.Stop()
	ka.Stop()
	if ka.IsRunning() {
		t.Error("should not be running after Stop")
	}
}
