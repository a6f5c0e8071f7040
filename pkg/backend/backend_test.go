package backend_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/backend"
)

func TestNormalize(t *testing.T) {
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"string", "x", "x"},
		{"int16", int16(-3), int64(-3)},
		{"uint32", uint32(7), int64(7)},
		{"uint64 small", uint64(9), int64(9)},
		{"uint64 huge", uint64(math.MaxUint64), float64(math.MaxUint64)},
		{"float32", float32(1.5), float64(1.5)},
		{"float64", 2.25, 2.25},
		{"time", ts, "2026-02-03T04:05:06Z"},
		{"bytes", []byte{0xde, 0xad}, "dead"},
		{"slice", []int{1, 2}, "[1 2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, backend.Normalize(tt.in))
		})
	}
}

func TestQuality(t *testing.T) {
	assert.True(t, backend.DAQualityOK(0xC0))
	assert.True(t, backend.DAQualityOK(0xD8))
	assert.False(t, backend.DAQualityOK(0x40))
	assert.False(t, backend.DAQualityOK(0x18))

	assert.True(t, backend.UAStatusOK(0))
	assert.False(t, backend.UAStatusOK(0x80340000))
	assert.False(t, backend.UAStatusOK(0x40000000))
}

func TestSampleOlderThan(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)
	t2 := t1.Add(time.Second)

	assert.True(t, backend.Sample{SourceTime: t1, Seq: 9}.OlderThan(backend.Sample{SourceTime: t2, Seq: 1}),
		"timestamps win over sequence")
	assert.False(t, backend.Sample{SourceTime: t2}.OlderThan(backend.Sample{SourceTime: t1}))
	assert.False(t, backend.Sample{SourceTime: t1}.OlderThan(backend.Sample{SourceTime: t1}))
	assert.True(t, backend.Sample{Seq: 1}.OlderThan(backend.Sample{SourceTime: t1, Seq: 2}),
		"sequence decides when a timestamp is missing")
}

func TestNextSeqMonotonic(t *testing.T) {
	a := backend.NextSeq()
	b := backend.NextSeq()
	assert.Greater(t, b, a)
}

func TestErrorKinds(t *testing.T) {
	err := backend.Errorf(backend.KindNotFound, "read", "unknown item %q", "X")
	wrapped := fmt.Errorf("batch: %w", err)

	assert.Equal(t, backend.KindNotFound, backend.KindOf(wrapped))
	assert.Equal(t, `unknown item "X"`, backend.DetailOf(wrapped))
	assert.Equal(t, backend.KindUnreachable, backend.KindOf(context.DeadlineExceeded))
	assert.Equal(t, backend.KindInternal, backend.KindOf(errors.New("boom")))
	assert.Equal(t, "boom", backend.DetailOf(errors.New("boom")))
	assert.Equal(t, "", backend.DetailOf(nil))

	assert.True(t, backend.KindAuthRejected.IsConnection())
	assert.False(t, backend.KindNotFound.IsConnection())
	assert.Equal(t, "ACCESS_DENIED", backend.KindAccessDenied.String())

	full := &backend.Error{Kind: backend.KindNotFound, Op: "add item", Endpoint: "fake://a", Item: "X", Detail: "no"}
	assert.Equal(t, "add item: NOT_FOUND X (fake://a): no", full.Error())

	cause := errors.New("eof")
	assert.ErrorIs(t, backend.NewError(backend.KindUnreachable, "read", cause), cause)
}

func TestBackoff(t *testing.T) {
	b := backend.NewBackoff(backend.BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2})

	assert.Equal(t, time.Second, b.Current())
	d := b.Next()
	assert.GreaterOrEqual(t, d, time.Second)
	assert.LessOrEqual(t, d, 1250*time.Millisecond)

	b.Next()
	b.Next()
	b.Next()
	assert.Equal(t, 5*time.Second, b.Current(), "capped at max")
	assert.Equal(t, 4, b.Attempts())

	b.Reset()
	assert.Equal(t, time.Second, b.Current())
	assert.Equal(t, 0, b.Attempts())
}

func TestBackoffDefaults(t *testing.T) {
	b := backend.NewBackoff(backend.BackoffConfig{})
	assert.Equal(t, backend.InitialBackoff, b.Current())
}
