package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dougsko/rx320d/pkg/device"
	"github.com/dougsko/rx320d/pkg/rx320"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxSamples int) *TelemetryStore {
	t.Helper()
	store, err := NewTelemetryStore("", maxSamples)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func intPtr(v int) *int { return &v }

func TestNewTelemetryStore(t *testing.T) {
	t.Run("In Memory", func(t *testing.T) {
		store := newTestStore(t, 10)
		count, err := store.Count()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("File With Nested Directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "telemetry.db")
		store, err := NewTelemetryStore(dbPath, 10)
		require.NoError(t, err)
		require.NoError(t, store.StoreSample(Sample{Timestamp: time.Now(), Strength: 1}))
		require.NoError(t, store.Close())

		_, err = os.Stat(dbPath)
		assert.NoError(t, err)

		reopened, err := NewTelemetryStore(dbPath, 10)
		require.NoError(t, err)
		defer reopened.Close()
		count, err := reopened.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("Separate Memory Stores", func(t *testing.T) {
		first := newTestStore(t, 10)
		second := newTestStore(t, 10)
		require.NoError(t, first.StoreSample(Sample{Timestamp: time.Now(), Strength: 5}))

		count, err := second.Count()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestRecentAndBetween(t *testing.T) {
	store := newTestStore(t, 0)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var samples []Sample
	for i := 0; i < 5; i++ {
		samples = append(samples, Sample{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Strength:  100 + i,
			Frequency: intPtr(3630000),
		})
	}
	samples[4].Frequency = nil
	require.NoError(t, store.StoreSamples(samples))

	recent, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 104, recent[0].Strength)
	assert.Nil(t, recent[0].Frequency)
	assert.Equal(t, 103, recent[1].Strength)
	require.NotNil(t, recent[1].Frequency)
	assert.Equal(t, 3630000, *recent[1].Frequency)
	assert.True(t, base.Add(3*time.Second).Equal(recent[1].Timestamp))

	between, err := store.Between(base.Add(time.Second), base.Add(3*time.Second))
	require.NoError(t, err)
	require.Len(t, between, 3)
	assert.Equal(t, []int{101, 102, 103}, []int{between[0].Strength, between[1].Strength, between[2].Strength})
}

func TestStats(t *testing.T) {
	store := newTestStore(t, 0)

	stats, err := store.Stats(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
	assert.Nil(t, stats.First)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.StoreSamples([]Sample{
		{Timestamp: base, Strength: 10},
		{Timestamp: base.Add(time.Minute), Strength: 30},
		{Timestamp: base.Add(2 * time.Minute), Strength: 50},
	}))

	stats, err = store.Stats(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 10, stats.Min)
	assert.Equal(t, 50, stats.Max)
	assert.InDelta(t, 30.0, stats.Average, 0.001)
	require.NotNil(t, stats.First)
	require.NotNil(t, stats.Last)
	assert.True(t, base.Equal(*stats.First))
	assert.True(t, base.Add(2*time.Minute).Equal(*stats.Last))

	stats, err = store.Stats(base.Add(30 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 30, stats.Min)
}

func TestPrune(t *testing.T) {
	store := newTestStore(t, 3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.StoreSample(Sample{Timestamp: now, Strength: i}))
	}

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	recent, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, 4, recent[0].Strength)
	assert.Equal(t, 2, recent[2].Strength)

	removed, err := store.Prune()
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestRecorder(t *testing.T) {
	store := newTestStore(t, 0)
	recorder := NewRecorder(store, func() device.Optional { return device.Some(7000000) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		recorder.Run(ctx)
		close(done)
	}()

	now := time.Now()
	recorder.Observe(device.Event{Kind: rx320.ResponseStrength, Strength: 42, Time: now})
	recorder.Observe(device.Event{Kind: rx320.ResponseFirmware, Firmware: "1.05", Time: now})
	recorder.Observe(device.Event{Kind: rx320.ResponseStrength, Strength: 43, Time: now})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop")
	}

	recent, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 43, recent[0].Strength)
	require.NotNil(t, recent[0].Frequency)
	assert.Equal(t, 7000000, *recent[0].Frequency)
	assert.Equal(t, uint64(0), recorder.Dropped())
}

func TestRecorderDropsWhenFull(t *testing.T) {
	store := newTestStore(t, 0)
	recorder := NewRecorder(store, nil)

	for i := 0; i < recorderQueueSize+5; i++ {
		recorder.Observe(device.Event{Kind: rx320.ResponseStrength, Strength: i, Time: time.Now()})
	}
	assert.Equal(t, uint64(5), recorder.Dropped())
}
