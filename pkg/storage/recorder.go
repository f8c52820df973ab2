package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dougsko/rx320d/pkg/device"
	"github.com/dougsko/rx320d/pkg/logging"
	"github.com/dougsko/rx320d/pkg/rx320"
)

const (
	recorderQueueSize = 1024
	recorderBatchSize = 50
	recorderFlush     = time.Second
)

// Recorder writes strength readings to a TelemetryStore in batches,
// off the device read loop
type Recorder struct {
	store     *TelemetryStore
	frequency func() device.Optional
	samples   chan Sample
	dropped   atomic.Uint64
}

// NewRecorder creates a recorder. frequency, if set, is called for each
// reading to tag it with the tuned frequency.
func NewRecorder(store *TelemetryStore, frequency func() device.Optional) *Recorder {
	return &Recorder{
		store:     store,
		frequency: frequency,
		samples:   make(chan Sample, recorderQueueSize),
	}
}

// Observe queues strength events. It never blocks; readings are dropped
// when the queue is full.
func (r *Recorder) Observe(event device.Event) {
	if event.Kind != rx320.ResponseStrength {
		return
	}

	sample := Sample{Timestamp: event.Time, Strength: event.Strength}
	if r.frequency != nil {
		if f := r.frequency(); f.Set {
			value := f.Value
			sample.Frequency = &value
		}
	}

	select {
	case r.samples <- sample:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many readings were lost to a full queue
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Run stores queued samples until ctx is cancelled, then flushes what is left
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(recorderFlush)
	defer ticker.Stop()

	batch := make([]Sample, 0, recorderBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.store.StoreSamples(batch); err != nil {
			logging.Errorf("STORAGE", "Failed to store %d samples: %v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case sample := <-r.samples:
					batch = append(batch, sample)
				default:
					flush()
					return
				}
			}
		case sample := <-r.samples:
			batch = append(batch, sample)
			if len(batch) >= recorderBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
