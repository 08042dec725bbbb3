package stream

import (
	"sync"

	"adxl-logger/models"
	"adxl-logger/services/monitor"
)

// Batch is what one Drain hands to the consumer. Samples belongs to the
// caller; the buffer keeps no reference to it.
type Batch struct {
	Seq     uint64
	Samples []models.SensorSample
	Window  int // display window length, fixed by the first non-empty batch
}

// Buffer sits between the serial producer and the live display consumer.
// Push appends to a bounded pending queue; Drain swaps the queue out and
// appends it to the full session history.
type Buffer struct {
	mu         sync.Mutex
	pending    []models.SensorSample
	history    []models.SensorSample
	window     int
	maxPending int
	seq        uint64
	dropped    uint64
}

// NewBuffer creates a buffer whose pending queue holds at most maxPending
// samples; older samples are evicted first. maxPending <= 0 means unbounded.
func NewBuffer(maxPending int) *Buffer {
	return &Buffer{maxPending: maxPending}
}

// Push appends samples to the pending queue.
func (b *Buffer) Push(samples []models.SensorSample) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, samples...)
	if over := len(b.pending) - b.maxPending; b.maxPending > 0 && over > 0 {
		b.pending = append(b.pending[:0:0], b.pending[over:]...)
		b.dropped += uint64(over)
		monitor.LiveDropped.Add(float64(over))
	}
	n := len(b.pending)
	b.mu.Unlock()
	monitor.LivePending.Set(float64(n))
}

// Drain takes everything pending. An empty queue yields an empty batch with
// the current window.
func (b *Buffer) Drain() Batch {
	b.mu.Lock()
	out := b.pending
	b.pending = nil
	if len(out) > 0 {
		b.history = append(b.history, out...)
		if b.window == 0 {
			b.window = len(out)
		}
		b.seq++
	}
	batch := Batch{Seq: b.seq, Samples: out, Window: b.window}
	b.mu.Unlock()

	monitor.LivePending.Set(0)
	if len(out) > 0 {
		monitor.LiveBatchSize.Observe(float64(len(out)))
	}
	return batch
}

// History returns a copy of every sample drained so far.
func (b *Buffer) History() []models.SensorSample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.SensorSample, len(b.history))
	copy(out, b.history)
	return out
}

func (b *Buffer) Window() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.window
}

func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Dropped returns how many samples were evicted from a full queue.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Reset clears pending samples, history and the window, e.g. when a new
// live session starts.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.pending, b.history = nil, nil
	b.window, b.seq = 0, 0
	b.mu.Unlock()
	monitor.LivePending.Set(0)
}
