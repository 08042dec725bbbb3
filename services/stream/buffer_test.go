package stream

import (
	"sync"
	"testing"

	"adxl-logger/models"
)

func samples(from, n int) []models.SensorSample {
	out := make([]models.SensorSample, n)
	for i := range out {
		out[i] = models.NewAccelSample(from+i, 0, 0, 1)
	}
	return out
}

func TestPushesBetweenTicksDrainAsOneBatch(t *testing.T) {
	b := NewBuffer(0)
	b.Push(samples(1, 10))
	b.Push(nil)
	b.Push(samples(11, 5))

	batch := b.Drain()
	if len(batch.Samples) != 15 {
		t.Fatalf("batch=%d want 15", len(batch.Samples))
	}
	for i, s := range batch.Samples {
		if s.Index != i+1 {
			t.Fatalf("sample %d index=%d", i, s.Index)
		}
	}
	if b.Pending() != 0 {
		t.Fatalf("pending=%d after drain", b.Pending())
	}
	if len(b.History()) != 15 {
		t.Fatalf("history=%d", len(b.History()))
	}
}

func TestWindowFixedByFirstBatch(t *testing.T) {
	b := NewBuffer(0)
	if batch := b.Drain(); len(batch.Samples) != 0 || batch.Window != 0 {
		t.Fatalf("empty drain=%+v", batch)
	}
	b.Push(samples(1, 8))
	if w := b.Drain().Window; w != 8 {
		t.Fatalf("window=%d", w)
	}
	b.Push(samples(9, 20))
	batch := b.Drain()
	if batch.Window != 8 || batch.Seq != 2 {
		t.Fatalf("window=%d seq=%d", batch.Window, batch.Seq)
	}
	if len(b.History()) != 28 {
		t.Fatalf("history=%d", len(b.History()))
	}
}

func TestDrainTransfersOwnership(t *testing.T) {
	b := NewBuffer(0)
	b.Push(samples(1, 3))
	batch := b.Drain()
	batch.Samples[0].Index = 99
	b.Push(samples(4, 1))
	if got := b.Drain().Samples[0].Index; got != 4 {
		t.Fatalf("new pending aliases old batch: index=%d", got)
	}
}

func TestBoundedQueueEvictsOldest(t *testing.T) {
	b := NewBuffer(10)
	b.Push(samples(1, 7))
	b.Push(samples(8, 7))
	if b.Pending() != 10 || b.Dropped() != 4 {
		t.Fatalf("pending=%d dropped=%d", b.Pending(), b.Dropped())
	}
	batch := b.Drain()
	if batch.Samples[0].Index != 5 || batch.Samples[9].Index != 14 {
		t.Fatalf("kept %d..%d", batch.Samples[0].Index, batch.Samples[9].Index)
	}
}

func TestConcurrentPushDrain(t *testing.T) {
	b := NewBuffer(0)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			b.Push(samples(i*3+1, 3))
		}
	}()
	total := 0
	for i := 0; i < 50; i++ {
		total += len(b.Drain().Samples)
	}
	wg.Wait()
	total += len(b.Drain().Samples)
	if total != 300 || len(b.History()) != 300 {
		t.Fatalf("drained=%d history=%d", total, len(b.History()))
	}
}

func TestReset(t *testing.T) {
	b := NewBuffer(0)
	b.Push(samples(1, 4))
	b.Drain()
	b.Push(samples(5, 2))
	b.Reset()
	if b.Pending() != 0 || len(b.History()) != 0 || b.Window() != 0 {
		t.Fatalf("reset left state behind")
	}
}
