package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adxl-logger/models"
	"adxl-logger/services/stream"
	"adxl-logger/utils"
)

type recordingSink struct {
	mu      sync.Mutex
	updates []*models.LiveUpdate
	err     error
}

func (s *recordingSink) PublishLive(_ context.Context, u *models.LiveUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func accelBurst(from, n int) []models.SensorSample {
	out := make([]models.SensorSample, n)
	for i := range out {
		out[i] = models.NewAccelSample(from+i, float64(i%4), 0, 1)
	}
	return out
}

func TestTickBatchesEverythingPending(t *testing.T) {
	buf := stream.NewBuffer(0)
	lc := NewLiveController(utils.DefaultConfig().Live, buf)

	if lc.Tick() != nil {
		t.Fatalf("update from empty buffer")
	}
	buf.Push(accelBurst(1, 10))
	buf.Push(nil)
	buf.Push(accelBurst(11, 5))
	u := lc.Tick()
	if u == nil || len(u.Samples) != 15 || u.Window != 15 || u.Seq != 1 {
		t.Fatalf("update %+v", u)
	}
	if buf.Pending() != 0 {
		t.Fatalf("pending=%d", buf.Pending())
	}
	if u.Spectrum != nil {
		t.Fatalf("spectrum computed while disabled")
	}
}

func TestTickSpectrum(t *testing.T) {
	cfg := utils.DefaultConfig().Live
	cfg.Spectrum = true
	cfg.SpectrumRateHz = 400
	buf := stream.NewBuffer(0)
	lc := NewLiveController(cfg, buf)

	buf.Push(accelBurst(1, 600))
	u := lc.Tick()
	if u.Spectrum == nil || u.Spectrum.Size != 1024 || len(u.Spectrum.Bins) != 513 {
		t.Fatalf("spectrum %+v", u.Spectrum)
	}

	buf.Push(accelBurst(601, 600))
	u = lc.Tick()
	if u.Spectrum.Samples != spectrumLen {
		t.Fatalf("tail not capped: %d", u.Spectrum.Samples)
	}
	// x cycles with period 4 samples: 100 Hz at 400 Hz
	peak := u.Spectrum.Bins[1]
	for _, b := range u.Spectrum.Bins[2:] {
		if b.Magnitude > peak.Magnitude {
			peak = b
		}
	}
	if peak.Frequency != 100 {
		t.Fatalf("peak at %v Hz", peak.Frequency)
	}
}

func TestRunPublishesToSinks(t *testing.T) {
	cfg := utils.DefaultConfig().Live
	cfg.TickMs = 5
	buf := stream.NewBuffer(0)
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("down")}
	lc := NewLiveController(cfg, buf, ok, failing)

	ctx, cancel := context.WithCancel(context.Background())
	lc.Start(ctx)
	buf.Push(accelBurst(1, 3))

	deadline := time.After(2 * time.Second)
	for ok.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("no update published")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	for range lc.Out {
	}
	if failing.count() != ok.count() {
		t.Fatalf("failing sink skipped: %d vs %d", failing.count(), ok.count())
	}
}
