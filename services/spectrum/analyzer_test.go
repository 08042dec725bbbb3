package spectrum

import (
	"math"
	"testing"
)

func TestZeroInput(t *testing.T) {
	s := Analyze(make([]float64, 256), 100)
	if s.Size != 256 || len(s.Bins) != 129 {
		t.Fatalf("size=%d bins=%d", s.Size, len(s.Bins))
	}
	for k, b := range s.Bins {
		if b.Magnitude != 0 {
			t.Fatalf("bin %d magnitude %v", k, b.Magnitude)
		}
	}
}

func TestBinAlignedSine(t *testing.T) {
	const (
		n    = 1024
		rate = 1024.0
		bin  = 64
		amp  = 2.5
	)
	x := make([]float64, n)
	for i := range x {
		x[i] = amp * math.Sin(2*math.Pi*bin*float64(i)/n)
	}
	s := Analyze(x, rate)
	peak, ok := Peak(s)
	if !ok {
		t.Fatalf("empty spectrum")
	}
	if peak.Frequency != s.Bins[bin].Frequency || peak.Frequency != 64 {
		t.Fatalf("peak at %v Hz, want 64", peak.Frequency)
	}
	if math.Abs(peak.Magnitude-amp)/amp > 0.02 {
		t.Fatalf("peak magnitude %v, want about %v", peak.Magnitude, amp)
	}
}

func TestPaddingToPowerOfTwo(t *testing.T) {
	x := make([]float64, 600)
	for i := range x {
		x[i] = float64(i % 7)
	}
	const fs = 500.0
	s := Analyze(x, fs)
	if s.Size != 1024 || s.Samples != 600 {
		t.Fatalf("size=%d samples=%d", s.Size, s.Samples)
	}
	if len(s.Bins) != 513 {
		t.Fatalf("bins=%d", len(s.Bins))
	}
	if last := s.Bins[512].Frequency; last != fs*512/1024 {
		t.Fatalf("last frequency %v", last)
	}
	if x[3] != 3 {
		t.Fatalf("input mutated")
	}
}

func TestDegenerateInput(t *testing.T) {
	cases := []struct {
		name string
		x    []float64
		rate float64
	}{
		{"empty", nil, 100},
		{"single", []float64{1}, 100},
		{"zero rate", []float64{1, 2, 3}, 0},
		{"negative rate", []float64{1, 2, 3}, -5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Analyze(tc.x, tc.rate)
			if !s.Empty() {
				t.Fatalf("bins=%d", len(s.Bins))
			}
			if _, ok := Peak(s); ok {
				t.Fatalf("peak on empty spectrum")
			}
		})
	}
}

func TestNextPow2(t *testing.T) {
	for in, want := range map[int]int{2: 2, 3: 4, 600: 1024, 1024: 1024, 1025: 2048} {
		if got := nextPow2(in); got != want {
			t.Fatalf("nextPow2(%d)=%d want %d", in, got, want)
		}
	}
}
