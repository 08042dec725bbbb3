package ingest

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"adxl-logger/models"
	"adxl-logger/services/decode"
	"adxl-logger/services/framing"
	"adxl-logger/utils"
)

func extractChunked(t *testing.T, cmd models.CommandID, stream []byte) ([]models.RawFrame, *framing.Extractor) {
	t.Helper()
	e := framing.NewExtractor(cmd, framing.DefaultLimits())
	rng := rand.New(rand.NewSource(7))
	var frames []models.RawFrame
	for len(stream) > 0 {
		n := min(len(stream), 1+rng.Intn(3000))
		frames = append(frames, e.Feed(stream[:n])...)
		stream = stream[n:]
	}
	return frames, e
}

func TestEventStreamDecodes(t *testing.T) {
	in := NewInstrument(decode.DefaultCalibration())
	in.AccelPackets = 20
	in.CorruptEvery = 7

	frames, e := extractChunked(t, models.CmdEventFetch, in.EventStream(3))
	if !e.Done() {
		t.Fatalf("terminator not seen")
	}
	count := map[models.FrameKind]int{}
	for _, f := range frames {
		count[f.Kind]++
	}
	if count[models.KindPacket32] != 1 || count[models.KindAccel4100] != 20 ||
		count[models.KindIncl4100] != in.InclPackets() || count[models.KindEventEnd] != 1 {
		t.Fatalf("frame counts %v", count)
	}
	if st := e.Stats(); st.Splices != 2 || st.BytesDiscarded != 0 {
		t.Fatalf("stats %+v", st)
	}

	d := decode.New(in.Cal)
	var (
		cur   decode.Cursor
		accel []models.SensorSample
		md    *models.EventMetadata
	)
	for _, f := range frames {
		res := d.Decode(f, &cur)
		if res.Metadata != nil {
			md = res.Metadata
		}
		for _, s := range res.Samples {
			if s.Sensor == models.SensorAccel {
				accel = append(accel, s)
			}
		}
	}
	if md == nil || md.EventID != 3 || md.AccelHz != 1000 || md.InclHz != 100 {
		t.Fatalf("metadata %+v", md)
	}
	if want := 18*accelGroupsPer4100 + 2*340; len(accel) != want {
		t.Fatalf("accel samples=%d want %d", len(accel), want)
	}
	// one ADC step is about 0.26 g
	for i := 0; i < 100; i++ {
		x, _, _ := in.AccelAt(accel[i].Index)
		if math.Abs(accel[i].Values[0]-x) > 0.15 {
			t.Fatalf("sample %d: x=%v want %v", i, accel[i].Values[0], x)
		}
	}
}

func TestLogEventsStreamDecodes(t *testing.T) {
	in := NewInstrument(decode.DefaultCalibration())
	ids := []uint16{4, 5, 6, 7, 8}
	frames, _ := extractChunked(t, models.CmdFetchLogEvents, in.LogEventsStream(ids, 2))
	if len(frames) != 1 || frames[0].Kind != models.KindLogEvents {
		t.Fatalf("frames %d", len(frames))
	}
	events, err := decode.New(in.Cal).LogEvents(frames[0].Bytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != len(ids) {
		t.Fatalf("events=%d", len(events))
	}
	for i, ev := range events {
		if ev.EventID != ids[i] {
			t.Fatalf("event %d id=%d", i, ev.EventID)
		}
	}
}

func TestLiveFramesExtract(t *testing.T) {
	in := NewInstrument(decode.DefaultCalibration())
	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, in.LiveFrames(1+i*20, 20, 1+i*2, 2, i == 0)...)
	}
	frames, e := extractChunked(t, models.CmdLive, stream)
	if len(frames) != 11 || e.Stats().BytesDiscarded != 0 {
		t.Fatalf("frames=%d stats=%+v", len(frames), e.Stats())
	}
	if frames[0].Kind != models.KindLiveStatus || frames[1].Kind != models.KindLiveAccel || frames[2].Kind != models.KindLiveIncl {
		t.Fatalf("first kinds %s %s %s", frames[0].Kind, frames[1].Kind, frames[2].Kind)
	}
}

func collect(t *testing.T, s *Simulator, e *framing.Extractor, until func([]models.RawFrame) bool) []models.RawFrame {
	t.Helper()
	timeout := time.After(5 * time.Second)
	var frames []models.RawFrame
	for !until(frames) {
		select {
		case chunk, ok := <-s.Chunks():
			if !ok {
				t.Fatalf("simulator closed early")
			}
			frames = append(frames, e.Feed(chunk)...)
		case <-timeout:
			t.Fatalf("timed out with %d frames", len(frames))
		}
	}
	return frames
}

func TestSimulatorAnswersRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := utils.DefaultConfig().Simulation
	cfg.AccelPackets = 3
	cfg.LiveIntervalMs = 5
	sim := NewSimulator(NewInstrument(decode.DefaultCalibration()), cfg, 64)
	sim.Start(ctx)

	e := framing.NewExtractor(models.CmdEventFetch, framing.DefaultLimits())
	req, _ := models.EventFetchRequest(9)
	if _, err := sim.Write(req); err != nil {
		t.Fatalf("write: %v", err)
	}
	frames := collect(t, sim, e, func([]models.RawFrame) bool { return e.Done() })
	if frames[0].Kind != models.KindPacket32 || frames[0].Bytes[3] != 9 {
		t.Fatalf("first frame %s % X", frames[0].Kind, frames[0].Bytes[:4])
	}

	e.Begin(models.CmdSetSampleRate)
	req, _ = models.BuildRequest(models.CmdSetSampleRate, 0x01, 0xF4, 0x00, 0x32)
	sim.Write(req)
	frames = collect(t, sim, e, func(f []models.RawFrame) bool { return len(f) > 0 })
	ack, err := decode.New(decode.DefaultCalibration()).Ack(frames[0])
	if err != nil || ack.AccelHz != 500 || ack.InclHz != 50 {
		t.Fatalf("ack %+v err=%v", ack, err)
	}

	e.Begin(models.CmdLive)
	req, _ = models.BuildRequest(models.CmdLive)
	sim.Write(req)
	frames = collect(t, sim, e, func(f []models.RawFrame) bool { return len(f) >= 6 })
	for _, f := range frames {
		if !f.Kind.IsLive() {
			t.Fatalf("non-live frame %s", f.Kind)
		}
	}
}

func TestCommandForOpcode(t *testing.T) {
	for c := models.CmdEventFetch; c <= models.CmdLive; c++ {
		op, _ := c.Opcode()
		if got := commandForOpcode(op); got != c {
			t.Fatalf("opcode %#02x -> %s want %s", op, got, c)
		}
	}
	if commandForOpcode(0x00) != models.CmdNone {
		t.Fatalf("unknown opcode mapped")
	}
}
