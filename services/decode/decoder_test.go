package decode

import (
	"encoding/binary"
	"math"
	"testing"

	"adxl-logger/models"
	"adxl-logger/services/framing"
)

func closeRel(a, b, tol float64) bool {
	if a == b {
		return true
	}
	d := math.Abs(a - b)
	m := math.Max(math.Abs(a), math.Abs(b))
	return d <= tol*m
}

func accelFrame(words [][3]uint16, temp uint16) []byte {
	f := append([]byte(nil), framing.HeaderAccel...)
	for _, w := range words {
		for _, v := range w {
			f = binary.BigEndian.AppendUint16(f, v)
		}
	}
	f = binary.BigEndian.AppendUint16(f, temp)
	return append(f, framing.FooterAccel...)
}

func inclFrame(words [][2]int16) []byte {
	f := append([]byte(nil), framing.HeaderIncl...)
	for _, w := range words {
		for _, v := range w {
			f = binary.LittleEndian.AppendUint16(f, uint16(v))
		}
	}
	f = append(f, 0x00, 0x00)
	return append(f, framing.FooterIncl...)
}

func TestAccelMaskInvariant(t *testing.T) {
	d := New(DefaultCalibration())
	if d.AccelG(0x1FFF) != d.AccelG(0x0FFF) {
		t.Fatalf("0x1FFF=%v 0x0FFF=%v", d.AccelG(0x1FFF), d.AccelG(0x0FFF))
	}
	if d.AccelG(0xF800) != d.AccelG(0x0800) {
		t.Fatalf("upper nibble leaked into the conversion")
	}
}

func TestAccelConversion(t *testing.T) {
	d := New(DefaultCalibration())
	raw := uint16(1250)
	volts := float64(raw) * 3.3 * 2 / 4096.0
	want := (volts - 1.65) / 0.0063
	if got := d.AccelG(raw); !closeRel(got, want, 1e-12) {
		t.Fatalf("g=%v want %v", got, want)
	}
}

func TestAccelRoundTrip(t *testing.T) {
	cal := DefaultCalibration()
	d := New(cal)
	triples := [][3]uint16{{0, 2048, 4095}, {1024, 1250, 3000}, {1, 2, 3}}
	for _, raw := range triples {
		gx, gy, gz := d.AccelG(raw[0]), d.AccelG(raw[1]), d.AccelG(raw[2])
		words := [3]uint16{cal.RawFromG(gx), cal.RawFromG(gy), cal.RawFromG(gz)}
		if words != raw {
			t.Fatalf("encode %v -> %v", raw, words)
		}
		samples, err := d.Accel(accelFrame([][3]uint16{words}, 0), 1)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		s := samples[0]
		for i, want := range []float64{gx, gy, gz} {
			if !closeRel(s.Values[i], want, 1e-9) {
				t.Fatalf("axis %d: %v want %v", i, s.Values[i], want)
			}
		}
	}
}

func TestAccelFrameLayout(t *testing.T) {
	d := New(DefaultCalibration())
	words := make([][3]uint16, 682)
	for i := range words {
		words[i] = [3]uint16{uint16(i), 2048, 0x0FFF}
	}
	frame := accelFrame(words, 0x664C)
	if len(frame) != framing.Packet4100Len {
		t.Fatalf("test frame len=%d", len(frame))
	}

	var cur Cursor
	res := d.Decode(models.RawFrame{Kind: models.KindAccel4100, Bytes: frame}, &cur)
	accel := models.Channel(res.Samples, models.SensorAccel, models.AxisX)
	if len(accel) != 682 {
		t.Fatalf("accel samples=%d", len(accel))
	}
	if res.Samples[0].Index != 1 || res.Samples[681].Index != 682 {
		t.Fatalf("indices %d..%d", res.Samples[0].Index, res.Samples[681].Index)
	}
	temp := res.Samples[len(res.Samples)-1]
	if temp.Sensor != models.SensorTemp || temp.Index != 1 {
		t.Fatalf("temperature sample missing: %+v", temp)
	}

	res = d.Decode(models.RawFrame{Kind: models.KindAccel4100, Bytes: frame}, &cur)
	if res.Samples[0].Index != 683 {
		t.Fatalf("index reset across sub-packets: %d", res.Samples[0].Index)
	}
	if last := res.Samples[len(res.Samples)-1]; last.Index != 2 {
		t.Fatalf("temperature index=%d", last.Index)
	}
}

func TestSplicedAccelFrame(t *testing.T) {
	d := New(DefaultCalibration())
	// 10 groups survive the splice, plus 2 stray bytes of a torn group
	frame := accelFrame(make([][3]uint16, 10), 0x664C)
	torn := append(append([]byte(nil), frame[:len(frame)-5]...), 0x08, 0x00)
	torn = append(torn, frame[len(frame)-5:]...)
	samples, err := d.Accel(torn, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(samples) != 10 {
		t.Fatalf("samples=%d want 10", len(samples))
	}
	temp, err := d.Temperature(torn, 1)
	if err != nil || !closeRel(temp.Values[0], Celsius(0x664C), 1e-12) {
		t.Fatalf("temperature=%v err=%v", temp.Values, err)
	}
}

func TestCelsiusMasksStatusBits(t *testing.T) {
	want := -46.85 + 175.72*float64(0x664C)/65536.0
	for _, raw := range []uint16{0x664C, 0x664D, 0x664E, 0x664F} {
		if got := Celsius(raw); !closeRel(got, want, 1e-12) {
			t.Fatalf("raw %#04x: %v want %v", raw, got, want)
		}
	}
}

func TestInclination(t *testing.T) {
	d := New(DefaultCalibration())
	frame := inclFrame([][2]int16{{256, -1000}, {32767, -32768}, {0, 0}})
	samples, err := d.Incl(frame, 5)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(samples) != 3 || samples[0].Index != 5 {
		t.Fatalf("samples=%d first=%d", len(samples), samples[0].Index)
	}
	deg := func(counts float64) float64 { return math.Asin(counts*0.031/1000) * 180 / math.Pi }
	if !closeRel(samples[0].Values[0], deg(256), 1e-12) {
		t.Fatalf("x=%v", samples[0].Values[0])
	}
	if !closeRel(samples[0].Values[1], deg(-1000), 1e-12) {
		t.Fatalf("y=%v", samples[0].Values[1])
	}
	if !closeRel(samples[1].Values[0], 90, 1e-12) || !closeRel(samples[1].Values[1], -90, 1e-12) {
		t.Fatalf("clamp failed: %v", samples[1].Values)
	}
	if samples[2].Values[0] != 0 {
		t.Fatalf("zero=%v", samples[2].Values[0])
	}
}

func TestMetadata(t *testing.T) {
	d := New(DefaultCalibration())
	frame := make([]byte, 32)
	copy(frame, []byte{0xAA, 0xBB, 0x00, 0x01, 0x00, 0x64, 0x00, 0x0A})
	copy(frame[20:], []byte{9, 5, 7, 14, 3, 25, 9, 6, 0, 14, 3, 25})

	var cur Cursor
	res := d.Decode(models.RawFrame{Kind: models.KindPacket32, Bytes: frame}, &cur)
	md := res.Metadata
	if md == nil {
		t.Fatalf("no metadata")
	}
	if md.EventID != 1 || md.AccelHz != 100 || md.InclHz != 10 {
		t.Fatalf("metadata=%+v", md)
	}
	if md.Start.String() != "09:05:07_14:03:2025" || md.End.String() != "09:06:00_14:03:2025" {
		t.Fatalf("times %s / %s", md.Start, md.End)
	}
}

func TestShortPayloadsDoNotFail(t *testing.T) {
	d := New(DefaultCalibration())
	var cur Cursor
	cases := []models.RawFrame{
		{Kind: models.KindPacket32, Bytes: []byte{0xAA, 0xBB, 0x00}},
		{Kind: models.KindIncl4100, Bytes: []byte{0xEE, 0xFF, 0xFF, 0x01, 0x00, 0xFF, 0xCC, 0xDD}},
		{Kind: models.KindLiveStatus, Bytes: []byte{0xAA, 0xBB, 0xFF, 0xFF}},
		{Kind: models.KindLiveAccel, Bytes: []byte{0xCC, 0xDD, 0xFF, 0x01, 0xEE, 0xFF}},
		{Kind: models.KindUnknown, Bytes: nil},
	}
	for _, f := range cases {
		res := d.Decode(f, &cur)
		if len(res.Samples) != 0 || res.Metadata != nil {
			t.Fatalf("%s: expected empty result, got %+v", f.Kind, res)
		}
	}

	// header + trailer only: no accel groups, temperature still readable
	res := d.Decode(models.RawFrame{Kind: models.KindAccel4100, Bytes: accelFrame(nil, 0x664C)}, &cur)
	if len(res.Samples) != 1 || res.Samples[0].Sensor != models.SensorTemp {
		t.Fatalf("samples=%+v", res.Samples)
	}
}

func record(id uint16) []byte {
	r := make([]byte, 32)
	r[0], r[1] = 0xAA, 0xBB
	binary.BigEndian.PutUint16(r[2:4], id)
	copy(r[20:], []byte{1, 2, 3, 4, 5, 24, 1, 3, 0, 4, 5, 24})
	return r
}

func TestLogEvents(t *testing.T) {
	d := New(DefaultCalibration())
	pad := make([]byte, 32)
	for i := range pad {
		pad[i] = 0xFF
	}
	var frame []byte
	frame = append(frame, record(1)...)
	frame = append(frame, record(2)...)
	frame = append(frame, framing.LogSegmentMarker...)
	frame = append(frame, record(3)...)
	frame = append(frame, pad...)
	frame = append(frame, record(99)...) // after padding: ignored
	frame = append(frame, framing.LogEventsFooter...)

	events, err := d.LogEvents(frame)
	if err != nil {
		t.Fatalf("log events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events=%d", len(events))
	}
	for i, want := range []uint16{1, 2, 3} {
		if events[i].EventID != want {
			t.Fatalf("event %d id=%d want %d", i, events[i].EventID, want)
		}
	}
	if events[0].Start.String() != "01:02:03_04:05:2024" {
		t.Fatalf("start=%s", events[0].Start)
	}
}

func TestAckDecoding(t *testing.T) {
	d := New(DefaultCalibration())

	th := []byte{0x53, 0x54, 0x54}
	for _, v := range []float32{0.5, 1.25, -2} {
		th = binary.LittleEndian.AppendUint32(th, math.Float32bits(v))
	}
	th = append(th, 0x4F, 0x4B)
	ack, err := d.Ack(models.RawFrame{Kind: models.KindAck, Command: models.CmdSetThreshold, Bytes: th})
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if ack.Thresholds != [3]float32{0.5, 1.25, -2} {
		t.Fatalf("thresholds=%v", ack.Thresholds)
	}

	sr := []byte{0x53, 0x54, 0x52, 0x03, 0xE8, 0x00, 0x64, 0xFF}
	ack, err = d.Ack(models.RawFrame{Kind: models.KindAck, Command: models.CmdSetSampleRate, Bytes: sr})
	if err != nil || ack.AccelHz != 1000 || ack.InclHz != 100 {
		t.Fatalf("sample rate ack=%+v err=%v", ack, err)
	}
}

func TestLiveFrames(t *testing.T) {
	d := New(DefaultCalibration())
	var cur Cursor

	accel := append([]byte(nil), framing.HeaderAccel...)
	accel = append(accel, 0x08, 0x00, 0x08, 0x00, 0x08, 0x00, 0x09, 0x00, 0x07, 0x00, 0x08, 0x00)
	accel = append(accel, framing.FooterLiveAccel...)
	res := d.Decode(models.RawFrame{Kind: models.KindLiveAccel, Bytes: accel}, &cur)
	if len(res.Samples) != 2 || res.Samples[1].Index != 2 {
		t.Fatalf("live accel samples=%+v", res.Samples)
	}

	status := []byte{0xAA, 0xBB, 0x66, 0x4C, 0xFF, 0xFF}
	res = d.Decode(models.RawFrame{Kind: models.KindLiveStatus, Bytes: status}, &cur)
	if len(res.Samples) != 1 || !closeRel(res.Samples[0].Values[0], Celsius(0x664C), 1e-12) {
		t.Fatalf("live status=%+v", res.Samples)
	}

	incl := append([]byte(nil), framing.HeaderIncl...)
	incl = append(incl, 0x00, 0x01, 0x00, 0x00)
	incl = append(incl, framing.FooterLiveIncl...)
	res = d.Decode(models.RawFrame{Kind: models.KindLiveIncl, Bytes: incl}, &cur)
	if len(res.Samples) != 1 || res.Samples[0].Values[0] <= 0 {
		t.Fatalf("live incl=%+v", res.Samples)
	}
}
