package ingest

import (
	"encoding/binary"
	"math"
	"time"

	"adxl-logger/models"
	"adxl-logger/services/decode"
	"adxl-logger/services/framing"
)

const (
	accelGroupsPer4100 = (framing.Packet4100Len - 8) / 6
	inclGroupsPer4100  = (framing.Packet4100Len - 8) / 4
	corruptAt          = 2048 // where injected 0xFF runs start inside a 4100 frame
)

// Instrument renders the byte streams the ADXL box sends for each request.
// Waveforms are deterministic functions of the sample index.
type Instrument struct {
	Cal          decode.Calibration
	AccelHz      uint16
	InclHz       uint16
	AccelPackets int
	CorruptEvery int
	Clock        time.Time
}

func NewInstrument(cal decode.Calibration) *Instrument {
	return &Instrument{
		Cal:          cal,
		AccelHz:      1000,
		InclHz:       100,
		AccelPackets: 147,
		Clock:        time.Now(),
	}
}

// AccelAt is the simulated acceleration in g for sample i.
func (in *Instrument) AccelAt(i int) (x, y, z float64) {
	t := float64(i) / float64(in.AccelHz)
	x = 25 * math.Sin(2*math.Pi*12*t)
	y = 8 * math.Sin(2*math.Pi*40*t)
	z = 1 + 0.05*math.Cos(2*math.Pi*3*t)
	return
}

// InclAt is the simulated inclinometer word pair for sample i. Values stay
// positive and below 0x0800 so no byte pattern can mimic a marker.
func (in *Instrument) InclAt(i int) (x, y int16) {
	t := float64(i) / float64(in.InclHz)
	x = int16(1000 + 400*math.Sin(2*math.Pi*0.5*t))
	y = int16(600 + 200*math.Cos(2*math.Pi*0.2*t))
	return
}

// TempRaw encodes celsius as the humidity/temperature sensor word.
func TempRaw(celsius float64) uint16 {
	return uint16((celsius+46.85)/175.72*65536) &^ 0x0003
}

func (in *Instrument) appendAccelGroup(b []byte, i int) []byte {
	x, y, z := in.AccelAt(i)
	b = binary.BigEndian.AppendUint16(b, in.Cal.RawFromG(x))
	b = binary.BigEndian.AppendUint16(b, in.Cal.RawFromG(y))
	return binary.BigEndian.AppendUint16(b, in.Cal.RawFromG(z))
}

func (in *Instrument) appendInclGroup(b []byte, i int) []byte {
	x, y := in.InclAt(i)
	b = binary.LittleEndian.AppendUint16(b, uint16(x))
	return binary.LittleEndian.AppendUint16(b, uint16(y))
}

// Metadata renders the Packet32 header record of an event.
func (in *Instrument) Metadata(eventID uint16, start, end time.Time) []byte {
	p := make([]byte, framing.Packet32Len)
	copy(p, framing.HeaderPacket32)
	binary.BigEndian.PutUint16(p[2:4], eventID)
	binary.BigEndian.PutUint16(p[4:6], in.AccelHz)
	binary.BigEndian.PutUint16(p[6:8], in.InclHz)
	copy(p[20:26], models.DeviceTimeOf(start).Bytes())
	copy(p[26:32], models.DeviceTimeOf(end).Bytes())
	return p
}

// AccelPacket renders accel sub-packet n (0-based). first is the index of
// its first sample.
func (in *Instrument) AccelPacket(n, first int) []byte {
	p := make([]byte, 0, framing.Packet4100Len)
	p = append(p, framing.HeaderAccel...)
	for g := 0; g < accelGroupsPer4100; g++ {
		p = in.appendAccelGroup(p, first+g)
	}
	p = binary.BigEndian.AppendUint16(p, TempRaw(24+0.01*float64(n)))
	p = append(p, framing.FooterAccel...)
	if in.CorruptEvery > 0 && (n+1)%in.CorruptEvery == 0 {
		for i := corruptAt; i < len(p)-5; i++ {
			p[i] = 0xFF
		}
	}
	return p
}

func (in *Instrument) InclPacket(first int) []byte {
	p := make([]byte, 0, framing.Packet4100Len)
	p = append(p, framing.HeaderIncl...)
	for g := 0; g < inclGroupsPer4100; g++ {
		p = in.appendInclGroup(p, first+g)
	}
	p = append(p, 0x00, 0x00)
	return append(p, framing.FooterIncl...)
}

// InclPackets is how many incl sub-packets accompany the configured accel
// sub-packets at the current rate ratio.
func (in *Instrument) InclPackets() int {
	if in.AccelHz == 0 {
		return 0
	}
	samples := in.AccelPackets * accelGroupsPer4100 * int(in.InclHz) / int(in.AccelHz)
	return (samples + inclGroupsPer4100 - 1) / inclGroupsPer4100
}

// EventStream is the full reply to an event fetch: metadata, accel and
// incl sub-packets interleaved in rate order, then the terminator.
func (in *Instrument) EventStream(eventID uint16) []byte {
	accelN, inclN := in.AccelPackets, in.InclPackets()
	dur := time.Duration(accelN*accelGroupsPer4100) * time.Second / time.Duration(max(1, int(in.AccelHz)))
	out := make([]byte, 0, framing.Packet32Len+(accelN+inclN)*framing.Packet4100Len+len(framing.EventTerminator))
	out = append(out, in.Metadata(eventID, in.Clock, in.Clock.Add(dur))...)

	ai, ii := 0, 0
	for ai < accelN || ii < inclN {
		// emit incl when it lags the accel share
		if ii < inclN && (ai >= accelN || ii*accelN <= ai*inclN) {
			out = append(out, in.InclPacket(1+ii*inclGroupsPer4100)...)
			ii++
			continue
		}
		out = append(out, in.AccelPacket(ai, 1+ai*accelGroupsPer4100)...)
		ai++
	}
	return append(out, framing.EventTerminator...)
}

// LogEventsStream renders the event log: ids split into segments of
// perSegment records, the last segment padded with one all-0xFF record.
// An empty log gets no reply.
func (in *Instrument) LogEventsStream(ids []uint16, perSegment int) []byte {
	if len(ids) == 0 {
		return nil
	}
	if perSegment <= 0 {
		perSegment = 8
	}
	var out []byte
	for i, id := range ids {
		start := in.Clock.Add(time.Duration(i) * time.Hour)
		out = append(out, in.Metadata(id, start, start.Add(time.Minute))...)
		if (i+1)%perSegment == 0 && i+1 < len(ids) {
			out = append(out, framing.LogSegmentMarker...)
		}
	}
	pad := make([]byte, framing.Packet32Len)
	for i := range pad {
		pad[i] = 0xFF
	}
	out = append(out, pad...)
	return append(out, framing.LogEventsFooter...)
}

// LiveFrames renders one live burst: an accel frame with nAccel groups, an
// incl frame with nIncl groups and, when withStatus, a status frame.
func (in *Instrument) LiveFrames(firstAccel, nAccel, firstIncl, nIncl int, withStatus bool) []byte {
	var out []byte
	if withStatus {
		out = append(out, framing.HeaderPacket32...)
		out = binary.BigEndian.AppendUint16(out, TempRaw(24.5))
		out = append(out, framing.FooterLiveStatus...)
	}
	if nAccel > 0 {
		out = append(out, framing.HeaderAccel...)
		for g := 0; g < nAccel; g++ {
			out = in.appendAccelGroup(out, firstAccel+g)
		}
		out = append(out, framing.FooterLiveAccel...)
	}
	if nIncl > 0 {
		out = append(out, framing.HeaderIncl...)
		for g := 0; g < nIncl; g++ {
			out = in.appendInclGroup(out, firstIncl+g)
		}
		out = append(out, framing.FooterLiveIncl...)
	}
	return out
}

// Ack renders the acknowledgement for c, or nil for requests that are
// answered with a data stream.
func (in *Instrument) Ack(c models.CommandID, params []byte) []byte {
	op, _ := c.Opcode()
	head := []byte{models.RequestLead0, models.RequestLead1, op}
	switch c {
	case models.CmdStartLog, models.CmdStopPlot:
		return append(head, 0x4F, 0x4B, models.RequestTail)
	case models.CmdSetSampleRate:
		out := binary.BigEndian.AppendUint16(head, in.AccelHz)
		out = binary.BigEndian.AppendUint16(out, in.InclHz)
		return append(out, models.RequestTail)
	case models.CmdSetClock:
		return append(append(head, models.DeviceTimeOf(in.Clock).Bytes()...), models.RequestTail)
	case models.CmdSetThreshold:
		th := make([]byte, 12)
		copy(th, params)
		return append(append(head, th...), 0x4F, 0x4B)
	}
	return nil
}
