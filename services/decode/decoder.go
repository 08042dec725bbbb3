package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"adxl-logger/models"
	"adxl-logger/services/monitor"
	"adxl-logger/utils"
)

var (
	ErrShortPayload = errors.New("decode: payload shorter than one decode group")
	ErrWrongKind    = errors.New("decode: frame kind not handled")
)

const (
	accelMask = 0x0FFF
	tempMask  = ^uint16(0x0003)

	accelGroupLen = 6
	inclGroupLen  = 4

	payloadHeaderLen  = 3
	payloadTrailerLen = 5
	liveFooterLen     = 2
	liveStatusLen     = 6
)

// Decoder converts frame payloads into engineering units. Apart from the
// calibration it holds no state: sample ordinals are carried by a Cursor
// owned by the caller.
type Decoder struct {
	cal Calibration
	log *logrus.Entry
}

func New(cal Calibration) *Decoder {
	return &Decoder{cal: cal, log: utils.Component("decode")}
}

func (d *Decoder) Calibration() Calibration { return d.cal }

// Cursor tracks the next 1-based sample ordinal per sensor so indices run
// across every sub-packet of an event.
type Cursor struct {
	next [3]int
}

func (c *Cursor) peek(s models.SensorKind) int {
	if c.next[s] == 0 {
		c.next[s] = 1
	}
	return c.next[s]
}

func (c *Cursor) advance(s models.SensorKind, n int) {
	c.peek(s)
	c.next[s] += n
}

// Result is everything one frame decoded to. At most one of the non-sample
// fields is set.
type Result struct {
	Samples   []models.SensorSample
	Metadata  *models.EventMetadata
	LogEvents []models.LogEvent
	Ack       *models.Ack
}

// Decode dispatches on the frame kind. Malformed input yields an empty or
// partial result and a log line; it never fails the caller.
func (d *Decoder) Decode(f models.RawFrame, cur *Cursor) Result {
	var (
		res Result
		err error
	)
	switch f.Kind {
	case models.KindPacket32:
		var md models.EventMetadata
		if md, err = d.Metadata(f.Bytes); err == nil {
			res.Metadata = &md
		}
	case models.KindAccel4100:
		res.Samples, err = d.Accel(f.Bytes, cur.peek(models.SensorAccel))
		cur.advance(models.SensorAccel, len(res.Samples))
		if t, terr := d.Temperature(f.Bytes, cur.peek(models.SensorTemp)); terr == nil {
			res.Samples = append(res.Samples, t)
			cur.advance(models.SensorTemp, 1)
		} else if err == nil {
			err = terr
		}
	case models.KindIncl4100:
		res.Samples, err = d.Incl(f.Bytes, cur.peek(models.SensorIncl))
		cur.advance(models.SensorIncl, len(res.Samples))
	case models.KindLogEvents:
		res.LogEvents, err = d.LogEvents(f.Bytes)
	case models.KindAck:
		var ack models.Ack
		if ack, err = d.Ack(f); err == nil {
			res.Ack = &ack
		}
	case models.KindLiveAccel:
		res.Samples, err = d.LiveAccel(f.Bytes, cur.peek(models.SensorAccel))
		cur.advance(models.SensorAccel, len(res.Samples))
	case models.KindLiveIncl:
		res.Samples, err = d.LiveIncl(f.Bytes, cur.peek(models.SensorIncl))
		cur.advance(models.SensorIncl, len(res.Samples))
	case models.KindLiveStatus:
		var t models.SensorSample
		if t, err = d.LiveStatus(f.Bytes, cur.peek(models.SensorTemp)); err == nil {
			res.Samples = []models.SensorSample{t}
			cur.advance(models.SensorTemp, 1)
		}
	case models.KindEventEnd:
		// terminator carries no payload
	default:
		err = fmt.Errorf("%w: %s", ErrWrongKind, f.Kind)
	}

	for _, s := range res.Samples {
		monitor.SamplesDecoded.WithLabelValues(s.Sensor.String()).Inc()
	}
	if err != nil {
		if errors.Is(err, ErrShortPayload) {
			monitor.ShortPayloads.WithLabelValues(f.Kind.String()).Inc()
		}
		d.log.WithFields(logrus.Fields{
			"kind": f.Kind.String(), "len": f.Len(), "decoded": len(res.Samples),
		}).Warnf("decode diagnostic: %v", err)
	}
	return res
}

// ─── acceleration / temperature ─────────────────────────────────────────

// Accel decodes a Packet4100-Accel frame (header, 6-byte XYZ groups,
// 2 temperature bytes, footer). Indices start at first.
func (d *Decoder) Accel(frame []byte, first int) ([]models.SensorSample, error) {
	if len(frame) < payloadHeaderLen+payloadTrailerLen {
		return nil, fmt.Errorf("%w: accel frame of %d bytes", ErrShortPayload, len(frame))
	}
	return d.accelGroups(frame[payloadHeaderLen:len(frame)-payloadTrailerLen], first)
}

// LiveAccel decodes CC DD FF <groups> EE FF.
func (d *Decoder) LiveAccel(frame []byte, first int) ([]models.SensorSample, error) {
	if len(frame) < payloadHeaderLen+liveFooterLen {
		return nil, fmt.Errorf("%w: live accel frame of %d bytes", ErrShortPayload, len(frame))
	}
	return d.accelGroups(frame[payloadHeaderLen:len(frame)-liveFooterLen], first)
}

func (d *Decoder) accelGroups(payload []byte, first int) ([]models.SensorSample, error) {
	n := len(payload) / accelGroupLen
	if n == 0 {
		return nil, fmt.Errorf("%w: %d accel bytes", ErrShortPayload, len(payload))
	}
	out := make([]models.SensorSample, 0, n)
	for i := 0; i < n; i++ {
		g := payload[i*accelGroupLen:]
		x := d.AccelG(binary.BigEndian.Uint16(g[0:2]))
		y := d.AccelG(binary.BigEndian.Uint16(g[2:4]))
		z := d.AccelG(binary.BigEndian.Uint16(g[4:6]))
		out = append(out, models.NewAccelSample(first+i, x, y, z))
	}
	if rem := len(payload) % accelGroupLen; rem != 0 {
		d.log.Debugf("accel payload: %d trailing bytes ignored", rem)
	}
	return out, nil
}

// AccelG converts one raw ADC word to g; bits above the 12th are ignored.
func (d *Decoder) AccelG(raw uint16) float64 {
	return d.cal.G(d.cal.Volts(raw))
}

// Temperature reads the 2 bytes that precede the 3-byte footer.
func (d *Decoder) Temperature(frame []byte, index int) (models.SensorSample, error) {
	if len(frame) < payloadTrailerLen {
		return models.SensorSample{}, fmt.Errorf("%w: no temperature bytes in %d", ErrShortPayload, len(frame))
	}
	at := len(frame) - payloadTrailerLen
	return models.NewTempSample(index, Celsius(binary.BigEndian.Uint16(frame[at:at+2]))), nil
}

// LiveStatus decodes AA BB <temp:2> FF FF.
func (d *Decoder) LiveStatus(frame []byte, index int) (models.SensorSample, error) {
	if len(frame) != liveStatusLen {
		return models.SensorSample{}, fmt.Errorf("%w: live status frame of %d bytes", ErrShortPayload, len(frame))
	}
	return models.NewTempSample(index, Celsius(binary.BigEndian.Uint16(frame[2:4]))), nil
}

// Celsius converts the humidity/temperature sensor word; the two status bits
// are cleared first.
func Celsius(raw uint16) float64 {
	return -46.85 + 175.72*float64(raw&tempMask)/65536.0
}

// ─── inclination ────────────────────────────────────────────────────────

// Incl decodes a Packet4100-Incl frame: 4-byte groups of X then Y, each a
// signed 16-bit word sent low byte first.
func (d *Decoder) Incl(frame []byte, first int) ([]models.SensorSample, error) {
	if len(frame) < payloadHeaderLen+payloadTrailerLen {
		return nil, fmt.Errorf("%w: incl frame of %d bytes", ErrShortPayload, len(frame))
	}
	return d.inclGroups(frame[payloadHeaderLen:len(frame)-payloadTrailerLen], first)
}

// LiveIncl decodes EE FF FF <groups> CC DD.
func (d *Decoder) LiveIncl(frame []byte, first int) ([]models.SensorSample, error) {
	if len(frame) < payloadHeaderLen+liveFooterLen {
		return nil, fmt.Errorf("%w: live incl frame of %d bytes", ErrShortPayload, len(frame))
	}
	return d.inclGroups(frame[payloadHeaderLen:len(frame)-liveFooterLen], first)
}

func (d *Decoder) inclGroups(payload []byte, first int) ([]models.SensorSample, error) {
	n := len(payload) / inclGroupLen
	if n == 0 {
		return nil, fmt.Errorf("%w: %d incl bytes", ErrShortPayload, len(payload))
	}
	out := make([]models.SensorSample, 0, n)
	for i := 0; i < n; i++ {
		g := payload[i*inclGroupLen:]
		x := d.InclDegrees(int16(binary.LittleEndian.Uint16(g[0:2])))
		y := d.InclDegrees(int16(binary.LittleEndian.Uint16(g[2:4])))
		out = append(out, models.NewInclSample(first+i, x, y))
	}
	if rem := len(payload) % inclGroupLen; rem != 0 {
		d.log.Debugf("incl payload: %d trailing bytes ignored", rem)
	}
	return out, nil
}

// InclDegrees scales counts to g, clamps to the asin domain and converts to
// degrees.
func (d *Decoder) InclDegrees(raw int16) float64 {
	g := float64(raw) * d.cal.InclScaleMg / 1000.0
	g = math.Max(-1, math.Min(1, g))
	return math.Asin(g) * 180 / math.Pi
}
