package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"adxl-logger/models"
	"adxl-logger/services/framing"
)

const recordLen = framing.Packet32Len

// Metadata decodes the Packet32 record that opens an event fetch.
func (d *Decoder) Metadata(frame []byte) (models.EventMetadata, error) {
	if len(frame) < recordLen {
		return models.EventMetadata{}, fmt.Errorf("%w: packet32 of %d bytes", ErrShortPayload, len(frame))
	}
	return models.EventMetadata{
		EventID: binary.BigEndian.Uint16(frame[2:4]),
		AccelHz: binary.BigEndian.Uint16(frame[4:6]),
		InclHz:  binary.BigEndian.Uint16(frame[6:8]),
		Start:   models.DeviceTimeFromBytes(frame[20:26]),
		End:     models.DeviceTimeFromBytes(frame[26:32]),
	}, nil
}

func logEvent(rec []byte) models.LogEvent {
	return models.LogEvent{
		EventID: binary.BigEndian.Uint16(rec[2:4]),
		Start:   models.DeviceTimeFromBytes(rec[20:26]),
		End:     models.DeviceTimeFromBytes(rec[26:32]),
	}
}

func allFF(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}

// LogEvents walks a fetch-log-events envelope: one or more segments of
// 32-byte records, each segment closed by "end", the last one followed by
// FF EF EE. An all-0xFF record is padding; the rest of its segment is
// skipped.
func (d *Decoder) LogEvents(frame []byte) ([]models.LogEvent, error) {
	closing := framing.LogEventsFooter[len(framing.LogSegmentMarker):]
	body := bytes.TrimSuffix(frame, closing)
	marker := framing.LogSegmentMarker

	var (
		events  []models.LogEvent
		padding bool
		skipped int
	)
	for i := 0; i < len(body); {
		if bytes.HasPrefix(body[i:], marker) {
			i += len(marker)
			padding = false
			continue
		}
		if i+recordLen > len(body) {
			d.log.Debugf("log events: %d trailing bytes ignored", len(body)-i)
			break
		}
		rec := body[i : i+recordLen]
		i += recordLen
		if padding {
			continue
		}
		if allFF(rec) {
			padding = true
			continue
		}
		if !bytes.HasPrefix(rec, framing.HeaderPacket32) {
			skipped++
			continue
		}
		events = append(events, logEvent(rec))
	}
	if skipped > 0 {
		d.log.Warnf("log events: %d records without AA BB header skipped", skipped)
	}
	if len(events) == 0 && len(frame) < recordLen {
		return nil, fmt.Errorf("%w: log events frame of %d bytes", ErrShortPayload, len(frame))
	}
	return events, nil
}

// Ack decodes a fixed acknowledgement; the echoed fields depend on the
// command that was acknowledged.
func (d *Decoder) Ack(f models.RawFrame) (models.Ack, error) {
	b := f.Bytes
	ack := models.Ack{Command: f.Command, Raw: b}
	switch f.Command {
	case models.CmdSetSampleRate:
		if len(b) < framing.AckSampleRateLen {
			return ack, fmt.Errorf("%w: sample-rate ack of %d bytes", ErrShortPayload, len(b))
		}
		ack.AccelHz = binary.BigEndian.Uint16(b[3:5])
		ack.InclHz = binary.BigEndian.Uint16(b[5:7])
	case models.CmdSetClock:
		if len(b) < framing.AckClockLen {
			return ack, fmt.Errorf("%w: clock ack of %d bytes", ErrShortPayload, len(b))
		}
		ack.Clock = models.DeviceTimeFromBytes(b[3:9])
	case models.CmdSetThreshold:
		if len(b) < framing.AckThresholdLen {
			return ack, fmt.Errorf("%w: threshold ack of %d bytes", ErrShortPayload, len(b))
		}
		for i := range ack.Thresholds {
			off := 3 + 4*i
			ack.Thresholds[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
		}
	}
	return ack, nil
}
