package models

import (
	"fmt"
	"strings"
	"time"
)

// DeviceTime is the instrument's packed 6-byte clock: h, m, s, day, month,
// year-since-2000.
type DeviceTime struct {
	Hour, Minute, Second int
	Day, Month, Year     int // Year is the full year (2000 + byte)
}

// DeviceTimeFromBytes unpacks b[0:6]. The caller guarantees len(b) >= 6.
func DeviceTimeFromBytes(b []byte) DeviceTime {
	return DeviceTime{
		Hour:   int(b[0]),
		Minute: int(b[1]),
		Second: int(b[2]),
		Day:    int(b[3]),
		Month:  int(b[4]),
		Year:   2000 + int(b[5]),
	}
}

// DeviceTimeOf truncates t to the instrument's clock resolution.
func DeviceTimeOf(t time.Time) DeviceTime {
	return DeviceTime{
		Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(),
		Day: t.Day(), Month: int(t.Month()), Year: t.Year(),
	}
}

// Bytes packs t back into its 6-byte wire form.
func (t DeviceTime) Bytes() []byte {
	return []byte{byte(t.Hour), byte(t.Minute), byte(t.Second), byte(t.Day), byte(t.Month), byte(t.Year - 2000)}
}

// String renders hh:mm:ss_dd:mm:yyyy.
func (t DeviceTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d_%02d:%02d:%04d", t.Hour, t.Minute, t.Second, t.Day, t.Month, t.Year)
}

// Time converts to a UTC time.Time. ok is false for out-of-range fields.
func (t DeviceTime) Time() (time.Time, bool) {
	if t.Month < 1 || t.Month > 12 || t.Day < 1 || t.Day > 31 ||
		t.Hour > 23 || t.Minute > 59 || t.Second > 59 {
		return time.Time{}, false
	}
	return time.Date(t.Year, time.Month(t.Month), t.Day, t.Hour, t.Minute, t.Second, 0, time.UTC), true
}

// EventMetadata is decoded once per event fetch from the Packet32 record.
type EventMetadata struct {
	EventID uint16     `json:"event_id"`
	AccelHz uint16     `json:"accel_hz"`
	InclHz  uint16     `json:"incl_hz"`
	Start   DeviceTime `json:"start"`
	End     DeviceTime `json:"end"`
}

func (EventMetadata) CSVHeader() []string {
	return []string{"event_id", "accel_hz", "incl_hz", "start", "end"}
}

func (m *EventMetadata) CSVRow() []string {
	return []string{
		itoa(int(m.EventID)), itoa(int(m.AccelHz)), itoa(int(m.InclHz)),
		m.Start.String(), m.End.String(),
	}
}

// LogEvent is one record from a fetch-log-events reply.
type LogEvent struct {
	EventID uint16     `json:"event_id"`
	Start   DeviceTime `json:"start"`
	End     DeviceTime `json:"end"`
}

func (LogEvent) CSVHeader() []string {
	return []string{"event_id", "start", "end"}
}

func (e *LogEvent) CSVRow() []string {
	return []string{itoa(int(e.EventID)), e.Start.String(), e.End.String()}
}

// Ack is a decoded fixed acknowledgement. Only the fields echoed by the
// acknowledged command are populated.
type Ack struct {
	Command    CommandID  `json:"command"`
	Raw        []byte     `json:"raw"`
	AccelHz    uint16     `json:"accel_hz,omitempty"`
	InclHz     uint16     `json:"incl_hz,omitempty"`
	Clock      DeviceTime `json:"clock"`
	Thresholds [3]float32 `json:"thresholds"`
}

// FrameCounts tallies the sub-frames seen while assembling one event.
type FrameCounts struct {
	Packet32    int `json:"packet32"`
	Accel       int `json:"accel"`
	Incl        int `json:"incl"`
	Temperature int `json:"temperature"`
	Invalid     int `json:"invalid"`
	Spliced     int `json:"spliced"`
}

// EventRecord is one fully assembled event fetch.
type EventRecord struct {
	Metadata    *EventMetadata `json:"metadata,omitempty"`
	Accel       []SensorSample `json:"accel"`
	Incl        []SensorSample `json:"incl"`
	Temperature []SensorSample `json:"temperature"`
	Counts      FrameCounts    `json:"counts"`
	Warnings    []string       `json:"warnings,omitempty"`
	CompletedNs int64          `json:"completed_ns"`
}

// Samples returns all samples of the record in accel, incl, temp order.
func (r *EventRecord) Samples() []SensorSample {
	out := make([]SensorSample, 0, len(r.Accel)+len(r.Incl)+len(r.Temperature))
	out = append(out, r.Accel...)
	out = append(out, r.Incl...)
	return append(out, r.Temperature...)
}

// CSVHeader is the one-row-per-event summary written next to the samples.
func (EventRecord) CSVHeader() []string {
	return []string{
		"completed_ns", "event_id", "accel_hz", "incl_hz", "start", "end",
		"packet32", "accel_frames", "incl_frames", "temperature", "invalid", "spliced",
		"accel_samples", "incl_samples", "warnings",
	}
}

func (r *EventRecord) CSVRow() []string {
	row := []string{itoa64(r.CompletedNs)}
	if m := r.Metadata; m != nil {
		row = append(row, m.CSVRow()...)
	} else {
		row = append(row, "", "", "", "", "")
	}
	c := r.Counts
	row = append(row,
		itoa(c.Packet32), itoa(c.Accel), itoa(c.Incl), itoa(c.Temperature), itoa(c.Invalid), itoa(c.Spliced),
		itoa(len(r.Accel)), itoa(len(r.Incl)), strings.Join(r.Warnings, "; "),
	)
	return row
}
