package models

import (
	"encoding/hex"
	"strings"
)

// FrameKind tags the grammar that matched a RawFrame.
type FrameKind int

const (
	KindUnknown FrameKind = iota
	KindPacket32
	KindAccel4100
	KindIncl4100
	KindEventEnd
	KindLogEvents
	KindAck
	KindLiveAccel
	KindLiveIncl
	KindLiveStatus
)

var kindNames = map[FrameKind]string{
	KindUnknown:    "unknown",
	KindPacket32:   "packet32",
	KindAccel4100:  "packet4100_accel",
	KindIncl4100:   "packet4100_incl",
	KindEventEnd:   "event_end",
	KindLogEvents:  "log_events",
	KindAck:        "ack",
	KindLiveAccel:  "live_accel",
	KindLiveIncl:   "live_incl",
	KindLiveStatus: "live_status",
}

func (k FrameKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// IsLive reports whether k is one of the variable-length live grammars.
func (k FrameKind) IsLive() bool {
	return k == KindLiveAccel || k == KindLiveIncl || k == KindLiveStatus
}

// RawFrame is one complete frame sliced out of the accumulation buffer.
// Bytes is owned by the frame; it never aliases the extractor's buffer.
type RawFrame struct {
	Kind    FrameKind
	Command CommandID
	Bytes   []byte

	// Spliced is set when a 0xFF run was excised; SpliceAt is the run start.
	Spliced  bool
	SpliceAt int
}

// Len is the frame length after any splice.
func (f RawFrame) Len() int { return len(f.Bytes) }

// HexBytes renders b as upper-case hex pairs separated by spaces.
func HexBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	h := strings.ToUpper(hex.EncodeToString(b))
	var sb strings.Builder
	sb.Grow(len(h) + len(b))
	for i := 0; i < len(h); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(h[i : i+2])
	}
	return sb.String()
}
