package framing

import (
	"errors"
	"fmt"

	"adxl-logger/models"
)

// Wire markers.
var (
	HeaderPacket32 = []byte{0xAA, 0xBB}
	HeaderAccel    = []byte{0xCC, 0xDD, 0xFF}
	FooterAccel    = []byte{0xFF, 0xEE, 0xFF}
	HeaderIncl     = []byte{0xEE, 0xFF, 0xFF}
	FooterIncl     = []byte{0xFF, 0xCC, 0xDD}

	EventTerminator  = []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xFF}
	LogEventsFooter  = []byte{0x65, 0x6E, 0x64, 0xFF, 0xEF, 0xEE} // "end" FF EF EE
	LogSegmentMarker = []byte{0x65, 0x6E, 0x64}

	FooterLiveStatus = []byte{0xFF, 0xFF}
	FooterLiveAccel  = []byte{0xEE, 0xFF}
	FooterLiveIncl   = []byte{0xCC, 0xDD}

	ackOK = []byte{0x4F, 0x4B} // "OK"
)

const (
	Packet32Len   = 32
	Packet4100Len = 4100
)

// Acknowledgement lengths.
const (
	AckStartLogLen   = 6  // 53 54 4C 4F 4B FF
	AckStopPlotLen   = 6  // 53 54 50 4F 4B FF
	AckSampleRateLen = 8  // 53 54 52 <acc hz:2> <incl hz:2> FF
	AckClockLen      = 10 // 53 54 43 <h m s d mo y> FF
	AckThresholdLen  = 17 // 53 54 54 <3 x float32 LE> 4F 4B
)

// grammar is one row of the framing table. A row is either fixed-length
// (length > 0, footer checked at the end) or footer-searched (length == 0,
// nearest footer after the header, bounded by maxLen).
type grammar struct {
	kind     models.FrameKind
	header   []byte
	footer   []byte
	length   int
	maxLen   int
	exact    []byte
	splice   bool
	terminal bool
}

func (g grammar) searched() bool { return g.length == 0 }

// Limits bounds the footer search of variable-length grammars.
type Limits struct {
	MaxVariableFrame int
	MaxLiveFrame     int
}

func DefaultLimits() Limits {
	return Limits{
		MaxVariableFrame: 1 << 20,
		MaxLiveFrame:     8192,
	}
}

func ackPrefix(c models.CommandID) []byte {
	op, _ := c.Opcode()
	return []byte{models.RequestLead0, models.RequestLead1, op}
}

func exactAck(c models.CommandID) []byte {
	b := append(ackPrefix(c), ackOK...)
	return append(b, models.RequestTail)
}

// ErrUnknownCommand is returned by Supported for commands with no reply
// grammar.
var ErrUnknownCommand = errors.New("framing: no frame grammar for command")

// Supported reports whether the extractor can frame replies to c.
func Supported(c models.CommandID) error {
	if len(grammarsFor(c, DefaultLimits())) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, c)
	}
	return nil
}

// grammarsFor returns the framing table for one command. Order matters: a
// longer header that shares a prefix with a shorter one comes first.
func grammarsFor(c models.CommandID, lim Limits) []grammar {
	switch c {
	case models.CmdEventFetch:
		return []grammar{
			{kind: models.KindEventEnd, header: EventTerminator, length: len(EventTerminator), terminal: true},
			{kind: models.KindPacket32, header: HeaderPacket32, length: Packet32Len},
			{kind: models.KindAccel4100, header: HeaderAccel, footer: FooterAccel, length: Packet4100Len, splice: true},
			{kind: models.KindIncl4100, header: HeaderIncl, footer: FooterIncl, length: Packet4100Len, splice: true},
		}
	case models.CmdFetchLogEvents:
		return []grammar{
			{kind: models.KindLogEvents, header: HeaderPacket32, footer: LogEventsFooter, maxLen: lim.MaxVariableFrame, terminal: true},
		}
	case models.CmdStartLog, models.CmdStopPlot:
		exact := exactAck(c)
		return []grammar{
			{kind: models.KindAck, header: ackPrefix(c), length: len(exact), exact: exact, terminal: true},
		}
	case models.CmdSetSampleRate:
		return []grammar{
			{kind: models.KindAck, header: ackPrefix(c), footer: []byte{models.RequestTail}, length: AckSampleRateLen, terminal: true},
		}
	case models.CmdSetClock:
		return []grammar{
			{kind: models.KindAck, header: ackPrefix(c), footer: []byte{models.RequestTail}, length: AckClockLen, terminal: true},
		}
	case models.CmdSetThreshold:
		return []grammar{
			{kind: models.KindAck, header: ackPrefix(c), footer: ackOK, length: AckThresholdLen, terminal: true},
		}
	case models.CmdLive:
		return []grammar{
			{kind: models.KindLiveStatus, header: HeaderPacket32, footer: FooterLiveStatus, maxLen: lim.MaxLiveFrame},
			{kind: models.KindLiveAccel, header: HeaderAccel, footer: FooterLiveAccel, maxLen: lim.MaxLiveFrame},
			{kind: models.KindLiveIncl, header: HeaderIncl, footer: FooterLiveIncl, maxLen: lim.MaxLiveFrame},
		}
	}
	return nil
}
