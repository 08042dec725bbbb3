package models

import "fmt"

// CommandID selects which frame grammar is active on the stream. One is set
// per outstanding request, before the request bytes go out.
type CommandID uint8

const (
	CmdNone CommandID = iota
	CmdEventFetch
	CmdStartLog
	CmdFetchLogEvents
	CmdStopPlot
	CmdSetSampleRate
	CmdSetClock
	CmdSetThreshold
	CmdLive
)

var commandNames = map[CommandID]string{
	CmdNone:           "none",
	CmdEventFetch:     "event-fetch",
	CmdStartLog:       "start-log",
	CmdFetchLogEvents: "fetch-log-events",
	CmdStopPlot:       "stop-plot",
	CmdSetSampleRate:  "set-sample-rate",
	CmdSetClock:       "set-clock",
	CmdSetThreshold:   "set-threshold",
	CmdLive:           "live",
}

func (c CommandID) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// ParseCommand maps a CLI/config name back to its CommandID.
func ParseCommand(name string) (CommandID, error) {
	for id, n := range commandNames {
		if n == name && id != CmdNone {
			return id, nil
		}
	}
	return CmdNone, fmt.Errorf("unknown command %q", name)
}

// Outbound framing: 'S' 'T' <op> [params...] 0xFF.
const (
	RequestLead0 byte = 0x53
	RequestLead1 byte = 0x54
	RequestTail  byte = 0xFF
)

var opcodes = map[CommandID]byte{
	CmdEventFetch:     0x45, // 'E'
	CmdStartLog:       0x4C, // 'L'
	CmdFetchLogEvents: 0x47, // 'G'
	CmdStopPlot:       0x50, // 'P'
	CmdSetSampleRate:  0x52, // 'R'
	CmdSetClock:       0x43, // 'C'
	CmdSetThreshold:   0x54, // 'T'
	CmdLive:           0x56, // 'V'
}

// Opcode returns the request opcode byte for c.
func (c CommandID) Opcode() (byte, bool) {
	op, ok := opcodes[c]
	return op, ok
}

// BuildRequest assembles the outbound bytes for a command.
func BuildRequest(c CommandID, params ...byte) ([]byte, error) {
	op, ok := c.Opcode()
	if !ok {
		return nil, fmt.Errorf("no opcode for %s", c)
	}
	req := make([]byte, 0, 4+len(params))
	req = append(req, RequestLead0, RequestLead1, op)
	req = append(req, params...)
	req = append(req, RequestTail)
	return req, nil
}

// EventFetchRequest builds 53 54 45 <id hi> <id lo> FF FF.
func EventFetchRequest(eventID int) ([]byte, error) {
	if eventID < 0 || eventID > 0xFFFF {
		return nil, fmt.Errorf("event id %d outside 0-65535", eventID)
	}
	return BuildRequest(CmdEventFetch, byte(eventID>>8), byte(eventID), RequestTail)
}
