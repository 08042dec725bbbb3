package framing

import "bytes"

const (
	payloadHeaderLen  = 3
	payloadTrailerLen = 5 // 2 temperature/status bytes + 3 footer bytes

	spliceRunLen     = 6
	anomalyRunMinLen = 3
)

var ffRun = bytes.Repeat([]byte{0xFF}, spliceRunLen)

// SpliceResult describes what Splice did to a frame.
type SpliceResult struct {
	Frame   []byte
	Spliced bool
	At      int // start of the 0xFF run, -1 when none was found
	RunLen  int // length of the run at At, or of the longest short run when not spliced
}

// Splice repairs the firmware defect where dropped samples inside a 4100-byte
// payload are replaced by a run of 0xFF. When the sample region [3, len-5)
// holds six consecutive 0xFF bytes starting at k, bytes [k, len-5) are removed
// so the trailing 5 bytes keep their offset from the end. The result has
// length k+5. A frame without such a run is returned as is, with RunLen set
// to its longest 0xFF run of three bytes or more.
//
// Splice never modifies its input and is idempotent.
func Splice(frame []byte) SpliceResult {
	res := SpliceResult{Frame: frame, At: -1}
	if len(frame) < payloadHeaderLen+payloadTrailerLen {
		return res
	}
	tail := len(frame) - payloadTrailerLen
	region := frame[payloadHeaderLen:tail]

	idx := bytes.Index(region, ffRun)
	if idx < 0 {
		if n, at := longestFFRun(region); n >= anomalyRunMinLen {
			res.RunLen = n
			res.At = payloadHeaderLen + at
		}
		return res
	}

	k := payloadHeaderLen + idx
	run := 0
	for i := k; i < tail && frame[i] == 0xFF; i++ {
		run++
	}

	out := make([]byte, 0, k+payloadTrailerLen)
	out = append(out, frame[:k]...)
	out = append(out, frame[tail:]...)

	res.Frame = out
	res.Spliced = true
	res.At = k
	res.RunLen = run
	return res
}

func longestFFRun(b []byte) (length, at int) {
	cur, start := 0, 0
	for i, v := range b {
		if v != 0xFF {
			cur = 0
			continue
		}
		if cur == 0 {
			start = i
		}
		cur++
		if cur > length {
			length, at = cur, start
		}
	}
	return length, at
}
