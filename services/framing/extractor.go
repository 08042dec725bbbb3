package framing

import (
	"bytes"
	"sync"

	"github.com/sirupsen/logrus"

	"adxl-logger/models"
	"adxl-logger/services/monitor"
	"adxl-logger/utils"
)

// Stats counts what the extractor did since it was created.
type Stats struct {
	Frames         uint64
	FramingErrors  uint64 // runs of discarded bytes, however they were chunked
	BytesDiscarded uint64
	Splices        uint64
	RunAnomalies   uint64
}

// Extractor turns an unbounded, partially arriving byte stream into frames.
// It owns the active CommandID and the accumulation buffer; Begin and Feed
// may be called from different goroutines.
type Extractor struct {
	mu       sync.Mutex
	cmd      models.CommandID
	grammars []grammar
	limits   Limits
	buf      []byte
	scanned  int  // footer search resumes here for the frame at buf[0]
	done     bool // terminal frame emitted for the current command
	resync   bool // bytes dropped since the last frame; one framing error per run
	stats    Stats
	log      *logrus.Entry
}

// NewExtractor creates an extractor with cmd as the active request.
func NewExtractor(cmd models.CommandID, limits Limits) *Extractor {
	if limits.MaxVariableFrame <= 0 {
		limits.MaxVariableFrame = DefaultLimits().MaxVariableFrame
	}
	if limits.MaxLiveFrame <= 0 {
		limits.MaxLiveFrame = DefaultLimits().MaxLiveFrame
	}
	e := &Extractor{
		limits: limits,
		log:    utils.Component("framing"),
	}
	e.begin(cmd)
	return e
}

// Begin replaces the active command. Bytes still buffered under the old
// command are dropped.
func (e *Extractor) Begin(cmd models.CommandID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n := len(e.buf); n > 0 {
		e.discard(n, "command_replaced")
	}
	e.begin(cmd)
}

func (e *Extractor) begin(cmd models.CommandID) {
	e.cmd = cmd
	e.grammars = grammarsFor(cmd, e.limits)
	e.buf = e.buf[:0]
	e.scanned = 0
	e.done = false
	e.resync = false
	if cmd != models.CmdNone && len(e.grammars) == 0 {
		e.log.Warnf("no frame grammar for %s, incoming bytes will be dropped", cmd)
	}
}

// Command returns the active command.
func (e *Extractor) Command() models.CommandID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cmd
}

// Done reports whether the terminal frame of the active command was seen.
func (e *Extractor) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Buffered returns the number of bytes waiting for more input.
func (e *Extractor) Buffered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buf)
}

func (e *Extractor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Feed appends p to the accumulation buffer and returns every frame that is
// now complete, in stream order. Partial frames stay buffered; the result
// does not depend on how the stream is chunked.
func (e *Extractor) Feed(p []byte) []models.RawFrame {
	e.mu.Lock()
	defer e.mu.Unlock()

	monitor.BytesReceived.Add(float64(len(p)))
	e.buf = append(e.buf, p...)

	var frames []models.RawFrame
	for len(e.buf) > 0 {
		if e.done || len(e.grammars) == 0 {
			e.discard(len(e.buf), "no_active_grammar")
			break
		}
		st := e.step()
		switch st.action {
		case actionWait:
			return frames
		case actionDrop:
			e.discard(st.n, st.reason)
		case actionFrame:
			e.consume(st.n)
			e.resync = false
			frames = append(frames, st.frame)
			e.stats.Frames++
			monitor.FramesExtracted.WithLabelValues(st.frame.Kind.String()).Inc()
			if st.terminal {
				e.done = true
			}
		}
	}
	return frames
}

type action int

const (
	actionWait action = iota
	actionFrame
	actionDrop
)

type stepResult struct {
	action   action
	n        int // bytes consumed or dropped
	frame    models.RawFrame
	terminal bool
	reason   string
}

func (e *Extractor) step() stepResult {
	pending := false
	for _, g := range e.grammars {
		if len(e.buf) < len(g.header) {
			if bytes.HasPrefix(g.header, e.buf) {
				pending = true
			}
			continue
		}
		if !bytes.HasPrefix(e.buf, g.header) {
			continue
		}
		if pending {
			// an earlier row with a longer header may still match
			return stepResult{action: actionWait}
		}
		if g.searched() {
			return e.matchSearched(g)
		}
		return e.matchFixed(g)
	}
	if pending {
		return stepResult{action: actionWait}
	}
	return stepResult{action: actionDrop, n: e.resyncDistance(), reason: "unknown_header"}
}

func (e *Extractor) matchFixed(g grammar) stepResult {
	if len(e.buf) < g.length {
		return stepResult{action: actionWait}
	}
	raw := e.buf[:g.length]
	if g.exact != nil && !bytes.Equal(raw, g.exact) {
		return stepResult{action: actionDrop, n: 1, reason: "ack_mismatch"}
	}

	f := models.RawFrame{
		Kind:     g.kind,
		Command:  e.cmd,
		Bytes:    append([]byte(nil), raw...),
		SpliceAt: -1,
	}
	if g.splice {
		sp := Splice(f.Bytes)
		switch {
		case sp.Spliced:
			f.Bytes, f.Spliced, f.SpliceAt = sp.Frame, true, sp.At
			e.stats.Splices++
			monitor.Splices.Inc()
			entry := e.log.WithFields(logrus.Fields{
				"kind": g.kind.String(), "at": sp.At, "run": sp.RunLen, "len": len(sp.Frame),
			})
			if sp.RunLen != spliceRunLen {
				e.stats.RunAnomalies++
				monitor.RunAnomalies.Inc()
				entry.Warnf("0xFF run of %d bytes excised, expected %d", sp.RunLen, spliceRunLen)
			} else {
				entry.Info("0xFF run excised from payload")
			}
		case sp.RunLen > 0:
			e.stats.RunAnomalies++
			monitor.RunAnomalies.Inc()
			e.log.WithFields(logrus.Fields{
				"kind": g.kind.String(), "at": sp.At, "run": sp.RunLen,
			}).Warn("unrecognised 0xFF run left in payload")
		}
	}
	if g.footer != nil && !bytes.HasSuffix(f.Bytes, g.footer) {
		e.log.WithFields(logrus.Fields{
			"kind": g.kind.String(), "tail": models.HexBytes(raw[len(raw)-len(g.footer):]),
		}).Warn("bad footer, dropping header and resynchronising")
		return stepResult{action: actionDrop, n: len(g.header), reason: "bad_footer"}
	}
	return stepResult{action: actionFrame, n: g.length, frame: f, terminal: g.terminal}
}

func (e *Extractor) matchSearched(g grammar) stepResult {
	limit := len(e.buf)
	if g.maxLen > 0 && limit > g.maxLen {
		limit = g.maxLen
	}
	from := len(g.header)
	if e.scanned > from {
		from = e.scanned
	}
	if from < limit {
		if idx := bytes.Index(e.buf[from:limit], g.footer); idx >= 0 {
			end := from + idx + len(g.footer)
			f := models.RawFrame{
				Kind:     g.kind,
				Command:  e.cmd,
				Bytes:    append([]byte(nil), e.buf[:end]...),
				SpliceAt: -1,
			}
			return stepResult{action: actionFrame, n: end, frame: f, terminal: g.terminal}
		}
	}
	if g.maxLen > 0 && len(e.buf) >= g.maxLen {
		return stepResult{action: actionDrop, n: 1, reason: "oversize_frame"}
	}
	if next := limit - len(g.footer) + 1; next > e.scanned {
		e.scanned = next
	}
	return stepResult{action: actionWait}
}

// resyncDistance finds the first offset > 0 at which a header of the active
// grammars starts, or could start once more bytes arrive. With none in the
// buffer, everything is skipped.
func (e *Extractor) resyncDistance() int {
	for i := 1; i < len(e.buf); i++ {
		rest := e.buf[i:]
		for _, g := range e.grammars {
			if bytes.HasPrefix(rest, g.header) ||
				(len(rest) < len(g.header) && bytes.HasPrefix(g.header, rest)) {
				return i
			}
		}
	}
	return len(e.buf)
}

func (e *Extractor) consume(n int) {
	e.buf = e.buf[:copy(e.buf, e.buf[n:])]
	e.scanned = 0
}

func (e *Extractor) discard(n int, reason string) {
	if n <= 0 {
		return
	}
	if n > len(e.buf) {
		n = len(e.buf)
	}
	head := e.buf[:n]
	if len(head) > 16 {
		head = head[:16]
	}
	entry := e.log.WithFields(logrus.Fields{
		"command": e.cmd.String(), "reason": reason, "bytes": n, "head": models.HexBytes(head),
	})
	if e.resync {
		entry.Debug("still resynchronising, discarding bytes")
	} else {
		entry.Warn("framing mismatch, discarding bytes")
		e.resync = true
		e.stats.FramingErrors++
		monitor.FramingErrors.WithLabelValues(reason).Inc()
	}
	e.stats.BytesDiscarded += uint64(n)
	monitor.BytesDiscarded.Add(float64(n))
	e.consume(n)
}
