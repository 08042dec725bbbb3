package controller

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"adxl-logger/models"
	"adxl-logger/services/decode"
	"adxl-logger/services/framing"
	"adxl-logger/services/ingest"
	"adxl-logger/services/monitor"
	"adxl-logger/services/stream"
	"adxl-logger/utils"
)

// Reply is one completed answer from the instrument. Exactly one of Event,
// LogEvents and Ack is set.
type Reply struct {
	Command   models.CommandID
	Event     *models.EventRecord
	LogEvents []models.LogEvent
	Ack       *models.Ack
}

// SessionController owns the request/response cycle with the instrument:
// it sends requests, switches the extractor's grammar, decodes frames and
// assembles event fetches. Live samples go to the stream buffer; all other
// replies are emitted on Out.
type SessionController struct {
	mu        sync.Mutex
	extractor *framing.Extractor
	decoder   *decode.Decoder
	live      *stream.Buffer
	cursor    decode.Cursor

	expectedTemp int
	event        *models.EventRecord
	baseline     framing.Stats // extractor stats when the event fetch began

	Out chan Reply
	log *logrus.Entry
}

func NewSessionController(cfg *utils.Config, live *stream.Buffer) *SessionController {
	limits := framing.Limits{
		MaxVariableFrame: cfg.Framing.MaxVariableFrame,
		MaxLiveFrame:     cfg.Framing.MaxLiveFrame,
	}
	return &SessionController{
		extractor:    framing.NewExtractor(models.CmdNone, limits),
		decoder:      decode.New(decode.CalibrationFromConfig(cfg.Decoder.Calibration)),
		live:         live,
		expectedTemp: cfg.Decoder.ExpectedTemperatureFrames,
		Out:          make(chan Reply, 16),
		log:          utils.Component("session"),
	}
}

// Begin switches to cmd. Buffered bytes and any half-assembled event from
// the previous command are dropped.
func (sc *SessionController) Begin(cmd models.CommandID) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.event != nil {
		sc.log.Warnf("event fetch abandoned after %d accel frames", sc.event.Counts.Accel)
	}
	sc.extractor.Begin(cmd)
	sc.cursor = decode.Cursor{}
	sc.event = nil
	if cmd == models.CmdEventFetch {
		sc.event = &models.EventRecord{}
		sc.baseline = sc.extractor.Stats()
	}
	if cmd == models.CmdLive && sc.live != nil {
		sc.live.Reset()
	}
	sc.log.WithField("command", cmd.String()).Info("command started")
}

// Request begins cmd and writes its request bytes to the instrument.
// eventID is only used by CmdEventFetch.
func (sc *SessionController) Request(w io.Writer, cmd models.CommandID, eventID int, params ...byte) error {
	var (
		req []byte
		err error
	)
	if cmd == models.CmdEventFetch {
		req, err = models.EventFetchRequest(eventID)
	} else {
		req, err = models.BuildRequest(cmd, params...)
	}
	if err != nil {
		return fmt.Errorf("build %s request: %w", cmd, err)
	}
	if err := framing.Supported(cmd); err != nil {
		return err
	}
	sc.Begin(cmd)
	sc.log.Debugf("request % X", req)
	if _, err := w.Write(req); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

// Run feeds every chunk from src until the source closes or ctx ends.
func (sc *SessionController) Run(ctx context.Context, src ingest.Source) {
	defer close(sc.Out)
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-src.Chunks():
			if !ok {
				sc.log.Info("source closed")
				return
			}
			sc.HandleBytes(chunk)
		}
	}
}

// HandleBytes runs one chunk through extraction and decoding.
func (sc *SessionController) HandleBytes(p []byte) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	for _, f := range sc.extractor.Feed(p) {
		res := sc.decoder.Decode(f, &sc.cursor)
		switch {
		case f.Kind.IsLive():
			if sc.live != nil {
				sc.live.Push(res.Samples)
			}
		case f.Kind == models.KindLogEvents:
			sc.emit(Reply{Command: f.Command, LogEvents: res.LogEvents})
		case f.Kind == models.KindAck:
			if res.Ack != nil {
				sc.emit(Reply{Command: f.Command, Ack: res.Ack})
			}
		default:
			sc.assemble(f, res)
		}
	}
}

func (sc *SessionController) assemble(f models.RawFrame, res decode.Result) {
	ev := sc.event
	if ev == nil {
		sc.log.Warnf("%s frame outside an event fetch ignored", f.Kind)
		return
	}
	switch f.Kind {
	case models.KindPacket32:
		ev.Counts.Packet32++
		if res.Metadata != nil {
			if ev.Metadata != nil {
				ev.Warnings = append(ev.Warnings, fmt.Sprintf("duplicate metadata record (event %d)", res.Metadata.EventID))
			} else {
				ev.Metadata = res.Metadata
			}
		}
	case models.KindAccel4100:
		ev.Counts.Accel++
		if f.Spliced {
			ev.Counts.Spliced++
		}
	case models.KindIncl4100:
		ev.Counts.Incl++
		if f.Spliced {
			ev.Counts.Spliced++
		}
	case models.KindEventEnd:
		sc.finishEvent()
		return
	}
	for _, s := range res.Samples {
		switch s.Sensor {
		case models.SensorAccel:
			ev.Accel = append(ev.Accel, s)
		case models.SensorIncl:
			ev.Incl = append(ev.Incl, s)
		case models.SensorTemp:
			ev.Temperature = append(ev.Temperature, s)
			ev.Counts.Temperature++
		}
	}
}

func (sc *SessionController) finishEvent() {
	ev := sc.event
	sc.event = nil

	st := sc.extractor.Stats()
	ev.Counts.Invalid = int(st.FramingErrors - sc.baseline.FramingErrors)
	if ev.Metadata == nil {
		ev.Warnings = append(ev.Warnings, "no metadata record before terminator")
	}
	if sc.expectedTemp > 0 && ev.Counts.Temperature < sc.expectedTemp {
		ev.Warnings = append(ev.Warnings,
			fmt.Sprintf("temperature frames: got %d, expected %d", ev.Counts.Temperature, sc.expectedTemp))
	}
	ev.CompletedNs = utils.NowNano()
	monitor.EventsAssembled.Inc()

	fields := logrus.Fields{
		"packet32": ev.Counts.Packet32, "accel": ev.Counts.Accel, "incl": ev.Counts.Incl,
		"temperature": ev.Counts.Temperature, "invalid": ev.Counts.Invalid, "spliced": ev.Counts.Spliced,
		"completed": utils.FormatTimestamp(ev.CompletedNs),
	}
	if ev.Metadata != nil {
		fields["event_id"] = ev.Metadata.EventID
	}
	entry := sc.log.WithFields(fields)
	entry.Info("event assembled")
	for _, w := range ev.Warnings {
		entry.Warn(w)
	}
	sc.emit(Reply{Command: models.CmdEventFetch, Event: ev})
}

func (sc *SessionController) emit(r Reply) {
	select {
	case sc.Out <- r:
	default:
		sc.log.Warnf("reply channel full, dropping %s reply", r.Command)
	}
}

// Done reports whether the reply to the active command is complete. Live
// streaming is never done.
func (sc *SessionController) Done() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.extractor.Done()
}

// Stats exposes the extractor counters.
func (sc *SessionController) Stats() framing.Stats {
	return sc.extractor.Stats()
}

// LogStats prints the current source and extractor counters.
func (sc *SessionController) LogStats(src ingest.Source) {
	p, d := src.Stats()
	st := sc.extractor.Stats()
	sc.log.Infof("  chunks produced=%d dropped=%d", p, d)
	sc.log.Infof("  frames=%d framing_errors=%d discarded=%d splices=%d",
		st.Frames, st.FramingErrors, st.BytesDiscarded, st.Splices)
}
