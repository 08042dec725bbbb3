package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"adxl-logger/models"
	"adxl-logger/utils"
	"adxl-logger/views"
)

// EventSink receives every assembled event.
type EventSink interface {
	PublishEvent(ctx context.Context, rec *models.EventRecord) error
}

// RecordingController is the last pipeline stage. It writes into one
// session directory:
//   - events.csv, one summary row per event fetch
//   - accel.csv, incl.csv, temperature.csv with every decoded sample
//   - log_events.csv
//   - live.csv and spectrum.csv, one row (or spectrum) per live tick
//
// Rows are buffered and flushed on a timer.
type RecordingController struct {
	cfg        utils.StorageConfig
	sessionDir string
	sinks      []EventSink

	writers map[views.FileKind]*views.CSVWriter

	rowsWritten uint64
	events      uint64
	wg          sync.WaitGroup
	log         *logrus.Entry
}

// NewRecordingController creates the session directory and its CSV files.
func NewRecordingController(cfg utils.StorageConfig, sinks ...EventSink) (*RecordingController, error) {
	sessionDir := filepath.Join(cfg.BaseDir, utils.SessionName(cfg.SessionPrefix))

	if !cfg.Overwrite {
		if _, err := os.Stat(sessionDir); err == nil {
			return nil, fmt.Errorf("session dir %s already exists (overwrite=false)", sessionDir)
		}
	}
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	rc := &RecordingController{
		cfg:        cfg,
		sessionDir: sessionDir,
		sinks:      sinks,
		writers:    make(map[views.FileKind]*views.CSVWriter),
		log:        utils.Component("recording").WithField("session", sessionDir),
	}
	bufSize := cfg.CSV.BufferSizeKB * 1024
	for _, kind := range []views.FileKind{
		views.FileEvents, views.FileAccel, views.FileIncl, views.FileTemperature,
		views.FileLogEvents, views.FileLive, views.FileSpectrum,
	} {
		w, err := views.OpenSessionFile(sessionDir, kind, bufSize, cfg.CSV.WriteHeader)
		if err != nil {
			rc.closeAll()
			return nil, err
		}
		rc.writers[kind] = w
	}

	rc.log.Info("recording controller ready")
	return rc, nil
}

// Start consumes replies and live updates until both channels close or ctx
// ends. Either channel may be nil.
func (rc *RecordingController) Start(ctx context.Context, replies <-chan Reply, live <-chan *models.LiveUpdate) {
	rc.wg.Add(1)
	go func() {
		defer rc.wg.Done()
		flushMs := rc.cfg.CSV.FlushIntervalMs
		if flushMs <= 0 {
			flushMs = 100
		}
		ticker := time.NewTicker(time.Duration(flushMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				rc.flushAll()
				return
			case <-ticker.C:
				rc.flushAll()
			}
		}
	}()

	rc.wg.Add(1)
	go func() {
		defer rc.wg.Done()
		for replies != nil || live != nil {
			select {
			case <-ctx.Done():
				rc.drain(context.WithoutCancel(ctx), replies, live)
				return
			case r, ok := <-replies:
				if !ok {
					replies = nil
					continue
				}
				rc.WriteReply(ctx, r)
			case u, ok := <-live:
				if !ok {
					live = nil
					continue
				}
				rc.WriteLive(u)
			}
		}
	}()

	rc.log.Info("recording controller started")
}

// drain writes whatever is already queued when ctx ends.
func (rc *RecordingController) drain(ctx context.Context, replies <-chan Reply, live <-chan *models.LiveUpdate) {
	for {
		select {
		case r, ok := <-replies:
			if !ok {
				replies = nil
				continue
			}
			rc.WriteReply(ctx, r)
		case u, ok := <-live:
			if !ok {
				live = nil
				continue
			}
			rc.WriteLive(u)
		default:
			return
		}
	}
}

// WriteReply persists one instrument reply.
func (rc *RecordingController) WriteReply(ctx context.Context, r Reply) {
	switch {
	case r.Event != nil:
		rc.writeEvent(ctx, r.Event)
	case r.LogEvents != nil:
		w := rc.writers[views.FileLogEvents]
		for i := range r.LogEvents {
			w.WriteRecord(&r.LogEvents[i])
		}
		atomic.AddUint64(&rc.rowsWritten, uint64(len(r.LogEvents)))
		rc.log.Infof("%d log events recorded", len(r.LogEvents))
	case r.Ack != nil:
		rc.log.WithField("command", r.Command.String()).Infof("ack % X", r.Ack.Raw)
	}
}

func (rc *RecordingController) writeEvent(ctx context.Context, ev *models.EventRecord) {
	rc.writers[views.FileEvents].WriteRecord(ev)
	id := ""
	if ev.Metadata != nil {
		id = strconv.Itoa(int(ev.Metadata.EventID))
	}
	samples := ev.Samples()
	for i := range samples {
		rc.writers[views.SampleFile(samples[i].Sensor)].WriteRecord(&samples[i], id)
	}
	atomic.AddUint64(&rc.rowsWritten, uint64(1+len(samples)))
	atomic.AddUint64(&rc.events, 1)

	for _, s := range rc.sinks {
		if err := s.PublishEvent(ctx, ev); err != nil {
			rc.log.Warnf("event sink: %v", err)
		}
	}
}

// WriteLive persists one live tick: a summary row, every sample and the
// spectrum if one was computed.
func (rc *RecordingController) WriteLive(u *models.LiveUpdate) {
	rc.writers[views.FileLive].WriteRecord(u)
	for i := range u.Samples {
		rc.writers[views.SampleFile(u.Samples[i].Sensor)].WriteRecord(&u.Samples[i], "live")
	}
	n := 1 + len(u.Samples)
	if u.Spectrum != nil {
		ts := strconv.FormatInt(u.TimestampNs, 10)
		w := rc.writers[views.FileSpectrum]
		for i := range u.Spectrum.Bins {
			w.WriteRecord(&u.Spectrum.Bins[i], ts)
		}
		n += len(u.Spectrum.Bins)
	}
	atomic.AddUint64(&rc.rowsWritten, uint64(n))
}

func (rc *RecordingController) flushAll() {
	for kind, w := range rc.writers {
		if err := w.Flush(); err != nil {
			rc.log.Errorf("flush %s: %v", kind, err)
		}
	}
}

func (rc *RecordingController) closeAll() {
	for kind, w := range rc.writers {
		if err := w.Close(); err != nil {
			rc.log.Errorf("close %s: %v", kind, err)
		}
	}
}

// Stop waits for the writer goroutines, then flushes and closes every CSV.
func (rc *RecordingController) Stop() {
	rc.wg.Wait()
	rc.closeAll()
	rc.log.Infof("recording controller stopped (rows_written=%d, events=%d)",
		atomic.LoadUint64(&rc.rowsWritten), atomic.LoadUint64(&rc.events))
}

// SessionDir returns the path to the active session directory.
func (rc *RecordingController) SessionDir() string {
	return rc.sessionDir
}

func (rc *RecordingController) RowsWritten() uint64 {
	return atomic.LoadUint64(&rc.rowsWritten)
}

func (rc *RecordingController) Events() uint64 {
	return atomic.LoadUint64(&rc.events)
}
