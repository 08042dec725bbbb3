package controller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"adxl-logger/models"
	"adxl-logger/services/spectrum"
	"adxl-logger/services/stream"
	"adxl-logger/utils"
)

const spectrumLen = 1024 // accel X samples kept for the live spectrum

// LiveSink receives one update per display tick.
type LiveSink interface {
	PublishLive(ctx context.Context, u *models.LiveUpdate) error
}

// LiveController drains the stream buffer at a fixed cadence, decoupled
// from how fast the serial side produces samples. Each non-empty batch is
// handed to every sink and, non-blocking, to Out.
type LiveController struct {
	buf       *stream.Buffer
	sinks     []LiveSink
	tick      time.Duration
	spectrum  bool
	rateHz    float64
	accelTail []float64

	Out chan *models.LiveUpdate
	log *logrus.Entry
}

func NewLiveController(cfg utils.LiveConfig, buf *stream.Buffer, sinks ...LiveSink) *LiveController {
	tickMs := cfg.TickMs
	if tickMs <= 0 {
		tickMs = 33 // ~30 Hz
	}
	return &LiveController{
		buf:      buf,
		sinks:    sinks,
		tick:     time.Duration(tickMs) * time.Millisecond,
		spectrum: cfg.Spectrum,
		rateHz:   cfg.SpectrumRateHz,
		Out:      make(chan *models.LiveUpdate, 256),
		log:      utils.Component("live"),
	}
}

// Start launches the tick goroutine; it closes Out when ctx ends.
func (lc *LiveController) Start(ctx context.Context) {
	go lc.run(ctx)
	lc.log.Infof("live controller started (tick=%s, spectrum=%v)", lc.tick, lc.spectrum)
}

func (lc *LiveController) run(ctx context.Context) {
	defer close(lc.Out)

	ticker := time.NewTicker(lc.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lc.log.Info("live controller stopped")
			return
		case <-ticker.C:
			if u := lc.Tick(); u != nil {
				lc.publish(ctx, u)
			}
		}
	}
}

// Tick drains one batch. It returns nil when nothing arrived since the
// previous tick.
func (lc *LiveController) Tick() *models.LiveUpdate {
	batch := lc.buf.Drain()
	if len(batch.Samples) == 0 {
		return nil
	}
	u := &models.LiveUpdate{
		TimestampNs: utils.NowNano(),
		Seq:         batch.Seq,
		Window:      batch.Window,
		Samples:     batch.Samples,
	}
	if lc.spectrum {
		lc.accelTail = append(lc.accelTail, models.Channel(batch.Samples, models.SensorAccel, models.AxisX)...)
		if over := len(lc.accelTail) - spectrumLen; over > 0 {
			lc.accelTail = append(lc.accelTail[:0], lc.accelTail[over:]...)
		}
		if len(lc.accelTail) > 1 {
			s := spectrum.Analyze(lc.accelTail, lc.rateHz)
			u.Spectrum = &s
		}
	}
	return u
}

func (lc *LiveController) publish(ctx context.Context, u *models.LiveUpdate) {
	for _, s := range lc.sinks {
		if err := s.PublishLive(ctx, u); err != nil {
			lc.log.Warnf("live sink: %v", err)
		}
	}
	select {
	case lc.Out <- u:
	default:
		lc.log.Warn("live output channel full, dropping update")
	}
}
