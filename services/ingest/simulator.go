package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"adxl-logger/models"
	"adxl-logger/utils"
)

var errSimStopped = errors.New("simulator stopped")

// Simulator stands in for the instrument: requests written to it are
// answered on Out with the bytes the real box would send, cut into random
// chunk sizes the way a USB serial link delivers them.
type Simulator struct {
	inst     *Instrument
	interval time.Duration
	reqs     chan []byte
	done     chan struct{}
	Out      chan []byte
	produced uint64
	rng      *rand.Rand
	log      *logrus.Entry

	// live state, owned by run
	live              bool
	liveTicks         int
	nextAccel, nextIn int
}

func NewSimulator(inst *Instrument, cfg utils.SimulationConfig, chanBuf int) *Simulator {
	if chanBuf <= 0 {
		chanBuf = 256
	}
	if cfg.AccelPackets > 0 {
		inst.AccelPackets = cfg.AccelPackets
	}
	inst.CorruptEvery = cfg.CorruptEvery
	interval := time.Duration(cfg.LiveIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return &Simulator{
		inst:      inst,
		interval:  interval,
		reqs:      make(chan []byte, 16),
		done:      make(chan struct{}),
		Out:       make(chan []byte, chanBuf),
		rng:       rand.New(rand.NewSource(1)),
		log:       utils.Component("simulator"),
		nextAccel: 1,
		nextIn:    1,
	}
}

func (s *Simulator) Chunks() <-chan []byte { return s.Out }

func (s *Simulator) Start(ctx context.Context) {
	go s.run(ctx)
	s.log.Infof("simulated instrument started (accel=%dHz, incl=%dHz, corrupt_every=%d)",
		s.inst.AccelHz, s.inst.InclHz, s.inst.CorruptEvery)
}

// Write queues a request for the simulated instrument.
func (s *Simulator) Write(p []byte) (int, error) {
	req := append([]byte(nil), p...)
	select {
	case s.reqs <- req:
		return len(p), nil
	case <-s.done:
		return 0, errSimStopped
	}
}

// Stats never reports drops; emit blocks instead.
func (s *Simulator) Stats() (uint64, uint64) {
	return atomic.LoadUint64(&s.produced), 0
}

func (s *Simulator) run(ctx context.Context) {
	defer close(s.Out)
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Infof("simulated instrument stopped (produced=%d)", atomic.LoadUint64(&s.produced))
			return
		case req := <-s.reqs:
			if reply := s.respond(req); len(reply) > 0 {
				if !s.emit(ctx, reply) {
					return
				}
			}
		case <-ticker.C:
			if !s.live {
				continue
			}
			if !s.emit(ctx, s.liveBurst()) {
				return
			}
		}
	}
}

// respond answers one request and updates the simulated device state.
func (s *Simulator) respond(req []byte) []byte {
	if len(req) < 4 || req[0] != models.RequestLead0 || req[1] != models.RequestLead1 {
		s.log.Warnf("ignoring malformed request % X", req)
		return nil
	}
	cmd := commandForOpcode(req[2])
	params := req[3 : len(req)-1]
	s.log.WithField("command", cmd.String()).Debugf("request % X", req)

	switch cmd {
	case models.CmdEventFetch:
		var id uint16
		if len(params) >= 2 {
			id = binary.BigEndian.Uint16(params[:2])
		}
		return s.inst.EventStream(id)
	case models.CmdFetchLogEvents:
		return s.inst.LogEventsStream([]uint16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 4)
	case models.CmdLive:
		s.live = true
		s.liveTicks = 0
		return nil
	case models.CmdStopPlot:
		s.live = false
	case models.CmdSetSampleRate:
		if len(params) >= 4 {
			s.inst.AccelHz = binary.BigEndian.Uint16(params[0:2])
			s.inst.InclHz = binary.BigEndian.Uint16(params[2:4])
		}
	case models.CmdSetClock:
		if len(params) >= 6 {
			if t, ok := models.DeviceTimeFromBytes(params[:6]).Time(); ok {
				s.inst.Clock = t
			}
		}
	case models.CmdNone:
		s.log.Warnf("unknown opcode %#02x", req[2])
		return nil
	}
	return s.inst.Ack(cmd, params)
}

func (s *Simulator) liveBurst() []byte {
	secs := s.interval.Seconds()
	nAccel := max(1, int(float64(s.inst.AccelHz)*secs))
	nIncl := max(1, int(float64(s.inst.InclHz)*secs))
	withStatus := s.liveTicks%10 == 0
	s.liveTicks++

	b := s.inst.LiveFrames(s.nextAccel, nAccel, s.nextIn, nIncl, withStatus)
	s.nextAccel += nAccel
	s.nextIn += nIncl
	return b
}

// emit cuts b into 1..4096 byte chunks. It blocks rather than drops: a
// missing chunk would corrupt the stream instead of losing one reading.
func (s *Simulator) emit(ctx context.Context, b []byte) bool {
	r := bytes.NewReader(b)
	for r.Len() > 0 {
		chunk := make([]byte, 1+s.rng.Intn(4096))
		n, _ := r.Read(chunk)
		select {
		case s.Out <- chunk[:n]:
			atomic.AddUint64(&s.produced, 1)
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func commandForOpcode(op byte) models.CommandID {
	for c := models.CmdEventFetch; c <= models.CmdLive; c++ {
		if o, ok := c.Opcode(); ok && o == op {
			return c
		}
	}
	return models.CmdNone
}
