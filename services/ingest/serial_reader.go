package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"adxl-logger/utils"
)

// Source produces raw instrument bytes on Chunks and accepts outbound
// requests through Write.
type Source interface {
	Start(ctx context.Context)
	Write(p []byte) (int, error)
	Chunks() <-chan []byte
	Stats() (produced, dropped uint64)
}

// Consecutive read errors are retried after readErrorBackoff; the reader
// gives up after maxReadErrors in a row (e.g. an unplugged adapter).
const (
	readErrorBackoff = 250 * time.Millisecond
	maxReadErrors    = 20
)

// SerialReader reads the instrument's USB serial link (8N1, no flow control).
type SerialReader struct {
	cfg        utils.SerialConfig
	name       string
	port       serial.Port
	errBackoff time.Duration
	Out        chan []byte
	produced   uint64 // chunks
	dropped    uint64
	log        *logrus.Entry
}

// OpenSerial opens cfg.Port, or the first USB serial port when it is "auto".
func OpenSerial(cfg utils.SerialConfig) (*SerialReader, error) {
	name := cfg.Port
	if name == "" || name == "auto" {
		var err error
		if name, err = AutoSelectPort(); err != nil {
			return nil, err
		}
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	if cfg.ReadTimeoutMs > 0 {
		if err := port.SetReadTimeout(time.Duration(cfg.ReadTimeoutMs) * time.Millisecond); err != nil {
			port.Close()
			return nil, fmt.Errorf("serial %s: set read timeout: %w", name, err)
		}
	}

	return newSerialReader(cfg, name, port), nil
}

func newSerialReader(cfg utils.SerialConfig, name string, port serial.Port) *SerialReader {
	buf := cfg.ChannelBuffer
	if buf <= 0 {
		buf = 256
	}
	return &SerialReader{
		cfg:        cfg,
		name:       name,
		port:       port,
		errBackoff: readErrorBackoff,
		Out:        make(chan []byte, buf),
		log:        utils.Component("serial").WithField("port", name),
	}
}

// AutoSelectPort returns the first USB serial port found.
func AutoSelectPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("enumerate ports: %w", err)
	}
	for _, p := range ports {
		if p.IsUSB {
			return p.Name, nil
		}
	}
	return "", errors.New("no USB serial port found")
}

// ListPorts describes every serial port the enumerator can see.
func ListPorts() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.IsUSB {
			out = append(out, fmt.Sprintf("%s (usb %s:%s %s)", p.Name, p.VID, p.PID, p.Product))
		} else {
			out = append(out, p.Name)
		}
	}
	return out, nil
}

func (r *SerialReader) Name() string { return r.name }

func (r *SerialReader) Chunks() <-chan []byte { return r.Out }

func (r *SerialReader) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = r.port.Close()
	}()
	go r.run(ctx)
	r.log.Infof("serial reader started (baud=%d, read_buffer=%d)", r.cfg.BaudRate, r.cfg.ReadBuffer)
}

func (r *SerialReader) run(ctx context.Context) {
	defer close(r.Out)

	size := r.cfg.ReadBuffer
	if size <= 0 {
		size = 8192
	}
	buf := make([]byte, size)
	failures := 0
	for {
		n, err := r.port.Read(buf)
		if ctx.Err() != nil {
			r.log.Infof("serial reader stopped (produced=%d, dropped=%d)",
				atomic.LoadUint64(&r.produced), atomic.LoadUint64(&r.dropped))
			return
		}
		if err != nil {
			var perr *serial.PortError
			if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
				r.log.Warn("serial port closed")
				return
			}
			failures++
			if failures >= maxReadErrors {
				r.log.Errorf("serial read: %v, giving up after %d consecutive errors", err, failures)
				return
			}
			r.log.Errorf("serial read: %v (retry %d/%d)", err, failures, maxReadErrors)
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.errBackoff):
			}
			continue
		}
		failures = 0
		if n == 0 {
			continue // read timeout
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])

		select {
		case r.Out <- chunk:
			atomic.AddUint64(&r.produced, 1)
		default:
			atomic.AddUint64(&r.dropped, 1)
			r.log.Warnf("output channel full, dropped %d bytes", n)
		}
	}
}

// Write sends a request to the instrument.
func (r *SerialReader) Write(p []byte) (int, error) {
	n, err := r.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("serial write: %w", err)
	}
	return n, nil
}

func (r *SerialReader) Stats() (uint64, uint64) {
	return atomic.LoadUint64(&r.produced), atomic.LoadUint64(&r.dropped)
}
