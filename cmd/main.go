package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"adxl-logger/controller"
	"adxl-logger/models"
	"adxl-logger/services/decode"
	"adxl-logger/services/ingest"
	"adxl-logger/services/monitor"
	"adxl-logger/services/stream"
	"adxl-logger/utils"
	"adxl-logger/views"
)

func main() {
	// ── CLI flags ────────────────────────────────────────────────────
	configPath := flag.String("config", "config/instrument.yaml", "path to instrument.yaml (empty for defaults)")
	port := flag.String("port", "", "serial port, overrides serial.port (\"auto\" picks the first USB port)")
	cmdName := flag.String("cmd", "live", "request: event-fetch, start-log, fetch-log-events, stop-plot, set-sample-rate, set-clock, set-threshold, live")
	eventID := flag.Int("event-id", 1, "event to fetch (0-65535)")
	accelHz := flag.Int("accel-hz", 1000, "accelerometer rate for set-sample-rate")
	inclHz := flag.Int("incl-hz", 100, "inclinometer rate for set-sample-rate")
	thresholds := flag.String("thresholds", "0.5,0.5,0.5", "x,y,z trigger thresholds in g for set-threshold")
	simulate := flag.Bool("simulate", false, "answer requests from a simulated instrument")
	duration := flag.Int("duration", 0, "stop after N seconds (0 = until done or Ctrl+C)")
	listPorts := flag.Bool("list-ports", false, "list serial ports and exit")
	flag.Parse()

	// ── Config + logger ──────────────────────────────────────────────
	cfg := utils.DefaultConfig()
	if *configPath != "" {
		loaded, err := utils.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *simulate {
		cfg.Simulation.Enabled = true
	}
	if *duration > 0 {
		cfg.Simulation.DurationSeconds = *duration
	}

	logger := utils.InitLogger(cfg.Log)
	defer utils.CloseLogger()

	if *listPorts {
		ports, err := ingest.ListPorts()
		if err != nil {
			logger.Fatalf("list ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cmd, err := models.ParseCommand(*cmdName)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	params, err := requestParams(cmd, *accelHz, *inclHz, *thresholds)
	if err != nil {
		logger.Fatalf("%s: %v", cmd, err)
	}

	logger.Info("═══════════════════════════════════════════════════")
	logger.Info("  ADXL-Logger  ·  accelerometer event & live capture")
	logger.Infof("  GOMAXPROCS=%d  ·  PID=%d", runtime.GOMAXPROCS(0), os.Getpid())
	logger.Info("═══════════════════════════════════════════════════")

	if !filepath.IsAbs(cfg.Storage.BaseDir) {
		abs, _ := filepath.Abs(cfg.Storage.BaseDir)
		cfg.Storage.BaseDir = abs
	}

	// ── Context with OS signal cancellation ──────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if d := cfg.Simulation.DurationSeconds; d > 0 {
		var timerCancel context.CancelFunc
		ctx, timerCancel = context.WithTimeout(ctx, time.Duration(d)*time.Second)
		defer timerCancel()
		logger.Infof("capture will auto-stop after %ds", d)
	}

	// ── Metrics ──────────────────────────────────────────────────────
	if cfg.Monitor.Enabled {
		mon := monitor.NewMonitor(logger)
		srv := mon.StartMetricsServer(cfg.Monitor.MetricsPort)
		defer srv.Close()
		mon.StartRuntimeMonitor(5*time.Second, ctx.Done())
	}

	// ── Pipeline assembly ────────────────────────────────────────────
	//
	//  serial / simulator ──► SessionController ──► Reply chan ──────────┐
	//                               │                                     │
	//                         stream.Buffer ──► LiveController ──► RecordingController
	//                                              │                    │
	//                                            redis           CSV session files

	var src ingest.Source
	if cfg.Simulation.Enabled {
		inst := ingest.NewInstrument(decode.CalibrationFromConfig(cfg.Decoder.Calibration))
		src = ingest.NewSimulator(inst, cfg.Simulation, cfg.Serial.ChannelBuffer)
	} else {
		sr, err := ingest.OpenSerial(cfg.Serial)
		if err != nil {
			logger.Fatalf("open instrument: %v", err)
		}
		src = sr
	}

	var (
		liveSinks  []controller.LiveSink
		eventSinks []controller.EventSink
	)
	if cfg.Redis.Enabled {
		pub, err := views.NewRedisPublisher(cfg.Redis)
		if err != nil {
			logger.Warnf("redis disabled: %v", err)
		} else {
			defer pub.Close()
			liveSinks = append(liveSinks, pub)
			eventSinks = append(eventSinks, pub)
		}
	}

	buffer := stream.NewBuffer(cfg.Live.MaxPending)
	session := controller.NewSessionController(cfg, buffer)
	live := controller.NewLiveController(cfg.Live, buffer, liveSinks...)

	recorder, err := controller.NewRecordingController(cfg.Storage, eventSinks...)
	if err != nil {
		logger.Fatalf("init recording controller: %v", err)
	}

	src.Start(ctx)
	go session.Run(ctx, src)
	live.Start(ctx)
	recorder.Start(ctx, session.Out, live.Out)

	if err := session.Request(src, cmd, *eventID, params...); err != nil {
		logger.Fatalf("request: %v", err)
	}
	logger.Infof("%s requested, press Ctrl+C to stop", cmd)

	// ── Main event loop ──────────────────────────────────────────────
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()
	doneTicker := time.NewTicker(100 * time.Millisecond)
	defer doneTicker.Stop()

loop:
	for {
		select {
		case sig := <-sigCh:
			logger.Infof("received signal: %v, shutting down", sig)
			break loop
		case <-ctx.Done():
			break loop
		case <-doneTicker.C:
			if cmd != models.CmdLive && session.Done() {
				logger.Infof("%s complete", cmd)
				break loop
			}
		case <-statsTicker.C:
			logger.Info("── stats ─────────────────────────")
			session.LogStats(src)
			logger.Infof("  rows written: %d  live pending: %d", recorder.RowsWritten(), buffer.Pending())
			logger.Info("──────────────────────────────────")
		}
	}

	if cmd == models.CmdLive && ctx.Err() == nil {
		if err := session.Request(src, models.CmdStopPlot, 0); err != nil {
			logger.Warnf("stop live stream: %v", err)
		}
	}

	logger.Info("draining pipeline…")
	time.Sleep(500 * time.Millisecond)
	cancel()
	recorder.Stop()

	logger.Infof("session saved to: %s", recorder.SessionDir())
	logger.Infof("events: %d  rows: %d", recorder.Events(), recorder.RowsWritten())
}

// requestParams encodes the parameter bytes of the set-* requests.
func requestParams(cmd models.CommandID, accelHz, inclHz int, thresholds string) ([]byte, error) {
	switch cmd {
	case models.CmdSetSampleRate:
		if accelHz <= 0 || accelHz > math.MaxUint16 || inclHz <= 0 || inclHz > math.MaxUint16 {
			return nil, fmt.Errorf("sample rates %d/%d outside 1-65535", accelHz, inclHz)
		}
		p := binary.BigEndian.AppendUint16(nil, uint16(accelHz))
		return binary.BigEndian.AppendUint16(p, uint16(inclHz)), nil
	case models.CmdSetClock:
		return models.DeviceTimeOf(time.Now()).Bytes(), nil
	case models.CmdSetThreshold:
		parts := strings.Split(thresholds, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("want 3 thresholds, got %q", thresholds)
		}
		var p []byte
		for _, s := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
			if err != nil {
				return nil, fmt.Errorf("threshold %q: %w", s, err)
			}
			p = binary.LittleEndian.AppendUint32(p, math.Float32bits(float32(v)))
		}
		return p, nil
	}
	return nil, nil
}
