package monitor

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	BytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adxl_bytes_received_total",
		Help: "Bytes fed into the frame extractor.",
	})

	FramesExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adxl_frames_extracted_total",
			Help: "Complete frames sliced out of the stream, by grammar.",
		},
		[]string{"kind"},
	)

	FramingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adxl_framing_errors_total",
			Help: "Framing mismatches, by reason.",
		},
		[]string{"reason"},
	)

	BytesDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adxl_bytes_discarded_total",
		Help: "Bytes dropped while resynchronising.",
	})

	Splices = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adxl_ff_run_splices_total",
		Help: "4100-byte frames repaired by excising a 0xFF run.",
	})

	RunAnomalies = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adxl_ff_run_anomalies_total",
		Help: "Short 0xFF runs seen inside 4100-byte frames and left in place.",
	})

	ShortPayloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adxl_short_payloads_total",
			Help: "Frames too short for one decode group, by grammar.",
		},
		[]string{"kind"},
	)

	SamplesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adxl_samples_decoded_total",
			Help: "Decoded samples, by sensor.",
		},
		[]string{"sensor"},
	)

	LivePending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adxl_live_pending_samples",
		Help: "Samples waiting for the next redraw tick.",
	})

	LiveDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adxl_live_dropped_samples_total",
		Help: "Samples evicted from a full pending queue.",
	})

	LiveBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "adxl_live_batch_samples",
		Help:    "Samples handed to the presentation layer per tick.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	SpectraComputed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adxl_spectra_computed_total",
		Help: "FFT spectra produced.",
	})

	EventsAssembled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adxl_events_assembled_total",
		Help: "Event fetches completed by a terminator frame.",
	})

	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adxl_goroutines",
		Help: "Current goroutine count.",
	})

	MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adxl_memory_usage_bytes",
		Help: "Heap bytes in use.",
	})
)

var registerOnce sync.Once

type Monitor struct {
	log *logrus.Logger
}

// NewMonitor registers every collector with the default registry.
func NewMonitor(log *logrus.Logger) *Monitor {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			BytesReceived,
			FramesExtracted,
			FramingErrors,
			BytesDiscarded,
			Splices,
			RunAnomalies,
			ShortPayloads,
			SamplesDecoded,
			LivePending,
			LiveDropped,
			LiveBatchSize,
			SpectraComputed,
			EventsAssembled,
			GoroutineCount,
			MemoryUsage,
		)
	})
	return &Monitor{log: log}
}

// StartMetricsServer serves /metrics and /health on port.
func (m *Monitor) StartMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.log.Infof("metrics server listening on %s", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Errorf("metrics server: %v", err)
		}
	}()
	return srv
}

// StartRuntimeMonitor samples goroutine and heap gauges every interval
// until stop is closed.
func (m *Monitor) StartRuntimeMonitor(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				GoroutineCount.Set(float64(runtime.NumGoroutine()))

				var ms runtime.MemStats
				runtime.ReadMemStats(&ms)
				MemoryUsage.Set(float64(ms.Alloc))

				m.log.Debugf("goroutines=%d heap=%.2fMB", runtime.NumGoroutine(), float64(ms.Alloc)/1024/1024)
			}
		}
	}()
}
