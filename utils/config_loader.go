package utils

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ─── Instrument-level configs ───────────────────────────────────────────

type SerialConfig struct {
	Port          string `yaml:"port"` // "auto" picks the first USB port
	BaudRate      int    `yaml:"baud_rate"`
	ReadBuffer    int    `yaml:"read_buffer"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
	ChannelBuffer int    `yaml:"channel_buffer"`
}

// CalibrationConfig carries the ADC and sensor scale constants.
type CalibrationConfig struct {
	VRef             float64 `yaml:"vref"`
	Gain             float64 `yaml:"gain"`
	ADCCounts        float64 `yaml:"adc_counts"`
	ZeroGVolts       float64 `yaml:"zero_g_volts"`
	SensitivityVPerG float64 `yaml:"sensitivity_v_per_g"`
	InclScaleMg      float64 `yaml:"incl_scale_mg"`
}

type DecoderConfig struct {
	Calibration               CalibrationConfig `yaml:"calibration"`
	ExpectedTemperatureFrames int               `yaml:"expected_temperature_frames"`
}

type FramingConfig struct {
	MaxVariableFrame int `yaml:"max_variable_frame"`
	MaxLiveFrame     int `yaml:"max_live_frame"`
}

type LiveConfig struct {
	TickMs         int     `yaml:"tick_ms"`
	MaxPending     int     `yaml:"max_pending"`
	Spectrum       bool    `yaml:"spectrum"`
	SpectrumRateHz float64 `yaml:"spectrum_rate_hz"`
}

type SimulationConfig struct {
	Enabled         bool `yaml:"enabled"`
	DurationSeconds int  `yaml:"duration_seconds"`
	CorruptEvery    int  `yaml:"corrupt_every"` // inject a 0xFF run every N accel packets, 0 = never
	AccelPackets    int  `yaml:"accel_packets"` // accel sub-packets per simulated event
	LiveIntervalMs  int  `yaml:"live_interval_ms"`
}

// ─── Storage configs ────────────────────────────────────────────────────

type CSVStorageConfig struct {
	FlushIntervalMs int  `yaml:"flush_interval_ms"`
	BufferSizeKB    int  `yaml:"buffer_size_kb"`
	WriteHeader     bool `yaml:"write_header"`
}

type StorageConfig struct {
	BaseDir       string           `yaml:"base_dir"`
	SessionPrefix string           `yaml:"session_prefix"`
	CSV           CSVStorageConfig `yaml:"csv"`
	Overwrite     bool             `yaml:"overwrite"`
}

// ─── Ambient configs ────────────────────────────────────────────────────

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	File   string `yaml:"file"`
}

type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Channel  string `yaml:"channel"`
}

// Config is the top-level structure for instrument.yaml.
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	Decoder    DecoderConfig    `yaml:"decoder"`
	Framing    FramingConfig    `yaml:"framing"`
	Live       LiveConfig       `yaml:"live"`
	Simulation SimulationConfig `yaml:"simulation"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Redis      RedisConfig      `yaml:"redis"`
}

// DefaultConfig returns the factory settings of the instrument.
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:          "auto",
			BaudRate:      921600,
			ReadBuffer:    8192,
			ReadTimeoutMs: 200,
			ChannelBuffer: 256,
		},
		Decoder: DecoderConfig{
			Calibration: CalibrationConfig{
				VRef:             3.3,
				Gain:             2,
				ADCCounts:        4096,
				ZeroGVolts:       1.65,
				SensitivityVPerG: 0.0063,
				InclScaleMg:      0.031,
			},
			ExpectedTemperatureFrames: 147,
		},
		Framing: FramingConfig{
			MaxVariableFrame: 1 << 20,
			MaxLiveFrame:     8192,
		},
		Live: LiveConfig{
			TickMs:         33,
			MaxPending:     1 << 16,
			SpectrumRateHz: 1000,
		},
		Simulation: SimulationConfig{
			AccelPackets:   147,
			LiveIntervalMs: 20,
		},
		Storage: StorageConfig{
			BaseDir:       "data",
			SessionPrefix: "session",
			CSV: CSVStorageConfig{
				FlushIntervalMs: 100,
				BufferSizeKB:    256,
				WriteHeader:     true,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Monitor: MonitorConfig{
			MetricsPort: 9090,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			Channel:  "adxl_live",
		},
	}
}

// ─── Loaders ────────────────────────────────────────────────────────────

// LoadConfig reads instrument.yaml over the defaults; keys missing from the
// file keep their default value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the decoder cannot work with.
func (c *Config) Validate() error {
	cal := c.Decoder.Calibration
	if cal.ADCCounts <= 0 {
		return fmt.Errorf("decoder.calibration.adc_counts must be positive, got %v", cal.ADCCounts)
	}
	if cal.SensitivityVPerG == 0 {
		return fmt.Errorf("decoder.calibration.sensitivity_v_per_g must be non-zero")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate)
	}
	if c.Live.TickMs <= 0 {
		return fmt.Errorf("live.tick_ms must be positive, got %d", c.Live.TickMs)
	}
	return nil
}
