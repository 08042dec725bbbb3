package utils

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	globalLogger *logrus.Logger
	logFile      *os.File
	logMu        sync.Mutex
)

// InitLogger creates the process-wide logger. Later calls return the logger
// built by the first one.
func InitLogger(cfg LogConfig) *logrus.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	if globalLogger != nil {
		return globalLogger
	}

	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	writers := []io.Writer{os.Stdout}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			writers = append(writers, f)
			logFile = f
		} else {
			log.Warnf("could not open log file %s: %v", cfg.File, err)
		}
	}
	log.SetOutput(io.MultiWriter(writers...))

	globalLogger = log
	return globalLogger
}

// L returns the global logger, falling back to a stdout logger at debug
// level when InitLogger has not run (tests, tools).
func L() *logrus.Logger {
	logMu.Lock()
	log := globalLogger
	logMu.Unlock()
	if log == nil {
		return InitLogger(LogConfig{Level: "debug", Format: "text"})
	}
	return log
}

// Component returns an entry tagged with the owning component name.
func Component(name string) *logrus.Entry {
	return L().WithField("component", name)
}

// CloseLogger closes the log file, if any.
func CloseLogger() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
