package utils

import (
	"fmt"
	"time"
)

// NowNano returns wall-clock nanoseconds since the Unix epoch; event and
// live records are stamped with it.
func NowNano() int64 {
	return time.Now().UnixNano()
}

// FormatTimestamp renders a NowNano value for logs.
func FormatTimestamp(ns int64) string {
	return time.Unix(0, ns).Format("2006-01-02_15-04-05.000")
}

// SessionName returns a session directory name:
//
//	<prefix>_YYYYMMDD_HHMMSS
func SessionName(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, time.Now().Format("20060102_150405"))
}
