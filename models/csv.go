package models

import (
	"math"
	"strconv"
)

// CSVRowWriter is implemented by every model written to a session file.
// CSVHeader must not depend on the receiver's contents; it is called on the
// zero value to write the header row.
type CSVRowWriter interface {
	CSVHeader() []string
	CSVRow() []string
}

func itoa(v int) string      { return strconv.Itoa(v) }
func itoa64(v int64) string  { return strconv.FormatInt(v, 10) }
func utoa64(v uint64) string { return strconv.FormatUint(v, 10) }

// ftoa writes NaN and ±Inf as empty cells.
func ftoa(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}
