package views

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"adxl-logger/models"
)

// CSVWriter is a buffered CSV file shared by the recording goroutines.
// Rows are encoded under the mutex; the recording controller flushes on a
// timer so writers never wait on the disk.
type CSVWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	rows uint64
}

// OpenSessionFile creates kind's file inside dir.
func OpenSessionFile(dir string, kind FileKind, bufSizeBytes int, writeHeader bool) (*CSVWriter, error) {
	return NewCSVWriter(filepath.Join(dir, kind.String()), bufSizeBytes, writeHeader, kind.Header())
}

// NewCSVWriter opens (or creates) a file and writes the CSV header row.
func NewCSVWriter(path string, bufSizeBytes int, writeHeader bool, header []string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv create %s: %w", path, err)
	}

	if bufSizeBytes <= 0 {
		bufSizeBytes = 256 * 1024 // 256 KB default
	}

	bw := bufio.NewWriterSize(f, bufSizeBytes)
	cw := csv.NewWriter(bw)

	w := &CSVWriter{
		file: f,
		buf:  bw,
		csv:  cw,
	}

	if writeHeader && len(header) > 0 {
		if err := cw.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("csv write header: %w", err)
		}
	}

	return w, nil
}

// WriteRow appends a single CSV row. Thread-safe.
func (w *CSVWriter) WriteRow(row []string) {
	w.mu.Lock()
	_ = w.csv.Write(row) // error is buffered; checked on Flush
	w.rows++
	w.mu.Unlock()
}

// WriteRecord appends r's row, prefixed by extra leading columns.
func (w *CSVWriter) WriteRecord(r models.CSVRowWriter, prefix ...string) {
	if len(prefix) == 0 {
		w.WriteRow(r.CSVRow())
		return
	}
	w.WriteRow(append(prefix, r.CSVRow()...))
}

// Flush pushes buffered rows to the OS and reports any encode or write
// error since the last flush.
func (w *CSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.buf.Flush()
}

// Close flushes remaining data and closes the file.
func (w *CSVWriter) Close() error {
	ferr := w.Flush()
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Close(); err != nil {
		return err
	}
	return ferr
}

func (w *CSVWriter) Path() string { return w.file.Name() }

// Rows returns the number of data rows written (excludes header).
func (w *CSVWriter) Rows() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}
