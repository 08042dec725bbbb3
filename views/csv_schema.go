package views

import "adxl-logger/models"

// FileKind names one CSV file of a recording session. The column layout of
// each comes from the model's CSVHeader.
type FileKind int

const (
	FileEvents FileKind = iota
	FileAccel
	FileIncl
	FileTemperature
	FileLogEvents
	FileLive
	FileSpectrum
)

var fileNames = map[FileKind]string{
	FileEvents:      "events.csv",
	FileAccel:       "accel.csv",
	FileIncl:        "incl.csv",
	FileTemperature: "temperature.csv",
	FileLogEvents:   "log_events.csv",
	FileLive:        "live.csv",
	FileSpectrum:    "spectrum.csv",
}

func (k FileKind) String() string {
	if n, ok := fileNames[k]; ok {
		return n
	}
	return "unknown.csv"
}

// Header returns the column list written at the top of the file.
func (k FileKind) Header() []string {
	switch k {
	case FileEvents:
		return models.EventRecord{}.CSVHeader()
	case FileAccel, FileIncl, FileTemperature:
		return append([]string{"event_id"}, models.SensorSample{}.CSVHeader()...)
	case FileLogEvents:
		return models.LogEvent{}.CSVHeader()
	case FileLive:
		return models.LiveUpdate{}.CSVHeader()
	case FileSpectrum:
		return append([]string{"timestamp_ns"}, models.SpectrumBin{}.CSVHeader()...)
	}
	return nil
}

// SampleFile maps a sensor to the file its samples go to.
func SampleFile(s models.SensorKind) FileKind {
	switch s {
	case models.SensorIncl:
		return FileIncl
	case models.SensorTemp:
		return FileTemperature
	}
	return FileAccel
}
