package models

// SensorKind identifies which physical channel group a sample belongs to.
type SensorKind int

const (
	SensorAccel SensorKind = iota
	SensorIncl
	SensorTemp
)

var sensorNames = map[SensorKind]string{
	SensorAccel: "accel",
	SensorIncl:  "incl",
	SensorTemp:  "temp",
}

func (s SensorKind) String() string {
	if n, ok := sensorNames[s]; ok {
		return n
	}
	return "unknown"
}

// Axis indexes into SensorSample.Values.
const (
	AxisX = 0
	AxisY = 1
	AxisZ = 2
)

// SensorSample holds one decoded reading.
//
//	accel: Values = [x, y, z] in g
//	incl:  Values = [x, y] in degrees
//	temp:  Values = [celsius]
type SensorSample struct {
	Sensor SensorKind `json:"sensor"`
	Index  int        `json:"index"` // 1-based ordinal within the burst
	Values []float64  `json:"values"`
}

func NewAccelSample(index int, x, y, z float64) SensorSample {
	return SensorSample{Sensor: SensorAccel, Index: index, Values: []float64{x, y, z}}
}

func NewInclSample(index int, x, y float64) SensorSample {
	return SensorSample{Sensor: SensorIncl, Index: index, Values: []float64{x, y}}
}

func NewTempSample(index int, celsius float64) SensorSample {
	return SensorSample{Sensor: SensorTemp, Index: index, Values: []float64{celsius}}
}

// Value returns the given axis, or 0 when the sample has no such axis.
func (s SensorSample) Value(axis int) float64 {
	if axis < 0 || axis >= len(s.Values) {
		return 0
	}
	return s.Values[axis]
}

func (SensorSample) CSVHeader() []string {
	return []string{"sensor", "index", "v0", "v1", "v2"}
}

func (s *SensorSample) CSVRow() []string {
	row := []string{s.Sensor.String(), itoa(s.Index)}
	for i := 0; i < 3; i++ {
		if i < len(s.Values) {
			row = append(row, ftoa(s.Values[i], 6))
		} else {
			row = append(row, "")
		}
	}
	return row
}

// Channel pulls one axis of one sensor out of a mixed sample slice.
func Channel(samples []SensorSample, sensor SensorKind, axis int) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Sensor == sensor && axis < len(s.Values) {
			out = append(out, s.Values[axis])
		}
	}
	return out
}
