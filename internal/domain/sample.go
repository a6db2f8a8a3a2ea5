package domain

import "time"

// Physiologically plausible heart-rate bounds, in BPM. Readings outside
// this range are rejected as sensor artifacts.
const (
	MinHeartRate = 30
	MaxHeartRate = 240
)

// HeartRateSample is a decoded Heart Rate Measurement (GATT 0x2A37) notification.
type HeartRateSample struct {
	Time time.Time `json:"time"`
	// BPM is the heart rate in beats per minute. The wire format may carry
	// it as 8 or 16 bits; it is normalized to uint16 here.
	BPM uint16 `json:"bpm"`
	// SensorContact reports skin contact when the sensor supports detection.
	SensorContact bool `json:"sensor_contact"`
	// ContactSupported is true when the sensor reports contact status at all.
	ContactSupported bool `json:"contact_supported"`
	// EnergyExpended is the cumulative energy field in kilojoules, when present.
	EnergyExpended uint16 `json:"energy_expended,omitempty"`
	// RRIntervals are beat-to-beat intervals, converted from 1/1024 s units.
	RRIntervals []time.Duration `json:"rr_intervals,omitempty"`
}

// Valid reports whether the sample falls inside the plausible BPM range.
func (s HeartRateSample) Valid() bool {
	return s.BPM >= MinHeartRate && s.BPM <= MaxHeartRate
}

// ECGSample is a single electrocardiogram voltage reading.
type ECGSample struct {
	Time       time.Time `json:"time"`
	Microvolts float64   `json:"microvolts"`
}

// ECGBatch is one decoded PMD data frame worth of ECG samples.
type ECGBatch struct {
	// FrameTime is the device-side 16-bit frame timestamp.
	FrameTime uint16      `json:"frame_time"`
	Received  time.Time   `json:"received"`
	Samples   []ECGSample `json:"samples"`
}

// QualityStats summarizes signal quality over the recent sample window.
type QualityStats struct {
	// SignalQuality is 0..100, the mean per-reading score of the last readings.
	SignalQuality float64 `json:"signal_quality"`
	DataGaps      int     `json:"data_gaps"`
	Anomalies     int     `json:"anomalies"`
	MeanBPM       float64 `json:"mean_bpm"`
	StdDevBPM     float64 `json:"std_dev_bpm"`
	BufferSize    int     `json:"buffer_size"`
}
