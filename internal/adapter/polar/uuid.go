package polar

// GATT identifiers used by the Polar H10.
//
// The heart-rate service is the Bluetooth SIG standard one; the PMD (Polar
// Measurement Data) service is Polar's proprietary streaming interface used
// for raw ECG.
const (
	HeartRateServiceUUID     = "180d"
	HeartRateMeasurementUUID = "2a37"

	PMDServiceUUID = "FB005C80-02E7-F387-1CAD-8ACD2D8DF0C8"
	PMDControlUUID = "FB005C81-02E7-F387-1CAD-8ACD2D8DF0C8"
	PMDDataUUID    = "FB005C82-02E7-F387-1CAD-8ACD2D8DF0C8"
)
