package polar

import (
	"fmt"
	"time"

	"polarmon/internal/domain"
)

// PMD frame types carried in byte 0 of a data notification.
const (
	pmdFrameECG = 0x02
)

// ECGStartCommand requests a 130 Hz ECG stream from the PMD control point.
// The trailing settings bytes select the sample rate and 14-bit resolution.
var ECGStartCommand = []byte{0x02, 0x00, 0x00, 0x01, 0x82, 0x00, 0x01, 0x01, 0x0E, 0x00}

// ECGStopCommand ends the ECG stream.
var ECGStopCommand = []byte{0x02, 0x00, 0x00, 0x01, 0x82, 0x00, 0x01, 0x01, 0x00, 0x00}

// ecgScale converts a raw ADC count to microvolts.
const ecgScale = 0.25

// ParseECGFrame decodes a PMD data notification. Frames of a type other than
// ECG are skipped with ok=false; truncated frames fail with ErrInvalidFrame.
func ParseECGFrame(data []byte, now time.Time) (domain.ECGBatch, bool, error) {
	if len(data) < 3 {
		return domain.ECGBatch{}, false, domain.NewDomainError("polar.ParseECGFrame",
			domain.ErrInvalidFrame, fmt.Sprintf("frame too short: %d bytes", len(data)))
	}
	if data[0] != pmdFrameECG {
		return domain.ECGBatch{}, false, nil
	}

	batch := domain.ECGBatch{
		FrameTime: uint16(data[1]) | uint16(data[2])<<8,
		Received:  now,
	}

	body := data[3:]
	for i := 0; i+3 <= len(body); i += 3 {
		raw := int32(body[i]) | int32(body[i+1])<<8 | int32(body[i+2])<<16
		if raw&0x800000 != 0 {
			raw -= 1 << 24
		}
		batch.Samples = append(batch.Samples, domain.ECGSample{
			Time:       now,
			Microvolts: float64(raw) * ecgScale,
		})
	}
	return batch, true, nil
}
