package polar

import (
	"encoding/binary"
	"fmt"
	"time"

	"polarmon/internal/domain"
)

// Heart Rate Measurement flag bits, per the Bluetooth SIG characteristic
// definition (0x2A37).
const (
	hrmFlagValue16Bit      = 1 << 0
	hrmFlagContactDetected = 1 << 1
	hrmFlagContactSupport  = 1 << 2
	hrmFlagEnergyExpended  = 1 << 3
	hrmFlagRRPresent       = 1 << 4
)

// rrTick is the resolution of an RR-interval field: 1/1024 of a second.
const rrTick = time.Second / 1024

// ParseHeartRate decodes a Heart Rate Measurement notification payload into a
// sample stamped with now. Payloads that are truncated or carry a heart rate
// outside the plausible range are rejected with ErrInvalidSample.
func ParseHeartRate(data []byte, now time.Time) (domain.HeartRateSample, error) {
	if len(data) < 2 {
		return domain.HeartRateSample{}, domain.NewDomainError("polar.ParseHeartRate",
			domain.ErrInvalidSample, fmt.Sprintf("payload too short: %d bytes", len(data)))
	}

	flags := data[0]
	rest := data[1:]

	s := domain.HeartRateSample{
		Time:             now,
		ContactSupported: flags&hrmFlagContactSupport != 0,
		SensorContact:    flags&hrmFlagContactDetected != 0,
	}

	if flags&hrmFlagValue16Bit != 0 {
		if len(rest) < 2 {
			return domain.HeartRateSample{}, domain.NewDomainError("polar.ParseHeartRate",
				domain.ErrInvalidSample, "truncated 16-bit heart rate")
		}
		s.BPM = binary.LittleEndian.Uint16(rest)
		rest = rest[2:]
	} else {
		s.BPM = uint16(rest[0])
		rest = rest[1:]
	}

	if flags&hrmFlagEnergyExpended != 0 {
		if len(rest) < 2 {
			return domain.HeartRateSample{}, domain.NewDomainError("polar.ParseHeartRate",
				domain.ErrInvalidSample, "truncated energy expended field")
		}
		s.EnergyExpended = binary.LittleEndian.Uint16(rest)
		rest = rest[2:]
	}

	if flags&hrmFlagRRPresent != 0 {
		for len(rest) >= 2 {
			raw := binary.LittleEndian.Uint16(rest)
			s.RRIntervals = append(s.RRIntervals, time.Duration(raw)*rrTick)
			rest = rest[2:]
		}
	}

	if !s.Valid() {
		return domain.HeartRateSample{}, domain.NewDomainError("polar.ParseHeartRate",
			domain.ErrInvalidSample, fmt.Sprintf("heart rate %d out of range", s.BPM))
	}
	return s, nil
}
