package gdl90

import (
	"encoding/binary"
	"math"

	"omega-ahrs/internal/ahrs"
)

// Attitude holds the fields carried by the AHRS messages, in natural units.
// Angles and rates go on the wire in tenths; the LE report also sends G load
// in tenths. Air data (airspeed, pressure altitude, vertical speed) is never
// available here and is always sent as the invalid sentinel. When Valid is
// false every field is.
type Attitude struct {
	Valid bool

	RollDeg    float64
	PitchDeg   float64
	HeadingDeg float64

	SlipSkidDeg float64
	YawRateDps  float64
	GLoad       float64
}

const (
	invalidS16 = 0x7FFF
	invalidU16 = 0xFFFF
)

// AttitudeFromSnapshot maps filter output to the GDL90 attitude fields.
// Slip/skid stays zero: the filter has no lateral acceleration model.
func AttitudeFromSnapshot(s ahrs.Snapshot) Attitude {
	if !s.Valid {
		return Attitude{}
	}
	e := s.Euler.Degrees()
	return Attitude{
		Valid:      true,
		RollDeg:    e.Roll,
		PitchDeg:   e.Pitch,
		HeadingDeg: s.HeadingDeg,
		YawRateDps: s.Rate[2] * 180 / math.Pi,
		GLoad:      s.GLoad,
	}
}

// ForeFlightAHRSFrame builds the ForeFlight AHRS message (0x65/0x01): roll,
// pitch, magnetic heading, IAS, TAS. Like Stratux, only roll and pitch are
// ever filled in.
func ForeFlightAHRSFrame(a Attitude) []byte {
	roll, pitch := uint16(invalidS16), uint16(invalidS16)
	if a.Valid {
		roll, pitch = uint16(deg10(a.RollDeg)), uint16(deg10(a.PitchDeg))
	}
	msg := appendU16([]byte{msgForeFlight, ffSubAHRS},
		roll, pitch,
		invalidU16, // heading
		invalidU16, // IAS
		invalidU16, // TAS
	)
	return Frame(msg)
}

// AHRSGDL90LEFrame builds the Levil-style "LE" AHRS report that Stratux
// emits (0x4C 0x45 0x01 0x01 header).
func AHRSGDL90LEFrame(a Attitude) []byte {
	fields := [6]uint16{invalidS16, invalidS16, invalidS16, invalidS16, invalidS16, invalidS16}
	if a.Valid {
		fields = [6]uint16{
			uint16(deg10(a.RollDeg)),
			uint16(deg10(a.PitchDeg)),
			uint16(deg10(a.HeadingDeg)),
			uint16(deg10(-a.SlipSkidDeg)), // sign flipped on the wire
			uint16(deg10(a.YawRateDps)),
			uint16(deg10(a.GLoad)),
		}
	}
	msg := appendU16([]byte{msgLevil, 0x45, 0x01, 0x01}, fields[:]...)
	msg = appendU16(msg,
		invalidS16, // airspeed
		invalidU16, // pressure altitude
		invalidS16, // vertical speed
		invalidS16, // reserved
	)
	return Frame(msg)
}

func appendU16(b []byte, vs ...uint16) []byte {
	for _, v := range vs {
		b = binary.BigEndian.AppendUint16(b, v)
	}
	return b
}

// deg10 converts to rounded tenths, saturating at the int16 range. NaN maps
// to the invalid sentinel.
func deg10(v float64) int16 {
	t := math.Round(v * 10)
	switch {
	case math.IsNaN(t):
		return invalidS16
	case t < math.MinInt16:
		return math.MinInt16
	case t > math.MaxInt16:
		return math.MaxInt16
	}
	return int16(t)
}
