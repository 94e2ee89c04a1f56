package ahrs

import (
	"fmt"
	"math"
	"strings"

	"omega-ahrs/internal/quat"
)

// DisturbanceState classifies the accelerometer against the gravity the
// current estimate predicts.
type DisturbanceState int

const (
	// DisturbanceNone: full correction gain.
	DisturbanceNone DisturbanceState = iota
	// DisturbanceWeak: accelerometer still used, correction gain halved.
	DisturbanceWeak
	// DisturbanceStrong: accelerometer replaced by the predicted gravity.
	DisturbanceStrong
)

// hysteresis is the fraction of each threshold below which a state re-arms.
const hysteresis = 0.2

func (s DisturbanceState) String() string {
	switch s {
	case DisturbanceNone:
		return "none"
	case DisturbanceWeak:
		return "weak"
	case DisturbanceStrong:
		return "strong"
	default:
		return fmt.Sprintf("DisturbanceState(%d)", int(s))
	}
}

func (s DisturbanceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DisturbanceState) UnmarshalText(b []byte) error {
	v, err := ParseDisturbanceState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseDisturbanceState is the inverse of DisturbanceState.String.
func ParseDisturbanceState(s string) (DisturbanceState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return DisturbanceNone, nil
	case "weak":
		return DisturbanceWeak, nil
	case "strong":
		return DisturbanceStrong, nil
	}
	return 0, fmt.Errorf("unknown disturbance state %q", s)
}

// Metric selects how the disturbance error e is computed.
type Metric int

const (
	// MetricResidual: e = ‖acc − predicted gravity‖ / g.
	MetricResidual Metric = iota
	// MetricMagnitude: e = |‖acc‖ − g| / g. Blind to tilt errors.
	MetricMagnitude
)

func (m Metric) String() string {
	switch m {
	case MetricResidual:
		return "residual"
	case MetricMagnitude:
		return "magnitude"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

// ParseMetric accepts "residual" (or "e2") and "magnitude" (or "e1").
// An empty string selects MetricResidual.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "residual", "e2":
		return MetricResidual, nil
	case "magnitude", "e1":
		return MetricMagnitude, nil
	}
	return 0, fmt.Errorf("unknown disturbance metric %q", s)
}

func (m Metric) valid() bool {
	return m == MetricResidual || m == MetricMagnitude
}

func (m Metric) eval(acc, predicted quat.Vec3, g float64) float64 {
	if m == MetricMagnitude {
		return math.Abs(acc.Norm()-g) / g
	}
	return acc.Sub(predicted).Norm() / g
}

// decision is the outcome of one classification step.
type decision struct {
	state    DisturbanceState
	suppress bool    // replace the accelerometer with the predicted gravity
	gain     float64 // multiplier on the proportional correction gain
}

// classify runs one step of the disturbance state machine.
//
//	e > strong                                  -> strong, suppress
//	weak < e <= strong, prev strong, e > 0.8*strong -> strong, suppress
//	weak < e <= strong, otherwise               -> weak, gain/2
//	e <= weak, prev weak, e > 0.8*weak          -> weak, gain/2
//	e <= weak, otherwise                        -> none
func classify(prev DisturbanceState, e, weak, strong float64) decision {
	switch {
	case e > strong:
		return decision{state: DisturbanceStrong, suppress: true, gain: 1}
	case e > weak:
		if prev == DisturbanceStrong && e > strong*(1-hysteresis) {
			return decision{state: DisturbanceStrong, suppress: true, gain: 1}
		}
		return decision{state: DisturbanceWeak, gain: 0.5}
	default:
		if prev == DisturbanceWeak && e > weak*(1-hysteresis) {
			return decision{state: DisturbanceWeak, gain: 0.5}
		}
		return decision{state: DisturbanceNone, gain: 1}
	}
}
