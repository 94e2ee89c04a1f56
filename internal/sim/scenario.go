package sim

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"omega-ahrs/internal/quat"
)

// ScenarioScript is a deterministic, script-driven sensor simulation.
//
// Time is expressed as Go duration strings (e.g. "0s", "20ms", "10s").
// Fields missing from the YAML keep the values from DefaultScript.
//
// YAML schema (v1):
//
//	version: 1
//	dt: 20ms
//	duration: 30s
//	seed: 1
//	initial_attitude: {yaw_deg: 0, pitch_deg: 0, roll_deg: 0}
//	rate:
//	  - t: 0s
//	    omega: [0.1, 0.1, 0.1]   # rad/s, body frame
//	gyro_bias: [-0.02, 0.01, 0.05]
//	noise: {gyro_var: 0.0001, acc_var: 0.01, mag_var: 0.01}
//	disturbances:
//	  - start: 10s
//	    end: 20s                 # inclusive
//	    accel: [3, 0, 0]         # m/s^2, body frame
//	    amplitude: [0, 0, 0]     # optional sinusoid on top of accel
//	    freq_hz: 0
//
// Rate keyframes must use non-decreasing t values. The rate is interpolated
// linearly between keyframes and held outside them.
type ScenarioScript struct {
	Version         int                 `yaml:"version"`
	DT              time.Duration       `yaml:"dt"`
	Duration        time.Duration       `yaml:"duration"`
	Seed            uint64              `yaml:"seed"`
	InitialAttitude AttitudeDeg         `yaml:"initial_attitude"`
	Rate            []RateKeyframe      `yaml:"rate"`
	GyroBias        [3]float64          `yaml:"gyro_bias"`
	Noise           NoiseVariances      `yaml:"noise"`
	Disturbances    []DisturbanceWindow `yaml:"disturbances"`
}

// AttitudeDeg is a ZYX Euler attitude in degrees.
type AttitudeDeg struct {
	YawDeg   float64 `yaml:"yaw_deg"`
	PitchDeg float64 `yaml:"pitch_deg"`
	RollDeg  float64 `yaml:"roll_deg"`
}

// Quat converts a to a unit quaternion.
func (a AttitudeDeg) Quat() quat.Quat {
	const d2r = math.Pi / 180
	return quat.FromEuler(quat.Euler{Yaw: a.YawDeg * d2r, Pitch: a.PitchDeg * d2r, Roll: a.RollDeg * d2r})
}

// RateKeyframe is a time-stamped true body angular rate.
type RateKeyframe struct {
	T     time.Duration `yaml:"t"`
	Omega [3]float64    `yaml:"omega"`
}

// NoiseVariances are per-axis variances of the additive Gaussian sensor noise.
type NoiseVariances struct {
	Gyro float64 `yaml:"gyro_var"`
	Acc  float64 `yaml:"acc_var"`
	Mag  float64 `yaml:"mag_var"`
}

// DisturbanceWindow injects a non-gravitational acceleration into the
// accelerometer for Start <= t <= End.
type DisturbanceWindow struct {
	Start     time.Duration `yaml:"start"`
	End       time.Duration `yaml:"end"`
	Accel     [3]float64    `yaml:"accel"`
	Amplitude [3]float64    `yaml:"amplitude"`
	FreqHz    float64       `yaml:"freq_hz"`
}

// DefaultScript is a 30 s run at 50 Hz with a constant rate of 0.1 rad/s on
// every axis, a fixed gyro bias and a 3 m/s^2 x-axis disturbance between 10 s
// and 20 s.
func DefaultScript() ScenarioScript {
	return ScenarioScript{
		Version:  1,
		DT:       20 * time.Millisecond,
		Duration: 30 * time.Second,
		Seed:     1,
		Rate:     []RateKeyframe{{T: 0, Omega: [3]float64{0.1, 0.1, 0.1}}},
		GyroBias: [3]float64{-0.02, 0.01, 0.05},
		Noise:    NoiseVariances{Gyro: 0.0001, Acc: 0.01, Mag: 0.01},
		Disturbances: []DisturbanceWindow{
			{Start: 10 * time.Second, End: 20 * time.Second, Accel: [3]float64{3, 0, 0}},
		},
	}
}

// Scenario is the validated, runtime representation.
type Scenario struct {
	script ScenarioScript
	steps  int
}

// LoadScenarioScript reads and unmarshals a YAML scenario script from path.
func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

// ParseScenarioScriptYAML parses a YAML scenario script on top of DefaultScript.
func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	s := DefaultScript()
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, err
	}
	return s, nil
}

// NewScenario validates script and returns a runtime Scenario.
func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if script.DT <= 0 {
		return nil, fmt.Errorf("dt must be > 0")
	}
	if script.Duration < 0 {
		return nil, fmt.Errorf("duration must be >= 0")
	}
	if len(script.Rate) == 0 {
		return nil, fmt.Errorf("rate keyframes are required")
	}
	if err := validateRate(script.Rate); err != nil {
		return nil, err
	}
	if !finite3(script.GyroBias) {
		return nil, fmt.Errorf("gyro_bias must be finite")
	}
	for name, v := range map[string]float64{
		"noise.gyro_var": script.Noise.Gyro, "noise.acc_var": script.Noise.Acc, "noise.mag_var": script.Noise.Mag,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("%s must be finite and >= 0", name)
		}
	}
	for i, d := range script.Disturbances {
		if d.Start < 0 || d.End < d.Start {
			return nil, fmt.Errorf("disturbances[%d] must satisfy 0 <= start <= end", i)
		}
		if !finite3(d.Accel) || !finite3(d.Amplitude) {
			return nil, fmt.Errorf("disturbances[%d] accel/amplitude must be finite", i)
		}
		if math.IsNaN(d.FreqHz) || math.IsInf(d.FreqHz, 0) || d.FreqHz < 0 {
			return nil, fmt.Errorf("disturbances[%d].freq_hz must be finite and >= 0", i)
		}
	}

	dur := script.Duration
	if dur == 0 {
		dur = maxEventTime(script)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or deriveable from keyframes)")
	}
	script.Duration = dur

	// Both endpoints are sampled.
	steps := int(dur/script.DT) + 1
	return &Scenario{script: script, steps: steps}, nil
}

// Script returns the validated script with derived fields filled in.
func (s *Scenario) Script() ScenarioScript { return s.script }

// Duration returns the effective scenario duration.
func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.script.Duration
}

// DT returns the sample period.
func (s *Scenario) DT() time.Duration { return s.script.DT }

// Steps returns the number of samples, floor(duration/dt)+1.
func (s *Scenario) Steps() int { return s.steps }

// TimeAt returns the elapsed time of step n.
func (s *Scenario) TimeAt(n int) time.Duration { return time.Duration(n) * s.script.DT }

// InitialAttitude returns the true attitude before the first step.
func (s *Scenario) InitialAttitude() quat.Quat { return s.script.InitialAttitude.Quat() }

// GyroBias returns the constant true gyro bias.
func (s *Scenario) GyroBias() quat.Vec3 { return quat.Vec3(s.script.GyroBias) }

// RateAt returns the true body rate at elapsed t.
func (s *Scenario) RateAt(t time.Duration) quat.Vec3 {
	k0, k1, alpha := selectSegment(s.script.Rate, t)
	var out quat.Vec3
	for i := range out {
		out[i] = lerp(k0.Omega[i], k1.Omega[i], alpha)
	}
	return out
}

// DisturbanceAt returns the sum of all disturbance windows active at t.
func (s *Scenario) DisturbanceAt(t time.Duration) quat.Vec3 {
	var out quat.Vec3
	for _, d := range s.script.Disturbances {
		if t < d.Start || t > d.End {
			continue
		}
		out = out.Add(quat.Vec3(d.Accel))
		if d.FreqHz > 0 {
			k := math.Sin(2 * math.Pi * d.FreqHz * t.Seconds())
			out = quat.Vec3(d.Amplitude).ScaleAdd(k, out)
		}
	}
	return out
}

func validateRate(kfs []RateKeyframe) error {
	for i := range kfs {
		if kfs[i].T < 0 {
			return fmt.Errorf("rate[%d].t must be >= 0", i)
		}
		if i > 0 && kfs[i].T < kfs[i-1].T {
			return fmt.Errorf("rate keyframes must be sorted by t (index %d)", i)
		}
		if !finite3(kfs[i].Omega) {
			return fmt.Errorf("rate[%d].omega must be finite", i)
		}
	}
	return nil
}

func maxEventTime(s ScenarioScript) time.Duration {
	max := time.Duration(0)
	for _, kf := range s.Rate {
		if kf.T > max {
			max = kf.T
		}
	}
	for _, d := range s.Disturbances {
		if d.End > max {
			max = d.End
		}
	}
	return max
}

func selectSegment(kfs []RateKeyframe, t time.Duration) (RateKeyframe, RateKeyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return k0, k1, alpha
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func finite3(v [3]float64) bool {
	return quat.Vec3(v).IsFinite()
}
