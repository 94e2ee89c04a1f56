package sim

import (
	"math"
	"testing"
	"time"

	"omega-ahrs/internal/quat"
)

func TestScenario_DefaultsMatchReferenceRun(t *testing.T) {
	script, err := ParseScenarioScriptYAML([]byte("version: 1\n"))
	if err != nil {
		t.Fatalf("ParseScenarioScriptYAML: %v", err)
	}
	scn, err := NewScenario(script)
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	if scn.Steps() != 1501 {
		t.Fatalf("steps: got %d want 1501", scn.Steps())
	}
	if scn.DT() != 20*time.Millisecond {
		t.Fatalf("dt: got %s", scn.DT())
	}
	if got := scn.RateAt(17 * time.Second); got != (quat.Vec3{0.1, 0.1, 0.1}) {
		t.Fatalf("rate: got %v", got)
	}
	if got := scn.GyroBias(); got != (quat.Vec3{-0.02, 0.01, 0.05}) {
		t.Fatalf("bias: got %v", got)
	}

	cases := []struct {
		t    time.Duration
		want quat.Vec3
	}{
		{9980 * time.Millisecond, quat.Vec3{}},
		{10 * time.Second, quat.Vec3{3, 0, 0}},
		{15 * time.Second, quat.Vec3{3, 0, 0}},
		{20 * time.Second, quat.Vec3{3, 0, 0}},
		{20020 * time.Millisecond, quat.Vec3{}},
	}
	for _, tc := range cases {
		if got := scn.DisturbanceAt(tc.t); got != tc.want {
			t.Fatalf("disturbance at %s: got %v want %v", tc.t, got, tc.want)
		}
	}
}

func TestScenario_ParseAndInterpolateRate(t *testing.T) {
	yaml := []byte(`
version: 1
dt: 10ms
duration: 1s
seed: 7
initial_attitude: {yaw_deg: 90}
rate:
  - t: 0s
    omega: [0, 0, 0]
  - t: 1s
    omega: [1, 0, -1]
gyro_bias: [0, 0, 0]
noise: {gyro_var: 0, acc_var: 0, mag_var: 0}
disturbances: []
`)
	script, err := ParseScenarioScriptYAML(yaml)
	if err != nil {
		t.Fatalf("ParseScenarioScriptYAML: %v", err)
	}
	scn, err := NewScenario(script)
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	if scn.Steps() != 101 {
		t.Fatalf("steps: got %d want 101", scn.Steps())
	}
	if got := scn.RateAt(500 * time.Millisecond); got != (quat.Vec3{0.5, 0, -0.5}) {
		t.Fatalf("rate interpolation: got %v", got)
	}
	if got := scn.RateAt(5 * time.Second); got != (quat.Vec3{1, 0, -1}) {
		t.Fatalf("rate hold: got %v", got)
	}
	if got := scn.DisturbanceAt(15 * time.Second); got != (quat.Vec3{}) {
		t.Fatalf("expected no disturbances, got %v", got)
	}
	yaw := quat.ToEuler(scn.InitialAttitude()).Yaw
	if math.Abs(yaw-math.Pi/2) > 1e-12 {
		t.Fatalf("initial yaw: got %v", yaw)
	}
	if scn.Script().Seed != 7 {
		t.Fatalf("seed: got %d", scn.Script().Seed)
	}
}

func TestScenario_SinusoidalDisturbance(t *testing.T) {
	script := DefaultScript()
	script.Disturbances = []DisturbanceWindow{{
		Start:     0,
		End:       2 * time.Second,
		Accel:     [3]float64{1, 0, 0},
		Amplitude: [3]float64{0, 2, 0},
		FreqHz:    1,
	}}
	scn, err := NewScenario(script)
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	got := scn.DisturbanceAt(250 * time.Millisecond)
	if math.Abs(got[0]-1) > 1e-12 || math.Abs(got[1]-2) > 1e-12 || got[2] != 0 {
		t.Fatalf("disturbance: got %v want [1 2 0]", got)
	}
}

func TestScenario_DurationDerivedFromEvents(t *testing.T) {
	script := DefaultScript()
	script.Duration = 0
	script.Disturbances = nil
	script.Rate = []RateKeyframe{{T: 0}, {T: 5 * time.Second}}
	scn, err := NewScenario(script)
	if err != nil {
		t.Fatalf("NewScenario: %v", err)
	}
	if scn.Duration() != 5*time.Second {
		t.Fatalf("duration: got %s want 5s", scn.Duration())
	}
	if scn.Steps() != 251 {
		t.Fatalf("steps: got %d want 251", scn.Steps())
	}
}

func TestScenario_Validation(t *testing.T) {
	cases := map[string]func(s *ScenarioScript){
		"version":        func(s *ScenarioScript) { s.Version = 2 },
		"dt":             func(s *ScenarioScript) { s.DT = 0 },
		"duration":       func(s *ScenarioScript) { s.Duration = -time.Second },
		"no rate":        func(s *ScenarioScript) { s.Rate = nil },
		"unsorted rate":  func(s *ScenarioScript) { s.Rate = []RateKeyframe{{T: 2 * time.Second}, {T: time.Second}} },
		"nan rate":       func(s *ScenarioScript) { s.Rate[0].Omega[1] = math.NaN() },
		"negative noise": func(s *ScenarioScript) { s.Noise.Acc = -1 },
		"inf bias":       func(s *ScenarioScript) { s.GyroBias[2] = math.Inf(1) },
		"window":         func(s *ScenarioScript) { s.Disturbances[0].End = time.Second },
		"freq":           func(s *ScenarioScript) { s.Disturbances[0].FreqHz = -1 },
		"zero duration":  func(s *ScenarioScript) { s.Duration = 0; s.Disturbances = nil },
	}
	for name, mod := range cases {
		t.Run(name, func(t *testing.T) {
			s := DefaultScript()
			mod(&s)
			if _, err := NewScenario(s); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestScenario_ParseRejectsBadYAML(t *testing.T) {
	if _, err := ParseScenarioScriptYAML([]byte("dt: [1, 2")); err == nil {
		t.Fatalf("expected error")
	}
}
