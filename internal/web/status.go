package web

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"omega-ahrs/internal/ahrs"
)

type Status struct {
	startUnixNano  int64
	updates        uint64
	lastUpdateNano int64
	stateCounts    [3]uint64    // indexed by ahrs.DisturbanceState
	mode           atomic.Value // string
	outputs        atomic.Value // map[string]any
	scenario       atomic.Value // map[string]any
	attitude       atomic.Value // AttitudeSnapshot
}

func NewStatus() *Status {
	s := &Status{}
	now := time.Now().UTC()
	atomic.StoreInt64(&s.startUnixNano, now.UnixNano())
	s.mode.Store("")
	s.outputs.Store(map[string]any{})
	s.scenario.Store(map[string]any{})
	s.attitude.Store(AttitudeSnapshot{})
	return s
}

// AttitudeSnapshot is a small, UI-friendly view of filter output.
//
// Angles are in degrees and are omitted (null) while the estimate is invalid.
// This is intended for debugging/verification and is not a flight instrument.
type AttitudeSnapshot struct {
	Valid         bool        `json:"valid"`
	Step          uint64      `json:"step"`
	RollDeg       *float64    `json:"roll_deg,omitempty"`
	PitchDeg      *float64    `json:"pitch_deg,omitempty"`
	YawDeg        *float64    `json:"yaw_deg,omitempty"`
	HeadingDeg    *float64    `json:"heading_deg,omitempty"`
	Quaternion    *[4]float64 `json:"quaternion,omitempty"`
	GyroBias      *[3]float64 `json:"gyro_bias,omitempty"`
	Disturbance   string      `json:"disturbance,omitempty"`
	ErrorMetric   float64     `json:"e"`
	LastUpdateUTC string      `json:"last_update_utc,omitempty"`
}

// AttitudeFromSnapshot builds the UI view of s.
func AttitudeFromSnapshot(s ahrs.Snapshot) AttitudeSnapshot {
	att := AttitudeSnapshot{Valid: s.Valid, Step: s.Step, ErrorMetric: s.ErrorMetric}
	if !s.UpdatedAt.IsZero() {
		att.LastUpdateUTC = s.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !s.Valid {
		return att
	}
	e := s.Euler.Degrees()
	roll, pitch, yaw, hdg := e.Roll, e.Pitch, e.Yaw, s.HeadingDeg
	q := [4]float64{s.Attitude.W, s.Attitude.V[0], s.Attitude.V[1], s.Attitude.V[2]}
	bias := [3]float64(s.BiasEstimate())
	att.RollDeg = &roll
	att.PitchDeg = &pitch
	att.YawDeg = &yaw
	att.HeadingDeg = &hdg
	att.Quaternion = &q
	att.GyroBias = &bias
	att.Disturbance = s.State.String()
	return att
}

// SetStatic records run-level information that does not change per step.
func (s *Status) SetStatic(mode string, outputs map[string]any, scenario map[string]any) {
	if mode != "" {
		s.mode.Store(mode)
	}
	if outputs != nil {
		s.outputs.Store(outputs)
	}
	if scenario != nil {
		s.scenario.Store(scenario)
	}
}

// PublishSnapshot records the latest filter output.
func (s *Status) PublishSnapshot(snap ahrs.Snapshot) {
	now := snap.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastUpdateNano, now.UnixNano())
	atomic.AddUint64(&s.updates, 1)
	if i := int(snap.State); i >= 0 && i < len(s.stateCounts) {
		atomic.AddUint64(&s.stateCounts[i], 1)
	}
	s.attitude.Store(AttitudeFromSnapshot(snap))
}

type BuildInfo struct {
	GoVersion  string `json:"go_version"`
	ModulePath string `json:"module_path,omitempty"`
	Version    string `json:"version,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
}

type StatusSnapshot struct {
	Service       string            `json:"service"`
	NowUTC        string            `json:"now_utc"`
	UptimeSec     int64             `json:"uptime_sec"`
	Mode          string            `json:"mode"`
	Updates       uint64            `json:"updates"`
	LastUpdateUTC string            `json:"last_update_utc,omitempty"`
	StateCounts   map[string]uint64 `json:"state_counts"`
	Outputs       map[string]any    `json:"outputs"`
	Scenario      map[string]any    `json:"scenario"`
	Attitude      AttitudeSnapshot  `json:"attitude"`
	Build         BuildInfo         `json:"build"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	uptime := nowUTC.Sub(start)
	lastUpdate := atomic.LoadInt64(&s.lastUpdateNano)

	counts := make(map[string]uint64, len(s.stateCounts))
	for i := range s.stateCounts {
		counts[ahrs.DisturbanceState(i).String()] = atomic.LoadUint64(&s.stateCounts[i])
	}

	snap := StatusSnapshot{
		Service:     "omega-ahrs",
		NowUTC:      nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:   int64(uptime.Seconds()),
		Mode:        s.mode.Load().(string),
		Updates:     atomic.LoadUint64(&s.updates),
		StateCounts: counts,
		Outputs:     s.outputs.Load().(map[string]any),
		Scenario:    s.scenario.Load().(map[string]any),
		Attitude:    s.attitude.Load().(AttitudeSnapshot),
		Build:       readBuildInfo(),
	}
	if lastUpdate != 0 {
		snap.LastUpdateUTC = time.Unix(0, lastUpdate).UTC().Format(time.RFC3339Nano)
	}
	return snap
}

func readBuildInfo() BuildInfo {
	out := BuildInfo{GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return out
	}
	out.ModulePath = bi.Main.Path
	out.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.modified":
			out.Dirty = s.Value == "true"
		}
	}
	return out
}
