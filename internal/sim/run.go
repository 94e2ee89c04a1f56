package sim

import (
	"context"
	"fmt"
	"time"

	"omega-ahrs/internal/ahrs"
	"omega-ahrs/internal/quat"
)

// Row is the per-step record of truth against estimate.
type Row struct {
	Time time.Duration

	TrueEuler quat.Euler
	EstEuler  quat.Euler
	TrueBias  quat.Vec3
	EstBias   quat.Vec3
	TrueQuat  quat.Quat
	EstQuat   quat.Quat

	Disturbance quat.Vec3
	ErrorMetric float64
	State       ahrs.DisturbanceState
}

// RowSink consumes rows in step order.
type RowSink interface {
	WriteRow(Row) error
}

// RowSinkFunc adapts a function to RowSink.
type RowSinkFunc func(Row) error

func (f RowSinkFunc) WriteRow(r Row) error { return f(r) }

// SnapshotSink receives the filter snapshot after every step. Live outputs
// (network streams) implement this instead of RowSink.
type SnapshotSink interface {
	PublishSnapshot(ahrs.Snapshot)
}

// RunOptions controls pacing and outputs of Run.
type RunOptions struct {
	// Realtime paces steps with a ticker at the scenario dt.
	Realtime bool

	Rows      []RowSink
	Snapshots []SnapshotSink

	// Tick overrides the pacing source when Realtime is set (tests).
	Tick <-chan time.Time
}

// RunStats summarises a completed or cancelled run.
type RunStats struct {
	Steps       int
	StateCounts map[ahrs.DisturbanceState]int
}

// Run drives svc with the measurement sequence of scn until the scenario is
// exhausted or ctx is cancelled. Sink errors abort the run.
func Run(ctx context.Context, scn *Scenario, svc *ahrs.Service, opts RunOptions) (RunStats, error) {
	stats := RunStats{StateCounts: map[ahrs.DisturbanceState]int{}}
	if scn == nil || svc == nil {
		return stats, fmt.Errorf("sim: scenario and service are required")
	}
	if got, want := svc.DT(), scn.DT().Seconds(); got != want {
		return stats, fmt.Errorf("sim: filter dt %v does not match scenario dt %v", got, want)
	}

	tick := opts.Tick
	if opts.Realtime && tick == nil {
		t := time.NewTicker(scn.DT())
		defer t.Stop()
		tick = t.C
	}

	gen := NewGenerator(scn, svc.Reference())
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		m, ok := gen.Next()
		if !ok {
			return stats, nil
		}
		if opts.Realtime {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-tick:
			}
		}

		snap, err := svc.Update(m.Sample)
		if err != nil {
			return stats, fmt.Errorf("sim: step %d: %w", m.Step, err)
		}
		stats.Steps++
		stats.StateCounts[snap.State]++

		row := NewRow(m, snap)
		for _, s := range opts.Rows {
			if err := s.WriteRow(row); err != nil {
				return stats, fmt.Errorf("sim: write row %d: %w", m.Step, err)
			}
		}
		for _, s := range opts.Snapshots {
			s.PublishSnapshot(snap)
		}
	}
}

// NewRow pairs a measurement's truth with the filter snapshot taken after it.
func NewRow(m Measurement, snap ahrs.Snapshot) Row {
	return Row{
		Time:        m.Time,
		TrueEuler:   quat.ToEuler(m.Truth),
		EstEuler:    snap.Euler,
		TrueBias:    m.Bias,
		EstBias:     snap.BiasEstimate(),
		TrueQuat:    m.Truth,
		EstQuat:     snap.Attitude,
		Disturbance: m.Disturbance,
		ErrorMetric: snap.ErrorMetric,
		State:       snap.State,
	}
}
