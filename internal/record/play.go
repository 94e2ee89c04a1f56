package record

import (
	"errors"
	"fmt"
	"time"

	"omega-ahrs/internal/ahrs"
	"omega-ahrs/internal/sim"
)

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Play replays rows with their relative timing.
//
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
// A row whose time goes backwards starts a new segment with no wait.
func Play(rows []sim.Row, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(sim.Row) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if len(rows) == 0 {
		return errors.New("no rows")
	}

	for {
		for i, r := range rows {
			if i > 0 {
				wait := r.Time - rows[i-1].Time
				if wait > 0 {
					sleeper.Sleep(time.Duration(float64(wait) / speedMultiplier))
				}
			}
			if err := cb(r); err != nil {
				return err
			}
		}
		if !loop {
			return nil
		}
	}
}

// SnapshotOf rebuilds the estimate half of a row as a filter snapshot so a
// recorded run can drive the same live outputs as a simulated one. The bias
// is carried with a unit gain so BiasEstimate returns the recorded value.
func SnapshotOf(r sim.Row, step uint64, ref ahrs.Reference) ahrs.Snapshot {
	return ahrs.Snapshot{
		Valid:        true,
		Step:         step,
		Attitude:     r.EstQuat,
		Euler:        r.EstEuler,
		HeadingDeg:   ref.HeadingDeg(r.EstEuler.Yaw),
		BiasIntegral: r.EstBias.Neg(),
		IntegralGain: 1,
		State:        r.State,
		ErrorMetric:  r.ErrorMetric,
		UpdatedAt:    time.Now().UTC(),
	}
}
