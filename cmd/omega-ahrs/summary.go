package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"omega-ahrs/internal/ahrs"
	"omega-ahrs/internal/record"
	"omega-ahrs/internal/sim"
)

type runSummary struct {
	Rows     int
	Duration time.Duration

	// RMS and max absolute Euler error in degrees, indexed roll, pitch, yaw.
	RMSDeg [3]float64
	MaxDeg [3]float64

	FinalBiasErr float64
	StateCounts  map[ahrs.DisturbanceState]int
}

func summarizeRows(rows []sim.Row) runSummary {
	s := runSummary{StateCounts: map[ahrs.DisturbanceState]int{}}
	if len(rows) == 0 {
		return s
	}
	s.Rows = len(rows)
	s.Duration = rows[len(rows)-1].Time - rows[0].Time

	for _, r := range rows {
		s.StateCounts[r.State]++
	}
	errs := eulerErrorsDeg(rows)
	for axis := range errs {
		sq := make([]float64, len(rows))
		floats.MulTo(sq, errs[axis], errs[axis])
		s.RMSDeg[axis] = math.Sqrt(stat.Mean(sq, nil))
		abs := make([]float64, len(rows))
		for i, v := range errs[axis] {
			abs[i] = math.Abs(v)
		}
		s.MaxDeg[axis] = floats.Max(abs)
	}

	last := rows[len(rows)-1]
	diff := last.EstBias.Sub(last.TrueBias)
	s.FinalBiasErr = floats.Norm(diff[:], 2)
	return s
}

// printSummary reports error statistics for the CSV at path and, when
// plotPath is set, also renders the error plot there.
func printSummary(w io.Writer, path, plotPath string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	rows, err := record.ReadFile(path)
	if err != nil {
		return err
	}
	s := summarizeRows(rows)
	if plotPath != "" {
		if err := savePlot(rows, plotPath); err != nil {
			return fmt.Errorf("plot: %w", err)
		}
	}

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "rows: %d\n", s.Rows)
	fmt.Fprintf(w, "duration: %s\n", s.Duration)
	fmt.Fprintf(w, "rms_error_deg: roll=%.3f pitch=%.3f yaw=%.3f\n", s.RMSDeg[0], s.RMSDeg[1], s.RMSDeg[2])
	fmt.Fprintf(w, "max_error_deg: roll=%.3f pitch=%.3f yaw=%.3f\n", s.MaxDeg[0], s.MaxDeg[1], s.MaxDeg[2])
	fmt.Fprintf(w, "final_bias_error: %.6f rad/s\n", s.FinalBiasErr)
	fmt.Fprintf(w, "state_counts:\n")
	for _, st := range []ahrs.DisturbanceState{ahrs.DisturbanceNone, ahrs.DisturbanceWeak, ahrs.DisturbanceStrong} {
		fmt.Fprintf(w, "  %s: %d\n", st, s.StateCounts[st])
	}
	if plotPath != "" {
		fmt.Fprintf(w, "plot: %s\n", plotPath)
	}
	return nil
}
