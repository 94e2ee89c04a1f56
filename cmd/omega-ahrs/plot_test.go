package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"omega-ahrs/internal/ahrs"
	"omega-ahrs/internal/quat"
	"omega-ahrs/internal/sim"
)

func stateRows(states ...ahrs.DisturbanceState) []sim.Row {
	rows := make([]sim.Row, len(states))
	for i, st := range states {
		rows[i] = sim.Row{
			Time:     time.Duration(i) * time.Second,
			EstEuler: quat.Euler{Roll: deg(float64(i))},
			State:    st,
		}
	}
	return rows
}

func TestStrongSpans(t *testing.T) {
	n, w, s := ahrs.DisturbanceNone, ahrs.DisturbanceWeak, ahrs.DisturbanceStrong
	rows := stateRows(n, s, s, w, s)

	pts := strongSpans(rows, -1, 2)
	if len(pts) != 8 {
		t.Fatalf("points=%d want 8 (two spans)", len(pts))
	}
	// First span covers t=1..2 s, second is the single trailing row at 4 s.
	if pts[0].X != 1 || pts[0].Y != -1 || pts[1].Y != 2 || pts[2].X != 2 {
		t.Fatalf("first span=%v", pts[:4])
	}
	if pts[4].X != 4 || pts[6].X != 4 {
		t.Fatalf("second span=%v", pts[4:])
	}

	if got := strongSpans(stateRows(n, w), 0, 1); len(got) != 0 {
		t.Fatalf("expected no spans, got %v", got)
	}
}

func TestSavePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "err.png")
	rows := stateRows(ahrs.DisturbanceNone, ahrs.DisturbanceStrong, ahrs.DisturbanceStrong, ahrs.DisturbanceNone)
	if err := savePlot(rows, path); err != nil {
		t.Fatalf("savePlot: %v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Size() == 0 {
		t.Fatalf("empty plot file")
	}

	if err := savePlot(nil, path); err == nil {
		t.Fatalf("expected error for no rows")
	}
}
