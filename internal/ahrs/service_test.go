package ahrs

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"omega-ahrs/internal/quat"
)

func levelSample() Sample {
	ref := DefaultReference()
	return Sample{Acc: ref.Gravity, Mag: ref.Mag}
}

func TestNewService_InvalidParams(t *testing.T) {
	p := DefaultParams()
	p.DT = 0
	if _, err := NewService(p); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_InitialSnapshot(t *testing.T) {
	p := DefaultParams()
	p.Initial = quat.FromEuler(quat.Euler{Yaw: math.Pi / 2})
	svc, err := NewService(p)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	snap := svc.Snapshot()
	if !snap.Valid {
		t.Fatalf("expected valid initial snapshot")
	}
	if snap.Step != 0 {
		t.Fatalf("Step=%d want 0", snap.Step)
	}
	if math.Abs(snap.HeadingDeg) > 1e-9 && math.Abs(snap.HeadingDeg-360) > 1e-9 {
		t.Fatalf("HeadingDeg=%v want 0", snap.HeadingDeg)
	}
	if svc.DT() != p.DT {
		t.Fatalf("DT=%v want %v", svc.DT(), p.DT)
	}
}

func TestService_UpdateAdvancesStep(t *testing.T) {
	svc, err := NewService(DefaultParams())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	for i := 1; i <= 5; i++ {
		snap, err := svc.Update(levelSample())
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if snap.Step != uint64(i) {
			t.Fatalf("Step=%d want %d", snap.Step, i)
		}
		if !snap.UpdatedAt.Equal(fixed) {
			t.Fatalf("UpdatedAt=%v", snap.UpdatedAt)
		}
		if snap.State != DisturbanceNone {
			t.Fatalf("State=%v", snap.State)
		}
		if math.Abs(snap.GLoad-1) > 1e-12 {
			t.Fatalf("GLoad=%v want 1", snap.GLoad)
		}
	}
	if got := svc.Snapshot().Step; got != 5 {
		t.Fatalf("Snapshot().Step=%d want 5", got)
	}
}

func TestService_RejectsNonFiniteWithoutStepping(t *testing.T) {
	svc, err := NewService(DefaultParams())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	good := levelSample()
	good.Gyro = quat.Vec3{0.1, 0, 0}
	if _, err := svc.Update(good); err != nil {
		t.Fatalf("Update: %v", err)
	}
	before := svc.Snapshot()

	bad := []Sample{
		{Gyro: quat.Vec3{math.NaN(), 0, 0}, Acc: good.Acc, Mag: good.Mag},
		{Gyro: good.Gyro, Acc: quat.Vec3{0, 0, math.Inf(-1)}, Mag: good.Mag},
		{Gyro: good.Gyro, Acc: good.Acc, Mag: quat.Vec3{math.NaN(), 0, 0}},
	}
	for _, s := range bad {
		snap, err := svc.Update(s)
		if !errors.Is(err, ErrNonFiniteSample) {
			t.Fatalf("err=%v want ErrNonFiniteSample", err)
		}
		if snap.LastError == "" {
			t.Fatalf("expected LastError to be set")
		}
		if snap.Step != before.Step || snap.Attitude != before.Attitude {
			t.Fatalf("snapshot changed on rejected sample")
		}
	}

	snap, err := svc.Update(good)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if snap.LastError != "" {
		t.Fatalf("LastError not cleared: %q", snap.LastError)
	}
	if snap.Step != before.Step+1 {
		t.Fatalf("Step=%d want %d", snap.Step, before.Step+1)
	}
}

func TestService_RateRemovesBiasEstimate(t *testing.T) {
	svc, err := NewService(DefaultParams())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	sample := levelSample()
	sample.Gyro = quat.Vec3{0.01, 0.02, 0.03}
	snap, err := svc.Update(sample)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := sample.Gyro.Sub(snap.BiasEstimate())
	if snap.Rate != want {
		t.Fatalf("Rate=%v want %v", snap.Rate, want)
	}
}

func TestSnapshot_BiasEstimateSign(t *testing.T) {
	s := Snapshot{BiasIntegral: quat.Vec3{0.1, -0.2, 0}, IntegralGain: 0.5}
	got := s.BiasEstimate()
	want := quat.Vec3{-0.05, 0.1, 0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("BiasEstimate=%v want %v", got, want)
		}
	}
}

func TestReference_HeadingDeg(t *testing.T) {
	ref := DefaultReference()
	cases := []struct {
		yaw  float64
		want float64
	}{
		{0, 90},
		{math.Pi / 2, 0},
		{-math.Pi / 2, 180},
		{math.Pi, 270},
		{math.Pi / 4, 45},
	}
	for _, tc := range cases {
		got := ref.HeadingDeg(tc.yaw)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("HeadingDeg(yaw=%v)=%v want %v", tc.yaw, got, tc.want)
		}
		if got < 0 || got >= 360 {
			t.Fatalf("HeadingDeg out of range: %v", got)
		}
	}
}

func TestService_ConcurrentSnapshots(t *testing.T) {
	svc, err := NewService(DefaultParams())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = svc.Snapshot()
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		if _, err := svc.Update(levelSample()); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	close(stop)
	wg.Wait()
	if got := svc.Snapshot().Step; got != 200 {
		t.Fatalf("Step=%d want 200", got)
	}
}
