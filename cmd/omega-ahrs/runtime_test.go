package main

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"omega-ahrs/internal/ahrs"
	"omega-ahrs/internal/config"
	"omega-ahrs/internal/gdl90"
	"omega-ahrs/internal/publish"
	"omega-ahrs/internal/record"
	"omega-ahrs/internal/sim"
)

type noSleep struct{ total time.Duration }

func (n *noSleep) Sleep(d time.Duration) { n.total += d }

func batchConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.CSV = filepath.Join(t.TempDir(), "result.csv")
	return cfg
}

func TestRunSimulation_WritesCSV(t *testing.T) {
	cfg := batchConfig(t)
	o, err := openOutputs(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("openOutputs: %v", err)
	}
	defer o.close()

	stats, err := runSimulation(context.Background(), cfg, o)
	if err != nil {
		t.Fatalf("runSimulation: %v", err)
	}
	if stats.Steps != 1501 {
		t.Fatalf("steps=%d want 1501", stats.Steps)
	}

	rows, err := record.ReadFile(cfg.Output.CSV)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rows) != stats.Steps {
		t.Fatalf("rows=%d want %d", len(rows), stats.Steps)
	}
	if rows[len(rows)-1].Time != 30*time.Second {
		t.Fatalf("last time=%s", rows[len(rows)-1].Time)
	}
	// The injected 3 m/s^2 disturbance is rejected while active.
	if rows[750].State != ahrs.DisturbanceStrong {
		t.Fatalf("state at 15s=%s want strong", rows[750].State)
	}

	st := o.status.Snapshot(time.Time{})
	if st.Updates != uint64(stats.Steps) || st.Mode != "batch" {
		t.Fatalf("status updates=%d mode=%q", st.Updates, st.Mode)
	}
	if st.Scenario["steps"] != 1501 {
		t.Fatalf("scenario=%v", st.Scenario)
	}
}

func TestRunSimulation_BadScenarioPath(t *testing.T) {
	cfg := batchConfig(t)
	cfg.Scenario.Path = filepath.Join(t.TempDir(), "missing.yaml")
	o, err := openOutputs(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("openOutputs: %v", err)
	}
	if _, err := runSimulation(context.Background(), cfg, o); err == nil {
		t.Fatalf("expected scenario load error")
	}
}

func TestRunSimulation_Cancelled(t *testing.T) {
	cfg := batchConfig(t)
	o, err := openOutputs(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("openOutputs: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := runSimulation(ctx, cfg, o)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if stats.Steps != 0 {
		t.Fatalf("steps=%d want 0", stats.Steps)
	}
}

func TestRunReplay_DrivesOutputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	w, err := record.CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	for i := 0; i < 4; i++ {
		row := sim.Row{Time: time.Duration(i) * 20 * time.Millisecond, State: ahrs.DisturbanceNone}
		row.EstQuat.W = 1
		if err := w.WriteRow(row); err != nil {
			t.Fatalf("WriteRow: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cfg, err := loadConfig("", path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	cfg.Replay.Speed = 2
	o, err := openOutputs(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("openOutputs: %v", err)
	}

	sleeper := &noSleep{}
	if err := runReplay(context.Background(), cfg, o, sleeper); err != nil {
		t.Fatalf("runReplay: %v", err)
	}
	if sleeper.total != 30*time.Millisecond {
		t.Fatalf("slept %s want 30ms", sleeper.total)
	}
	st := o.status.Snapshot(time.Time{})
	if st.Updates != 4 || st.Mode != "replay" || st.Attitude.Step != 4 {
		t.Fatalf("status=%+v", st)
	}
}

func TestRunReplay_CancelledStopsQuietly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	w, err := record.CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	if err := w.WriteRow(sim.Row{}); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	_ = w.Close()

	cfg, _ := loadConfig("", path)
	cfg.Replay.Loop = true
	o, err := openOutputs(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("openOutputs: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runReplay(ctx, cfg, o, &noSleep{}); err != nil {
		t.Fatalf("runReplay: %v", err)
	}
	if st := o.status.Snapshot(time.Time{}); st.Updates != 0 {
		t.Fatalf("updates=%d want 0", st.Updates)
	}
}

func TestOpenOutputs_GDL90OverUDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer pc.Close()

	cfg := batchConfig(t)
	cfg.Output.CSV = ""
	cfg.Output.GDL90 = config.GDL90Config{
		Enable:            true,
		Dest:              pc.LocalAddr().String(),
		AHRSInterval:      time.Hour,
		HeartbeatInterval: time.Hour,
	}
	o, err := openOutputs(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("openOutputs: %v", err)
	}
	defer o.close()
	if got := o.describe(cfg)["gdl90"]; got != pc.LocalAddr().String() {
		t.Fatalf("describe gdl90=%v", got)
	}

	o.PublishSnapshot(ahrs.Snapshot{Valid: true, Step: 1})

	// The first snapshot sends the heartbeat group first.
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1500)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	msg, crcOK, err := gdl90.Unframe(buf[:n])
	if err != nil || !crcOK {
		t.Fatalf("Unframe err=%v crcOK=%v", err, crcOK)
	}
	if msg[0] != 0x00 {
		t.Fatalf("first msg id=0x%02X want heartbeat", msg[0])
	}
}

func TestOpenOutputs_MQTTConnectFailure(t *testing.T) {
	orig := connectMQTT
	t.Cleanup(func() { connectMQTT = orig })
	connectMQTT = func(cfg publish.Config) (*publish.Publisher, error) {
		if cfg.Broker != "tcp://broker:1883" || cfg.QoS != 1 {
			t.Errorf("unexpected config %+v", cfg)
		}
		return nil, errors.New("refused")
	}

	cfg := batchConfig(t)
	cfg.Output.MQTT = config.MQTTConfig{Enable: true, Broker: "tcp://broker:1883", QoS: 1}
	if _, err := openOutputs(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected mqtt error")
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("", "")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Replay.Enable || runMode(cfg) != "batch" {
		t.Fatalf("expected batch defaults, got %+v", cfg.Replay)
	}

	cfg, err = loadConfig("", "rec.csv")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !cfg.Replay.Enable || cfg.Replay.Path != "rec.csv" || cfg.Replay.Speed != 1 || runMode(cfg) != "replay" {
		t.Fatalf("replay=%+v", cfg.Replay)
	}

	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestRun_BatchWithoutWebReturns(t *testing.T) {
	cfg := batchConfig(t)
	done := make(chan error, 1)
	go func() { done <- run(context.Background(), cfg, nil) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatalf("run did not return")
	}
}
