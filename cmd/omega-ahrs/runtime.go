package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"omega-ahrs/internal/ahrs"
	"omega-ahrs/internal/config"
	"omega-ahrs/internal/gdl90"
	"omega-ahrs/internal/publish"
	"omega-ahrs/internal/record"
	"omega-ahrs/internal/sim"
	"omega-ahrs/internal/udp"
	"omega-ahrs/internal/web"
)

// outputs holds the live (per-snapshot) sinks enabled by config.
type outputs struct {
	status *web.Status
	att    *web.AttitudeBroadcaster
	logs   *web.LogBuffer

	gdl90Dest *udp.Broadcaster
	gdl90     *gdl90.Stream
	mqtt      *publish.Publisher

	webDone chan error
}

// connectMQTT is replaced in tests.
var connectMQTT = publish.Connect

func openOutputs(ctx context.Context, cfg config.Config, logs *web.LogBuffer) (*outputs, error) {
	o := &outputs{status: web.NewStatus(), logs: logs}

	if g := cfg.Output.GDL90; g.Enable {
		b, err := udp.NewBroadcaster(g.Dest)
		if err != nil {
			return nil, fmt.Errorf("gdl90 output: %w", err)
		}
		o.gdl90Dest = b
		o.gdl90 = gdl90.NewStream(b, gdl90.StreamConfig{
			AHRSInterval:      g.AHRSInterval,
			HeartbeatInterval: g.HeartbeatInterval,
		})
		log.Printf("gdl90 dest=%s ahrs_interval=%s heartbeat_interval=%s", g.Dest, g.AHRSInterval, g.HeartbeatInterval)
	}

	if m := cfg.Output.MQTT; m.Enable {
		p, err := connectMQTT(publish.Config{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Topic:    m.Topic,
			QoS:      byte(m.QoS),
			Retained: m.Retained,
			Interval: m.Interval,
			Timeout:  m.Timeout,
		})
		if err != nil {
			o.close()
			return nil, fmt.Errorf("mqtt output: %w", err)
		}
		o.mqtt = p
		log.Printf("mqtt broker=%s topic=%s", m.Broker, m.Topic)
	}

	if w := cfg.Output.Web; w.Enable {
		o.att = web.NewAttitudeBroadcaster()
		o.webDone = make(chan error, 1)
		go func() {
			o.webDone <- web.Serve(ctx, w.Listen, o.status, o.att, o.logs)
		}()
	}

	o.status.SetStatic(runMode(cfg), o.describe(cfg), nil)
	return o, nil
}

func runMode(cfg config.Config) string {
	switch {
	case cfg.Replay.Enable:
		return "replay"
	case cfg.Realtime:
		return "realtime"
	default:
		return "batch"
	}
}

func (o *outputs) describe(cfg config.Config) map[string]any {
	out := map[string]any{}
	if cfg.Output.CSV != "" && !cfg.Replay.Enable {
		out["csv"] = cfg.Output.CSV
	}
	if o.gdl90 != nil {
		out["gdl90"] = cfg.Output.GDL90.Dest
	}
	if o.mqtt != nil {
		out["mqtt"] = cfg.Output.MQTT.Broker + " " + cfg.Output.MQTT.Topic
	}
	if o.att != nil {
		out["web"] = cfg.Output.Web.Listen
	}
	return out
}

// sinks lists every enabled snapshot consumer. The status page is always
// updated.
func (o *outputs) sinks() []sim.SnapshotSink {
	s := []sim.SnapshotSink{o.status}
	if o.gdl90 != nil {
		s = append(s, o.gdl90)
	}
	if o.mqtt != nil {
		s = append(s, o.mqtt)
	}
	if o.att != nil {
		s = append(s, o.att)
	}
	return s
}

func (o *outputs) PublishSnapshot(snap ahrs.Snapshot) {
	for _, s := range o.sinks() {
		s.PublishSnapshot(snap)
	}
}

func (o *outputs) close() {
	if o.gdl90 != nil {
		sent, errs := o.gdl90.Stats()
		log.Printf("gdl90 frames sent=%d errors=%d", sent, errs)
	}
	if o.gdl90Dest != nil {
		datagrams, bytes := o.gdl90Dest.Stats()
		log.Printf("udp dest=%s datagrams=%d bytes=%d", o.gdl90Dest.Dest(), datagrams, bytes)
		_ = o.gdl90Dest.Close()
	}
	if o.mqtt != nil {
		sent, failed := o.mqtt.Stats()
		log.Printf("mqtt messages sent=%d failed=%d", sent, failed)
		o.mqtt.Close()
	}
}

// wait keeps the web UI up after a finite run until ctx is cancelled.
func (o *outputs) wait(ctx context.Context) error {
	if o.webDone == nil {
		return nil
	}
	log.Printf("run complete; web UI stays up until interrupted")
	select {
	case <-ctx.Done():
		<-o.webDone
		return nil
	case err := <-o.webDone:
		return err
	}
}

// runSimulation builds the filter and scenario from cfg and runs it to
// completion, writing rows to the CSV output and snapshots to o.
func runSimulation(ctx context.Context, cfg config.Config, o *outputs) (sim.RunStats, error) {
	script := sim.DefaultScript()
	if cfg.Scenario.Path != "" {
		s, err := sim.LoadScenarioScript(cfg.Scenario.Path)
		if err != nil {
			return sim.RunStats{}, fmt.Errorf("scenario load: %w", err)
		}
		script = s
	}
	scn, err := sim.NewScenario(script)
	if err != nil {
		return sim.RunStats{}, err
	}
	svc, err := ahrs.NewService(cfg.FilterParams(scn.DT().Seconds()))
	if err != nil {
		return sim.RunStats{}, err
	}
	o.status.SetStatic("", nil, map[string]any{
		"path":     cfg.Scenario.Path,
		"dt":       scn.DT().String(),
		"duration": scn.Duration().String(),
		"steps":    scn.Steps(),
		"seed":     script.Seed,
	})

	opts := sim.RunOptions{Realtime: cfg.Realtime, Snapshots: o.sinks()}
	var csv *record.Writer
	if cfg.Output.CSV != "" {
		csv, err = record.CreateWriter(cfg.Output.CSV)
		if err != nil {
			return sim.RunStats{}, err
		}
		opts.Rows = append(opts.Rows, csv)
	}

	log.Printf("simulating %d steps dt=%s realtime=%v", scn.Steps(), scn.DT(), cfg.Realtime)
	start := time.Now()
	stats, runErr := sim.Run(ctx, scn, svc, opts)
	if csv != nil {
		if err := csv.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}
	log.WithFields(log.Fields{
		"steps":   stats.Steps,
		"none":    stats.StateCounts[ahrs.DisturbanceNone],
		"weak":    stats.StateCounts[ahrs.DisturbanceWeak],
		"strong":  stats.StateCounts[ahrs.DisturbanceStrong],
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("simulation finished")
	return stats, runErr
}

// runReplay plays a recorded CSV through the live outputs with its original
// timing scaled by replay.speed.
func runReplay(ctx context.Context, cfg config.Config, o *outputs, sleeper record.Sleeper) error {
	rows, err := record.ReadFile(cfg.Replay.Path)
	if err != nil {
		return err
	}
	ref := cfg.FilterParams(0).Reference
	log.Printf("replaying %d rows from %s speed=%gx loop=%v", len(rows), cfg.Replay.Path, cfg.Replay.Speed, cfg.Replay.Loop)

	var step uint64
	err = record.Play(rows, cfg.Replay.Speed, cfg.Replay.Loop, sleeper, func(r sim.Row) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		step++
		o.PublishSnapshot(record.SnapshotOf(r, step, ref))
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
