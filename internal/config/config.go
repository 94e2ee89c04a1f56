package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"omega-ahrs/internal/ahrs"
)

type Config struct {
	Filter   FilterConfig   `yaml:"filter"`
	Scenario ScenarioConfig `yaml:"scenario"`
	// Realtime paces the simulation at the scenario sample period instead of
	// running it as fast as possible.
	Realtime bool         `yaml:"realtime"`
	Output   OutputConfig `yaml:"output"`
	Replay   ReplayConfig `yaml:"replay"`
	Log      LogConfig    `yaml:"log"`
}

type FilterConfig struct {
	Alpha     float64         `yaml:"alpha"`
	Beta      float64         `yaml:"beta"`
	ThrWeak   float64         `yaml:"thr_weak"`
	ThrStrong float64         `yaml:"thr_strong"`
	Metric    string          `yaml:"metric"`
	Reference ReferenceConfig `yaml:"reference"`
}

type ReferenceConfig struct {
	Gravity [3]float64 `yaml:"gravity"`
	Mag     [3]float64 `yaml:"mag"`
}

type ScenarioConfig struct {
	// Path is a scenario script; empty selects the built-in default scenario.
	Path string `yaml:"path"`
}

type OutputConfig struct {
	CSV   string      `yaml:"csv"`
	GDL90 GDL90Config `yaml:"gdl90"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
	Web   WebConfig   `yaml:"web"`
}

type GDL90Config struct {
	Enable            bool          `yaml:"enable"`
	Dest              string        `yaml:"dest"`
	AHRSInterval      time.Duration `yaml:"ahrs_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

type MQTTConfig struct {
	Enable   bool          `yaml:"enable"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	QoS      int           `yaml:"qos"`
	Retained bool          `yaml:"retained"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type ReplayConfig struct {
	Enable bool    `yaml:"enable"`
	Path   string  `yaml:"path"`
	Speed  float64 `yaml:"speed"`
	Loop   bool    `yaml:"loop"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given: the default
// scenario with the default filter tuning and only a CSV output.
func Default() Config {
	p := ahrs.DefaultParams()
	return Config{
		Filter: FilterConfig{
			Alpha:     p.Alpha,
			Beta:      p.Beta,
			ThrWeak:   p.ThrWeak,
			ThrStrong: p.ThrStrong,
			Metric:    p.Metric.String(),
			Reference: ReferenceConfig{
				Gravity: [3]float64(p.Reference.Gravity),
				Mag:     [3]float64(p.Reference.Mag),
			},
		},
		Output: OutputConfig{CSV: "result.csv"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads path over Default and validates the result. Keys absent from the
// file keep their default values, so an explicit zero (for example
// filter.beta: 0) is honoured.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() error {
	f := &cfg.Filter
	for name, v := range map[string]float64{
		"filter.alpha": f.Alpha, "filter.beta": f.Beta,
		"filter.thr_weak": f.ThrWeak, "filter.thr_strong": f.ThrStrong,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite", name)
		}
	}
	if f.Alpha <= 0 {
		return fmt.Errorf("filter.alpha must be > 0")
	}
	if f.Beta < 0 {
		return fmt.Errorf("filter.beta must be >= 0")
	}
	if f.ThrWeak >= f.ThrStrong {
		return fmt.Errorf("filter.thr_weak must be < filter.thr_strong")
	}
	if _, err := ahrs.ParseMetric(f.Metric); err != nil {
		return fmt.Errorf("filter.metric must be 'residual' or 'magnitude'")
	}
	g := f.Reference.Gravity
	if g[0] != 0 || g[1] != 0 || g[2] == 0 {
		return fmt.Errorf("filter.reference.gravity must be non-zero and along z")
	}
	m := f.Reference.Mag
	if m[0] == 0 && m[1] == 0 && m[2] == 0 {
		return fmt.Errorf("filter.reference.mag must be non-zero")
	}

	cfg.Scenario.Path = strings.TrimSpace(cfg.Scenario.Path)
	cfg.Output.CSV = strings.TrimSpace(cfg.Output.CSV)

	gd := &cfg.Output.GDL90
	if gd.Enable {
		if gd.Dest == "" {
			return fmt.Errorf("output.gdl90.dest is required when output.gdl90.enable is true")
		}
		if gd.AHRSInterval < 0 || gd.HeartbeatInterval < 0 {
			return fmt.Errorf("output.gdl90 intervals must be >= 0")
		}
		if gd.AHRSInterval == 0 {
			gd.AHRSInterval = 200 * time.Millisecond
		}
		if gd.HeartbeatInterval == 0 {
			gd.HeartbeatInterval = 1 * time.Second
		}
	}

	mq := &cfg.Output.MQTT
	if mq.Enable {
		if mq.Broker == "" {
			return fmt.Errorf("output.mqtt.broker is required when output.mqtt.enable is true")
		}
		if mq.QoS < 0 || mq.QoS > 2 {
			return fmt.Errorf("output.mqtt.qos must be 0, 1, or 2")
		}
		if mq.Interval < 0 {
			return fmt.Errorf("output.mqtt.interval must be >= 0")
		}
		if mq.ClientID == "" {
			mq.ClientID = "omega-ahrs"
		}
		if mq.Topic == "" {
			mq.Topic = "omega-ahrs/attitude"
		}
		if mq.Timeout <= 0 {
			mq.Timeout = 5 * time.Second
		}
	}

	if cfg.Output.Web.Enable && cfg.Output.Web.Listen == "" {
		cfg.Output.Web.Listen = "127.0.0.1:8080"
	}

	if cfg.Replay.Enable {
		if cfg.Replay.Path == "" {
			return fmt.Errorf("replay.path is required when replay.enable is true")
		}
		if cfg.Replay.Speed == 0 {
			cfg.Replay.Speed = 1
		}
		if cfg.Replay.Speed < 0 {
			return fmt.Errorf("replay.speed must be > 0")
		}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level %q is not a valid level", cfg.Log.Level)
	}
	return nil
}

// FilterParams converts the filter section into ahrs.Params for a sample
// period of dt seconds.
func (cfg Config) FilterParams(dt float64) ahrs.Params {
	m, _ := ahrs.ParseMetric(cfg.Filter.Metric)
	p := ahrs.DefaultParams()
	p.Alpha = cfg.Filter.Alpha
	p.Beta = cfg.Filter.Beta
	p.ThrWeak = cfg.Filter.ThrWeak
	p.ThrStrong = cfg.Filter.ThrStrong
	p.Metric = m
	p.DT = dt
	p.Reference = ahrs.Reference{
		Gravity: cfg.Filter.Reference.Gravity,
		Mag:     cfg.Filter.Reference.Mag,
	}
	return p
}
