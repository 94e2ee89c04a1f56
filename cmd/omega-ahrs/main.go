package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"omega-ahrs/internal/config"
	"omega-ahrs/internal/web"
)

func main() {
	var (
		configPath  string
		summaryPath string
		replayPath  string
		plotPath    string
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config (empty: built-in defaults)")
	flag.StringVar(&summaryPath, "summary", "", "Print a summary of a result CSV and exit")
	flag.StringVar(&plotPath, "plot", "", "With -summary, also write an error plot (png, svg or pdf)")
	flag.StringVar(&replayPath, "replay", "", "Replay a result CSV through the configured live outputs")
	flag.Parse()

	if summaryPath != "" {
		if err := printSummary(os.Stdout, summaryPath, plotPath); err != nil {
			log.Fatalf("summary failed: %v", err)
		}
		return
	}

	cfg, err := loadConfig(configPath, replayPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	level, _ := log.ParseLevel(cfg.Log.Level)
	log.SetLevel(level)

	logs := web.NewLogBuffer(2000)
	log.AddHook(logs)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("omega-ahrs starting mode=%s", runMode(cfg))
	if err := run(ctx, cfg, logs); err != nil {
		log.Fatalf("omega-ahrs failed: %v", err)
	}
	log.Printf("omega-ahrs stopping")
}

// loadConfig reads configPath (or the defaults) and applies the -replay flag.
func loadConfig(configPath, replayPath string) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return config.Config{}, err
		}
	}
	if replayPath != "" {
		cfg.Replay.Enable = true
		cfg.Replay.Path = replayPath
		if cfg.Replay.Speed <= 0 {
			cfg.Replay.Speed = 1
		}
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config, logs *web.LogBuffer) error {
	o, err := openOutputs(ctx, cfg, logs)
	if err != nil {
		return err
	}
	defer o.close()

	if cfg.Replay.Enable {
		err = runReplay(ctx, cfg, o, nil)
	} else {
		_, err = runSimulation(ctx, cfg, o)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	return o.wait(ctx)
}
