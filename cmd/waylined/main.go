package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wayline-dev/wayline-wearable/internal/audio"
	"github.com/wayline-dev/wayline-wearable/internal/config"
	"github.com/wayline-dev/wayline-wearable/internal/core"
	"github.com/wayline-dev/wayline-wearable/internal/emitter"
	"github.com/wayline-dev/wayline-wearable/internal/hal"
	"github.com/wayline-dev/wayline-wearable/internal/perception"
	"github.com/wayline-dev/wayline-wearable/internal/reasoning"
	"github.com/wayline-dev/wayline-wearable/internal/scenebus"
)

const defaultConfigPath = "config/wayline.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Optional .env for deployment overrides; absence is not an error.
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting wayline daemon",
		"config", *configPath,
		"debug", *debug,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	bus := scenebus.New()
	defer bus.Close()

	app := core.NewApp(cfg)
	app.Register(perception.NewEngine(bus, nil))
	if cfg.Audio.Enabled {
		app.Register(audio.NewModule(func(chunk *hal.AudioChunk) {
			// Speech understanding consumes these chunks once an ASR
			// generator lands; until then capture keeps the path warm.
			slog.Debug("audio chunk captured", "frames", chunk.Frames())
		}))
	}
	if cfg.Reasoning.Enabled {
		app.Register(reasoning.NewInterpreter(reasoning.NewRuleGenerator(), bus))
	}
	if cfg.MQTT.Broker != "" {
		app.Register(emitter.New(bus))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}

	slog.Info("wayline daemon stopped")
}
