package main

import (
	"context"
	"fmt"
	"os"

	"github.com/romariotrain/audio-queue/internal/app"
	"github.com/romariotrain/audio-queue/internal/config"
	"github.com/romariotrain/audio-queue/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger = logging.Service(logger, "audioqueue")

	code := app.Run(logger, "audioqueue", func(ctx context.Context) error {
		return run(ctx, cfg, logger)
	})
	os.Exit(code)
}
