package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/andybalholm/deflate/internal/cli"
	"github.com/andybalholm/deflate/internal/config"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Println("ERROR: ", err)
		os.Exit(1)
	}

	logrus.SetOutput(os.Stderr)
	if cfg.CLI.Debug {
		logrus.Info("debug mode enabled")
		logrus.SetLevel(logrus.DebugLevel)
	}

	if cfg.CLI.DisableColor {
		color.NoColor = true
	}

	displayConfig(cfg)

	log := logrus.WithField("pkg", "deflate")

	var run func(*config.Config, logrus.FieldLogger) error
	command := strings.Fields(cfg.CLI.Ctx.Command())[0]
	switch command {
	case "compress":
		run = cli.Compress
	case "decompress":
		run = cli.Decompress
	case "inspect":
		run = cli.Inspect
	case "bench":
		run = cli.Bench
	default:
		logrus.Errorf("unknown command '%s'", command)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		logrus.Errorf("%s failed: %s", command, err)
		os.Exit(1)
	}
}

func displayConfig(cfg *config.Config) {
	if cfg == nil || !cfg.CLI.Debug {
		return
	}

	logrus.Debug("deflate settings:")
	logrus.Debug("  [CLI]")
	logrus.Debugf("  version: %s", config.VERSION)
	logrus.Debugf("  command: %s", cfg.CLI.Ctx.Command())
	logrus.Debugf("  config file: %s", cfg.CLI.ConfigFile)
	logrus.Debugf("  disable color: %v", cfg.CLI.DisableColor)
	logrus.Debugf("  quiet: %v", cfg.CLI.Quiet)
	logrus.Debug("")
	logrus.Debug("  [COMPRESS]")
	logrus.Debugf("  compress.level: %s", cfg.TOML.Compress.Level)
	logrus.Debugf("  compress.format: %s", cfg.TOML.Compress.Format)
	logrus.Debugf("  compress.block_type: %s", cfg.TOML.Compress.BlockType)
	logrus.Debugf("  compress.buffer_size: %d", cfg.TOML.Compress.BufferSize)
	logrus.Debugf("  compress.sync_every: %d", cfg.TOML.Compress.SyncEvery)
	logrus.Debug("")
	logrus.Debug("  [DECOMPRESS]")
	logrus.Debugf("  decompress.format: %s", cfg.TOML.Decompress.Format)
	logrus.Debugf("  decompress.variant: %s", cfg.TOML.Decompress.Variant)
	logrus.Debugf("  decompress.strict: %v", *cfg.TOML.Decompress.Strict)
	logrus.Debug("")
	logrus.Debug("  [BENCH]")
	logrus.Debugf("  bench.level: %s", cfg.TOML.Bench.Level)
	logrus.Debugf("  bench.codecs: %v", cfg.TOML.Bench.Codecs)
	logrus.Debugf("  bench.iterations: %d", cfg.TOML.Bench.Iterations)
}
