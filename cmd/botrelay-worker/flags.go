package main

import (
	"github.com/dukex/botrelay/pkg/config"
	cli "github.com/urfave/cli/v3"
)

func tuningFlags() []cli.Flag {
	defaults := config.Default()

	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to a YAML tuning file",
			Sources: cli.EnvVars("BOTRELAY_CONFIG"),
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Number of executor workers",
			Value:   defaults.Workers,
			Sources: cli.EnvVars("WORKERS"),
		},
		&cli.DurationFlag{
			Name:    "advance-interval",
			Usage:   "Interval between advance sweeps",
			Value:   defaults.Sweep.AdvanceInterval,
			Sources: cli.EnvVars("ADVANCE_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:    "reconcile-interval",
			Usage:   "Interval between reconcile sweeps",
			Value:   defaults.Sweep.ReconcileInterval,
			Sources: cli.EnvVars("RECONCILE_INTERVAL"),
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Usage:   "Maximum questions dispatched per sweep",
			Value:   defaults.Sweep.BatchSize,
			Sources: cli.EnvVars("BATCH_SIZE"),
		},
		&cli.DurationFlag{
			Name:    "freshness-window",
			Usage:   "Pending questions older than this are left to the timeout",
			Value:   defaults.Sweep.FreshnessWindow,
			Sources: cli.EnvVars("FRESHNESS_WINDOW"),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Age after which an unfinished question is failed",
			Value:   defaults.Timeout,
			Sources: cli.EnvVars("QUESTION_TIMEOUT"),
		},
	}
}

// loadConfig reads the tuning file and lets explicitly set flags override it.
func loadConfig(command *cli.Command) (config.Config, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if command.IsSet("workers") {
		cfg.Workers = command.Int("workers")
	}

	if command.IsSet("advance-interval") {
		cfg.Sweep.AdvanceInterval = command.Duration("advance-interval")
	}

	if command.IsSet("reconcile-interval") {
		cfg.Sweep.ReconcileInterval = command.Duration("reconcile-interval")
	}

	if command.IsSet("batch-size") {
		cfg.Sweep.BatchSize = command.Int("batch-size")
	}

	if command.IsSet("freshness-window") {
		cfg.Sweep.FreshnessWindow = command.Duration("freshness-window")
	}

	if command.IsSet("timeout") {
		cfg.Timeout = command.Duration("timeout")
	}

	return cfg, cfg.Validate()
}
