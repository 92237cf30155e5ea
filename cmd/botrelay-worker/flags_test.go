package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/botrelay/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"
)

func runLoadConfig(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()

	var (
		cfg     config.Config
		loadErr error
	)

	command := &cli.Command{
		Name:  "botrelay-worker",
		Flags: tuningFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, loadErr = loadConfig(command)

			return nil
		},
	}

	require.NoError(t, command.Run(context.Background(), append([]string{"botrelay-worker"}, args...)))

	return cfg, loadErr
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := runLoadConfig(t)
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "botrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\nsweep:\n  batch_size: 20\n"), 0o600))

	cfg, err := runLoadConfig(t, "--config", path, "--workers", "8", "--timeout", "30s")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 20, cfg.Sweep.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	_, err := runLoadConfig(t, "--batch-size", "0")
	require.Error(t, err)
}
