// Package config loads the tuning file shared by the worker and the API.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dukex/botrelay/pkg/cache"
	"github.com/dukex/botrelay/pkg/executor"
	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/dukex/botrelay/pkg/reconcile"
	"github.com/dukex/botrelay/pkg/sweep"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Workers  int                     `yaml:"workers"  validate:"gte=1,lte=64"`
	Sweep    SweepConfig             `yaml:"sweep"`
	Timeout  time.Duration           `yaml:"timeout"  validate:"gte=1s"`
	Retry    persistence.RetryPolicy `yaml:"retry"`
	Messages reconcile.Messages      `yaml:"messages"`
	Cache    CacheConfig             `yaml:"cache"`
}

type SweepConfig struct {
	AdvanceInterval   time.Duration `yaml:"advance_interval"   validate:"gte=1s"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval" validate:"gte=1s"`
	BatchSize         int           `yaml:"batch_size"         validate:"gte=1,lte=1000"`
	FreshnessWindow   time.Duration `yaml:"freshness_window"   validate:"gte=1s"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl" validate:"gte=1s"`
}

func Default() Config {
	return Config{
		Workers: executor.DefaultWorkers,
		Sweep: SweepConfig{
			AdvanceInterval:   sweep.DefaultAdvanceInterval,
			ReconcileInterval: sweep.DefaultReconcileInterval,
			BatchSize:         sweep.DefaultBatchSize,
			FreshnessWindow:   sweep.DefaultFreshnessWindow,
		},
		Timeout:  reconcile.DefaultTimeout,
		Retry:    persistence.DefaultRetryPolicy(),
		Messages: reconcile.DefaultMessages(),
		Cache:    CacheConfig{TTL: cache.DefaultTTL},
	}
}

// Load reads the YAML file at path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = yaml.Unmarshal(data, &config)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	err := config.Validate()
	if err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return fmt.Errorf("invalid configuration: %w", validationErrors)
		}

		return fmt.Errorf("failed to validate configuration: %w", err)
	}

	return nil
}

func (c Config) SchedulerConfig() sweep.Config {
	return sweep.Config{
		AdvanceInterval:   c.Sweep.AdvanceInterval,
		ReconcileInterval: c.Sweep.ReconcileInterval,
		BatchSize:         c.Sweep.BatchSize,
		FreshnessWindow:   c.Sweep.FreshnessWindow,
	}
}

func (c Config) EngineConfig() reconcile.Config {
	return reconcile.Config{
		Timeout:  c.Timeout,
		Messages: c.Messages,
	}
}
