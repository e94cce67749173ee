// Package config resolves the trainer configuration from flags, DOGCAT_*
// environment variables and an optional YAML file, in that order of precedence.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "DOGCAT"

// Config is the full set of knobs of a training run.
type Config struct {
	Pretrained bool    `mapstructure:"pretrained" yaml:"pretrained"`
	Resume     bool    `mapstructure:"resume" yaml:"resume"`
	LR         float64 `mapstructure:"lr" yaml:"lr"`
	Epochs     int     `mapstructure:"epochs" yaml:"epochs"`
	Arch       string  `mapstructure:"arch" yaml:"arch"`

	TrainDir   string `mapstructure:"train-dir" yaml:"train-dir"`
	ValDir     string `mapstructure:"val-dir" yaml:"val-dir"`
	Checkpoint string `mapstructure:"checkpoint" yaml:"checkpoint"`
	ModelDir   string `mapstructure:"model-dir" yaml:"model-dir"`

	PretrainedURL   string `mapstructure:"pretrained-url" yaml:"pretrained-url"`
	DownloadRetries int    `mapstructure:"download-retries" yaml:"download-retries"`

	BatchSize int   `mapstructure:"batch-size" yaml:"batch-size"`
	Workers   int   `mapstructure:"workers" yaml:"workers"`
	Seed      int64 `mapstructure:"seed" yaml:"seed"`

	LogLevel    string `mapstructure:"log-level" yaml:"log-level"`
	MetricsFile string `mapstructure:"metrics-file" yaml:"metrics-file"`
	PlotLog     string `mapstructure:"plot-log" yaml:"plot-log"`

	PrintConfig bool `mapstructure:"print-config" yaml:"-"`
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("dogcat", pflag.ContinueOnError)
	fs.String("config", "", "optional YAML config file")
	fs.Bool("print-config", false, "print the effective configuration as YAML and exit")

	fs.Bool("pretrained", false, "fine-tune from downloaded pretrained weights")
	fs.Bool("resume", false, "resume from the checkpoint")
	fs.Float64("lr", 0.1, "base learning rate")
	fs.Int("epochs", 60, "number of epochs to run")
	fs.String("arch", "resnet18", "network architecture (resnet18, resnet34, resnet50)")

	fs.String("train-dir", "./data/train/", "training images, one subdirectory per class")
	fs.String("val-dir", "./data/val/", "validation images, one subdirectory per class")
	fs.String("checkpoint", "./checkpoint/ckpt.t7", "best-model checkpoint file")
	fs.String("model-dir", "./model_dir/", "cache directory for pretrained weights")

	fs.String("pretrained-url", "", "base URL serving <arch>.gob pretrained state dicts")
	fs.Int("download-retries", 0, "extra attempts when downloading pretrained weights")

	fs.Int("batch-size", 64, "minibatch size")
	fs.Int("workers", 2, "background batch loading workers")
	fs.Int64("seed", 1, "random seed")

	fs.String("log-level", "info", "trace, debug, info, warn or error")
	fs.String("metrics-file", "", "write Prometheus metrics to this textfile after every epoch")
	fs.String("plot-log", "", "append per-phase loss/accuracy lines to this file")
	return fs
}

// Load parses args and merges the environment and config file beneath them.
func Load(args []string) (*Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "binding flags")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the trainer cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.LR <= 0:
		return errors.Errorf("lr must be > 0, got %g", c.LR)
	case c.Epochs <= 0:
		return errors.Errorf("epochs must be > 0, got %d", c.Epochs)
	case c.BatchSize <= 0:
		return errors.Errorf("batch-size must be > 0, got %d", c.BatchSize)
	case c.Workers < 0:
		return errors.Errorf("workers must be >= 0, got %d", c.Workers)
	case c.DownloadRetries < 0:
		return errors.Errorf("download-retries must be >= 0, got %d", c.DownloadRetries)
	case c.TrainDir == "" || c.ValDir == "":
		return errors.New("train-dir and val-dir are required")
	case c.Checkpoint == "":
		return errors.New("checkpoint path is required")
	case c.Pretrained && c.PretrainedURL == "":
		return errors.New("pretrained-url is required with --pretrained")
	}
	return nil
}

// YAML renders the configuration in the config-file format.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
