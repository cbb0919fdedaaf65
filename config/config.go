// Package config loads experiment configuration from YAML files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zeu5/robot-goal-env/envs/reach"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv
const (
	EnvAssets    = "ROBOTENV_ASSETS"
	EnvRedisAddr = "ROBOTENV_REDIS_ADDR"
	EnvServeAddr = "ROBOTENV_ADDR"
	EnvLogLevel  = "ROBOTENV_LOG_LEVEL"
)

type ExperimentConfig struct {
	Env        reach.Config     `yaml:"env"`
	Experiment ExperimentParams `yaml:"experiment"`
	Reset      ResetParams      `yaml:"reset"`
	Replay     ReplayConfig     `yaml:"replay"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LogConfig        `yaml:"logging"`
}

type ExperimentParams struct {
	Episodes int           `yaml:"episodes"`
	Horizon  int           `yaml:"horizon"`
	Runs     int           `yaml:"runs"`
	Save     string        `yaml:"save"`
	Seed     uint64        `yaml:"seed"`
	Timeout  time.Duration `yaml:"timeout"`
	Parallel bool          `yaml:"parallel"`
	// Policies names the policies to compare, all of them when empty
	Policies []string `yaml:"policies"`
}

type ResetParams struct {
	RandTexture bool `yaml:"rand_texture"`
	RandLight   bool `yaml:"rand_light"`
	RandCamera  bool `yaml:"rand_camera"`
}

type ReplayConfig struct {
	// RedisAddr selects the redis store, in memory otherwise
	RedisAddr string `yaml:"redis_addr"`
	Prefix    string `yaml:"prefix"`
	K         int    `yaml:"k"`
	Strategy  string `yaml:"strategy"`
	Capacity  int    `yaml:"capacity"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default is the configuration used when no file is given.
func Default() *ExperimentConfig {
	return &ExperimentConfig{
		Env: reach.DefaultConfig(),
		Experiment: ExperimentParams{
			Episodes: 100,
			Horizon:  50,
			Runs:     1,
			Save:     "results",
			Timeout:  10 * time.Second,
		},
		Replay: ReplayConfig{
			Prefix:   "robotenv",
			K:        4,
			Strategy: "future",
		},
		Server: ServerConfig{
			Addr: "localhost:7074",
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (*ExperimentConfig, error) {
	cfg := Default()
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(bs, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *ExperimentConfig) Validate() error {
	var errs []error
	if c.Experiment.Episodes <= 0 {
		errs = append(errs, fmt.Errorf("episodes must be positive, got %d", c.Experiment.Episodes))
	}
	if c.Experiment.Horizon <= 0 {
		errs = append(errs, fmt.Errorf("horizon must be positive, got %d", c.Experiment.Horizon))
	}
	if c.Experiment.Runs <= 0 {
		errs = append(errs, fmt.Errorf("runs must be positive, got %d", c.Experiment.Runs))
	}
	if err := c.Env.Config.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Replay.K < 0 {
		errs = append(errs, fmt.Errorf("replay k must not be negative, got %d", c.Replay.K))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadEnv loads the first .env file found among files. Missing files are
// not an error.
func LoadEnv(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides the configuration with the ROBOTENV_ variables.
func (c *ExperimentConfig) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvAssets); ok {
		c.Env.AssetsDir = v
	}
	if v, ok := os.LookupEnv(EnvRedisAddr); ok {
		c.Replay.RedisAddr = v
	}
	if v, ok := os.LookupEnv(EnvServeAddr); ok {
		c.Server.Addr = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Logging.Level = v
	}
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger builds a text logger on stderr at the configured level.
func (c *ExperimentConfig) Logger() *slog.Logger {
	level, _ := ParseLevel(c.Logging.Level)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SeedString is the seed as printed in reports, "random" when unset.
func (c *ExperimentConfig) SeedString() string {
	if c.Experiment.Seed == 0 {
		return "random"
	}
	return strconv.FormatUint(c.Experiment.Seed, 10)
}
