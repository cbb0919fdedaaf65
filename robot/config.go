package robot

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

const (
	// DefaultAssetsDir is where relative scene paths are resolved
	DefaultAssetsDir = "assets"
	// DefaultMaxResetAttempts bounds the simulator reset retries when the
	// config leaves it unset
	DefaultMaxResetAttempts = 100

	// RenderWidth and RenderHeight are the size of rgb_array frames
	RenderWidth  = 500
	RenderHeight = 500

	// gripperActions is the action dimension of the position plus gripper
	// convention, bounded by 1. Any other dimension is bounded by Pi.
	gripperActions = 4
)

// Config describes the scene and the action convention of an environment.
type Config struct {
	// ModelPath is the scene file, absolute or relative to AssetsDir
	ModelPath string `yaml:"model_path"`
	AssetsDir string `yaml:"assets_dir"`
	// InitialQPos is handed to the env setup hook
	InitialQPos map[string]float64 `yaml:"initial_qpos"`
	NActions    int                `yaml:"n_actions"`
	// Substeps is the number of integration ticks per Step
	Substeps int `yaml:"substeps"`
	// MaxResetAttempts caps reset retries, negative means retry until the
	// reset context is done
	MaxResetAttempts int `yaml:"max_reset_attempts"`
}

// Validate reports every field New cannot work with. Each error wraps
// ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error
	if c.ModelPath == "" {
		errs = append(errs, fmt.Errorf("%w: empty model path", ErrInvalidConfig))
	}
	if c.NActions < 1 {
		errs = append(errs, fmt.Errorf("%w: n_actions must be positive, got %d", ErrInvalidConfig, c.NActions))
	}
	if c.Substeps < 1 {
		errs = append(errs, fmt.Errorf("%w: substeps must be positive, got %d", ErrInvalidConfig, c.Substeps))
	}
	return errors.Join(errs...)
}

// actionBound follows the convention of the original robot environments.
func (c Config) actionBound() float64 {
	if c.NActions == gripperActions {
		return 1.0
	}
	return math.Pi
}

type options struct {
	logger *slog.Logger
	seed   *uint64
}

// Option configures New.
type Option func(*options)

// WithLogger sets the structured logger, slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSeed seeds the environment at construction instead of drawing a
// fresh seed, so the first goal is reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = &seed
	}
}
