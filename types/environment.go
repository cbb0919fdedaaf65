package types

import (
	"context"
	"image"
)

// Render modes supported by goal environments
const (
	RenderHuman    = "human"
	RenderRGBArray = "rgb_array"
)

// Observation is what a goal-conditioned policy sees after reset and every step
type Observation struct {
	Observation  []float64 `json:"observation"`
	AchievedGoal []float64 `json:"achieved_goal"`
	DesiredGoal  []float64 `json:"desired_goal"`
}

// Copy returns a deep copy of the observation
func (o *Observation) Copy() *Observation {
	if o == nil {
		return nil
	}
	return &Observation{
		Observation:  append([]float64(nil), o.Observation...),
		AchievedGoal: append([]float64(nil), o.AchievedGoal...),
		DesiredGoal:  append([]float64(nil), o.DesiredGoal...),
	}
}

// Info carries auxiliary step information
type Info struct {
	IsSuccess bool `json:"is_success"`
}

// Metadata advertised by an environment
type Metadata struct {
	RenderModes []string `json:"render.modes"`
	FPS         int      `json:"video.frames_per_second"`
}

// ResetOptions controls a single reset
type ResetOptions struct {
	// ObjectPos overrides the initial object position when the environment supports it
	ObjectPos []float64 `json:"object_pos,omitempty"`

	// render-only scene randomization, applied before the goal is resampled
	RandTexture bool `json:"rand_texture"`
	RandLight   bool `json:"rand_light"`
	RandCamera  bool `json:"rand_camera"`

	// MaxAttempts caps the simulator reset retries: 0 uses the environment
	// default and a negative value retries until the context is done
	MaxAttempts int `json:"max_attempts"`
}

// GoalEnv is the reset/step/render/close/seed surface consumed by agents
type GoalEnv interface {
	// Reset called at the start of each episode
	Reset(context.Context, ResetOptions) (*Observation, error)
	// Step returns the observation, reward, done flag and info
	Step([]float64) (*Observation, float64, bool, Info, error)
	Render(mode string) (image.Image, error)
	Close() error
	// Seed reseeds the environment randomness, nil picks a fresh seed
	Seed(*uint64) []uint64

	ActionSpace() *Box
	ObservationSpace() *DictSpace
	Metadata() Metadata

	ComputeReward(achieved, desired []float64, info Info) float64
}
