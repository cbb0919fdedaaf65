// Package robot adapts an external physics engine to the goal-conditioned
// environment contract. The adapter owns the simulation, the viewer and the
// random generator; concrete environments supply observation, action, goal
// and success logic through Hooks.
//
// An Env is not safe for concurrent use.
package robot

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/zeu5/robot-goal-env/sim"
	"github.com/zeu5/robot-goal-env/types"
	"golang.org/x/exp/rand"
)

// Env is the environment adapter.
type Env struct {
	cfg     Config
	backend sim.Backend
	sim     sim.Simulation
	hooks   Hooks
	logger  *slog.Logger

	modders    *sim.Modders
	cameraInit sim.Vec3
	cameraOK   bool

	viewer sim.Viewer

	rng  *rand.Rand
	seed uint64

	initialState sim.State
	goal         []float64

	metadata         types.Metadata
	actionSpace      *types.Box
	observationSpace *types.DictSpace
}

var _ types.GoalEnv = &Env{}

// New loads the scene, builds the simulation and derives the spaces from the
// first observation.
func New(backend sim.Backend, hooks Hooks, cfg Config, opts ...Option) (*Env, error) {
	if hooks == nil {
		return nil, fmt.Errorf("robot: %w: nil hooks", ErrNotImplemented)
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if cfg.AssetsDir == "" {
		cfg.AssetsDir = DefaultAssetsDir
	}
	if cfg.MaxResetAttempts == 0 {
		cfg.MaxResetAttempts = DefaultMaxResetAttempts
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("robot: %w", err)
	}

	fullpath := cfg.ModelPath
	if !filepath.IsAbs(fullpath) {
		fullpath = filepath.Join(cfg.AssetsDir, cfg.ModelPath)
	}
	if _, err := os.Stat(fullpath); err != nil {
		return nil, fmt.Errorf("robot: %w: %w", ErrSceneNotFound, err)
	}

	model, err := backend.LoadModel(fullpath)
	if err != nil {
		return nil, fmt.Errorf("robot: loading scene %s: %w", fullpath, err)
	}
	s, err := backend.NewSimulation(model, cfg.Substeps)
	if err != nil {
		return nil, fmt.Errorf("robot: creating simulation: %w", err)
	}
	if dt := model.Timestep() * float64(s.Substeps()); !(dt > 0) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("robot: %w: step duration %v from timestep %v and %d substeps",
			ErrInvalidConfig, dt, model.Timestep(), s.Substeps())
	}
	modders, err := backend.Modders(s)
	if err != nil {
		return nil, fmt.Errorf("robot: creating scene modders: %w", err)
	}

	e := &Env{
		cfg:     cfg,
		backend: backend,
		sim:     s,
		hooks:   hooks,
		logger:  o.logger.With("scene", filepath.Base(fullpath)),
		modders: modders,
	}
	if modders.Camera != nil {
		if pos, err := modders.Camera.Pos(CameraName); err == nil {
			e.cameraInit = pos
			e.cameraOK = true
		}
	}

	e.metadata = types.Metadata{
		RenderModes: []string{types.RenderHuman, types.RenderRGBArray},
		FPS:         int(math.Round(1.0 / e.Dt())),
	}

	e.Seed(o.seed)
	if setup, ok := hooks.(EnvSetupHook); ok {
		if err := setup.EnvSetup(s, cfg.InitialQPos); err != nil {
			return nil, fmt.Errorf("robot: env setup: %w", err)
		}
	}
	e.initialState = s.State().Copy()

	goal, err := hooks.SampleGoal(s, e.rng)
	if err != nil {
		return nil, fmt.Errorf("robot: sampling goal: %w", err)
	}
	e.goal = goal
	obs, err := hooks.GetObs(s, e.Goal())
	if err != nil {
		return nil, fmt.Errorf("robot: first observation: %w", err)
	}

	bound := cfg.actionBound()
	e.actionSpace = types.NewBox(-bound, bound, cfg.NActions)
	e.observationSpace = types.GoalSpace(len(obs.Observation), len(obs.AchievedGoal))

	e.logger.Info("environment ready",
		"path", fullpath,
		"substeps", s.Substeps(),
		"dt", e.Dt(),
		"n_actions", cfg.NActions,
		"obs_dim", len(obs.Observation),
		"goal_dim", len(obs.AchievedGoal))
	return e, nil
}

// Dt is the simulated time advanced by one Step.
func (e *Env) Dt() float64 {
	return e.sim.Model().Timestep() * float64(e.sim.Substeps())
}

// Sim exposes the simulation to the concrete environment and tests.
func (e *Env) Sim() sim.Simulation { return e.sim }

func (e *Env) Metadata() types.Metadata           { return e.metadata }
func (e *Env) ActionSpace() *types.Box            { return e.actionSpace }
func (e *Env) ObservationSpace() *types.DictSpace { return e.observationSpace }
func (e *Env) Goal() []float64                    { return append([]float64(nil), e.goal...) }
func (e *Env) CurrentSeed() uint64                { return e.seed }

// Seed replaces the random generator. A nil seed draws one from the
// operating system. The effective seed is returned.
func (e *Env) Seed(seed *uint64) []uint64 {
	var s uint64
	if seed != nil {
		s = *seed
	} else {
		var buf [8]byte
		if _, err := crand.Read(buf[:]); err != nil {
			panic(fmt.Sprintf("robot: reading seed entropy: %v", err))
		}
		s = binary.LittleEndian.Uint64(buf[:])
	}
	e.seed = s
	e.rng = rand.New(rand.NewSource(s))
	return []uint64{s}
}

// Step clips the action into the action space, applies it and advances the
// simulation. done is always false: episode termination is up to the caller.
func (e *Env) Step(action []float64) (*types.Observation, float64, bool, types.Info, error) {
	if len(action) != e.actionSpace.Shape() {
		return nil, 0, false, types.Info{}, fmt.Errorf("robot: %w: got %d, want %d", ErrActionShape, len(action), e.actionSpace.Shape())
	}
	action = e.actionSpace.Clip(action)
	if err := e.hooks.SetAction(e.sim, action); err != nil {
		return nil, 0, false, types.Info{}, fmt.Errorf("robot: set action: %w", err)
	}
	if err := e.sim.Step(); err != nil {
		return nil, 0, false, types.Info{}, fmt.Errorf("robot: simulation step: %w", err)
	}
	if cb, ok := e.hooks.(StepCallbackHook); ok {
		if err := cb.StepCallback(e.sim); err != nil {
			return nil, 0, false, types.Info{}, fmt.Errorf("robot: step callback: %w", err)
		}
	}
	obs, err := e.hooks.GetObs(e.sim, e.Goal())
	if err != nil {
		return nil, 0, false, types.Info{}, fmt.Errorf("robot: observation: %w", err)
	}

	info := types.Info{
		IsSuccess: e.hooks.IsSuccess(obs.AchievedGoal, e.goal),
	}
	reward := e.ComputeReward(obs.AchievedGoal, e.goal, info)
	return obs, reward, false, info, nil
}

// ComputeReward delegates to the environment's RewardComputer when present
// and otherwise pays 0 on success and -1 elsewhere. It can be called with
// substituted goals for hindsight relabelling.
func (e *Env) ComputeReward(achieved, desired []float64, info types.Info) float64 {
	if rc, ok := e.hooks.(RewardComputer); ok {
		return rc.ComputeReward(achieved, desired, info)
	}
	if e.hooks.IsSuccess(achieved, desired) {
		return 0
	}
	return -1
}

// Reset optionally randomizes render-only scene parameters, resamples the
// goal and retries the simulator reset until it reports a valid state, the
// attempt budget runs out or ctx is done.
func (e *Env) Reset(ctx context.Context, opts types.ResetOptions) (*types.Observation, error) {
	if opts.RandTexture {
		if err := e.RandTexture(); err != nil {
			e.logger.Warn("texture randomization failed", "err", err)
		}
	}
	if opts.RandLight {
		if err := e.SetLight(); err != nil {
			e.logger.Warn("light randomization failed", "err", err)
		}
	}
	if opts.RandCamera {
		if err := e.SetCamera(); err != nil {
			e.logger.Warn("camera randomization failed", "err", err)
		}
	}

	goal, err := e.hooks.SampleGoal(e.sim, e.rng)
	if err != nil {
		return nil, fmt.Errorf("robot: sampling goal: %w", err)
	}
	e.goal = append([]float64(nil), goal...)

	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = e.cfg.MaxResetAttempts
	}
	var last error
	attempts := 0
	for {
		if maxAttempts > 0 && attempts >= maxAttempts {
			return nil, &ResetExhaustedError{Attempts: attempts, Last: last}
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("robot: reset cancelled after %d attempts: %w", attempts, err)
		}
		attempts++
		ok, err := e.resetSim(opts.ObjectPos)
		if err != nil {
			last = err
			e.logger.Debug("simulator reset attempt failed", "attempt", attempts, "err", err)
			continue
		}
		if ok {
			break
		}
		e.logger.Debug("simulator reset produced an invalid state", "attempt", attempts)
	}
	if attempts > 1 {
		e.logger.Info("simulator reset needed retries", "attempts", attempts)
	}

	obs, err := e.hooks.GetObs(e.sim, e.Goal())
	if err != nil {
		return nil, fmt.Errorf("robot: observation: %w", err)
	}
	return obs, nil
}

func (e *Env) resetSim(objectPos []float64) (bool, error) {
	if r, ok := e.hooks.(SimResetter); ok {
		return r.ResetSim(e.sim, e.initialState.Copy(), objectPos, e.rng)
	}
	if err := e.sim.SetState(e.initialState.Copy()); err != nil {
		return false, err
	}
	if err := e.sim.Forward(); err != nil {
		return false, err
	}
	return true, nil
}

// Render draws the scene. "human" drives the interactive viewer and returns
// a nil image, "rgb_array" returns a RenderWidth x RenderHeight frame with
// the top row first.
func (e *Env) Render(mode string) (image.Image, error) {
	if mode != types.RenderHuman && mode != types.RenderRGBArray {
		return nil, fmt.Errorf("robot: %w: %q", ErrUnsupportedRenderMode, mode)
	}
	if cb, ok := e.hooks.(RenderCallbackHook); ok {
		if err := cb.RenderCallback(e.sim, e.Goal()); err != nil {
			return nil, fmt.Errorf("robot: render callback: %w", err)
		}
	}
	v, err := e.getViewer()
	if err != nil {
		return nil, err
	}
	if err := v.Render(); err != nil {
		return nil, fmt.Errorf("robot: render: %w", err)
	}
	if mode == types.RenderHuman {
		return nil, nil
	}
	data, err := v.ReadPixels(RenderWidth, RenderHeight)
	if err != nil {
		return nil, fmt.Errorf("robot: reading pixels: %w", err)
	}
	// the viewer hands rows bottom-up
	return flipVertical(data), nil
}

func (e *Env) getViewer() (sim.Viewer, error) {
	if e.viewer != nil {
		return e.viewer, nil
	}
	v, err := e.backend.NewViewer(e.sim)
	if err != nil {
		return nil, fmt.Errorf("robot: creating viewer: %w", err)
	}
	if setup, ok := e.hooks.(ViewerSetupHook); ok {
		if err := setup.ViewerSetup(v); err != nil {
			v.Close()
			return nil, fmt.Errorf("robot: viewer setup: %w", err)
		}
	}
	e.viewer = v
	return v, nil
}

// Close releases the viewer. It is safe to call more than once and a later
// Render creates a new viewer.
func (e *Env) Close() error {
	if e.viewer == nil {
		return nil
	}
	v := e.viewer
	e.viewer = nil
	if err := v.Close(); err != nil {
		return fmt.Errorf("robot: closing viewer: %w", err)
	}
	return nil
}

func flipVertical(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	rowLen := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		srcOff := src.PixOffset(b.Min.X, b.Min.Y+y)
		dstOff := dst.PixOffset(b.Min.X, b.Max.Y-1-y)
		copy(dst.Pix[dstOff:dstOff+rowLen], src.Pix[srcOff:srcOff+rowLen])
	}
	return dst
}
