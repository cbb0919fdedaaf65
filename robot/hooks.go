package robot

import (
	"github.com/zeu5/robot-goal-env/sim"
	"github.com/zeu5/robot-goal-env/types"
	"golang.org/x/exp/rand"
)

// Hooks are the operations every concrete goal environment must supply.
// The adapter owns the simulation and hands it to each call.
type Hooks interface {
	// GetObs builds the observation; DesiredGoal must be a copy of goal.
	GetObs(s sim.Simulation, goal []float64) (*types.Observation, error)
	// SetAction applies an already clipped action to the simulation.
	SetAction(s sim.Simulation, action []float64) error
	// IsSuccess reports whether achieved satisfies desired.
	IsSuccess(achieved, desired []float64) bool
	// SampleGoal draws a new goal reachable in the current scene.
	SampleGoal(s sim.Simulation, rng *rand.Rand) ([]float64, error)
}

// The optional hooks below are detected with type assertions; environments
// that do not implement them get a no-op.

// EnvSetupHook configures the simulation once, before the initial state is
// snapshotted.
type EnvSetupHook interface {
	EnvSetup(s sim.Simulation, initialQPos map[string]float64) error
}

// ViewerSetupHook runs once for every newly created viewer.
type ViewerSetupHook interface {
	ViewerSetup(v sim.Viewer) error
}

// RenderCallbackHook runs before every render, e.g. to move goal markers.
type RenderCallbackHook interface {
	RenderCallback(s sim.Simulation, goal []float64) error
}

// StepCallbackHook runs after the simulation advanced in Step and can
// enforce additional constraints on the state.
type StepCallbackHook interface {
	StepCallback(s sim.Simulation) error
}

// SimResetter replaces the default reset, which restores the initial state.
// Returning false (without an error) asks for another attempt, e.g. after a
// randomized configuration turned out numerically unstable. objectPos is
// the optional object placement requested by the caller, nil otherwise.
type SimResetter interface {
	ResetSim(s sim.Simulation, initial sim.State, objectPos []float64, rng *rand.Rand) (bool, error)
}

// RewardComputer replaces the default sparse reward.
type RewardComputer interface {
	ComputeReward(achieved, desired []float64, info types.Info) float64
}
