// Package reach is a goal environment in which a gripper has to move to a
// target position sampled around its starting point.
package reach

import (
	"errors"
	"fmt"

	"github.com/zeu5/robot-goal-env/robot"
	"github.com/zeu5/robot-goal-env/sim"
	"github.com/zeu5/robot-goal-env/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Scene names.
const (
	MocapBody   = "robot0:mocap"
	GripperBody = "robot0:gripper"
	FingerJoint = "robot0:finger"
	ObjectBody  = "object0"
	TargetBody  = "target0"
)

const (
	RewardSparse = "sparse"
	RewardDense  = "dense"

	// mocap displacement per unit action
	posScale = 0.05
	// finger displacement per unit action
	fingerScale = 0.01
	settleSteps = 10
)

// Config of the reach task.
type Config struct {
	robot.Config `yaml:",inline"`

	RewardType        string  `yaml:"reward_type"`
	DistanceThreshold float64 `yaml:"distance_threshold"`
	// TargetRange is the half-width of the goal cube around the initial gripper
	TargetRange float64 `yaml:"target_range"`
	// BlockGripper ignores the gripper action
	BlockGripper bool `yaml:"block_gripper"`
}

// DefaultConfig is the fetch reach setup.
func DefaultConfig() Config {
	return Config{
		Config: robot.Config{
			ModelPath:   "reach.yaml",
			AssetsDir:   robot.DefaultAssetsDir,
			InitialQPos: map[string]float64{FingerJoint: 0.02},
			NActions:    4,
			Substeps:    20,
		},
		RewardType:        RewardSparse,
		DistanceThreshold: 0.05,
		TargetRange:       0.15,
	}
}

// Task implements the robot hooks for reaching.
type Task struct {
	cfg            Config
	initialGripper sim.Vec3
}

var (
	_ robot.Hooks              = &Task{}
	_ robot.EnvSetupHook       = &Task{}
	_ robot.ViewerSetupHook    = &Task{}
	_ robot.RenderCallbackHook = &Task{}
	_ robot.SimResetter        = &Task{}
	_ robot.RewardComputer     = &Task{}
)

// NewTask validates the task parameters.
func NewTask(cfg Config) (*Task, error) {
	switch cfg.RewardType {
	case RewardSparse, RewardDense:
	default:
		return nil, fmt.Errorf("reach: unknown reward type %q", cfg.RewardType)
	}
	if cfg.DistanceThreshold <= 0 {
		return nil, fmt.Errorf("reach: distance threshold must be positive, got %v", cfg.DistanceThreshold)
	}
	if cfg.TargetRange < 0 {
		return nil, fmt.Errorf("reach: negative target range %v", cfg.TargetRange)
	}
	return &Task{cfg: cfg}, nil
}

// New builds a reach environment on backend.
func New(backend sim.Backend, cfg Config, opts ...robot.Option) (*robot.Env, error) {
	task, err := NewTask(cfg)
	if err != nil {
		return nil, err
	}
	return robot.New(backend, task, cfg.Config, opts...)
}

func (t *Task) EnvSetup(s sim.Simulation, initialQPos map[string]float64) error {
	for name, q := range initialQPos {
		if err := s.SetJointQPos(name, q); err != nil {
			return err
		}
	}
	if err := s.Forward(); err != nil {
		return err
	}
	grip, err := s.BodyPos(GripperBody)
	if err != nil {
		return err
	}
	if err := s.SetMocapPos(MocapBody, grip); err != nil {
		return err
	}
	for i := 0; i < settleSteps; i++ {
		if err := s.Step(); err != nil {
			return err
		}
	}
	t.initialGripper, err = s.BodyPos(GripperBody)
	return err
}

func (t *Task) GetObs(s sim.Simulation, goal []float64) (*types.Observation, error) {
	grip, err := s.BodyPos(GripperBody)
	if err != nil {
		return nil, err
	}
	finger, err := s.JointQPos(FingerJoint)
	if err != nil {
		return nil, err
	}
	achieved := []float64{grip[0], grip[1], grip[2]}
	rel := make([]float64, 3)
	floats.SubTo(rel, goal, achieved)
	obs := append(append(append([]float64{}, achieved...), finger), rel...)
	return &types.Observation{
		Observation:  obs,
		AchievedGoal: achieved,
		DesiredGoal:  append([]float64(nil), goal...),
	}, nil
}

func (t *Task) SetAction(s sim.Simulation, action []float64) error {
	if len(action) != 4 {
		return fmt.Errorf("reach: action of length %d", len(action))
	}
	cur, err := s.BodyPos(MocapBody)
	if err != nil {
		return err
	}
	delta := sim.Vec3{action[0] * posScale, action[1] * posScale, action[2] * posScale}
	if err := s.SetMocapPos(MocapBody, cur.Add(delta)); err != nil {
		return err
	}
	if t.cfg.BlockGripper {
		return nil
	}
	q, err := s.JointQPos(FingerJoint)
	if err != nil {
		return err
	}
	return s.SetJointQPos(FingerJoint, q+action[3]*fingerScale)
}

func (t *Task) IsSuccess(achieved, desired []float64) bool {
	return floats.Distance(achieved, desired, 2) < t.cfg.DistanceThreshold
}

func (t *Task) SampleGoal(_ sim.Simulation, rng *rand.Rand) ([]float64, error) {
	goal := []float64{t.initialGripper[0], t.initialGripper[1], t.initialGripper[2]}
	if t.cfg.TargetRange == 0 {
		return goal, nil
	}
	u := distuv.Uniform{Min: -t.cfg.TargetRange, Max: t.cfg.TargetRange, Src: rng}
	for i := range goal {
		goal[i] += u.Rand()
	}
	return goal, nil
}

func (t *Task) ComputeReward(achieved, desired []float64, _ types.Info) float64 {
	d := floats.Distance(achieved, desired, 2)
	if t.cfg.RewardType == RewardDense {
		return -d
	}
	if d > t.cfg.DistanceThreshold {
		return -1
	}
	return 0
}

// ResetSim restores the initial state and places the object when asked to.
func (t *Task) ResetSim(s sim.Simulation, initial sim.State, objectPos []float64, _ *rand.Rand) (bool, error) {
	if err := s.SetState(initial); err != nil {
		return false, err
	}
	if objectPos != nil {
		if err := t.placeObject(s, objectPos); err != nil {
			return false, err
		}
	}
	if err := s.Forward(); err != nil {
		return false, err
	}
	return true, nil
}

type bodyPlacer interface {
	SetBodyPos(name string, pos sim.Vec3) error
}

func (t *Task) placeObject(s sim.Simulation, objectPos []float64) error {
	bp, ok := s.(bodyPlacer)
	if !ok {
		return fmt.Errorf("reach: simulation %T cannot place bodies", s)
	}
	pos, err := s.BodyPos(ObjectBody)
	if err != nil {
		return err
	}
	switch len(objectPos) {
	case 2:
		pos[0], pos[1] = objectPos[0], objectPos[1]
	case 3:
		pos = sim.Vec3{objectPos[0], objectPos[1], objectPos[2]}
	default:
		return fmt.Errorf("reach: object position must have 2 or 3 entries, got %d", len(objectPos))
	}
	return bp.SetBodyPos(ObjectBody, pos)
}

type extentSetter interface {
	SetExtent(extent float64)
}

// ViewerSetup zooms onto the table.
func (t *Task) ViewerSetup(v sim.Viewer) error {
	if es, ok := v.(extentSetter); ok {
		es.SetExtent(0.4)
	}
	return nil
}

// RenderCallback moves the goal marker onto the goal. Scenes without a
// marker are left alone.
func (t *Task) RenderCallback(s sim.Simulation, goal []float64) error {
	err := s.SetMocapPos(TargetBody, sim.Vec3{goal[0], goal[1], goal[2]})
	if errors.Is(err, sim.ErrUnknownName) {
		return nil
	}
	return err
}

// InitialGripper is the gripper position after setup, the centre of the
// goal cube.
func (t *Task) InitialGripper() sim.Vec3 { return t.initialGripper }
