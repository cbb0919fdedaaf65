package policies

import (
	"time"

	"github.com/zeu5/robot-goal-env/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// GoalSeekingPolicy moves the first three action components along the
// offset to the desired goal, scaled by gain, with optional gaussian noise.
type GoalSeekingPolicy struct {
	gain  float64
	noise float64
	rand  *rand.Rand
}

var _ types.Policy = &GoalSeekingPolicy{}

func NewGoalSeekingPolicy(gain, noise float64) *GoalSeekingPolicy {
	return &GoalSeekingPolicy{
		gain:  gain,
		noise: noise,
		rand:  rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
	}
}

func (g *GoalSeekingPolicy) WithSeed(seed uint64) *GoalSeekingPolicy {
	g.rand = rand.New(rand.NewSource(seed))
	return g
}

func (g *GoalSeekingPolicy) Reset() {}

func (g *GoalSeekingPolicy) UpdateIteration(_ int, _ *types.Trace) {}

func (g *GoalSeekingPolicy) Update(_ int, _ *types.Observation, _ []float64, _ float64, _ *types.Observation) {
}

func (g *GoalSeekingPolicy) NextAction(step int, obs *types.Observation, space *types.Box) ([]float64, bool) {
	action := make([]float64, space.Shape())
	n := min(3, len(action), len(obs.DesiredGoal), len(obs.AchievedGoal))
	floats.SubTo(action[:n], obs.DesiredGoal[:n], obs.AchievedGoal[:n])
	floats.Scale(g.gain, action[:n])
	if g.noise > 0 {
		normal := distuv.Normal{Mu: 0, Sigma: g.noise, Src: g.rand}
		for i := range action {
			action[i] += normal.Rand()
		}
	}
	return space.Clip(action), true
}

// ZeroPolicy always outputs the zero action, clipped into the space
type ZeroPolicy struct{}

var _ types.Policy = ZeroPolicy{}

func (ZeroPolicy) Reset() {}

func (ZeroPolicy) UpdateIteration(_ int, _ *types.Trace) {}

func (ZeroPolicy) Update(_ int, _ *types.Observation, _ []float64, _ float64, _ *types.Observation) {
}

func (ZeroPolicy) NextAction(_ int, _ *types.Observation, space *types.Box) ([]float64, bool) {
	return space.Clip(make([]float64, space.Shape())), true
}
